// Package logging builds the slog loggers used across zinc and provides
// standardized attribute helpers so log fields stay consistent between the
// daemon, the pipeline, and the engines.
package logging
