// Package daemon coordinates the background services: it enforces
// single-instance execution with a file lock, owns the task registry and the
// history journal, and schedules pipelines through a bounded worker pool.
package daemon
