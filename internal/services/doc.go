// Package services defines shared utilities consumed by the pipeline stages
// and external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that keep failures from
//     external tools classifiable after they cross package boundaries.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, cancellation) stays uniform across the
// pipeline.
package services
