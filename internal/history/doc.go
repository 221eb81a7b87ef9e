// Package history persists finished tasks to a SQLite journal so outcomes
// survive daemon restarts. Live tasks stay in the in-memory registry; only
// terminal snapshots are recorded here.
package history
