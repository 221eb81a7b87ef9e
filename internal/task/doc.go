// Package task holds the in-memory task table shared by the daemon, the
// pipelines, and the presentation layer. Tasks are owned by the Registry and
// mutated only under its lock; every mutation republishes a snapshot so
// consumers never alias live task state. Cancellation is cooperative: each
// task carries a Handle whose flag the pipeline observes at safe points.
package task
