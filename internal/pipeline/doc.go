// Package pipeline runs submitted tasks end to end: remote fetches through
// yt-dlp, and transcription through audio extraction, engine inference,
// caption muxing, and an atomic swap of the finished file. Cancellation is
// observed before every stage and propagated to subprocesses through the
// task's bound context.
package pipeline
