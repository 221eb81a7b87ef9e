package engine

import (
	"math"
	"sort"

	"github.com/olivier-w/zinc/internal/subtitle"
)

// Chunked inference parameters. Chunks overlap so words spanning a boundary
// are not truncated; the overlap region is reprocessed by the later chunk.
const (
	ChunkDuration = 300.0
	ChunkOverlap  = 2.0
)

// Chunk is one independently processed window of source audio.
type Chunk struct {
	Index    int
	Start    float64
	Duration float64
}

// PlanChunks divides totalDuration into overlapping fixed-size chunks. The
// final chunk extends to the true end of the audio rather than being padded.
// Short inputs yield a single chunk covering everything.
func PlanChunks(totalDuration float64) []Chunk {
	stride := ChunkDuration - ChunkOverlap
	n := int(math.Ceil((totalDuration - ChunkOverlap) / stride))
	if n < 1 {
		n = 1
	}
	chunks := make([]Chunk, 0, n)
	for i := 0; i < n; i++ {
		start := float64(i) * stride
		duration := ChunkDuration
		if i == n-1 {
			duration = totalDuration - start
		}
		chunks = append(chunks, Chunk{Index: i, Start: start, Duration: duration})
	}
	return chunks
}

// OffsetSegments shifts segment times by the chunk's start so they are
// expressed relative to the whole file.
func OffsetSegments(segments []subtitle.Segment, offsetMS int64) []subtitle.Segment {
	out := make([]subtitle.Segment, len(segments))
	for i, s := range segments {
		out[i] = subtitle.Segment{StartMS: s.StartMS + offsetMS, EndMS: s.EndMS + offsetMS, Text: s.Text}
	}
	return out
}

// MergeAtBoundary reconciles a new chunk's segments into the accumulated
// stream. Prior segments that started inside the reprocessed overlap window
// are dropped in favour of the later chunk's version; new segments that begin
// before the boundary are discarded since the earlier chunk already covered
// them. Segments straddling the boundary are kept from the earlier chunk,
// biasing toward its timing.
func MergeAtBoundary(accumulated, incoming []subtitle.Segment, boundaryMS int64) []subtitle.Segment {
	merged := make([]subtitle.Segment, 0, len(accumulated)+len(incoming))
	for _, s := range accumulated {
		if s.EndMS <= boundaryMS || s.StartMS < boundaryMS {
			merged = append(merged, s)
		}
	}
	for _, s := range incoming {
		if s.StartMS >= boundaryMS {
			merged = append(merged, s)
		}
	}
	return merged
}

// SortSegments orders segments by start time. Merge output should already be
// ordered; the stable sort catches engines that emit out-of-order segments.
func SortSegments(segments []subtitle.Segment) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].StartMS < segments[j].StartMS
	})
}
