// Package subtitle turns recognized speech into SRT caption tracks. It covers
// the two synthesis strategies the engines feed it: duration-proportional
// splitting for plain text and timestamp grouping for token streams, plus
// direct rendering of timestamped segments.
package subtitle

import (
	"fmt"
	"os"
	"strings"
)

// Segment is the unit produced by timestamp-aware engines. Times are
// milliseconds from the start of the audio.
type Segment struct {
	StartMS int64
	EndMS   int64
	Text    string
}

// Caption is one rendered subtitle entry. Times are seconds.
type Caption struct {
	Start float64
	End   float64
	Text  string
}

// Token pairs a recognized token with its offset in seconds. Tokens beginning
// with a space mark word boundaries.
type Token struct {
	Text   string
	Offset float64
}

// RenderSRT serializes captions as an SRT document.
func RenderSRT(captions []Caption) string {
	var b strings.Builder
	for i, c := range captions {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, FormatTime(c.Start), FormatTime(c.End), strings.TrimSpace(c.Text))
	}
	return b.String()
}

// SegmentCaptions converts timestamped segments to captions one-for-one,
// skipping whitespace-only text.
func SegmentCaptions(segments []Segment) []Caption {
	captions := make([]Caption, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		captions = append(captions, Caption{
			Start: float64(seg.StartMS) / 1000.0,
			End:   float64(seg.EndMS) / 1000.0,
			Text:  text,
		})
	}
	return captions
}

// WriteTrack writes an SRT document for the captions at path.
func WriteTrack(path string, captions []Caption) error {
	if len(captions) == 0 {
		return fmt.Errorf("no captions to write")
	}
	if err := os.WriteFile(path, []byte(RenderSRT(captions)), 0o644); err != nil {
		return fmt.Errorf("write subtitle track %s: %w", path, err)
	}
	return nil
}
