package subtitle_test

import (
	"math"
	"strings"
	"testing"

	"github.com/olivier-w/zinc/internal/subtitle"
)

func TestFormatTime(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{1.5, "00:00:01,500"},
		{45.125, "00:00:45,125"},
		{3723.5, "01:02:03,500"},
		{7384.2176, "02:03:04,217"}, // truncated, not rounded
		{-5, "00:00:00,000"},
	}
	for _, tc := range cases {
		if got := subtitle.FormatTime(tc.seconds); got != tc.want {
			t.Errorf("FormatTime(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestTimeRoundTrip(t *testing.T) {
	for _, seconds := range []float64{0, 0.001, 1.5, 59.999, 61.042, 3599.25, 3661.999, 86399.5} {
		formatted := subtitle.FormatTime(seconds)
		parsed, err := subtitle.ParseTime(formatted)
		if err != nil {
			t.Fatalf("ParseTime(%q): %v", formatted, err)
		}
		if math.Abs(parsed-seconds) > 0.001 {
			t.Errorf("round trip of %v via %q came back %v", seconds, formatted, parsed)
		}
	}
}

func TestParseTimeRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"", "1:2", "aa:bb:cc,ddd", "00:00:00.000", "00:00,000"} {
		if _, err := subtitle.ParseTime(bad); err == nil {
			t.Errorf("ParseTime(%q) should fail", bad)
		}
	}
}

func TestSplitProportionalEqualSpans(t *testing.T) {
	captions := subtitle.SplitProportional("First thing. Second thing! Third thing?", 90)
	if len(captions) != 3 {
		t.Fatalf("expected 3 captions, got %d", len(captions))
	}
	for i, c := range captions {
		if !strings.HasSuffix(c.Text, ".") {
			t.Errorf("caption %d not re-terminated: %q", i, c.Text)
		}
		if i > 0 && captions[i-1].End != c.Start {
			t.Errorf("captions %d/%d not contiguous: %v vs %v", i-1, i, captions[i-1].End, c.Start)
		}
		if c.End <= c.Start {
			t.Errorf("caption %d has non-positive span: %+v", i, c)
		}
	}
	if captions[0].Start != 0 {
		t.Errorf("track should start at zero, got %v", captions[0].Start)
	}
	if captions[len(captions)-1].End != 90 {
		t.Errorf("track should cover full duration, got %v", captions[len(captions)-1].End)
	}
}

func TestSplitProportionalFragmentIsTerminated(t *testing.T) {
	captions := subtitle.SplitProportional("just a fragment with no terminator", 30)
	if len(captions) != 1 {
		t.Fatalf("expected single caption, got %d", len(captions))
	}
	c := captions[0]
	if c.Start != 0 || c.End != 30 {
		t.Fatalf("caption should span whole duration, got %+v", c)
	}
	if c.Text != "just a fragment with no terminator." {
		t.Fatalf("fragment should be re-terminated, got %q", c.Text)
	}
}

func TestSplitProportionalPunctuationOnly(t *testing.T) {
	// Terminator-only input yields no sentences, so the raw text survives as
	// one caption spanning the whole duration.
	captions := subtitle.SplitProportional("...", 10)
	if len(captions) != 1 {
		t.Fatalf("expected single caption, got %d", len(captions))
	}
	c := captions[0]
	if c.Start != 0 || c.End != 10 {
		t.Fatalf("caption should span whole duration, got %+v", c)
	}
	if c.Text != "..." {
		t.Fatalf("raw text should be preserved, got %q", c.Text)
	}
}

func TestSplitProportionalEmpty(t *testing.T) {
	if got := subtitle.SplitProportional("   ", 10); got != nil {
		t.Fatalf("whitespace input should yield nothing, got %v", got)
	}
}

func TestGroupTokensWordCapAndSentenceBreak(t *testing.T) {
	var tokens []subtitle.Token
	// Nine words ending in a period, then more words with no terminator.
	words := []string{"The", " quick", " brown", " fox", " jumps", " over", " the", " lazy", " dog.", " then", " it", " keeps", " going", " and", " going", " and", " going", " some", " more", " words"}
	for i, w := range words {
		tokens = append(tokens, subtitle.Token{Text: w, Offset: float64(i)})
	}
	captions := subtitle.GroupTokens(tokens)
	if len(captions) < 2 {
		t.Fatalf("expected multiple captions, got %d", len(captions))
	}
	if captions[0].Text != "The quick brown fox jumps over the lazy dog." {
		t.Fatalf("first caption should close at sentence end past 8 words, got %q", captions[0].Text)
	}
	for i, c := range captions {
		wordTotal := len(strings.Fields(c.Text))
		if wordTotal < 1 || wordTotal > 12 {
			t.Errorf("caption %d word count %d outside 1..12: %q", i, wordTotal, c.Text)
		}
		if i+1 < len(captions) && c.End != captions[i+1].Start {
			t.Errorf("caption %d end %v should meet next start %v", i, c.End, captions[i+1].Start)
		}
	}
	last := captions[len(captions)-1]
	wantEnd := tokens[len(tokens)-1].Offset + 0.5
	if last.End != wantEnd {
		t.Errorf("final caption end = %v, want last offset + buffer = %v", last.End, wantEnd)
	}
}

func TestGroupTokensEmpty(t *testing.T) {
	if got := subtitle.GroupTokens(nil); got != nil {
		t.Fatalf("expected nil for empty token stream, got %v", got)
	}
}

func TestSegmentCaptionsSkipsBlankText(t *testing.T) {
	captions := subtitle.SegmentCaptions([]subtitle.Segment{
		{StartMS: 0, EndMS: 1200, Text: " hello "},
		{StartMS: 1200, EndMS: 2000, Text: "   "},
		{StartMS: 2000, EndMS: 3500, Text: "world"},
	})
	if len(captions) != 2 {
		t.Fatalf("expected 2 captions, got %d", len(captions))
	}
	if captions[0].Text != "hello" || captions[1].Text != "world" {
		t.Fatalf("unexpected caption text: %+v", captions)
	}
	if captions[1].Start != 2.0 || captions[1].End != 3.5 {
		t.Fatalf("millisecond conversion wrong: %+v", captions[1])
	}
}

func TestRenderSRT(t *testing.T) {
	doc := subtitle.RenderSRT([]subtitle.Caption{
		{Start: 0, End: 2.5, Text: "Hello."},
		{Start: 2.5, End: 4, Text: "World."},
	})
	want := "1\n00:00:00,000 --> 00:00:02,500\nHello.\n\n2\n00:00:02,500 --> 00:00:04,000\nWorld.\n\n"
	if doc != want {
		t.Fatalf("RenderSRT = %q, want %q", doc, want)
	}
}
