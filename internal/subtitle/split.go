package subtitle

import (
	"strings"

	"github.com/olivier-w/zinc/internal/textutil"
)

// finalTokenBuffer extends the last grouped caption past its final token,
// since token offsets mark starts rather than ends.
const finalTokenBuffer = 0.5

// SplitProportional synthesizes captions from plain text with no timing
// information. The text is divided on sentence terminators and each sentence
// receives an equal share of the total duration; word-level timing is never
// recovered, only order. Text without any terminator becomes a single caption
// spanning the whole duration.
func SplitProportional(text string, duration float64) []Caption {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	sentences := textutil.SplitSentences(trimmed)
	if len(sentences) == 0 {
		return []Caption{{Start: 0, End: duration, Text: trimmed}}
	}

	span := duration / float64(len(sentences))
	captions := make([]Caption, 0, len(sentences))
	for i, sentence := range sentences {
		start := float64(i) * span
		end := float64(i+1) * span
		if i == len(sentences)-1 {
			// absorb float drift so the track covers the input exactly
			end = duration
		}
		captions = append(captions, Caption{Start: start, End: end, Text: sentence + "."})
	}
	return captions
}

// GroupTokens synthesizes captions from token/offset pairs. Tokens accumulate
// into a caption until a sentence terminator lands past eight words, the
// twelve-word cap is hit, or the stream ends. A caption ends where the next
// token starts; the final caption gets a fixed trailing buffer.
func GroupTokens(tokens []Token) []Caption {
	if len(tokens) == 0 {
		return nil
	}

	var captions []Caption
	var current strings.Builder
	groupStart := 0
	wordCount := 0

	for i, tok := range tokens {
		current.WriteString(tok.Text)
		if strings.HasPrefix(tok.Text, " ") || i == 0 {
			wordCount++
		}

		sentenceEnd := textutil.EndsSentence(tok.Text)
		shouldBreak := (wordCount >= 8 && sentenceEnd) || wordCount >= 12 || i == len(tokens)-1
		if !shouldBreak {
			continue
		}
		text := strings.TrimSpace(current.String())
		if text != "" {
			start := tokens[groupStart].Offset
			var end float64
			if i+1 < len(tokens) {
				end = tokens[i+1].Offset
			} else {
				end = tok.Offset + finalTokenBuffer
			}
			captions = append(captions, Caption{Start: start, End: end, Text: text})
		}
		groupStart = i + 1
		current.Reset()
		wordCount = 0
	}
	return captions
}
