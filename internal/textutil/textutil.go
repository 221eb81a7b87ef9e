// Package textutil provides small text helpers shared across the pipeline:
// display-title derivation from filenames and sentence segmentation used by
// caption synthesis.
package textutil

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DeriveTitle turns a media file path into a human-readable display title.
// Separator runes collapse to single spaces and the result is title-cased.
func DeriveTitle(sourcePath string) string {
	if sourcePath == "" {
		return "Untitled"
	}
	base := filepath.Base(sourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range base {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		title = "Untitled"
	}
	return cases.Title(language.Und).String(title)
}

// SplitSentences divides transcript text on sentence-final punctuation,
// trimming whitespace and dropping empty fragments. The punctuation itself is
// not retained on the fragments.
func SplitSentences(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	sentences := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// EndsSentence reports whether the token's final rune is sentence or clause
// punctuation.
func EndsSentence(token string) bool {
	trimmed := strings.TrimRight(token, " ")
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?', ',':
		return true
	}
	return false
}
