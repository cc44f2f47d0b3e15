// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"regexp"
	"strings"
)

const (
	minSentenceLen = 12
	maxSentenceLen = 600
)

// abbreviations end in a period that does not end a sentence.
var abbreviations = []string{"et al.", "e.g.", "i.e.", "Fig.", "Figs.", "Eq.", "Eqs.", "Sec.", "Tab.", "vs.", "approx.", "cf.", "resp.", "No."}

// initialDotRe matches single-letter initials such as "A." in author lists.
var initialDotRe = regexp.MustCompile(`\b([A-Z])\.`)

// splitSentences splits text on '.', '!' or '?' followed by whitespace.
// Periods in abbreviations and initials do not split. Fragments shorter
// than minSentenceLen or longer than maxSentenceLen are dropped.
func splitSentences(text string) []string {
	safe := text
	for _, a := range abbreviations {
		safe = strings.ReplaceAll(safe, a, strings.ReplaceAll(a, ".", "\x00"))
	}
	safe = initialDotRe.ReplaceAllString(safe, "${1}\x00")

	var sentences []string
	var current strings.Builder
	flush := func() {
		s := strings.TrimSpace(strings.ReplaceAll(current.String(), "\x00", "."))
		if len(s) >= minSentenceLen && len(s) <= maxSentenceLen {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	for i := 0; i < len(safe); i++ {
		ch := safe[i]
		current.WriteByte(ch)
		if ch == '.' || ch == '!' || ch == '?' {
			if i+1 == len(safe) || safe[i+1] == ' ' || safe[i+1] == '\t' || safe[i+1] == '\n' {
				flush()
			}
		}
	}
	flush()
	return sentences
}
