// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/pdiddy/claimgraph/pkg/types"
)

// Reference key prefixes. An inline citation is keyed by its label until
// linking resolves it against the bibliography.
const (
	InlineKeyPrefix = "ref:"
	BibKeyPrefix    = "bib:"
)

// Citation is an inline citation found in text.
type Citation struct {
	// Key is the label inside the brackets: "3" or "Smith et al., 2020".
	Key string

	// Context is the text around the citation.
	Context string
}

var (
	// numericCiteRe matches numeric citations like [1], [12] and grouped
	// ones like [1, 4].
	numericCiteRe = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

	// authorYearCiteRe matches author-year citations like
	// [Smith et al., 2020] or [Smith and Jones, 2019].
	authorYearCiteRe = regexp.MustCompile(`\[([A-Z][a-z]+(?:\s+(?:et\s+al\.|and\s+[A-Z][a-z]+))?(?:,\s*\d{4}))\]`)

	// bibEntryStartRe matches text that opens with a numbered reference.
	bibEntryStartRe = regexp.MustCompile(`^\[\d+\]\s+\S`)

	// bibEntryRe finds numbered reference labels in a reference list.
	bibEntryRe = regexp.MustCompile(`\[(\d+)\]\s+`)

	// referencesHeadingRe matches a segment that opens the reference list.
	referencesHeadingRe = regexp.MustCompile(`(?i)^(?:\d+\.?\s+)?(references|bibliography)\b[:.]?\s*`)

	// afterReferencesRe matches a segment that ends the reference list.
	afterReferencesRe = regexp.MustCompile(`(?i)^(?:[A-Z]\.?\s+)?(appendix|supplementary)`)
)

// isReferenceList reports whether text is a reference list entry
// ("[1] Smith, A. ...") or opens the reference section.
func isReferenceList(text string) bool {
	if bibEntryStartRe.MatchString(text) {
		return true
	}
	loc := referencesHeadingRe.FindStringIndex(text)
	return loc != nil && (loc[1] == len(text) || bibEntryStartRe.MatchString(text[loc[1]:]))
}

// ParseCitations scans text for inline citations, numeric first, then
// author-year. Each distinct label is returned once.
func ParseCitations(text string) []Citation {
	seen := make(map[string]bool)
	var citations []Citation

	for _, match := range numericCiteRe.FindAllStringSubmatchIndex(text, -1) {
		ctx := extractContext(text, match[0], match[1])
		for _, key := range strings.Split(text[match[2]:match[3]], ",") {
			key = strings.TrimSpace(key)
			if seen[key] {
				continue
			}
			seen[key] = true
			citations = append(citations, Citation{Key: key, Context: ctx})
		}
	}

	for _, match := range authorYearCiteRe.FindAllStringSubmatchIndex(text, -1) {
		key := text[match[2]:match[3]]
		if seen[key] {
			continue
		}
		seen[key] = true
		citations = append(citations, Citation{
			Key:     key,
			Context: extractContext(text, match[0], match[1]),
		})
	}

	return citations
}

// extractContext returns a snippet of surrounding text around a citation.
// It takes up to 40 characters before and after the match boundaries.
func extractContext(text string, start, end int) string {
	const window = 40
	ctxStart := max(start-window, 0)
	ctxEnd := min(end+window, len(text))
	snippet := text[ctxStart:ctxEnd]
	// Trim to word boundaries.
	if ctxStart > 0 {
		if i := strings.IndexByte(snippet, ' '); i >= 0 && i < window {
			snippet = snippet[i+1:]
		}
	}
	if ctxEnd < len(text) {
		if i := strings.LastIndexByte(snippet, ' '); i >= 0 && i > len(snippet)-window {
			snippet = snippet[:i]
		}
	}
	return strings.TrimSpace(snippet)
}

// ParseBibliography finds the reference list among a document's ordered
// segments and parses its numbered entries. It also returns the IDs of the
// segments that form the list, whose bracketed labels are not citations.
func ParseBibliography(segments []types.Segment) ([]types.BibliographyEntry, map[string]bool) {
	refSegments := make(map[string]bool)
	var b strings.Builder
	collecting := false

	for _, seg := range segments {
		if !collecting {
			loc := referencesHeadingRe.FindStringIndex(seg.Text)
			if loc == nil {
				continue
			}
			collecting = true
			refSegments[seg.ID] = true
			b.WriteString(seg.Text[loc[1]:])
			continue
		}
		if afterReferencesRe.MatchString(seg.Text) {
			break
		}
		refSegments[seg.ID] = true
		b.WriteByte(' ')
		b.WriteString(seg.Text)
	}

	text := b.String()
	labels := bibEntryRe.FindAllStringSubmatchIndex(text, -1)
	var entries []types.BibliographyEntry
	for i, m := range labels {
		end := len(text)
		if i+1 < len(labels) {
			end = labels[i+1][0]
		}
		raw := strings.TrimSpace(text[m[1]:end])
		if raw == "" {
			continue
		}
		entries = append(entries, parseBibEntry(text[m[2]:m[3]], raw))
	}
	return entries, refSegments
}

// authorBlockRe matches an author section like "Smith, A. and Jones, B." or
// "Brown, T. et al." at the start of a bibliography entry. It captures the
// author block so we can separate it from the title that follows.
var authorBlockRe = regexp.MustCompile(
	`^((?:[A-Z][a-z]+(?:,\s+[A-Z]\.?)?(?:,?\s+(?:and|&)\s+)?)+(?:\s*et\s+al\.)?)\s*[.]?\s+(.+)$`,
)

// parseBibEntry extracts metadata from a raw bibliography entry string.
// It uses regex to identify the author block, then splits the remainder
// into title and venue.
func parseBibEntry(key, raw string) types.BibliographyEntry {
	entry := types.BibliographyEntry{Key: key}
	entry.Year = extractYear(raw)

	rest := raw
	if m := authorBlockRe.FindStringSubmatch(raw); m != nil {
		entry.Authors = parseAuthors(strings.TrimRight(m[1], ". "))
		rest = m[2]
	}
	parts := splitOnPeriods(rest)
	if len(parts) >= 1 {
		entry.Title = strings.TrimSpace(parts[0])
	}
	if len(parts) >= 2 {
		entry.Venue = cleanVenue(parts[1])
	}
	return entry
}

// yearRe matches a 4-digit year.
var yearRe = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)

// extractYear finds the first 4-digit year (19xx or 20xx) in the text.
func extractYear(text string) string {
	m := yearRe.FindStringSubmatch(text)
	if len(m) >= 2 {
		return m[1]
	}
	return ""
}

// splitOnPeriods splits a bibliography entry into segments at period
// boundaries, but avoids splitting on common abbreviations (et al., e.g.,
// i.e.) and single-letter initials (A., B., J.).
func splitOnPeriods(text string) []string {
	safe := strings.ReplaceAll(text, "et al.", "et al\x00")
	safe = strings.ReplaceAll(safe, "e.g.", "e\x00g\x00")
	safe = strings.ReplaceAll(safe, "i.e.", "i\x00e\x00")
	safe = initialDotRe.ReplaceAllString(safe, "${1}\x00")

	var result []string
	for _, p := range strings.Split(safe, ". ") {
		p = strings.ReplaceAll(p, "\x00", ".")
		p = strings.TrimRight(p, ".")
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// parseAuthors splits an author string on the " and " connector.
func parseAuthors(authorStr string) []string {
	authorStr = strings.TrimSpace(authorStr)
	if authorStr == "" {
		return nil
	}
	var authors []string
	for _, half := range strings.SplitN(authorStr, " and ", 2) {
		half = strings.TrimSpace(half)
		if half != "" {
			authors = append(authors, half)
		}
	}
	return authors
}

// cleanVenue removes the year and trailing punctuation.
func cleanVenue(text string) string {
	text = strings.TrimSpace(text)
	text = yearRe.ReplaceAllString(text, "")
	text = strings.TrimRight(text, "., ")
	return strings.TrimSpace(text)
}

// Link resolves inline citation keys against the bibliography and drops
// edges found inside the reference list itself. A resolved edge is keyed
// by BibKey of its entry and carries the entry's title and year; an
// unresolved edge keeps its inline key.
func Link(edges []types.CitationEdge, bibliography []types.BibliographyEntry, refSegments map[string]bool) []types.CitationEdge {
	byKey := make(map[string]types.BibliographyEntry, len(bibliography))
	for _, e := range bibliography {
		if _, dup := byKey[e.Key]; !dup {
			byKey[e.Key] = e
		}
	}

	linked := make([]types.CitationEdge, 0, len(edges))
	for _, edge := range edges {
		if refSegments[edge.SegmentID] {
			continue
		}
		label, ok := strings.CutPrefix(edge.RefKey, InlineKeyPrefix)
		if ok {
			entry, found := byKey[label]
			if !found {
				entry, found = matchAuthorYear(label, bibliography)
			}
			if found {
				edge.RefKey = BibKey(entry)
				edge.Title = entry.Title
				edge.Year = entry.Year
			}
		}
		linked = append(linked, edge)
	}
	return linked
}

// matchAuthorYear resolves "Smith et al., 2020" to the first entry whose
// first author contains the surname and whose year matches.
func matchAuthorYear(label string, bibliography []types.BibliographyEntry) (types.BibliographyEntry, bool) {
	name, year, ok := strings.Cut(label, ",")
	words := strings.Fields(name)
	if !ok || len(words) == 0 {
		return types.BibliographyEntry{}, false
	}
	surname := words[0]
	year = strings.TrimSpace(year)
	for _, e := range bibliography {
		if e.Year == year && len(e.Authors) > 0 && strings.Contains(e.Authors[0], surname) {
			return e, true
		}
	}
	return types.BibliographyEntry{}, false
}

// maxSlugWords bounds the title words used in a bibliography key.
const maxSlugWords = 8

// BibKey derives a document-independent key for a cited work from its
// title and year, so two papers citing the same work share the key.
func BibKey(e types.BibliographyEntry) string {
	words := strings.FieldsFunc(strings.ToLower(e.Title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) > maxSlugWords {
		words = words[:maxSlugWords]
	}
	slug := strings.Join(words, "-")
	if slug == "" {
		slug = "untitled-" + e.Key
	}
	if e.Year != "" {
		slug += "-" + e.Year
	}
	return BibKeyPrefix + slug
}
