// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"regexp"
	"strings"

	"github.com/pdiddy/claimgraph/internal/lexicon"
	"github.com/pdiddy/claimgraph/pkg/types"
)

// numberPattern matches decimals, exponents and "x 10^-n" forms.
const numberPattern = `(10\^[-−]?\d+|\d[\d,]*(?:\.\d+)?(?:[eE][-+−]?\d+)?(?:\s*[x×]\s*10\^[-−]?\d+)?)`

var (
	trainingCueRe = regexp.MustCompile(`(?i)\b(optimi[sz]|train|use[sd]?|using|employ|adopt|minimi[sz]|fine-tun)`)
	modelCueRe    = regexp.MustCompile(`(?i)\b(we|our|model|based on|built on|backbone|architecture|propose|use[sd]?|using|employ|adopt)\b`)
	evalCueRe     = regexp.MustCompile(`(?i)\b(evaluat|measur|report|metric|score|assess)`)

	learningRateRe = regexp.MustCompile(`(?i)\b(?:learning[\s-]+rate|lr)\b[^0-9]{0,30}?` + numberPattern)
	batchSizeRe    = regexp.MustCompile(`(?i)\b(?:batch[\s-]+size\b[^0-9]{0,30}?|(?:mini-?)?batch(?:es)? of\s+)(\d[\d,]*)`)
	epochsRe       = regexp.MustCompile(`(?i)\b(\d[\d,]*)\s+(?:training\s+)?epochs\b|\bepochs?\s*(?:=|:|of|to)\s*(\d[\d,]*)`)

	// contrastCueRe opens a clause about someone else's method.
	contrastCueRe = regexp.MustCompile(`(?i)\b(unlike|in contrast (?:to|with)|contrary to|compared (?:to|with)|as opposed to|instead of|rather than|whereas|(?:prior|previous|earlier|existing|related) (?:work|works|methods?|approaches|studies)|baselines?)\b`)
	// ownClauseRe marks where the authors return to their own method.
	ownClauseRe = regexp.MustCompile(`(?i)[,;:]\s*(?:we|our|here|in this (?:work|paper))\b`)
)

// extractMethodology finds training setup facts: optimizer, learning rate,
// batch size, epochs, architecture and evaluation metrics. Mentions inside
// contrast clauses ("unlike prior work that used SGD") describe other work
// and are skipped. Comparable facts carry the architecture they are about:
// the one named in the sentence, else the first one the segment names.
func extractMethodology(_ types.Segment, sentences []string) (output, error) {
	var out output
	segSubject := segmentSubject(sentences)

	for _, s := range sentences {
		spans := contrastSpans(s)
		subject := segSubject
		if archs := ownMentions(lexicon.Architectures, s, spans); len(archs) > 0 {
			subject = archs[0]
		}
		add := func(key, value string) {
			d := draft{
				kind:      types.KindMethodology,
				predicate: types.Predicate{Key: key, Value: value},
				raw:       s,
			}
			if lexicon.Comparable(key) {
				d.subject = subject
			}
			out.claims = append(out.claims, d)
		}

		if trainingCueRe.MatchString(s) {
			for _, name := range ownMentions(lexicon.Optimizers, s, spans) {
				add(lexicon.KeyOptimizer, name)
			}
		}
		if m := firstOwnMatch(learningRateRe, s, spans); m != nil {
			if v, ok := lexicon.NormalizeNumber(m[1]); ok {
				add(lexicon.KeyLearningRate, v)
			}
		}
		if m := firstOwnMatch(batchSizeRe, s, spans); m != nil {
			if v, ok := lexicon.NormalizeNumber(m[1]); ok {
				add(lexicon.KeyBatchSize, v)
			}
		}
		if m := firstOwnMatch(epochsRe, s, spans); m != nil {
			n := m[1]
			if n == "" {
				n = m[2]
			}
			if v, ok := lexicon.NormalizeNumber(n); ok {
				add(lexicon.KeyEpochs, v)
			}
		}
		if modelCueRe.MatchString(s) {
			for _, name := range ownMentions(lexicon.Architectures, s, spans) {
				add(lexicon.KeyArchitecture, name)
			}
		}
		if evalCueRe.MatchString(s) {
			for _, name := range lexicon.Metrics.FindAll(s) {
				add(lexicon.KeyMetric, name)
			}
		}
	}
	return out, nil
}

// contrastSpans returns the byte ranges of s that describe other work: from
// a contrast cue up to the clause where the authors speak of their own
// method again, or to the end of the sentence.
func contrastSpans(s string) [][2]int {
	var spans [][2]int
	for _, loc := range contrastCueRe.FindAllStringIndex(s, -1) {
		if n := len(spans); n > 0 && loc[0] < spans[n-1][1] {
			continue
		}
		end := len(s)
		if m := ownClauseRe.FindStringIndex(s[loc[1]:]); m != nil {
			end = loc[1] + m[0]
		}
		spans = append(spans, [2]int{loc[0], end})
	}
	return spans
}

func inSpans(spans [][2]int, pos int) bool {
	for _, sp := range spans {
		if pos >= sp[0] && pos < sp[1] {
			return true
		}
	}
	return false
}

// ownMentions returns the canonical names of t mentioned outside spans,
// each once, in order of first mention.
func ownMentions(t *lexicon.Table, s string, spans [][2]int) []string {
	var out []string
	for _, m := range t.Mentions(s) {
		if !inSpans(spans, m.Start) {
			out = appendUnique(out, m.Name)
		}
	}
	return out
}

// firstOwnMatch is FindStringSubmatch restricted to matches that start
// outside spans.
func firstOwnMatch(re *regexp.Regexp, s string, spans [][2]int) []string {
	for _, loc := range re.FindAllStringSubmatchIndex(s, -1) {
		if inSpans(spans, loc[0]) {
			continue
		}
		m := make([]string, len(loc)/2)
		for i := range m {
			if loc[2*i] >= 0 {
				m[i] = s[loc[2*i]:loc[2*i+1]]
			}
		}
		return m
	}
	return nil
}

// segmentSubject is the first architecture the segment attributes to the
// authors, or "" when it names none.
func segmentSubject(sentences []string) string {
	for _, s := range sentences {
		if archs := ownMentions(lexicon.Architectures, s, contrastSpans(s)); len(archs) > 0 {
			return archs[0]
		}
	}
	return ""
}

// namedDatasetRe catches datasets missing from the lexicon when the text
// names them explicitly: "the Foo-Bar dataset", "our XYZ corpus".
var namedDatasetRe = regexp.MustCompile(`\b([A-Z][\w-]*[A-Za-z0-9](?:\s[A-Z][\w-]*[A-Za-z0-9])?)\s+(?:dataset|corpus|benchmark)\b`)

// notDatasetNames are capitalized words that precede "dataset" without
// naming one.
var notDatasetNames = map[string]bool{
	"the": true, "this": true, "that": true, "our": true, "each": true, "every": true,
	"a": true, "an": true, "new": true, "same": true, "large": true, "public": true,
	"these": true, "its": true, "their": true, "another": true, "one": true,
}

// extractDatasets emits a dataset claim per named dataset.
func extractDatasets(_ types.Segment, sentences []string) (output, error) {
	var out output
	for _, s := range sentences {
		names := lexicon.Datasets.FindAll(s)
		for _, m := range namedDatasetRe.FindAllStringSubmatch(s, -1) {
			words := strings.Fields(m[1])
			if notDatasetNames[strings.ToLower(words[0])] {
				words = words[1:]
			}
			if len(words) == 0 || notDatasetNames[strings.ToLower(words[0])] {
				continue
			}
			name := strings.Join(words, " ")
			if canon, ok := lexicon.Datasets.Canonical(name); ok {
				name = canon
			} else {
				name = strings.ToLower(name)
			}
			names = appendUnique(names, name)
		}
		for _, name := range names {
			out.claims = append(out.claims, draft{
				kind:      types.KindDataset,
				predicate: types.Predicate{Key: lexicon.KeyDataset, Value: name},
				raw:       s,
			})
		}
	}
	return out, nil
}

var limitationCueRe = regexp.MustCompile(`(?i)\b(limitations?|limited (?:by|to|in)|drawbacks?|shortcomings?|weakness(?:es)?|does not generali[sz]e|fails? to|cannot|is restricted to|future work|remains? (?:an )?open|we do not (?:address|consider|evaluate)|not (?:yet )?(?:addressed|considered|evaluated))\b`)

// extractLimitations emits one limitation claim per limitation sentence,
// keyed by its category.
func extractLimitations(_ types.Segment, sentences []string) (output, error) {
	var out output
	for _, s := range sentences {
		if !limitationCueRe.MatchString(s) {
			continue
		}
		out.claims = append(out.claims, draft{
			kind:      types.KindLimitation,
			predicate: types.Predicate{Key: lexicon.KeyLimitation, Value: lexicon.LimitationCategory(s)},
			raw:       s,
		})
	}
	return out, nil
}

var (
	resultVerbRe   = regexp.MustCompile(`(?i)\b(achiev|obtain|reach|attain|yield|report|outperform|scor|improv)`)
	resultNumberRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(%|percent\b)?`)
	yearLikeRe     = regexp.MustCompile(`^(?:19|20)\d{2}$`)
)

// resultWindow is how far from a metric mention its value may be.
const resultWindow = 40

// extractResults emits result claims ("achieves 94.1% accuracy") of kind
// other, keyed "result.<metric>".
func extractResults(_ types.Segment, sentences []string) (output, error) {
	var out output
	for _, s := range sentences {
		if !resultVerbRe.MatchString(s) {
			continue
		}
		numbers := resultNumberRe.FindAllStringSubmatchIndex(s, -1)
		for _, m := range lexicon.Metrics.Mentions(s) {
			value, ok := nearestValue(s, numbers, m)
			if !ok {
				continue
			}
			out.claims = append(out.claims, draft{
				kind:      types.KindOther,
				predicate: types.Predicate{Key: lexicon.ResultPrefix + strings.ReplaceAll(m.Name, " ", "_"), Value: value},
				raw:       s,
			})
		}
	}
	return out, nil
}

// nearestValue picks the number closest to the mention within
// resultWindow bytes, skipping years and bracketed citation labels.
func nearestValue(s string, numbers [][]int, m lexicon.Mention) (string, bool) {
	best, bestDist := "", resultWindow+1
	for _, n := range numbers {
		start, end := n[0], n[1]
		num := s[n[2]:n[3]]
		if n[4] < 0 && yearLikeRe.MatchString(num) {
			continue
		}
		if start > 0 && s[start-1] == '[' {
			continue
		}
		var dist int
		switch {
		case end <= m.Start:
			dist = m.Start - end
		case start >= m.End:
			dist = start - m.End
		default:
			continue
		}
		if dist < bestDist {
			v, ok := lexicon.NormalizeNumber(num)
			if !ok {
				continue
			}
			if n[4] >= 0 {
				v += "%"
			}
			best, bestDist = v, dist
		}
	}
	return best, best != ""
}

// extractCitations emits an edge per inline citation.
func extractCitations(seg types.Segment, _ []string) (output, error) {
	var out output
	for _, c := range ParseCitations(seg.Text) {
		out.citations = append(out.citations, types.CitationEdge{
			FromDocumentID: seg.DocumentID,
			RefKey:         InlineKeyPrefix + c.Key,
			Locator:        c.Context,
			SegmentID:      seg.ID,
			Page:           seg.Page,
		})
	}
	return out, nil
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}
