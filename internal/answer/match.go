// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package answer

import (
	"slices"
	"strings"

	"github.com/pdiddy/claimgraph/internal/knowledge"
	"github.com/pdiddy/claimgraph/internal/lexicon"
	"github.com/pdiddy/claimgraph/pkg/types"
)

// Match is what the lexical matcher recognized in a question.
type Match struct {
	// Keys are predicate keys the question asks about.
	Keys []string `json:"keys,omitempty" yaml:"keys,omitempty"`
	// KeyPrefixes select key families such as every result metric.
	KeyPrefixes []string `json:"key_prefixes,omitempty" yaml:"key_prefixes,omitempty"`
	// Predicates are full predicates named through an entity.
	Predicates []types.Predicate `json:"predicates,omitempty" yaml:"predicates,omitempty"`
	// Gaps is set when the question asks for the research gap report.
	Gaps bool `json:"gaps,omitempty" yaml:"gaps,omitempty"`
	// Trends is set when the question asks which methods are saturated.
	Trends bool `json:"trends,omitempty" yaml:"trends,omitempty"`
}

// Empty reports whether nothing in the question maps to the graph.
func (m Match) Empty() bool {
	return !m.Gaps && !m.Trends && len(m.Keys) == 0 && len(m.KeyPrefixes) == 0 && len(m.Predicates) == 0
}

// Query turns the match into a subgraph query restricted to docIDs.
func (m Match) Query(docIDs []string, limit int) knowledge.SubgraphQuery {
	return knowledge.SubgraphQuery{
		Keys:        m.Keys,
		KeyPrefixes: m.KeyPrefixes,
		Predicates:  m.Predicates,
		DocumentIDs: docIDs,
		Limit:       limit,
	}
}

// entityTables pairs each lexicon table with the predicate key its names
// are values of.
var entityTables = []struct {
	key   string
	table *lexicon.Table
}{
	{lexicon.KeyOptimizer, lexicon.Optimizers},
	{lexicon.KeyArchitecture, lexicon.Architectures},
	{lexicon.KeyDataset, lexicon.Datasets},
	{lexicon.KeyMetric, lexicon.Metrics},
}

// MatchQuestion maps question wording to predicate keys through the
// lexicon's question cues, and named entities to full predicates. The
// result depends only on the text.
func MatchQuestion(text string) Match {
	var m Match
	m.Gaps = lexicon.AsksForGaps(text)
	m.Trends = lexicon.AsksForTrends(text)

	for _, c := range lexicon.QuestionCues {
		if !c.Pattern.MatchString(text) {
			continue
		}
		if c.Key == lexicon.ResultPrefix {
			m.KeyPrefixes = appendUnique(m.KeyPrefixes, c.Key)
			continue
		}
		m.Keys = appendUnique(m.Keys, c.Key)
	}

	for _, et := range entityTables {
		for _, name := range et.table.FindAll(text) {
			p := types.Predicate{Key: et.key, Value: name}
			if !slices.Contains(m.Predicates, p) {
				m.Predicates = append(m.Predicates, p)
			}
			// A named metric also selects the results reported in it.
			if et.key == lexicon.KeyMetric {
				m.Keys = appendUnique(m.Keys, lexicon.ResultPrefix+strings.ReplaceAll(name, " ", "_"))
			}
		}
	}
	return m
}

func appendUnique(list []string, s string) []string {
	if slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}

// normalizeQuestion folds case, whitespace and trailing punctuation so
// trivially different phrasings share a cache entry.
func normalizeQuestion(text string) string {
	text = strings.Join(strings.Fields(strings.ToLower(text)), " ")
	return strings.TrimRight(text, "?!. ")
}
