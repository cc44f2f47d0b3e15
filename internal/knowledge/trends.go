// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/pdiddy/claimgraph/internal/lexicon"
	"github.com/pdiddy/claimgraph/pkg/types"
)

// TrendKeys are the predicate keys whose values are methods a field can
// converge on.
var TrendKeys = []string{lexicon.KeyArchitecture, lexicon.KeyDataset, lexicon.KeyOptimizer}

// SaturatedShare is the document share above which a method counts as
// saturated. A method named by a single document is never saturated.
const SaturatedShare = 0.5

// Trend is how widely one method is used among the documents that state
// any value for its key.
type Trend struct {
	Key  string `json:"key" yaml:"key"`
	Name string `json:"name" yaml:"name"`

	// Documents name the method, in document order.
	Documents []string `json:"documents" yaml:"documents"`

	// Share is len(Documents) over the documents stating the key.
	Share float64 `json:"share" yaml:"share"`

	// Score is 1.5*Share clamped to [0.1, 0.99], rounded to four places.
	Score     float64 `json:"score" yaml:"score"`
	Saturated bool    `json:"saturated" yaml:"saturated"`

	// Claims holds the first claim of each document naming the method.
	Claims []types.Claim `json:"claims" yaml:"claims"`
}

// TrendReport lists method trends per key.
type TrendReport struct {
	Revision int64 `json:"revision" yaml:"revision"`

	// Totals counts the documents stating each key.
	Totals map[string]int `json:"totals" yaml:"totals"`
	Trends []Trend        `json:"trends" yaml:"trends"`
}

// Saturated returns the saturated trends in report order.
func (r TrendReport) Saturated() []Trend {
	var out []Trend
	for _, t := range r.Trends {
		if t.Saturated {
			out = append(out, t)
		}
	}
	return out
}

// TrendReport measures how many documents use each architecture, dataset
// and optimizer among active claims, optionally restricted to docIDs.
// Counting documents rather than claims keeps one verbose paper from
// dominating. Trends are ordered by key, then by document count
// descending, then by name.
func (s *Store) TrendReport(ctx context.Context, docIDs []string) (TrendReport, error) {
	g, err := s.GetSubgraph(ctx, SubgraphQuery{Keys: TrendKeys, DocumentIDs: docIDs})
	if err != nil {
		return TrendReport{}, err
	}

	type method struct{ key, name string }
	byMethod := make(map[method]*Trend)
	stating := make(map[string]map[string]bool)
	for _, c := range g.Claims {
		if stating[c.Predicate.Key] == nil {
			stating[c.Predicate.Key] = make(map[string]bool)
		}
		stating[c.Predicate.Key][c.DocumentID] = true

		m := method{c.Predicate.Key, c.Predicate.Value}
		t, ok := byMethod[m]
		if !ok {
			t = &Trend{Key: m.key, Name: m.name}
			byMethod[m] = t
		}
		if !slices.Contains(t.Documents, c.DocumentID) {
			t.Documents = append(t.Documents, c.DocumentID)
			t.Claims = append(t.Claims, c)
		}
	}

	report := TrendReport{Revision: g.Revision, Totals: make(map[string]int, len(stating))}
	for key, docs := range stating {
		report.Totals[key] = len(docs)
	}
	for _, t := range byMethod {
		t.Share = float64(len(t.Documents)) / float64(report.Totals[t.Key])
		t.Score = saturationScore(t.Share)
		t.Saturated = len(t.Documents) > 1 && t.Share > SaturatedShare
		report.Trends = append(report.Trends, *t)
	}
	slices.SortFunc(report.Trends, func(a, b Trend) int {
		if c := cmp.Compare(a.Key, b.Key); c != 0 {
			return c
		}
		if c := cmp.Compare(len(b.Documents), len(a.Documents)); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return report, nil
}

func saturationScore(share float64) float64 {
	score := min(max(share*1.5, 0.1), 0.99)
	return math.Round(score*1e4) / 1e4
}
