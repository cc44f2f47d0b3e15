// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"cmp"
	"context"
	"slices"

	"github.com/pdiddy/claimgraph/internal/lexicon"
	"github.com/pdiddy/claimgraph/pkg/types"
)

// Gap is one limitation category and the active limitation claims that
// report it.
type Gap struct {
	Category  string        `json:"category" yaml:"category"`
	Documents []string      `json:"documents" yaml:"documents"`
	Claims    []types.Claim `json:"claims" yaml:"claims"`
}

// GapReport groups limitation claims by category.
type GapReport struct {
	Revision int64 `json:"revision" yaml:"revision"`
	Gaps     []Gap `json:"gaps" yaml:"gaps"`
}

// GapReport aggregates active limitation claims, optionally restricted to
// docIDs. Gaps reported by more documents come first; ties break by
// category name.
func (s *Store) GapReport(ctx context.Context, docIDs []string) (GapReport, error) {
	g, err := s.GetSubgraph(ctx, SubgraphQuery{
		Keys:        []string{lexicon.KeyLimitation},
		Kinds:       []types.ClaimKind{types.KindLimitation},
		DocumentIDs: docIDs,
	})
	if err != nil {
		return GapReport{}, err
	}

	byCategory := make(map[string]*Gap)
	var order []*Gap
	for _, c := range g.Claims {
		gap, ok := byCategory[c.Predicate.Value]
		if !ok {
			gap = &Gap{Category: c.Predicate.Value}
			byCategory[c.Predicate.Value] = gap
			order = append(order, gap)
		}
		gap.Claims = append(gap.Claims, c)
		if !slices.Contains(gap.Documents, c.DocumentID) {
			gap.Documents = append(gap.Documents, c.DocumentID)
		}
	}

	report := GapReport{Revision: g.Revision}
	for _, gap := range order {
		report.Gaps = append(report.Gaps, *gap)
	}
	slices.SortStableFunc(report.Gaps, func(a, b Gap) int {
		if c := cmp.Compare(len(b.Documents), len(a.Documents)); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return report, nil
}
