// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package contradict finds claims from different documents that give
// different values for the same single-valued predicate key about the same
// subject, and records each disagreeing pair as a contradiction edge.
package contradict

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/m-mizutani/goerr/v2"

	"github.com/pdiddy/claimgraph/internal/lexicon"
	"github.com/pdiddy/claimgraph/pkg/types"
)

// Graph is the part of the knowledge store the detector reads and writes.
type Graph interface {
	ActiveClaimsByKey(ctx context.Context, key, ruleVersion string) ([]types.Claim, error)
	UpsertContradictions(ctx context.Context, edges []types.ContradictionEdge) ([]types.ContradictionEdge, error)
}

// Detector compares claims under the lexicon's equivalence rules.
type Detector struct {
	graph Graph
}

// New returns a detector over graph.
func New(graph Graph) *Detector {
	return &Detector{graph: graph}
}

type groupKey struct {
	key         string
	ruleVersion string
}

// Scan compares each new claim with a comparable key and a subject against
// the active claims of the same key, subject and rule version in other
// documents. It stores
// an edge for every disagreeing pair and returns the edges that were new.
// The result does not depend on the order documents were ingested in.
func (d *Detector) Scan(ctx context.Context, newClaims []types.Claim) ([]types.ContradictionEdge, error) {
	groups := make(map[groupKey][]types.Claim)
	var order []groupKey
	for _, c := range newClaims {
		if !lexicon.Comparable(c.Predicate.Key) || c.Subject == "" {
			continue
		}
		g := groupKey{c.Predicate.Key, c.RuleVersion}
		if _, ok := groups[g]; !ok {
			order = append(order, g)
		}
		groups[g] = append(groups[g], c)
	}

	found := make(map[[2]string]types.ContradictionEdge)
	for _, g := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		active, err := d.graph.ActiveClaimsByKey(ctx, g.key, g.ruleVersion)
		if err != nil {
			return nil, goerr.Wrap(err, "loading active claims", goerr.V("key", g.key), goerr.V("rule_version", g.ruleVersion))
		}
		for _, n := range groups[g] {
			for _, other := range active {
				if e, ok := compare(n, other); ok {
					found[[2]string{e.ClaimA, e.ClaimB}] = e
				}
			}
		}
	}
	return d.store(ctx, found)
}

// Rescan compares every pair of active claims per comparable key, subject
// and rule version across the whole graph. It is a maintenance operation; ingestion
// uses Scan.
func (d *Detector) Rescan(ctx context.Context) ([]types.ContradictionEdge, error) {
	found := make(map[[2]string]types.ContradictionEdge)
	for _, key := range lexicon.ComparableKeys() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		active, err := d.graph.ActiveClaimsByKey(ctx, key, "")
		if err != nil {
			return nil, goerr.Wrap(err, "loading active claims", goerr.V("key", key))
		}
		for i := range active {
			for j := i + 1; j < len(active); j++ {
				if e, ok := compare(active[i], active[j]); ok {
					found[[2]string{e.ClaimA, e.ClaimB}] = e
				}
			}
		}
	}
	return d.store(ctx, found)
}

func (d *Detector) store(ctx context.Context, found map[[2]string]types.ContradictionEdge) ([]types.ContradictionEdge, error) {
	if len(found) == 0 {
		return nil, nil
	}
	edges := make([]types.ContradictionEdge, 0, len(found))
	for _, e := range found {
		edges = append(edges, e)
	}
	slices.SortFunc(edges, func(a, b types.ContradictionEdge) int {
		if c := cmp.Compare(a.ClaimA, b.ClaimA); c != 0 {
			return c
		}
		return cmp.Compare(a.ClaimB, b.ClaimB)
	})

	inserted, err := d.graph.UpsertContradictions(ctx, edges)
	if err != nil {
		return nil, goerr.Wrap(err, "storing contradictions", goerr.V("count", len(edges)))
	}
	return inserted, nil
}

// compare returns the edge between a and b when they contradict: distinct
// documents, the same key, subject and rule version, and values that are
// not equivalent. Claims without a subject are about no method in
// particular and never contradict. The edge is built from the ordered
// pair so either argument order yields the same edge.
func compare(a, b types.Claim) (types.ContradictionEdge, bool) {
	switch {
	case a.ID == b.ID,
		a.DocumentID == b.DocumentID,
		a.Predicate.Key != b.Predicate.Key,
		a.Subject == "" || a.Subject != b.Subject,
		a.RuleVersion != b.RuleVersion,
		lexicon.Equivalent(a.Predicate.Key, a.Predicate.Value, b.Predicate.Value):
		return types.ContradictionEdge{}, false
	}
	if b.ID < a.ID {
		a, b = b, a
	}
	return types.ContradictionEdge{
		ClaimA:       a.ID,
		ClaimB:       b.ID,
		PredicateKey: a.Predicate.Key,
		Rationale:    Rationale(a, b),
	}, true
}

// Rationale names the subject and both values and quotes both raw texts
// with their document and page.
func Rationale(a, b types.Claim) string {
	return fmt.Sprintf("%s for %s disagrees: %q (document %s, page %d: %q) vs %q (document %s, page %d: %q)",
		a.Predicate.Key, a.Subject,
		a.Predicate.Value, shortID(a.DocumentID), a.Page, a.RawText,
		b.Predicate.Value, shortID(b.DocumentID), b.Page, b.RawText)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
