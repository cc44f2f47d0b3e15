// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package answer turns questions into grounded answers. A question is
// matched lexically to predicates, the matching subgraph is read from the
// knowledge store, and the answer is rendered from a fixed template that
// quotes the retrieved claims with their page citations. When nothing is
// retrieved the answer is a typed refusal.
package answer

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	gocache "github.com/patrickmn/go-cache"

	"github.com/pdiddy/claimgraph/internal/knowledge"
	"github.com/pdiddy/claimgraph/internal/logging"
	"github.com/pdiddy/claimgraph/pkg/types"
)

// Graph is the read side of the knowledge store.
type Graph interface {
	Revision(ctx context.Context) (int64, error)
	GetSubgraph(ctx context.Context, q knowledge.SubgraphQuery) (knowledge.Subgraph, error)
	GapReport(ctx context.Context, docIDs []string) (knowledge.GapReport, error)
	TrendReport(ctx context.Context, docIDs []string) (knowledge.TrendReport, error)
}

// Documents resolves document IDs to their stored records for display.
type Documents interface {
	Get(ctx context.Context, id string) (types.Document, error)
}

const (
	msgNoPredicate = "The question does not refer to anything the knowledge graph records."
	msgNoClaims    = "No claim in the knowledge graph supports an answer to this question."
)

// Engine answers questions from the knowledge graph.
type Engine struct {
	graph     Graph
	docs      Documents
	maxClaims int
	cache     *gocache.Cache
	log       *logging.Logger
}

// New returns an engine. Answers are memoized for cfg.CacheTTL; a zero TTL
// disables memoization.
func New(graph Graph, docs Documents, cfg types.QueryConfig, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	e := &Engine{graph: graph, docs: docs, maxClaims: cfg.MaxClaims, log: log}
	if e.maxClaims <= 0 {
		e.maxClaims = types.DefaultConfig().Query.MaxClaims
	}
	if cfg.CacheTTL > 0 {
		e.cache = gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return e
}

// Answer returns a grounded answer or a refusal. The question is matched
// in its normalized form, so equal graph revisions and equal normalized
// questions give identical answers, whether computed or cached.
func (e *Engine) Answer(ctx context.Context, q types.Question) (types.Answer, error) {
	text := normalizeQuestion(q.Text)
	docIDs := normalizeDocIDs(q.DocumentIDs)

	rev, err := e.graph.Revision(ctx)
	if err != nil {
		return types.Answer{}, fmt.Errorf("reading graph revision: %w", err)
	}
	if a, ok := e.cached(rev, text, docIDs); ok {
		e.log.Debug("answer cache hit", "revision", rev)
		return a, nil
	}

	a, err := e.compute(ctx, text, docIDs)
	if err != nil {
		return types.Answer{}, err
	}
	// Stored under the revision the subgraph was read at, which may be
	// newer than rev if a write landed in between.
	e.store(a.Revision, text, docIDs, a)
	return a, nil
}

func (e *Engine) compute(ctx context.Context, text string, docIDs []string) (types.Answer, error) {
	m := MatchQuestion(text)
	if m.Empty() {
		rev, err := e.graph.Revision(ctx)
		if err != nil {
			return types.Answer{}, fmt.Errorf("reading graph revision: %w", err)
		}
		return refusal(rev, msgNoPredicate), nil
	}
	if m.Gaps {
		return e.answerGaps(ctx, docIDs)
	}
	if m.Trends {
		return e.answerTrends(ctx, docIDs, m.Keys)
	}

	// One extra claim tells whether the cap cut anything off.
	g, err := e.graph.GetSubgraph(ctx, m.Query(docIDs, e.maxClaims+1))
	if err != nil {
		return types.Answer{}, fmt.Errorf("retrieving evidence: %w", err)
	}
	if g.Empty() {
		return refusal(g.Revision, msgNoClaims), nil
	}
	truncated := len(g.Claims) > e.maxClaims
	if truncated {
		g = trim(g, e.maxClaims)
	}

	names := e.filenames(ctx, g.Claims)
	var b strings.Builder
	a := types.Answer{Revision: g.Revision}

	keys, byKey := groupByKey(g.Claims)
	for i, key := range keys {
		if i > 0 {
			b.WriteString("\n")
		}
		claims := byKey[key]
		fmt.Fprintf(&b, "%s (%s):\n", key, plural(len(claims), "claim"))
		for _, c := range claims {
			writeClaim(&b, c, names)
			a.Citations = append(a.Citations, citation(c))
		}
	}
	if truncated {
		fmt.Fprintf(&b, "\nShowing the first %s.\n", plural(e.maxClaims, "claim"))
	}
	if len(g.Contradictions) > 0 {
		fmt.Fprintf(&b, "\nContradictions (%d):\n", len(g.Contradictions))
		for _, edge := range g.Contradictions {
			fmt.Fprintf(&b, "- %s\n", edge.Rationale)
		}
	}

	a.Text = b.String()
	return a, nil
}

// answerGaps renders the gap report as limitation categories ordered by
// how many documents report them.
func (e *Engine) answerGaps(ctx context.Context, docIDs []string) (types.Answer, error) {
	report, err := e.graph.GapReport(ctx, docIDs)
	if err != nil {
		return types.Answer{}, fmt.Errorf("building gap report: %w", err)
	}
	if len(report.Gaps) == 0 {
		return refusal(report.Revision, msgNoClaims), nil
	}

	var all []types.Claim
	for _, gap := range report.Gaps {
		all = append(all, gap.Claims...)
	}
	names := e.filenames(ctx, all)

	var b strings.Builder
	a := types.Answer{Revision: report.Revision}
	quoted := 0
	b.WriteString("Research gaps reported by the papers:\n")
	for _, gap := range report.Gaps {
		fmt.Fprintf(&b, "\n%s (%s):\n", gap.Category, plural(len(gap.Documents), "document"))
		for _, c := range gap.Claims {
			if quoted == e.maxClaims {
				break
			}
			writeClaim(&b, c, names)
			a.Citations = append(a.Citations, citation(c))
			quoted++
		}
	}
	a.Text = b.String()
	return a, nil
}

// answerTrends renders how widely each method is used, saturated methods
// first within each key. keys narrows the report to the trend keys the
// question names; with none named every trend key is shown.
func (e *Engine) answerTrends(ctx context.Context, docIDs, keys []string) (types.Answer, error) {
	report, err := e.graph.TrendReport(ctx, docIDs)
	if err != nil {
		return types.Answer{}, fmt.Errorf("building trend report: %w", err)
	}
	var named []string
	for _, k := range keys {
		if slices.Contains(knowledge.TrendKeys, k) {
			named = append(named, k)
		}
	}
	var trends []knowledge.Trend
	for _, t := range report.Trends {
		if len(named) == 0 || slices.Contains(named, t.Key) {
			trends = append(trends, t)
		}
	}
	if len(trends) == 0 {
		return refusal(report.Revision, msgNoClaims), nil
	}
	slices.SortStableFunc(trends, func(a, b knowledge.Trend) int {
		if a.Key != b.Key {
			return strings.Compare(a.Key, b.Key)
		}
		switch {
		case a.Saturated && !b.Saturated:
			return -1
		case b.Saturated && !a.Saturated:
			return 1
		}
		return 0
	})

	var all []types.Claim
	for _, t := range trends {
		all = append(all, t.Claims...)
	}
	names := e.filenames(ctx, all)

	var b strings.Builder
	a := types.Answer{Revision: report.Revision}
	quoted := 0
	b.WriteString("Method trends across the papers:\n")
	key := ""
	for _, t := range trends {
		if t.Key != key {
			key = t.Key
			fmt.Fprintf(&b, "\n%s (%s):\n", key, plural(report.Totals[key], "document"))
		}
		state := "not saturated"
		if t.Saturated {
			state = "saturated"
		}
		fmt.Fprintf(&b, "%s: %d of %s, score %.2f, %s\n",
			t.Name, len(t.Documents), plural(report.Totals[t.Key], "document"), t.Score, state)
		for _, c := range t.Claims {
			if quoted == e.maxClaims {
				break
			}
			writeClaim(&b, c, names)
			a.Citations = append(a.Citations, citation(c))
			quoted++
		}
	}
	a.Text = b.String()
	return a, nil
}

func writeClaim(b *strings.Builder, c types.Claim, names map[string]string) {
	fmt.Fprintf(b, "- %s: %q (%s, page %d) [claim %s]\n",
		c.Predicate.Value, c.RawText, names[c.DocumentID], c.Page, shortID(c.ID))
}

func citation(c types.Claim) types.AnswerCitation {
	return types.AnswerCitation{DocumentID: c.DocumentID, Page: c.Page, ClaimID: c.ID}
}

func refusal(rev int64, msg string) types.Answer {
	return types.Answer{
		Revision: rev,
		Refusal:  &types.Refusal{Reason: types.RefusalNoEvidence, Message: msg},
	}
}

// groupByKey returns the predicate keys in sorted order and the claims of
// each key in their retrieval order.
func groupByKey(claims []types.Claim) ([]string, map[string][]types.Claim) {
	byKey := make(map[string][]types.Claim)
	for _, c := range claims {
		byKey[c.Predicate.Key] = append(byKey[c.Predicate.Key], c)
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, byKey
}

// trim keeps the first n claims and the edges among them.
func trim(g knowledge.Subgraph, n int) knowledge.Subgraph {
	g.Claims = g.Claims[:n]
	kept := make(map[string]bool, n)
	for _, c := range g.Claims {
		kept[c.ID] = true
	}
	var edges []types.ContradictionEdge
	for _, e := range g.Contradictions {
		if kept[e.ClaimA] && kept[e.ClaimB] {
			edges = append(edges, e)
		}
	}
	g.Contradictions = edges
	return g
}

// filenames maps each document of claims to its display name. Documents
// are immutable, so the lookup does not affect determinism; an unknown
// document falls back to its short ID.
func (e *Engine) filenames(ctx context.Context, claims []types.Claim) map[string]string {
	names := make(map[string]string)
	for _, c := range claims {
		if _, ok := names[c.DocumentID]; ok {
			continue
		}
		name := "document " + shortID(c.DocumentID)
		if e.docs != nil {
			if doc, err := e.docs.Get(ctx, c.DocumentID); err == nil && doc.Filename != "" {
				name = doc.Filename
			}
		}
		names[c.DocumentID] = name
	}
	return names
}

func (e *Engine) cached(rev int64, text string, docIDs []string) (types.Answer, bool) {
	if e.cache == nil {
		return types.Answer{}, false
	}
	v, ok := e.cache.Get(cacheKey(rev, text, docIDs))
	if !ok {
		return types.Answer{}, false
	}
	a := v.(types.Answer)
	a.Citations = slices.Clone(a.Citations)
	return a, true
}

func (e *Engine) store(rev int64, text string, docIDs []string, a types.Answer) {
	if e.cache == nil {
		return
	}
	a.Citations = slices.Clone(a.Citations)
	e.cache.Set(cacheKey(rev, text, docIDs), a, gocache.DefaultExpiration)
}

func cacheKey(rev int64, text string, docIDs []string) string {
	return fmt.Sprintf("%d\x00%s\x00%s", rev, text, strings.Join(docIDs, ","))
}

// normalizeDocIDs sorts and deduplicates a document filter.
func normalizeDocIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
