// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package answer

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/claimgraph/internal/contradict"
	"github.com/pdiddy/claimgraph/internal/docstore"
	"github.com/pdiddy/claimgraph/internal/extract"
	"github.com/pdiddy/claimgraph/internal/knowledge"
	"github.com/pdiddy/claimgraph/internal/lexicon"
	"github.com/pdiddy/claimgraph/internal/segment"
	"github.com/pdiddy/claimgraph/internal/sqlite"
	"github.com/pdiddy/claimgraph/pkg/types"
)

// countingGraph records how often evidence is retrieved.
type countingGraph struct {
	*knowledge.Store
	reads atomic.Int32
}

func (g *countingGraph) TrendReport(ctx context.Context, docIDs []string) (knowledge.TrendReport, error) {
	g.reads.Add(1)
	return g.Store.TrendReport(ctx, docIDs)
}

func (g *countingGraph) GetSubgraph(ctx context.Context, q knowledge.SubgraphQuery) (knowledge.Subgraph, error) {
	g.reads.Add(1)
	return g.Store.GetSubgraph(ctx, q)
}

type fixture struct {
	graph *countingGraph
	docs  *docstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	docs, err := docstore.New(db, dir)
	require.NoError(t, err)
	graph, err := knowledge.New(db)
	require.NoError(t, err)
	return &fixture{graph: &countingGraph{Store: graph}, docs: docs}
}

// add stores a document with the given page text and runs extraction and
// contradiction detection over it.
func (f *fixture) add(t *testing.T, filename string, pages ...string) types.Document {
	t.Helper()
	ctx := context.Background()
	doc, _, err := f.docs.Put(ctx, filename, []byte(filename+"\x00"+strings.Join(pages, "\f")))
	require.NoError(t, err)

	ex := extract.New()
	var claims []types.Claim
	for _, seg := range segment.NewSequence(doc.ID, pages, 3).Collect() {
		claims = append(claims, ex.Extract(seg).Claims...)
	}
	inserted, err := f.graph.UpsertClaims(ctx, extract.ResolveSubjects(claims))
	require.NoError(t, err)
	_, err = contradict.New(f.graph.Store).Scan(ctx, inserted)
	require.NoError(t, err)
	return doc
}

func (f *fixture) engine(cfg types.QueryConfig) *Engine {
	return New(f.graph, f.docs, cfg, nil)
}

const (
	adamPage = "We train the ResNet-50 network with Adam at a learning rate of 0.001 for 90 epochs.\n\n" +
		"A key limitation is that the method relies on a small dataset of labeled scans."
	sgdPage = "Our ResNet model is trained using stochastic gradient descent with momentum for 90 epochs.\n\n" +
		"We evaluate on ImageNet."
)

func TestMatchQuestion(t *testing.T) {
	tests := []struct {
		question string
		keys     []string
		preds    []types.Predicate
		prefixes []string
		gaps     bool
		trends   bool
	}{
		{
			question: "What optimizer is used?",
			keys:     []string{lexicon.KeyOptimizer},
		},
		{
			question: "Which papers use Adam?",
			preds:    []types.Predicate{{Key: lexicon.KeyOptimizer, Value: "adam"}},
		},
		{
			question: "What learning rate and batch size were used?",
			keys:     []string{lexicon.KeyLearningRate, lexicon.KeyBatchSize},
		},
		{
			question: "What accuracy does the model achieve?",
			keys:     []string{"result.accuracy"},
			preds:    []types.Predicate{{Key: lexicon.KeyMetric, Value: "accuracy"}},
			prefixes: []string{lexicon.ResultPrefix},
		},
		{
			question: "What are the research gaps?",
			keys:     []string{lexicon.KeyLimitation},
			gaps:     true,
		},
		{
			question: "Which methods are saturated?",
			trends:   true,
		},
		{
			question: "What are the trends in optimizers?",
			keys:     []string{lexicon.KeyOptimizer},
			trends:   true,
		},
		{
			question: "What color is the cover page?",
		},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			m := MatchQuestion(tt.question)
			assert.Equal(t, tt.keys, m.Keys)
			assert.Equal(t, tt.preds, m.Predicates)
			assert.Equal(t, tt.prefixes, m.KeyPrefixes)
			assert.Equal(t, tt.gaps, m.Gaps)
			assert.Equal(t, tt.trends, m.Trends)
		})
	}
	assert.True(t, MatchQuestion("What color is the cover page?").Empty())
}

func TestOptimizerQuestionCitesBothPapers(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "adam.pdf", adamPage)
	b := f.add(t, "sgd.pdf", sgdPage)

	ans, err := f.engine(types.QueryConfig{MaxClaims: 50}).Answer(context.Background(),
		types.Question{Text: "What optimizer is used?"})
	require.NoError(t, err)
	require.False(t, ans.Refused())

	require.Len(t, ans.Citations, 2)
	cited := map[string]bool{}
	for _, c := range ans.Citations {
		cited[c.DocumentID] = true
		assert.Equal(t, 1, c.Page)
		assert.NotEmpty(t, c.ClaimID)
	}
	assert.True(t, cited[a.ID])
	assert.True(t, cited[b.ID])

	assert.Contains(t, ans.Text, "adam.pdf, page 1")
	assert.Contains(t, ans.Text, "sgd.pdf, page 1")
	assert.Contains(t, ans.Text, `"We train the ResNet-50 network with Adam at a learning rate of 0.001 for 90 epochs."`)
	assert.Contains(t, ans.Text, "Contradictions (1):")
	assert.Contains(t, ans.Text, "optimizer for resnet disagrees")
}

func TestAnswerIsGroundedInRetrievedClaims(t *testing.T) {
	f := newFixture(t)
	f.add(t, "adam.pdf", adamPage)
	f.add(t, "sgd.pdf", sgdPage)

	ans, err := f.engine(types.QueryConfig{MaxClaims: 50}).Answer(context.Background(),
		types.Question{Text: "How many epochs?"})
	require.NoError(t, err)
	require.False(t, ans.Refused())

	g, err := f.graph.Store.GetSubgraph(context.Background(), knowledge.SubgraphQuery{Keys: []string{lexicon.KeyEpochs}})
	require.NoError(t, err)
	require.Len(t, ans.Citations, len(g.Claims))
	for _, c := range ans.Citations {
		claim, ok := g.Claim(c.ClaimID)
		require.True(t, ok, "citation %s not in the subgraph", c.ClaimID)
		assert.Equal(t, claim.Page, c.Page)
		assert.Contains(t, ans.Text, claim.RawText)
	}
	assert.NotContains(t, ans.Text, "Contradictions", "90 epochs agree")
}

func TestRefusals(t *testing.T) {
	f := newFixture(t)
	f.add(t, "adam.pdf", adamPage)
	e := f.engine(types.QueryConfig{MaxClaims: 50})
	ctx := context.Background()

	cover, err := e.Answer(ctx, types.Question{Text: "What color is the cover page?"})
	require.NoError(t, err)
	require.True(t, cover.Refused())
	assert.Equal(t, types.RefusalNoEvidence, cover.Refusal.Reason)
	assert.Empty(t, cover.Text)
	assert.Empty(t, cover.Citations)

	batch, err := e.Answer(ctx, types.Question{Text: "What batch size is used?"})
	require.NoError(t, err)
	require.True(t, batch.Refused(), "no paper states a batch size")
	assert.Equal(t, types.RefusalNoEvidence, batch.Refusal.Reason)

	other, err := e.Answer(ctx, types.Question{Text: "What optimizer is used?", DocumentIDs: []string{"unknown"}})
	require.NoError(t, err)
	assert.True(t, other.Refused(), "document filter excludes every claim")
}

func TestAnswerIsDeterministic(t *testing.T) {
	f := newFixture(t)
	f.add(t, "adam.pdf", adamPage)
	f.add(t, "sgd.pdf", sgdPage)
	ctx := context.Background()

	// Uncached engines recompute every time.
	e1 := f.engine(types.QueryConfig{MaxClaims: 50})
	e2 := f.engine(types.QueryConfig{MaxClaims: 50})
	q := types.Question{Text: "Which optimizer, learning rate and epochs were used?"}
	first, err := e1.Answer(ctx, q)
	require.NoError(t, err)
	for range 3 {
		again, err := e2.Answer(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAnswerCacheFollowsRevision(t *testing.T) {
	f := newFixture(t)
	f.add(t, "adam.pdf", adamPage)
	ctx := context.Background()
	e := f.engine(types.QueryConfig{MaxClaims: 50, CacheTTL: time.Minute})

	q := types.Question{Text: "What optimizer is used?"}
	first, err := e.Answer(ctx, q)
	require.NoError(t, err)
	require.Len(t, first.Citations, 1)
	assert.EqualValues(t, 1, f.graph.reads.Load())

	// Normalized wording hits the cache and matches recomputation.
	hit, err := e.Answer(ctx, types.Question{Text: "  what OPTIMIZER is used"})
	require.NoError(t, err)
	assert.Equal(t, first, hit)
	assert.EqualValues(t, 1, f.graph.reads.Load())

	recomputed, err := f.engine(types.QueryConfig{MaxClaims: 50}).Answer(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, first, recomputed)

	// A new document moves the revision and the cached answer is not reused.
	f.add(t, "sgd.pdf", sgdPage)
	after, err := e.Answer(ctx, q)
	require.NoError(t, err)
	assert.Greater(t, after.Revision, first.Revision)
	assert.Len(t, after.Citations, 2)
}

func TestMaxClaimsCapsQuotes(t *testing.T) {
	f := newFixture(t)
	f.add(t, "adam.pdf", adamPage)
	f.add(t, "sgd.pdf", sgdPage)

	ans, err := f.engine(types.QueryConfig{MaxClaims: 1}).Answer(context.Background(),
		types.Question{Text: "What optimizer is used?"})
	require.NoError(t, err)
	require.Len(t, ans.Citations, 1)
	assert.Contains(t, ans.Text, "Showing the first 1 claim.")
	assert.NotContains(t, ans.Text, "Contradictions", "the other endpoint was cut")
}

func TestResearchGaps(t *testing.T) {
	f := newFixture(t)
	f.add(t, "adam.pdf", adamPage)
	f.add(t, "robust.pdf", "A major limitation is that the model is not robust to noisy inputs.")
	ctx := context.Background()
	e := f.engine(types.QueryConfig{MaxClaims: 50})

	ans, err := e.Answer(ctx, types.Question{Text: "What are the research gaps?"})
	require.NoError(t, err)
	require.False(t, ans.Refused())
	assert.Contains(t, ans.Text, "Research gaps reported by the papers:")
	assert.Contains(t, ans.Text, "data (1 document):")
	assert.Contains(t, ans.Text, "robustness (1 document):")
	assert.Len(t, ans.Citations, 2)

	empty := newFixture(t)
	empty.add(t, "sgd.pdf", sgdPage)
	refused, err := empty.engine(types.QueryConfig{}).Answer(ctx, types.Question{Text: "What are the research gaps?"})
	require.NoError(t, err)
	assert.True(t, refused.Refused())
}

const bertPage = "We fine-tune the BERT language model using Adam for 3 epochs."

func TestMethodTrends(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "adam.pdf", adamPage)
	f.add(t, "sgd.pdf", sgdPage)
	f.add(t, "bert.pdf", bertPage)
	ctx := context.Background()
	e := f.engine(types.QueryConfig{MaxClaims: 50})

	ans, err := e.Answer(ctx, types.Question{Text: "Which methods are saturated?"})
	require.NoError(t, err)
	require.False(t, ans.Refused())
	assert.Contains(t, ans.Text, "Method trends across the papers:")
	assert.Contains(t, ans.Text, "architecture (3 documents):")
	assert.Contains(t, ans.Text, "resnet: 2 of 3 documents, score 0.99, saturated")
	assert.Contains(t, ans.Text, "bert: 1 of 3 documents, score 0.50, not saturated")
	assert.Contains(t, ans.Text, "adam: 2 of 3 documents, score 0.99, saturated")
	assert.Contains(t, ans.Text, "sgd: 1 of 3 documents, score 0.50, not saturated")
	assert.Contains(t, ans.Text, "(adam.pdf, page 1)")
	assert.NotEmpty(t, ans.Citations)
	for _, c := range ans.Citations {
		assert.NotEmpty(t, c.ClaimID)
		assert.Equal(t, 1, c.Page)
	}

	// Naming a key narrows the report.
	opt, err := e.Answer(ctx, types.Question{Text: "What are the trends in optimizers?"})
	require.NoError(t, err)
	assert.Contains(t, opt.Text, "optimizer (3 documents):")
	assert.NotContains(t, opt.Text, "architecture")
	assert.Len(t, opt.Citations, 3, "adam in two documents, sgd in one")

	// One document shares nothing with any other.
	single, err := e.Answer(ctx, types.Question{Text: "Which methods are saturated?", DocumentIDs: []string{a.ID}})
	require.NoError(t, err)
	assert.NotContains(t, single.Text, ", saturated")

	empty := newFixture(t)
	empty.add(t, "robust.pdf", "A major limitation is that the model is not robust to noisy inputs.")
	refused, err := empty.engine(types.QueryConfig{}).Answer(ctx, types.Question{Text: "Which methods are saturated?"})
	require.NoError(t, err)
	assert.True(t, refused.Refused())
}
