// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/claimgraph/internal/extract"
	"github.com/pdiddy/claimgraph/internal/sqlite"
	"github.com/pdiddy/claimgraph/pkg/types"
)

// --- test helpers ---

func testStore(t *testing.T) (*Store, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := New(db)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s, db
}

func claim(doc, seg string, page, ordinal int, kind types.ClaimKind, key, value, raw string) types.Claim {
	p := types.Predicate{Key: key, Value: value}
	fp := extract.Fingerprint(kind, raw)
	return types.Claim{
		ID:          extract.ClaimID(doc, seg, kind, p, "", fp),
		DocumentID:  doc,
		SegmentID:   seg,
		Page:        page,
		Ordinal:     ordinal,
		Kind:        kind,
		Predicate:   p,
		RawText:     raw,
		Confidence:  extract.Confidence(raw, kind),
		RuleVersion: extract.RuleVersion,
		Fingerprint: fp,
	}
}

func revision(t *testing.T, db *sqlite.DB) int64 {
	t.Helper()
	rev, err := db.Revision(context.Background())
	require.NoError(t, err)
	return rev
}

func ids(claims []types.Claim) []string {
	var out []string
	for _, c := range claims {
		out = append(out, c.ID)
	}
	return out
}

// --- claims ---

func TestUpsertClaimsIsIdempotent(t *testing.T) {
	s, db := testStore(t)
	ctx := context.Background()
	claims := []types.Claim{
		claim("doc-a", "s1", 1, 0, types.KindMethodology, "optimizer", "adam", "We train with Adam."),
		claim("doc-a", "s2", 2, 0, types.KindDataset, "dataset", "imagenet", "We evaluate on ImageNet."),
	}

	inserted, err := s.UpsertClaims(ctx, claims)
	require.NoError(t, err)
	assert.Len(t, inserted, 2)
	rev := revision(t, db)
	assert.Equal(t, int64(1), rev)

	inserted, err = s.UpsertClaims(ctx, claims)
	require.NoError(t, err)
	assert.Empty(t, inserted)
	assert.Equal(t, rev, revision(t, db), "no-op upsert leaves the revision")

	counts, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Claims)
	assert.Equal(t, 2, counts.ActiveClaims)
}

func TestUpsertClaimsSupersedes(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	old := claim("doc-a", "s1", 1, 0, types.KindMethodology, "optimizer", "adam", "We train with Adam.")
	_, err := s.UpsertClaims(ctx, []types.Claim{old})
	require.NoError(t, err)

	corrected := old
	corrected.RuleVersion = "rules/next"
	corrected.Fingerprint = "0123456789abcdef"
	corrected.ID = extract.ClaimID(old.DocumentID, old.SegmentID, old.Kind, old.Predicate, "", corrected.Fingerprint)

	inserted, err := s.UpsertClaims(ctx, []types.Claim{corrected})
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	assert.Equal(t, old.ID, inserted[0].Supersedes)

	g, err := s.GetSubgraph(ctx, SubgraphQuery{Keys: []string{"optimizer"}})
	require.NoError(t, err)
	assert.Equal(t, []string{corrected.ID}, ids(g.Claims), "only the active claim is visible")

	all, err := s.ClaimsByDocument(ctx, "doc-a")
	require.NoError(t, err)
	assert.Len(t, all, 2, "superseded claims are kept")

	// Re-upserting the superseded claim does not resurrect it.
	inserted, err = s.UpsertClaims(ctx, []types.Claim{old})
	require.NoError(t, err)
	assert.Empty(t, inserted)
}

// underVersion re-derives c as if extracted by another rule version.
func underVersion(c types.Claim, version string) types.Claim {
	c.RuleVersion = version
	c.Fingerprint = extract.Fingerprint(c.Kind, version+"\x00"+c.RawText)
	c.ID = extract.ClaimID(c.DocumentID, c.SegmentID, c.Kind, c.Predicate, c.Subject, c.Fingerprint)
	return c
}

func TestReplaceDocumentClaimsRetiresOlderVersions(t *testing.T) {
	s, db := testStore(t)
	ctx := context.Background()

	const v1, v2 = "rules/v1", "rules/v2"
	adam := underVersion(claim("doc-a", "s1", 1, 0, types.KindMethodology, "optimizer", "adam", "We train with Adam-style updates."), v1)
	epochs := underVersion(claim("doc-a", "s1", 1, 0, types.KindMethodology, "epochs", "90", "We train for 90 epochs."), v1)
	imagenet := underVersion(claim("doc-a", "s2", 2, 0, types.KindDataset, "dataset", "imagenet", "We evaluate on ImageNet."), v1)
	other := underVersion(claim("doc-b", "s9", 1, 0, types.KindMethodology, "optimizer", "sgd", "We use SGD."), v1)

	inserted, retired, err := s.ReplaceDocumentClaims(ctx, "doc-a", v1, []types.Claim{adam, epochs, imagenet})
	require.NoError(t, err)
	assert.Len(t, inserted, 3)
	assert.Zero(t, retired)
	_, err = s.UpsertClaims(ctx, []types.Claim{other})
	require.NoError(t, err)

	// The new rules read the optimizer differently, keep the dataset and
	// no longer emit the epochs claim.
	adamw := underVersion(claim("doc-a", "s1", 1, 0, types.KindMethodology, "optimizer", "adamw", "We train with Adam-style updates."), v2)
	imagenet2 := underVersion(imagenet, v2)

	inserted, retired, err = s.ReplaceDocumentClaims(ctx, "doc-a", v2, []types.Claim{adamw, imagenet2})
	require.NoError(t, err)
	require.Len(t, inserted, 2)
	assert.Equal(t, 2, retired, "adam and epochs have no v2 counterpart")
	assert.Equal(t, imagenet.ID, inserted[1].Supersedes)

	g, err := s.GetSubgraph(ctx, SubgraphQuery{DocumentIDs: []string{"doc-a"}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{adamw.ID, imagenet2.ID}, ids(g.Claims))
	for _, c := range g.Claims {
		assert.Equal(t, v2, c.RuleVersion)
	}

	active, err := s.ActiveClaimsByKey(ctx, "optimizer", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{adamw.ID, other.ID}, ids(active), "other documents are untouched")

	all, err := s.ClaimsByDocument(ctx, "doc-a")
	require.NoError(t, err)
	assert.Len(t, all, 5, "retired claims are kept")

	rev := revision(t, db)
	inserted, retired, err = s.ReplaceDocumentClaims(ctx, "doc-a", v2, []types.Claim{adamw, imagenet2})
	require.NoError(t, err)
	assert.Empty(t, inserted)
	assert.Zero(t, retired)
	assert.Equal(t, rev, revision(t, db), "an unchanged replacement leaves the revision")

	// A version that emits nothing for the document retires everything.
	_, retired, err = s.ReplaceDocumentClaims(ctx, "doc-a", "rules/v3", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, retired)
	counts, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.ActiveClaims)
}

func TestReplaceDocumentClaimsRejectsForeignClaims(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	c := claim("doc-a", "s1", 1, 0, types.KindMethodology, "optimizer", "adam", "We train with Adam.")
	_, _, err := s.ReplaceDocumentClaims(ctx, "doc-b", extract.RuleVersion, []types.Claim{c})
	assert.ErrorIs(t, err, ErrInvalid)
	_, _, err = s.ReplaceDocumentClaims(ctx, "doc-a", "rules/other", []types.Claim{c})
	assert.ErrorIs(t, err, ErrInvalid)

	counts, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Claims)
}

func TestUpsertClaimsRejectsInvalid(t *testing.T) {
	s, db := testStore(t)
	ctx := context.Background()

	good := claim("doc-a", "s1", 1, 0, types.KindMethodology, "optimizer", "adam", "We train with Adam.")
	tests := []struct {
		name  string
		tweak func(*types.Claim)
	}{
		{"no id", func(c *types.Claim) { c.ID = "" }},
		{"bad kind", func(c *types.Claim) { c.Kind = "opinion" }},
		{"empty value", func(c *types.Claim) { c.Predicate.Value = "" }},
		{"confidence", func(c *types.Claim) { c.Confidence = 1.5 }},
		{"no rule version", func(c *types.Claim) { c.RuleVersion = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := good
			tt.tweak(&bad)
			_, err := s.UpsertClaims(ctx, []types.Claim{good, bad})
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	counts, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Claims, "a rejected batch stores nothing")
	assert.Zero(t, revision(t, db))
}

// --- edges ---

func TestUpsertCitations(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	edges := []types.CitationEdge{
		{FromDocumentID: "doc-a", RefKey: "bib:attention-2017", SegmentID: "s1", Page: 1, Locator: "as in [1]", Title: "Attention", Year: "2017"},
		{FromDocumentID: "doc-a", RefKey: "ref:9", SegmentID: "s1", Page: 1, Locator: "see [9]"},
	}

	n, err := s.UpsertCitations(ctx, edges)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.UpsertCitations(ctx, edges)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.UpsertCitations(ctx, []types.CitationEdge{{FromDocumentID: "doc-a"}})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestUpsertContradictionsStoresPairOnce(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	inserted, err := s.UpsertContradictions(ctx, []types.ContradictionEdge{
		{ClaimA: "zz", ClaimB: "aa", PredicateKey: "optimizer", Rationale: "adam vs sgd"},
	})
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	assert.Equal(t, "aa", inserted[0].ClaimA)
	assert.Equal(t, "zz", inserted[0].ClaimB)
	assert.False(t, inserted[0].DetectedAt.IsZero())

	inserted, err = s.UpsertContradictions(ctx, []types.ContradictionEdge{
		{ClaimA: "aa", ClaimB: "zz", PredicateKey: "optimizer", Rationale: "again"},
	})
	require.NoError(t, err)
	assert.Empty(t, inserted, "reversed pair is the same edge")

	all, err := s.Contradictions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "adam vs sgd", all[0].Rationale)

	_, err = s.UpsertContradictions(ctx, []types.ContradictionEdge{{ClaimA: "aa", ClaimB: "aa", PredicateKey: "optimizer"}})
	assert.ErrorIs(t, err, ErrInvalid)
}

// --- subgraph ---

func seedGraph(t *testing.T, s *Store) (adam, sgd types.Claim) {
	t.Helper()
	ctx := context.Background()
	adam = claim("doc-a", "a-s1", 3, 1, types.KindMethodology, "optimizer", "adam", "We train with Adam [1].")
	sgd = claim("doc-b", "b-s1", 2, 0, types.KindMethodology, "optimizer", "sgd", "We train with SGD.")
	claims := []types.Claim{
		sgd,
		claim("doc-a", "a-s0", 1, 0, types.KindDataset, "dataset", "imagenet", "We evaluate on ImageNet."),
		adam,
		claim("doc-a", "a-s2", 4, 0, types.KindLimitation, "limitation", "data", "A limitation is the small dataset."),
		claim("doc-b", "b-s2", 5, 0, types.KindLimitation, "limitation", "data", "Our data is limited to one domain."),
		claim("doc-b", "b-s3", 6, 0, types.KindLimitation, "limitation", "compute", "This fails to scale given the compute cost."),
		claim("doc-b", "b-s4", 7, 0, types.KindOther, "result.accuracy", "94.2%", "We achieve 94.2% accuracy."),
	}
	_, err := s.UpsertClaims(ctx, claims)
	require.NoError(t, err)
	_, err = s.UpsertCitations(ctx, []types.CitationEdge{
		{FromDocumentID: "doc-a", RefKey: "ref:1", SegmentID: "a-s1", Page: 3, Locator: "Adam [1]"},
		{FromDocumentID: "doc-b", RefKey: "ref:4", SegmentID: "b-s9", Page: 9, Locator: "elsewhere [4]"},
	})
	require.NoError(t, err)
	_, err = s.UpsertContradictions(ctx, []types.ContradictionEdge{
		{ClaimA: adam.ID, ClaimB: sgd.ID, PredicateKey: "optimizer", Rationale: "adam vs sgd"},
	})
	require.NoError(t, err)
	return adam, sgd
}

func TestGetSubgraphOrderAndEdges(t *testing.T) {
	s, db := testStore(t)
	ctx := context.Background()
	adam, sgd := seedGraph(t, s)

	g, err := s.GetSubgraph(ctx, SubgraphQuery{Keys: []string{"optimizer"}})
	require.NoError(t, err)
	assert.Equal(t, revision(t, db), g.Revision)
	assert.Equal(t, []string{adam.ID, sgd.ID}, ids(g.Claims), "ordered by document id")
	require.Len(t, g.Contradictions, 1)
	require.Len(t, g.Citations, 1)
	assert.Equal(t, "a-s1", g.Citations[0].SegmentID)

	c, ok := g.Claim(sgd.ID)
	assert.True(t, ok)
	assert.Equal(t, "sgd", c.Predicate.Value)
}

func TestGetSubgraphFilters(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	adam, _ := seedGraph(t, s)

	tests := []struct {
		name    string
		query   SubgraphQuery
		wantLen int
	}{
		{"all", SubgraphQuery{}, 7},
		{"key", SubgraphQuery{Keys: []string{"limitation"}}, 3},
		{"prefix", SubgraphQuery{KeyPrefixes: []string{"result."}}, 1},
		{"predicate", SubgraphQuery{Predicates: []types.Predicate{{Key: "optimizer", Value: "adam"}}}, 1},
		{"document", SubgraphQuery{Keys: []string{"optimizer"}, DocumentIDs: []string{"doc-b"}}, 1},
		{"kind", SubgraphQuery{Kinds: []types.ClaimKind{types.KindDataset}}, 1},
		{"limit", SubgraphQuery{Limit: 2}, 2},
		{"nothing", SubgraphQuery{Keys: []string{"epochs"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := s.GetSubgraph(ctx, tt.query)
			require.NoError(t, err)
			assert.Len(t, g.Claims, tt.wantLen)
		})
	}

	// A contradiction is only included when both claims are.
	g, err := s.GetSubgraph(ctx, SubgraphQuery{Predicates: []types.Predicate{adam.Predicate}})
	require.NoError(t, err)
	assert.Empty(t, g.Contradictions)
}

func TestGetSubgraphIsDeterministic(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	seedGraph(t, s)

	q := SubgraphQuery{Keys: []string{"optimizer", "limitation"}}
	first, err := s.GetSubgraph(ctx, q)
	require.NoError(t, err)
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		again, err := s.GetSubgraph(ctx, q)
		require.NoError(t, err)
		againJSON, err := json.Marshal(again)
		require.NoError(t, err)
		assert.Equal(t, string(firstJSON), string(againJSON))
	}
}

func TestActiveClaimsByKey(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	adam, sgd := seedGraph(t, s)

	got, err := s.ActiveClaimsByKey(ctx, "optimizer", extract.RuleVersion)
	require.NoError(t, err)
	assert.Equal(t, []string{adam.ID, sgd.ID}, ids(got))

	got, err = s.ActiveClaimsByKey(ctx, "optimizer", "rules/other")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.ActiveClaimsByKey(ctx, "optimizer", "")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

// --- gaps and export ---

func TestGapReport(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	seedGraph(t, s)

	report, err := s.GapReport(ctx, nil)
	require.NoError(t, err)
	require.Len(t, report.Gaps, 2)
	assert.Equal(t, "data", report.Gaps[0].Category)
	assert.Equal(t, []string{"doc-a", "doc-b"}, report.Gaps[0].Documents)
	assert.Len(t, report.Gaps[0].Claims, 2)
	assert.Equal(t, "compute", report.Gaps[1].Category)

	report, err = s.GapReport(ctx, []string{"doc-a"})
	require.NoError(t, err)
	require.Len(t, report.Gaps, 1)
	assert.Equal(t, []string{"doc-a"}, report.Gaps[0].Documents)
}

func TestTrendReport(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	m := types.KindMethodology
	_, err := s.UpsertClaims(ctx, []types.Claim{
		claim("doc-a", "a1", 1, 0, m, "architecture", "resnet", "We build on ResNet."),
		claim("doc-a", "a2", 2, 0, m, "architecture", "resnet", "Our ResNet backbone is deep."),
		claim("doc-a", "a2", 2, 0, m, "optimizer", "adam", "We train with Adam."),
		claim("doc-b", "b1", 1, 0, m, "architecture", "resnet", "Our model is a ResNet."),
		claim("doc-b", "b1", 1, 0, m, "optimizer", "sgd", "We train with SGD."),
		claim("doc-c", "c1", 1, 0, m, "architecture", "bert", "We fine-tune BERT."),
		claim("doc-c", "c1", 1, 0, m, "optimizer", "adam", "We fine-tune using Adam."),
		claim("doc-c", "c2", 3, 0, types.KindDataset, "dataset", "glue", "We evaluate on GLUE."),
		claim("doc-c", "c3", 4, 0, types.KindLimitation, "limitation", "data", "A limitation is the small dataset."),
	})
	require.NoError(t, err)

	report, err := s.TrendReport(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"architecture": 3, "dataset": 1, "optimizer": 3}, report.Totals)

	type row struct {
		key, name string
		docs      int
		score     float64
		saturated bool
	}
	var got []row
	for _, tr := range report.Trends {
		got = append(got, row{tr.Key, tr.Name, len(tr.Documents), tr.Score, tr.Saturated})
		assert.Len(t, tr.Claims, len(tr.Documents), "one claim per document")
	}
	assert.Equal(t, []row{
		{"architecture", "resnet", 2, 0.99, true},
		{"architecture", "bert", 1, 0.5, false},
		{"dataset", "glue", 1, 0.99, false},
		{"optimizer", "adam", 2, 0.99, true},
		{"optimizer", "sgd", 1, 0.5, false},
	}, got)
	assert.Equal(t, "a1", report.Trends[0].Claims[0].SegmentID, "first claim of the document")

	var saturated []string
	for _, tr := range report.Saturated() {
		saturated = append(saturated, tr.Key+"="+tr.Name)
	}
	assert.Equal(t, []string{"architecture=resnet", "optimizer=adam"}, saturated)

	// Restricted to one document nothing is shared, so nothing saturates.
	report, err = s.TrendReport(ctx, []string{"doc-b"})
	require.NoError(t, err)
	require.Len(t, report.Trends, 2)
	assert.Equal(t, 1.0, report.Trends[0].Share)
	assert.Empty(t, report.Saturated())
}

func TestSaturationScore(t *testing.T) {
	tests := []struct {
		share float64
		want  float64
	}{
		{0, 0.1},
		{0.05, 0.1},
		{0.25, 0.375},
		{1.0 / 3, 0.5},
		{0.6, 0.9},
		{1, 0.99},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, saturationScore(tt.share), 1e-9, "share %v", tt.share)
	}
}

func TestExport(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	seedGraph(t, s)

	var buf bytes.Buffer
	require.NoError(t, s.ExportYAML(ctx, &buf, nil))
	var fromYAML Export
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Len(t, fromYAML.Claims, 7)
	assert.Len(t, fromYAML.Citations, 2, "export includes citations outside claim segments")
	assert.Len(t, fromYAML.Contradictions, 1)

	buf.Reset()
	require.NoError(t, s.ExportJSON(ctx, &buf, []string{"doc-b"}))
	var fromJSON Export
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fromJSON))
	assert.Len(t, fromJSON.Claims, 4)
	assert.Len(t, fromJSON.Citations, 1)
	assert.Empty(t, fromJSON.Contradictions)
	assert.Equal(t, []string{"doc-b"}, fromJSON.DocumentIDs)
}
