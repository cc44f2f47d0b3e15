// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/claimgraph/internal/sqlite"
	"github.com/pdiddy/claimgraph/pkg/types"
)

// SubgraphQuery selects active claims. A claim matches when its predicate
// key is in Keys, starts with one of KeyPrefixes, or its full predicate is
// in Predicates. With no key selectors every active claim matches. Kinds
// and DocumentIDs, when set, further restrict the match.
type SubgraphQuery struct {
	Keys        []string          `json:"keys,omitempty" yaml:"keys,omitempty"`
	KeyPrefixes []string          `json:"key_prefixes,omitempty" yaml:"key_prefixes,omitempty"`
	Predicates  []types.Predicate `json:"predicates,omitempty" yaml:"predicates,omitempty"`
	Kinds       []types.ClaimKind `json:"kinds,omitempty" yaml:"kinds,omitempty"`
	DocumentIDs []string          `json:"document_ids,omitempty" yaml:"document_ids,omitempty"`

	// Limit caps the claims returned. Zero means no limit.
	Limit int `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// HasSelectors reports whether the query names any key or predicate.
func (q SubgraphQuery) HasSelectors() bool {
	return len(q.Keys) > 0 || len(q.KeyPrefixes) > 0 || len(q.Predicates) > 0
}

// Subgraph is the claims matching a query together with the contradiction
// edges among them and the citation edges found in their segments, read
// from one snapshot at Revision.
type Subgraph struct {
	Revision       int64                     `json:"revision" yaml:"revision"`
	Claims         []types.Claim             `json:"claims" yaml:"claims"`
	Contradictions []types.ContradictionEdge `json:"contradictions" yaml:"contradictions"`
	Citations      []types.CitationEdge      `json:"citations" yaml:"citations"`
}

// Empty reports whether the subgraph has no claims.
func (g Subgraph) Empty() bool { return len(g.Claims) == 0 }

// Claim returns the claim with the given ID, if present.
func (g Subgraph) Claim(id string) (types.Claim, bool) {
	for _, c := range g.Claims {
		if c.ID == id {
			return c, true
		}
	}
	return types.Claim{}, false
}

const claimColumns = `c.id, c.document_id, c.segment_id, c.page, c.ordinal, c.kind, c.pred_key, c.pred_value,
	c.subject, c.raw_text, c.confidence, c.rule_version, c.fingerprint, COALESCE(c.supersedes, '')`

const claimOrder = ` ORDER BY c.document_id, c.page, c.ordinal, c.id`

// GetSubgraph returns the active claims matching q ordered by document,
// page, ordinal and claim ID. Equal graph states give identical results.
func (s *Store) GetSubgraph(ctx context.Context, q SubgraphQuery) (Subgraph, error) {
	var g Subgraph
	err := s.db.Read(ctx, func(tx *sql.Tx) error {
		var err error
		if g.Revision, err = sqlite.RevisionTx(ctx, tx); err != nil {
			return err
		}
		if g.Claims, err = queryClaims(ctx, tx, q); err != nil {
			return err
		}
		if len(g.Claims) == 0 {
			return nil
		}
		if g.Contradictions, err = contradictionsAmong(ctx, tx, g.Claims); err != nil {
			return err
		}
		g.Citations, err = citationsIn(ctx, tx, g.Claims)
		return err
	})
	if err != nil {
		return Subgraph{}, fmt.Errorf("reading subgraph: %w", err)
	}
	return g, nil
}

func queryClaims(ctx context.Context, tx *sql.Tx, q SubgraphQuery) ([]types.Claim, error) {
	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(`SELECT ` + claimColumns + ` FROM claims c WHERE ` + activeClause)

	if q.HasSelectors() {
		var alts []string
		if len(q.Keys) > 0 {
			alts = append(alts, `c.pred_key IN (`+placeholders(len(q.Keys))+`)`)
			for _, k := range q.Keys {
				args = append(args, k)
			}
		}
		for _, p := range q.KeyPrefixes {
			alts = append(alts, `substr(c.pred_key, 1, ?) = ?`)
			args = append(args, len(p), p)
		}
		for _, p := range q.Predicates {
			alts = append(alts, `(c.pred_key = ? AND c.pred_value = ?)`)
			args = append(args, p.Key, p.Value)
		}
		qb.WriteString(` AND (` + strings.Join(alts, ` OR `) + `)`)
	}

	if len(q.Kinds) > 0 {
		qb.WriteString(` AND c.kind IN (` + placeholders(len(q.Kinds)) + `)`)
		for _, k := range q.Kinds {
			args = append(args, string(k))
		}
	}
	if len(q.DocumentIDs) > 0 {
		qb.WriteString(` AND c.document_id IN (` + placeholders(len(q.DocumentIDs)) + `)`)
		for _, id := range q.DocumentIDs {
			args = append(args, id)
		}
	}

	qb.WriteString(claimOrder)
	if q.Limit > 0 {
		qb.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}

	return collectClaims(tx.QueryContext(ctx, qb.String(), args...))
}

// contradictionsAmong returns the edges whose both endpoints are in claims.
func contradictionsAmong(ctx context.Context, tx *sql.Tx, claims []types.Claim) ([]types.ContradictionEdge, error) {
	ids := make(map[string]bool, len(claims))
	for _, c := range claims {
		ids[c.ID] = true
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT claim_a, claim_b, predicate_key, rationale, detected_at FROM contradictions
		 ORDER BY claim_a, claim_b`)
	if err != nil {
		return nil, fmt.Errorf("querying contradictions: %w", err)
	}
	defer rows.Close()

	var edges []types.ContradictionEdge
	for rows.Next() {
		e, err := scanContradiction(rows)
		if err != nil {
			return nil, err
		}
		if ids[e.ClaimA] && ids[e.ClaimB] {
			edges = append(edges, e)
		}
	}
	return edges, rows.Err()
}

// citationsIn returns the citation edges found in the claims' segments.
func citationsIn(ctx context.Context, tx *sql.Tx, claims []types.Claim) ([]types.CitationEdge, error) {
	seen := make(map[string]bool)
	var segIDs []any
	for _, c := range claims {
		if !seen[c.SegmentID] {
			seen[c.SegmentID] = true
			segIDs = append(segIDs, c.SegmentID)
		}
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT from_document_id, ref_key, segment_id, locator, page, title, year FROM citations
		 WHERE segment_id IN (`+placeholders(len(segIDs))+`)
		 ORDER BY from_document_id, page, segment_id, ref_key, locator`, segIDs...)
	if err != nil {
		return nil, fmt.Errorf("querying citations: %w", err)
	}
	return collectCitations(rows)
}

// ActiveClaimsByKey returns the active claims with the given predicate key
// produced by ruleVersion, in subgraph order. An empty ruleVersion matches
// every version.
func (s *Store) ActiveClaimsByKey(ctx context.Context, key, ruleVersion string) ([]types.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims c WHERE c.pred_key = ? AND ` + activeClause
	args := []any{key}
	if ruleVersion != "" {
		query += ` AND c.rule_version = ?`
		args = append(args, ruleVersion)
	}
	claims, err := collectClaims(s.db.Conn().QueryContext(ctx, query+claimOrder, args...))
	if err != nil {
		return nil, fmt.Errorf("querying claims for key %s: %w", key, err)
	}
	return claims, nil
}

// ClaimsByDocument returns every claim of a document, superseded ones
// included, in subgraph order.
func (s *Store) ClaimsByDocument(ctx context.Context, docID string) ([]types.Claim, error) {
	claims, err := collectClaims(s.db.Conn().QueryContext(ctx,
		`SELECT `+claimColumns+` FROM claims c WHERE c.document_id = ?`+claimOrder, docID))
	if err != nil {
		return nil, fmt.Errorf("querying claims for document %s: %w", docID, err)
	}
	return claims, nil
}

// Contradictions returns every stored contradiction edge ordered by pair.
func (s *Store) Contradictions(ctx context.Context) ([]types.ContradictionEdge, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT claim_a, claim_b, predicate_key, rationale, detected_at FROM contradictions
		 ORDER BY claim_a, claim_b`)
	if err != nil {
		return nil, fmt.Errorf("querying contradictions: %w", err)
	}
	defer rows.Close()

	var edges []types.ContradictionEdge
	for rows.Next() {
		e, err := scanContradiction(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func collectClaims(rows *sql.Rows, err error) ([]types.Claim, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []types.Claim
	for rows.Next() {
		var (
			c    types.Claim
			kind string
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.SegmentID, &c.Page, &c.Ordinal, &kind,
			&c.Predicate.Key, &c.Predicate.Value, &c.Subject, &c.RawText, &c.Confidence,
			&c.RuleVersion, &c.Fingerprint, &c.Supersedes); err != nil {
			return nil, fmt.Errorf("scanning claim: %w", err)
		}
		c.Kind = types.ClaimKind(kind)
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func collectCitations(rows *sql.Rows) ([]types.CitationEdge, error) {
	defer rows.Close()

	var edges []types.CitationEdge
	for rows.Next() {
		var e types.CitationEdge
		if err := rows.Scan(&e.FromDocumentID, &e.RefKey, &e.SegmentID, &e.Locator, &e.Page, &e.Title, &e.Year); err != nil {
			return nil, fmt.Errorf("scanning citation: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func scanContradiction(row rowScanner) (types.ContradictionEdge, error) {
	var (
		e        types.ContradictionEdge
		detected string
	)
	if err := row.Scan(&e.ClaimA, &e.ClaimB, &e.PredicateKey, &e.Rationale, &detected); err != nil {
		return types.ContradictionEdge{}, fmt.Errorf("scanning contradiction: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, detected)
	if err != nil {
		return types.ContradictionEdge{}, fmt.Errorf("parsing detected_at %q: %w", detected, err)
	}
	e.DetectedAt = t
	return e, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
