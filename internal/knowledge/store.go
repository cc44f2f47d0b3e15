// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package knowledge is the Knowledge Graph Store: immutable claims,
// citation edges and contradiction edges kept in SQLite, with idempotent
// upserts and snapshot subgraph reads.
package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/pdiddy/claimgraph/internal/sqlite"
	"github.com/pdiddy/claimgraph/pkg/types"
)

// ErrInvalid marks a claim or edge that cannot be stored as given.
var ErrInvalid = errors.New("invalid graph element")

// Store manages the graph tables on the shared database.
type Store struct {
	db *sqlite.DB

	// now is replaced in tests.
	now func() time.Time
}

// New creates the graph schema on db if it does not exist.
func New(db *sqlite.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if err := s.createSchema(); err != nil {
		return nil, fmt.Errorf("creating graph schema: %w", err)
	}
	return s, nil
}

func (s *Store) createSchema() error {
	return s.db.Migrate(
		`CREATE TABLE IF NOT EXISTS claims (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			document_id TEXT NOT NULL,
			segment_id TEXT NOT NULL,
			page INTEGER NOT NULL,
			ordinal INTEGER NOT NULL,
			kind TEXT NOT NULL,
			pred_key TEXT NOT NULL,
			pred_value TEXT NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			raw_text TEXT NOT NULL,
			confidence REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
			rule_version TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			supersedes TEXT UNIQUE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_upsert_key
			ON claims(document_id, segment_id, kind, pred_key, pred_value, subject)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_key_version ON claims(pred_key, rule_version, subject)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_document_version ON claims(document_id, rule_version)`,
		`CREATE TABLE IF NOT EXISTS claim_retirements (
			claim_id TEXT PRIMARY KEY,
			rule_version TEXT NOT NULL,
			retired_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_order ON claims(document_id, page, ordinal, id)`,
		`CREATE TABLE IF NOT EXISTS citations (
			from_document_id TEXT NOT NULL,
			ref_key TEXT NOT NULL,
			segment_id TEXT NOT NULL,
			locator TEXT NOT NULL,
			page INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			year TEXT NOT NULL DEFAULT '',
			UNIQUE (from_document_id, ref_key, segment_id, locator)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_citations_segment ON citations(segment_id)`,
		`CREATE INDEX IF NOT EXISTS idx_citations_ref_key ON citations(ref_key)`,
		`CREATE TABLE IF NOT EXISTS contradictions (
			claim_a TEXT NOT NULL,
			claim_b TEXT NOT NULL,
			predicate_key TEXT NOT NULL,
			rationale TEXT NOT NULL,
			detected_at TEXT NOT NULL,
			CHECK (claim_a < claim_b),
			UNIQUE (claim_a, claim_b)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contradictions_b ON contradictions(claim_b)`,
	)
}

// activeClause restricts c to claims that no other claim supersedes and
// that were not retired by a later rule version.
const activeClause = `(NOT EXISTS (SELECT 1 FROM claims s WHERE s.supersedes = c.id)
	AND NOT EXISTS (SELECT 1 FROM claim_retirements r WHERE r.claim_id = c.id))`

// UpsertClaims stores claims keyed by (document, segment, kind, predicate,
// subject). A claim is inserted only when its fingerprint differs from the
// latest active claim at its key, in which case it supersedes that claim.
// It returns the claims actually inserted, with Supersedes filled in. All
// claims are written in one transaction; nothing is stored on error.
func (s *Store) UpsertClaims(ctx context.Context, claims []types.Claim) ([]types.Claim, error) {
	for _, c := range claims {
		if err := validateClaim(c); err != nil {
			return nil, goerr.Wrap(err, "rejecting claim", goerr.V("claim_id", c.ID), goerr.V("document_id", c.DocumentID))
		}
	}

	var inserted []types.Claim
	err := s.db.Write(ctx, func(tx *sql.Tx) error {
		var err error
		if inserted, err = upsertClaimsTx(ctx, tx, claims); err != nil {
			return err
		}
		if len(inserted) == 0 {
			return sqlite.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "upserting claims", goerr.V("count", len(claims)))
	}
	return inserted, nil
}

// ReplaceDocumentClaims stores claims as the complete extraction of docID
// under ruleVersion. Claims are upserted as by UpsertClaims; then every
// still active claim of docID from another rule version is retired, so a
// claim the current rules no longer emit, or emit with another value or
// subject, leaves the active graph. Retired claims stay stored. It returns
// the inserted claims and how many were retired.
func (s *Store) ReplaceDocumentClaims(ctx context.Context, docID, ruleVersion string, claims []types.Claim) ([]types.Claim, int, error) {
	if docID == "" || ruleVersion == "" {
		return nil, 0, fmt.Errorf("%w: replacement needs a document and rule version", ErrInvalid)
	}
	for _, c := range claims {
		err := validateClaim(c)
		if err == nil && (c.DocumentID != docID || c.RuleVersion != ruleVersion) {
			err = fmt.Errorf("%w: claim of %s/%s in replacement of %s/%s", ErrInvalid,
				c.DocumentID, c.RuleVersion, docID, ruleVersion)
		}
		if err != nil {
			return nil, 0, goerr.Wrap(err, "rejecting claim", goerr.V("claim_id", c.ID), goerr.V("document_id", docID))
		}
	}

	var (
		inserted []types.Claim
		retired  int
	)
	err := s.db.Write(ctx, func(tx *sql.Tx) error {
		var err error
		if inserted, err = upsertClaimsTx(ctx, tx, claims); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO claim_retirements (claim_id, rule_version, retired_at)
			 SELECT c.id, ?, ? FROM claims c
			 WHERE c.document_id = ? AND c.rule_version <> ? AND `+activeClause,
			ruleVersion, s.now().UTC().Format(time.RFC3339Nano), docID, ruleVersion)
		if err != nil {
			return fmt.Errorf("retiring claims of %s: %w", docID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("retiring claims of %s: %w", docID, err)
		}
		retired = int(n)
		if len(inserted) == 0 && retired == 0 {
			return sqlite.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return nil, 0, goerr.Wrap(err, "replacing document claims",
			goerr.V("document_id", docID), goerr.V("rule_version", ruleVersion), goerr.V("count", len(claims)))
	}
	return inserted, retired, nil
}

func upsertClaimsTx(ctx context.Context, tx *sql.Tx, claims []types.Claim) ([]types.Claim, error) {
	var inserted []types.Claim
	for _, c := range claims {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM claims WHERE id = ?)`, c.ID,
		).Scan(&exists); err != nil {
			return nil, fmt.Errorf("looking up claim %s: %w", c.ID, err)
		}
		if exists {
			continue
		}

		var latestID, latestFP string
		err := tx.QueryRowContext(ctx,
			`SELECT c.id, c.fingerprint FROM claims c
			 WHERE c.document_id = ? AND c.segment_id = ? AND c.kind = ?
			   AND c.pred_key = ? AND c.pred_value = ? AND c.subject = ? AND `+activeClause+`
			 ORDER BY c.rowid DESC LIMIT 1`,
			c.DocumentID, c.SegmentID, string(c.Kind), c.Predicate.Key, c.Predicate.Value, c.Subject,
		).Scan(&latestID, &latestFP)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			c.Supersedes = ""
		case err != nil:
			return nil, fmt.Errorf("looking up active claim: %w", err)
		case latestFP == c.Fingerprint:
			continue
		default:
			c.Supersedes = latestID
		}

		if err := insertClaim(ctx, tx, c); err != nil {
			return nil, err
		}
		inserted = append(inserted, c)
	}
	return inserted, nil
}

func insertClaim(ctx context.Context, tx *sql.Tx, c types.Claim) error {
	var supersedes any
	if c.Supersedes != "" {
		supersedes = c.Supersedes
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO claims (id, document_id, segment_id, page, ordinal, kind, pred_key, pred_value,
			subject, raw_text, confidence, rule_version, fingerprint, supersedes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.DocumentID, c.SegmentID, c.Page, c.Ordinal, string(c.Kind),
		c.Predicate.Key, c.Predicate.Value, c.Subject, c.RawText, c.Confidence,
		c.RuleVersion, c.Fingerprint, supersedes,
	)
	if err != nil {
		return fmt.Errorf("inserting claim %s: %w", c.ID, err)
	}
	return nil
}

func validateClaim(c types.Claim) error {
	switch {
	case c.ID == "" || c.DocumentID == "" || c.SegmentID == "":
		return fmt.Errorf("%w: claim needs id, document and segment", ErrInvalid)
	case !c.Kind.Valid():
		return fmt.Errorf("%w: unknown kind %q", ErrInvalid, c.Kind)
	case c.Predicate.Key == "" || c.Predicate.Value == "":
		return fmt.Errorf("%w: empty predicate %q", ErrInvalid, c.Predicate.String())
	case c.Confidence < 0 || c.Confidence > 1:
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalid, c.Confidence)
	case c.Fingerprint == "" || c.RuleVersion == "":
		return fmt.Errorf("%w: claim needs fingerprint and rule version", ErrInvalid)
	}
	return nil
}

// UpsertCitations stores citation edges keyed by (from document, ref key,
// segment, locator) and returns how many were new.
func (s *Store) UpsertCitations(ctx context.Context, edges []types.CitationEdge) (int, error) {
	for _, e := range edges {
		if e.FromDocumentID == "" || e.RefKey == "" || e.SegmentID == "" {
			return 0, goerr.Wrap(fmt.Errorf("%w: citation needs document, ref key and segment", ErrInvalid),
				"rejecting citation", goerr.V("document_id", e.FromDocumentID), goerr.V("ref_key", e.RefKey))
		}
	}

	var inserted int
	err := s.db.Write(ctx, func(tx *sql.Tx) error {
		inserted = 0
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR IGNORE INTO citations (from_document_id, ref_key, segment_id, locator, page, title, year)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range edges {
			res, err := stmt.ExecContext(ctx, e.FromDocumentID, e.RefKey, e.SegmentID, e.Locator, e.Page, e.Title, e.Year)
			if err != nil {
				return fmt.Errorf("inserting citation %s: %w", e.RefKey, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("inserting citation %s: %w", e.RefKey, err)
			}
			inserted += int(n)
		}
		if inserted == 0 {
			return sqlite.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return 0, goerr.Wrap(err, "upserting citations", goerr.V("count", len(edges)))
	}
	return inserted, nil
}

// UpsertContradictions stores contradiction edges once per unordered claim
// pair and returns the edges that were new, ordered with ClaimA < ClaimB.
// An edge with no DetectedAt is stamped with the current time.
func (s *Store) UpsertContradictions(ctx context.Context, edges []types.ContradictionEdge) ([]types.ContradictionEdge, error) {
	now := s.now().UTC()
	ordered := make([]types.ContradictionEdge, 0, len(edges))
	for _, e := range edges {
		e = e.Ordered()
		if e.ClaimA == "" || e.ClaimA == e.ClaimB || e.PredicateKey == "" {
			return nil, goerr.Wrap(fmt.Errorf("%w: contradiction needs two distinct claims and a key", ErrInvalid),
				"rejecting contradiction", goerr.V("claim_a", e.ClaimA), goerr.V("claim_b", e.ClaimB))
		}
		if e.DetectedAt.IsZero() {
			e.DetectedAt = now
		}
		e.DetectedAt = e.DetectedAt.UTC()
		ordered = append(ordered, e)
	}

	var inserted []types.ContradictionEdge
	err := s.db.Write(ctx, func(tx *sql.Tx) error {
		inserted = inserted[:0]
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR IGNORE INTO contradictions (claim_a, claim_b, predicate_key, rationale, detected_at)
			 VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range ordered {
			res, err := stmt.ExecContext(ctx, e.ClaimA, e.ClaimB, e.PredicateKey, e.Rationale,
				e.DetectedAt.Format(time.RFC3339Nano))
			if err != nil {
				return fmt.Errorf("inserting contradiction %s/%s: %w", e.ClaimA, e.ClaimB, err)
			}
			if n, err := res.RowsAffected(); err != nil {
				return fmt.Errorf("inserting contradiction %s/%s: %w", e.ClaimA, e.ClaimB, err)
			} else if n == 1 {
				inserted = append(inserted, e)
			}
		}
		if len(inserted) == 0 {
			return sqlite.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "upserting contradictions", goerr.V("count", len(edges)))
	}
	return inserted, nil
}

// Counts summarizes the graph.
type Counts struct {
	Revision       int64 `json:"revision" yaml:"revision"`
	Claims         int   `json:"claims" yaml:"claims"`
	ActiveClaims   int   `json:"active_claims" yaml:"active_claims"`
	Citations      int   `json:"citations" yaml:"citations"`
	Contradictions int   `json:"contradictions" yaml:"contradictions"`
}

// Count returns graph totals read from one snapshot.
func (s *Store) Count(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.Read(ctx, func(tx *sql.Tx) error {
		var err error
		if c.Revision, err = sqlite.RevisionTx(ctx, tx); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx,
			`SELECT
				(SELECT count(*) FROM claims),
				(SELECT count(*) FROM claims c WHERE `+activeClause+`),
				(SELECT count(*) FROM citations),
				(SELECT count(*) FROM contradictions)`,
		).Scan(&c.Claims, &c.ActiveClaims, &c.Citations, &c.Contradictions)
	})
	if err != nil {
		return Counts{}, fmt.Errorf("counting graph: %w", err)
	}
	return c, nil
}

// Revision returns the current graph revision.
func (s *Store) Revision(ctx context.Context) (int64, error) {
	return s.db.Revision(ctx)
}
