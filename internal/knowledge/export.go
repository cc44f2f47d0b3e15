// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/claimgraph/internal/sqlite"
	"github.com/pdiddy/claimgraph/pkg/types"
)

// Export is a read-only projection of the graph: the active claims, the
// citation edges of the selected documents and the contradictions among
// the active claims.
type Export struct {
	Revision       int64                     `json:"revision" yaml:"revision"`
	DocumentIDs    []string                  `json:"document_ids,omitempty" yaml:"document_ids,omitempty"`
	Claims         []types.Claim             `json:"claims" yaml:"claims"`
	Citations      []types.CitationEdge      `json:"citations" yaml:"citations"`
	Contradictions []types.ContradictionEdge `json:"contradictions" yaml:"contradictions"`
}

// Snapshot reads the export projection, optionally restricted to docIDs.
func (s *Store) Snapshot(ctx context.Context, docIDs []string) (Export, error) {
	ex := Export{DocumentIDs: docIDs}
	err := s.db.Read(ctx, func(tx *sql.Tx) error {
		var err error
		if ex.Revision, err = sqlite.RevisionTx(ctx, tx); err != nil {
			return err
		}
		if ex.Claims, err = queryClaims(ctx, tx, SubgraphQuery{DocumentIDs: docIDs}); err != nil {
			return err
		}
		if len(ex.Claims) > 0 {
			if ex.Contradictions, err = contradictionsAmong(ctx, tx, ex.Claims); err != nil {
				return err
			}
		}
		ex.Citations, err = documentCitations(ctx, tx, docIDs)
		return err
	})
	if err != nil {
		return Export{}, fmt.Errorf("reading export snapshot: %w", err)
	}
	return ex, nil
}

func documentCitations(ctx context.Context, tx *sql.Tx, docIDs []string) ([]types.CitationEdge, error) {
	query := `SELECT from_document_id, ref_key, segment_id, locator, page, title, year FROM citations`
	var args []any
	if len(docIDs) > 0 {
		query += ` WHERE from_document_id IN (` + placeholders(len(docIDs)) + `)`
		for _, id := range docIDs {
			args = append(args, id)
		}
	}
	rows, err := tx.QueryContext(ctx, query+` ORDER BY from_document_id, page, segment_id, ref_key, locator`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying citations: %w", err)
	}
	return collectCitations(rows)
}

// ExportYAML writes the export projection as YAML.
func (s *Store) ExportYAML(ctx context.Context, w io.Writer, docIDs []string) error {
	ex, err := s.Snapshot(ctx, docIDs)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(ex); err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return enc.Close()
}

// ExportJSON writes the export projection as indented JSON.
func (s *Store) ExportJSON(ctx context.Context, w io.Writer, docIDs []string) error {
	ex, err := s.Snapshot(ctx, docIDs)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ex); err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return nil
}
