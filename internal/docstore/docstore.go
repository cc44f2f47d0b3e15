// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package docstore keeps uploaded files content-addressed on disk and their
// document records and parsed page segments in the database.
package docstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/pdiddy/claimgraph/internal/sqlite"
	"github.com/pdiddy/claimgraph/pkg/types"
)

const blobDir = "blobs"

// ErrNotFound is returned when no document or segment has the given ID.
var ErrNotFound = errors.New("not found")

// Store is the Document Store.
type Store struct {
	db      *sqlite.DB
	blobDir string

	// now is replaced in tests.
	now func() time.Time
}

// New creates the document and segment tables on db and stores blobs under
// dataDir/blobs/.
func New(db *sqlite.DB, dataDir string) (*Store, error) {
	dir := filepath.Join(dataDir, blobDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}

	err := db.Migrate(
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			size INTEGER NOT NULL,
			uploaded_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS segments (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id),
			page INTEGER NOT NULL,
			ordinal INTEGER NOT NULL,
			text TEXT NOT NULL,
			UNIQUE (document_id, page, ordinal)
		)`,
	)
	if err != nil {
		return nil, fmt.Errorf("creating document schema: %w", err)
	}

	return &Store{db: db, blobDir: dir, now: time.Now}, nil
}

// Fingerprint returns the document ID for data: the hex SHA-256.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put stores data and its document record. If a document with the same
// fingerprint already exists the existing record is returned unchanged and
// created is false. The bytes are on disk before Put returns.
func (s *Store) Put(ctx context.Context, filename string, data []byte) (doc types.Document, created bool, err error) {
	id := Fingerprint(data)
	if filename == "" {
		filename = id[:12]
	}

	if err := s.writeBlob(id, data); err != nil {
		return types.Document{}, false, goerr.Wrap(err, "storing document bytes", goerr.V("document_id", id))
	}

	uploaded := s.now().UTC()
	err = s.db.Update(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO documents (id, filename, size, uploaded_at) VALUES (?, ?, ?, ?)`,
			id, filename, len(data), uploaded.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("inserting document: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("inserting document: %w", err)
		}
		created = n == 1

		doc, err = scanDocument(tx.QueryRowContext(ctx,
			`SELECT id, filename, size, uploaded_at FROM documents WHERE id = ?`, id))
		return err
	})
	if err != nil {
		return types.Document{}, false, goerr.Wrap(err, "recording document", goerr.V("document_id", id))
	}
	return doc, created, nil
}

// Get returns the document record for id.
func (s *Store) Get(ctx context.Context, id string) (types.Document, error) {
	doc, err := scanDocument(s.db.Conn().QueryRowContext(ctx,
		`SELECT id, filename, size, uploaded_at FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Document{}, goerr.Wrap(ErrNotFound, "document not found", goerr.V("document_id", id))
	}
	if err != nil {
		return types.Document{}, goerr.Wrap(err, "reading document", goerr.V("document_id", id))
	}
	return doc, nil
}

// List returns all documents ordered by ID.
func (s *Store) List(ctx context.Context) ([]types.Document, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT id, filename, size, uploaded_at FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ReadBytes returns the stored file for document id.
func (s *Store) ReadBytes(ctx context.Context, id string) ([]byte, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.blobPath(id))
	if err != nil {
		return nil, goerr.Wrap(err, "reading document bytes", goerr.V("document_id", id))
	}
	return data, nil
}

// PutSegments records the parsed segments of a document. Segments already
// present (same ID) are left as they are.
func (s *Store) PutSegments(ctx context.Context, docID string, segs []types.Segment) error {
	err := s.db.Update(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR IGNORE INTO segments (id, document_id, page, ordinal, text) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()

		for _, seg := range segs {
			if seg.DocumentID != docID {
				return fmt.Errorf("segment %s belongs to %s, not %s", seg.ID, seg.DocumentID, docID)
			}
			if _, err := stmt.ExecContext(ctx, seg.ID, seg.DocumentID, seg.Page, seg.Ordinal, seg.Text); err != nil {
				return fmt.Errorf("inserting segment %s: %w", seg.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return goerr.Wrap(err, "storing segments", goerr.V("document_id", docID), goerr.V("count", len(segs)))
	}
	return nil
}

// Segments returns the stored segments of a document ordered by page and
// ordinal.
func (s *Store) Segments(ctx context.Context, docID string) ([]types.Segment, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT id, document_id, page, ordinal, text FROM segments
		 WHERE document_id = ? ORDER BY page, ordinal`, docID)
	if err != nil {
		return nil, fmt.Errorf("querying segments: %w", err)
	}
	defer rows.Close()

	var segs []types.Segment
	for rows.Next() {
		var seg types.Segment
		if err := rows.Scan(&seg.ID, &seg.DocumentID, &seg.Page, &seg.Ordinal, &seg.Text); err != nil {
			return nil, fmt.Errorf("scanning segment: %w", err)
		}
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}

// blobPath shards blobs by the first two hex characters of the ID.
func (s *Store) blobPath(id string) string {
	return filepath.Join(s.blobDir, id[:2], id)
}

// writeBlob writes data via a temporary file and rename so a crash never
// leaves a partial blob under its final name. An existing blob is kept:
// the name is the content hash.
func (s *Store) writeBlob(id string, data []byte) error {
	path := s.blobPath(id)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating blob shard: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), id+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming blob: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (types.Document, error) {
	var (
		doc      types.Document
		uploaded string
	)
	if err := row.Scan(&doc.ID, &doc.Filename, &doc.Size, &uploaded); err != nil {
		return types.Document{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, uploaded)
	if err != nil {
		return types.Document{}, fmt.Errorf("parsing uploaded_at %q: %w", uploaded, err)
	}
	doc.UploadedAt = t
	return doc, nil
}
