// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sqlite opens the claimgraph database and provides the access
// paths every store uses: serialized write transactions (graph writes also
// bump a revision counter) and snapshot read transactions that never wait
// on a writer (WAL mode).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const (
	indexDir = "index"
	dbFile   = "claimgraph.db"
)

// ErrStoreWrite marks a failed write transaction. Callers classify it as a
// store write failure.
var ErrStoreWrite = errors.New("store write failure")

// ErrNoChange may be returned by a Write or Update callback that found
// nothing to do. The transaction is rolled back, the revision is left
// alone and the call returns nil.
var ErrNoChange = errors.New("no change")

// DB is the shared database handle.
type DB struct {
	db      *sql.DB
	path    string
	writeMu sync.Mutex
}

// Open opens or creates dataDir/index/claimgraph.db and its bookkeeping
// schema.
func Open(dataDir string) (*DB, error) {
	dir := filepath.Join(dataDir, indexDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	path := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	d := &DB{db: db, path: path}
	if err := d.Migrate(
		`CREATE TABLE IF NOT EXISTS graph_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			revision INTEGER NOT NULL
		)`,
		`INSERT OR IGNORE INTO graph_meta (id, revision) VALUES (1, 0)`,
	); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// Close releases the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate executes schema statements in order.
func (d *DB) Migrate(statements ...string) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	for _, stmt := range statements {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Write runs fn in a graph transaction. Writers are serialized so
// concurrent ingestion never interleaves inside one upsert; the graph
// revision is incremented in the same transaction. Any failure, including
// fn's, is wrapped with ErrStoreWrite and nothing is committed.
func (d *DB) Write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return d.write(ctx, true, fn)
}

// Update is Write for bookkeeping tables (documents, segments, jobs) that
// do not change what a query can observe, so the revision is left alone.
func (d *DB) Update(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return d.write(ctx, false, fn)
}

func (d *DB) write(ctx context.Context, bump bool, fn func(tx *sql.Tx) error) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", ErrStoreWrite, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	if bump {
		if _, err := tx.ExecContext(ctx, `UPDATE graph_meta SET revision = revision + 1 WHERE id = 1`); err != nil {
			return fmt.Errorf("%w: bumping revision: %v", ErrStoreWrite, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing: %v", ErrStoreWrite, err)
	}
	return nil
}

// Read runs fn in a read-only snapshot: every query inside fn observes the
// same committed state.
func (d *DB) Read(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("beginning read transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Revision returns the current graph revision.
func (d *DB) Revision(ctx context.Context) (int64, error) {
	var rev int64
	err := d.db.QueryRowContext(ctx, `SELECT revision FROM graph_meta WHERE id = 1`).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("reading revision: %w", err)
	}
	return rev, nil
}

// RevisionTx returns the graph revision visible inside tx.
func RevisionTx(ctx context.Context, tx *sql.Tx) (int64, error) {
	var rev int64
	if err := tx.QueryRowContext(ctx, `SELECT revision FROM graph_meta WHERE id = 1`).Scan(&rev); err != nil {
		return 0, fmt.Errorf("reading revision: %w", err)
	}
	return rev, nil
}

// Conn exposes the handle for plain single-statement reads.
func (d *DB) Conn() *sql.DB { return d.db }
