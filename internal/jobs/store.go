// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/mattn/go-sqlite3"

	"github.com/pdiddy/claimgraph/internal/sqlite"
	"github.com/pdiddy/claimgraph/pkg/types"
)

// Transition is one recorded state change of a job.
type Transition struct {
	From types.JobState `json:"from" yaml:"from"`
	To   types.JobState `json:"to" yaml:"to"`
	At   time.Time      `json:"at" yaml:"at"`
}

// Store persists jobs and their transition history. It is the only writer
// of job state.
type Store struct {
	db *sqlite.DB

	// now is replaced in tests.
	now func() time.Time
}

// NewStore creates the job tables on db.
func NewStore(db *sqlite.DB) (*Store, error) {
	err := db.Migrate(
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			state TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			started_at TEXT,
			finished_at TEXT,
			error_reason TEXT,
			error_message TEXT,
			UNIQUE (document_id, attempt)
		)`,
		// At most one non-terminal job per document.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_active ON jobs(document_id)
			WHERE state NOT IN ('done', 'failed')`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state, updated_at)`,
		`CREATE TABLE IF NOT EXISTS job_transitions (
			job_id TEXT NOT NULL REFERENCES jobs(id),
			seq INTEGER NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			at TEXT NOT NULL,
			PRIMARY KEY (job_id, seq)
		)`,
	)
	if err != nil {
		return nil, fmt.Errorf("creating job schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

const jobColumns = `id, document_id, attempt, state, created_at, updated_at, started_at, finished_at,
	COALESCE(error_reason, ''), COALESCE(error_message, '')`

// Create allocates the next attempt for docID in state queued. It fails
// with ErrJobActive when the document already has a non-terminal job.
func (s *Store) Create(ctx context.Context, docID string) (types.Job, error) {
	now := s.now().UTC()
	job := types.Job{
		ID:         uuid.NewString(),
		DocumentID: docID,
		State:      types.JobQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.db.Update(ctx, func(tx *sql.Tx) error {
		var active int
		if err := tx.QueryRowContext(ctx,
			`SELECT count(*) FROM jobs WHERE document_id = ? AND state NOT IN ('done', 'failed')`, docID,
		).Scan(&active); err != nil {
			return fmt.Errorf("checking active jobs: %w", err)
		}
		if active > 0 {
			return ErrJobActive
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(attempt), 0) + 1 FROM jobs WHERE document_id = ?`, docID,
		).Scan(&job.Attempt); err != nil {
			return fmt.Errorf("allocating attempt: %w", err)
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (id, document_id, attempt, state, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			job.ID, job.DocumentID, job.Attempt, string(job.State), formatTime(now), formatTime(now))
		if isUniqueViolation(err) {
			return ErrJobActive
		}
		if err != nil {
			return fmt.Errorf("inserting job: %w", err)
		}
		return nil
	})
	if errors.Is(err, ErrJobActive) {
		return types.Job{}, goerr.Wrap(ErrJobActive, "creating job", goerr.V("document_id", docID))
	}
	if err != nil {
		return types.Job{}, goerr.Wrap(err, "creating job", goerr.V("document_id", docID))
	}
	return job, nil
}

// Get returns the job with the given ID.
func (s *Store) Get(ctx context.Context, jobID string) (types.Job, error) {
	job, err := scanJob(s.db.Conn().QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Job{}, goerr.Wrap(ErrNotFound, "job not found", goerr.V("job_id", jobID))
	}
	if err != nil {
		return types.Job{}, goerr.Wrap(err, "reading job", goerr.V("job_id", jobID))
	}
	return job, nil
}

// Latest returns the highest attempt for docID.
func (s *Store) Latest(ctx context.Context, docID string) (types.Job, error) {
	job, err := scanJob(s.db.Conn().QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE document_id = ? ORDER BY attempt DESC LIMIT 1`, docID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Job{}, goerr.Wrap(ErrNotFound, "no job for document", goerr.V("document_id", docID))
	}
	if err != nil {
		return types.Job{}, goerr.Wrap(err, "reading job", goerr.V("document_id", docID))
	}
	return job, nil
}

// ListByState returns jobs in any of states, oldest first.
func (s *Store) ListByState(ctx context.Context, states ...types.JobState) ([]types.Job, error) {
	if len(states) == 0 {
		return nil, nil
	}
	args := make([]any, len(states))
	in := ""
	for i, st := range states {
		args[i] = string(st)
		if i > 0 {
			in += ", "
		}
		in += "?"
	}
	return s.list(ctx, `SELECT `+jobColumns+` FROM jobs WHERE state IN (`+in+`) ORDER BY created_at, id`, args...)
}

// List returns every job, oldest first.
func (s *Store) List(ctx context.Context) ([]types.Job, error) {
	return s.list(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at, id`)
}

// Stale returns non-terminal jobs not updated since cutoff.
func (s *Store) Stale(ctx context.Context, cutoff time.Time) ([]types.Job, error) {
	return s.list(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE state NOT IN ('done', 'failed') AND updated_at < ?
		 ORDER BY updated_at, id`, formatTime(cutoff.UTC()))
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]types.Job, error) {
	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Transition moves a job from one state to another if and only if it is
// still in from. A job that has moved on (or was failed by the supervisor)
// yields ErrConflict and is left untouched. jobErr is recorded when to is
// failed.
func (s *Store) Transition(ctx context.Context, jobID string, from, to types.JobState, jobErr *types.JobError) (types.Job, error) {
	if !from.CanTransition(to) {
		return types.Job{}, goerr.Wrap(ErrInvalidTransition, "transition rejected",
			goerr.V("job_id", jobID), goerr.V("from", from), goerr.V("to", to))
	}
	if to == types.JobFailed && jobErr == nil {
		jobErr = &types.JobError{Reason: types.FailureInternal}
	}

	now := formatTime(s.now().UTC())
	var job types.Job
	err := s.db.Update(ctx, func(tx *sql.Tx) error {
		var reason, message any
		if to == types.JobFailed {
			reason, message = string(jobErr.Reason), jobErr.Message
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE jobs SET
				state = ?,
				updated_at = ?,
				started_at = CASE WHEN ? = 'parsing' THEN ? ELSE started_at END,
				finished_at = CASE WHEN ? IN ('done', 'failed') THEN ? ELSE finished_at END,
				error_reason = ?,
				error_message = ?
			 WHERE id = ? AND state = ?`,
			string(to), now, string(to), now, string(to), now, reason, message, jobID, string(from))
		if err != nil {
			return fmt.Errorf("updating job: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("updating job: %w", err)
		}
		if n == 0 {
			return ErrConflict
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO job_transitions (job_id, seq, from_state, to_state, at)
			 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM job_transitions WHERE job_id = ?), ?, ?, ?)`,
			jobID, jobID, string(from), string(to), now); err != nil {
			return fmt.Errorf("recording transition: %w", err)
		}

		job, err = scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, jobID))
		return err
	})
	if errors.Is(err, ErrConflict) {
		return types.Job{}, goerr.Wrap(ErrConflict, "job moved on",
			goerr.V("job_id", jobID), goerr.V("from", from), goerr.V("to", to))
	}
	if err != nil {
		return types.Job{}, goerr.Wrap(err, "transitioning job", goerr.V("job_id", jobID), goerr.V("to", to))
	}
	return job, nil
}

// History returns the transitions of a job in order.
func (s *Store) History(ctx context.Context, jobID string) ([]Transition, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT from_state, to_state, at FROM job_transitions WHERE job_id = ? ORDER BY seq`, jobID)
	if err != nil {
		return nil, fmt.Errorf("querying job history: %w", err)
	}
	defer rows.Close()

	var history []Transition
	for rows.Next() {
		var (
			tr       Transition
			from, to string
			at       string
		)
		if err := rows.Scan(&from, &to, &at); err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}
		tr.From, tr.To = types.JobState(from), types.JobState(to)
		if tr.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parsing transition time %q: %w", at, err)
		}
		history = append(history, tr)
	}
	return history, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (types.Job, error) {
	var (
		job                  types.Job
		state                string
		created, updated     string
		started, finished    sql.NullString
		errReason, errDetail string
	)
	if err := row.Scan(&job.ID, &job.DocumentID, &job.Attempt, &state, &created, &updated,
		&started, &finished, &errReason, &errDetail); err != nil {
		return types.Job{}, err
	}
	job.State = types.JobState(state)

	var err error
	if job.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return types.Job{}, fmt.Errorf("parsing created_at %q: %w", created, err)
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return types.Job{}, fmt.Errorf("parsing updated_at %q: %w", updated, err)
	}
	if job.StartedAt, err = parseNullTime(started); err != nil {
		return types.Job{}, err
	}
	if job.FinishedAt, err = parseNullTime(finished); err != nil {
		return types.Job{}, err
	}
	if errReason != "" {
		job.Error = &types.JobError{Reason: types.FailureReason(errReason), Message: errDetail}
	}
	return job, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil, fmt.Errorf("parsing time %q: %w", ns.String, err)
	}
	return &t, nil
}

// formatTime uses a fixed-width layout so stored timestamps sort
// lexically in time order.
func formatTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000000000Z07:00")
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
