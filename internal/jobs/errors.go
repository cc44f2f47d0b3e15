// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"context"
	"errors"

	"github.com/pdiddy/claimgraph/internal/segment"
	"github.com/pdiddy/claimgraph/internal/sqlite"
	"github.com/pdiddy/claimgraph/pkg/types"
)

var (
	// ErrJobActive is returned when a document already has a non-terminal job.
	ErrJobActive = errors.New("document has an active job")

	// ErrNotFound is returned for an unknown job or a document with no job.
	ErrNotFound = errors.New("job not found")

	// ErrConflict means a compare-and-set transition found the job in a
	// different state than expected. The caller abandons its run.
	ErrConflict = errors.New("job state changed concurrently")

	// ErrInvalidTransition is a transition the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid job transition")

	// ErrTimeout is recorded on jobs the supervisor expires.
	ErrTimeout = errors.New("job exceeded its deadline")
)

// Classify maps a pipeline error to the failure reason recorded on the job.
func Classify(err error) types.FailureReason {
	switch {
	case errors.Is(err, segment.ErrUnsupportedFormat):
		return types.FailureUnsupportedFormat
	case errors.Is(err, segment.ErrCorruptDocument):
		return types.FailureCorruptDocument
	case errors.Is(err, sqlite.ErrStoreWrite):
		return types.FailureStoreWrite
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return types.FailureTimeout
	default:
		return types.FailureInternal
	}
}
