// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the claimgraph pipeline:
// stored documents and their page segments, ingestion jobs, extracted
// claims and the edges of the knowledge graph, and query answers.
package types

import "time"

// Document is an uploaded file identified by the SHA-256 of its bytes.
// A stored Document never changes; Status is filled in from the document's
// current Job when the record is read through the orchestrator.
type Document struct {
	// ID is the lowercase hex SHA-256 of the file bytes.
	ID string `json:"id" yaml:"id"`

	// Filename is the name supplied with the first upload of these bytes.
	Filename string `json:"filename" yaml:"filename"`

	// Size is the file size in bytes.
	Size int64 `json:"size" yaml:"size"`

	// UploadedAt is when the bytes were first stored.
	UploadedAt time.Time `json:"uploaded_at" yaml:"uploaded_at"`

	// Status mirrors the state of the document's current Job.
	Status JobState `json:"status,omitempty" yaml:"status,omitempty"`
}

// Segment is one paragraph of page text. Segments are ordered by
// (Page, Ordinal) and are immutable once produced.
type Segment struct {
	// ID is stable for a given (DocumentID, Page, Ordinal).
	ID string `json:"id" yaml:"id"`

	DocumentID string `json:"document_id" yaml:"document_id"`

	// Page is the 1-based page number.
	Page int `json:"page" yaml:"page"`

	// Ordinal is the 0-based position of the segment within its page.
	Ordinal int `json:"ordinal" yaml:"ordinal"`

	Text string `json:"text" yaml:"text"`
}

// JobState is a state of the per-document ingestion state machine.
type JobState string

const (
	JobQueued     JobState = "queued"
	JobParsing    JobState = "parsing"
	JobExtracting JobState = "extracting"
	JobLinking    JobState = "linking"
	JobDetecting  JobState = "detecting"
	JobDone       JobState = "done"
	JobFailed     JobState = "failed"
)

// jobTransitions lists the forward edges of the state machine. Failed is
// reachable from every non-terminal state and is handled separately.
var jobTransitions = map[JobState]JobState{
	JobQueued:     JobParsing,
	JobParsing:    JobExtracting,
	JobExtracting: JobLinking,
	JobLinking:    JobDetecting,
	JobDetecting:  JobDone,
}

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// Valid reports whether s is a known state.
func (s JobState) Valid() bool {
	_, ok := jobTransitions[s]
	return ok || s.Terminal()
}

// CanTransition reports whether the state machine permits s → to.
func (s JobState) CanTransition(to JobState) bool {
	if s.Terminal() {
		return false
	}
	if to == JobFailed {
		return true
	}
	return jobTransitions[s] == to
}

// FailureReason classifies why a Job ended in JobFailed.
type FailureReason string

const (
	FailureUnsupportedFormat FailureReason = "unsupported_format"
	FailureCorruptDocument   FailureReason = "corrupt_document"
	FailureStoreWrite        FailureReason = "store_write_failure"
	FailureTimeout           FailureReason = "timeout"
	FailureInternal          FailureReason = "internal"
)

// JobError is the failure recorded on a Job.
type JobError struct {
	Reason  FailureReason `json:"reason" yaml:"reason"`
	Message string        `json:"message,omitempty" yaml:"message,omitempty"`
}

// Job is one ingestion attempt for a Document. A Document has at most one
// non-terminal Job at a time; a resubmission allocates the next Attempt.
type Job struct {
	ID         string    `json:"id" yaml:"id"`
	DocumentID string    `json:"document_id" yaml:"document_id"`
	Attempt    int       `json:"attempt" yaml:"attempt"`
	State      JobState  `json:"state" yaml:"state"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"updated_at"`

	// StartedAt is set when a worker claims the job.
	StartedAt *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`

	// FinishedAt is set on entering a terminal state.
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`

	Error *JobError `json:"error,omitempty" yaml:"error,omitempty"`
}
