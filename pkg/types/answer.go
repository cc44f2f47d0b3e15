// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Question is a natural-language question put to the answer engine.
type Question struct {
	Text string `json:"question" yaml:"question"`

	// DocumentIDs optionally restricts retrieval to these documents.
	DocumentIDs []string `json:"document_ids,omitempty" yaml:"document_ids,omitempty"`
}

// AnswerCitation points from an answer back to a claim and its page.
type AnswerCitation struct {
	DocumentID string `json:"document_id" yaml:"document_id"`
	Page       int    `json:"page" yaml:"page"`
	ClaimID    string `json:"claim_id" yaml:"claim_id"`
}

// RefusalReason explains why no answer was produced.
type RefusalReason string

const (
	// RefusalNoEvidence means no claim in the graph supports an answer,
	// including when the question maps to no known predicate at all.
	RefusalNoEvidence RefusalReason = "no_evidence"
)

// Refusal is a typed "insufficient evidence" result.
type Refusal struct {
	Reason  RefusalReason `json:"reason" yaml:"reason"`
	Message string        `json:"message" yaml:"message"`
}

// Answer is either grounded text with citations or a Refusal.
type Answer struct {
	Text      string           `json:"answer,omitempty" yaml:"answer,omitempty"`
	Citations []AnswerCitation `json:"citations,omitempty" yaml:"citations,omitempty"`
	Refusal   *Refusal         `json:"refusal,omitempty" yaml:"refusal,omitempty"`

	// Revision is the graph revision the answer was computed against.
	Revision int64 `json:"revision" yaml:"revision"`
}

// Refused reports whether the answer is a refusal.
func (a Answer) Refused() bool {
	return a.Refusal != nil
}
