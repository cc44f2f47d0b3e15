// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"strings"
	"time"
)

// ClaimKind categorizes a claim extracted from a segment.
type ClaimKind string

const (
	KindMethodology ClaimKind = "methodology"
	KindDataset     ClaimKind = "dataset"
	KindLimitation  ClaimKind = "limitation"
	KindOther       ClaimKind = "other"
)

// Valid reports whether k is one of the known kinds.
func (k ClaimKind) Valid() bool {
	switch k {
	case KindMethodology, KindDataset, KindLimitation, KindOther:
		return true
	}
	return false
}

// Predicate is the normalized (key, value) form of a claim, written
// "key=value" (e.g. "optimizer=adam").
type Predicate struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// String renders the predicate as "key=value".
func (p Predicate) String() string {
	return p.Key + "=" + p.Value
}

// ParsePredicate splits "key=value". The second return is false when s has
// no '=' or either side is empty.
func ParsePredicate(s string) (Predicate, bool) {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" || value == "" {
		return Predicate{}, false
	}
	return Predicate{Key: key, Value: value}, true
}

// Claim is a single extracted, typed, page-provenanced fact. Claims are
// never updated; a correction is a new Claim whose Supersedes names the
// claim it replaces.
type Claim struct {
	// ID is derived from the upsert key and Fingerprint, so re-extracting
	// identical text yields the identical ID.
	ID string `json:"id" yaml:"id"`

	DocumentID string `json:"document_id" yaml:"document_id"`

	// SegmentID is the source segment; Page and Ordinal are copied from it.
	SegmentID string `json:"segment_id" yaml:"segment_id"`
	Page      int    `json:"page" yaml:"page"`
	Ordinal   int    `json:"ordinal" yaml:"ordinal"`

	Kind      ClaimKind `json:"kind" yaml:"kind"`
	Predicate Predicate `json:"predicate" yaml:"predicate"`

	// Subject is the method a comparable claim is about, the canonical
	// architecture name (e.g. "resnet"). Claims only contradict claims
	// about the same subject; an empty Subject never contradicts.
	Subject string `json:"subject,omitempty" yaml:"subject,omitempty"`

	// RawText is the sentence the claim was read from, verbatim.
	RawText string `json:"raw_text" yaml:"raw_text"`

	// Confidence is in [0,1] and depends only on RawText and Kind.
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// RuleVersion identifies the extraction rule set that produced the claim.
	RuleVersion string `json:"rule_version" yaml:"rule_version"`

	// Fingerprint is the SHA-256 prefix of (Kind, RawText).
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`

	// Supersedes is the ID of the claim this one replaces, if any.
	Supersedes string `json:"supersedes,omitempty" yaml:"supersedes,omitempty"`
}

// BibliographyEntry represents a parsed entry from a paper's reference section.
type BibliographyEntry struct {
	// Key is the reference label as it appears in the paper (e.g. "1").
	Key string `json:"key" yaml:"key"`

	// Authors lists the cited work's authors.
	Authors []string `json:"authors" yaml:"authors"`

	// Title is the cited work's title.
	Title string `json:"title" yaml:"title"`

	// Year is the publication year.
	Year string `json:"year" yaml:"year"`

	// Venue is the journal, conference, or publisher.
	Venue string `json:"venue" yaml:"venue"`
}

// CitationEdge links a document to an external reference it cites.
type CitationEdge struct {
	FromDocumentID string `json:"from_document_id" yaml:"from_document_id"`

	// RefKey identifies the cited work. Inline keys start as "ref:<label>"
	// and are rewritten to "bib:<slug>" once resolved against the
	// bibliography during linking.
	RefKey string `json:"ref_key" yaml:"ref_key"`

	// Locator is the text surrounding the inline citation.
	Locator string `json:"locator" yaml:"locator"`

	SegmentID string `json:"segment_id" yaml:"segment_id"`
	Page      int    `json:"page" yaml:"page"`

	// Title and Year are filled when the key resolves to a bibliography entry.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	Year  string `json:"year,omitempty" yaml:"year,omitempty"`
}

// ContradictionEdge records that two claims from different documents assert
// different values for the same comparable predicate key. ClaimA < ClaimB,
// so an unordered pair is stored once.
type ContradictionEdge struct {
	ClaimA       string    `json:"claim_a" yaml:"claim_a"`
	ClaimB       string    `json:"claim_b" yaml:"claim_b"`
	PredicateKey string    `json:"predicate_key" yaml:"predicate_key"`
	Rationale    string    `json:"rationale" yaml:"rationale"`
	DetectedAt   time.Time `json:"detected_at" yaml:"detected_at"`
}

// Ordered returns the edge with ClaimA and ClaimB in lexicographic order.
func (e ContradictionEdge) Ordered() ContradictionEdge {
	if e.ClaimB < e.ClaimA {
		e.ClaimA, e.ClaimB = e.ClaimB, e.ClaimA
	}
	return e
}
