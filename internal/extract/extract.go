// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract identifies typed claims and inline citations within page
// segments. A fixed registry of rule-based variants examines each segment;
// every variant is a pure function of the segment text, so re-extracting
// identical bytes yields identical claims.
package extract

import (
	"crypto/sha256"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/pdiddy/claimgraph/pkg/types"
)

// RuleVersion identifies the rule set below. It is recorded on every claim
// and must change whenever a variant's output for some text changes.
const RuleVersion = "rules/2026.04"

// Variant names one extractor in the registry.
type Variant string

const (
	VariantMethodology Variant = "methodology"
	VariantDataset     Variant = "dataset"
	VariantLimitation  Variant = "limitation"
	VariantCitation    Variant = "citation"
	VariantResult      Variant = "result"
)

// draft is a claim before provenance, confidence and identity are filled in.
type draft struct {
	kind      types.ClaimKind
	predicate types.Predicate
	subject   string
	raw       string
}

// output is what one variant found in one segment.
type output struct {
	claims    []draft
	citations []types.CitationEdge
}

// variant is an entry of the registry.
type variant struct {
	name Variant
	run  func(seg types.Segment, sentences []string) (output, error)
}

// registry is the closed set of extractors, run in this order.
var registry = []variant{
	{name: VariantMethodology, run: extractMethodology},
	{name: VariantDataset, run: extractDatasets},
	{name: VariantLimitation, run: extractLimitations},
	{name: VariantCitation, run: extractCitations},
	{name: VariantResult, run: extractResults},
}

// Degradation records a variant that failed on a segment and contributed
// nothing for it. It is not an error.
type Degradation struct {
	Variant   Variant `json:"variant" yaml:"variant"`
	SegmentID string  `json:"segment_id" yaml:"segment_id"`
	Reason    string  `json:"reason" yaml:"reason"`
}

// Result is everything extracted from one segment.
type Result struct {
	Claims    []types.Claim
	Citations []types.CitationEdge
	Degraded  []Degradation
}

// Engine runs the registry over segments.
type Engine struct {
	variants []variant
}

// New returns an engine over the fixed registry.
func New() *Engine {
	return &Engine{variants: registry}
}

// Variants lists the registry in run order.
func (e *Engine) Variants() []Variant {
	names := make([]Variant, len(e.variants))
	for i, v := range e.variants {
		names[i] = v.name
	}
	return names
}

// Extract runs every variant over seg. A variant that errors or panics is
// recorded in Degraded and contributes nothing; the others are unaffected.
// Within one segment, a claim key (kind, predicate, subject) is emitted
// once.
// Reference list text yields nothing: it names other papers' methods.
func (e *Engine) Extract(seg types.Segment) Result {
	if isReferenceList(seg.Text) {
		return Result{}
	}
	sentences := splitSentences(seg.Text)

	var res Result
	seen := make(map[string]bool)
	seenCite := make(map[string]bool)
	for _, v := range e.variants {
		out, err := runIsolated(v, seg, sentences)
		if err != nil {
			res.Degraded = append(res.Degraded, Degradation{
				Variant:   v.name,
				SegmentID: seg.ID,
				Reason:    err.Error(),
			})
			continue
		}
		for _, d := range out.claims {
			c, err := newClaim(seg, d)
			if err != nil {
				res.Degraded = append(res.Degraded, Degradation{
					Variant:   v.name,
					SegmentID: seg.ID,
					Reason:    err.Error(),
				})
				continue
			}
			key := string(c.Kind) + "\x00" + c.Predicate.String() + "\x00" + c.Subject
			if seen[key] {
				continue
			}
			seen[key] = true
			res.Claims = append(res.Claims, c)
		}
		for _, ce := range out.citations {
			key := ce.RefKey + "\x00" + ce.Locator
			if seenCite[key] {
				continue
			}
			seenCite[key] = true
			res.Citations = append(res.Citations, ce)
		}
	}
	return res
}

// runIsolated converts a panic in a variant into an error.
func runIsolated(v variant, seg types.Segment, sentences []string) (out output, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = output{}
			err = fmt.Errorf("variant %s panicked: %v", v.name, r)
		}
	}()
	return v.run(seg, sentences)
}

// newClaim validates a draft and derives its confidence, fingerprint and ID.
func newClaim(seg types.Segment, d draft) (types.Claim, error) {
	if !d.kind.Valid() {
		return types.Claim{}, fmt.Errorf("invalid kind %q", d.kind)
	}
	if d.predicate.Key == "" || d.predicate.Value == "" {
		return types.Claim{}, fmt.Errorf("incomplete predicate %q", d.predicate.String())
	}
	raw := strings.TrimSpace(d.raw)
	if raw == "" {
		return types.Claim{}, fmt.Errorf("empty raw text for %s", d.predicate.String())
	}

	fp := Fingerprint(d.kind, raw)
	return types.Claim{
		ID:          ClaimID(seg.DocumentID, seg.ID, d.kind, d.predicate, d.subject, fp),
		DocumentID:  seg.DocumentID,
		SegmentID:   seg.ID,
		Page:        seg.Page,
		Ordinal:     seg.Ordinal,
		Kind:        d.kind,
		Predicate:   d.predicate,
		Subject:     d.subject,
		RawText:     raw,
		Confidence:  Confidence(raw, d.kind),
		RuleVersion: RuleVersion,
		Fingerprint: fp,
	}, nil
}

// Fingerprint identifies the content of a claim: SHA-256 over the rule
// version, kind and raw text, first 16 hex characters.
func Fingerprint(kind types.ClaimKind, raw string) string {
	return stableID(RuleVersion, string(kind), raw)
}

// ClaimID derives a claim's ID from its upsert key and fingerprint.
func ClaimID(docID, segID string, kind types.ClaimKind, p types.Predicate, subject, fingerprint string) string {
	return stableID(docID, segID, string(kind), p.String(), subject, fingerprint)
}

// stableID is the first 16 hex characters of SHA-256 over the parts,
// NUL-separated.
func stableID(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}

// baseConfidence is the starting confidence per kind.
var baseConfidence = map[types.ClaimKind]float64{
	types.KindMethodology: 0.80,
	types.KindDataset:     0.75,
	types.KindLimitation:  0.70,
	types.KindOther:       0.65,
}

var (
	hedgeRe       = regexp.MustCompile(`(?i)\b(may|might|could|possibly|perhaps|appears?|seems?|suggests?|likely|potentially|we believe|presumably)\b`)
	firstPersonRe = regexp.MustCompile(`(?i)\b(we|our)\s+(use|used|train|trained|employ|employed|adopt|adopted|set|optimi[sz]e|optimi[sz]ed|fine-tune|fine-tuned|apply|applied|evaluate|evaluated|report|observe|found|find)\b`)
	numberRe      = regexp.MustCompile(`\d`)
)

// Confidence scores raw text of the given kind. Hedging lowers it (at most
// three cues count), a first-person method statement raises it, and for
// methodology claims a stated number raises it further. The result is
// clamped to [0,1] and rounded to two decimals.
func Confidence(raw string, kind types.ClaimKind) float64 {
	c, ok := baseConfidence[kind]
	if !ok {
		c = baseConfidence[types.KindOther]
	}

	hedges := len(hedgeRe.FindAllStringIndex(raw, -1))
	if hedges > 3 {
		hedges = 3
	}
	c -= 0.1 * float64(hedges)

	if firstPersonRe.MatchString(raw) {
		c += 0.1
	}
	if kind == types.KindMethodology && numberRe.MatchString(raw) {
		c += 0.05
	}

	c = math.Max(0, math.Min(1, c))
	return math.Round(c*100) / 100
}
