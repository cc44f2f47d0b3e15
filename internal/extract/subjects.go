// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"github.com/pdiddy/claimgraph/internal/lexicon"
	"github.com/pdiddy/claimgraph/pkg/types"
)

// ResolveSubjects fills in the subject of comparable claims whose segment
// named no architecture with the document's dominant architecture: the
// one with the most architecture claims, ties broken by name. Claims of a
// document without architecture claims keep an empty subject. A resolved
// claim gets the ID for its new subject. The input is not modified.
func ResolveSubjects(claims []types.Claim) []types.Claim {
	counts := make(map[string]map[string]int)
	for _, c := range claims {
		if c.Predicate.Key != lexicon.KeyArchitecture {
			continue
		}
		if counts[c.DocumentID] == nil {
			counts[c.DocumentID] = make(map[string]int)
		}
		counts[c.DocumentID][c.Predicate.Value]++
	}

	dominant := make(map[string]string, len(counts))
	for doc, byName := range counts {
		best, bestN := "", 0
		for name, n := range byName {
			if n > bestN || (n == bestN && name < best) {
				best, bestN = name, n
			}
		}
		dominant[doc] = best
	}

	out := make([]types.Claim, len(claims))
	for i, c := range claims {
		if subject := dominant[c.DocumentID]; c.Subject == "" && subject != "" && lexicon.Comparable(c.Predicate.Key) {
			c.Subject = subject
			c.ID = ClaimID(c.DocumentID, c.SegmentID, c.Kind, c.Predicate, c.Subject, c.Fingerprint)
		}
		out[i] = c
	}
	return out
}
