// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/claimgraph/pkg/types"
)

func seg(text string) types.Segment {
	return types.Segment{ID: "seg-1", DocumentID: "doc-1", Page: 4, Ordinal: 2, Text: text}
}

// predicates returns the "kind:key=value" of every claim.
func predicates(claims []types.Claim) []string {
	var out []string
	for _, c := range claims {
		out = append(out, string(c.Kind)+":"+c.Predicate.String())
	}
	return out
}

func TestExtractMethodology(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "optimizer",
			text: "We train the network with Adam for all experiments.",
			want: []string{"methodology:optimizer=adam"},
		},
		{
			name: "optimizer synonym",
			text: "The model is optimized using stochastic gradient descent with momentum 0.9.",
			want: []string{"methodology:optimizer=sgd"},
		},
		{
			name: "learning rate exponent",
			text: "We use a learning rate of 1e-3 throughout training.",
			want: []string{"methodology:learning_rate=0.001"},
		},
		{
			name: "batch size and epochs",
			text: "Training runs for 90 epochs with a batch size of 256.",
			want: []string{"methodology:batch_size=256", "methodology:epochs=90"},
		},
		{
			name: "architecture",
			text: "Our model is based on a ResNet-50 backbone.",
			want: []string{"methodology:architecture=resnet"},
		},
		{
			name: "no cue, no optimizer claim",
			text: "Adam is a popular choice among practitioners.",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New().Extract(seg(tt.text))
			var got []string
			for _, p := range predicates(res.Claims) {
				if strings.HasPrefix(p, "methodology:") {
					got = append(got, p)
				}
			}
			assert.Equal(t, tt.want, got)
			assert.Empty(t, res.Degraded)
		})
	}
}

func TestExtractDatasetsAndResults(t *testing.T) {
	res := New().Extract(seg("We evaluate on ImageNet and the Foo-Bench dataset. Our model achieves 94.2% accuracy on CIFAR-10."))
	got := predicates(res.Claims)
	assert.Contains(t, got, "dataset:dataset=imagenet")
	assert.Contains(t, got, "dataset:dataset=foo-bench")
	assert.Contains(t, got, "dataset:dataset=cifar-10")
	assert.Contains(t, got, "other:result.accuracy=94.2%")
}

func TestExtractLimitation(t *testing.T) {
	res := New().Extract(seg("A key limitation is that the method relies on a small dataset of labeled scans."))
	require.Len(t, res.Claims, 1)
	c := res.Claims[0]
	assert.Equal(t, types.KindLimitation, c.Kind)
	assert.Equal(t, "limitation=data", c.Predicate.String())
}

func TestExtractProvenance(t *testing.T) {
	s := seg("We train the network with Adam.")
	res := New().Extract(s)
	require.Len(t, res.Claims, 1)
	c := res.Claims[0]
	assert.Equal(t, s.DocumentID, c.DocumentID)
	assert.Equal(t, s.ID, c.SegmentID)
	assert.Equal(t, s.Page, c.Page)
	assert.Equal(t, s.Ordinal, c.Ordinal)
	assert.Equal(t, "We train the network with Adam.", c.RawText)
	assert.Equal(t, RuleVersion, c.RuleVersion)
	assert.Empty(t, c.Supersedes)
}

func TestExtractIsDeterministic(t *testing.T) {
	s := seg("We train with SGD at a learning rate of 0.1 for 100 epochs on ImageNet [3]. This may not generalize to other domains.")
	first := New().Extract(s)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, New().Extract(s))
	}
}

func TestExtractDedupesWithinSegment(t *testing.T) {
	res := New().Extract(seg("We train with Adam. Later we fine-tune again with Adam."))
	assert.Equal(t, []string{"methodology:optimizer=adam"}, predicates(res.Claims))
	assert.Equal(t, "We train with Adam.", res.Claims[0].RawText, "first sentence wins")
}

func TestExtractCitations(t *testing.T) {
	res := New().Extract(seg("Transformers [1, 2] improved over recurrent models [Smith et al., 2020]."))
	var keys []string
	for _, c := range res.Citations {
		keys = append(keys, c.RefKey)
		assert.Equal(t, "doc-1", c.FromDocumentID)
		assert.Equal(t, 4, c.Page)
		assert.NotEmpty(t, c.Locator)
	}
	assert.Equal(t, []string{"ref:1", "ref:2", "ref:Smith et al., 2020"}, keys)
}

func TestExtractSkipsReferenceListCitations(t *testing.T) {
	res := New().Extract(seg("[1] Smith, A. Attention is all you need. NeurIPS, 2017. [2] Jones, B. Other. ICML, 2019."))
	assert.Empty(t, res.Citations)
}

func TestVariantFailureIsIsolated(t *testing.T) {
	e := &Engine{variants: []variant{
		{name: VariantMethodology, run: extractMethodology},
		{name: "boom", run: func(types.Segment, []string) (output, error) { panic("bad pattern") }},
		{name: "err", run: func(types.Segment, []string) (output, error) { return output{}, errors.New("nope") }},
		{name: VariantLimitation, run: extractLimitations},
	}}

	res := e.Extract(seg("We train with Adam. A limitation is the high computational cost."))
	assert.Equal(t, []string{"methodology:optimizer=adam", "limitation:limitation=compute"}, predicates(res.Claims))
	require.Len(t, res.Degraded, 2)
	assert.Equal(t, Variant("boom"), res.Degraded[0].Variant)
	assert.Contains(t, res.Degraded[0].Reason, "bad pattern")
	assert.Equal(t, "seg-1", res.Degraded[0].SegmentID)
	assert.Equal(t, Variant("err"), res.Degraded[1].Variant)
}

func TestRegistryOrder(t *testing.T) {
	assert.Equal(t, []Variant{VariantMethodology, VariantDataset, VariantLimitation, VariantCitation, VariantResult}, New().Variants())
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind types.ClaimKind
		want float64
	}{
		{name: "plain methodology", raw: "The network is trained with Adam.", kind: types.KindMethodology, want: 0.8},
		{name: "first person", raw: "We use Adam.", kind: types.KindMethodology, want: 0.9},
		{name: "first person with number", raw: "We use a learning rate of 0.001.", kind: types.KindMethodology, want: 0.95},
		{name: "hedged", raw: "This may possibly limit accuracy.", kind: types.KindLimitation, want: 0.5},
		{name: "hedges capped", raw: "may might could perhaps likely", kind: types.KindOther, want: 0.35},
		{name: "all boosts", raw: "We train 10 layers.", kind: types.KindMethodology, want: 0.95},
		{name: "unknown kind uses other", raw: "text", kind: "weird", want: 0.65},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Confidence(tt.raw, tt.kind)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestClaimIdentity(t *testing.T) {
	p := types.Predicate{Key: "optimizer", Value: "adam"}
	fp := Fingerprint(types.KindMethodology, "We use Adam.")
	assert.Equal(t, fp, Fingerprint(types.KindMethodology, "We use Adam."))
	assert.NotEqual(t, fp, Fingerprint(types.KindOther, "We use Adam."))
	assert.Len(t, fp, 16)

	id := ClaimID("d", "s", types.KindMethodology, p, "resnet", fp)
	assert.Equal(t, id, ClaimID("d", "s", types.KindMethodology, p, "resnet", fp))
	assert.NotEqual(t, id, ClaimID("d2", "s", types.KindMethodology, p, "resnet", fp))
	assert.NotEqual(t, id, ClaimID("d", "s", types.KindMethodology, p, "bert", fp))
}

func TestExtractSkipsContrastClauses(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "unlike prior work",
			text: "Unlike prior work that used SGD, we train our model with Adam.",
			want: []string{"methodology:optimizer=adam"},
		},
		{
			name: "instead of",
			text: "We optimize with AdamW instead of Adam.",
			want: []string{"methodology:optimizer=adamw"},
		},
		{
			name: "baseline epochs",
			text: "Compared with baselines trained for 300 epochs, we train for 90 epochs.",
			want: []string{"methodology:epochs=90"},
		},
		{
			name: "contrast to the end",
			text: "Previous methods were trained using RMSProp.",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New().Extract(seg(tt.text))
			var got []string
			for _, c := range res.Claims {
				if c.Kind == types.KindMethodology {
					got = append(got, string(c.Kind)+":"+c.Predicate.String())
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractAttachesSubject(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[string]string
	}{
		{
			name: "architecture in the sentence",
			text: "We train the ResNet-50 image classifier with SGD for 90 epochs.",
			want: map[string]string{"optimizer=sgd": "resnet", "epochs=90": "resnet"},
		},
		{
			name: "architecture elsewhere in the segment",
			text: "Our encoder is a BERT model. We fine-tune it using Adam for 3 epochs.",
			want: map[string]string{"optimizer=adam": "bert", "epochs=3": "bert"},
		},
		{
			name: "contrasted architecture is not the subject",
			text: "Unlike BERT, which uses Adam, our LSTM is trained with SGD.",
			want: map[string]string{"optimizer=sgd": "lstm"},
		},
		{
			name: "no architecture",
			text: "We train the network with Adam.",
			want: map[string]string{"optimizer=adam": ""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := make(map[string]string)
			for _, c := range New().Extract(seg(tt.text)).Claims {
				if c.Predicate.Key == "architecture" {
					assert.Empty(t, c.Subject, "only comparable claims carry a subject")
					continue
				}
				got[c.Predicate.String()] = c.Subject
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveSubjects(t *testing.T) {
	s1 := types.Segment{ID: "s1", DocumentID: "doc-1", Page: 1, Text: "We train the network with Adam for 90 epochs."}
	s2 := types.Segment{ID: "s2", DocumentID: "doc-1", Page: 2, Ordinal: 0, Text: "Our model is based on a ResNet-50 backbone."}
	s3 := types.Segment{ID: "s3", DocumentID: "doc-2", Page: 1, Text: "We use SGD for training."}

	var claims []types.Claim
	for _, s := range []types.Segment{s1, s2, s3} {
		claims = append(claims, New().Extract(s).Claims...)
	}
	resolved := ResolveSubjects(claims)
	require.Len(t, resolved, len(claims))

	for i, c := range resolved {
		switch c.Predicate.String() {
		case "optimizer=adam", "epochs=90":
			assert.Equal(t, "resnet", c.Subject, "dominant architecture of doc-1")
			assert.NotEqual(t, claims[i].ID, c.ID, "the ID follows the subject")
			assert.Equal(t, ClaimID(c.DocumentID, c.SegmentID, c.Kind, c.Predicate, "resnet", c.Fingerprint), c.ID)
		case "optimizer=sgd":
			assert.Empty(t, c.Subject, "doc-2 names no architecture")
			assert.Equal(t, claims[i].ID, c.ID)
		}
		assert.Empty(t, claims[i].Subject, "input is not modified")
	}
	assert.Equal(t, resolved, ResolveSubjects(claims))
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("As shown by Smith et al. in prior work, it helps. See Fig. 3 for details! Short. Is it robust to noise?")
	assert.Equal(t, []string{
		"As shown by Smith et al. in prior work, it helps.",
		"See Fig. 3 for details!",
		"Is it robust to noise?",
	}, got)
}

func TestExtractSkipsReferenceList(t *testing.T) {
	for _, text := range []string{
		"[1] Kingma, D. and Ba, J. Adam: A method for stochastic optimization. ICLR, 2015.",
		"7. References [1] Kingma, D. Adam: A method for stochastic optimization. ICLR, 2015.",
	} {
		res := New().Extract(seg(text))
		assert.Empty(t, res.Claims, text)
		assert.Empty(t, res.Citations, text)
	}

	res := New().Extract(seg("References to prior work aside, we train with Adam."))
	assert.Equal(t, []string{"methodology:optimizer=adam"}, predicates(res.Claims))
}
