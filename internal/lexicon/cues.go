// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package lexicon

import (
	"regexp"
	"strings"
)

// Cue maps question wording to the predicate key it asks about.
type Cue struct {
	Key     string
	Pattern *regexp.Regexp
}

func cue(key, pattern string) Cue {
	return Cue{Key: key, Pattern: regexp.MustCompile(`(?i)\b(?:` + pattern + `)\b`)}
}

// QuestionCues are tried in order; a question may match several.
var QuestionCues = []Cue{
	cue(KeyOptimizer, `optimi[sz]ers?|optimi[sz]ation algorithms?|optimi[sz]ed with|trained with what`),
	cue(KeyLearningRate, `learning[\s-]+rates?|lr|step sizes?`),
	cue(KeyBatchSize, `batch[\s-]+sizes?|mini[\s-]?batch(?:es)?`),
	cue(KeyEpochs, `epochs?|how long .*train(?:ed)?|training (?:length|duration)`),
	cue(KeyArchitecture, `architectures?|backbones?|model (?:family|type)|network (?:type|design)`),
	cue(KeyDataset, `datasets?|data sets?|corpora|corpus|benchmarks?|trained on|evaluated on`),
	cue(KeyMetric, `metrics?|measures?|evaluation criteria`),
	cue(KeyLimitation, `limitations?|weakness(?:es)?|shortcomings?|drawbacks?|caveats?|research gaps?|gaps?|future work|open problems?`),
	cue(ResultPrefix, `results?|performance|scores?|how (?:well|good)|achieve[sd]?`),
}

// gapCue marks a question asking for the aggregated gap report rather than
// individual limitation claims.
var gapCue = regexp.MustCompile(`(?i)\b(?:research gaps?|gap (?:radar|report|analysis)|open problems)\b`)

// AsksForGaps reports whether the question asks for the research gaps.
func AsksForGaps(question string) bool {
	return gapCue.MatchString(question)
}

// trendCue marks a question asking which methods are saturated or most
// widely used.
var trendCue = regexp.MustCompile(`(?i)\b(?:saturat\w*|trends?|trending|most (?:common(?:ly used)?|popular|widely used|used))\b`)

// AsksForTrends reports whether the question asks for method trends.
func AsksForTrends(question string) bool {
	return trendCue.MatchString(question)
}

// LimitationCategory buckets a limitation statement. The categories are
// checked in order and the first match wins; "general" is the fallback.
func LimitationCategory(text string) string {
	lower := strings.ToLower(text)
	for _, c := range limitationCategories {
		for _, w := range c.words {
			if strings.Contains(lower, w) {
				return c.name
			}
		}
	}
	return "general"
}

var limitationCategories = []struct {
	name  string
	words []string
}{
	{"data", []string{"small dataset", "limited data", "data scarcity", "few samples", "labeled data", "annotated data", "sample size", "training data"}},
	{"generalization", []string{"generaliz", "generalis", "out-of-distribution", "domain shift", "other domains", "transfer to"}},
	{"compute", []string{"computational", "compute", "gpu", "memory footprint", "expensive", "training time", "inference time", "latency"}},
	{"scalability", []string{"scal"}},
	{"evaluation", []string{"only evaluate", "limited evaluation", "single benchmark", "evaluated only", "benchmark"}},
	{"interpretability", []string{"interpretab", "explainab", "black box", "black-box"}},
	{"bias", []string{"bias", "fairness"}},
	{"robustness", []string{"robust", "adversarial", "noise", "noisy"}},
}
