// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package lexicon holds the fixed vocabularies that make extraction,
// contradiction detection and question matching deterministic: predicate
// keys, synonym tables mapping surface forms to canonical names, and value
// normalization.
package lexicon

import (
	"math"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Predicate keys.
const (
	KeyOptimizer    = "optimizer"
	KeyLearningRate = "learning_rate"
	KeyBatchSize    = "batch_size"
	KeyEpochs       = "epochs"
	KeyArchitecture = "architecture"
	KeyMetric       = "metric"
	KeyDataset      = "dataset"
	KeyLimitation   = "limitation"

	// ResultPrefix starts the key of a result claim, e.g. "result.accuracy".
	ResultPrefix = "result."
)

// comparableKeys are single-valued per method: two papers giving different
// values disagree. Every other key is multi-valued (a paper may use many
// datasets or report many limitations) and never contradicts.
var comparableKeys = map[string]bool{
	KeyOptimizer:    true,
	KeyLearningRate: true,
	KeyBatchSize:    true,
	KeyEpochs:       true,
}

// Comparable reports whether claims with this key can contradict.
func Comparable(key string) bool {
	return comparableKeys[key]
}

// ComparableKeys returns the comparable keys in sorted order.
func ComparableKeys() []string {
	keys := make([]string, 0, len(comparableKeys))
	for k := range comparableKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// numericKeys hold numbers and compare by numeric value.
var numericKeys = map[string]bool{
	KeyLearningRate: true,
	KeyBatchSize:    true,
	KeyEpochs:       true,
}

// Equivalent reports whether two normalized values of key mean the same
// thing: numerically equal for numeric keys, the same canonical name
// otherwise.
func Equivalent(key, a, b string) bool {
	if a == b {
		return true
	}
	if numericKeys[key] {
		fa, errA := strconv.ParseFloat(a, 64)
		fb, errB := strconv.ParseFloat(b, 64)
		return errA == nil && errB == nil && fa == fb
	}
	if t := tableFor(key); t != nil {
		ca, okA := t.Canonical(a)
		cb, okB := t.Canonical(b)
		return okA && okB && ca == cb
	}
	return false
}

func tableFor(key string) *Table {
	switch key {
	case KeyOptimizer:
		return Optimizers
	case KeyArchitecture:
		return Architectures
	case KeyDataset:
		return Datasets
	case KeyMetric:
		return Metrics
	}
	return nil
}

// Table maps surface forms to canonical names. Matching is
// case-insensitive on word boundaries; longer aliases win over their
// prefixes.
type Table struct {
	re    *regexp.Regexp
	canon map[string]string
	names []string
}

// NewTable builds a table from canonical name → aliases. The canonical
// name is itself an alias.
func NewTable(entries map[string][]string) *Table {
	t := &Table{canon: make(map[string]string)}
	var aliases []string
	for name, extra := range entries {
		t.names = append(t.names, name)
		for _, a := range append([]string{name}, extra...) {
			a = fold(a)
			t.canon[a] = name
			aliases = append(aliases, a)
		}
	}
	sort.Strings(t.names)

	// Longest first so "adamw" is tried before "adam"; ties sorted for a
	// stable pattern.
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i]) != len(aliases[j]) {
			return len(aliases[i]) > len(aliases[j])
		}
		return aliases[i] < aliases[j]
	})
	quoted := make([]string, len(aliases))
	for i, a := range aliases {
		words := strings.Split(a, " ")
		for j, w := range words {
			words[j] = regexp.QuoteMeta(w)
		}
		quoted[i] = strings.Join(words, `[\s-]+`)
	}
	t.re = regexp.MustCompile(`(?i)(?:^|[^\pL\pN])(` + strings.Join(quoted, "|") + `)(?:$|[^\pL\pN])`)
	return t
}

// Canonical returns the canonical name for a surface form.
func (t *Table) Canonical(s string) (string, bool) {
	name, ok := t.canon[fold(s)]
	return name, ok
}

// fold lowercases s and treats hyphens and whitespace runs as one space.
func fold(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == '-' || unicode.IsSpace(r)
	})
	return strings.Join(words, " ")
}

// Mention is one occurrence of a table entry in text; Start and End are
// byte offsets of the matched alias.
type Mention struct {
	Name       string
	Start, End int
}

// Mentions returns every occurrence in text, in order.
func (t *Table) Mentions(text string) []Mention {
	var out []Mention
	for start := 0; start < len(text); {
		loc := t.re.FindStringSubmatchIndex(text[start:])
		if loc == nil {
			break
		}
		s, e := start+loc[2], start+loc[3]
		if name, ok := t.Canonical(text[s:e]); ok {
			out = append(out, Mention{Name: name, Start: s, End: e})
		}
		// Resume at the end of the alias, not the trailing delimiter, so
		// adjacent mentions separated by one character are both found.
		start = e
	}
	return out
}

// FindAll returns the canonical names mentioned in text, each once, in
// order of first mention.
func (t *Table) FindAll(text string) []string {
	var out []string
	for _, m := range t.Mentions(text) {
		if !slices.Contains(out, m.Name) {
			out = append(out, m.Name)
		}
	}
	return out
}

// Names returns the canonical names in sorted order.
func (t *Table) Names() []string {
	return slices.Clone(t.names)
}

// Optimizers covers the training optimizers commonly named in papers.
var Optimizers = NewTable(map[string][]string{
	"adam":     {"adam optimizer", "adaptive moment estimation"},
	"adamw":    {"adam-w", "decoupled weight decay"},
	"sgd":      {"stochastic gradient descent", "sgd with momentum", "momentum sgd", "nesterov momentum"},
	"rmsprop":  {"rms prop", "rms-prop"},
	"adagrad":  {"ada grad"},
	"adadelta": {"ada delta"},
	"lamb":     {"lamb optimizer"},
	"lion":     {"lion optimizer"},
	"lbfgs":    {"l-bfgs", "limited-memory bfgs"},
})

// Architectures covers model families.
var Architectures = NewTable(map[string][]string{
	"transformer": {"transformers", "self-attention network"},
	"bert":        {"roberta", "bert-base", "bert-large"},
	"gpt":         {"gpt-2", "gpt-3", "gpt2", "gpt3"},
	"t5":          {"t5-base", "t5-large"},
	"resnet":      {"resnet-50", "resnet-101", "resnet50", "resnet101", "residual network"},
	"vit":         {"vision transformer"},
	"lstm":        {"long short-term memory", "bilstm"},
	"gru":         {"gated recurrent unit"},
	"cnn":         {"convolutional neural network", "convnet"},
	"rnn":         {"recurrent neural network"},
	"unet":        {"u-net"},
	"gan":         {"generative adversarial network"},
	"mlp":         {"multilayer perceptron", "multi-layer perceptron"},
	"gnn":         {"graph neural network", "gcn", "graph convolutional network"},
})

// Datasets covers common benchmark corpora.
var Datasets = NewTable(map[string][]string{
	"imagenet":      {"imagenet-1k", "ilsvrc", "ilsvrc-2012"},
	"cifar-10":      {"cifar10"},
	"cifar-100":     {"cifar100"},
	"mnist":         {},
	"fashion-mnist": {},
	"coco":          {"ms coco", "mscoco"},
	"squad":         {"squad 2.0", "squad v2"},
	"glue":          {},
	"superglue":     {},
	"wikitext-103":  {"wikitext103", "wikitext"},
	"penn treebank": {"ptb"},
	"librispeech":   {},
	"ms marco":      {"msmarco"},
	"wmt14":         {"wmt 2014", "wmt'14"},
	"pubmed":        {},
	"cora":          {},
	"kinetics":      {"kinetics-400"},
})

// Metrics covers evaluation measures.
var Metrics = NewTable(map[string][]string{
	"accuracy":               {"top-1 accuracy", "top1 accuracy", "acc"},
	"f1":                     {"f1 score", "f-measure", "f-score"},
	"bleu":                   {"bleu score"},
	"rouge":                  {"rouge-l", "rouge score"},
	"perplexity":             {"ppl"},
	"precision":              {},
	"recall":                 {},
	"auc":                    {"auroc", "roc auc", "area under the curve"},
	"mean average precision": {},
	"exact match":            {},
	"wer":                    {"word error rate"},
})

// NormalizeNumber renders a numeric literal canonically, so "1e-3",
// "0.001" and "10^-3" normalize alike. Thousands separators are ignored.
// The second return is false when s is not a number.
func NormalizeNumber(s string) (string, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	s = strings.ReplaceAll(s, "−", "-")
	s = strings.ReplaceAll(s, "×", "x")

	var f float64
	switch {
	case strings.Contains(s, "^"):
		// forms: "10^-3", "1x10^-3", "5 x 10^-4"
		mant := 1.0
		base := s
		if i := strings.LastIndex(s, "x"); i >= 0 {
			m, err := strconv.ParseFloat(strings.TrimSpace(s[:i]), 64)
			if err != nil {
				return "", false
			}
			mant = m
			base = strings.TrimSpace(s[i+1:])
		}
		b, e, ok := strings.Cut(base, "^")
		if !ok || strings.TrimSpace(b) != "10" {
			return "", false
		}
		exp, err := strconv.Atoi(strings.TrimSpace(e))
		if err != nil {
			return "", false
		}
		f = mant * math.Pow(10, float64(exp))
	default:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return "", false
		}
		f = v
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	// Round away float noise from the exponent path.
	f, _ = strconv.ParseFloat(strconv.FormatFloat(f, 'g', 12, 64), 64)
	return strconv.FormatFloat(f, 'g', -1, 64), true
}
