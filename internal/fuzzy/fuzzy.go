// Package fuzzy implements the Fuzzy Comparator (C3): deterministic
// similarity over two already-normalized strings (spec.md §4.3). New code —
// the teacher has no string-similarity component — but the two algorithms
// wired in are real ecosystem libraries rather than hand-rolled: Levenshtein
// ratio via github.com/agext/levenshtein (grounded: present in
// Devi-Muna-CloudSlash/go.mod and a DataDog-datadog-agent manifest
// elsewhere in the retrieval pack) and Jaro-Winkler via
// github.com/xrash/smetrics (named, not grounded: no Jaro-Winkler
// implementation exists anywhere in the pack, and spec.md requires it by
// name).
package fuzzy

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/agext/levenshtein"
	"github.com/xrash/smetrics"
)

const (
	AlgorithmLevenshtein = "levenshtein"
	AlgorithmJaroWinkler = "jaro_winkler"
)

// StringScore returns the maximum similarity score over the enabled
// algorithms, applied in declared order (spec.md §4.3: "the maximum score
// over enabled algorithms is the final string score").
func StringScore(a, b string, algorithms []string) float64 {
	if len(algorithms) == 0 {
		algorithms = []string{AlgorithmLevenshtein, AlgorithmJaroWinkler}
	}
	best := 0.0
	for _, alg := range algorithms {
		var s float64
		switch alg {
		case AlgorithmLevenshtein:
			s = levenshteinRatio(a, b)
		case AlgorithmJaroWinkler:
			s = smetrics.JaroWinkler(a, b, 0.7, 4)
		default:
			continue
		}
		if s > best {
			best = s
		}
	}
	return best
}

func levenshteinRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	dist := levenshtein.Distance(a, b, nil)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(dist)/float64(maxLen)
}

// Decision is the outcome of comparing two normalized values of a given
// field type, independent of the Decision Engine's broader per-field
// pipeline — it only implements spec.md §4.3's matching rule per type.
type Decision struct {
	Match      bool
	Confidence float64
	Score      float64 // string score, or 1.0/0.0 for number/date equality
}

// CompareStrings applies the configured threshold T_fuzzy (spec.md §4.3):
// score >= threshold => match with confidence = score; otherwise no match
// with confidence = 1-score bounded to [0, 0.5].
func CompareStrings(a, b string, algorithms []string, threshold float64) Decision {
	s := StringScore(a, b, algorithms)
	if s >= threshold {
		return Decision{Match: true, Confidence: s, Score: s}
	}
	conf := 1 - s
	if conf > 0.5 {
		conf = 0.5
	}
	if conf < 0 {
		conf = 0
	}
	return Decision{Match: false, Confidence: conf, Score: s}
}

// CompareNumbers matches iff |a-b| <= tolerance (spec.md §4.3).
func CompareNumbers(a, b string, tolerance float64) (Decision, bool) {
	af, aerr := strconv.ParseFloat(a, 64)
	bf, berr := strconv.ParseFloat(b, 64)
	if aerr != nil || berr != nil {
		return Decision{}, false
	}
	diff := math.Abs(af - bf)
	if diff <= tolerance {
		return Decision{Match: true, Confidence: 1.0, Score: 1.0}, true
	}
	return Decision{Match: false, Confidence: 0.0, Score: 0.0}, true
}

// CompareDates matches iff both parse to the same instant at day
// resolution (spec.md §4.3). layout is the common on-the-wire layout both
// values are expected to already be normalized to.
func CompareDates(a, b, layout string) (Decision, bool) {
	if layout == "" {
		layout = "2006-01-02"
	}
	ta, aerr := time.Parse(layout, a)
	tb, berr := time.Parse(layout, b)
	if aerr != nil || berr != nil {
		return Decision{}, false
	}
	if ta.Year() == tb.Year() && ta.YearDay() == tb.YearDay() {
		return Decision{Match: true, Confidence: 1.0, Score: 1.0}, true
	}
	return Decision{Match: false, Confidence: 0.0, Score: 0.0}, true
}

// Symmetric reports whether scoring is symmetric for the pair (a,b)
// (fuzzyScore(a,b)==fuzzyScore(b,a), one half of spec.md §8's property);
// reflexivity (fuzzyScore(a,a)==1.0) is not checked. It is not invoked by
// the core pipeline.
func Symmetric(a, b string, algorithms []string) bool {
	return StringScore(a, b, algorithms) == StringScore(b, a, algorithms)
}

// NormalizeForCompare is a tiny helper so callers that only have raw
// strings (tests) can cheaply fold case/whitespace the way
// FuzzyRules.CaseInsensitive/IgnoreWhitespace intend, without pulling in
// the full normalize package's policy machinery.
func NormalizeForCompare(s string, caseInsensitive, ignoreWhitespace bool) string {
	if ignoreWhitespace {
		s = strings.Join(strings.Fields(s), " ")
	}
	if caseInsensitive {
		s = strings.ToLower(s)
	}
	return s
}
