package decision

import (
	"context"
	"fmt"

	"github.com/fntelecomllc/rowvalidator/internal/fuzzy"
	"github.com/fntelecomllc/rowvalidator/internal/models"
	"github.com/fntelecomllc/rowvalidator/internal/normalize"
)

// Adjudicator is the LLM Adjudicator (C5) contract as seen by the Decision
// Engine (spec.md §4.5). Defined here, not imported from package llm, to
// keep decision free of a dependency on the concrete transport — any type
// satisfying this (including a test double) can be plugged in, per spec.md
// §9's capability-interface pattern.
type Adjudicator interface {
	Adjudicate(ctx context.Context, csvValue, webValue string, fieldType models.FieldType, fieldName string) (AdjudicationResult, error)
}

// AdjudicationResult is what an Adjudicator returns.
type AdjudicationResult struct {
	Match         bool
	Confidence    float64
	Reasoning     string
	NormalizedCSV string
	NormalizedWeb string
	RawResponse   string
}

// Engine is the Decision Engine (C4).
type Engine struct {
	cache      *Cache
	adjudicator Adjudicator // may be nil: LLM is optional (spec.md §4.4 step 5)
}

// NewEngine builds an Engine. cache and adjudicator may each be nil.
func NewEngine(cache *Cache, adjudicator Adjudicator) *Engine {
	return &Engine{cache: cache, adjudicator: adjudicator}
}

// FieldContext is everything Decide needs for one field.
type FieldContext struct {
	CSVField        string
	CSVValue        string
	WebValue        string
	WebMethod       models.Method // method the value came from: dom or ocr
	FieldType       models.FieldType
	FieldThreshold  float64 // rules.confidence.minimumField, or a per-field override
	Strategy        models.Strategy
	Policy          models.NormalizationRules
	FuzzyAlgorithms []string
	FuzzyThreshold  float64
	NumberTolerance float64
	RulesetVersion  string
}

// Decide implements spec.md §4.4 steps 1-6.
func (e *Engine) Decide(ctx context.Context, fc FieldContext) models.FieldDecision {
	fd := models.FieldDecision{
		CSVField: fc.CSVField,
		CSVValue: fc.CSVValue,
		WebValue: fc.WebValue,
	}

	// Step 1: normalize both sides.
	normCSV := normalize.Normalize(fc.CSVValue, fc.FieldType, fc.Policy)
	normWeb := normalize.Normalize(fc.WebValue, fc.FieldType, fc.Policy)

	// Step 2: normalization failure short-circuits.
	if !normCSV.OK || !normWeb.OK {
		fd.Match = false
		fd.Confidence = 0
		reason := "normalization failed:"
		if !normCSV.OK {
			reason += " csv=" + normCSV.Reason
		}
		if !normWeb.OK {
			reason += " web=" + normWeb.Reason
		}
		fd.Reasoning = reason
		fd.Method = fc.WebMethod
		fd.Issues = append(fd.Issues, "normalization_failed")
		return fd
	}
	fd.NormalizedCSV = normCSV.Text
	fd.NormalizedWeb = normWeb.Text

	// Decision cache lookup (spec.md §4.4, §5).
	var cacheKey string
	if e.cache != nil {
		cacheKey = Key(fd.NormalizedCSV, fd.NormalizedWeb, fc.FieldType, fc.RulesetVersion)
		if cached, hit := e.cache.Get(cacheKey); hit {
			cached.Issues = append(append([]string{}, cached.Issues...), "cache_hit")
			return cached
		}
	}

	// Step 3: exact equality.
	if fd.NormalizedCSV == fd.NormalizedWeb {
		fd.Match = true
		if fc.CSVValue == fc.WebValue {
			fd.Confidence = 1.0
		} else {
			fd.Confidence = 0.95
		}
		fd.Reasoning = "exact match on normalized values"
		fd.Method = fc.WebMethod
		e.store(cacheKey, fd)
		return fd
	}

	// Step 4: fuzzy comparison, type-aware.
	fuzzyDec, handled := compareByType(fc, fd.NormalizedCSV, fd.NormalizedWeb)
	if !handled {
		fuzzyDec = fuzzy.CompareStrings(fd.NormalizedCSV, fd.NormalizedWeb, fc.FuzzyAlgorithms, fc.FuzzyThreshold)
	}
	fd.Match = fuzzyDec.Match
	fd.Confidence = fuzzyDec.Confidence
	score := fuzzyDec.Score
	fd.FuzzyScore = &score
	fd.Method = models.MethodFuzzy
	fd.Reasoning = fmt.Sprintf("fuzzy comparison score=%.3f", fuzzyDec.Score)

	// Step 5: optional LLM tiebreak.
	belowFieldThreshold := fd.Confidence < fc.FieldThreshold
	if fc.Strategy == models.StrategyHybrid && belowFieldThreshold && e.adjudicator != nil {
		adj, err := e.adjudicator.Adjudicate(ctx, fc.CSVValue, fc.WebValue, fc.FieldType, fc.CSVField)
		if err != nil {
			fd.Issues = append(fd.Issues, "llm_unavailable")
		} else {
			fd = mergeLLM(fd, fuzzyDec, adj)
		}
	}

	e.store(cacheKey, fd)
	return fd
}

func (e *Engine) store(key string, fd models.FieldDecision) {
	if e.cache == nil || key == "" {
		return
	}
	// Store a copy without the cache_hit issue so future hits start clean.
	stored := fd
	stored.Issues = append([]string{}, fd.Issues...)
	e.cache.Set(key, stored)
}

func compareByType(fc FieldContext, normCSV, normWeb string) (fuzzy.Decision, bool) {
	switch fc.FieldType {
	case models.FieldNumber, models.FieldCurrency:
		return tryResult(fuzzy.CompareNumbers(normCSV, normWeb, fc.NumberTolerance))
	case models.FieldDate:
		return tryResult(fuzzy.CompareDates(normCSV, normWeb, ""))
	default:
		return fuzzy.Decision{}, false
	}
}

func tryResult(d fuzzy.Decision, ok bool) (fuzzy.Decision, bool) { return d, ok }

// mergeLLM implements spec.md §4.4 step 5-6 and the tie-break rule: take the
// better-scored of (fuzzy, LLM), preferring agreement when scores are
// within 0.05; if they disagree and are within 0.1 of each other, the
// deterministic fuzzy decision wins (reproducibility).
func mergeLLM(fd models.FieldDecision, fuzzyDec fuzzy.Decision, adj AdjudicationResult) models.FieldDecision {
	diff := adj.Confidence - fuzzyDec.Confidence
	if diff < 0 {
		diff = -diff
	}
	agree := fuzzyDec.Match == adj.Match

	switch {
	case agree && diff <= 0.05:
		// Agreement within 0.05: the LLM's verdict, confidence and
		// reasoning are adopted, and the decision is attributed to the LLM.
		fd.Match = adj.Match
		fd.Confidence = adj.Confidence
		fd.Reasoning = adj.Reasoning
		fd.Method = models.MethodLLM
	case !agree && diff <= 0.1:
		// Disagreement within tie-break band: deterministic fuzzy wins.
		fd.Reasoning = fmt.Sprintf("fuzzy/llm disagreement within tie-break band (fuzzy=%.3f llm=%.3f); fuzzy result retained for reproducibility", fuzzyDec.Confidence, adj.Confidence)
	case adj.Confidence > fuzzyDec.Confidence:
		fd.Match = adj.Match
		fd.Confidence = adj.Confidence
		fd.Reasoning = adj.Reasoning
		fd.Method = models.MethodLLM
	default:
		// fuzzy stays the winner; reasoning already set.
	}
	return fd
}

// Aggregate implements spec.md §3 invariants 1-2: overallMatch is true iff
// every required field matches and overallConfidence >= minimumOverall;
// overallConfidence is the minimum of the per-required-field confidences
// (Open Question #1, resolved to the minimum per spec.md §3 as fixed; see
// DESIGN.md).
func Aggregate(decisions []models.FieldDecision, required map[string]bool, minimumOverall float64) (overallMatch bool, overallConfidence float64) {
	first := true
	minConf := 1.0
	allRequiredMatch := true
	anyRequired := false
	for _, fd := range decisions {
		if !required[fd.CSVField] {
			continue
		}
		anyRequired = true
		if !fd.Match {
			allRequiredMatch = false
		}
		if first || fd.Confidence < minConf {
			minConf = fd.Confidence
			first = false
		}
	}
	if !anyRequired {
		minConf = 1.0
	}
	overallConfidence = minConf
	overallMatch = allRequiredMatch && overallConfidence >= minimumOverall
	return
}
