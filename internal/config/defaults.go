// Package config loads, defaults, and validates the ValidationConfig
// surface the orchestrator is constructed from (spec.md §6, §10.3).
// Adapted from the teacher's config/app.go and config/defaults.go: a
// Load(path) function that falls back to defaults on a missing file, an
// applyDefaults pass that fills named default constants per option group
// (the equivalent of the teacher's ConvertJSONToDNSConfig/
// ConvertJSONToHTTPConfig), and a Validate() that rejects structurally
// unsound configs with a stageerr.KindConfigInvalid error.
package config

import (
	"time"

	"github.com/fntelecomllc/rowvalidator/internal/models"
)

// Named defaults, one constant per option group, mirroring the teacher's
// config/defaults.go naming convention.
const (
	DefaultMinimumOverallConfidence = 0.85
	DefaultMinimumFieldConfidence   = 0.80
	DefaultOCRThreshold             = 0.5
	DefaultFuzzyMatchThreshold      = 0.85

	DefaultStringSimilarityThreshold = 0.85
	DefaultNumberTolerance           = 0.01

	DefaultMaxRetryAttempts    = 3
	DefaultRetryDelayMs        = 2000
	DefaultEscalationThreshold = 0.2

	DefaultBatchSize       = 50
	DefaultParallelWorkers = 3

	DefaultNavigationTimeout         = 30 * time.Second
	DefaultDOMExtractionTimeout      = 10 * time.Second
	DefaultOCRProcessingTimeout      = 45 * time.Second
	DefaultValidationDecisionTimeout = 5 * time.Second
	DefaultEvidenceCollectionTimeout = 15 * time.Second
	DefaultCacheTTL                  = 10 * time.Minute

	DefaultRetentionDays        = 30
	DefaultCompressionAfterDays = 7

	DefaultRulesetVersion = "v1"
)

var defaultFuzzyAlgorithms = []string{"levenshtein", "jaro_winkler"}

// Default returns a complete ValidationConfig with every documented
// default applied and no field mappings (the caller always supplies
// fieldMappings/urlTemplate; there is no sane default for either).
func Default() *models.ValidationConfig {
	cfg := &models.ValidationConfig{RulesetVersion: DefaultRulesetVersion}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills every zero-valued field in cfg with its documented
// default, the way ConvertJSONToDNSConfig/ConvertJSONToHTTPConfig fill gaps
// left by a partial on-disk config (config/app.go).
func applyDefaults(cfg *models.ValidationConfig) {
	if cfg.RulesetVersion == "" {
		cfg.RulesetVersion = DefaultRulesetVersion
	}

	c := &cfg.Rules.Confidence
	if c.MinimumOverall == 0 {
		c.MinimumOverall = DefaultMinimumOverallConfidence
	}
	if c.MinimumField == 0 {
		c.MinimumField = DefaultMinimumFieldConfidence
	}
	if c.OCRThreshold == 0 {
		c.OCRThreshold = DefaultOCRThreshold
	}
	if c.FuzzyMatchThreshold == 0 {
		c.FuzzyMatchThreshold = DefaultFuzzyMatchThreshold
	}

	f := &cfg.Rules.Fuzzy
	if len(f.Algorithms) == 0 {
		f.Algorithms = append([]string(nil), defaultFuzzyAlgorithms...)
	}
	if f.StringSimilarityThreshold == 0 {
		f.StringSimilarityThreshold = DefaultStringSimilarityThreshold
	}
	if f.NumberTolerance == 0 {
		f.NumberTolerance = DefaultNumberTolerance
	}

	e := &cfg.Rules.ErrorHandling
	if e.MaxRetryAttempts == 0 {
		e.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if e.RetryDelayMs == 0 {
		e.RetryDelayMs = DefaultRetryDelayMs
	}
	if e.EscalationThreshold == 0 {
		e.EscalationThreshold = DefaultEscalationThreshold
	}

	p := &cfg.Performance
	if p.BatchSize == 0 {
		p.BatchSize = DefaultBatchSize
	}
	if p.ParallelWorkers == 0 {
		p.ParallelWorkers = DefaultParallelWorkers
	}
	if p.Caching.TTL == 0 {
		p.Caching.TTL = DefaultCacheTTL
	}

	t := &p.Timeouts
	if t.Navigation == 0 {
		t.Navigation = DefaultNavigationTimeout
	}
	if t.DOMExtraction == 0 {
		t.DOMExtraction = DefaultDOMExtractionTimeout
	}
	if t.OCRProcessing == 0 {
		t.OCRProcessing = DefaultOCRProcessingTimeout
	}
	if t.ValidationDecision == 0 {
		t.ValidationDecision = DefaultValidationDecisionTimeout
	}
	if t.EvidenceCollection == 0 {
		t.EvidenceCollection = DefaultEvidenceCollectionTimeout
	}

	ev := &cfg.Evidence
	if ev.RetentionDays == 0 {
		ev.RetentionDays = DefaultRetentionDays
	}
	if ev.CompressionAfterDays == 0 {
		ev.CompressionAfterDays = DefaultCompressionAfterDays
	}

	for i := range cfg.FieldMappings {
		m := &cfg.FieldMappings[i]
		if m.Strategy == "" {
			m.Strategy = models.StrategyDOM
		}
		if m.FieldType == "" {
			m.FieldType = models.FieldText
		}
	}
}
