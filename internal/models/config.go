package models

import "time"

// ConfidenceRules fixes the confidence thresholds used by the Decision
// Engine (spec.md §4.4, §6 rules.confidence).
type ConfidenceRules struct {
	MinimumOverall      float64 `yaml:"minimumOverall" json:"minimumOverall"`
	MinimumField        float64 `yaml:"minimumField" json:"minimumField"`
	OCRThreshold        float64 `yaml:"ocrThreshold" json:"ocrThreshold"`
	FuzzyMatchThreshold float64 `yaml:"fuzzyMatchThreshold" json:"fuzzyMatchThreshold"`
}

// FuzzyRules configures the Fuzzy Comparator (spec.md §4.3, §6 rules.fuzzy).
type FuzzyRules struct {
	Enabled                   bool     `yaml:"enabled" json:"enabled"`
	Algorithms                []string `yaml:"algorithms" json:"algorithms"` // declared order; e.g. ["levenshtein","jaro_winkler"]
	StringSimilarityThreshold float64  `yaml:"stringSimilarityThreshold" json:"stringSimilarityThreshold"`
	NumberTolerance           float64  `yaml:"numberTolerance" json:"numberTolerance"`
	CaseInsensitive           bool     `yaml:"caseInsensitive" json:"caseInsensitive"`
	IgnoreWhitespace          bool     `yaml:"ignoreWhitespace" json:"ignoreWhitespace"`
}

// WhitespacePolicy controls the order-sensitive whitespace pass (spec.md §4.2).
type WhitespacePolicy struct {
	TrimLeading      bool `yaml:"trimLeading" json:"trimLeading"`
	TrimTrailing     bool `yaml:"trimTrailing" json:"trimTrailing"`
	CollapseInternal bool `yaml:"collapseInternal" json:"collapseInternal"`
}

// CasePolicy names the case transform applied per field type.
type CasePolicy string

const (
	CaseLower    CasePolicy = "lowercase"
	CaseUpper    CasePolicy = "uppercase"
	CaseTitle    CasePolicy = "titleCase"
	CasePreserve CasePolicy = "preserve"
)

// SpecialCharsPolicy controls accent/quote/dash normalization.
type SpecialCharsPolicy struct {
	StripAccents bool `yaml:"stripAccents" json:"stripAccents"`
	UnifyQuotes  bool `yaml:"unifyQuotes" json:"unifyQuotes"`
	UnifyDashes  bool `yaml:"unifyDashes" json:"unifyDashes"`
}

// NumberPolicy controls numeric parsing during normalization.
type NumberPolicy struct {
	DecimalSeparator     string `yaml:"decimalSeparator" json:"decimalSeparator"`
	ThousandSeparator    string `yaml:"thousandSeparator" json:"thousandSeparator"`
	StripCurrencySymbols bool   `yaml:"stripCurrencySymbols" json:"stripCurrencySymbols"`
}

// DatePolicy controls date parsing/formatting during normalization.
type DatePolicy struct {
	TargetFormat         string   `yaml:"targetFormat" json:"targetFormat"`
	AcceptedInputFormats []string `yaml:"acceptedInputFormats" json:"acceptedInputFormats"`
}

// NormalizationRules groups every Normalizer (C2) policy (spec.md §4.2, §6
// rules.normalization). CasePerFieldType maps a FieldType to a CasePolicy;
// unset entries fall back to the documented per-type default.
type NormalizationRules struct {
	Whitespace       WhitespacePolicy         `yaml:"whitespace" json:"whitespace"`
	CasePerFieldType map[FieldType]CasePolicy `yaml:"casePerFieldType" json:"casePerFieldType"`
	SpecialChars     SpecialCharsPolicy       `yaml:"specialChars" json:"specialChars"`
	Numbers          NumberPolicy             `yaml:"numbers" json:"numbers"`
	Dates            DatePolicy               `yaml:"dates" json:"dates"`
}

// ErrorHandlingRules configures retry/escalation policy (spec.md §4.10, §6
// rules.errorHandling).
type ErrorHandlingRules struct {
	MaxRetryAttempts    int      `yaml:"maxRetryAttempts" json:"maxRetryAttempts"`
	RetryDelayMs        int      `yaml:"retryDelayMs" json:"retryDelayMs"`
	ExponentialBackoff  bool     `yaml:"exponentialBackoff" json:"exponentialBackoff"`
	CriticalErrors      []string `yaml:"criticalErrors" json:"criticalErrors"`
	RecoverableErrors   []string `yaml:"recoverableErrors" json:"recoverableErrors"`
	EscalationThreshold float64  `yaml:"escalationThreshold" json:"escalationThreshold"`
}

// CachingConfig toggles and bounds the per-subsystem caches (spec.md §6
// performance.caching).
type CachingConfig struct {
	DOMSnapshots        bool          `yaml:"domSnapshots" json:"domSnapshots"`
	OCRResults          bool          `yaml:"ocrResults" json:"ocrResults"`
	ValidationDecisions bool          `yaml:"validationDecisions" json:"validationDecisions"`
	TTL                 time.Duration `yaml:"ttl" json:"ttl"`
}

// StageTimeouts holds the per-stage timeout defaults (spec.md §5).
type StageTimeouts struct {
	Navigation         time.Duration `yaml:"navigation" json:"navigation"`
	DOMExtraction      time.Duration `yaml:"domExtraction" json:"domExtraction"`
	OCRProcessing      time.Duration `yaml:"ocrProcessing" json:"ocrProcessing"`
	ValidationDecision time.Duration `yaml:"validationDecision" json:"validationDecision"`
	EvidenceCollection time.Duration `yaml:"evidenceCollection" json:"evidenceCollection"`
}

// PerformanceConfig groups batch/concurrency/caching/timeout settings
// (spec.md §6 performance).
type PerformanceConfig struct {
	BatchSize       int           `yaml:"batchSize" json:"batchSize"`
	ParallelWorkers int           `yaml:"parallelWorkers" json:"parallelWorkers"`
	Caching         CachingConfig `yaml:"caching" json:"caching"`
	Timeouts        StageTimeouts `yaml:"timeouts" json:"timeouts"`
}

// EvidenceConfig groups evidence-retention settings (spec.md §6 evidence).
type EvidenceConfig struct {
	RetentionDays        int  `yaml:"retentionDays" json:"retentionDays"`
	ScreenshotEnabled    bool `yaml:"screenshotEnabled" json:"screenshotEnabled"`
	DOMSnapshotEnabled   bool `yaml:"domSnapshotEnabled" json:"domSnapshotEnabled"`
	CompressionEnabled   bool `yaml:"compressionEnabled" json:"compressionEnabled"`
	CompressionAfterDays int  `yaml:"compressionAfterDays" json:"compressionAfterDays"`
	IncludeInReports     bool `yaml:"includeInReports" json:"includeInReports"`
}

// ValidationConfig is the top-level configuration surface the orchestrator
// is constructed from (spec.md §3, §6).
type ValidationConfig struct {
	URLTemplate   string          `yaml:"urlTemplate" json:"urlTemplate"`
	FieldMappings []FieldMapping  `yaml:"fieldMappings" json:"fieldMappings"`
	Rules         Rules           `yaml:"rules" json:"rules"`
	Performance   PerformanceConfig `yaml:"performance" json:"performance"`
	Evidence      EvidenceConfig  `yaml:"evidence" json:"evidence"`

	// RulesetVersion feeds the decision cache key (spec.md §4.4) and is
	// bumped whenever Rules/FieldMappings change in a way that should
	// invalidate previously cached decisions.
	RulesetVersion string `yaml:"rulesetVersion" json:"rulesetVersion"`
}

// Rules is the umbrella for the three rule groups.
type Rules struct {
	Confidence    ConfidenceRules    `yaml:"confidence" json:"confidence"`
	Fuzzy         FuzzyRules         `yaml:"fuzzy" json:"fuzzy"`
	Normalization NormalizationRules `yaml:"normalization" json:"normalization"`
	ErrorHandling ErrorHandlingRules `yaml:"errorHandling" json:"errorHandling"`
}
