// Package models holds the data model shared by every stage of the
// validation orchestrator: rows flowing in, field mappings describing how
// to validate them, and the observations/decisions/results flowing out.
package models

import "time"

// FieldType enumerates the declared type of one mapped column.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldPhone    FieldType = "phone"
	FieldCurrency FieldType = "currency"
	FieldDate     FieldType = "date"
	FieldName     FieldType = "name"
	FieldAddress  FieldType = "address"
	FieldNumber   FieldType = "number"
	FieldBoolean  FieldType = "boolean"
)

// Strategy describes how a field is extracted and compared.
type Strategy string

const (
	StrategyDOM   Strategy = "dom"
	StrategyOCR   Strategy = "ocr"
	StrategyHybrid Strategy = "hybrid"
	StrategyFuzzy Strategy = "fuzzy"
)

// Method records which technique ultimately produced a value or a decision.
type Method string

const (
	MethodDOM    Method = "dom"
	MethodOCR    Method = "ocr"
	MethodFuzzy  Method = "fuzzy"
	MethodLLM    Method = "llm"
	MethodManual Method = "manual"
)

// Row is one input record. Values are scalars; absence is represented by
// the key missing from the map, never by a typed nil.
type Row struct {
	ID     string
	Index  int
	Values map[string]any
}

// Get performs an exact-key then case-insensitive-key lookup, mirroring the
// URL-interpolation rule in Navigator.Load.
func (r Row) Get(key string) (any, bool) {
	if v, ok := r.Values[key]; ok {
		return v, true
	}
	lower := lowerASCII(key)
	for k, v := range r.Values {
		if lowerASCII(k) == lower {
			return v, true
		}
	}
	return nil, false
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// CustomRule is a single extension point for field-specific overrides; the
// orchestrator core treats rules as opaque key/value pairs and leaves
// interpretation to the Normalizer/Decision Engine implementation invoked
// for that field.
type CustomRule struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// FieldMapping ties one row column to a page selector, type, and strategy.
type FieldMapping struct {
	CSVField          string       `yaml:"csvField" json:"csvField"`
	WebSelector       string       `yaml:"webSelector" json:"webSelector"`
	FieldType         FieldType    `yaml:"fieldType" json:"fieldType"`
	Required          bool         `yaml:"required" json:"required"`
	Strategy          Strategy     `yaml:"strategy" json:"strategy"`
	CustomRules       []CustomRule `yaml:"customRules" json:"customRules"`
	FallbackSelectors []string     `yaml:"fallbackSelectors" json:"fallbackSelectors"`
}

// Screenshot is one captured image, either of the full page or one element.
type ScreenshotKind string

const (
	ScreenshotFull    ScreenshotKind = "full"
	ScreenshotElement ScreenshotKind = "element"
)

type Screenshot struct {
	ID         string
	Bytes      []byte
	Encoding   string
	Region     *BoundingBox
	CapturedAt time.Time
	Kind       ScreenshotKind
	FieldName  string // set when Kind == ScreenshotElement
}

// BoundingBox is a pixel rectangle within the rendered viewport.
type BoundingBox struct {
	X, Y, Width, Height float64
}

// ExtractedField is the value the Page Extractor produced for one mapping.
type ExtractedField struct {
	CSVField          string
	RawValue          string
	NormalizedValue   string
	Method            Method
	Confidence        float64
	ElementBoundingBox *BoundingBox
}

// PageObservation is everything the Navigator+Page Extractor recorded for
// one row's page load.
type PageObservation struct {
	URL             string
	Title           string
	LoadTimeMs      int64
	StatusCode      int
	Redirects       []string
	Viewport        string
	CapturedAt      time.Time
	ExtractedFields []ExtractedField
	Screenshots     []Screenshot
	DOMSnapshot     string
}

// FieldDecision is the field-level verdict produced by the Decision Engine.
type FieldDecision struct {
	CSVField      string
	CSVValue      string
	WebValue      string
	NormalizedCSV string
	NormalizedWeb string
	Match         bool
	Confidence    float64
	Reasoning     string
	Method        Method
	FuzzyScore    *float64
	Issues        []string
}

// RowError records one error encountered while processing a row.
type RowError struct {
	Kind        string
	Message     string
	Recoverable bool
}

// RowResult is the final, frozen outcome for one row.
type RowResult struct {
	RowID             string
	RowIndex          int
	Row               Row
	Observation       *PageObservation
	FieldDecisions    []FieldDecision
	OverallMatch      bool
	OverallConfidence float64
	ProcessingTimeMs  int64
	Errors            []RowError
	EvidenceID        string
}

// RunSummary is the top-level statistics block of a RunReport.
type RunSummary struct {
	TotalRows            int
	Processed            int
	Succeeded            int
	Failed               int
	AvgConfidence        float64
	ErrorRate            float64
	ThroughputRowsPerSec float64
}

// RunStatistics is the detailed breakdown block of a RunReport.
type RunStatistics struct {
	ConfidenceHistogram map[string]int // bucketed as "0.0-0.1", "0.1-0.2", ...
	MethodUsage         map[Method]int
	FieldAccuracy       map[string]float64
	ErrorsByKind        map[string]int
}

// RunExitKind classifies why a run stopped, for CLI exit-code mapping.
type RunExitKind string

const (
	ExitCompleted RunExitKind = "completed"
	ExitEscalated RunExitKind = "escalated"
	ExitCancelled RunExitKind = "cancelled"
)

// RunReport is the final, serializable output of one orchestrator run.
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	ExitKind   RunExitKind
	Summary    RunSummary
	Results    []RowResult
	Statistics RunStatistics
	Config     *ValidationConfig
	Metadata   map[string]string
}
