// Package pipeline implements the Row Pipeline (C9): drives one row through
// navigate -> extract -> decide -> persist evidence, independently of every
// other row (spec.md §3 invariant 3, §4.9). The state machine and transition
// validation are adapted from internal/state/campaign_state_machine.go's
// CampaignStateMachine, generalized from a campaign's draft/running/paused
// lifecycle to a row's single-pass NEW->...->DONE/FAILED lifecycle (no
// pause/resume or retry-in-place transitions: retries are a new Pipeline.Run
// call from the Scheduler, per spec.md §4.10's owner-borrower pattern).
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/fntelecomllc/rowvalidator/internal/decision"
	"github.com/fntelecomllc/rowvalidator/internal/evidence"
	"github.com/fntelecomllc/rowvalidator/internal/extractor"
	"github.com/fntelecomllc/rowvalidator/internal/models"
	"github.com/fntelecomllc/rowvalidator/internal/navigator"
	"github.com/fntelecomllc/rowvalidator/internal/observability"
	"github.com/fntelecomllc/rowvalidator/internal/stageerr"
	"github.com/fntelecomllc/rowvalidator/internal/vlog"
)

// RowState is one stage in a row's lifecycle (spec.md §4.9).
type RowState string

const (
	StateNew                 RowState = "new"
	StateNavigating          RowState = "navigating"
	StateExtracting          RowState = "extracting"
	StateDeciding            RowState = "deciding"
	StatePersistingEvidence  RowState = "persisting_evidence"
	StateDone                RowState = "done"
	StateFailed              RowState = "failed"
)

var transitions = map[RowState][]RowState{
	StateNew:                {StateNavigating, StateFailed},
	StateNavigating:         {StateExtracting, StateFailed},
	StateExtracting:         {StateDeciding, StateFailed},
	StateDeciding:           {StatePersistingEvidence, StateFailed},
	StatePersistingEvidence: {StateDone, StateFailed},
	StateDone:               {},
	StateFailed:             {},
}

type stateMachine struct {
	mu      sync.Mutex
	current RowState
}

func newStateMachine() *stateMachine { return &stateMachine{current: StateNew} }

func (m *stateMachine) transition(to RowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, valid := range transitions[m.current] {
		if valid == to {
			m.current = to
			return nil
		}
	}
	return fmt.Errorf("invalid row state transition from %s to %s", m.current, to)
}

func (m *stateMachine) state() RowState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Pipeline wires one row through the Navigator, Page Extractor, Decision
// Engine and Evidence Collector. A Pipeline instance holds no per-row
// mutable state of its own: Run is safe to call concurrently for different
// rows from the same Pipeline (spec.md §3 invariant 3).
type Pipeline struct {
	nav      *navigator.Navigator
	extract  *extractor.Extractor
	engine   *decision.Engine
	evidence *evidence.Collector
	log      *vlog.Logger
	config   *models.ValidationConfig
	tracer   trace.Tracer
}

// New builds a Pipeline. evidenceCollector may be nil to skip persistence
// (used by tests and by dry-run modes).
func New(nav *navigator.Navigator, ext *extractor.Extractor, engine *decision.Engine, ev *evidence.Collector, config *models.ValidationConfig, logger *vlog.Logger) *Pipeline {
	return &Pipeline{nav: nav, extract: ext, engine: engine, evidence: ev, config: config, log: logger}
}

// WithTracer attaches an OpenTelemetry tracer that wraps every Run call in a
// span covering the row's full navigate->extract->decide->persist lifecycle
// (spec.md's optional tracing, adapted from observability/tracing.go's
// StartSpan helper). A nil tracer (the zero value) disables tracing entirely.
func (p *Pipeline) WithTracer(tracer trace.Tracer) *Pipeline {
	p.tracer = tracer
	return p
}

// Run drives row through its full lifecycle and returns a frozen RowResult
// (spec.md §4.9). It never panics: every stage failure is captured as a
// RowError and the row transitions to StateFailed.
func (p *Pipeline) Run(ctx context.Context, row models.Row) models.RowResult {
	var span trace.Span
	if p.tracer != nil {
		ctx, span = observability.RowSpan(ctx, p.tracer, "pipeline.row", row.ID, row.Index)
		defer span.End()
	}

	start := time.Now()
	sm := newStateMachine()
	result := models.RowResult{RowID: row.ID, RowIndex: row.Index, Row: row}

	fail := func(state RowState, stageErr *stageerr.Error) models.RowResult {
		_ = sm.transition(StateFailed)
		result.Errors = append(result.Errors, models.RowError{
			Kind:        string(stageErr.Kind),
			Message:     stageErr.Error(),
			Recoverable: stageErr.Recoverable,
		})
		// A failed row still gets whatever evidence was captured before the
		// failure (spec.md scenario 6: already-processed rows keep valid
		// evidence); there's nothing to persist before Navigate succeeds.
		if p.evidence != nil && result.Observation != nil {
			evidenceID, err := p.evidence.Collect(p.rowEvidence(row, *result.Observation, result.FieldDecisions))
			if err != nil && p.log != nil {
				p.log.Log("evidence_write_failed", map[string]any{"row_id": row.ID, "state": string(state), "error": err.Error()})
			} else if err == nil {
				result.EvidenceID = evidenceID
			}
		}
		result.ProcessingTimeMs = time.Since(start).Milliseconds()
		if p.log != nil {
			p.log.Log("row_failed", map[string]any{"row_id": row.ID, "state": string(state), "kind": string(stageErr.Kind)})
		}
		if span != nil {
			observability.RecordRowOutcome(span, string(StateFailed), false, 0, result.EvidenceID)
		}
		return result
	}

	if err := sm.transition(StateNavigating); err != nil {
		return fail(StateNew, stageerr.Fatal(stageerr.KindConfigInvalid, err.Error(), nil))
	}
	navCtx, cancel := withStageTimeout(ctx, p.config, func(t models.StageTimeouts) time.Duration { return t.Navigation })
	obs, stageErr := p.nav.Load(navCtx, p.config.URLTemplate, row)
	cancel()
	if stageErr != nil {
		return fail(StateNavigating, stageErr)
	}
	// Recorded on result as soon as it exists so a later failure still has
	// an observation to persist as partial evidence.
	result.Observation = &obs

	if err := sm.transition(StateExtracting); err != nil {
		return fail(StateNavigating, stageerr.Fatal(stageerr.KindConfigInvalid, err.Error(), nil))
	}
	extractCtx, cancel := withStageTimeout(ctx, p.config, func(t models.StageTimeouts) time.Duration { return t.DOMExtraction })
	for _, mapping := range p.config.FieldMappings {
		// A failed/zero-confidence extraction is not a row-fatal error: it
		// still flows into the Decision stage as a zero-confidence field,
		// where a required field forces overallMatch=false through
		// decision.Aggregate (spec.md's boundary scenario: absent selector,
		// no OCR -> match=false, method=dom, confidence=0, not an abort).
		field, _ := p.extract.Extract(extractCtx, mapping, p.config.Rules.Normalization)
		obs.ExtractedFields = append(obs.ExtractedFields, field)
	}
	cancel()

	if err := sm.transition(StateDeciding); err != nil {
		return fail(StateExtracting, stageerr.Fatal(stageerr.KindConfigInvalid, err.Error(), nil))
	}
	decideCtx, cancel := withStageTimeout(ctx, p.config, func(t models.StageTimeouts) time.Duration { return t.ValidationDecision })
	required := map[string]bool{}
	for _, mapping := range p.config.FieldMappings {
		required[mapping.CSVField] = mapping.Required
	}
	var decisions []models.FieldDecision
	for _, field := range obs.ExtractedFields {
		mapping := findMapping(p.config.FieldMappings, field.CSVField)
		csvValue, _ := row.Get(field.CSVField)
		if field.Confidence == 0 {
			// Nothing was extracted (no element, no OCR result): the field is
			// a non-match at zero confidence, attributed to the extraction method.
			decisions = append(decisions, models.FieldDecision{
				CSVField:   field.CSVField,
				CSVValue:   fmt.Sprintf("%v", csvValue),
				Match:      false,
				Confidence: 0,
				Method:     field.Method,
				Reasoning:  "no value extracted from the page",
			})
			continue
		}
		fc := decision.FieldContext{
			CSVField:        field.CSVField,
			CSVValue:        fmt.Sprintf("%v", csvValue),
			WebValue:        field.NormalizedValue,
			WebMethod:       field.Method,
			FieldType:       mapping.FieldType,
			FieldThreshold:  p.config.Rules.Confidence.MinimumField,
			Strategy:        mapping.Strategy,
			Policy:          p.config.Rules.Normalization,
			FuzzyAlgorithms: p.config.Rules.Fuzzy.Algorithms,
			FuzzyThreshold:  p.config.Rules.Fuzzy.StringSimilarityThreshold,
			NumberTolerance: p.config.Rules.Fuzzy.NumberTolerance,
			RulesetVersion:  p.config.RulesetVersion,
		}
		decisions = append(decisions, p.engine.Decide(decideCtx, fc))
	}
	cancel()
	overallMatch, overallConfidence := decision.Aggregate(decisions, required, p.config.Rules.Confidence.MinimumOverall)
	result.FieldDecisions = decisions
	result.OverallMatch = overallMatch
	result.OverallConfidence = overallConfidence

	if err := sm.transition(StatePersistingEvidence); err != nil {
		return fail(StateDeciding, stageerr.Fatal(stageerr.KindConfigInvalid, err.Error(), nil))
	}
	// Evidence is unconditional (spec.md invariant 3): a bundle is always
	// written when a Collector is configured, regardless of run; the
	// screenshot/DOM-snapshot flags only decide which artifacts the bundle
	// carries, not whether one is written at all.
	if p.evidence != nil {
		evidenceID, err := p.evidence.Collect(p.rowEvidence(row, obs, decisions))
		if err != nil {
			return fail(StatePersistingEvidence, stageerr.New(stageerr.KindEvidenceWriteFailed, err.Error(), err))
		}
		result.EvidenceID = evidenceID
	}

	if err := sm.transition(StateDone); err != nil {
		return fail(StatePersistingEvidence, stageerr.Fatal(stageerr.KindConfigInvalid, err.Error(), nil))
	}
	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	if span != nil {
		observability.RecordRowOutcome(span, string(StateDone), result.OverallMatch, result.OverallConfidence, result.EvidenceID)
	}
	return result
}

// rowEvidence builds the Collect payload for row, applying the
// screenshot/DOM-snapshot config flags to decide which captured artifacts
// are included; a bundle is always produced (the flags never suppress
// the bundle itself, only its contents).
func (p *Pipeline) rowEvidence(row models.Row, obs models.PageObservation, decisions []models.FieldDecision) evidence.RowEvidence {
	if !p.config.Evidence.ScreenshotEnabled {
		obs.Screenshots = nil
	}
	if !p.config.Evidence.DOMSnapshotEnabled {
		obs.DOMSnapshot = ""
	}
	return evidence.RowEvidence{
		RowID:          row.ID,
		RowIndex:       row.Index,
		Observation:    obs,
		FieldDecisions: decisions,
	}
}

func findMapping(mappings []models.FieldMapping, csvField string) models.FieldMapping {
	for _, m := range mappings {
		if m.CSVField == csvField {
			return m
		}
	}
	return models.FieldMapping{CSVField: csvField, FieldType: models.FieldText, Strategy: models.StrategyDOM}
}

func withStageTimeout(ctx context.Context, cfg *models.ValidationConfig, pick func(models.StageTimeouts) time.Duration) (context.Context, context.CancelFunc) {
	d := pick(cfg.Performance.Timeouts)
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
