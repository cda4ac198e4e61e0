package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fntelecomllc/rowvalidator/internal/browser"
	"github.com/fntelecomllc/rowvalidator/internal/decision"
	"github.com/fntelecomllc/rowvalidator/internal/evidence"
	"github.com/fntelecomllc/rowvalidator/internal/extractor"
	"github.com/fntelecomllc/rowvalidator/internal/models"
	"github.com/fntelecomllc/rowvalidator/internal/navigator"
)

type fakeHandle struct{ id string }

type fakeBrowser struct {
	selectors map[string]*fakeHandle
	values    map[string]string
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{selectors: map[string]*fakeHandle{}, values: map[string]string{}}
}

func (f *fakeBrowser) Navigate(ctx context.Context, url string, timeout time.Duration) (browser.NavigateResult, error) {
	return browser.NavigateResult{StatusCode: 200, FinalURL: url}, nil
}
func (f *fakeBrowser) QuerySelector(ctx context.Context, selector string) (browser.ElementHandle, error) {
	h, ok := f.selectors[selector]
	if !ok {
		return nil, nil
	}
	return h, nil
}
func (f *fakeBrowser) ElementValue(ctx context.Context, handle browser.ElementHandle) (string, error) {
	h := handle.(*fakeHandle)
	return f.values[h.id], nil
}
func (f *fakeBrowser) ElementBounds(ctx context.Context, handle browser.ElementHandle) (x, y, w, h float64, err error) {
	return 0, 0, 10, 10, nil
}
func (f *fakeBrowser) ScreenshotFull(ctx context.Context) ([]byte, error)    { return []byte("full"), nil }
func (f *fakeBrowser) ScreenshotElement(ctx context.Context, handle browser.ElementHandle, marginPx int) ([]byte, error) {
	return []byte("el"), nil
}
func (f *fakeBrowser) DOMSnapshot(ctx context.Context) (string, error) { return "<html></html>", nil }
func (f *fakeBrowser) Close() error                                    { return nil }

func TestPipelineRunSucceedsOnMatchingRow(t *testing.T) {
	b := newFakeBrowser()
	b.selectors["#name"] = &fakeHandle{id: "n"}
	b.values["n"] = "Jane Doe"

	nav := navigator.New(b, 5*time.Second, nil)
	ext := extractor.New(b, nil, nil)
	engine := decision.NewEngine(nil, nil)
	ev, err := evidence.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("evidence.New: %v", err)
	}

	cfg := &models.ValidationConfig{
		URLTemplate: "https://example.test/{id}",
		FieldMappings: []models.FieldMapping{
			{CSVField: "name", WebSelector: "#name", FieldType: models.FieldText, Required: true, Strategy: models.StrategyDOM},
		},
		Rules: models.Rules{
			Confidence: models.ConfidenceRules{MinimumOverall: 0.8, MinimumField: 0.8},
			Fuzzy:      models.FuzzyRules{Algorithms: []string{"levenshtein", "jaro_winkler"}, StringSimilarityThreshold: 0.85},
		},
		Evidence: models.EvidenceConfig{ScreenshotEnabled: true, DOMSnapshotEnabled: true},
	}

	p := New(nav, ext, engine, ev, cfg, nil)
	row := models.Row{ID: "row-1", Index: 0, Values: map[string]any{"id": "1", "name": "Jane Doe"}}

	result := p.Run(context.Background(), row)
	if len(result.Errors) != 0 {
		t.Fatalf("expected no errors, got %+v", result.Errors)
	}
	if !result.OverallMatch {
		t.Fatalf("expected overall match, got %+v", result)
	}
	if result.EvidenceID == "" {
		t.Fatalf("expected evidence to be collected")
	}
}

// A required field with an absent DOM selector and no OCR fallback is a
// boundary condition, not a row-fatal abort: the field decision comes back
// match=false/method=dom/confidence=0, and that alone drags overallMatch to
// false through decision.Aggregate (spec.md's literal worked example), with
// the row still reaching StateDone and producing a complete FieldDecisions
// set rather than stopping short at the Extract stage.
func TestPipelineRunRecordsZeroConfidenceForMissingRequiredField(t *testing.T) {
	b := newFakeBrowser()
	nav := navigator.New(b, 5*time.Second, nil)
	ext := extractor.New(b, nil, nil)
	engine := decision.NewEngine(nil, nil)

	cfg := &models.ValidationConfig{
		URLTemplate: "https://example.test/{id}",
		FieldMappings: []models.FieldMapping{
			{CSVField: "name", WebSelector: "#missing", FieldType: models.FieldText, Required: true, Strategy: models.StrategyDOM},
		},
		Rules: models.Rules{Confidence: models.ConfidenceRules{MinimumOverall: 0.8, MinimumField: 0.8}},
	}

	p := New(nav, ext, engine, nil, cfg, nil)
	row := models.Row{ID: "row-2", Index: 1, Values: map[string]any{"id": "2", "name": "Jane Doe"}}

	result := p.Run(context.Background(), row)
	if len(result.Errors) != 0 {
		t.Fatalf("expected no row-level errors, got %v", result.Errors)
	}
	if len(result.FieldDecisions) != 1 {
		t.Fatalf("expected one field decision, got %d", len(result.FieldDecisions))
	}
	fd := result.FieldDecisions[0]
	if fd.Match {
		t.Fatalf("expected match=false for the missing field, got true")
	}
	if fd.Method != models.MethodDOM {
		t.Fatalf("expected method=dom, got %v", fd.Method)
	}
	if fd.Confidence != 0 {
		t.Fatalf("expected confidence=0, got %v", fd.Confidence)
	}
	if result.OverallMatch {
		t.Fatalf("expected overallMatch=false")
	}
}

// Evidence is written for every row a Collector is configured for, even
// when both artifact flags are off (spec.md invariant 3 is unconditional):
// the flags only prune which artifacts land in the bundle.
func TestPipelineRunCollectsEvidenceEvenWithArtifactsDisabled(t *testing.T) {
	b := newFakeBrowser()
	b.selectors["#name"] = &fakeHandle{id: "n"}
	b.values["n"] = "Jane Doe"

	nav := navigator.New(b, 5*time.Second, nil)
	ext := extractor.New(b, nil, nil)
	engine := decision.NewEngine(nil, nil)
	dir := t.TempDir()
	ev, err := evidence.New(dir, nil)
	if err != nil {
		t.Fatalf("evidence.New: %v", err)
	}

	cfg := &models.ValidationConfig{
		URLTemplate: "https://example.test/{id}",
		FieldMappings: []models.FieldMapping{
			{CSVField: "name", WebSelector: "#name", FieldType: models.FieldText, Required: true, Strategy: models.StrategyDOM},
		},
		Rules: models.Rules{
			Confidence: models.ConfidenceRules{MinimumOverall: 0.8, MinimumField: 0.8},
			Fuzzy:      models.FuzzyRules{Algorithms: []string{"levenshtein", "jaro_winkler"}, StringSimilarityThreshold: 0.85},
		},
		// Both artifact flags left false (the documented default).
	}

	p := New(nav, ext, engine, ev, cfg, nil)
	row := models.Row{ID: "row-3", Index: 0, Values: map[string]any{"id": "3", "name": "Jane Doe"}}

	result := p.Run(context.Background(), row)
	if result.EvidenceID == "" {
		t.Fatalf("expected evidence to be collected unconditionally")
	}
	if _, err := os.Stat(filepath.Join(dir, result.EvidenceID, "decisions.json")); err != nil {
		t.Fatalf("expected decisions.json to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, result.EvidenceID, "dom.html")); !os.IsNotExist(err) {
		t.Fatalf("expected no dom.html when domSnapshotEnabled is false, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, result.EvidenceID, "full.png")); !os.IsNotExist(err) {
		t.Fatalf("expected no full.png when screenshotEnabled is false, stat err=%v", err)
	}
}

// A row that fails after the page has loaded still persists whatever
// evidence it managed to capture before the failure (spec.md scenario 6).
func TestPipelineRunPersistsPartialEvidenceOnFailureAfterNavigate(t *testing.T) {
	b := newFakeBrowser()
	b.selectors["#name"] = &fakeHandle{id: "n"}
	b.values["n"] = "Jane Doe"

	nav := navigator.New(b, 5*time.Second, nil)
	ext := extractor.New(b, nil, nil)
	engine := decision.NewEngine(nil, nil)

	baseDir := t.TempDir()
	ev, err := evidence.New(baseDir, nil)
	if err != nil {
		t.Fatalf("evidence.New: %v", err)
	}
	// Pre-create a plain file where the row's evidence directory needs to
	// go, so Collect's os.MkdirAll fails regardless of the test's uid,
	// forcing the row down the fail() path with an Observation already
	// captured.
	if err := os.WriteFile(filepath.Join(baseDir, "row-4"), []byte("blocked"), 0o644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}

	cfg := &models.ValidationConfig{
		URLTemplate: "https://example.test/{id}",
		FieldMappings: []models.FieldMapping{
			{CSVField: "name", WebSelector: "#name", FieldType: models.FieldText, Required: true, Strategy: models.StrategyDOM},
		},
		Rules: models.Rules{
			Confidence: models.ConfidenceRules{MinimumOverall: 0.8, MinimumField: 0.8},
			Fuzzy:      models.FuzzyRules{Algorithms: []string{"levenshtein", "jaro_winkler"}, StringSimilarityThreshold: 0.85},
		},
	}

	p := New(nav, ext, engine, ev, cfg, nil)
	row := models.Row{ID: "row-4", Index: 0, Values: map[string]any{"id": "4", "name": "Jane Doe"}}

	result := p.Run(context.Background(), row)
	if len(result.Errors) == 0 {
		t.Fatalf("expected an evidence_write_failed error")
	}
	if result.Observation == nil {
		t.Fatalf("expected the observation captured during navigation to survive onto the failed result")
	}
}
