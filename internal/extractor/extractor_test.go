package extractor

import (
	"context"
	"testing"
	"time"

	"github.com/fntelecomllc/rowvalidator/internal/browser"
	"github.com/fntelecomllc/rowvalidator/internal/models"
	"github.com/fntelecomllc/rowvalidator/internal/ocr"
)

type fakeHandle struct{ id string }

type fakeBrowser struct {
	selectors map[string]*fakeHandle
	values    map[string]string
	bounds    map[string][4]float64
	shotErr   error
}

func (f *fakeBrowser) Navigate(ctx context.Context, url string, timeout time.Duration) (browser.NavigateResult, error) {
	return browser.NavigateResult{}, nil
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		selectors: map[string]*fakeHandle{},
		values:    map[string]string{},
		bounds:    map[string][4]float64{},
	}
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
	hd := handle.(*fakeHandle)
	b, ok := f.bounds[hd.id]
	if !ok {
		return 0, 0, 0, 0, nil
	}
	return b[0], b[1], b[2], b[3], nil
}

func (f *fakeBrowser) ScreenshotFull(ctx context.Context) ([]byte, error) {
	return []byte("full"), f.shotErr
}

func (f *fakeBrowser) ScreenshotElement(ctx context.Context, handle browser.ElementHandle, marginPx int) ([]byte, error) {
	return []byte("element"), f.shotErr
}

func (f *fakeBrowser) DOMSnapshot(ctx context.Context) (string, error) { return "<html></html>", nil }
func (f *fakeBrowser) Close() error                                    { return nil }

type fakeOCR struct {
	result ocr.Result
	err    error
}

func (f *fakeOCR) Recognise(ctx context.Context, imageBytes []byte, opts ocr.Options) (ocr.Result, error) {
	return f.result, f.err
}

func TestExtractDOMFound(t *testing.T) {
	b := newFakeBrowser()
	b.selectors["#name"] = &fakeHandle{id: "n"}
	b.values["n"] = "Jane Doe"

	e := New(b, nil, nil)
	mapping := models.FieldMapping{CSVField: "name", WebSelector: "#name", FieldType: models.FieldText, Strategy: models.StrategyDOM}

	field, stageErr := e.Extract(context.Background(), mapping, models.NormalizationRules{})
	if stageErr != nil {
		t.Fatalf("unexpected error: %v", stageErr)
	}
	if field.Confidence != 0.9 {
		t.Fatalf("expected confidence 0.9, got %v", field.Confidence)
	}
	if field.Method != models.MethodDOM {
		t.Fatalf("expected MethodDOM, got %v", field.Method)
	}
}

func TestExtractNotFoundNoOCR(t *testing.T) {
	b := newFakeBrowser()
	e := New(b, nil, nil)
	mapping := models.FieldMapping{CSVField: "name", WebSelector: "#missing", FieldType: models.FieldText, Strategy: models.StrategyDOM}

	field, stageErr := e.Extract(context.Background(), mapping, models.NormalizationRules{})
	if stageErr == nil {
		t.Fatalf("expected error for missing element")
	}
	if field.Confidence != 0 {
		t.Fatalf("expected confidence 0, got %v", field.Confidence)
	}
}

func TestExtractFallsBackToOCRWhenLowConfidence(t *testing.T) {
	b := newFakeBrowser()
	o := &fakeOCR{result: ocr.Result{Text: "jane@example.com", Confidence: 0.95, Words: []ocr.Word{{Text: "jane@example.com", Confidence: 0.95}}}}
	e := New(b, o, nil)
	mapping := models.FieldMapping{CSVField: "email", WebSelector: "#email", FieldType: models.FieldEmail, Strategy: models.StrategyHybrid}

	field, stageErr := e.Extract(context.Background(), mapping, models.NormalizationRules{})
	if stageErr != nil {
		t.Fatalf("unexpected error: %v", stageErr)
	}
	if field.Method != models.MethodOCR {
		t.Fatalf("expected OCR fallback to win, got method %v", field.Method)
	}
	if field.Confidence != OCRConfidenceCap {
		t.Fatalf("expected OCR confidence capped at %v, got %v", OCRConfidenceCap, field.Confidence)
	}
}

func TestExtractKeepsHigherConfidenceDOMOverOCR(t *testing.T) {
	b := newFakeBrowser()
	b.selectors["#email"] = &fakeHandle{id: "e"}
	b.values["e"] = "jane@example.com"
	o := &fakeOCR{result: ocr.Result{Text: "garbled", Confidence: 0.2}}
	e := New(b, o, nil)
	mapping := models.FieldMapping{CSVField: "email", WebSelector: "#email", FieldType: models.FieldEmail, Strategy: models.StrategyHybrid}

	field, stageErr := e.Extract(context.Background(), mapping, models.NormalizationRules{})
	if stageErr != nil {
		t.Fatalf("unexpected error: %v", stageErr)
	}
	if field.Method != models.MethodDOM {
		t.Fatalf("expected DOM value (high confidence, no fallback triggered), got %v", field.Method)
	}
}

func TestPickOCRValueEmailRegex(t *testing.T) {
	result := ocr.Result{Text: "contact: jane@example.com today", Confidence: 0.7}
	value, confidence := pickOCRValue(result, models.FieldEmail)
	if value != "jane@example.com" {
		t.Fatalf("expected extracted email, got %q", value)
	}
	if confidence != 0.7 {
		t.Fatalf("expected confidence 0.7, got %v", confidence)
	}
}
