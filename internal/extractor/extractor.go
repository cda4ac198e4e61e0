// Package extractor implements the Page Extractor (C6): given a loaded
// page and a field mapping, extracts a value using DOM first, then OCR
// fallback on a targeted region (spec.md §4.6). Adapted from
// httpvalidator.go's extractTitle HTML-walk and the
// confidence-from-presence idiom in validateSingleDomain, generalized from
// "title + content hash" to "per-mapping selector extraction with DOM/OCR
// confidence scoring".
package extractor

import (
	"context"
	"regexp"
	"time"

	"github.com/fntelecomllc/rowvalidator/internal/browser"
	"github.com/fntelecomllc/rowvalidator/internal/models"
	"github.com/fntelecomllc/rowvalidator/internal/normalize"
	"github.com/fntelecomllc/rowvalidator/internal/ocr"
	"github.com/fntelecomllc/rowvalidator/internal/stageerr"
	"github.com/fntelecomllc/rowvalidator/internal/vlog"
)

const (
	DefaultOCRFallbackThreshold = 0.5 // T_ocr_fallback (spec.md §4.6)
	OCRConfidenceCap            = 0.8 // spec.md §4.6, §9.2: applied universally
	ocrScreenshotMarginPx       = 10
)

var (
	emailRE    = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRE    = regexp.MustCompile(`\+?[0-9][0-9()\-.\s]{6,}[0-9]`)
	currencyRE = regexp.MustCompile(`[$£€]\s?[0-9][0-9,]*(\.[0-9]+)?`)
)

// Extractor implements C6 over a Browser capability and an optional OCR
// capability (OCR is nil when no mapping in the run needs it).
type Extractor struct {
	browser browser.Capability
	ocr     ocr.Capability
	log     *vlog.Logger
}

// New builds an Extractor. ocrCap may be nil to disable the OCR fallback
// entirely, even for mappings declaring strategy ocr/hybrid.
func New(b browser.Capability, ocrCap ocr.Capability, logger *vlog.Logger) *Extractor {
	return &Extractor{browser: b, ocr: ocrCap, log: logger}
}

// Extract implements spec.md §4.6 steps 1-5 for one mapping.
func (e *Extractor) Extract(ctx context.Context, mapping models.FieldMapping, policy models.NormalizationRules) (models.ExtractedField, *stageerr.Error) {
	domField, domErr := e.extractDOM(ctx, mapping, policy)

	needsOCR := domField.Confidence < DefaultOCRFallbackThreshold &&
		(mapping.Strategy == models.StrategyOCR || mapping.Strategy == models.StrategyHybrid) &&
		e.ocr != nil

	if !needsOCR {
		if domErr != nil && domField.Confidence == 0 {
			return domField, domErr
		}
		return domField, nil
	}

	ocrField, ocrErr := e.extractOCR(ctx, mapping, policy, domField.ElementBoundingBox)
	if ocrErr != nil {
		// OCR fallback failing is recoverable: keep whatever DOM produced.
		if e.log != nil {
			e.log.Log("ocr_fallback_failed", map[string]any{"field": mapping.CSVField, "error": ocrErr.Error()})
		}
		return domField, nil
	}

	// Return the higher of the DOM and OCR results by confidence. Only the
	// winner is returned, so only the winner reaches the row's evidence;
	// the losing result is not recorded.
	if ocrField.Confidence > domField.Confidence {
		return ocrField, nil
	}
	return domField, nil
}

func (e *Extractor) extractDOM(ctx context.Context, mapping models.FieldMapping, policy models.NormalizationRules) (models.ExtractedField, *stageerr.Error) {
	handle, err := e.locate(ctx, mapping)
	if err != nil || handle == nil {
		return models.ExtractedField{CSVField: mapping.CSVField, Method: models.MethodDOM, Confidence: 0},
			stageerr.New(stageerr.KindElementNotFound, "no selector (or fallback) matched", err)
	}

	raw, err := e.browser.ElementValue(ctx, handle)
	if err != nil {
		return models.ExtractedField{CSVField: mapping.CSVField, Method: models.MethodDOM, Confidence: 0},
			stageerr.New(stageerr.KindElementNotFound, "element found but value read failed", err)
	}

	norm := normalize.Normalize(raw, mapping.FieldType, policy)
	confidence := 0.3
	normalizedValue := ""
	if norm.OK && norm.Text != "" {
		confidence = 0.9
		normalizedValue = norm.Text
	}

	var bbox *models.BoundingBox
	if x, y, w, h, err := e.browser.ElementBounds(ctx, handle); err == nil {
		bbox = &models.BoundingBox{X: x, Y: y, Width: w, Height: h}
	}

	return models.ExtractedField{
		CSVField:           mapping.CSVField,
		RawValue:           raw,
		NormalizedValue:    normalizedValue,
		Method:             models.MethodDOM,
		Confidence:         confidence,
		ElementBoundingBox: bbox,
	}, nil
}

// locate tries the declared selector, then each fallback selector in order
// (spec.md §4.6 step 1: "optionally augmented by fallback selectors
// derived from the original").
func (e *Extractor) locate(ctx context.Context, mapping models.FieldMapping) (browser.ElementHandle, error) {
	if h, err := e.browser.QuerySelector(ctx, mapping.WebSelector); err == nil && h != nil {
		return h, nil
	}
	var lastErr error
	for _, sel := range mapping.FallbackSelectors {
		if h, err := e.browser.QuerySelector(ctx, sel); err == nil && h != nil {
			return h, nil
		} else {
			lastErr = err
		}
	}
	return nil, lastErr
}

func (e *Extractor) extractOCR(ctx context.Context, mapping models.FieldMapping, policy models.NormalizationRules, bbox *models.BoundingBox) (models.ExtractedField, *stageerr.Error) {
	ctx, cancel := context.WithTimeout(ctx, 45*time.Second) // performance.timeouts.ocrProcessing default
	defer cancel()

	var shot []byte
	var err error
	if bbox != nil {
		handle, locErr := e.locate(ctx, mapping)
		if locErr == nil && handle != nil {
			shot, err = e.browser.ScreenshotElement(ctx, handle, ocrScreenshotMarginPx)
		}
	}
	if shot == nil {
		shot, err = e.browser.ScreenshotFull(ctx)
	}
	if err != nil {
		return models.ExtractedField{}, stageerr.New(stageerr.KindOCRLowConfidence, "screenshot capture for OCR failed", err)
	}

	result, err := e.ocr.Recognise(ctx, shot, ocr.Options{
		Preprocessing: ocr.Preprocessing{EnhanceContrast: true, Denoise: true, Upscale: 2},
	})
	if err != nil {
		return models.ExtractedField{}, stageerr.New(stageerr.KindOCRLowConfidence, "ocr engine call failed", err)
	}

	value, confidence := pickOCRValue(result, mapping.FieldType)
	if confidence > OCRConfidenceCap {
		confidence = OCRConfidenceCap
	}

	norm := normalize.Normalize(value, mapping.FieldType, policy)
	normalizedValue := ""
	if norm.OK {
		normalizedValue = norm.Text
	}

	return models.ExtractedField{
		CSVField:        mapping.CSVField,
		RawValue:        value,
		NormalizedValue: normalizedValue,
		Method:          models.MethodOCR,
		Confidence:      confidence,
	}, nil
}

// pickOCRValue selects the highest-confidence token or field-type
// appropriate pattern match (spec.md §4.6 step 5): email/phone/currency
// regex for those types; otherwise the highest-confidence word (the first
// one on ties), falling back to the full recognised text when there are no
// words.
func pickOCRValue(result ocr.Result, fieldType models.FieldType) (string, float64) {
	switch fieldType {
	case models.FieldEmail:
		if m := emailRE.FindString(result.Text); m != "" {
			return m, result.Confidence
		}
	case models.FieldPhone:
		if m := phoneRE.FindString(result.Text); m != "" {
			return m, result.Confidence
		}
	case models.FieldCurrency:
		if m := currencyRE.FindString(result.Text); m != "" {
			return m, result.Confidence
		}
	}

	best := ocr.Word{Confidence: -1}
	for _, w := range result.Words {
		if w.Confidence > best.Confidence {
			best = w
		}
	}
	if best.Confidence >= 0 {
		return best.Text, best.Confidence
	}
	return result.Text, result.Confidence
}
