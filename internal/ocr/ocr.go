// Package ocr defines the OCR capability interface (spec.md §6) and a
// transport-neutral HTTP/JSON adapter. No OCR library exists anywhere in
// the retrieval pack, and spec.md §1/§6 explicitly frames the concrete OCR
// engine as an external pluggable collaborator, so it is implemented here
// as an HTTP/JSON client rather than a fabricated dependency, in the
// net/http client-construction style of contentfetcher.go.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Word is one recognised token with its confidence and bounding box.
type Word struct {
	Text       string
	Confidence float64
	BBox       [4]float64 // x, y, width, height
}

// Result is the recognise() return value (spec.md §6).
type Result struct {
	Text             string
	Words            []Word
	Confidence       float64
	ProcessingTimeMs int64
}

// Preprocessing flags (spec.md §4.6, §6).
type Preprocessing struct {
	EnhanceContrast bool
	Denoise         bool
	Upscale         int // multiplier, e.g. 2 for "upscale 2x"
}

// Options bundles language and preprocessing for one recognise() call.
type Options struct {
	Language      string
	Preprocessing Preprocessing
}

// Capability is the OCR capability contract (spec.md §6).
type Capability interface {
	Recognise(ctx context.Context, imageBytes []byte, opts Options) (Result, error)
}

// HTTPCapability implements Capability by POSTing the image (base64) and
// options to a configured OCR engine endpoint and parsing its JSON
// response, mirroring contentfetcher.go's request-construction idiom.
type HTTPCapability struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
}

// NewHTTPCapability builds an HTTPCapability. client may be nil to use a
// sensible default.
func NewHTTPCapability(endpoint string, client *http.Client, timeout time.Duration) *HTTPCapability {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 45 * time.Second // matches performance.timeouts.ocrProcessing default (spec.md §5)
	}
	return &HTTPCapability{endpoint: endpoint, client: client, timeout: timeout}
}

type recogniseRequest struct {
	ImageBase64     string `json:"imageBase64"`
	Language        string `json:"language,omitempty"`
	EnhanceContrast bool   `json:"enhanceContrast"`
	Denoise         bool   `json:"denoise"`
	Upscale         int    `json:"upscale"`
}

type recogniseResponse struct {
	Text             string  `json:"text"`
	Confidence       float64 `json:"confidence"`
	ProcessingTimeMs int64   `json:"processingTimeMs"`
	Words            []struct {
		Text       string     `json:"text"`
		Confidence float64    `json:"confidence"`
		BBox       [4]float64 `json:"bbox"`
	} `json:"words"`
}

func (h *HTTPCapability) Recognise(ctx context.Context, imageBytes []byte, opts Options) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	reqBody := recogniseRequest{
		ImageBase64:     base64.StdEncoding.EncodeToString(imageBytes),
		Language:        opts.Language,
		EnhanceContrast: opts.Preprocessing.EnhanceContrast,
		Denoise:         opts.Preprocessing.Denoise,
		Upscale:         opts.Preprocessing.Upscale,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("marshal ocr request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+"/recognise", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build ocr request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("ocr request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read ocr response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("ocr engine returned status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed recogniseResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, fmt.Errorf("parse ocr response: %w", err)
	}

	words := make([]Word, 0, len(parsed.Words))
	for _, w := range parsed.Words {
		words = append(words, Word{Text: w.Text, Confidence: w.Confidence, BBox: w.BBox})
	}

	return Result{
		Text:             parsed.Text,
		Words:            words,
		Confidence:       parsed.Confidence,
		ProcessingTimeMs: parsed.ProcessingTimeMs,
	}, nil
}
