// Package evidence implements the Evidence Collector (C8): per-row archive
// directories plus a run-level index, and a retention/compression sweep.
// Adapted from extraction/storage.go's StorageOptimizationService: the
// same PruningPolicy-by-age shape and Prometheus metrics wrapper, retargeted
// from SQL keyword rows to filesystem evidence directories, since this
// orchestrator's evidence is a filesystem archive rather than a database of
// record (spec.md §1, §4.8).
package evidence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fntelecomllc/rowvalidator/internal/models"
)

const (
	DefaultRetentionDays      = 30
	DefaultCompressionAfterDays = 7
)

// Collector writes per-row evidence to disk and maintains the run-level
// index (spec.md §4.8).
type Collector struct {
	baseDir string
	metrics *Metrics
	mu      sync.Mutex // guards index; Collect runs concurrently across rows
	index   []indexEntry
}

type indexEntry struct {
	RowID      string    `json:"rowId"`
	RowIndex   int       `json:"rowIndex"`
	EvidenceID string    `json:"evidenceId"`
	Dir        string    `json:"dir"`
	WrittenAt  time.Time `json:"writtenAt"`
}

// New builds a Collector rooted at baseDir, creating it if necessary.
func New(baseDir string, metrics *Metrics) (*Collector, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create evidence base dir: %w", err)
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Collector{baseDir: baseDir, metrics: metrics}, nil
}

// RowEvidence is everything one row's Collect call persists.
type RowEvidence struct {
	RowID           string
	RowIndex        int
	Observation     models.PageObservation
	FieldDecisions  []models.FieldDecision
}

// Collect writes one row's evidence directory: full.png, field-<csvField>.png
// per captured element screenshot, dom.html, extracted.json, decisions.json,
// and index.json (spec.md §4.8). It returns the evidence ID (the directory
// name) used to cross-reference the RowResult.
func (c *Collector) Collect(row RowEvidence) (string, error) {
	start := time.Now()
	evidenceID := row.RowID
	if evidenceID == "" {
		evidenceID = fmt.Sprintf("row-%d", row.RowIndex)
	}
	dir := filepath.Join(c.baseDir, evidenceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.metrics.writeFailures.Inc()
		return "", fmt.Errorf("create row evidence dir: %w", err)
	}

	for _, shot := range row.Observation.Screenshots {
		name := "full.png"
		if shot.Kind == models.ScreenshotElement {
			name = fmt.Sprintf("field-%s.png", shot.FieldName)
		}
		if err := os.WriteFile(filepath.Join(dir, name), shot.Bytes, 0o644); err != nil {
			c.metrics.writeFailures.Inc()
			return "", fmt.Errorf("write screenshot %s: %w", name, err)
		}
	}

	if row.Observation.DOMSnapshot != "" {
		if err := os.WriteFile(filepath.Join(dir, "dom.html"), []byte(row.Observation.DOMSnapshot), 0o644); err != nil {
			c.metrics.writeFailures.Inc()
			return "", fmt.Errorf("write dom snapshot: %w", err)
		}
	}

	if err := writeJSON(filepath.Join(dir, "extracted.json"), row.Observation.ExtractedFields); err != nil {
		c.metrics.writeFailures.Inc()
		return "", err
	}
	if err := writeJSON(filepath.Join(dir, "decisions.json"), row.FieldDecisions); err != nil {
		c.metrics.writeFailures.Inc()
		return "", err
	}

	entry := indexEntry{RowID: row.RowID, RowIndex: row.RowIndex, EvidenceID: evidenceID, Dir: dir, WrittenAt: time.Now().UTC()}
	if err := writeJSON(filepath.Join(dir, "index.json"), entry); err != nil {
		c.metrics.writeFailures.Inc()
		return "", err
	}

	c.mu.Lock()
	c.index = append(c.index, entry)
	c.mu.Unlock()
	c.metrics.rowsWritten.Inc()
	c.metrics.writeDuration.Observe(time.Since(start).Seconds())
	return evidenceID, nil
}

// WriteRunIndex persists the run-level evidence_index.json summarizing every
// row collected so far (spec.md §4.8).
func (c *Collector) WriteRunIndex(runID string) error {
	path := filepath.Join(c.baseDir, "evidence_index.json")
	c.mu.Lock()
	rows := append([]indexEntry(nil), c.index...)
	c.mu.Unlock()
	payload := struct {
		RunID   string       `json:"runId"`
		Rows    []indexEntry `json:"rows"`
		Written time.Time    `json:"written"`
	}{RunID: runID, Rows: rows, Written: time.Now().UTC()}
	return writeJSON(path, payload)
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
