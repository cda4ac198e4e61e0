package evidence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fntelecomllc/rowvalidator/internal/models"
)

func TestCollectWritesExpectedFiles(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	obs := models.PageObservation{
		DOMSnapshot: "<html></html>",
		Screenshots: []models.Screenshot{
			{Kind: models.ScreenshotFull, Bytes: []byte("fullpng")},
			{Kind: models.ScreenshotElement, FieldName: "email", Bytes: []byte("fieldpng")},
		},
		ExtractedFields: []models.ExtractedField{{CSVField: "email", RawValue: "a@b.com"}},
	}
	decisions := []models.FieldDecision{{CSVField: "email", Match: true}}

	id, err := c.Collect(RowEvidence{RowID: "row-1", RowIndex: 0, Observation: obs, FieldDecisions: decisions})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if id != "row-1" {
		t.Fatalf("expected evidence id row-1, got %s", id)
	}

	rowDir := filepath.Join(dir, "row-1")
	for _, name := range []string{"full.png", "field-email.png", "dom.html", "extracted.json", "decisions.json", "index.json"} {
		if _, err := os.Stat(filepath.Join(rowDir, name)); err != nil {
			t.Errorf("expected file %s: %v", name, err)
		}
	}

	if err := c.WriteRunIndex("run-1"); err != nil {
		t.Fatalf("WriteRunIndex: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "evidence_index.json"))
	if err != nil {
		t.Fatalf("read evidence_index.json: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("unmarshal evidence_index.json: %v", err)
	}
	if parsed["runId"] != "run-1" {
		t.Fatalf("expected runId run-1, got %v", parsed["runId"])
	}
}

func TestSweepRemovesExpiredDirectories(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	oldDir := filepath.Join(dir, "old-row")
	if err := os.MkdirAll(oldDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(oldDir, "full.png"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	oldTime := time.Now().Add(-40 * 24 * time.Hour)
	if err := os.Chtimes(oldDir, oldTime, oldTime); err != nil {
		t.Fatal(err)
	}

	policy := PolicyFromConfig(models.EvidenceConfig{RetentionDays: 30})
	if err := c.Sweep(policy); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Fatalf("expected old-row to be pruned, stat err: %v", err)
	}
}

func TestSweepCompressesAgedDirectories(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	agedDir := filepath.Join(dir, "aged-row")
	if err := os.MkdirAll(agedDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(agedDir, "full.png"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	agedTime := time.Now().Add(-10 * 24 * time.Hour)
	if err := os.Chtimes(agedDir, agedTime, agedTime); err != nil {
		t.Fatal(err)
	}

	policy := PolicyFromConfig(models.EvidenceConfig{RetentionDays: 30, CompressionAfterDays: 7, CompressionEnabled: true})
	if err := c.Sweep(policy); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if _, err := os.Stat(agedDir); !os.IsNotExist(err) {
		t.Fatalf("expected aged-row dir to be removed after compression")
	}
	if _, err := os.Stat(agedDir + ".zip"); err != nil {
		t.Fatalf("expected aged-row.zip to exist: %v", err)
	}
}
