package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fntelecomllc/rowvalidator/internal/models"
)

func validConfig() *models.ValidationConfig {
	cfg := Default()
	cfg.URLTemplate = "https://example.test/{id}"
	cfg.FieldMappings = []models.FieldMapping{
		{CSVField: "name", WebSelector: "#name", FieldType: models.FieldText, Required: true, Strategy: models.StrategyDOM},
	}
	return cfg
}

func TestLoadFallsBackToDefaultsWhenFileMissing(t *testing.T) {
	// A missing file still goes through defaulting and validation; since
	// urlTemplate/fieldMappings have no sane default, Load surfaces that as
	// a config_invalid error rather than silently returning an unusable
	// config (spec.md §10.3).
	_, stageErr := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if stageErr == nil {
		t.Fatalf("expected config_invalid for a config with no urlTemplate")
	}
}

func TestLoadParsesYAMLAndAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
urlTemplate: "https://example.test/{id}"
fieldMappings:
  - csvField: name
    webSelector: "#name"
    fieldType: text
    required: true
    strategy: dom
rules:
  confidence:
    minimumOverall: 0.9
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}

	cfg, stageErr := Load(path)
	if stageErr != nil {
		t.Fatalf("Load: %v", stageErr)
	}
	if cfg.Rules.Confidence.MinimumOverall != 0.9 {
		t.Fatalf("expected explicit minimumOverall to survive, got %v", cfg.Rules.Confidence.MinimumOverall)
	}
	// fields left unset in the file should still pick up documented defaults.
	if cfg.Rules.Confidence.MinimumField != DefaultMinimumFieldConfidence {
		t.Fatalf("expected default minimumField, got %v", cfg.Rules.Confidence.MinimumField)
	}
	if cfg.Performance.ParallelWorkers != DefaultParallelWorkers {
		t.Fatalf("expected default parallelWorkers, got %v", cfg.Performance.ParallelWorkers)
	}
}

func TestValidateRejectsZeroParallelWorkers(t *testing.T) {
	cfg := validConfig()
	cfg.Performance.ParallelWorkers = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected validation error for zero parallelWorkers")
	}
}

func TestValidateRejectsUnknownURLTemplatePlaceholder(t *testing.T) {
	cfg := validConfig()
	cfg.URLTemplate = "https://example.test/{ghost}"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected validation error for unknown placeholder")
	}
}

func TestValidateRejectsThresholdOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Rules.Confidence.MinimumOverall = 1.5
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected validation error for out-of-range threshold")
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := validConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	cfg := validConfig()
	path := filepath.Join(t.TempDir(), "roundtrip.yaml")
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, stageErr := Load(path)
	if stageErr != nil {
		t.Fatalf("Load: %v", stageErr)
	}
	if loaded.URLTemplate != cfg.URLTemplate {
		t.Fatalf("expected urlTemplate to round-trip, got %q", loaded.URLTemplate)
	}
	if len(loaded.FieldMappings) != 1 || loaded.FieldMappings[0].CSVField != "name" {
		t.Fatalf("expected fieldMappings to round-trip, got %+v", loaded.FieldMappings)
	}
}
