package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fntelecomllc/rowvalidator/internal/models"
	"github.com/fntelecomllc/rowvalidator/internal/stageerr"
)

// Load reads a YAML ValidationConfig from path, applies defaults to every
// field the file leaves unset, validates the result, and returns it. A
// missing file falls back to Default() rather than failing outright,
// mirroring config/app.go's "file not found, use defaults" path — but the
// result still has to pass Validate like any other config, so a run with
// no config file at all still fails fast on the fields Default() can't
// sanely fill in (urlTemplate, fieldMappings).
func Load(path string) (*models.ValidationConfig, *stageerr.Error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("config: %s not found, using defaults", path)
		} else {
			return nil, stageerr.Fatal(stageerr.KindConfigInvalid, fmt.Sprintf("reading config %s", path), err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, stageerr.Fatal(stageerr.KindConfigInvalid, fmt.Sprintf("parsing config %s", path), err)
	}

	applyDefaults(cfg)

	if stageErr := Validate(cfg); stageErr != nil {
		return nil, stageErr
	}
	return cfg, nil
}

// Save serializes cfg to path as YAML, mirroring SaveAppConfig's
// round-trip contract.
func Save(cfg *models.ValidationConfig, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

var placeholderRE = regexp.MustCompile(`\{([^{}]+)\}`)

// Validate rejects configs with non-existent urlTemplate placeholders
// (those referencing no declared field), zero parallelWorkers, or
// thresholds outside [0,1] (spec.md §10.3, adapted from config/validate.go).
func Validate(cfg *models.ValidationConfig) *stageerr.Error {
	if cfg.URLTemplate == "" {
		return configInvalid("urlTemplate is required")
	}

	known := map[string]bool{"id": true} // the row's own identifier is always addressable
	for _, m := range cfg.FieldMappings {
		known[m.CSVField] = true
	}
	for _, match := range placeholderRE.FindAllStringSubmatch(cfg.URLTemplate, -1) {
		placeholder := strings.TrimSpace(match[1])
		if !known[placeholder] {
			return configInvalid(fmt.Sprintf("urlTemplate references unknown field %q", placeholder))
		}
	}

	if len(cfg.FieldMappings) == 0 {
		return configInvalid("at least one fieldMapping is required")
	}
	for _, m := range cfg.FieldMappings {
		if m.CSVField == "" {
			return configInvalid("fieldMapping.csvField must not be empty")
		}
		if m.WebSelector == "" {
			return configInvalid(fmt.Sprintf("fieldMapping %q is missing a webSelector", m.CSVField))
		}
	}

	if cfg.Performance.ParallelWorkers <= 0 {
		return configInvalid("performance.parallelWorkers must be > 0")
	}

	thresholds := map[string]float64{
		"rules.confidence.minimumOverall":      cfg.Rules.Confidence.MinimumOverall,
		"rules.confidence.minimumField":        cfg.Rules.Confidence.MinimumField,
		"rules.confidence.ocrThreshold":        cfg.Rules.Confidence.OCRThreshold,
		"rules.confidence.fuzzyMatchThreshold": cfg.Rules.Confidence.FuzzyMatchThreshold,
		"rules.fuzzy.stringSimilarityThreshold": cfg.Rules.Fuzzy.StringSimilarityThreshold,
		"rules.errorHandling.escalationThreshold": cfg.Rules.ErrorHandling.EscalationThreshold,
	}
	for name, v := range thresholds {
		if v < 0 || v > 1 {
			return configInvalid(fmt.Sprintf("%s must be within [0,1], got %v", name, v))
		}
	}

	return nil
}

func configInvalid(msg string) *stageerr.Error {
	return stageerr.Fatal(stageerr.KindConfigInvalid, msg, nil)
}
