// Package report assembles the final RunReport from a completed run's
// RowResults: summary counters, confidence histogram, per-method usage,
// per-field accuracy and error-kind breakdown (spec.md §3). Rendering the
// report to HTML/Markdown/CSV/JSON is an external, out-of-scope concern
// (spec.md §1); this package only builds the structured model.
package report

import (
	"fmt"
	"time"

	"github.com/fntelecomllc/rowvalidator/internal/models"
)

// Builder accumulates the inputs needed to produce a RunReport.
type Builder struct {
	runID     string
	startedAt time.Time
	totalRows int
	config    *models.ValidationConfig
	metadata  map[string]string
}

// New starts a report for a run of totalRows input rows.
func New(runID string, totalRows int, config *models.ValidationConfig) *Builder {
	return &Builder{runID: runID, startedAt: time.Now(), totalRows: totalRows, config: config, metadata: map[string]string{}}
}

// WithMetadata attaches a free-form key/value pair to the final report.
func (b *Builder) WithMetadata(key, value string) *Builder {
	b.metadata[key] = value
	return b
}

// Build assembles the RunReport from the run's results. exitKind records
// why the run stopped (spec.md §3's ExitKind); finishedAt should be the
// caller's clock reading at the time the run actually stopped.
func Build(b *Builder, results []models.RowResult, exitKind models.RunExitKind, finishedAt time.Time) models.RunReport {
	summary := summarize(results, b.totalRows, finishedAt.Sub(b.startedAt))
	stats := statisticsFor(results)

	return models.RunReport{
		RunID:      b.runID,
		StartedAt:  b.startedAt,
		FinishedAt: finishedAt,
		ExitKind:   exitKind,
		Summary:    summary,
		Results:    results,
		Statistics: stats,
		Config:     b.config,
		Metadata:   b.metadata,
	}
}

func summarize(results []models.RowResult, totalRows int, elapsed time.Duration) models.RunSummary {
	processed := len(results)
	var succeeded, failed int
	var confidenceSum float64
	for _, r := range results {
		if len(r.Errors) > 0 || !r.OverallMatch {
			failed++
		} else {
			succeeded++
		}
		confidenceSum += r.OverallConfidence
	}

	summary := models.RunSummary{
		TotalRows: totalRows,
		Processed: processed,
		Succeeded: succeeded,
		Failed:    failed,
	}
	if processed > 0 {
		summary.AvgConfidence = confidenceSum / float64(processed)
		summary.ErrorRate = float64(failed) / float64(processed)
	}
	if secs := elapsed.Seconds(); secs > 0 {
		summary.ThroughputRowsPerSec = float64(processed) / secs
	}
	return summary
}

var confidenceBuckets = []string{
	"0.0-0.1", "0.1-0.2", "0.2-0.3", "0.3-0.4", "0.4-0.5",
	"0.5-0.6", "0.6-0.7", "0.7-0.8", "0.8-0.9", "0.9-1.0",
}

func confidenceBucket(confidence float64) string {
	idx := int(confidence * 10)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(confidenceBuckets) {
		idx = len(confidenceBuckets) - 1
	}
	return confidenceBuckets[idx]
}

func statisticsFor(results []models.RowResult) models.RunStatistics {
	stats := models.RunStatistics{
		ConfidenceHistogram: map[string]int{},
		MethodUsage:         map[models.Method]int{},
		FieldAccuracy:       map[string]float64{},
		ErrorsByKind:        map[string]int{},
	}

	fieldMatches := map[string]int{}
	fieldTotals := map[string]int{}

	for _, r := range results {
		stats.ConfidenceHistogram[confidenceBucket(r.OverallConfidence)]++

		for _, err := range r.Errors {
			stats.ErrorsByKind[err.Kind]++
		}

		for _, d := range r.FieldDecisions {
			stats.MethodUsage[d.Method]++
			fieldTotals[d.CSVField]++
			if d.Match {
				fieldMatches[d.CSVField]++
			}
		}
	}

	for field, total := range fieldTotals {
		if total == 0 {
			continue
		}
		stats.FieldAccuracy[field] = float64(fieldMatches[field]) / float64(total)
	}

	return stats
}

// ExitKindFor maps the Scheduler's escalated flag and a cancellation signal
// into the report's top-level exit classification (spec.md §3).
func ExitKindFor(escalated bool, cancelled bool) models.RunExitKind {
	switch {
	case escalated:
		return models.ExitEscalated
	case cancelled:
		return models.ExitCancelled
	default:
		return models.ExitCompleted
	}
}

// Describe renders a short human-readable one-line summary, useful for
// log lines and CLI stderr output (not report rendering proper).
func Describe(r models.RunReport) string {
	return fmt.Sprintf(
		"run=%s exit=%s total=%d processed=%d succeeded=%d failed=%d errorRate=%.2f avgConfidence=%.2f",
		r.RunID, r.ExitKind, r.Summary.TotalRows, r.Summary.Processed, r.Summary.Succeeded, r.Summary.Failed,
		r.Summary.ErrorRate, r.Summary.AvgConfidence,
	)
}
