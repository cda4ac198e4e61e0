package report

import (
	"testing"
	"time"

	"github.com/fntelecomllc/rowvalidator/internal/models"
)

func TestBuildSummarizesMixedResults(t *testing.T) {
	results := []models.RowResult{
		{RowID: "1", OverallMatch: true, OverallConfidence: 0.95, FieldDecisions: []models.FieldDecision{
			{CSVField: "name", Match: true, Method: models.MethodDOM},
		}},
		{RowID: "2", OverallMatch: false, OverallConfidence: 0.4, FieldDecisions: []models.FieldDecision{
			{CSVField: "name", Match: false, Method: models.MethodOCR},
		}},
		{RowID: "3", OverallMatch: true, OverallConfidence: 0.2, Errors: []models.RowError{
			{Kind: "navigation_timeout", Message: "timed out", Recoverable: true},
		}},
	}

	b := New("run-1", 5, &models.ValidationConfig{})
	started := b.startedAt
	finished := started.Add(2 * time.Second)
	rpt := Build(b, results, models.ExitCompleted, finished)

	if rpt.RunID != "run-1" {
		t.Fatalf("expected run id to be preserved, got %q", rpt.RunID)
	}
	if rpt.Summary.TotalRows != 5 {
		t.Fatalf("expected totalRows=5, got %d", rpt.Summary.TotalRows)
	}
	if rpt.Summary.Processed != 3 {
		t.Fatalf("expected processed=3, got %d", rpt.Summary.Processed)
	}
	// row 3 has an error so it counts as failed despite OverallMatch=true.
	if rpt.Summary.Succeeded != 1 || rpt.Summary.Failed != 2 {
		t.Fatalf("expected succeeded=1 failed=2, got succeeded=%d failed=%d", rpt.Summary.Succeeded, rpt.Summary.Failed)
	}
	if rpt.Summary.ThroughputRowsPerSec <= 0 {
		t.Fatalf("expected positive throughput, got %f", rpt.Summary.ThroughputRowsPerSec)
	}
	if rpt.Statistics.ErrorsByKind["navigation_timeout"] != 1 {
		t.Fatalf("expected 1 navigation_timeout error, got %+v", rpt.Statistics.ErrorsByKind)
	}
	if rpt.Statistics.MethodUsage[models.MethodDOM] != 1 || rpt.Statistics.MethodUsage[models.MethodOCR] != 1 {
		t.Fatalf("expected method usage tallies, got %+v", rpt.Statistics.MethodUsage)
	}
	if got := rpt.Statistics.FieldAccuracy["name"]; got != 0.5 {
		t.Fatalf("expected name field accuracy 0.5, got %f", got)
	}
}

func TestBuildHandlesEmptyInput(t *testing.T) {
	b := New("run-empty", 0, &models.ValidationConfig{})
	rpt := Build(b, nil, models.ExitCompleted, b.startedAt)

	if rpt.Summary.TotalRows != 0 || rpt.Summary.Processed != 0 {
		t.Fatalf("expected zeroed summary for empty input, got %+v", rpt.Summary)
	}
	if len(rpt.Results) != 0 {
		t.Fatalf("expected no results, got %+v", rpt.Results)
	}
}

func TestExitKindForPrecedence(t *testing.T) {
	if k := ExitKindFor(true, true); k != models.ExitEscalated {
		t.Fatalf("expected escalation to take precedence, got %s", k)
	}
	if k := ExitKindFor(false, true); k != models.ExitCancelled {
		t.Fatalf("expected cancelled, got %s", k)
	}
	if k := ExitKindFor(false, false); k != models.ExitCompleted {
		t.Fatalf("expected completed, got %s", k)
	}
}

func TestConfidenceBucketBoundaries(t *testing.T) {
	cases := map[float64]string{
		0.0: "0.0-0.1",
		0.05: "0.0-0.1",
		0.95: "0.9-1.0",
		1.0: "0.9-1.0",
	}
	for confidence, want := range cases {
		if got := confidenceBucket(confidence); got != want {
			t.Errorf("confidenceBucket(%.2f) = %q, want %q", confidence, got, want)
		}
	}
}
