// Command validate is the minimal wiring entrypoint for the row validation
// orchestrator: it constructs every component bottom-up, runs one batch of
// rows through the Scheduler, and shuts down gracefully on SIGINT/SIGTERM
// (spec.md §1, §13). Argument parsing, report rendering, and YAML/JSON
// config file format negotiation beyond the bare Load call are deliberately
// thin here — the CLI proper is out of scope (spec.md §1) — adapted from
// cmd/apiserver/main.go's "load config, construct services, start workers,
// wait on signal, shutdown with a bounded timeout" shape.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/fntelecomllc/rowvalidator/internal/browser"
	"github.com/fntelecomllc/rowvalidator/internal/config"
	"github.com/fntelecomllc/rowvalidator/internal/decision"
	"github.com/fntelecomllc/rowvalidator/internal/evidence"
	"github.com/fntelecomllc/rowvalidator/internal/extractor"
	"github.com/fntelecomllc/rowvalidator/internal/llm"
	"github.com/fntelecomllc/rowvalidator/internal/models"
	"github.com/fntelecomllc/rowvalidator/internal/navigator"
	"github.com/fntelecomllc/rowvalidator/internal/observability"
	"github.com/fntelecomllc/rowvalidator/internal/ocr"
	"github.com/fntelecomllc/rowvalidator/internal/pipeline"
	"github.com/fntelecomllc/rowvalidator/internal/registry"
	"github.com/fntelecomllc/rowvalidator/internal/report"
	"github.com/fntelecomllc/rowvalidator/internal/scheduler"
	"github.com/fntelecomllc/rowvalidator/internal/vlog"
)

func main() {
	configPath := flag.String("config", "validate.yaml", "path to the ValidationConfig YAML file")
	inputPath := flag.String("input", "rows.csv", "path to the input CSV (first row is the header)")
	outputPath := flag.String("output", "report.json", "path to write the RunReport JSON to")
	evidenceDir := flag.String("evidence-dir", "evidence", "directory evidence is written under")
	ocrEndpoint := flag.String("ocr-endpoint", "", "OCR capability endpoint; empty disables OCR fallback")
	llmEndpoints := flag.String("llm-endpoints", "", "comma-separated LLM adjudicator endpoints; empty disables LLM adjudication")
	headless := flag.Bool("headless", true, "run the browser headless")
	tracingBackend := flag.String("tracing-backend", "", "Jaeger or Zipkin collector URL; empty disables per-row tracing")
	staticMode := flag.Bool("static", false, "use the HTTP-fallback capability instead of a JS-rendering browser (no screenshots/OCR)")
	flag.Parse()

	log.Println("validate: starting")

	cfg, stageErr := config.Load(*configPath)
	if stageErr != nil {
		log.Fatalf("validate: invalid configuration: %v", stageErr)
	}

	rows, err := readRows(*inputPath)
	if err != nil {
		log.Fatalf("validate: reading input %s: %v", *inputPath, err)
	}

	reg := registry.New(registry.DefaultCleanupTimeout)
	logger := vlog.New("validate")

	var browserCap browser.Capability
	if *staticMode {
		browserCap = browser.NewStaticCapability(cfg.Performance.Timeouts.Navigation)
	} else {
		rod, err := browser.NewRodCapability("", *headless)
		if err != nil {
			log.Fatalf("validate: starting browser: %v", err)
		}
		browserCap = rod
	}
	if _, err := reg.Register(closerResource{browserCap}); err != nil {
		log.Fatalf("validate: registering browser resource: %v", err)
	}

	var ocrCap ocr.Capability
	if *ocrEndpoint != "" {
		ocrCap = ocr.NewHTTPCapability(*ocrEndpoint, http.DefaultClient, cfg.Performance.Timeouts.OCRProcessing)
	}

	var adjudicator decision.Adjudicator
	if *llmEndpoints != "" {
		llmCfg := llm.DefaultConfig(splitEndpoints(*llmEndpoints))
		adjudicator = llm.New(llmCfg, http.DefaultClient, logger)
	}

	nav := navigator.New(browserCap, cfg.Performance.Timeouts.Navigation, logger)
	ext := extractor.New(browserCap, ocrCap, logger)

	var cache *decision.Cache
	if cfg.Performance.Caching.ValidationDecisions {
		cache = decision.NewCache(cfg.Performance.Caching.TTL)
	}
	engine := decision.NewEngine(cache, adjudicator)

	ev, err := evidence.New(*evidenceDir, evidence.NewMetrics())
	if err != nil {
		log.Fatalf("validate: starting evidence collector: %v", err)
	}

	p := pipeline.New(nav, ext, engine, ev, cfg, logger)
	if *tracingBackend != "" {
		tp, err := observability.InitTracer("rowvalidator", *tracingBackend)
		if err != nil {
			log.Printf("validate: tracer init failed, continuing without tracing: %v", err)
		} else {
			if _, err := reg.Register(shutdownerResource{tp}); err != nil {
				log.Printf("validate: registering tracer provider resource: %v", err)
			}
			p = p.WithTracer(tp.Tracer("rowvalidator/pipeline"))
		}
	}

	schedCfg := scheduler.DefaultConfig()
	schedCfg.Workers = cfg.Performance.ParallelWorkers
	schedCfg.MaxRetryAttempts = cfg.Rules.ErrorHandling.MaxRetryAttempts
	schedCfg.RetryDelay = time.Duration(cfg.Rules.ErrorHandling.RetryDelayMs) * time.Millisecond
	schedCfg.ExponentialBackoff = cfg.Rules.ErrorHandling.ExponentialBackoff
	schedCfg.EscalationThreshold = cfg.Rules.ErrorHandling.EscalationThreshold
	sched := scheduler.New(p, schedCfg, logger)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	builder := report.New(runID, len(rows), cfg)

	var processed int
	results, escalated := sched.Run(runCtx, rows, func(completed, total int, result models.RowResult) {
		processed = completed
		logger.Log("row_complete", map[string]any{"row_id": result.RowID, "completed": completed, "total": total})
	})

	exitKind := report.ExitKindFor(escalated, runCtx.Err() != nil && !escalated)
	rpt := report.Build(builder, results, exitKind, time.Now())
	logger.Log("run_finished", map[string]any{"processed": processed, "exit_kind": string(exitKind)})
	log.Println(report.Describe(rpt))

	if err := ev.WriteRunIndex(runID); err != nil {
		log.Printf("validate: writing evidence_index.json: %v", err)
	}
	if cfg.Evidence.RetentionDays > 0 || cfg.Evidence.CompressionEnabled {
		if err := ev.Sweep(evidence.PolicyFromConfig(cfg.Evidence)); err != nil {
			log.Printf("validate: evidence retention sweep: %v", err)
		}
	}

	if err := writeReport(*outputPath, rpt); err != nil {
		log.Printf("validate: writing report: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	outcomes := reg.Shutdown(shutdownCtx)
	succeeded, failed, timedOut := registry.Summary(outcomes)
	logger.Log("shutdown_complete", map[string]any{"succeeded": succeeded, "failed": failed, "timed_out": timedOut})
	if err := registry.Combine(outcomes); err != nil {
		log.Printf("validate: resource cleanup reported errors: %v", err)
	}

	os.Exit(exitCode(exitKind))
}

func exitCode(kind models.RunExitKind) int {
	switch kind {
	case models.ExitCompleted:
		return 0
	case models.ExitEscalated:
		return 2
	case models.ExitCancelled:
		return 130
	default:
		return 1
	}
}

// closerResource adapts browser.Capability's Close() error into the
// Resource Registry's context-aware Cleanup contract.
type closerResource struct {
	c interface{ Close() error }
}

func (r closerResource) Cleanup(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- r.c.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shutdownerResource adapts a TracerProvider's Shutdown(ctx) error into the
// Resource Registry's Cleanup contract directly; no channel indirection is
// needed since Shutdown already honors ctx cancellation itself.
type shutdownerResource struct {
	s interface{ Shutdown(ctx context.Context) error }
}

func (r shutdownerResource) Cleanup(ctx context.Context) error {
	return r.s.Shutdown(ctx)
}

func readRows(path string) ([]models.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	var rows []models.Row
	for index := 0; ; index++ {
		record, err := reader.Read()
		if err != nil {
			break
		}
		values := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(record) {
				values[col] = record[i]
			}
		}
		id, _ := values["id"].(string)
		if id == "" {
			id = uuid.NewString()
		}
		rows = append(rows, models.Row{ID: id, Index: index, Values: values})
	}
	return rows, nil
}

func writeReport(path string, rpt models.RunReport) error {
	data, err := json.MarshalIndent(rpt, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func splitEndpoints(csvList string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(csvList); i++ {
		if i == len(csvList) || csvList[i] == ',' {
			if seg := csvList[start:i]; seg != "" {
				out = append(out, seg)
			}
			start = i + 1
		}
	}
	return out
}
