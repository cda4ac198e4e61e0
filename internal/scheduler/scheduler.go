// Package scheduler implements the Scheduler (C10): a bounded worker pool
// that drains a row queue through the Row Pipeline, retries recoverable
// failures with backoff, and escalates (stops accepting new work) once the
// rolling failure rate crosses a threshold (spec.md §4.10). Adapted from
// campaign_worker_service.go's StartWorkers/workerLoop shape — a fixed set
// of goroutines (here an errgroup.Group) each looping until ctx is done — generalized
// from a DB-backed job queue polled on a ticker to an in-memory row channel
// consumed as fast as workers are free, since this orchestrator has no job
// store of record (spec.md §1).
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fntelecomllc/rowvalidator/internal/models"
	"github.com/fntelecomllc/rowvalidator/internal/pipeline"
	"github.com/fntelecomllc/rowvalidator/internal/stageerr"
	"github.com/fntelecomllc/rowvalidator/internal/vlog"
)

const (
	DefaultWorkers             = 3
	DefaultMaxRetryAttempts    = 3
	DefaultRetryDelay          = 2 * time.Second
	DefaultEscalationThreshold = 0.2
	DefaultEscalationWindow    = 100
	DefaultDrainTimeout        = 20 * time.Second
)

// Config bounds the Scheduler's concurrency and retry/escalation policy
// (spec.md §4.10, §5).
type Config struct {
	Workers             int
	MaxRetryAttempts    int
	RetryDelay          time.Duration
	ExponentialBackoff  bool
	EscalationThreshold float64
	EscalationWindow    int
	DrainTimeout        time.Duration
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		Workers:             DefaultWorkers,
		MaxRetryAttempts:    DefaultMaxRetryAttempts,
		RetryDelay:          DefaultRetryDelay,
		ExponentialBackoff:  true,
		EscalationThreshold: DefaultEscalationThreshold,
		EscalationWindow:    DefaultEscalationWindow,
		DrainTimeout:        DefaultDrainTimeout,
	}
}

// ProgressFunc is invoked after every row completes (success or failure).
type ProgressFunc func(completed, total int, result models.RowResult)

// Scheduler owns the row queue and worker pool; the Row Pipeline only
// borrows one row at a time and returns its RowResult by value (spec.md
// §4.10's owner-borrower pattern).
type Scheduler struct {
	pipeline *pipeline.Pipeline
	cfg      Config
	log      *vlog.Logger
}

// New builds a Scheduler over an already-constructed Pipeline.
func New(p *pipeline.Pipeline, cfg Config, logger *vlog.Logger) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxRetryAttempts <= 0 {
		cfg.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.EscalationThreshold <= 0 {
		cfg.EscalationThreshold = DefaultEscalationThreshold
	}
	if cfg.EscalationWindow <= 0 {
		cfg.EscalationWindow = DefaultEscalationWindow
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	return &Scheduler{pipeline: p, cfg: cfg, log: logger}
}

type workItem struct {
	row     models.Row
	attempt int
}

// rollingOutcomes tracks the last N row outcomes for the escalation check;
// the failure rate is the failures among them divided by N itself.
type rollingOutcomes struct {
	mu      sync.Mutex
	outcome []bool // true = failed
	window  int
}

func newRollingOutcomes(window int) *rollingOutcomes {
	return &rollingOutcomes{window: window}
}

func (r *rollingOutcomes) record(failed bool) (rate float64, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcome = append(r.outcome, failed)
	if len(r.outcome) > r.window {
		r.outcome = r.outcome[len(r.outcome)-r.window:]
	}
	var failures int
	for _, f := range r.outcome {
		if f {
			failures++
		}
	}
	return float64(failures) / float64(r.window), len(r.outcome)
}

// Run drains rows through the worker pool and returns one RowResult per
// completed row (every row unless the run escalated or was cancelled), in
// no particular order, honoring cancellation, retries, and escalation
// (spec.md §4.10). The returned bool reports whether the run escalated
// (stopped early due to a sustained high failure rate) rather than
// completing or being externally cancelled.
func (s *Scheduler) Run(ctx context.Context, rows []models.Row, onProgress ProgressFunc) ([]models.RowResult, bool) {
	total := len(rows)
	queue := make(chan workItem, total)
	for _, row := range rows {
		queue <- workItem{row: row, attempt: 1}
	}

	results := make([]models.RowResult, 0, total)
	if total == 0 {
		return results, false
	}
	var resultsMu sync.Mutex
	var completed int

	escalated := &escalationFlag{}
	rolling := newRollingOutcomes(s.cfg.EscalationWindow)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// errgroup bounds the pool to cfg.Workers goroutines the same way a
	// semaphore-of-size-N would, while giving Wait()'s usual group-shutdown
	// semantics for free (spec.md §5's bounded worker pool).
	g := new(errgroup.Group)
	for i := 0; i < s.cfg.Workers; i++ {
		g.Go(func() error {
			s.worker(runCtx, cancel, queue, &resultsMu, &results, &completed, total, onProgress, escalated, rolling)
			return nil
		})
	}
	g.Wait()

	return results, escalated.get()
}

type escalationFlag struct {
	mu  sync.Mutex
	hit bool
}

func (f *escalationFlag) set() {
	f.mu.Lock()
	f.hit = true
	f.mu.Unlock()
}

func (f *escalationFlag) get() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hit
}

func (s *Scheduler) worker(
	ctx context.Context,
	cancel context.CancelFunc,
	queue chan workItem,
	resultsMu *sync.Mutex,
	results *[]models.RowResult,
	completed *int,
	total int,
	onProgress ProgressFunc,
	escalated *escalationFlag,
	rolling *rollingOutcomes,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-queue:
			if !ok {
				return
			}
			result := s.pipeline.Run(ctx, item.row)
			failed := len(result.Errors) > 0

			if failed && item.attempt < s.cfg.MaxRetryAttempts && lastErrorRecoverable(result, item.attempt) {
				delay := s.backoff(item.attempt)
				if s.log != nil {
					s.log.Log("row_retry_scheduled", map[string]any{"row_id": item.row.ID, "attempt": item.attempt + 1, "delay_ms": delay.Milliseconds()})
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
					select {
					case queue <- workItem{row: item.row, attempt: item.attempt + 1}:
					case <-ctx.Done():
						return
					}
				}
				continue
			}

			resultsMu.Lock()
			*results = append(*results, result)
			*completed++
			n := *completed
			resultsMu.Unlock()

			if onProgress != nil {
				onProgress(n, total, result)
			}

			if n >= total {
				cancel() // every row accounted for; release the remaining idle workers
				return
			}

			// record caps the tracked outcomes at EscalationWindow and divides
			// their failures by the window size itself, so escalation can fire
			// before a full window has accumulated without the first few
			// failures alone tripping it (spec.md's worked example: with a
			// window of 100, the 21st failed row crosses a 0.2 threshold,
			// 21/100 > 0.2).
			rate, seen := rolling.record(failed)
			if rate > s.cfg.EscalationThreshold {
				if s.log != nil {
					s.log.Log("run_escalated", map[string]any{"failure_rate": rate, "window": seen})
				}
				escalated.set()
				cancel()
				return
			}
		}
	}
}

// lastErrorRecoverable reports whether a failed attempt may be retried: its
// last error must be recoverable, and a navigation timeout is retried on its
// first occurrence (attempt 1) only.
func lastErrorRecoverable(result models.RowResult, attempt int) bool {
	if len(result.Errors) == 0 {
		return true
	}
	last := result.Errors[len(result.Errors)-1]
	if last.Kind == string(stageerr.KindNavigationTimeout) && attempt > 1 {
		return false
	}
	return last.Recoverable
}

// backoff computes the retry delay for a given attempt number, applying
// exponential growth with jitter when enabled (spec.md §4.10).
func (s *Scheduler) backoff(attempt int) time.Duration {
	if !s.cfg.ExponentialBackoff {
		return s.cfg.RetryDelay
	}
	d := s.cfg.RetryDelay
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	jitter := time.Duration(rand.Int63n(int64(s.cfg.RetryDelay) + 1))
	return d + jitter
}
