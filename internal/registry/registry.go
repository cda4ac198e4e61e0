// Package registry implements the Resource Registry (C1): tracks every
// component instance that owns an external resource (browser pages, OCR
// client connections, evidence writers) and drives orderly, concurrent
// shutdown on signal, panic, or normal completion (spec.md §4.1, §5).
// Adapted from pkg/architecture/service_registry.go's sync.RWMutex-guarded
// map-of-contracts shape, generalized from "service contract lookup" to
// "resource cleanup tracking", and from
// campaign_worker_service.go's ConcurrentWorkerOperation for the
// concurrent-fan-out-with-per-item-outcome idiom used by Shutdown.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// DefaultCleanupTimeout is T_cleanup (spec.md §4.1).
const DefaultCleanupTimeout = 10 * time.Second

// Resource is anything the registry can clean up on shutdown.
type Resource interface {
	Cleanup(ctx context.Context) error
}

type entry struct {
	id        string
	resource  Resource
	cleanedUp bool
}

// Registry serializes registration/unregistration and takes a snapshot
// before iterating for cleanup (spec.md §5: "cleanup iteration uses a
// snapshot").
type Registry struct {
	mu             sync.Mutex
	entries        map[string]*entry
	shuttingDown   bool
	cleanupTimeout time.Duration
}

// New builds an empty Registry. cleanupTimeout defaults to
// DefaultCleanupTimeout when <= 0.
func New(cleanupTimeout time.Duration) *Registry {
	if cleanupTimeout <= 0 {
		cleanupTimeout = DefaultCleanupTimeout
	}
	return &Registry{entries: make(map[string]*entry), cleanupTimeout: cleanupTimeout}
}

// Register adds a resource and returns its unique id. Registration during
// shutdown is refused (spec.md §4.1).
func (r *Registry) Register(res Resource) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shuttingDown {
		return "", fmt.Errorf("registry is shutting down, registration refused")
	}
	id := uuid.NewString()
	r.entries[id] = &entry{id: id, resource: res}
	return id, nil
}

// IsCleanedUp reports whether the resource for id has already been cleaned
// up (or never existed).
func (r *Registry) IsCleanedUp(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return true
	}
	return e.cleanedUp
}

// Outcome is one resource's cleanup result.
type Outcome struct {
	ID       string
	Err      error
	TimedOut bool
}

// Shutdown marks the registry closed to new registrations, then invokes
// Cleanup concurrently on every still-live resource, each bounded by
// T_cleanup; a resource that doesn't finish in time is abandoned and its
// timeout logged as a failure outcome rather than blocking the others
// (spec.md §4.1).
func (r *Registry) Shutdown(ctx context.Context) []Outcome {
	r.mu.Lock()
	if r.shuttingDown {
		r.mu.Unlock()
		return nil
	}
	r.shuttingDown = true
	snapshot := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		if !e.cleanedUp {
			snapshot = append(snapshot, e)
		}
	}
	r.mu.Unlock()

	outcomes := make([]Outcome, len(snapshot))
	var wg sync.WaitGroup
	for i, e := range snapshot {
		wg.Add(1)
		go func(i int, e *entry) {
			defer wg.Done()
			outcomes[i] = r.cleanupOne(ctx, e)
		}(i, e)
	}
	wg.Wait()
	return outcomes
}

func (r *Registry) cleanupOne(ctx context.Context, e *entry) Outcome {
	cleanupCtx, cancel := context.WithTimeout(ctx, r.cleanupTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- e.resource.Cleanup(cleanupCtx)
	}()

	select {
	case err := <-done:
		r.mu.Lock()
		e.cleanedUp = true
		r.mu.Unlock()
		return Outcome{ID: e.id, Err: err}
	case <-cleanupCtx.Done():
		// Abandoned: the goroutine above may still be running against a
		// resource that never respected cancellation; its result, if any,
		// is discarded when it eventually arrives on the buffered channel.
		// The registry still considers the resource accounted for within
		// T_drain+T_cleanup, so cleanedUp is set here too, independent of
		// whatever the resource itself eventually reports.
		r.mu.Lock()
		e.cleanedUp = true
		r.mu.Unlock()
		return Outcome{ID: e.id, Err: cleanupCtx.Err(), TimedOut: true}
	}
}

// Combine folds every failed or abandoned outcome into a single error, for
// callers (the CLI wrapper) that want one reportable error rather than
// walking the outcome slice themselves. Returns nil when every resource
// cleaned up successfully.
func Combine(outcomes []Outcome) error {
	var result *multierror.Error
	for _, o := range outcomes {
		switch {
		case o.TimedOut:
			result = multierror.Append(result, fmt.Errorf("resource %s: cleanup abandoned after timeout: %w", o.ID, o.Err))
		case o.Err != nil:
			result = multierror.Append(result, fmt.Errorf("resource %s: %w", o.ID, o.Err))
		}
	}
	return result.ErrorOrNil()
}

// Summary tallies Shutdown's outcomes for logging (spec.md §4.1: "logs
// success/failure counts").
func Summary(outcomes []Outcome) (succeeded, failed, timedOut int) {
	for _, o := range outcomes {
		switch {
		case o.TimedOut:
			timedOut++
		case o.Err != nil:
			failed++
		default:
			succeeded++
		}
	}
	return
}
