// Package llm implements the LLM Adjudicator (C5): an optional capability
// that submits a structured prompt to an external LLM and parses a robust
// response envelope (spec.md §4.5).
//
// Transport discovery/endpoint pinning is adapted from
// contentfetcher.go's dnsResolverState (newDNSResolverState,
// getNextResolver, the sequential_failover/weighted_rotation/
// random_rotation strategies), generalized from DNS resolvers to candidate
// LLM endpoints. Retry/backoff-with-jitter is adapted from proxymanager.go's
// health-check retry shape (performSingleProxyCheck).
package llm

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// Strategy names the candidate-selection strategy, mirroring the teacher's
// DNS-persona resolver strategies.
type Strategy string

const (
	StrategySequentialFailover Strategy = "sequential_failover"
	StrategyWeightedRotation   Strategy = "weighted_rotation"
	StrategyRandomRotation     Strategy = "random_rotation"
)

// endpointState tracks round-robin/weighted position across candidates,
// generalized from the teacher's dnsResolverState.
type endpointState struct {
	mu         sync.Mutex
	candidates []string
	strategy   Strategy
	index      int
	pinned     string // single-writer, many-reader pinned endpoint (spec.md §5)
	pinnedMu   sync.RWMutex
	consecutiveFailures int
}

func newEndpointState(candidates []string, strategy Strategy) *endpointState {
	return &endpointState{candidates: candidates, strategy: strategy}
}

// next returns the next candidate to probe, per the configured strategy.
func (s *endpointState) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.candidates) == 0 {
		return ""
	}
	switch s.strategy {
	case StrategyRandomRotation:
		return s.candidates[rand.Intn(len(s.candidates))]
	case StrategyWeightedRotation:
		// Without declared weights, weighted rotation degenerates to the
		// same round-robin over candidates as sequential failover; the
		// position moves on through advance(), once per probe.
		c := s.candidates[s.index%len(s.candidates)]
		return c
	default: // sequential_failover
		c := s.candidates[s.index%len(s.candidates)]
		return c
	}
}

func (s *endpointState) advance() {
	s.mu.Lock()
	s.index++
	s.mu.Unlock()
}

// pin fixes the endpoint for the run (spec.md §4.5: "first that responds OK
// ... is pinned for the run").
func (s *endpointState) pin(endpoint string) {
	s.pinnedMu.Lock()
	s.pinned = endpoint
	s.pinnedMu.Unlock()
}

func (s *endpointState) getPinned() string {
	s.pinnedMu.RLock()
	defer s.pinnedMu.RUnlock()
	return s.pinned
}

func (s *endpointState) recordFailure() int {
	s.mu.Lock()
	s.consecutiveFailures++
	n := s.consecutiveFailures
	s.mu.Unlock()
	return n
}

func (s *endpointState) recordSuccess() {
	s.mu.Lock()
	s.consecutiveFailures = 0
	s.mu.Unlock()
}

// healthProbe performs the health() contract (spec.md §6 LLM capability):
// GET <endpoint>/health within timeout, success iff 2xx.
func healthProbe(ctx context.Context, client *http.Client, endpoint string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// discover runs the "first that responds OK within T_health is pinned"
// rule (spec.md §4.5). Re-discovery is the caller's responsibility, invoked
// after two consecutive failures (see Adjudicator.Adjudicate).
func discover(ctx context.Context, client *http.Client, st *endpointState, tHealth time.Duration) string {
	for i := 0; i < len(st.candidates); i++ {
		candidate := st.next()
		st.advance()
		if healthProbe(ctx, client, candidate, tHealth) {
			st.pin(candidate)
			return candidate
		}
	}
	return ""
}
