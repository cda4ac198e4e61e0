package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fntelecomllc/rowvalidator/internal/decision"
	"github.com/fntelecomllc/rowvalidator/internal/models"
	"github.com/fntelecomllc/rowvalidator/internal/stageerr"
	"github.com/fntelecomllc/rowvalidator/internal/vlog"
)

// Config holds the LLM Adjudicator's tunables (spec.md §4.5 defaults).
type Config struct {
	CandidateEndpoints []string
	Strategy           Strategy
	THealth            time.Duration // default 5s
	TBackoffBase       time.Duration // default 2s
	MaxRetries         int           // default 3
	TLLM               time.Duration // default 10s, per-request
	TLLMTotal          time.Duration // default 30s, overall per adjudication
}

// DefaultConfig returns spec.md §4.5's stated defaults.
func DefaultConfig(endpoints []string) Config {
	return Config{
		CandidateEndpoints: endpoints,
		Strategy:           StrategySequentialFailover,
		THealth:            5 * time.Second,
		TBackoffBase:       2 * time.Second,
		MaxRetries:         3,
		TLLM:               10 * time.Second,
		TLLMTotal:          30 * time.Second,
	}
}

// Adjudicator is the concrete LLM Adjudicator (C5) implementation,
// transport-neutral in contract (spec.md §6) but implemented here over
// HTTP/JSON, the typical case.
type Adjudicator struct {
	cfg    Config
	client *http.Client
	state  *endpointState
	log    *vlog.Logger
}

// New builds an Adjudicator. client may be nil to use a sensible default.
func New(cfg Config, client *http.Client, logger *vlog.Logger) *Adjudicator {
	if client == nil {
		client = &http.Client{}
	}
	return &Adjudicator{
		cfg:    cfg,
		client: client,
		state:  newEndpointState(cfg.CandidateEndpoints, cfg.Strategy),
		log:    logger,
	}
}

type adjudicateRequest struct {
	CSVValue  string `json:"csvValue"`
	WebValue  string `json:"webValue"`
	FieldType string `json:"fieldType"`
	FieldName string `json:"fieldName"`
}

// Adjudicate implements the Engine.Adjudicator contract (spec.md §4.5).
func (a *Adjudicator) Adjudicate(ctx context.Context, csvValue, webValue string, fieldType models.FieldType, fieldName string) (result decision.AdjudicationResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.TLLMTotal)
	defer cancel()

	req := adjudicateRequest{CSVValue: csvValue, WebValue: webValue, FieldType: string(fieldType), FieldName: fieldName}

	attempt := 0
	for attempt <= a.cfg.MaxRetries {
		select {
		case <-ctx.Done():
			return a.fallback(csvValue, webValue), nil
		default:
		}

		endpoint := a.state.getPinned()
		if endpoint == "" {
			endpoint = discover(ctx, a.client, a.state, a.cfg.THealth)
			if endpoint == "" {
				if a.log != nil {
					a.log.Log("discovery_failed", map[string]any{"attempt": attempt})
				}
				return a.fallback(csvValue, webValue), nil
			}
		}

		res, callErr := a.callOnce(ctx, endpoint, req)
		if callErr == nil {
			a.state.recordSuccess()
			return res, nil
		}

		if a.log != nil {
			a.log.Log("transport_error", map[string]any{"attempt": attempt, "endpoint": endpoint, "error": callErr.Error()})
		}
		if n := a.state.recordFailure(); n >= 2 {
			a.state.pin("") // force re-discovery on next loop iteration
		}

		attempt++
		if attempt > a.cfg.MaxRetries {
			break
		}
		// Health probe gates every retry (spec.md §4.5).
		if !healthProbe(ctx, a.client, endpoint, a.cfg.THealth) {
			a.state.pin("")
		}
		backoff(ctx, a.cfg.TBackoffBase, attempt)
	}

	return a.fallback(csvValue, webValue), nil
}

func (a *Adjudicator) fallback(csvValue, webValue string) decision.AdjudicationResult {
	match := csvValue == webValue
	conf := 0.2
	if match {
		conf = 0.6
	}
	return decision.AdjudicationResult{
		Match:      match,
		Confidence: conf,
		Reasoning:  "llm unavailable after retries; deterministic fallback on raw equality",
	}
}

func backoff(ctx context.Context, base time.Duration, attempt int) {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 2 + 1))
	select {
	case <-time.After(d + jitter):
	case <-ctx.Done():
	}
}

func (a *Adjudicator) callOnce(ctx context.Context, endpoint string, req adjudicateRequest) (decision.AdjudicationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.TLLM)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return decision.AdjudicationResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/validate", bytes.NewReader(body))
	if err != nil {
		return decision.AdjudicationResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return decision.AdjudicationResult{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return decision.AdjudicationResult{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decision.AdjudicationResult{}, fmt.Errorf("llm endpoint returned status %d", resp.StatusCode)
	}

	parsed, layer, perr := parseResponse(string(raw))
	if a.log != nil {
		a.log.Log("response_parsed", map[string]any{"layer": layer, "ok": perr == nil})
	}
	if perr != nil {
		return decision.AdjudicationResult{}, perr
	}
	parsed.RawResponse = string(raw)
	return parsed, nil
}

// --- five-layer tolerant response parser (spec.md §4.5) ---

type rawEnvelope struct {
	Match         *bool    `json:"match"`
	Confidence    *float64 `json:"confidence"`
	Reasoning     string   `json:"reasoning"`
	NormalizedCSV string   `json:"normalizedCsv"`
	NormalizedWeb string   `json:"normalizedWeb"`
}

func (e rawEnvelope) toResult() (decision.AdjudicationResult, error) {
	if e.Match == nil || e.Confidence == nil {
		return decision.AdjudicationResult{}, &stageerr.Error{Kind: stageerr.KindLLMUnavailable, Message: "parsed envelope missing match/confidence", Recoverable: true}
	}
	return decision.AdjudicationResult{
		Match:         *e.Match,
		Confidence:    *e.Confidence,
		Reasoning:     e.Reasoning,
		NormalizedCSV: e.NormalizedCSV,
		NormalizedWeb: e.NormalizedWeb,
	}, nil
}

var (
	fencedBlockRE = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	labeledRE     = regexp.MustCompile(`(?is)(?:result|response)\s*:\s*(\{.*\})`)
	trailingCommaRE = regexp.MustCompile(`,\s*([}\]])`)
	bareKeyRE       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
	matchTextRE     = regexp.MustCompile(`(?i)match["':\s]*[:=]?\s*(true|false)`)
	confidenceTextRE = regexp.MustCompile(`(?i)confidence["':\s]*[:=]?\s*([01](?:\.\d+)?)`)
	reasoningTextRE  = regexp.MustCompile(`(?i)reasoning["':\s]*[:=]?\s*"([^"]*)"`)
)

// parseResponse tries, in order: (1) direct JSON parse; (2) brace-matched
// regex extraction; (3) JSON in a fenced code block; (4) JSON after a
// result:/response: label; (5) common-error repair (trailing commas, bare
// keys, single quotes). If all fail, falls back to key-pattern text
// scraping. Returns the layer number (1-6, 6 = text scrape) that produced
// the result.
func parseResponse(raw string) (decision.AdjudicationResult, int, error) {
	raw = strings.TrimSpace(raw)

	// Layer 1: direct parse.
	var env rawEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err == nil {
		if r, rerr := env.toResult(); rerr == nil {
			return r, 1, nil
		}
	}

	// Layer 2: brace-matched extraction.
	if candidate := extractBraceMatched(raw); candidate != "" {
		var env2 rawEnvelope
		if err := json.Unmarshal([]byte(candidate), &env2); err == nil {
			if r, rerr := env2.toResult(); rerr == nil {
				return r, 2, nil
			}
		}
	}

	// Layer 3: fenced code block.
	if m := fencedBlockRE.FindStringSubmatch(raw); len(m) == 2 {
		var env3 rawEnvelope
		if err := json.Unmarshal([]byte(m[1]), &env3); err == nil {
			if r, rerr := env3.toResult(); rerr == nil {
				return r, 3, nil
			}
		}
	}

	// Layer 4: labeled result:/response:.
	if m := labeledRE.FindStringSubmatch(raw); len(m) == 2 {
		var env4 rawEnvelope
		if err := json.Unmarshal([]byte(m[1]), &env4); err == nil {
			if r, rerr := env4.toResult(); rerr == nil {
				return r, 4, nil
			}
		}
	}

	// Layer 5: common-error repair.
	repaired := repairJSON(raw)
	if repaired != raw {
		var env5 rawEnvelope
		if err := json.Unmarshal([]byte(repaired), &env5); err == nil {
			if r, rerr := env5.toResult(); rerr == nil {
				return r, 5, nil
			}
		}
	}

	// Layer 6: key-pattern text scraping.
	if m := matchTextRE.FindStringSubmatch(raw); len(m) == 2 {
		match := strings.EqualFold(m[1], "true")
		conf := 0.5
		if cm := confidenceTextRE.FindStringSubmatch(raw); len(cm) == 2 {
			if f, err := strconv.ParseFloat(cm[1], 64); err == nil {
				conf = f
			}
		}
		reasoning := ""
		if rm := reasoningTextRE.FindStringSubmatch(raw); len(rm) == 2 {
			reasoning = rm[1]
		}
		return decision.AdjudicationResult{Match: match, Confidence: conf, Reasoning: reasoning}, 6, nil
	}

	return decision.AdjudicationResult{}, 0, fmt.Errorf("llm response could not be parsed by any layer")
}

func extractBraceMatched(s string) string {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func repairJSON(s string) string {
	s = trailingCommaRE.ReplaceAllString(s, "$1")
	s = bareKeyRE.ReplaceAllString(s, `$1"$2"$3`)
	s = strings.ReplaceAll(s, "'", "\"")
	return s
}
