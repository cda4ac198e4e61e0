// Package navigator implements the Navigator (C7): interpolates a URL
// template with the row, loads the page, waits for settle, reports
// redirects and errors (spec.md §4.7). Adapted from contentfetcher.go's
// request-construction/retry shape (createConfiguredClient,
// readAndProcessBody) generalized from "fetch for keyword scanning" to
// "navigate to a row's URL and report status/redirects/timing", driving the
// page through the Browser capability rather than a bare net/http client so
// that JS-rendered pages and full-page screenshot capture (spec.md §4.7,
// §6) are supported uniformly.
package navigator

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fntelecomllc/rowvalidator/internal/browser"
	"github.com/fntelecomllc/rowvalidator/internal/models"
	"github.com/fntelecomllc/rowvalidator/internal/stageerr"
	"github.com/fntelecomllc/rowvalidator/internal/vlog"
)

const (
	DefaultTimeout     = 30 * time.Second
	SlowOriginTimeout  = 60 * time.Second
)

// Navigator drives one Browser capability instance through page loads.
type Navigator struct {
	cap     browser.Capability
	log     *vlog.Logger
	timeout time.Duration
}

// New builds a Navigator over an already-constructed Browser capability.
// timeout defaults to DefaultTimeout (spec.md §4.7); pass SlowOriginTimeout
// for known-slow origins.
func New(cap browser.Capability, timeout time.Duration, logger *vlog.Logger) *Navigator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Navigator{cap: cap, log: logger, timeout: timeout}
}

// InterpolateURL replaces {token} with the row's value: first exact-key,
// then case-insensitive key, then unchanged if absent (spec.md §4.7).
// Values are URL-encoded.
func InterpolateURL(template string, row models.Row) string {
	var b strings.Builder
	i := 0
	for i < len(template) {
		open := strings.IndexByte(template[i:], '{')
		if open == -1 {
			b.WriteString(template[i:])
			break
		}
		open += i
		close := strings.IndexByte(template[open:], '}')
		if close == -1 {
			b.WriteString(template[i:])
			break
		}
		close += open
		b.WriteString(template[i:open])
		token := template[open+1 : close]
		if v, ok := row.Get(token); ok {
			b.WriteString(url.QueryEscape(fmt.Sprintf("%v", v)))
		} else {
			b.WriteString("{" + token + "}")
		}
		i = close + 1
	}
	return b.String()
}

// classify maps a low-level navigation failure into the fatal/recoverable
// taxonomy (spec.md §4.7, §7).
func classify(err error, timedOut bool) *stageerr.Error {
	if timedOut {
		return stageerr.New(stageerr.KindNavigationTimeout, "navigation did not settle within timeout", err)
	}
	return stageerr.New(stageerr.KindTransientTransport, "navigation transport error", err)
}

// Load implements spec.md §4.7's load(urlTemplate, row) -> PageObservation.
// Every call uses the Navigator's one configured timeout; a retry is a
// separate Load call, made when the Scheduler re-runs the row.
func (n *Navigator) Load(ctx context.Context, urlTemplate string, row models.Row) (models.PageObservation, *stageerr.Error) {
	target := InterpolateURL(urlTemplate, row)

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	start := time.Now()
	navResult, err := n.cap.Navigate(ctx, target, n.timeout)
	loadTime := time.Since(start)

	if err != nil {
		timedOut := ctx.Err() == context.DeadlineExceeded
		if n.log != nil {
			n.log.Log("navigate_failed", map[string]any{"url": target, "timed_out": timedOut, "error": err.Error()})
		}
		return models.PageObservation{}, classify(err, timedOut)
	}

	if navResult.StatusCode == 404 || navResult.StatusCode == 410 {
		return models.PageObservation{}, stageerr.Fatal(stageerr.KindPageNotFound, fmt.Sprintf("page returned status %d", navResult.StatusCode), nil)
	}
	if navResult.StatusCode >= 500 {
		return models.PageObservation{}, stageerr.New(stageerr.KindTransientTransport, fmt.Sprintf("page returned status %d", navResult.StatusCode), nil)
	}

	shot, shotErr := n.cap.ScreenshotFull(ctx)
	var screenshots []models.Screenshot
	if shotErr == nil {
		screenshots = append(screenshots, models.Screenshot{
			ID:         uuid.NewString(),
			Bytes:      shot,
			Encoding:   "png",
			CapturedAt: time.Now().UTC(),
			Kind:       models.ScreenshotFull,
		})
	} else if n.log != nil {
		n.log.Log("screenshot_failed", map[string]any{"url": target, "error": shotErr.Error()})
	}

	dom, _ := n.cap.DOMSnapshot(ctx)

	obs := models.PageObservation{
		URL:         target,
		LoadTimeMs:  loadTime.Milliseconds(),
		StatusCode:  navResult.StatusCode,
		Redirects:   navResult.Redirects,
		CapturedAt:  time.Now().UTC(),
		Screenshots: screenshots,
		DOMSnapshot: dom,
	}
	if navResult.FinalURL != "" {
		obs.URL = navResult.FinalURL
	}
	return obs, nil
}
