// Package browser defines the Browser capability interface (spec.md §6)
// and a github.com/go-rod/rod-backed implementation, selected by
// configuration rather than subclassing (spec.md §9). go-rod/rod is
// grounded via manifests referencing it elsewhere in the retrieval pack
// (ncecere-raito, theRebelliousNerd-codenerd) and a kept reference file
// showing an analogous worker/job-polling shape reused here for page-load
// waiting.
package browser

import (
	"context"
	"time"
)

// ElementHandle is an opaque reference to a located DOM element.
type ElementHandle interface{}

// NavigateResult is the Browser.navigate() return value (spec.md §6).
type NavigateResult struct {
	StatusCode int
	FinalURL   string
	Redirects  []string
	LoadTimeMs int64
}

// Capability is the Browser capability contract (spec.md §6).
// ElementValue returns the canonical string form of the element's value:
// form input -> value or "true"/"false" for checked; select -> chosen
// value; textarea -> content; otherwise visible text (spec.md §4.6 step 2).
type Capability interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) (NavigateResult, error)
	QuerySelector(ctx context.Context, selector string) (ElementHandle, error)
	ElementValue(ctx context.Context, handle ElementHandle) (string, error)
	ElementBounds(ctx context.Context, handle ElementHandle) (x, y, w, h float64, err error)
	ScreenshotFull(ctx context.Context) ([]byte, error)
	ScreenshotElement(ctx context.Context, handle ElementHandle, marginPx int) ([]byte, error)
	DOMSnapshot(ctx context.Context) (string, error)
	Close() error
}
