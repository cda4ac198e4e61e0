package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStaticCapabilityNavigateAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body><div id="name">Jane Doe</div><span class="email">jane@example.test</span></body></html>`))
	}))
	defer srv.Close()

	cap := NewStaticCapability(5 * time.Second)
	result, err := cap.Navigate(context.Background(), srv.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if result.StatusCode != 200 {
		t.Fatalf("expected status 200, got %d", result.StatusCode)
	}

	handle, err := cap.QuerySelector(context.Background(), "#name")
	if err != nil {
		t.Fatalf("QuerySelector(#name): %v", err)
	}
	value, err := cap.ElementValue(context.Background(), handle)
	if err != nil {
		t.Fatalf("ElementValue: %v", err)
	}
	if value != "Jane Doe" {
		t.Fatalf("expected 'Jane Doe', got %q", value)
	}

	handle, err = cap.QuerySelector(context.Background(), ".email")
	if err != nil {
		t.Fatalf("QuerySelector(.email): %v", err)
	}
	value, err = cap.ElementValue(context.Background(), handle)
	if err != nil {
		t.Fatalf("ElementValue: %v", err)
	}
	if value != "jane@example.test" {
		t.Fatalf("expected email, got %q", value)
	}
}

func TestStaticCapabilityQuerySelectorMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body></body></html>`))
	}))
	defer srv.Close()

	cap := NewStaticCapability(5 * time.Second)
	if _, err := cap.Navigate(context.Background(), srv.URL, 5*time.Second); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if _, err := cap.QuerySelector(context.Background(), "#missing"); err == nil {
		t.Fatalf("expected an error for a missing selector")
	}
}

func TestStaticCapabilityScreenshotsUnsupported(t *testing.T) {
	cap := NewStaticCapability(5 * time.Second)
	if _, err := cap.ScreenshotFull(context.Background()); err == nil {
		t.Fatalf("expected ScreenshotFull to be unsupported")
	}
	if _, _, _, _, err := cap.ElementBounds(context.Background(), staticElement{}); err == nil {
		t.Fatalf("expected ElementBounds to be unsupported")
	}
}
