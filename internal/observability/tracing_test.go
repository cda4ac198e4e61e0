package observability

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracePropagation(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(sr)

	tracer := tp.Tracer("test")
	ctx, span := StartSpan(context.Background(), tracer, "root")
	ctx, child := StartSpan(ctx, tracer, "child")
	child.End()
	span.End()

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	var rootSpan, childSpan sdktrace.ReadOnlySpan
	for _, sp := range spans {
		switch sp.Name() {
		case "root":
			rootSpan = sp
		case "child":
			childSpan = sp
		}
	}
	if childSpan == nil || rootSpan == nil {
		t.Fatalf("spans not recorded correctly")
	}
	if childSpan.Parent().SpanID() != rootSpan.SpanContext().SpanID() {
		t.Fatalf("child span does not have correct parent")
	}
}

func TestRowSpanAndOutcomeAttributes(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(sr)

	tracer := tp.Tracer("test")
	_, span := RowSpan(context.Background(), tracer, "pipeline.row", "row-9", 3)
	RecordRowOutcome(span, "done", true, 0.97, "evidence-9")
	span.End()

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["row.id"] != "row-9" {
		t.Fatalf("expected row.id=row-9, got %q", attrs["row.id"])
	}
	if attrs["row.index"] != "3" {
		t.Fatalf("expected row.index=3, got %q", attrs["row.index"])
	}
	if attrs["row.state"] != "done" {
		t.Fatalf("expected row.state=done, got %q", attrs["row.state"])
	}
	if attrs["row.overall_match"] != "true" {
		t.Fatalf("expected row.overall_match=true, got %q", attrs["row.overall_match"])
	}
	if attrs["row.evidence_id"] != "evidence-9" {
		t.Fatalf("expected row.evidence_id=evidence-9, got %q", attrs["row.evidence_id"])
	}
}
