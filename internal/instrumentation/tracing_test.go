package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func attrMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, a := range attrs {
		out[string(a.Key)] = a.Value.AsInterface()
	}
	return out
}

func TestStartToolSpan(t *testing.T) {
	recorder := recordSpans(t)

	ctx, span := StartToolSpan(context.Background(), "get_free_slots", attribute.Bool(SpanAttrReadOnly, true))
	if GetTraceID(ctx) == "" || GetSpanID(ctx) == "" {
		t.Error("expected trace and span ids in context")
	}
	EndSpan(span, nil)

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	s := ended[0]
	if s.Name() != "tool.get_free_slots" {
		t.Errorf("unexpected span name %q", s.Name())
	}
	if s.SpanKind() != trace.SpanKindServer {
		t.Errorf("unexpected kind %v", s.SpanKind())
	}
	attrs := attrMap(s.Attributes())
	if attrs[SpanAttrTool] != "get_free_slots" || attrs[SpanAttrReadOnly] != true {
		t.Errorf("unexpected attributes %v", attrs)
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("expected ok status, got %v", s.Status())
	}
}

func TestStartStoreSpan(t *testing.T) {
	recorder := recordSpans(t)

	_, span := StartStoreSpan(context.Background(), BackendSQLite, OperationUndo, attribute.String(SpanAttrChangeSet, "cs-1"))
	EndSpan(span, errors.New("boom"))

	s := recorder.Ended()[0]
	if s.Name() != "store.sqlite.undo" {
		t.Errorf("unexpected span name %q", s.Name())
	}
	if s.SpanKind() != trace.SpanKindClient {
		t.Errorf("unexpected kind %v", s.SpanKind())
	}
	attrs := attrMap(s.Attributes())
	if attrs[SpanAttrBackend] != BackendSQLite || attrs[SpanAttrOperation] != OperationUndo || attrs[SpanAttrChangeSet] != "cs-1" {
		t.Errorf("unexpected attributes %v", attrs)
	}
	if s.Status().Code != codes.Error || s.Status().Description != "boom" {
		t.Errorf("expected error status, got %v", s.Status())
	}
	if len(s.Events()) == 0 {
		t.Error("expected the error to be recorded as an event")
	}
}

func TestSpanIDs_NoSpan(t *testing.T) {
	ctx := context.Background()
	if id := GetTraceID(ctx); id != "" {
		t.Errorf("expected empty trace ID, got %q", id)
	}
	if id := GetSpanID(ctx); id != "" {
		t.Errorf("expected empty span ID, got %q", id)
	}
}
