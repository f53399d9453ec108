package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the tracer used for all calpilot spans.
const TracerName = "github.com/teemow/calpilot"

// Span attribute keys.
const (
	SpanAttrTool      = "mcp.tool"
	SpanAttrReadOnly  = "mcp.read_only"
	SpanAttrBackend   = "calendar.backend"
	SpanAttrOperation = "calendar.operation"
	SpanAttrEventID   = "calendar.event_id"
	SpanAttrChangeSet = "calendar.changeset_id"
)

// StartToolSpan starts a server span for an MCP tool invocation.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{attribute.String(SpanAttrTool, toolName)}, attrs...)
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, "tool."+toolName,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartStoreSpan starts a client span for a calendar store call.
func StartStoreSpan(ctx context.Context, backend, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{
		attribute.String(SpanAttrBackend, backend),
		attribute.String(SpanAttrOperation, operation),
	}, attrs...)
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, "store."+backend+"."+operation,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpan sets the span status from err and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// GetTraceID returns the trace id of the span in ctx, or "".
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// GetSpanID returns the span id of the span in ctx, or "".
func GetSpanID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.SpanID().String()
}
