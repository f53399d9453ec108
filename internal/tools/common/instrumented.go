package common

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/calpilot/internal/instrumentation"
	"github.com/teemow/calpilot/internal/server"
)

// ToolHandler is the mcp-go tool handler signature.
type ToolHandler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

type invocationKey struct{}

// RecordChange attaches the affected event and changeset to the audit record
// of the tool call running in ctx. It is a no-op outside InstrumentedToolHandler.
func RecordChange(ctx context.Context, eventID, changeSetID string) {
	ti, ok := ctx.Value(invocationKey{}).(*instrumentation.ToolInvocation)
	if !ok {
		return
	}
	if eventID != "" {
		ti.EventID = eventID
	}
	if changeSetID != "" {
		ti.ChangeSetID = changeSetID
	}
}

// errToolResult stands in for an IsError result in the audit record.
var errToolResult = errors.New("tool returned an error result")

// InstrumentedToolHandler wraps a tool handler with a span, metrics and
// audit logging.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", true, sc, handler))
func InstrumentedToolHandler(toolName string, readOnly bool, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		metrics := sc.Metrics()
		auditLogger := sc.AuditLogger()

		backend := sc.Engine().Capabilities().Backend
		ctx, span := instrumentation.StartToolSpan(ctx, toolName,
			attribute.Bool(instrumentation.SpanAttrReadOnly, readOnly),
			attribute.String(instrumentation.SpanAttrBackend, backend),
		)

		invocation := instrumentation.NewToolInvocation(toolName, readOnly).
			WithBackend(backend).
			WithSpanContext(ctx)
		ctx = context.WithValue(ctx, invocationKey{}, invocation)

		result, err := handler(ctx, request)

		outcome := err
		if outcome == nil && result != nil && result.IsError {
			outcome = errToolResult
		}
		invocation.Complete(outcome)
		if invocation.EventID != "" {
			span.SetAttributes(attribute.String(instrumentation.SpanAttrEventID, invocation.EventID))
		}
		if invocation.ChangeSetID != "" {
			span.SetAttributes(attribute.String(instrumentation.SpanAttrChangeSet, invocation.ChangeSetID))
		}
		instrumentation.EndSpan(span, outcome)

		if metrics != nil {
			metrics.RecordToolInvocation(ctx, toolName, invocation.Status(), invocation.Duration)
		}
		auditLogger.LogToolInvocation(ctx, invocation)

		return result, err
	}
}
