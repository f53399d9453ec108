package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrTool      = "tool"
	attrBackend   = "backend"
	attrOperation = "operation"
	attrOutcome   = "outcome"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

// Metrics records calpilot metrics. The zero value is a no-op recorder.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	storeOperationsTotal metric.Int64Counter
	storeDuration        metric.Float64Histogram

	personaAnalysesTotal metric.Int64Counter
	driftDetectionsTotal metric.Int64Counter
}

// NewMetrics creates all instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	counter := func(name, desc, unit string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		if err != nil {
			err = fmt.Errorf("failed to create %s counter: %w", name, err)
		}
		return c
	}
	histogram := func(name, desc string) metric.Float64Histogram {
		if err != nil {
			return nil
		}
		var h metric.Float64Histogram
		h, err = meter.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(durationBuckets...))
		if err != nil {
			err = fmt.Errorf("failed to create %s histogram: %w", name, err)
		}
		return h
	}

	m.httpRequestsTotal = counter("http_requests_total", "Total number of HTTP requests", "{request}")
	m.httpRequestDuration = histogram("http_request_duration_seconds", "HTTP request duration in seconds")
	m.toolInvocationsTotal = counter("mcp_tool_invocations_total", "Total number of MCP tool invocations", "{invocation}")
	m.toolDuration = histogram("mcp_tool_duration_seconds", "MCP tool execution duration in seconds")
	m.storeOperationsTotal = counter("store_operations_total", "Total number of calendar store operations", "{operation}")
	m.storeDuration = histogram("store_operation_duration_seconds", "Calendar store operation duration in seconds")
	m.personaAnalysesTotal = counter("persona_analyses_total", "Total number of persona analyses", "{analysis}")
	m.driftDetectionsTotal = counter("drift_detections_total", "Total number of drift detection outcomes", "{outcome}")
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordToolInvocation records one MCP tool call.
func (m *Metrics) RecordToolInvocation(ctx context.Context, tool, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrTool, tool),
		attribute.String(attrStatus, status),
	)
	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordStoreOperation records one calendar store call.
func (m *Metrics) RecordStoreOperation(ctx context.Context, backend, operation, status string, duration time.Duration) {
	if m == nil || m.storeOperationsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrBackend, backend),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.storeOperationsTotal.Add(ctx, 1, attrs)
	m.storeDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordPersonaAnalysis counts a full persona analysis.
func (m *Metrics) RecordPersonaAnalysis(ctx context.Context, status string) {
	if m == nil || m.personaAnalysesTotal == nil {
		return
	}
	m.personaAnalysesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}

// RecordDriftDetection counts one drift outcome, such as "noted" or "adopted".
func (m *Metrics) RecordDriftDetection(ctx context.Context, outcome string) {
	if m == nil || m.driftDetectionsTotal == nil {
		return
	}
	m.driftDetectionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOutcome, outcome)))
}
