// Package instrumentation wires OpenTelemetry metrics and tracing into the
// calpilot server.
//
// # Metrics
//
// Tool and transport:
//   - mcp_tool_invocations_total: tool invocations by tool and status
//   - mcp_tool_duration_seconds: tool execution time
//   - http_requests_total: HTTP requests by method, path and status
//   - http_request_duration_seconds: HTTP request time
//
// Calendar store:
//   - store_operations_total: store calls by backend, operation and status
//   - store_operation_duration_seconds: store call time
//
// Persona:
//   - persona_analyses_total: full analyses by status
//   - drift_detections_total: drift worker outcomes by action
//
// # Tracing
//
// Spans are created per tool invocation (tool.<name>) and per store call
// (store.<backend>.<operation>).
//
// # Configuration
//
// DefaultConfig holds the defaults below. The calpilot config file's
// telemetry section overrides them and ApplyEnv (or FromEnv) reads:
//   - INSTRUMENTATION_ENABLED (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default: 0.1)
//   - OTEL_SERVICE_NAME (default: calpilot)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_IDS
//
// A malformed value is reported instead of ignored.
//
// # Example
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordToolInvocation(ctx, "get_free_slots", instrumentation.StatusSuccess, time.Since(start))
package instrumentation
