// Package server provides the MCP server context, health probes, the
// Prometheus metrics server and the streamable HTTP transport for calpilot.
//
// # Key Components
//
// ServerContext carries the scheduling engine and the ambient
// instrumentation every tool handler needs, plus the read-only switch that
// decides whether mutating tools are registered.
//
// HTTPServer exposes the MCP endpoint at /mcp next to the Kubernetes style
// health probes and records one http_requests_total sample per request.
//
// MetricsServer serves the OpenTelemetry Prometheus exporter on a dedicated
// port so scraping stays off the MCP listener.
package server
