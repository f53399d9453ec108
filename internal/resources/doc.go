// Package resources provides MCP resources exposing calendar state.
// Resources are read-only documents that MCP clients can fetch as context
// without calling a tool: the working profile, recent changesets and the
// server's backend settings.
package resources
