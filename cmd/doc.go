// Package cmd implements the command-line interface for calpilot.
//
// This package provides the following commands:
//   - serve: Start the MCP server exposing the scheduling tools
//   - analyze: Rebuild the working profile from recent events
//   - import: Copy events from an ICS file into the local store
//   - undo: Revert a recorded changeset
//   - auth: Authorize a Google account for the google backend
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// Every command reads the YAML configuration named by --config, creating
// it with defaults on first use.
package cmd
