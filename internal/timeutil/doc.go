// Package timeutil parses and formats the local, zone-less timestamps that
// flow between the scheduling engine, the calendar stores and the MCP tools.
//
// The wire format is YYYY-MM-DDTHH:MM:SS with no offset. Values are always
// interpreted in the process-local zone (or an explicit *time.Location for
// the Google backend) and never converted across zones.
package timeutil
