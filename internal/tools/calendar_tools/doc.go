// Package calendar_tools exposes the scheduling assistant through MCP tools.
//
// Event tools read and change the calendar; every change returns a changeset
// id that undo_change reverses. Scheduling tools find conflicts, free slots
// and scored meeting times and propose or apply rearrangements. Persona tools
// analyze past events into a working profile and let the user adjust it.
//
// Tools that change the calendar or the persona are not registered when the
// server runs read-only.
package calendar_tools
