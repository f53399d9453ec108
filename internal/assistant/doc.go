// Package assistant is the engine behind the MCP tools. An Engine owns the
// calendar store, the persona store, the scheduler and the drift worker, and
// exposes every tool-level operation as a method returning a JSON-ready
// result.
//
// Expected domain failures (validation, missing events, no persona) are
// reported inside results with Success false. Go errors are reserved for
// storage and transport failures.
//
// Mutations feed the drift worker and, when enabled, schedule a debounced
// re-analysis of the persona. A cron schedule can trigger the same
// re-analysis periodically. Close stops all background work.
package assistant
