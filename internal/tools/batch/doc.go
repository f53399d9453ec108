// Package batch runs one calendar mutation over several event ids and
// reports a per-event outcome, so a single missing id does not abort the
// rest of the call.
package batch
