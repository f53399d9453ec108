// Package calendar defines the event model shared by the scheduling engine
// and its storage backends, and the Store interface both backends satisfy.
//
// Two Store implementations exist:
//
//   - the local SQLite store (package database), which records an undo log
//     row in the same transaction as every mutation and supports full undo
//   - GoogleStore, backed by the Google Calendar API, whose undo can only
//     reverse creations (by deleting the created event)
//
// Callers check Capabilities to tell them apart instead of type-asserting.
//
// Example usage:
//
//	ev, changeSetID, err := store.CreateEvent(ctx, calendar.NewEvent("Standup", start, end))
//	if err != nil {
//	    return err
//	}
//	// later
//	ok, err := store.Undo(ctx, changeSetID)
package calendar
