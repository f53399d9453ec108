// Package logging holds the slog setup and the attribute helpers calpilot
// components log with, so the same fact always lands under the same key.
//
// A mutation is logged with its undo handle:
//
//	logger.Info("event created",
//	    logging.EventID(ev.ID),
//	    logging.Title(ev.Title),
//	    logging.ChangeSet(changeSetID))
//
// Event titles are user text and are truncated. Google account names are
// hashed.
package logging
