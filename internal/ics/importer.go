package ics

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/teemow/calpilot/internal/calendar"
	"github.com/teemow/calpilot/internal/logging"
)

// ImportTag marks events created by an import.
const ImportTag = "imported"

// Store is the part of calendar.Store the importer writes to.
type Store interface {
	GetEventByID(ctx context.Context, id string) (*calendar.Event, error)
	CreateEvent(ctx context.Context, ev calendar.Event) (calendar.Event, string, error)
}

// Result summarizes one import.
type Result struct {
	Entries      int      `json:"entries"`
	Occurrences  int      `json:"occurrences"`
	Created      int      `json:"created"`
	Existing     int      `json:"existing"`
	AllDay       int      `json:"all_day_skipped"`
	Invalid      int      `json:"invalid"`
	ChangeSetIDs []string `json:"changeset_ids"`
}

// Importer copies ICS occurrences into a store.
type Importer struct {
	store  Store
	loc    *time.Location
	logger *slog.Logger
}

// NewImporter creates an Importer. A nil location means local time.
func NewImporter(store Store, loc *time.Location, logger *slog.Logger) *Importer {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, loc: loc, logger: logging.WithOperation(logger, "ics.import")}
}

// Import creates one event per timed occurrence in [from, to). All-day
// occurrences are skipped. Occurrences that already exist are counted
// as Existing and left alone.
func (im *Importer) Import(ctx context.Context, r io.Reader, from, to time.Time) (Result, error) {
	var res Result
	if !from.Before(to) {
		return res, fmt.Errorf("import window is empty: %s to %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	entries, skipped, err := Parse(r, im.loc)
	if err != nil {
		return res, err
	}
	occurrences, bad := Expand(entries, from, to)
	skipped = append(skipped, bad...)
	for _, err := range skipped {
		im.logger.Warn("skipping calendar entry", logging.Err(err))
	}
	res.Entries = len(entries)
	res.Occurrences = len(occurrences)
	res.Invalid = len(skipped)
	res.ChangeSetIDs = []string{}

	for _, occ := range occurrences {
		if occ.Entry.AllDay {
			res.AllDay++
			continue
		}
		ev := toEvent(occ)

		existing, err := im.store.GetEventByID(ctx, ev.ID)
		if err != nil {
			return res, err
		}
		if existing != nil {
			res.Existing++
			continue
		}

		if err := ev.Normalize().Validate(); err != nil {
			im.logger.Warn("skipping occurrence", logging.EventID(ev.ID), logging.Err(err))
			res.Invalid++
			continue
		}
		_, changeSetID, err := im.store.CreateEvent(ctx, ev)
		if err != nil {
			return res, err
		}
		res.Created++
		res.ChangeSetIDs = append(res.ChangeSetIDs, changeSetID)
	}

	im.logger.Info("calendar imported",
		slog.Int("entries", res.Entries),
		slog.Int("created", res.Created),
		slog.Int("existing", res.Existing),
		slog.Int("all_day", res.AllDay))
	return res, nil
}

// OccurrenceID derives a stable event ID from a UID and instance start.
func OccurrenceID(uid string, start time.Time) string {
	sum := sha1.Sum([]byte(uid + "|" + start.UTC().Format(time.RFC3339)))
	return "ics-" + hex.EncodeToString(sum[:8])
}

func toEvent(occ Occurrence) calendar.Event {
	e := occ.Entry
	title := e.Summary
	if strings.TrimSpace(title) == "" {
		title = "(untitled)"
	}
	ev := calendar.NewEvent(title, occ.Start, occ.End)
	ev.ID = OccurrenceID(e.UID, occ.Instance)
	ev.Description = e.Description
	ev.Location = e.Location
	ev.Tags = []string{ImportTag}
	for _, c := range e.Categories {
		if cat, err := calendar.ParseCategory(c); err == nil {
			ev.Category = cat
			break
		}
	}
	return ev
}
