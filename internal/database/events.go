package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/teemow/calpilot/internal/calendar"
	"github.com/teemow/calpilot/internal/logging"
	"github.com/teemow/calpilot/internal/timeutil"
)

const eventColumns = `id, title, start_at, end_at, description, location, category, tags,
	is_movable, priority, color_id, attendees, reminders, recurrence`

func scanEvent(scan func(dest ...any) error) (calendar.Event, error) {
	var (
		ev                                     calendar.Event
		start, end, category                   string
		tags, attendees, reminders, recurrence string
		movable                                int
	)
	err := scan(&ev.ID, &ev.Title, &start, &end, &ev.Description, &ev.Location, &category, &tags,
		&movable, &ev.Priority, &ev.ColorID, &attendees, &reminders, &recurrence)
	if err != nil {
		return calendar.Event{}, err
	}

	if ev.Start, err = timeutil.ParseDate(start); err != nil {
		return calendar.Event{}, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	if ev.End, err = timeutil.ParseDate(end); err != nil {
		return calendar.Event{}, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	ev.Category = calendar.Category(category)
	ev.IsMovable = movable != 0

	for _, f := range []struct {
		raw  string
		dest any
	}{
		{tags, &ev.Tags},
		{attendees, &ev.Attendees},
		{reminders, &ev.Reminders},
		{recurrence, &ev.Recurrence},
	} {
		if err := json.Unmarshal([]byte(f.raw), f.dest); err != nil {
			return calendar.Event{}, fmt.Errorf("event %s: decoding list column: %w", ev.ID, err)
		}
	}
	if len(ev.Tags) == 0 {
		ev.Tags = nil
	}
	if len(ev.Attendees) == 0 {
		ev.Attendees = nil
	}
	if len(ev.Reminders) == 0 {
		ev.Reminders = nil
	}
	if len(ev.Recurrence) == 0 {
		ev.Recurrence = nil
	}
	return ev, nil
}

func listJSON[T any](v []T) string {
	if len(v) == 0 {
		return "[]"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func queryEvents(ctx context.Context, q queryer, where string, args ...any) ([]calendar.Event, error) {
	query := "SELECT " + eventColumns + " FROM events"
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY start_at, rowid"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calendar.Event
	for rows.Next() {
		ev, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func getEvent(ctx context.Context, q queryer, id string) (*calendar.Event, error) {
	row := q.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id)
	ev, err := scanEvent(row.Scan)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

func insertEvent(ctx context.Context, q queryer, ev calendar.Event, now time.Time) error {
	stamp := now.Format(time.RFC3339Nano)
	_, err := q.ExecContext(ctx, `INSERT INTO events (`+eventColumns+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Title, timeutil.FormatLocal(ev.Start), timeutil.FormatLocal(ev.End),
		ev.Description, ev.Location, string(ev.Category), listJSON(ev.Tags),
		boolInt(ev.IsMovable), ev.Priority, ev.ColorID, listJSON(ev.Attendees),
		listJSON(ev.Reminders), listJSON(ev.Recurrence), stamp, stamp)
	return err
}

// overwriteEvent replaces every field except id.
func overwriteEvent(ctx context.Context, q queryer, ev calendar.Event, now time.Time) error {
	_, err := q.ExecContext(ctx, `UPDATE events SET
		title = ?, start_at = ?, end_at = ?, description = ?, location = ?, category = ?,
		tags = ?, is_movable = ?, priority = ?, color_id = ?, attendees = ?, reminders = ?,
		recurrence = ?, updated_at = ?
		WHERE id = ?`,
		ev.Title, timeutil.FormatLocal(ev.Start), timeutil.FormatLocal(ev.End),
		ev.Description, ev.Location, string(ev.Category), listJSON(ev.Tags),
		boolInt(ev.IsMovable), ev.Priority, ev.ColorID, listJSON(ev.Attendees),
		listJSON(ev.Reminders), listJSON(ev.Recurrence), now.Format(time.RFC3339Nano),
		ev.ID)
	return err
}

func deleteEvent(ctx context.Context, q queryer, id string) error {
	_, err := q.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	return err
}

// GetEvents returns events intersecting [start, end), ordered by start.
func (s *SQLiteStore) GetEvents(ctx context.Context, start, end time.Time, filter calendar.Filter) ([]calendar.Event, error) {
	events, err := queryEvents(ctx, s.db, "start_at < ? AND end_at > ?",
		timeutil.FormatLocal(end), timeutil.FormatLocal(start))
	if err != nil {
		return nil, calendar.NewStorageError("get events", err)
	}
	out := events[:0]
	for _, ev := range events {
		if filter.Matches(ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// SearchEvents matches title or description case-insensitively.
func (s *SQLiteStore) SearchEvents(ctx context.Context, query string, start, end *time.Time) ([]calendar.Event, error) {
	var (
		clauses []string
		args    []any
	)
	if start != nil {
		clauses = append(clauses, "end_at > ?")
		args = append(args, timeutil.FormatLocal(*start))
	}
	if end != nil {
		clauses = append(clauses, "start_at < ?")
		args = append(args, timeutil.FormatLocal(*end))
	}

	events, err := queryEvents(ctx, s.db, strings.Join(clauses, " AND "), args...)
	if err != nil {
		return nil, calendar.NewStorageError("search events", err)
	}
	out := events[:0]
	for _, ev := range events {
		if calendar.MatchesQuery(ev, query) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *SQLiteStore) GetEventByID(ctx context.Context, id string) (*calendar.Event, error) {
	ev, err := getEvent(ctx, s.db, id)
	if err != nil {
		return nil, calendar.NewStorageError("get event", err)
	}
	return ev, nil
}

func (s *SQLiteStore) GetAllEvents(ctx context.Context) ([]calendar.Event, error) {
	events, err := queryEvents(ctx, s.db, "")
	if err != nil {
		return nil, calendar.NewStorageError("get all events", err)
	}
	return events, nil
}

// CreateEvent inserts ev and its undo record atomically. An empty ID is assigned.
func (s *SQLiteStore) CreateEvent(ctx context.Context, ev calendar.Event) (calendar.Event, string, error) {
	ev = ev.Normalize()
	if err := ev.Validate(); err != nil {
		return calendar.Event{}, "", err
	}
	if ev.ID == "" {
		ev.ID = s.ids.New()
	}

	changeSetID := s.ids.New()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.clock.Now()
		if err := insertEvent(ctx, tx, ev, now); err != nil {
			return fmt.Errorf("inserting event: %w", err)
		}
		return s.insertUndoLog(ctx, tx, changeSetID, calendar.ChangeCreate,
			[]snapshot{{EventID: ev.ID, Title: ev.Title}}, now)
	})
	if err != nil {
		return calendar.Event{}, "", calendar.NewStorageError("create event", err)
	}

	s.logger.Debug("event created", logging.EventID(ev.ID), logging.ChangeSet(changeSetID))
	return ev, changeSetID, nil
}

// UpdateEvent applies changes and records the previous state atomically.
// A missing event yields a nil result and no changeset.
func (s *SQLiteStore) UpdateEvent(ctx context.Context, id string, changes calendar.EventChanges) (*calendar.Event, string, error) {
	if err := changes.Validate(); err != nil {
		return nil, "", err
	}

	var (
		updated     *calendar.Event
		changeSetID string
		invalid     error
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getEvent(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("loading event: %w", err)
		}
		if current == nil {
			return nil
		}

		merged, err := changes.Apply(*current)
		if err != nil {
			invalid = err
			return err
		}

		now := s.clock.Now()
		if err := overwriteEvent(ctx, tx, merged, now); err != nil {
			return fmt.Errorf("updating event: %w", err)
		}
		changeSetID = s.ids.New()
		if err := s.insertUndoLog(ctx, tx, changeSetID, calendar.ChangeUpdate,
			[]snapshot{{EventID: id, Title: merged.Title, Before: current}}, now); err != nil {
			return err
		}
		updated = &merged
		return nil
	})
	if invalid != nil {
		return nil, "", invalid
	}
	if err != nil {
		return nil, "", calendar.NewStorageError("update event", err)
	}
	if updated == nil {
		return nil, "", nil
	}

	s.logger.Debug("event updated", logging.EventID(id), logging.ChangeSet(changeSetID))
	return updated, changeSetID, nil
}

// DeleteEvent removes id and records it for undo atomically.
func (s *SQLiteStore) DeleteEvent(ctx context.Context, id string) (bool, string, error) {
	var changeSetID string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getEvent(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("loading event: %w", err)
		}
		if current == nil {
			return nil
		}

		if err := deleteEvent(ctx, tx, id); err != nil {
			return fmt.Errorf("deleting event: %w", err)
		}
		changeSetID = s.ids.New()
		return s.insertUndoLog(ctx, tx, changeSetID, calendar.ChangeDelete,
			[]snapshot{{EventID: id, Title: current.Title, Before: current}}, s.clock.Now())
	})
	if err != nil {
		return false, "", calendar.NewStorageError("delete event", err)
	}
	if changeSetID == "" {
		return false, "", nil
	}

	s.logger.Debug("event deleted", logging.EventID(id), logging.ChangeSet(changeSetID))
	return true, changeSetID, nil
}
