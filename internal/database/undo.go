package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/teemow/calpilot/internal/calendar"
	"github.com/teemow/calpilot/internal/logging"
)

// snapshot is the pre-mutation state of one event. A nil Before means the
// event did not exist, so undo deletes it.
type snapshot struct {
	EventID string          `json:"event_id"`
	Title   string          `json:"title,omitempty"`
	Before  *calendar.Event `json:"before"`
}

func (s *SQLiteStore) insertUndoLog(ctx context.Context, q queryer, changeSetID string, kind calendar.ChangeKind, snaps []snapshot, now time.Time) error {
	data, err := json.Marshal(snaps)
	if err != nil {
		return fmt.Errorf("encoding snapshots: %w", err)
	}
	_, err = q.ExecContext(ctx, `INSERT INTO undo_logs (undo_id, changeset_id, kind, snapshots, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.ids.New(), changeSetID, string(kind), string(data), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("writing undo log: %w", err)
	}
	return nil
}

type undoLog struct {
	undoID    string
	snapshots []snapshot
}

// Undo reverses every snapshot recorded under changeSetID in one
// transaction, then marks the logs consumed. It returns false when no
// unconsumed log matches, so undoing the same changeset twice is a no-op.
func (s *SQLiteStore) Undo(ctx context.Context, changeSetID string) (bool, error) {
	var applied bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		logs, err := pendingLogs(ctx, tx, changeSetID)
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			return nil
		}

		now := s.clock.Now()
		// Newest first so multi-step changesets unwind in reverse.
		for _, log := range slices.Backward(logs) {
			for _, snap := range slices.Backward(log.snapshots) {
				if err := restoreSnapshot(ctx, tx, snap, now); err != nil {
					return fmt.Errorf("restoring %s: %w", snap.EventID, err)
				}
			}
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE undo_logs SET undone_at = ? WHERE changeset_id = ? AND undone_at IS NULL",
			now.Format(time.RFC3339Nano), changeSetID); err != nil {
			return fmt.Errorf("marking changeset undone: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, calendar.NewStorageError("undo", err)
	}

	if applied {
		s.logger.Info("changeset undone", logging.ChangeSet(changeSetID))
	}
	return applied, nil
}

func pendingLogs(ctx context.Context, q queryer, changeSetID string) ([]undoLog, error) {
	rows, err := q.QueryContext(ctx, `SELECT undo_id, snapshots FROM undo_logs
		WHERE changeset_id = ? AND undone_at IS NULL
		ORDER BY created_at, rowid`, changeSetID)
	if err != nil {
		return nil, fmt.Errorf("loading undo logs: %w", err)
	}
	defer rows.Close()

	var logs []undoLog
	for rows.Next() {
		var (
			l   undoLog
			raw string
		)
		if err := rows.Scan(&l.undoID, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &l.snapshots); err != nil {
			return nil, fmt.Errorf("decoding undo log %s: %w", l.undoID, err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func restoreSnapshot(ctx context.Context, q queryer, snap snapshot, now time.Time) error {
	current, err := getEvent(ctx, q, snap.EventID)
	if err != nil {
		return err
	}

	switch {
	case snap.Before == nil:
		if current == nil {
			return nil
		}
		return deleteEvent(ctx, q, snap.EventID)
	case current == nil:
		return insertEvent(ctx, q, *snap.Before, now)
	default:
		return overwriteEvent(ctx, q, *snap.Before, now)
	}
}

// ListChanges returns the most recent changesets, newest first.
func (s *SQLiteStore) ListChanges(ctx context.Context, limit int) ([]calendar.ChangeSet, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT changeset_id, kind, snapshots, created_at, undone_at
		FROM undo_logs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, calendar.NewStorageError("list changes", err)
	}
	defer rows.Close()

	var out []calendar.ChangeSet
	for rows.Next() {
		var (
			cs        calendar.ChangeSet
			kind, raw string
			created   string
			undone    sql.NullString
			snaps     []snapshot
		)
		if err := rows.Scan(&cs.ID, &kind, &raw, &created, &undone); err != nil {
			return nil, calendar.NewStorageError("list changes", err)
		}
		if err := json.Unmarshal([]byte(raw), &snaps); err != nil {
			return nil, calendar.NewStorageError("list changes", err)
		}
		cs.Kind = calendar.ChangeKind(kind)
		cs.Undone = undone.Valid
		cs.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		for _, snap := range snaps {
			cs.EventIDs = append(cs.EventIDs, snap.EventID)
			cs.Titles = append(cs.Titles, snap.Title)
		}
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, calendar.NewStorageError("list changes", err)
	}
	return out, nil
}
