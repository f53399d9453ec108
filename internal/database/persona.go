package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/teemow/calpilot/internal/calendar"
	"github.com/teemow/calpilot/internal/persona"
)

// GetPersona returns the stored persona, or nil when none has been analyzed yet.
func (s *SQLiteStore) GetPersona(ctx context.Context) (*persona.UserPersona, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM persona WHERE id = 1").Scan(&raw)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, calendar.NewStorageError("get persona", err)
	}

	var p persona.UserPersona
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, calendar.NewStorageError("get persona", fmt.Errorf("decoding persona: %w", err))
	}
	return &p, nil
}

// SetPersona replaces the stored persona.
func (s *SQLiteStore) SetPersona(ctx context.Context, p *persona.UserPersona) error {
	if p == nil {
		return fmt.Errorf("persona cannot be nil")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding persona: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO persona (id, data, updated_at) VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
			string(data), s.clock.Now().Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return calendar.NewStorageError("set persona", err)
	}
	return nil
}
