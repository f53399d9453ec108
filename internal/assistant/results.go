package assistant

import (
	"errors"

	"github.com/teemow/calpilot/internal/calendar"
	"github.com/teemow/calpilot/internal/persona"
	"github.com/teemow/calpilot/internal/scheduling"
	"github.com/teemow/calpilot/internal/timeutil"
)

// EventResult reports a create or update.
type EventResult struct {
	Success     bool            `json:"success"`
	Error       string          `json:"error,omitempty"`
	Event       *calendar.Event `json:"event,omitempty"`
	ChangeSetID string          `json:"changeset_id,omitempty"`
}

// DeleteResult reports a deletion.
type DeleteResult struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	EventID     string `json:"event_id"`
	ChangeSetID string `json:"changeset_id,omitempty"`
}

// UndoResult reports an undo.
type UndoResult struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	ChangeSetID string `json:"changeset_id"`
}

// SuggestionResult lists ranked candidate times.
type SuggestionResult struct {
	Suggestions []scheduling.Suggestion `json:"suggestions"`
	// PersonaUsed is false when scoring fell back to default working hours.
	PersonaUsed bool `json:"persona_used"`
}

// AdjustmentResult reports an applied rearrangement.
type AdjustmentResult struct {
	Success      bool                  `json:"success"`
	Error        string                `json:"error,omitempty"`
	Proposals    []scheduling.Proposal `json:"proposals"`
	Created      *calendar.Event       `json:"created,omitempty"`
	Moved        []calendar.Event      `json:"moved"`
	ChangeSetIDs []string              `json:"changeset_ids"`
}

// PersonaResult carries a persona and its summary.
type PersonaResult struct {
	Success bool                 `json:"success"`
	Error   string               `json:"error,omitempty"`
	Persona *persona.UserPersona `json:"persona,omitempty"`
	Summary string               `json:"summary,omitempty"`
}

// DomainMessage returns the user-facing message for expected failures. The
// second result is false for errors that callers should treat as faults.
func DomainMessage(err error) (string, bool) {
	var (
		validation *calendar.ValidationError
		format     *timeutil.FormatError
		rng        *timeutil.RangeError
		noData     *persona.NoDataError
	)
	switch {
	case errors.As(err, &validation),
		errors.As(err, &format),
		errors.As(err, &rng),
		errors.As(err, &noData),
		errors.Is(err, calendar.ErrNotFound),
		errors.Is(err, persona.ErrNoPersona):
		return err.Error(), true
	}
	return "", false
}
