package persona

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

// SchemaVersion is written to every persona the analyzer produces.
const SchemaVersion = "1.0"

// MaxNotes bounds the note list; the oldest notes are evicted first.
const MaxNotes = 50

// Style is the scheduling style inferred from event density and gaps.
type Style string

const (
	StyleConservative Style = "conservative"
	StyleModerate     Style = "moderate"
	StyleAggressive   Style = "aggressive"
)

// Valid reports whether s is a known style.
func (s Style) Valid() bool {
	switch s {
	case StyleConservative, StyleModerate, StyleAggressive:
		return true
	}
	return false
}

// ActiveHours holds HH:MM boundaries of the working day and lunch.
type ActiveHours struct {
	WorkStart  string `json:"workStart"`
	WorkEnd    string `json:"workEnd"`
	LunchStart string `json:"lunchStart"`
	LunchEnd   string `json:"lunchEnd"`
}

// RoutinePattern is a recurring activity with its typical time window.
type RoutinePattern struct {
	Keyword string `json:"keyword"`
	// DayOfWeek holds time.Weekday values; empty means every day.
	DayOfWeek    []int   `json:"dayOfWeek"`
	TypicalStart string  `json:"typicalStart"`
	TypicalEnd   string  `json:"typicalEnd"`
	Confidence   float64 `json:"confidence"`
}

// Matches reports whether title contains the routine keyword, ignoring case.
func (r RoutinePattern) Matches(title string) bool {
	if r.Keyword == "" {
		return false
	}
	return strings.Contains(strings.ToLower(title), strings.ToLower(r.Keyword))
}

// WeekdayProfile summarizes one weekday across the analysis window.
type WeekdayProfile struct {
	AvgEvents float64 `json:"avgEvents"`
	BusyHours []int   `json:"busyHours"`
	FreeHours []int   `json:"freeHours"`
}

// NoteType distinguishes drift observations from user-requested changes.
type NoteType string

const (
	NoteDrift    NoteType = "drift"
	NoteExplicit NoteType = "explicit"
)

// PersonaNote is an entry in the persona's change history.
type PersonaNote struct {
	CreatedAt      time.Time `json:"createdAt"`
	Type           NoteType  `json:"type"`
	Content        string    `json:"content"`
	RelatedRoutine string    `json:"relatedRoutine,omitempty"`
	Count          int       `json:"count"`
}

// UserPersona is the derived behavioral profile.
type UserPersona struct {
	Version               string                    `json:"version"`
	CreatedAt             time.Time                 `json:"createdAt"`
	UpdatedAt             time.Time                 `json:"updatedAt"`
	ActiveHours           ActiveHours               `json:"activeHours"`
	Routines              []RoutinePattern          `json:"routines"`
	WeekdayProfile        map[string]WeekdayProfile `json:"weekdayProfile"`
	SchedulingStyle       Style                     `json:"schedulingStyle"`
	PreferredMeetingTimes []string                  `json:"preferredMeetingTimes"`
	AvgDailyEvents        float64                   `json:"avgDailyEvents"`
	BufferPreference      int                       `json:"bufferPreference"`
	Notes                 []PersonaNote             `json:"notes"`
}

// Clone returns a deep copy.
func (p *UserPersona) Clone() *UserPersona {
	if p == nil {
		return nil
	}
	out := *p
	out.Routines = make([]RoutinePattern, len(p.Routines))
	for i, r := range p.Routines {
		r.DayOfWeek = slices.Clone(r.DayOfWeek)
		out.Routines[i] = r
	}
	if p.WeekdayProfile != nil {
		out.WeekdayProfile = make(map[string]WeekdayProfile, len(p.WeekdayProfile))
		for k, v := range p.WeekdayProfile {
			v.BusyHours = slices.Clone(v.BusyHours)
			v.FreeHours = slices.Clone(v.FreeHours)
			out.WeekdayProfile[k] = v
		}
	}
	out.PreferredMeetingTimes = slices.Clone(p.PreferredMeetingTimes)
	out.Notes = slices.Clone(p.Notes)
	return &out
}

// AddNote appends n and evicts the oldest notes beyond MaxNotes.
func (p *UserPersona) AddNote(n PersonaNote) {
	p.Notes = append(p.Notes, n)
	if over := len(p.Notes) - MaxNotes; over > 0 {
		p.Notes = slices.Delete(p.Notes, 0, over)
	}
}

// driftNote returns the index of the drift note for keyword, or -1.
func (p *UserPersona) driftNote(keyword string) int {
	return slices.IndexFunc(p.Notes, func(n PersonaNote) bool {
		return n.Type == NoteDrift && n.RelatedRoutine == keyword
	})
}

// Store persists the single persona record.
type Store interface {
	// GetPersona returns nil, nil when no persona exists yet.
	GetPersona(ctx context.Context) (*UserPersona, error)
	SetPersona(ctx context.Context, p *UserPersona) error
}

// NoDataError is returned when analysis finds no eligible events.
type NoDataError struct {
	Since time.Time
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no timed events since %s to analyze", e.Since.Format("2006-01-02"))
}

// WeekdayName returns the lowercase English name used as WeekdayProfile key.
func WeekdayName(d time.Weekday) string {
	return strings.ToLower(d.String())
}
