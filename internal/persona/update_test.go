package persona

import (
	"context"
	"errors"
	"testing"

	"github.com/teemow/calpilot/internal/testutil"
)

func strPtr(s string) *string { return &s }

func TestUpdate_NoPersona(t *testing.T) {
	store := &memoryStore{}
	style := StyleAggressive
	_, err := Update(context.Background(), store, testutil.FixedClock(), Changes{SchedulingStyle: &style}, "busy season")
	if !errors.Is(err, ErrNoPersona) {
		t.Fatalf("Update() error = %v, want ErrNoPersona", err)
	}
}

func TestUpdate_AppliesAndNotes(t *testing.T) {
	store := &memoryStore{persona: lunchPersona()}
	buffer := 30
	changes := Changes{
		ActiveHours:      &ActiveHoursChanges{WorkStart: strPtr("08:30")},
		BufferPreference: &buffer,
	}

	got, err := Update(context.Background(), store, testutil.FixedClock(), changes, "I start earlier now")
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.ActiveHours.WorkStart != "08:30" {
		t.Errorf("WorkStart = %q, want 08:30", got.ActiveHours.WorkStart)
	}
	if got.ActiveHours.WorkEnd != "18:00" {
		t.Errorf("WorkEnd = %q, want unchanged 18:00", got.ActiveHours.WorkEnd)
	}
	if got.BufferPreference != 30 {
		t.Errorf("BufferPreference = %d, want 30", got.BufferPreference)
	}
	if len(got.Notes) != 1 || got.Notes[0].Type != NoteExplicit || got.Notes[0].Content != "I start earlier now" {
		t.Errorf("Notes = %+v, want one explicit note with the reason", got.Notes)
	}
	if !got.UpdatedAt.Equal(testutil.FixedClock().Now()) {
		t.Errorf("UpdatedAt = %v, want clock time", got.UpdatedAt)
	}
	if store.current().ActiveHours.WorkStart != "08:30" {
		t.Error("update was not persisted")
	}
}

func TestUpdate_TrimsNotes(t *testing.T) {
	p := lunchPersona()
	for i := 0; i < MaxNotes; i++ {
		p.Notes = append(p.Notes, PersonaNote{Type: NoteDrift, Content: "old", Count: 1})
	}
	store := &memoryStore{persona: p}
	style := StyleModerate

	got, err := Update(context.Background(), store, testutil.FixedClock(), Changes{SchedulingStyle: &style}, "")
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(got.Notes) != MaxNotes {
		t.Fatalf("len(Notes) = %d, want %d", len(got.Notes), MaxNotes)
	}
	if last := got.Notes[MaxNotes-1]; last.Type != NoteExplicit || last.Content != "manual update" {
		t.Errorf("last note = %+v, want explicit 'manual update'", last)
	}
}

func TestChanges_Validate(t *testing.T) {
	badStyle := Style("chaotic")
	negative := -5
	tests := []struct {
		name    string
		changes Changes
		wantErr bool
	}{
		{"empty", Changes{}, false},
		{"valid clock", Changes{ActiveHours: &ActiveHoursChanges{LunchStart: strPtr("12:15")}}, false},
		{"bad clock", Changes{ActiveHours: &ActiveHoursChanges{WorkEnd: strPtr("25:00")}}, true},
		{"malformed clock", Changes{ActiveHours: &ActiveHoursChanges{WorkEnd: strPtr("six")}}, true},
		{"bad style", Changes{SchedulingStyle: &badStyle}, true},
		{"negative buffer", Changes{BufferPreference: &negative}, true},
		{"routine without keyword", Changes{Routines: &[]RoutinePattern{{TypicalStart: "09:00", TypicalEnd: "10:00"}}}, true},
		{"routine bad weekday", Changes{Routines: &[]RoutinePattern{{Keyword: "gym", TypicalStart: "18:00", TypicalEnd: "19:00", DayOfWeek: []int{7}}}}, true},
		{"routine ok", Changes{Routines: &[]RoutinePattern{{Keyword: "gym", TypicalStart: "18:00", TypicalEnd: "19:00", Confidence: 0.5}}}, false},
		{"meeting time", Changes{PreferredMeetingTimes: &[]string{"10:00", "bad"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.changes.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
