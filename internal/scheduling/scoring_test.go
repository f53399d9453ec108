package scheduling

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teemow/calpilot/internal/persona"
)

func TestStaticScore(t *testing.T) {
	tests := []struct {
		hour int
		want int
	}{
		{0, 50}, {8, 50}, {9, 80}, {10, 100}, {11, 100}, {12, 80},
		{13, 70}, {14, 95}, {15, 95}, {16, 70}, {17, 70}, {18, 50}, {23, 50},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StaticScore(tt.hour), "hour %d", tt.hour)
	}
}

func testPersona(style persona.Style) *persona.UserPersona {
	return &persona.UserPersona{
		Version: persona.SchemaVersion,
		ActiveHours: persona.ActiveHours{
			WorkStart:  "09:00",
			WorkEnd:    "18:00",
			LunchStart: "12:00",
			LunchEnd:   "13:00",
		},
		Routines: []persona.RoutinePattern{
			{Keyword: "gym", TypicalStart: "16:00", TypicalEnd: "17:00", Confidence: 0.5},
			{Keyword: "focus", TypicalStart: "15:00", TypicalEnd: "17:00", Confidence: 0.9},
		},
		SchedulingStyle:       style,
		PreferredMeetingTimes: []string{"10:00"},
		BufferPreference:      15,
	}
}

func TestPersonaScore(t *testing.T) {
	tests := []struct {
		name  string
		style persona.Style
		h, m  int
		want  int
	}{
		{"before work", persona.StyleModerate, 7, 0, 20},
		{"at work end", persona.StyleModerate, 18, 0, 20},
		{"lunch buffer before", persona.StyleModerate, 11, 50, 30},
		{"lunch buffer after", persona.StyleModerate, 13, 5, 30},
		{"just after lunch buffer", persona.StyleModerate, 13, 10, 70},
		{"preferred hour", persona.StyleModerate, 10, 0, 100},
		{"afternoon", persona.StyleModerate, 14, 0, 73},
		{"first matching routine only", persona.StyleModerate, 16, 30, 55},
		{"routine buffer", persona.StyleModerate, 15, 50, 58},
		{"conservative first hour", persona.StyleConservative, 9, 0, 60},
		{"conservative last hour", persona.StyleConservative, 17, 30, 60},
		{"conservative clamps high", persona.StyleConservative, 10, 0, 100},
		{"conservative wider lunch buffer", persona.StyleConservative, 11, 45, 30},
		{"aggressive flat", persona.StyleAggressive, 14, 0, 75},
		{"aggressive late morning", persona.StyleAggressive, 11, 0, 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PersonaScore(at(day, tt.h, tt.m), testPersona(tt.style)))
		})
	}
}

func TestPersonaScoreRoutineWeekday(t *testing.T) {
	p := testPersona(persona.StyleModerate)
	p.Routines = []persona.RoutinePattern{
		{Keyword: "gym", DayOfWeek: []int{2}, TypicalStart: "16:00", TypicalEnd: "17:00", Confidence: 0.5},
	}
	// day is a Monday; the routine only runs on Tuesdays.
	assert.Equal(t, 70, PersonaScore(at(day, 16, 30), p))
	assert.Equal(t, 55, PersonaScore(at(day.AddDate(0, 0, 1), 16, 30), p))
}

func TestPersonaScoreLowConfidenceRoutineIgnored(t *testing.T) {
	p := testPersona(persona.StyleModerate)
	p.Routines = []persona.RoutinePattern{
		{Keyword: "maybe", TypicalStart: "16:00", TypicalEnd: "17:00", Confidence: 0.29},
	}
	assert.Equal(t, 70, PersonaScore(at(day, 16, 30), p))
}

func TestCalculateTimeScoreBounds(t *testing.T) {
	extreme := testPersona(persona.StyleConservative)
	extreme.PreferredMeetingTimes = []string{"09:00", "10:00", "14:00", "17:00"}
	extreme.Routines = []persona.RoutinePattern{
		{Keyword: "all", TypicalStart: "09:00", TypicalEnd: "18:00", Confidence: 1},
	}
	broken := testPersona(persona.StyleModerate)
	broken.ActiveHours = persona.ActiveHours{WorkStart: "bad", WorkEnd: "", LunchStart: "x", LunchEnd: "y"}

	personas := []*persona.UserPersona{
		testPersona(persona.StyleConservative),
		testPersona(persona.StyleModerate),
		testPersona(persona.StyleAggressive),
		extreme,
		broken,
	}
	static := map[int]bool{50: true, 70: true, 80: true, 95: true, 100: true}

	for m := 0; m < 24*60; m += 5 {
		ts := at(day, m/60, m%60)
		assert.True(t, static[CalculateTimeScore(ts, nil)])
		for _, p := range personas {
			got := CalculateTimeScore(ts, p)
			assert.GreaterOrEqual(t, got, MinScore)
			assert.LessOrEqual(t, got, MaxScore)
		}
	}
}
