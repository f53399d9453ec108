package persona

import (
	"strings"
	"time"

	"github.com/teemow/calpilot/internal/calendar"
	"github.com/teemow/calpilot/internal/timeutil"
)

// LunchKeywords mark meal events. Matching is a case-insensitive substring test.
var LunchKeywords = []string{"lunch", "점심", "식사", "meal"}

// MeetingKeywords mark meetings and recurring syncs.
var MeetingKeywords = []string{"meeting", "standup", "sync", "1:1", "미팅", "회의", "scrum", "review"}

func containsAny(title string, keywords []string) bool {
	lower := strings.ToLower(title)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// IsLunch reports whether title looks like a meal.
func IsLunch(title string) bool { return containsAny(title, LunchKeywords) }

// IsMeeting reports whether title looks like a meeting.
func IsMeeting(title string) bool { return containsAny(title, MeetingKeywords) }

// IsAllDay reports whether ev is an all-day or multi-day entry: it starts
// and ends at midnight, or it runs past the end of its start day.
func IsAllDay(ev calendar.Event) bool {
	if timeutil.MinuteOfDay(ev.Start) == 0 && timeutil.MinuteOfDay(ev.End) == 0 {
		return true
	}
	if ev.Duration() >= 24*time.Hour {
		return true
	}
	lastInstant := ev.End.Add(-time.Second)
	return !timeutil.StartOfDay(lastInstant).Equal(timeutil.StartOfDay(ev.Start))
}
