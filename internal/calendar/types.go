package calendar

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/teemow/calpilot/internal/timeutil"
)

// Category is the closed set of event categories.
type Category string

const (
	CategoryDaxWeb  Category = "dax-web"
	CategoryDaxSL   Category = "dax-sl"
	CategoryEtc     Category = "etc"
	CategoryMeeting Category = "meeting"
	CategoryAI      Category = "ai"
	CategoryGeneral Category = "general"
)

// Categories lists every valid category in display order.
var Categories = []Category{CategoryDaxWeb, CategoryDaxSL, CategoryEtc, CategoryMeeting, CategoryAI, CategoryGeneral}

// Valid reports whether c is a member of the closed enum.
func (c Category) Valid() bool {
	return slices.Contains(Categories, c)
}

// ParseCategory validates s as a category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", &ValidationError{Field: "category", Message: fmt.Sprintf("unknown category %q", s)}
	}
	return c, nil
}

const (
	// DefaultPriority is assigned when an event has no explicit priority.
	DefaultPriority = 3
	MinPriority     = 1
	MaxPriority     = 5
)

// Event is a calendar entry. Start and End are local wall-clock times.
type Event struct {
	ID          string
	Title       string
	Start       time.Time
	End         time.Time
	Description string
	Location    string
	Category    Category
	Tags        []string
	IsMovable   bool
	Priority    int
	ColorID     string
	Attendees   []string
	Reminders   []int // minutes before start
	Recurrence  []string
}

// NewEvent returns an event with default category, priority and movability.
func NewEvent(title string, start, end time.Time) Event {
	return Event{
		Title:     title,
		Start:     start,
		End:       end,
		Category:  CategoryGeneral,
		IsMovable: true,
		Priority:  DefaultPriority,
	}
}

// Duration is End minus Start.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Normalize fills defaults, truncates times to whole seconds and turns
// Tags into a sorted set.
func (e Event) Normalize() Event {
	if e.Category == "" {
		e.Category = CategoryGeneral
	}
	if e.Priority == 0 {
		e.Priority = DefaultPriority
	}
	e.Start = e.Start.Truncate(time.Second)
	e.End = e.End.Truncate(time.Second)
	e.Tags = NormalizeTags(e.Tags)
	return e
}

// Validate checks the invariants every stored event must hold.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if e.Start.IsZero() || e.End.IsZero() {
		return &ValidationError{Field: "start", Message: "start and end are required"}
	}
	if !e.Start.Before(e.End) {
		return &ValidationError{Field: "end", Message: fmt.Sprintf("start %s must be before end %s",
			timeutil.FormatLocal(e.Start), timeutil.FormatLocal(e.End))}
	}
	if !e.Category.Valid() {
		return &ValidationError{Field: "category", Message: fmt.Sprintf("unknown category %q", e.Category)}
	}
	if e.Priority < MinPriority || e.Priority > MaxPriority {
		return &ValidationError{Field: "priority", Message: fmt.Sprintf("priority %d out of range [%d,%d]", e.Priority, MinPriority, MaxPriority)}
	}
	return nil
}

// Clone returns a deep copy so callers never share slices with a store.
func (e Event) Clone() Event {
	e.Tags = slices.Clone(e.Tags)
	e.Attendees = slices.Clone(e.Attendees)
	e.Reminders = slices.Clone(e.Reminders)
	e.Recurrence = slices.Clone(e.Recurrence)
	return e
}

// HasTag reports whether the event carries tag (case-insensitive).
func (e Event) HasTag(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	return slices.Contains(e.Tags, tag)
}

// NormalizeTags lowercases, trims, de-duplicates and sorts tags.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

type eventJSON struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Category    Category `json:"category"`
	Tags        []string `json:"tags"`
	IsMovable   bool     `json:"is_movable"`
	Priority    int      `json:"priority"`
	ColorID     string   `json:"colorId,omitempty"`
	Attendees   []string `json:"attendees,omitempty"`
	Reminders   []int    `json:"reminders,omitempty"`
	Recurrence  []string `json:"recurrence,omitempty"`
}

// MarshalJSON encodes Start and End in the zone-less wire format.
func (e Event) MarshalJSON() ([]byte, error) {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(eventJSON{
		ID:          e.ID,
		Title:       e.Title,
		Start:       timeutil.FormatLocal(e.Start),
		End:         timeutil.FormatLocal(e.End),
		Description: e.Description,
		Location:    e.Location,
		Category:    e.Category,
		Tags:        tags,
		IsMovable:   e.IsMovable,
		Priority:    e.Priority,
		ColorID:     e.ColorID,
		Attendees:   e.Attendees,
		Reminders:   e.Reminders,
		Recurrence:  e.Recurrence,
	})
}

// UnmarshalJSON decodes the wire format in the process-local zone.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	start, err := timeutil.ParseDate(raw.Start)
	if err != nil {
		return err
	}
	end, err := timeutil.ParseDate(raw.End)
	if err != nil {
		return err
	}
	*e = Event{
		ID:          raw.ID,
		Title:       raw.Title,
		Start:       start,
		End:         end,
		Description: raw.Description,
		Location:    raw.Location,
		Category:    raw.Category,
		Tags:        NormalizeTags(raw.Tags),
		IsMovable:   raw.IsMovable,
		Priority:    raw.Priority,
		ColorID:     raw.ColorID,
		Attendees:   raw.Attendees,
		Reminders:   raw.Reminders,
		Recurrence:  raw.Recurrence,
	}
	return nil
}

// TimeSlot is a computed interval; it is never persisted.
type TimeSlot struct {
	Start time.Time
	End   time.Time
}

// Duration is End minus Start.
func (s TimeSlot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// MarshalJSON encodes the slot in the wire format with its length in minutes.
func (s TimeSlot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start           string `json:"start"`
		End             string `json:"end"`
		DurationMinutes int    `json:"duration_minutes"`
	}{
		Start:           timeutil.FormatLocal(s.Start),
		End:             timeutil.FormatLocal(s.End),
		DurationMinutes: int(s.Duration() / time.Minute),
	})
}

// Filter narrows GetEvents results. Zero values match everything.
type Filter struct {
	Category Category
	// Tags matches events carrying at least one of the listed tags.
	Tags []string
}

// Matches reports whether e passes the filter.
func (f Filter) Matches(e Event) bool {
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if len(f.Tags) == 0 {
		return true
	}
	for _, t := range f.Tags {
		if e.HasTag(t) {
			return true
		}
	}
	return false
}

// MatchesQuery is the case-insensitive title/description match used by SearchEvents.
func MatchesQuery(e Event, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Title), q) ||
		strings.Contains(strings.ToLower(e.Description), q)
}

// SortByStart orders events by start time, keeping the input order for ties.
func SortByStart(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
}
