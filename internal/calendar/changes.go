package calendar

import (
	"fmt"
	"time"
)

// EventChanges is a partial update. Nil fields are left untouched.
type EventChanges struct {
	Title       *string
	Start       *time.Time
	End         *time.Time
	Description *string
	Location    *string
	Category    *Category
	Tags        *[]string
	IsMovable   *bool
	Priority    *int
	ColorID     *string
	Attendees   *[]string
	Reminders   *[]int
	Recurrence  *[]string
}

// IsEmpty reports whether the patch changes nothing.
func (c EventChanges) IsEmpty() bool {
	return c.Title == nil && c.Start == nil && c.End == nil && c.Description == nil &&
		c.Location == nil && c.Category == nil && c.Tags == nil && c.IsMovable == nil &&
		c.Priority == nil && c.ColorID == nil && c.Attendees == nil && c.Reminders == nil &&
		c.Recurrence == nil
}

// Validate checks each present field on its own. Cross-field checks such as
// start < end happen in Apply once the patch is merged.
func (c EventChanges) Validate() error {
	if c.Title != nil && *c.Title == "" {
		return &ValidationError{Field: "title", Message: "title cannot be empty"}
	}
	if c.Category != nil && !c.Category.Valid() {
		return &ValidationError{Field: "category", Message: fmt.Sprintf("unknown category %q", *c.Category)}
	}
	if c.Priority != nil && (*c.Priority < MinPriority || *c.Priority > MaxPriority) {
		return &ValidationError{Field: "priority", Message: fmt.Sprintf("priority %d out of range [%d,%d]", *c.Priority, MinPriority, MaxPriority)}
	}
	if c.Start != nil && c.End != nil && !c.Start.Before(*c.End) {
		return &ValidationError{Field: "end", Message: "start must be before end"}
	}
	return nil
}

// Apply merges the patch into e and validates the result. e is not modified.
func (c EventChanges) Apply(e Event) (Event, error) {
	if err := c.Validate(); err != nil {
		return Event{}, err
	}
	out := e.Clone()
	if c.Title != nil {
		out.Title = *c.Title
	}
	if c.Start != nil {
		out.Start = *c.Start
	}
	if c.End != nil {
		out.End = *c.End
	}
	if c.Description != nil {
		out.Description = *c.Description
	}
	if c.Location != nil {
		out.Location = *c.Location
	}
	if c.Category != nil {
		out.Category = *c.Category
	}
	if c.Tags != nil {
		out.Tags = append([]string(nil), (*c.Tags)...)
	}
	if c.IsMovable != nil {
		out.IsMovable = *c.IsMovable
	}
	if c.Priority != nil {
		out.Priority = *c.Priority
	}
	if c.ColorID != nil {
		out.ColorID = *c.ColorID
	}
	if c.Attendees != nil {
		out.Attendees = append([]string(nil), (*c.Attendees)...)
	}
	if c.Reminders != nil {
		out.Reminders = append([]int(nil), (*c.Reminders)...)
	}
	if c.Recurrence != nil {
		out.Recurrence = append([]string(nil), (*c.Recurrence)...)
	}
	out = out.Normalize()
	if err := out.Validate(); err != nil {
		return Event{}, err
	}
	return out, nil
}

// MoveTo returns a patch that shifts an event to start while keeping duration d.
func MoveTo(start time.Time, d time.Duration) EventChanges {
	end := start.Add(d)
	return EventChanges{Start: &start, End: &end}
}
