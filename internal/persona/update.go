package persona

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/teemow/calpilot/internal/clock"
	"github.com/teemow/calpilot/internal/timeutil"
)

// ErrNoPersona is returned by operations that need an analyzed persona.
var ErrNoPersona = errors.New("no persona exists yet; run analyze_user_patterns first")

const maxBufferPreference = 240

// ActiveHoursChanges patches individual active-hour boundaries.
type ActiveHoursChanges struct {
	WorkStart  *string
	WorkEnd    *string
	LunchStart *string
	LunchEnd   *string
}

// Changes is an explicit, user-requested partial update.
type Changes struct {
	ActiveHours           *ActiveHoursChanges
	SchedulingStyle       *Style
	BufferPreference      *int
	Routines              *[]RoutinePattern
	PreferredMeetingTimes *[]string
}

// IsEmpty reports whether the patch changes nothing.
func (c Changes) IsEmpty() bool {
	return c.ActiveHours == nil && c.SchedulingStyle == nil && c.BufferPreference == nil &&
		c.Routines == nil && c.PreferredMeetingTimes == nil
}

func validClock(field string, v *string) error {
	if v == nil {
		return nil
	}
	if _, _, err := timeutil.ParseClock(*v); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

// Validate checks every present field.
func (c Changes) Validate() error {
	if ah := c.ActiveHours; ah != nil {
		for _, f := range []struct {
			name string
			v    *string
		}{
			{"workStart", ah.WorkStart}, {"workEnd", ah.WorkEnd},
			{"lunchStart", ah.LunchStart}, {"lunchEnd", ah.LunchEnd},
		} {
			if err := validClock(f.name, f.v); err != nil {
				return err
			}
		}
	}
	if c.SchedulingStyle != nil && !c.SchedulingStyle.Valid() {
		return fmt.Errorf("schedulingStyle: unknown style %q", *c.SchedulingStyle)
	}
	if c.BufferPreference != nil && (*c.BufferPreference < 0 || *c.BufferPreference > maxBufferPreference) {
		return fmt.Errorf("bufferPreference: %d out of range [0,%d]", *c.BufferPreference, maxBufferPreference)
	}
	if c.Routines != nil {
		for i, r := range *c.Routines {
			if strings.TrimSpace(r.Keyword) == "" {
				return fmt.Errorf("routines[%d]: keyword is required", i)
			}
			if err := validClock(fmt.Sprintf("routines[%d].typicalStart", i), &r.TypicalStart); err != nil {
				return err
			}
			if err := validClock(fmt.Sprintf("routines[%d].typicalEnd", i), &r.TypicalEnd); err != nil {
				return err
			}
			if r.Confidence < 0 || r.Confidence > 1 {
				return fmt.Errorf("routines[%d]: confidence %.2f out of range [0,1]", i, r.Confidence)
			}
			for _, d := range r.DayOfWeek {
				if d < 0 || d > 6 {
					return fmt.Errorf("routines[%d]: weekday %d out of range [0,6]", i, d)
				}
			}
		}
	}
	if c.PreferredMeetingTimes != nil {
		for i, t := range *c.PreferredMeetingTimes {
			if err := validClock(fmt.Sprintf("preferredMeetingTimes[%d]", i), &t); err != nil {
				return err
			}
		}
	}
	return nil
}

// Apply merges the patch into a copy of p.
func (c Changes) Apply(p *UserPersona) *UserPersona {
	out := p.Clone()
	if ah := c.ActiveHours; ah != nil {
		if ah.WorkStart != nil {
			out.ActiveHours.WorkStart = *ah.WorkStart
		}
		if ah.WorkEnd != nil {
			out.ActiveHours.WorkEnd = *ah.WorkEnd
		}
		if ah.LunchStart != nil {
			out.ActiveHours.LunchStart = *ah.LunchStart
		}
		if ah.LunchEnd != nil {
			out.ActiveHours.LunchEnd = *ah.LunchEnd
		}
	}
	if c.SchedulingStyle != nil {
		out.SchedulingStyle = *c.SchedulingStyle
	}
	if c.BufferPreference != nil {
		out.BufferPreference = *c.BufferPreference
	}
	if c.Routines != nil {
		out.Routines = append([]RoutinePattern(nil), (*c.Routines)...)
	}
	if c.PreferredMeetingTimes != nil {
		out.PreferredMeetingTimes = append([]string(nil), (*c.PreferredMeetingTimes)...)
	}
	return out
}

// Update applies an explicit patch to the stored persona and records reason
// as an explicit note. It fails with ErrNoPersona before the first analysis.
// store should be the Writer shared with the analyzer and drift tracker.
func Update(ctx context.Context, store Store, clk clock.Clock, changes Changes, reason string) (*UserPersona, error) {
	if err := changes.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "manual update"
	}

	return NewWriter(store).Modify(ctx, func(current *UserPersona) (*UserPersona, error) {
		if current == nil {
			return nil, ErrNoPersona
		}
		now := clk.Now()
		updated := changes.Apply(current)
		updated.UpdatedAt = now
		updated.AddNote(PersonaNote{
			CreatedAt: now,
			Type:      NoteExplicit,
			Content:   reason,
			Count:     1,
		})
		return updated, nil
	})
}
