package scheduling

import (
	"math"
	"time"

	"github.com/teemow/calpilot/internal/persona"
	"github.com/teemow/calpilot/internal/timeutil"
)

// Score bounds and anchors for persona-aware scoring.
const (
	MinScore = 10
	MaxScore = 100

	offHoursScore   = 20
	lunchScore      = 30
	baselineScore   = 70
	preferredBonus  = 25
	routinePenalty  = 30
	routineMinConf  = 0.3
	defaultBufferLo = 10
	conservativeMin = 15
)

// StaticScore rates an hour of day without any persona.
func StaticScore(hour int) int {
	switch {
	case hour >= 10 && hour <= 11:
		return 100
	case hour >= 14 && hour <= 15:
		return 95
	case hour >= 9 && hour <= 12:
		return 80
	case hour >= 13 && hour <= 17:
		return 70
	default:
		return 50
	}
}

// CalculateTimeScore scores a candidate start with the persona when one is
// available and with StaticScore otherwise.
func CalculateTimeScore(t time.Time, p *persona.UserPersona) int {
	if p == nil {
		return StaticScore(t.Hour())
	}
	return PersonaScore(t, p)
}

func clockOr(s string, fallback int) int {
	m, err := timeutil.ClockMinutes(s)
	if err != nil {
		return fallback
	}
	return m
}

// scoringBuffer is the padding around lunch and routines, in minutes.
func scoringBuffer(p *persona.UserPersona) int {
	if p.SchedulingStyle == persona.StyleConservative {
		return max(conservativeMin, p.BufferPreference)
	}
	return defaultBufferLo
}

func routineApplies(r persona.RoutinePattern, day time.Weekday) bool {
	if len(r.DayOfWeek) == 0 {
		return true
	}
	for _, d := range r.DayOfWeek {
		if time.Weekday(d) == day {
			return true
		}
	}
	return false
}

// PersonaScore rates a candidate start against the user's working hours,
// lunch, preferred meeting hours, routines and scheduling style. The result
// is always within [MinScore, MaxScore].
func PersonaScore(t time.Time, p *persona.UserPersona) int {
	m := timeutil.MinuteOfDay(t)
	hour := t.Hour()

	workStart := clockOr(p.ActiveHours.WorkStart, 9*60)
	workEnd := clockOr(p.ActiveHours.WorkEnd, 18*60)
	if m < workStart || m >= workEnd {
		return offHoursScore
	}

	buf := scoringBuffer(p)
	lunchStart := clockOr(p.ActiveHours.LunchStart, 12*60+30)
	lunchEnd := clockOr(p.ActiveHours.LunchEnd, 13*60+30)
	if m >= lunchStart-buf && m < lunchEnd+buf {
		return lunchScore
	}

	score := baselineScore
	for _, pref := range p.PreferredMeetingTimes {
		if pm, err := timeutil.ClockMinutes(pref); err == nil && pm/60 == hour {
			score += preferredBonus
			break
		}
	}

	for _, r := range p.Routines {
		if r.Confidence < routineMinConf || !routineApplies(r, t.Weekday()) {
			continue
		}
		rs, errStart := timeutil.ClockMinutes(r.TypicalStart)
		re, errEnd := timeutil.ClockMinutes(r.TypicalEnd)
		if errStart != nil || errEnd != nil {
			continue
		}
		if m >= rs-buf && m < re+buf {
			score -= int(math.Round(routinePenalty * r.Confidence))
			break
		}
	}

	score += styleAdjustment(p.SchedulingStyle, hour, workStart/60, (workEnd-1)/60)

	return min(max(score, MinScore), MaxScore)
}

func styleAdjustment(style persona.Style, hour, firstHour, lastHour int) int {
	lateMorning := hour >= 10 && hour <= 11
	afternoon := hour >= 14 && hour <= 15

	adj := 0
	switch style {
	case persona.StyleConservative:
		if lateMorning {
			adj += 10
		}
		if afternoon {
			adj += 5
		}
		if hour == firstHour || hour == lastHour {
			adj -= 10
		}
	case persona.StyleAggressive:
		adj += 5
		if lateMorning {
			adj += 5
		}
	default:
		if lateMorning {
			adj += 5
		}
		if afternoon {
			adj += 3
		}
	}
	return adj
}
