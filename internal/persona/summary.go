package persona

import (
	"fmt"
	"strings"
	"time"
)

var weekdayShort = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Summarize renders a human-readable multi-line description of p.
// eventCount is the number of events the analysis used; zero omits the line.
func Summarize(p *UserPersona, eventCount int) string {
	if p == nil {
		return "No persona has been analyzed yet."
	}

	var b strings.Builder
	b.WriteString("Scheduling persona\n")
	if eventCount > 0 {
		fmt.Fprintf(&b, "- Based on %d events from the last %d weeks\n", eventCount, LookbackWeeks)
	}
	fmt.Fprintf(&b, "- Working hours: %s-%s (lunch %s-%s)\n",
		p.ActiveHours.WorkStart, p.ActiveHours.WorkEnd, p.ActiveHours.LunchStart, p.ActiveHours.LunchEnd)
	fmt.Fprintf(&b, "- Style: %s, %.1f events per active day, typical buffer %d min\n",
		p.SchedulingStyle, p.AvgDailyEvents, p.BufferPreference)

	if len(p.PreferredMeetingTimes) > 0 {
		fmt.Fprintf(&b, "- Preferred meeting times: %s\n", strings.Join(p.PreferredMeetingTimes, ", "))
	}

	if len(p.Routines) > 0 {
		b.WriteString("- Routines:\n")
		for _, r := range p.Routines {
			fmt.Fprintf(&b, "  - %s %s-%s on %s (confidence %.0f%%)\n",
				r.Keyword, r.TypicalStart, r.TypicalEnd, formatDays(r.DayOfWeek), r.Confidence*100)
		}
	}

	var busy []string
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		prof, ok := p.WeekdayProfile[WeekdayName(wd)]
		if !ok || len(prof.BusyHours) == 0 {
			continue
		}
		busy = append(busy, fmt.Sprintf("%s %s", weekdayShort[wd], formatHours(prof.BusyHours)))
	}
	if len(busy) > 0 {
		fmt.Fprintf(&b, "- Usually busy: %s\n", strings.Join(busy, "; "))
	}

	if n := len(p.Notes); n > 0 {
		fmt.Fprintf(&b, "- %d note(s), latest: %s\n", n, p.Notes[n-1].Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDays(days []int) string {
	if len(days) == 0 {
		return "any day"
	}
	names := make([]string, 0, len(days))
	for _, d := range days {
		if d >= 0 && d < len(weekdayShort) {
			names = append(names, weekdayShort[d])
		}
	}
	return strings.Join(names, "/")
}

func formatHours(hours []int) string {
	parts := make([]string, len(hours))
	for i, h := range hours {
		parts[i] = fmt.Sprintf("%02d", h)
	}
	return strings.Join(parts, ",") + "h"
}
