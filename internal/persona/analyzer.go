package persona

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/teemow/calpilot/internal/calendar"
	"github.com/teemow/calpilot/internal/clock"
	"github.com/teemow/calpilot/internal/logging"
	"github.com/teemow/calpilot/internal/timeutil"
)

// Analysis constants.
const (
	LookbackWeeks = 10

	minRoutineOccurrences = 3
	minTitleOccurrences   = 4
	maxTitleSpreadMinutes = 90
	minDayShare           = 0.3
	defaultPerWeek        = 5
	maxRoutines           = 20

	profileFirstHour = 8
	profileLastHour  = 19
	busyShare        = 0.5
	freeShare        = 0.15

	maxBufferMinutes     = 120
	defaultBufferMinutes = 15
	minLunchSamples      = 3
	topMeetingHours      = 3
)

// Fallback lunch window when too few meal events exist.
const (
	DefaultLunchStart = "12:30"
	DefaultLunchEnd   = "13:30"
)

// EventSource is the read side of a calendar store.
type EventSource interface {
	GetEvents(ctx context.Context, start, end time.Time, filter calendar.Filter) ([]calendar.Event, error)
}

// Analyzer rebuilds the persona from recent history.
type Analyzer struct {
	events EventSource
	store  *Writer
	clock  clock.Clock
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer. A nil clock uses the real clock. Pass
// the Writer shared with the drift tracker as store.
func NewAnalyzer(events EventSource, store Store, clk clock.Clock, logger *slog.Logger) *Analyzer {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{events: events, store: NewWriter(store), clock: clk, logger: logging.WithOperation(logger, "persona.analyze")}
}

// Analyze derives a persona from the trailing ten weeks of timed events,
// persists it in place of any previous one and returns it with a summary.
//
// CreatedAt and the note history are carried over from the previous
// persona; every derived field is replaced.
func (a *Analyzer) Analyze(ctx context.Context) (*UserPersona, string, error) {
	now := a.clock.Now()
	since := now.AddDate(0, 0, -7*LookbackWeeks)

	all, err := a.events.GetEvents(ctx, since, now, calendar.Filter{})
	if err != nil {
		return nil, "", fmt.Errorf("loading history: %w", err)
	}

	var events []calendar.Event
	for _, ev := range all {
		if !IsAllDay(ev) {
			events = append(events, ev)
		}
	}
	if len(events) == 0 {
		return nil, "", &NoDataError{Since: since}
	}
	calendar.SortByStart(events)

	p := Build(events, since, now)

	// Notes are merged under the write lock so a drift note written while
	// the history was being read survives.
	if _, err := a.store.Modify(ctx, func(prev *UserPersona) (*UserPersona, error) {
		if prev != nil {
			p.CreatedAt = prev.CreatedAt
			p.Notes = slices.Clone(prev.Notes)
		}
		return p, nil
	}); err != nil {
		return nil, "", err
	}

	a.logger.Info("persona analyzed",
		slog.Int("events", len(events)),
		slog.Int("routines", len(p.Routines)),
		slog.String("style", string(p.SchedulingStyle)))
	return p, Summarize(p, len(events)), nil
}

// Build computes a persona from timed events in [since, now). It is pure;
// events must already exclude all-day entries.
func Build(events []calendar.Event, since, now time.Time) *UserPersona {
	p := &UserPersona{
		Version:   SchemaVersion,
		CreatedAt: now,
		UpdatedAt: now,
		Notes:     []PersonaNote{},
	}

	p.ActiveHours = activeHours(events)
	p.Routines = routines(events)
	p.WeekdayProfile = weekdayProfile(events, since, now)
	p.AvgDailyEvents = avgDailyEvents(events)
	p.BufferPreference = bufferPreference(events)
	p.SchedulingStyle = schedulingStyle(p.AvgDailyEvents, p.BufferPreference)
	p.PreferredMeetingTimes = preferredMeetingTimes(events)
	return p
}

func startMinutes(events []calendar.Event) []int {
	out := make([]int, len(events))
	for i, ev := range events {
		out[i] = timeutil.MinuteOfDay(ev.Start)
	}
	return out
}

func endMinutes(events []calendar.Event) []int {
	out := make([]int, len(events))
	for i, ev := range events {
		out[i] = timeutil.MinuteOfDay(ev.End)
	}
	return out
}

func activeHours(events []calendar.Event) ActiveHours {
	h := ActiveHours{
		WorkStart:  timeutil.FormatClock(Percentile(startMinutes(events), 0.1)),
		WorkEnd:    timeutil.FormatClock(Percentile(endMinutes(events), 0.9)),
		LunchStart: DefaultLunchStart,
		LunchEnd:   DefaultLunchEnd,
	}

	var lunches []calendar.Event
	for _, ev := range events {
		if IsLunch(ev.Title) {
			lunches = append(lunches, ev)
		}
	}
	if len(lunches) >= minLunchSamples {
		h.LunchStart = timeutil.FormatClock(MedianMinute(startMinutes(lunches)))
		h.LunchEnd = timeutil.FormatClock(MedianMinute(endMinutes(lunches)))
	}
	return h
}

type cluster struct {
	keyword string
	events  []calendar.Event
}

// clusters groups events per lunch/meeting keyword and per recurring exact
// title. Title clusters whose key is already a keyword cluster are skipped.
func clusters(events []calendar.Event) []cluster {
	var out []cluster
	seen := make(map[string]bool)

	for _, kw := range slices.Concat(LunchKeywords, MeetingKeywords) {
		var matched []calendar.Event
		for _, ev := range events {
			if strings.Contains(strings.ToLower(ev.Title), kw) {
				matched = append(matched, ev)
			}
		}
		if len(matched) > 0 {
			out = append(out, cluster{keyword: kw, events: matched})
			seen[kw] = true
		}
	}

	byTitle := make(map[string][]calendar.Event)
	var titles []string
	for _, ev := range events {
		title := strings.TrimSpace(ev.Title)
		if title == "" {
			continue
		}
		if _, ok := byTitle[title]; !ok {
			titles = append(titles, title)
		}
		byTitle[title] = append(byTitle[title], ev)
	}
	for _, title := range titles {
		group := byTitle[title]
		if len(group) < minTitleOccurrences || seen[strings.ToLower(title)] {
			continue
		}
		starts := startMinutes(group)
		if slices.Max(starts)-slices.Min(starts) > maxTitleSpreadMinutes {
			continue
		}
		out = append(out, cluster{keyword: title, events: group})
		seen[strings.ToLower(title)] = true
	}
	return out
}

func routines(events []calendar.Event) []RoutinePattern {
	var out []RoutinePattern
	for _, c := range clusters(events) {
		n := len(c.events)
		if n < minRoutineOccurrences {
			continue
		}

		var perDay [7]int
		for _, ev := range c.events {
			perDay[ev.Start.Weekday()]++
		}
		days := []int{}
		for d, count := range perDay {
			if float64(count)/float64(n) >= minDayShare {
				days = append(days, d)
			}
		}

		expected := defaultPerWeek
		if len(days) > 0 {
			expected = len(days)
		}
		confidence := math.Min(1, float64(n)/float64(LookbackWeeks*expected))

		out = append(out, RoutinePattern{
			Keyword:      c.keyword,
			DayOfWeek:    days,
			TypicalStart: timeutil.FormatClock(MedianMinute(startMinutes(c.events))),
			TypicalEnd:   timeutil.FormatClock(MedianMinute(endMinutes(c.events))),
			Confidence:   round2(confidence),
		})
	}

	slices.SortStableFunc(out, func(a, b RoutinePattern) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	if len(out) > maxRoutines {
		out = out[:maxRoutines]
	}
	return out
}

func weekdayProfile(events []calendar.Event, since, now time.Time) map[string]WeekdayProfile {
	// Calendar days of each weekday inside the window.
	var occurrences [7]int
	for d := timeutil.StartOfDay(since); d.Before(now); d = d.AddDate(0, 0, 1) {
		occurrences[d.Weekday()]++
	}

	var eventCount [7]int
	// hourDates[weekday][hour] holds the dates on which that hour was busy.
	var hourDates [7]map[int]map[string]bool
	for _, ev := range events {
		wd := ev.Start.Weekday()
		eventCount[wd]++
		if hourDates[wd] == nil {
			hourDates[wd] = make(map[int]map[string]bool)
		}
		date := timeutil.FormatDate(ev.Start)
		for h := profileFirstHour; h <= profileLastHour; h++ {
			slotStart := timeutil.At(ev.Start, h*60)
			if timeutil.Overlaps(ev.Start, ev.End, slotStart, slotStart.Add(time.Hour)) {
				if hourDates[wd][h] == nil {
					hourDates[wd][h] = make(map[string]bool)
				}
				hourDates[wd][h][date] = true
			}
		}
	}

	out := make(map[string]WeekdayProfile, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		occ := occurrences[wd]
		if occ == 0 {
			continue
		}
		prof := WeekdayProfile{
			AvgEvents: round2(float64(eventCount[wd]) / float64(occ)),
			BusyHours: []int{},
			FreeHours: []int{},
		}
		for h := profileFirstHour; h <= profileLastHour; h++ {
			share := float64(len(hourDates[wd][h])) / float64(occ)
			switch {
			case share >= busyShare:
				prof.BusyHours = append(prof.BusyHours, h)
			case share <= freeShare:
				prof.FreeHours = append(prof.FreeHours, h)
			}
		}
		out[WeekdayName(wd)] = prof
	}
	return out
}

func avgDailyEvents(events []calendar.Event) float64 {
	days := make(map[string]bool)
	for _, ev := range events {
		days[timeutil.FormatDate(ev.Start)] = true
	}
	if len(days) == 0 {
		return 0
	}
	return round2(float64(len(events)) / float64(len(days)))
}

// bufferPreference is the median gap between consecutive same-day events,
// clamped to [0, 120] minutes. events must be sorted by start.
func bufferPreference(events []calendar.Event) int {
	var gaps []int
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		if timeutil.FormatDate(prev.Start) != timeutil.FormatDate(cur.Start) {
			continue
		}
		gaps = append(gaps, int(cur.Start.Sub(prev.End)/time.Minute))
	}
	if len(gaps) == 0 {
		return defaultBufferMinutes
	}
	return clamp(MedianMinute(gaps), 0, maxBufferMinutes)
}

func schedulingStyle(avgDaily float64, buffer int) Style {
	switch {
	case avgDaily >= 6 && buffer <= 10:
		return StyleAggressive
	case avgDaily <= 3 || buffer >= 30:
		return StyleConservative
	default:
		return StyleModerate
	}
}

func preferredMeetingTimes(events []calendar.Event) []string {
	var counts [24]int
	for _, ev := range events {
		if IsMeeting(ev.Title) {
			counts[ev.Start.Hour()]++
		}
	}

	hours := make([]int, 0, 24)
	for h, c := range counts {
		if c > 0 {
			hours = append(hours, h)
		}
	}
	// Most frequent first, earlier hour on ties.
	slices.SortStableFunc(hours, func(a, b int) int {
		return cmp.Compare(counts[b], counts[a])
	})

	out := []string{}
	for _, h := range hours {
		if len(out) == topMeetingHours {
			break
		}
		out = append(out, timeutil.FormatClock(h*60))
	}
	return out
}
