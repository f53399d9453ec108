package persona

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/teemow/calpilot/internal/calendar"
	"github.com/teemow/calpilot/internal/clock"
	"github.com/teemow/calpilot/internal/logging"
	"github.com/teemow/calpilot/internal/timeutil"
)

const (
	// DriftThresholdMinutes is the deviation below which an event matches its routine.
	DriftThresholdMinutes = 30
	// DriftAdoptionCount is the number of deviations after which new times are adopted.
	DriftAdoptionCount = 3
	// DefaultDriftQueueSize bounds pending drift checks.
	DefaultDriftQueueSize = 64

	driftConfidenceStep = 0.1
)

var (
	// ErrDriftQueueFull is returned by Submit when the pending queue is at capacity.
	ErrDriftQueueFull = errors.New("drift queue is full")
	// ErrDriftTrackerClosed is returned after Close.
	ErrDriftTrackerClosed = errors.New("drift tracker is closed")
)

// DriftAction is what a drift check did for one routine.
type DriftAction string

const (
	DriftWithinThreshold DriftAction = "within_threshold"
	DriftNoted           DriftAction = "noted"
	DriftIncremented     DriftAction = "incremented"
	DriftAdopted         DriftAction = "adopted"
)

// DriftOutcome reports the check against one matching routine.
type DriftOutcome struct {
	Routine    string      `json:"routine"`
	Action     DriftAction `json:"action"`
	Count      int         `json:"count,omitempty"`
	StartDelta int         `json:"start_delta_minutes"`
	EndDelta   int         `json:"end_delta_minutes"`
}

type driftRequest struct {
	ctx    context.Context
	event  calendar.Event
	result chan driftResult
}

type driftResult struct {
	outcomes []DriftOutcome
	err      error
}

// DriftTracker serializes drift detection on a single worker goroutine.
// Requests run one at a time in the order they were queued.
type DriftTracker struct {
	store    *Writer
	clock    clock.Clock
	logger   *slog.Logger
	observer func(DriftOutcome)

	queue     chan driftRequest
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// DriftOption configures a DriftTracker.
type DriftOption func(*DriftTracker)

// WithDriftClock sets the clock used for note timestamps.
func WithDriftClock(c clock.Clock) DriftOption {
	return func(d *DriftTracker) { d.clock = c }
}

// WithDriftLogger sets the logger.
func WithDriftLogger(l *slog.Logger) DriftOption {
	return func(d *DriftTracker) { d.logger = l }
}

// WithDriftObserver registers a callback invoked for every outcome.
func WithDriftObserver(fn func(DriftOutcome)) DriftOption {
	return func(d *DriftTracker) { d.observer = fn }
}

// NewDriftTracker starts the worker. queueSize <= 0 uses DefaultDriftQueueSize.
// Pass the Writer shared with the analyzer and explicit updates as store.
// Call Close to stop it.
func NewDriftTracker(store Store, queueSize int, opts ...DriftOption) *DriftTracker {
	if queueSize <= 0 {
		queueSize = DefaultDriftQueueSize
	}
	d := &DriftTracker{
		store:  NewWriter(store),
		clock:  clock.RealClock{},
		logger: slog.Default(),
		queue:  make(chan driftRequest, queueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.WithOperation(d.logger, "persona.drift")

	go d.run()
	return d
}

func (d *DriftTracker) run() {
	defer close(d.done)
	for {
		select {
		case <-d.quit:
			return
		case req := <-d.queue:
			outcomes, err := d.detect(req.ctx, req.event)
			if err != nil {
				d.logger.Warn("drift detection failed", logging.EventID(req.event.ID), logging.Err(err))
			}
			if req.result != nil {
				req.result <- driftResult{outcomes: outcomes, err: err}
			}
		}
	}
}

// Submit queues a drift check without waiting for it. It never blocks: a
// full queue yields ErrDriftQueueFull.
func (d *DriftTracker) Submit(ev calendar.Event) error {
	select {
	case <-d.quit:
		return ErrDriftTrackerClosed
	default:
	}
	select {
	case d.queue <- driftRequest{ctx: context.Background(), event: ev}:
		return nil
	default:
		return ErrDriftQueueFull
	}
}

// Detect queues a drift check behind any pending ones and waits for it.
func (d *DriftTracker) Detect(ctx context.Context, ev calendar.Event) ([]DriftOutcome, error) {
	req := driftRequest{ctx: ctx, event: ev, result: make(chan driftResult, 1)}
	select {
	case <-d.quit:
		return nil, ErrDriftTrackerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case d.queue <- req:
	}

	select {
	case res := <-req.result:
		return res.outcomes, res.err
	case <-d.done:
		return nil, ErrDriftTrackerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the worker after the in-flight check. Queued checks are dropped.
func (d *DriftTracker) Close() {
	d.closeOnce.Do(func() { close(d.quit) })
	<-d.done
}

// Pending returns the number of queued checks.
func (d *DriftTracker) Pending() int {
	return len(d.queue)
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// detect compares ev with every routine whose keyword its title contains.
// It only runs on the worker goroutine and holds the persona write lock
// for the whole read-modify-write.
func (d *DriftTracker) detect(ctx context.Context, ev calendar.Event) ([]DriftOutcome, error) {
	if ev.Title == "" || ev.Start.IsZero() || ev.End.IsZero() || IsAllDay(ev) {
		return nil, nil
	}

	var outcomes []DriftOutcome
	_, err := d.store.Modify(ctx, func(current *UserPersona) (*UserPersona, error) {
		if current == nil {
			return nil, nil
		}
		p, out, changed := d.compare(current, ev)
		outcomes = out
		if !changed {
			return nil, nil
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	if d.observer != nil {
		for _, o := range outcomes {
			d.observer(o)
		}
	}
	return outcomes, nil
}

// compare applies ev to a copy of current and reports whether any routine
// drifted.
func (d *DriftTracker) compare(current *UserPersona, ev calendar.Event) (*UserPersona, []DriftOutcome, bool) {
	p := current.Clone()
	now := d.clock.Now()

	actualStart := timeutil.MinuteOfDay(ev.Start)
	actualEnd := timeutil.MinuteOfDay(ev.End)

	var (
		outcomes []DriftOutcome
		changed  bool
	)
	for i := range p.Routines {
		routine := &p.Routines[i]
		if !routine.Matches(ev.Title) {
			continue
		}
		typicalStart, err := timeutil.ClockMinutes(routine.TypicalStart)
		if err != nil {
			continue
		}
		typicalEnd, err := timeutil.ClockMinutes(routine.TypicalEnd)
		if err != nil {
			continue
		}

		out := DriftOutcome{
			Routine:    routine.Keyword,
			StartDelta: actualStart - typicalStart,
			EndDelta:   actualEnd - typicalEnd,
		}
		if absDiff(actualStart, typicalStart) < DriftThresholdMinutes && absDiff(actualEnd, typicalEnd) < DriftThresholdMinutes {
			out.Action = DriftWithinThreshold
			outcomes = append(outcomes, out)
			continue
		}

		changed = true
		observed := fmt.Sprintf("%s-%s", timeutil.FormatClock(actualStart), timeutil.FormatClock(actualEnd))
		content := fmt.Sprintf("%q observed at %s instead of %s-%s",
			routine.Keyword, observed, routine.TypicalStart, routine.TypicalEnd)

		idx := p.driftNote(routine.Keyword)
		if idx < 0 {
			p.AddNote(PersonaNote{
				CreatedAt:      now,
				Type:           NoteDrift,
				Content:        content,
				RelatedRoutine: routine.Keyword,
				Count:          1,
			})
			out.Action, out.Count = DriftNoted, 1
			outcomes = append(outcomes, out)
			continue
		}

		note := &p.Notes[idx]
		note.Count++
		note.Content = content
		note.CreatedAt = now
		out.Count = note.Count

		if note.Count < DriftAdoptionCount {
			out.Action = DriftIncremented
			outcomes = append(outcomes, out)
			continue
		}

		routine.TypicalStart = timeutil.FormatClock(actualStart)
		routine.TypicalEnd = timeutil.FormatClock(actualEnd)
		routine.Confidence = math.Min(1, round2(routine.Confidence+driftConfidenceStep))
		p.Notes = append(p.Notes[:idx], p.Notes[idx+1:]...)
		// Lunch routines also define the persona's lunch window.
		if IsLunch(routine.Keyword) {
			p.ActiveHours.LunchStart = routine.TypicalStart
			p.ActiveHours.LunchEnd = routine.TypicalEnd
		}
		out.Action = DriftAdopted
		outcomes = append(outcomes, out)
		d.logger.Info("routine drift adopted",
			logging.Routine(routine.Keyword),
			slog.String("typical", observed))
	}

	if changed {
		p.UpdatedAt = now
	}
	return p, outcomes, changed
}
