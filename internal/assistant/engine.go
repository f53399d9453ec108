package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/teemow/calpilot/internal/calendar"
	"github.com/teemow/calpilot/internal/clock"
	"github.com/teemow/calpilot/internal/instrumentation"
	"github.com/teemow/calpilot/internal/logging"
	"github.com/teemow/calpilot/internal/persona"
	"github.com/teemow/calpilot/internal/scheduling"
)

// DefaultChangeLimit is the number of changesets ListChanges returns by default.
const DefaultChangeLimit = 20

// Options configures an Engine. The zero value is usable.
type Options struct {
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *instrumentation.Metrics

	// DriftQueueSize bounds pending drift checks.
	DriftQueueSize int
	// ReanalyzeAfterMutations schedules a persona analysis after every
	// successful mutation. At most one run is pending at a time.
	ReanalyzeAfterMutations bool
	// AnalysisSchedule is a five-field cron spec for periodic analysis.
	// Empty disables it.
	AnalysisSchedule string
	// Location is the time zone of AnalysisSchedule. Nil means local time.
	Location *time.Location
}

// Engine is the calendar assistant. It is safe for concurrent use.
type Engine struct {
	store     *observedStore
	personas  persona.Store
	scheduler *scheduling.Scheduler
	analyzer  *persona.Analyzer
	drift     *persona.DriftTracker
	clock     clock.Clock
	metrics   *instrumentation.Metrics
	logger    *slog.Logger

	reanalyzeAfterMutations bool
	reanalyze               chan struct{}
	quit                    chan struct{}
	wg                      sync.WaitGroup
	cron                    *cron.Cron
	closeOnce               sync.Once
}

// New creates an Engine and starts its background workers. The caller
// keeps ownership of both stores; Close does not close them.
func New(store calendar.Store, personas persona.Store, opts Options) (*Engine, error) {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = &instrumentation.Metrics{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	observed := newObservedStore(store, opts.Metrics)
	// One writer serializes the analyzer, drift worker and explicit updates.
	personaWriter := persona.NewWriter(personas)
	e := &Engine{
		store:                   observed,
		personas:                personaWriter,
		scheduler:               scheduling.New(observed, opts.Logger),
		analyzer:                persona.NewAnalyzer(observed, personaWriter, opts.Clock, opts.Logger),
		clock:                   opts.Clock,
		metrics:                 opts.Metrics,
		logger:                  logging.WithBackend(opts.Logger, observed.backend),
		reanalyzeAfterMutations: opts.ReanalyzeAfterMutations,
		reanalyze:               make(chan struct{}, 1),
		quit:                    make(chan struct{}),
	}

	if spec := strings.TrimSpace(opts.AnalysisSchedule); spec != "" {
		e.cron = cron.New(cron.WithLocation(opts.Location))
		if _, err := e.cron.AddFunc(spec, e.requestReanalysis); err != nil {
			return nil, fmt.Errorf("invalid analysis schedule %q: %w", spec, err)
		}
	}

	metrics := opts.Metrics
	e.drift = persona.NewDriftTracker(personaWriter, opts.DriftQueueSize,
		persona.WithDriftClock(opts.Clock),
		persona.WithDriftLogger(opts.Logger),
		persona.WithDriftObserver(func(o persona.DriftOutcome) {
			metrics.RecordDriftDetection(context.Background(), string(o.Action))
		}),
	)

	e.wg.Add(1)
	go e.runReanalysis()
	if e.cron != nil {
		e.cron.Start()
	}
	return e, nil
}

// Close stops the cron schedule, the re-analysis worker and the drift
// worker. An analysis already running is allowed to finish.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		if e.cron != nil {
			<-e.cron.Stop().Done()
		}
		close(e.quit)
		e.wg.Wait()
		e.drift.Close()
	})
}

// Capabilities describes the calendar backend.
func (e *Engine) Capabilities() calendar.Capabilities {
	return e.store.Capabilities()
}

func (e *Engine) requestReanalysis() {
	select {
	case e.reanalyze <- struct{}{}:
	default:
	}
}

func (e *Engine) runReanalysis() {
	defer e.wg.Done()
	for {
		select {
		case <-e.quit:
			return
		case <-e.reanalyze:
			if _, _, err := e.analyze(context.Background()); err != nil {
				var noData *persona.NoDataError
				if errors.As(err, &noData) {
					e.logger.Debug("background analysis skipped", logging.Err(err))
				} else {
					e.logger.Warn("background analysis failed", logging.Err(err))
				}
			}
		}
	}
}

func (e *Engine) analyze(ctx context.Context) (*persona.UserPersona, string, error) {
	p, summary, err := e.analyzer.Analyze(ctx)
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	e.metrics.RecordPersonaAnalysis(ctx, status)
	return p, summary, err
}

// afterMutation queues drift detection for ev and, when enabled, a
// re-analysis. Neither can fail the mutation.
func (e *Engine) afterMutation(ev *calendar.Event) {
	if ev != nil {
		if err := e.drift.Submit(*ev); err != nil {
			e.logger.Warn("drift check not queued", logging.EventID(ev.ID), logging.Err(err))
		}
	}
	if e.reanalyzeAfterMutations {
		e.requestReanalysis()
	}
}

// GetEvents lists events intersecting [start, end).
func (e *Engine) GetEvents(ctx context.Context, start, end time.Time, filter calendar.Filter) ([]calendar.Event, error) {
	return e.store.GetEvents(ctx, start, end, filter)
}

// SearchEvents matches title or description within optional bounds.
func (e *Engine) SearchEvents(ctx context.Context, query string, start, end *time.Time) ([]calendar.Event, error) {
	return e.store.SearchEvents(ctx, query, start, end)
}

// GetEvent returns nil when id does not exist.
func (e *Engine) GetEvent(ctx context.Context, id string) (*calendar.Event, error) {
	return e.store.GetEventByID(ctx, id)
}

// CreateEvent validates and stores ev.
func (e *Engine) CreateEvent(ctx context.Context, ev calendar.Event) (EventResult, error) {
	ev = ev.Normalize()
	if err := ev.Validate(); err != nil {
		return EventResult{Error: err.Error()}, nil
	}

	created, changeSetID, err := e.store.CreateEvent(ctx, ev)
	if err != nil {
		if msg, ok := DomainMessage(err); ok {
			return EventResult{Error: msg}, nil
		}
		return EventResult{}, err
	}

	e.logger.Info("event created", logging.EventID(created.ID), logging.Title(created.Title), logging.ChangeSet(changeSetID))
	e.afterMutation(&created)
	return EventResult{Success: true, Event: &created, ChangeSetID: changeSetID}, nil
}

// UpdateEvent applies a partial patch.
func (e *Engine) UpdateEvent(ctx context.Context, id string, changes calendar.EventChanges) (EventResult, error) {
	if changes.IsEmpty() {
		return EventResult{Error: "no changes given"}, nil
	}
	if err := changes.Validate(); err != nil {
		return EventResult{Error: err.Error()}, nil
	}

	updated, changeSetID, err := e.store.UpdateEvent(ctx, id, changes)
	if err != nil {
		if msg, ok := DomainMessage(err); ok {
			return EventResult{Error: msg}, nil
		}
		return EventResult{}, err
	}
	if updated == nil {
		return EventResult{Error: "event not found: " + id}, nil
	}

	e.logger.Info("event updated", logging.EventID(id), logging.ChangeSet(changeSetID))
	e.afterMutation(updated)
	return EventResult{Success: true, Event: updated, ChangeSetID: changeSetID}, nil
}

// DeleteEvent removes an event.
func (e *Engine) DeleteEvent(ctx context.Context, id string) (DeleteResult, error) {
	deleted, changeSetID, err := e.store.DeleteEvent(ctx, id)
	if err != nil {
		return DeleteResult{EventID: id}, err
	}
	if !deleted {
		return DeleteResult{EventID: id, Error: "event not found: " + id}, nil
	}

	e.logger.Info("event deleted", logging.EventID(id), logging.ChangeSet(changeSetID))
	e.afterMutation(nil)
	return DeleteResult{Success: true, EventID: id, ChangeSetID: changeSetID}, nil
}

// Undo reverses a changeset. A changeset can be undone once.
func (e *Engine) Undo(ctx context.Context, changeSetID string) (UndoResult, error) {
	res := UndoResult{ChangeSetID: changeSetID}
	if strings.TrimSpace(changeSetID) == "" {
		res.Error = "changeset id is required"
		return res, nil
	}

	ok, err := e.store.Undo(ctx, changeSetID)
	if err != nil {
		return res, err
	}
	if !ok {
		res.Error = "no pending changeset " + changeSetID
		if !e.store.Capabilities().FullUndo {
			res.Error += "; the " + e.store.Capabilities().Backend + " backend can only undo event creations"
		}
		return res, nil
	}

	e.logger.Info("changeset undone", logging.ChangeSet(changeSetID))
	if e.reanalyzeAfterMutations {
		e.requestReanalysis()
	}
	res.Success = true
	return res, nil
}

// ListChanges returns recent changesets, newest first.
func (e *Engine) ListChanges(ctx context.Context, limit int) ([]calendar.ChangeSet, error) {
	if limit <= 0 {
		limit = DefaultChangeLimit
	}
	return e.store.ListChanges(ctx, limit)
}

// CheckConflicts lists events strictly overlapping [start, end).
func (e *Engine) CheckConflicts(ctx context.Context, start, end time.Time) ([]calendar.Event, error) {
	return e.scheduler.CheckConflicts(ctx, start, end)
}

// FindRelatedEvents matches titles containing keyword.
func (e *Engine) FindRelatedEvents(ctx context.Context, keyword string, limit int) ([]calendar.Event, error) {
	return e.scheduler.FindRelatedEvents(ctx, keyword, limit)
}

// GetEventContext lists the events around one event.
func (e *Engine) GetEventContext(ctx context.Context, eventID string, hoursBefore, hoursAfter int) (scheduling.EventContext, error) {
	return e.scheduler.GetEventContext(ctx, eventID, hoursBefore, hoursAfter)
}

// GetFreeSlots finds gaps on date within an HH:MM window.
func (e *Engine) GetFreeSlots(ctx context.Context, date time.Time, durationMinutes int, startHHMM, endHHMM string) ([]calendar.TimeSlot, error) {
	return e.scheduler.GetFreeSlots(ctx, date, durationMinutes, startHHMM, endHHMM)
}

// SuggestOptimalTimes ranks candidate times, scoring against the persona
// when one exists.
func (e *Engine) SuggestOptimalTimes(ctx context.Context, durationMinutes int, dates []time.Time, c scheduling.Constraints) (SuggestionResult, error) {
	p, err := e.personas.GetPersona(ctx)
	if err != nil {
		return SuggestionResult{}, err
	}
	suggestions, err := e.scheduler.SuggestOptimalTimes(ctx, durationMinutes, dates, c, p)
	if err != nil {
		return SuggestionResult{}, err
	}
	return SuggestionResult{Suggestions: suggestions, PersonaUsed: p != nil}, nil
}

// ProposeScheduleAdjustment plans room for newEvent without changing anything.
func (e *Engine) ProposeScheduleAdjustment(ctx context.Context, newEvent calendar.Event, strategy scheduling.Strategy, bufferMinutes int) ([]scheduling.Proposal, error) {
	return e.scheduler.ProposeScheduleAdjustment(ctx, newEvent.Normalize(), strategy, bufferMinutes)
}

// ApplyScheduleAdjustment recomputes the proposal for newEvent and carries
// it out: every move first, then the creation. Each step is its own
// changeset. Nothing is applied when any conflict cannot be moved.
func (e *Engine) ApplyScheduleAdjustment(ctx context.Context, newEvent calendar.Event, strategy scheduling.Strategy, bufferMinutes int) (AdjustmentResult, error) {
	res := AdjustmentResult{Proposals: []scheduling.Proposal{}, Moved: []calendar.Event{}, ChangeSetIDs: []string{}}

	newEvent = newEvent.Normalize()
	if err := newEvent.Validate(); err != nil {
		res.Error = err.Error()
		return res, nil
	}
	proposals, err := e.scheduler.ProposeScheduleAdjustment(ctx, newEvent, strategy, bufferMinutes)
	if err != nil {
		if msg, ok := DomainMessage(err); ok {
			res.Error = msg
			return res, nil
		}
		return res, err
	}
	res.Proposals = proposals

	var blocked []string
	for _, p := range proposals {
		if p.Action == scheduling.ActionConflict {
			blocked = append(blocked, p.Title)
		}
	}
	if len(blocked) > 0 {
		res.Error = fmt.Sprintf("cannot apply: %d conflicting event(s) cannot be moved: %s", len(blocked), strings.Join(blocked, ", "))
		return res, nil
	}

	fail := func(step string, err error) (AdjustmentResult, error) {
		e.logger.Error("schedule adjustment stopped", logging.Operation(step), logging.Err(err))
		res.Error = fmt.Sprintf("%s failed: %v", step, err)
		if len(res.ChangeSetIDs) > 0 {
			res.Error += "; completed steps can be undone with their changeset ids"
		}
		return res, nil
	}

	for _, p := range proposals {
		if p.Action != scheduling.ActionMove {
			continue
		}
		moved, changeSetID, err := e.store.UpdateEvent(ctx, p.EventID, calendar.MoveTo(p.ProposedStart, p.ProposedEnd.Sub(p.ProposedStart)))
		if err != nil {
			return fail("moving "+p.EventID, err)
		}
		if moved == nil {
			return fail("moving "+p.EventID, calendar.ErrNotFound)
		}
		res.Moved = append(res.Moved, *moved)
		res.ChangeSetIDs = append(res.ChangeSetIDs, changeSetID)
		e.afterMutation(moved)
	}

	created, changeSetID, err := e.store.CreateEvent(ctx, newEvent)
	if err != nil {
		return fail("creating event", err)
	}
	res.Created = &created
	res.ChangeSetIDs = append(res.ChangeSetIDs, changeSetID)
	e.afterMutation(&created)

	e.logger.Info("schedule adjustment applied",
		logging.EventID(created.ID),
		slog.Int("moved", len(res.Moved)))
	res.Success = true
	return res, nil
}

// AnalyzeUserPatterns rebuilds the persona from recent history.
func (e *Engine) AnalyzeUserPatterns(ctx context.Context) (PersonaResult, error) {
	p, summary, err := e.analyze(ctx)
	if err != nil {
		if msg, ok := DomainMessage(err); ok {
			return PersonaResult{Error: msg}, nil
		}
		return PersonaResult{}, err
	}
	return PersonaResult{Success: true, Persona: p, Summary: summary}, nil
}

// GetPersona returns the stored persona and its summary.
func (e *Engine) GetPersona(ctx context.Context) (PersonaResult, error) {
	p, err := e.personas.GetPersona(ctx)
	if err != nil {
		return PersonaResult{}, err
	}
	if p == nil {
		return PersonaResult{Error: persona.ErrNoPersona.Error()}, nil
	}
	return PersonaResult{Success: true, Persona: p, Summary: persona.Summarize(p, 0)}, nil
}

// UpdatePersona applies an explicit patch and notes the reason.
func (e *Engine) UpdatePersona(ctx context.Context, changes persona.Changes, reason string) (PersonaResult, error) {
	if changes.IsEmpty() {
		return PersonaResult{Error: "no changes given"}, nil
	}
	if err := changes.Validate(); err != nil {
		return PersonaResult{Error: err.Error()}, nil
	}

	p, err := persona.Update(ctx, e.personas, e.clock, changes, reason)
	if err != nil {
		if msg, ok := DomainMessage(err); ok {
			return PersonaResult{Error: msg}, nil
		}
		return PersonaResult{}, err
	}
	return PersonaResult{Success: true, Persona: p, Summary: persona.Summarize(p, 0)}, nil
}

// DetectDrift runs a drift check for ev behind any queued ones and waits
// for its outcome.
func (e *Engine) DetectDrift(ctx context.Context, ev calendar.Event) ([]persona.DriftOutcome, error) {
	return e.drift.Detect(ctx, ev)
}
