package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/calpilot/internal/clock"
	"github.com/teemow/calpilot/internal/google"
	"github.com/teemow/calpilot/internal/logging"
	"github.com/teemow/calpilot/internal/timeutil"
)

// Private extended property keys carrying fields Google has no slot for.
const (
	propCategory = "calpilot_category"
	propTags     = "calpilot_tags"
	propMovable  = "calpilot_movable"
	propPriority = "calpilot_priority"
)

// allEventsHorizon bounds GetAllEvents on a remote calendar.
const allEventsHorizon = 365 * 24 * time.Hour

// MaxRemoteChanges caps the in-memory changeset history of a GoogleStore.
// The oldest entry is evicted first.
const MaxRemoteChanges = 50

type remoteChange struct {
	id        string
	kind      ChangeKind
	eventID   string
	title     string
	createdAt time.Time
	undone    bool
}

// GoogleStore is a Store backed by the Google Calendar API.
//
// Google has no transactional undo log. Changesets are tracked in memory for
// the lifetime of the process, capped at MaxRemoteChanges, and only
// creations can be undone (by deleting the created event). Updates and
// deletes report false from Undo.
type GoogleStore struct {
	svc        *gcal.Service
	calendarID string
	loc        *time.Location
	logger     *slog.Logger
	clock      clock.Clock

	mu      sync.Mutex
	changes map[string]*remoteChange
	order   []string
}

// GoogleStoreOption configures a GoogleStore.
type GoogleStoreOption func(*GoogleStore)

// WithGoogleClock sets the clock for the GetAllEvents window and changeset
// timestamps.
func WithGoogleClock(c clock.Clock) GoogleStoreOption {
	return func(s *GoogleStore) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewGoogleStore creates a store for calendarID using account's OAuth token.
func NewGoogleStore(ctx context.Context, account, calendarID string, loc *time.Location, provider google.TokenProvider, logger *slog.Logger, opts ...GoogleStoreOption) (*GoogleStore, error) {
	if provider == nil {
		return nil, fmt.Errorf("token provider cannot be nil")
	}
	client, err := google.HTTPClient(ctx, account, provider)
	if err != nil {
		return nil, err
	}
	svc, err := gcal.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	store := NewGoogleStoreWithService(svc, calendarID, loc, logger.With(logging.Account(account)), opts...)
	return store, nil
}

// NewGoogleStoreWithService wraps an existing service.
func NewGoogleStoreWithService(svc *gcal.Service, calendarID string, loc *time.Location, logger *slog.Logger, opts ...GoogleStoreOption) *GoogleStore {
	if calendarID == "" {
		calendarID = "primary"
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &GoogleStore{
		svc:        svc,
		calendarID: calendarID,
		loc:        loc,
		logger:     logging.WithBackend(logger, "google"),
		clock:      clock.RealClock{},
		changes:    make(map[string]*remoteChange),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GoogleStore) Capabilities() Capabilities {
	return Capabilities{Backend: "google", FullUndo: false}
}

func (s *GoogleStore) Close() error { return nil }

func (s *GoogleStore) list(ctx context.Context, start, end *time.Time, query string) ([]Event, error) {
	call := s.svc.Events.List(s.calendarID).
		SingleEvents(true).
		OrderBy("startTime")
	if start != nil {
		call = call.TimeMin(start.Format(time.RFC3339))
	}
	if end != nil {
		call = call.TimeMax(end.Format(time.RFC3339))
	}
	if query != "" {
		call = call.Q(query)
	}

	var out []Event
	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			if item.Status == "cancelled" {
				continue
			}
			ev, err := fromGoogleEvent(item, s.loc)
			if err != nil {
				s.logger.Warn("skipping unparseable event", logging.EventID(item.Id), logging.Err(err))
				continue
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, NewStorageError("list events", err)
	}
	return out, nil
}

func (s *GoogleStore) GetEvents(ctx context.Context, start, end time.Time, filter Filter) ([]Event, error) {
	events, err := s.list(ctx, &start, &end, "")
	if err != nil {
		return nil, err
	}
	out := events[:0]
	for _, ev := range events {
		if filter.Matches(ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *GoogleStore) SearchEvents(ctx context.Context, query string, start, end *time.Time) ([]Event, error) {
	events, err := s.list(ctx, start, end, query)
	if err != nil {
		return nil, err
	}
	out := events[:0]
	for _, ev := range events {
		if MatchesQuery(ev, query) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *GoogleStore) GetEventByID(ctx context.Context, id string) (*Event, error) {
	item, err := s.svc.Events.Get(s.calendarID, id).Context(ctx).Do()
	if err != nil {
		if isGone(err) {
			return nil, nil
		}
		return nil, NewStorageError("get event", err)
	}
	if item.Status == "cancelled" {
		return nil, nil
	}
	ev, err := fromGoogleEvent(item, s.loc)
	if err != nil {
		return nil, NewStorageError("get event", err)
	}
	return &ev, nil
}

func (s *GoogleStore) GetAllEvents(ctx context.Context) ([]Event, error) {
	now := s.clock.Now().In(s.loc)
	start, end := now.Add(-allEventsHorizon), now.Add(allEventsHorizon)
	return s.list(ctx, &start, &end, "")
}

func (s *GoogleStore) CreateEvent(ctx context.Context, ev Event) (Event, string, error) {
	ev = ev.Normalize()
	if err := ev.Validate(); err != nil {
		return Event{}, "", err
	}
	// Google assigns ids on insert.
	ev.ID = ""
	created, err := s.svc.Events.Insert(s.calendarID, toGoogleEvent(ev, s.loc)).Context(ctx).Do()
	if err != nil {
		return Event{}, "", NewStorageError("create event", err)
	}
	out, err := fromGoogleEvent(created, s.loc)
	if err != nil {
		return Event{}, "", NewStorageError("create event", err)
	}
	id := s.record(ChangeCreate, out)
	s.logger.Info("event created", logging.EventID(out.ID), logging.ChangeSet(id))
	return out, id, nil
}

func (s *GoogleStore) UpdateEvent(ctx context.Context, id string, changes EventChanges) (*Event, string, error) {
	existing, err := s.svc.Events.Get(s.calendarID, id).Context(ctx).Do()
	if err != nil {
		if isGone(err) {
			return nil, "", nil
		}
		return nil, "", NewStorageError("get existing event", err)
	}
	current, err := fromGoogleEvent(existing, s.loc)
	if err != nil {
		return nil, "", NewStorageError("update event", err)
	}
	merged, err := changes.Apply(current)
	if err != nil {
		return nil, "", err
	}

	patched := toGoogleEvent(merged, s.loc)
	patched.Id = existing.Id
	updated, err := s.svc.Events.Update(s.calendarID, id, patched).Context(ctx).Do()
	if err != nil {
		return nil, "", NewStorageError("update event", err)
	}
	out, err := fromGoogleEvent(updated, s.loc)
	if err != nil {
		return nil, "", NewStorageError("update event", err)
	}
	csID := s.record(ChangeUpdate, out)
	s.logger.Info("event updated", logging.EventID(out.ID), logging.ChangeSet(csID))
	return &out, csID, nil
}

func (s *GoogleStore) DeleteEvent(ctx context.Context, id string) (bool, string, error) {
	existing, err := s.GetEventByID(ctx, id)
	if err != nil {
		return false, "", err
	}
	if existing == nil {
		return false, "", nil
	}
	if err := s.svc.Events.Delete(s.calendarID, id).Context(ctx).Do(); err != nil {
		if isGone(err) {
			return false, "", nil
		}
		return false, "", NewStorageError("delete event", err)
	}
	csID := s.record(ChangeDelete, *existing)
	s.logger.Info("event deleted", logging.EventID(id), logging.ChangeSet(csID))
	return true, csID, nil
}

// Undo reverses a creation by deleting the created event. Update and delete
// changesets cannot be reversed against the remote API and return false.
func (s *GoogleStore) Undo(ctx context.Context, changeSetID string) (bool, error) {
	s.mu.Lock()
	change, ok := s.changes[changeSetID]
	s.mu.Unlock()
	if !ok || change.undone || change.kind != ChangeCreate {
		return false, nil
	}

	err := s.svc.Events.Delete(s.calendarID, change.eventID).Context(ctx).Do()
	if err != nil && !isGone(err) {
		return false, NewStorageError("undo", err)
	}

	s.mu.Lock()
	change.undone = true
	s.mu.Unlock()
	s.logger.Info("changeset undone", logging.ChangeSet(changeSetID), logging.EventID(change.eventID))
	return true, nil
}

// ListChanges returns the changesets recorded by this process, newest first.
func (s *GoogleStore) ListChanges(_ context.Context, limit int) ([]ChangeSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ChangeSet
	for i := len(s.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		c := s.changes[s.order[i]]
		out = append(out, ChangeSet{
			ID:        c.id,
			Kind:      c.kind,
			EventIDs:  []string{c.eventID},
			Titles:    []string{c.title},
			CreatedAt: c.createdAt,
			Undone:    c.undone,
		})
	}
	return out, nil
}

func (s *GoogleStore) record(kind ChangeKind, ev Event) string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes[id] = &remoteChange{
		id:        id,
		kind:      kind,
		eventID:   ev.ID,
		title:     ev.Title,
		createdAt: s.clock.Now().In(s.loc),
	}
	s.order = append(s.order, id)
	if over := len(s.order) - MaxRemoteChanges; over > 0 {
		for _, old := range s.order[:over] {
			delete(s.changes, old)
		}
		s.order = slices.Delete(s.order, 0, over)
	}
	return id
}

func isGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}

// toGoogleEvent converts an Event to the API representation. Wall-clock
// times are sent in loc so the remote calendar shows the same local times.
func toGoogleEvent(ev Event, loc *time.Location) *gcal.Event {
	zone := loc.String()
	if zone == "Local" {
		zone = ""
	}
	g := &gcal.Event{
		Id:          ev.ID,
		Summary:     ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		ColorId:     ev.ColorID,
		Recurrence:  ev.Recurrence,
		Start: &gcal.EventDateTime{
			DateTime: timeutil.WallClock(ev.Start, loc).Format(time.RFC3339),
			TimeZone: zone,
		},
		End: &gcal.EventDateTime{
			DateTime: timeutil.WallClock(ev.End, loc).Format(time.RFC3339),
			TimeZone: zone,
		},
		ExtendedProperties: &gcal.EventExtendedProperties{
			Private: map[string]string{
				propCategory: string(ev.Category),
				propTags:     strings.Join(ev.Tags, ","),
				propMovable:  strconv.FormatBool(ev.IsMovable),
				propPriority: strconv.Itoa(ev.Priority),
			},
		},
	}
	for _, email := range ev.Attendees {
		g.Attendees = append(g.Attendees, &gcal.EventAttendee{Email: email})
	}
	if len(ev.Reminders) > 0 {
		g.Reminders = &gcal.EventReminders{UseDefault: false, ForceSendFields: []string{"UseDefault"}}
		for _, m := range ev.Reminders {
			g.Reminders.Overrides = append(g.Reminders.Overrides, &gcal.EventReminder{Method: "popup", Minutes: int64(m)})
		}
	}
	return g
}

func parseGoogleTime(dt *gcal.EventDateTime, loc *time.Location) (time.Time, error) {
	if dt == nil {
		return time.Time{}, fmt.Errorf("missing event time")
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid event time %q: %w", dt.DateTime, err)
		}
		return t.In(loc), nil
	}
	return timeutil.ParseDateIn(dt.Date, loc)
}

func fromGoogleEvent(g *gcal.Event, loc *time.Location) (Event, error) {
	start, err := parseGoogleTime(g.Start, loc)
	if err != nil {
		return Event{}, err
	}
	end, err := parseGoogleTime(g.End, loc)
	if err != nil {
		return Event{}, err
	}

	ev := NewEvent(g.Summary, start, end)
	ev.ID = g.Id
	ev.Description = g.Description
	ev.Location = g.Location
	ev.ColorID = g.ColorId
	ev.Recurrence = g.Recurrence

	if g.ExtendedProperties != nil {
		props := g.ExtendedProperties.Private
		if c := Category(props[propCategory]); c.Valid() {
			ev.Category = c
		}
		if tags := props[propTags]; tags != "" {
			ev.Tags = strings.Split(tags, ",")
		}
		if b, err := strconv.ParseBool(props[propMovable]); err == nil {
			ev.IsMovable = b
		}
		if p, err := strconv.Atoi(props[propPriority]); err == nil && p >= MinPriority && p <= MaxPriority {
			ev.Priority = p
		}
	}
	for _, a := range g.Attendees {
		ev.Attendees = append(ev.Attendees, a.Email)
	}
	if g.Reminders != nil {
		for _, r := range g.Reminders.Overrides {
			ev.Reminders = append(ev.Reminders, int(r.Minutes))
		}
	}
	return ev.Normalize(), nil
}
