package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/teemow/calpilot/internal/logging"
	"github.com/teemow/calpilot/internal/testutil"
)

// fakeCalendarAPI serves the subset of the Calendar v3 REST API the store uses.
type fakeCalendarAPI struct {
	mu     sync.Mutex
	events map[string]*gcal.Event
	order  []string
	nextID int
	// lastList is the query of the most recent list request.
	lastList url.Values
}

func newFakeCalendarAPI() *fakeCalendarAPI {
	return &fakeCalendarAPI{events: make(map[string]*gcal.Event)}
}

func (f *fakeCalendarAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /calendars/{cal}/events", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.lastList = r.URL.Query()
		resp := &gcal.Events{}
		for _, id := range f.order {
			if ev, ok := f.events[id]; ok {
				resp.Items = append(resp.Items, ev)
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})
	mux.HandleFunc("POST /calendars/{cal}/events", func(w http.ResponseWriter, r *http.Request) {
		var ev gcal.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"code": 400, "message": err.Error()}})
			return
		}
		f.mu.Lock()
		f.nextID++
		ev.Id = fmt.Sprintf("g%d", f.nextID)
		f.events[ev.Id] = &ev
		f.order = append(f.order, ev.Id)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, &ev)
	})
	mux.HandleFunc("GET /calendars/{cal}/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		ev, ok := f.events[r.PathValue("id")]
		f.mu.Unlock()
		if !ok {
			writeNotFound(w)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	})
	mux.HandleFunc("PUT /calendars/{cal}/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		var ev gcal.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			writeNotFound(w)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		id := r.PathValue("id")
		if _, ok := f.events[id]; !ok {
			writeNotFound(w)
			return
		}
		ev.Id = id
		f.events[id] = &ev
		writeJSON(w, http.StatusOK, &ev)
	})
	mux.HandleFunc("DELETE /calendars/{cal}/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := r.PathValue("id")
		if _, ok := f.events[id]; !ok {
			writeNotFound(w)
			return
		}
		delete(f.events, id)
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (f *fakeCalendarAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{"code": 404, "message": "Not Found"}})
}

func newTestGoogleStore(t *testing.T, opts ...GoogleStoreOption) (*GoogleStore, *fakeCalendarAPI) {
	t.Helper()
	api := newFakeCalendarAPI()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	svc, err := gcal.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return NewGoogleStoreWithService(svc, "primary", time.UTC, logging.Discard(), opts...), api
}

func utcAt(h, m int) time.Time {
	return time.Date(2026, 2, 16, h, m, 0, 0, time.UTC)
}

func TestGoogleStore_CreateAndGet(t *testing.T) {
	store, _ := newTestGoogleStore(t)
	ctx := context.Background()

	in := NewEvent("Design review", utcAt(10, 0), utcAt(11, 0))
	in.Category = CategoryMeeting
	in.Tags = []string{"team", "design"}
	in.IsMovable = false
	in.Priority = 2
	in.Reminders = []int{15}

	created, csID, err := store.CreateEvent(ctx, in)
	require.NoError(t, err)
	assert.NotEmpty(t, csID)
	assert.Equal(t, "g1", created.ID)

	got, err := store.GetEventByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, CategoryMeeting, got.Category)
	assert.Equal(t, []string{"design", "team"}, got.Tags)
	assert.False(t, got.IsMovable)
	assert.Equal(t, 2, got.Priority)
	assert.Equal(t, []int{15}, got.Reminders)
	assert.True(t, got.Start.Equal(utcAt(10, 0)))
}

func TestGoogleStore_GetEventByID_Missing(t *testing.T) {
	store, _ := newTestGoogleStore(t)
	got, err := store.GetEventByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGoogleStore_GetEventsFilter(t *testing.T) {
	store, _ := newTestGoogleStore(t)
	ctx := context.Background()

	meeting := NewEvent("Sync", utcAt(9, 0), utcAt(9, 30))
	meeting.Category = CategoryMeeting
	_, _, err := store.CreateEvent(ctx, meeting)
	require.NoError(t, err)
	_, _, err = store.CreateEvent(ctx, NewEvent("Focus", utcAt(10, 0), utcAt(12, 0)))
	require.NoError(t, err)

	events, err := store.GetEvents(ctx, utcAt(0, 0), utcAt(23, 0), Filter{Category: CategoryMeeting})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Sync", events[0].Title)

	found, err := store.SearchEvents(ctx, "focus", nil, nil)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Focus", found[0].Title)
}

func TestGoogleStore_UpdateAndDelete(t *testing.T) {
	store, api := newTestGoogleStore(t)
	ctx := context.Background()

	created, _, err := store.CreateEvent(ctx, NewEvent("Focus", utcAt(10, 0), utcAt(11, 0)))
	require.NoError(t, err)

	title := "Deep focus"
	updated, csID, err := store.UpdateEvent(ctx, created.ID, EventChanges{Title: &title})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "Deep focus", updated.Title)
	assert.NotEmpty(t, csID)

	missing, _, err := store.UpdateEvent(ctx, "nope", EventChanges{Title: &title})
	require.NoError(t, err)
	assert.Nil(t, missing)

	ok, _, err := store.DeleteEvent(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, api.count())

	ok, _, err = store.DeleteEvent(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGoogleStore_UndoOnlyReversesCreation(t *testing.T) {
	store, api := newTestGoogleStore(t)
	ctx := context.Background()

	assert.False(t, store.Capabilities().FullUndo)

	created, createCS, err := store.CreateEvent(ctx, NewEvent("Focus", utcAt(10, 0), utcAt(11, 0)))
	require.NoError(t, err)

	title := "Renamed"
	_, updateCS, err := store.UpdateEvent(ctx, created.ID, EventChanges{Title: &title})
	require.NoError(t, err)

	ok, err := store.Undo(ctx, updateCS)
	require.NoError(t, err)
	assert.False(t, ok, "updates cannot be undone remotely")

	ok, err = store.Undo(ctx, createCS)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, api.count())

	ok, err = store.Undo(ctx, createCS)
	require.NoError(t, err)
	assert.False(t, ok, "a consumed changeset cannot be undone twice")

	changes, err := store.ListChanges(ctx, 10)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, ChangeUpdate, changes[0].Kind)
	assert.True(t, changes[1].Undone)
}

func TestFromGoogleEvent_AllDay(t *testing.T) {
	ev, err := fromGoogleEvent(&gcal.Event{
		Id:      "x",
		Summary: "Holiday",
		Start:   &gcal.EventDateTime{Date: "2026-02-16"},
		End:     &gcal.EventDateTime{Date: "2026-02-17"},
	}, time.UTC)
	require.NoError(t, err)
	assert.True(t, ev.Start.Equal(time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 24*time.Hour, ev.Duration())
	assert.Equal(t, CategoryGeneral, ev.Category)
	assert.True(t, ev.IsMovable)
}

func TestToGoogleEvent_KeepsWallClock(t *testing.T) {
	seoul := time.FixedZone("KST", 9*3600)
	ev := NewEvent("Lunch", time.Date(2026, 2, 16, 12, 30, 0, 0, time.UTC), time.Date(2026, 2, 16, 13, 30, 0, 0, time.UTC))
	g := toGoogleEvent(ev, seoul)
	assert.Equal(t, "2026-02-16T12:30:00+09:00", g.Start.DateTime)
	assert.Equal(t, "KST", g.Start.TimeZone)
	assert.Equal(t, "true", g.ExtendedProperties.Private[propMovable])
}

func TestGoogleStore_UsesInjectedClock(t *testing.T) {
	now := time.Date(2026, 2, 16, 8, 0, 0, 0, time.UTC)
	store, api := newTestGoogleStore(t, WithGoogleClock(testutil.NewStubClock(now)))
	ctx := context.Background()

	_, err := store.GetAllEvents(ctx)
	require.NoError(t, err)
	api.mu.Lock()
	query := api.lastList
	api.mu.Unlock()
	assert.Equal(t, now.Add(-allEventsHorizon).Format(time.RFC3339), query.Get("timeMin"))
	assert.Equal(t, now.Add(allEventsHorizon).Format(time.RFC3339), query.Get("timeMax"))

	_, _, err = store.CreateEvent(ctx, NewEvent("Focus", utcAt(10, 0), utcAt(11, 0)))
	require.NoError(t, err)
	changes, err := store.ListChanges(ctx, 1)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.True(t, now.Equal(changes[0].CreatedAt))
}

func TestGoogleStore_ChangeHistoryIsCapped(t *testing.T) {
	store, _ := newTestGoogleStore(t)
	ctx := context.Background()

	var first, last string
	for i := 0; i < MaxRemoteChanges+5; i++ {
		_, cs, err := store.CreateEvent(ctx, NewEvent(fmt.Sprintf("Event %d", i), utcAt(9, 0), utcAt(10, 0)))
		require.NoError(t, err)
		if i == 0 {
			first = cs
		}
		last = cs
	}

	changes, err := store.ListChanges(ctx, 0)
	require.NoError(t, err)
	require.Len(t, changes, MaxRemoteChanges)
	assert.Equal(t, last, changes[0].ID)
	assert.Equal(t, "Event 5", changes[len(changes)-1].Titles[0], "the oldest entries are evicted")

	ok, err := store.Undo(ctx, first)
	require.NoError(t, err)
	assert.False(t, ok, "an evicted changeset can no longer be undone")

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.changes, MaxRemoteChanges)
}
