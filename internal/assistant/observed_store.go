package assistant

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/calpilot/internal/calendar"
	"github.com/teemow/calpilot/internal/instrumentation"
)

// errNoChangeLog is returned by ListChanges when the backend keeps no log.
var errNoChangeLog = errors.New("calendar backend does not keep a change log")

// observedStore records a span and metrics around every store call.
type observedStore struct {
	inner   calendar.Store
	backend string
	metrics *instrumentation.Metrics
}

func newObservedStore(inner calendar.Store, metrics *instrumentation.Metrics) *observedStore {
	return &observedStore{inner: inner, backend: inner.Capabilities().Backend, metrics: metrics}
}

func (s *observedStore) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := instrumentation.StartStoreSpan(ctx, s.backend, op, attrs...)
	return ctx, func(err error) {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
		}
		s.metrics.RecordStoreOperation(ctx, s.backend, op, status, time.Since(start))
		instrumentation.EndSpan(span, err)
	}
}

func (s *observedStore) GetEvents(ctx context.Context, start, end time.Time, filter calendar.Filter) (events []calendar.Event, err error) {
	ctx, done := s.observe(ctx, instrumentation.OperationList)
	defer func() { done(err) }()
	return s.inner.GetEvents(ctx, start, end, filter)
}

func (s *observedStore) SearchEvents(ctx context.Context, query string, start, end *time.Time) (events []calendar.Event, err error) {
	ctx, done := s.observe(ctx, instrumentation.OperationSearch)
	defer func() { done(err) }()
	return s.inner.SearchEvents(ctx, query, start, end)
}

func (s *observedStore) GetEventByID(ctx context.Context, id string) (ev *calendar.Event, err error) {
	ctx, done := s.observe(ctx, instrumentation.OperationGet, attribute.String(instrumentation.SpanAttrEventID, id))
	defer func() { done(err) }()
	return s.inner.GetEventByID(ctx, id)
}

func (s *observedStore) GetAllEvents(ctx context.Context) (events []calendar.Event, err error) {
	ctx, done := s.observe(ctx, instrumentation.OperationList)
	defer func() { done(err) }()
	return s.inner.GetAllEvents(ctx)
}

func (s *observedStore) CreateEvent(ctx context.Context, ev calendar.Event) (created calendar.Event, changeSetID string, err error) {
	ctx, done := s.observe(ctx, instrumentation.OperationCreate)
	defer func() { done(err) }()
	return s.inner.CreateEvent(ctx, ev)
}

func (s *observedStore) UpdateEvent(ctx context.Context, id string, changes calendar.EventChanges) (updated *calendar.Event, changeSetID string, err error) {
	ctx, done := s.observe(ctx, instrumentation.OperationUpdate, attribute.String(instrumentation.SpanAttrEventID, id))
	defer func() { done(err) }()
	return s.inner.UpdateEvent(ctx, id, changes)
}

func (s *observedStore) DeleteEvent(ctx context.Context, id string) (deleted bool, changeSetID string, err error) {
	ctx, done := s.observe(ctx, instrumentation.OperationDelete, attribute.String(instrumentation.SpanAttrEventID, id))
	defer func() { done(err) }()
	return s.inner.DeleteEvent(ctx, id)
}

func (s *observedStore) Undo(ctx context.Context, changeSetID string) (ok bool, err error) {
	ctx, done := s.observe(ctx, instrumentation.OperationUndo, attribute.String(instrumentation.SpanAttrChangeSet, changeSetID))
	defer func() { done(err) }()
	return s.inner.Undo(ctx, changeSetID)
}

func (s *observedStore) ListChanges(ctx context.Context, limit int) ([]calendar.ChangeSet, error) {
	lister, ok := s.inner.(calendar.ChangeLister)
	if !ok {
		return nil, errNoChangeLog
	}
	return lister.ListChanges(ctx, limit)
}

func (s *observedStore) Capabilities() calendar.Capabilities { return s.inner.Capabilities() }

func (s *observedStore) Close() error { return s.inner.Close() }
