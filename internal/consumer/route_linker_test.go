package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jordangarrison/vitals/internal/domain"
	"github.com/jordangarrison/vitals/internal/events"
	"github.com/jordangarrison/vitals/internal/routes"
)

const linkerRoute = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1"><trk><trkseg>
 <trkpt lat="30.2671" lon="-97.7430"><time>2024-01-01T14:03:00Z</time></trkpt>
 <trkpt lat="30.2672" lon="-97.7431"><time>2024-01-01T14:20:00Z</time></trkpt>
</trkseg></trk></gpx>
`

type stubRouteStore struct {
	workouts []domain.Workout
	linked   []domain.WorkoutRoute
	audits   []domain.ImportRecord
	auditErr error
}

func (s *stubRouteStore) FindMatchingWorkout(_ context.Context, _ string, at time.Time, tolerance time.Duration) (*domain.Workout, error) {
	return routes.Best(s.workouts, at, tolerance), nil
}

func (s *stubRouteStore) LinkRoute(_ context.Context, route domain.WorkoutRoute) error {
	s.linked = append(s.linked, route)
	return nil
}

func (s *stubRouteStore) RecordImport(_ context.Context, rec domain.ImportRecord) (domain.ImportRecord, error) {
	if s.auditErr != nil {
		return domain.ImportRecord{}, s.auditErr
	}
	s.audits = append(s.audits, rec)
	return rec, nil
}

func completedMessage(t *testing.T, event events.ImportCompleted) Message {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return Message{
		Topic:     events.ImportCompletedTopic,
		EventType: events.ImportCompletedType,
		OwnerID:   event.OwnerID,
		Payload:   payload,
	}
}

func newLinker(t *testing.T, store *stubRouteStore) *RouteLinkHandler {
	t.Helper()
	return NewRouteLinkHandler(store, routes.DefaultTolerance, log.New(testWriter{t}, "", 0))
}

func TestRouteLinkHandlerLinksAppleHealthRoutes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "route.gpx"), []byte(linkerRoute), 0o600))

	store := &stubRouteStore{workouts: []domain.Workout{{
		ID:        9,
		OwnerID:   "owner-1",
		StartTime: time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 1, 1, 14, 30, 0, 0, time.UTC),
	}}}

	msg := completedMessage(t, events.ImportCompleted{
		ImportID:   "imp-1",
		OwnerID:    "owner-1",
		SourceType: domain.SourceAppleHealth,
		Status:     string(domain.ImportStatusSuccess),
		RoutesDir:  dir,
	})
	require.NoError(t, newLinker(t, store).Handle(context.Background(), msg))

	require.Len(t, store.linked, 1)
	require.Equal(t, int64(9), store.linked[0].WorkoutID)
	require.Len(t, store.audits, 1)
	require.Equal(t, domain.SourceRoutes, store.audits[0].SourceType)
	require.Equal(t, 1, store.audits[0].RecordsImported)
	require.Equal(t, domain.ImportStatusSuccess, store.audits[0].Status)
}

func TestRouteLinkHandlerIgnoresOtherEvents(t *testing.T) {
	store := &stubRouteStore{}
	linker := newLinker(t, store)

	cases := []Message{
		{EventType: "import.started", Payload: json.RawMessage(`{}`)},
		completedMessage(t, events.ImportCompleted{OwnerID: "o", SourceType: domain.SourceECG, RoutesDir: t.TempDir()}),
		completedMessage(t, events.ImportCompleted{OwnerID: "o", SourceType: domain.SourceAppleHealth}),
		completedMessage(t, events.ImportCompleted{OwnerID: "o", SourceType: domain.SourceAppleHealth, RoutesDir: filepath.Join(t.TempDir(), "absent")}),
	}
	for _, msg := range cases {
		require.NoError(t, linker.Handle(context.Background(), msg))
	}
	require.Empty(t, store.linked)
	require.Empty(t, store.audits)
}

func TestRouteLinkHandlerSurfacesFailures(t *testing.T) {
	store := &stubRouteStore{auditErr: errors.New("db down")}
	linker := newLinker(t, store)

	err := linker.Handle(context.Background(), Message{EventType: events.ImportCompletedType, Payload: json.RawMessage(`{"import_id":`)})
	require.Error(t, err)

	msg := completedMessage(t, events.ImportCompleted{OwnerID: "o", SourceType: domain.SourceAppleHealth, RoutesDir: t.TempDir()})
	require.ErrorContains(t, linker.Handle(context.Background(), msg), "db down")
}
