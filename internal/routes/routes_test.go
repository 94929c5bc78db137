package routes

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/muktihari/fit/encoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"
	"github.com/stretchr/testify/require"

	"github.com/jordangarrison/vitals/internal/domain"
)

const testOwner = "owner-1"

type stubStore struct {
	workouts []domain.Workout
	links    []domain.WorkoutRoute
	findErr  error
}

func (s *stubStore) FindMatchingWorkout(_ context.Context, ownerID string, at time.Time, tol time.Duration) (*domain.Workout, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	var owned []domain.Workout
	for _, w := range s.workouts {
		if w.OwnerID == ownerID {
			owned = append(owned, w)
		}
	}
	return Best(owned, at, tol), nil
}

func (s *stubStore) LinkRoute(_ context.Context, route domain.WorkoutRoute) error {
	s.links = append(s.links, route)
	return nil
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func mustTime(t *testing.T, raw string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, raw)
	require.NoError(t, err)
	return ts
}

func workoutAt(t *testing.T, id int64, start, end string) domain.Workout {
	return domain.Workout{ID: id, OwnerID: testOwner, StartTime: mustTime(t, start), EndTime: mustTime(t, end)}
}

func TestParseGPX(t *testing.T) {
	f, err := os.Open("testdata/route_2024-01-01_8.00am.gpx")
	require.NoError(t, err)
	defer f.Close()

	track, err := ParseGPX(f)
	require.NoError(t, err)
	require.Equal(t, "Route 2024-01-01 8:00am", track.Name)
	require.Len(t, track.Points, 4)

	first := track.Points[0]
	require.InDelta(t, 30.267153, first.Lat, 1e-9)
	require.InDelta(t, -97.743061, first.Lon, 1e-9)
	require.Equal(t, 149.2, *first.Elevation)
	require.Equal(t, 0.0, *first.Speed)
	require.Nil(t, first.Time)

	require.Equal(t, 2.61, *track.Points[1].Speed)
	require.Nil(t, track.Points[3].Elevation)
	require.Nil(t, track.Points[3].Speed)

	start, end, err := track.Bounds()
	require.NoError(t, err)
	require.Equal(t, mustTime(t, "2024-01-01T14:03:00Z"), start)
	require.Equal(t, mustTime(t, "2024-01-01T14:25:40Z"), end)
}

func TestBoundsWithoutTimestamps(t *testing.T) {
	doc := `<gpx><trk><trkseg><trkpt lat="1" lon="2"/><trkpt lat="1.1" lon="2.1"/></trkseg></trk></gpx>`
	track, err := ParseGPX(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, track.Points, 2)

	_, _, err = track.Bounds()
	require.ErrorIs(t, err, ErrNoTimedPoints)
}

func TestParseGPXRejectsBrokenDocument(t *testing.T) {
	_, err := ParseGPX(strings.NewReader(`<gpx><trk><trkseg><trkpt lat="1" lon="2"></trkseg>`))
	require.Error(t, err)
}

func TestOverlaps(t *testing.T) {
	w := workoutAt(t, 1, "2024-01-01T14:00:00Z", "2024-01-01T14:30:00Z")

	cases := []struct {
		at   string
		want bool
	}{
		{"2024-01-01T14:10:00Z", true},
		{"2024-01-01T13:57:00Z", true},
		{"2024-01-01T13:55:00Z", true},
		{"2024-01-01T13:54:59Z", false},
		{"2024-01-01T14:35:00Z", true},
		{"2024-01-01T14:40:00Z", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Overlaps(w, mustTime(t, tc.at), DefaultTolerance), tc.at)
	}
}

func TestBestPrefersLatestStartThenHighestID(t *testing.T) {
	at := mustTime(t, "2024-01-01T14:10:00Z")
	candidates := []domain.Workout{
		workoutAt(t, 1, "2024-01-01T13:00:00Z", "2024-01-01T15:00:00Z"),
		workoutAt(t, 2, "2024-01-01T14:05:00Z", "2024-01-01T14:30:00Z"),
		workoutAt(t, 3, "2024-01-01T14:05:00Z", "2024-01-01T14:20:00Z"),
		workoutAt(t, 4, "2024-01-01T16:00:00Z", "2024-01-01T17:00:00Z"),
	}
	best := Best(candidates, at, DefaultTolerance)
	require.NotNil(t, best)
	require.Equal(t, int64(3), best.ID)

	require.Nil(t, Best(candidates[3:], at, DefaultTolerance))
}

func writeGPX(t *testing.T, dir, name string, start time.Time, points int) {
	t.Helper()
	var b strings.Builder
	b.WriteString(`<gpx><trk><name>generated</name><trkseg>`)
	for i := 0; i < points; i++ {
		ts := start.Add(time.Duration(i) * time.Second).Format(time.RFC3339)
		fmt.Fprintf(&b, `<trkpt lat="%f" lon="%f"><time>%s</time></trkpt>`, 30+float64(i)*1e-5, -97.0, ts)
	}
	b.WriteString(`</trkseg></trk></gpx>`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o644))
}

func TestMatchDirectory(t *testing.T) {
	dir := t.TempDir()
	base := mustTime(t, "2024-01-01T14:00:00Z")

	// Starts three minutes before the workout: inside the window.
	writeGPX(t, dir, "a_early.gpx", base.Add(-3*time.Minute), 1200)
	// Starts ten minutes after the workout ended: outside the window.
	writeGPX(t, dir, "b_late.gpx", base.Add(40*time.Minute), 10)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c_untimed.gpx"), []byte(`<gpx><trk><trkseg><trkpt lat="1" lon="1"/></trkseg></trk></gpx>`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	store := &stubStore{workouts: []domain.Workout{
		workoutAt(t, 7, "2024-01-01T14:00:00Z", "2024-01-01T14:30:00Z"),
	}}
	m := NewMatcher(store, WithLogger(log.New(testWriter{t}, "", 0)))

	stats, err := m.MatchDirectory(context.Background(), testOwner, dir)
	require.NoError(t, err)
	require.Equal(t, 2, stats.FilesProcessed)
	require.Equal(t, 1, stats.Linked)
	require.Equal(t, 1, stats.Unlinked)
	require.Equal(t, []string{"c_untimed.gpx: no timestamps found"}, stats.Errors)

	require.Len(t, store.links, 1)
	link := store.links[0]
	require.Equal(t, int64(7), link.WorkoutID)
	require.Equal(t, testOwner, link.OwnerID)
	require.Equal(t, "generated", link.Name)
	require.Equal(t, 300, link.PointCount)
	require.Len(t, link.Points, 300)
	require.Equal(t, base.Add(-3*time.Minute), *link.StartTime)
	require.Equal(t, filepath.Join(dir, "a_early.gpx"), link.FilePath)
}

func TestMatchDirectoryStoreFailureIsPerFile(t *testing.T) {
	dir := t.TempDir()
	writeGPX(t, dir, "a.gpx", mustTime(t, "2024-01-01T14:00:00Z"), 3)

	store := &stubStore{findErr: errors.New("pool closed")}
	m := NewMatcher(store, WithLogger(log.New(testWriter{t}, "", 0)))

	stats, err := m.MatchDirectory(context.Background(), testOwner, dir)
	require.NoError(t, err)
	require.Zero(t, stats.FilesProcessed)
	require.Len(t, stats.Errors, 1)
	require.Contains(t, stats.Errors[0], "pool closed")
}

func TestMatchDirectoryUnreadable(t *testing.T) {
	m := NewMatcher(&stubStore{}, WithLogger(log.New(testWriter{t}, "", 0)))
	_, err := m.MatchDirectory(context.Background(), testOwner, filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestParseFIT(t *testing.T) {
	start := mustTime(t, "2024-03-02T07:15:00Z")
	lat, lon := 45.5*semicircleConst, -122.6*semicircleConst
	fit := &proto.FIT{Messages: []proto.Message{
		mesgdef.NewFileId(nil).
			SetType(typedef.FileActivity).
			SetManufacturer(typedef.ManufacturerDevelopment).
			SetTimeCreated(start).
			ToMesg(nil),
	}}
	for i := 0; i < 3; i++ {
		rec := mesgdef.NewRecord(nil).
			SetTimestamp(start.Add(time.Duration(i) * time.Second)).
			SetPositionLat(int32(lat)).
			SetPositionLong(int32(lon)).
			SetAltitude(uint16((30 + 500) * 5)).
			SetSpeed(3200)
		fit.Messages = append(fit.Messages, rec.ToMesg(nil))
	}
	// No position fix: dropped.
	fit.Messages = append(fit.Messages, mesgdef.NewRecord(nil).SetTimestamp(start.Add(time.Minute)).ToMesg(nil))

	path := filepath.Join(t.TempDir(), "ride.fit")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, encoder.New(f).Encode(fit))
	require.NoError(t, f.Close())

	track, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, track.Points, 3)

	pt := track.Points[0]
	require.InDelta(t, 45.5, pt.Lat, 1e-6)
	require.InDelta(t, -122.6, pt.Lon, 1e-6)
	require.InDelta(t, 30.0, *pt.Elevation, 1e-9)
	require.InDelta(t, 3.2, *pt.Speed, 1e-9)

	s, e, err := track.Bounds()
	require.NoError(t, err)
	require.True(t, s.Equal(start))
	require.True(t, e.Equal(start.Add(2*time.Second)))
}

func TestParseFileRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "route.kml")
	require.NoError(t, os.WriteFile(path, []byte("<kml/>"), 0o644))
	_, err := ParseFile(path)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}
