package importer

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jordangarrison/vitals/internal/domain"
	"github.com/jordangarrison/vitals/internal/healthexport"
	"github.com/jordangarrison/vitals/internal/routes"
)

const testExport = `<?xml version="1.0" encoding="UTF-8"?>
<HealthData locale="en_US">
 <Record type="HKQuantityTypeIdentifierStepCount" sourceName="Watch" unit="count" startDate="2024-01-01 08:00:00 -0600" endDate="2024-01-01 08:10:00 -0600" value="1200"/>
 <Workout workoutActivityType="HKWorkoutActivityTypeRunning" duration="30" durationUnit="min" sourceName="Watch" startDate="2024-01-01 08:00:00 -0600" endDate="2024-01-01 08:30:00 -0600"/>
</HealthData>
`

const testRoute = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" xmlns="http://www.topografix.com/GPX/1/1">
 <trk><name>Morning run</name><trkseg>
  <trkpt lat="30.2671" lon="-97.7430"><time>2024-01-01T14:03:00Z</time></trkpt>
  <trkpt lat="30.2672" lon="-97.7431"><time>2024-01-01T14:20:00Z</time></trkpt>
 </trkseg></trk>
</gpx>
`

const testObservation = `{"resourceType":"Observation","id":"obs-1","effectiveDateTime":"2023-04-12","code":{"text":"Glucose"},"valueQuantity":{"value":92,"unit":"mg/dL"}}`

type stubStore struct {
	owner     domain.Owner
	ownerErr  error
	auditErr  error
	audits    []domain.ImportRecord
	records   []domain.HealthRecord
	workouts  []domain.Workout
	nutrition []domain.Nutrition
	body      []domain.BodyMetrics
	ecg       []domain.ECGRecording
	clinical  []domain.ClinicalRecord
	summaries []domain.ActivitySummary
	profiles  []domain.UserProfile
	routes    []domain.WorkoutRoute
}

func newStubStore() *stubStore {
	return &stubStore{owner: domain.Owner{ID: "7e0f4b2a-9c1d-4e5f-8a6b-3c2d1e0f9a8b", Username: "jordan"}}
}

func (s *stubStore) GetOrCreateOwner(_ context.Context, username string) (*domain.Owner, error) {
	if s.ownerErr != nil {
		return nil, s.ownerErr
	}
	owner := s.owner
	owner.Username = username
	return &owner, nil
}

func (s *stubStore) RecordImport(_ context.Context, rec domain.ImportRecord) (domain.ImportRecord, error) {
	if s.auditErr != nil {
		return domain.ImportRecord{}, s.auditErr
	}
	rec.ID = rec.SourceType + "-audit"
	s.audits = append(s.audits, rec)
	return rec, nil
}

func (s *stubStore) UpsertActivitySummary(_ context.Context, summary domain.ActivitySummary) error {
	s.summaries = append(s.summaries, summary)
	return nil
}

func (s *stubStore) UpsertProfile(_ context.Context, profile domain.UserProfile) error {
	s.profiles = append(s.profiles, profile)
	return nil
}

func (s *stubStore) InsertHealthRecords(_ context.Context, records []domain.HealthRecord) error {
	s.records = append(s.records, records...)
	return nil
}

func (s *stubStore) UpsertWorkouts(_ context.Context, workouts []domain.Workout) error {
	for _, w := range workouts {
		w.ID = int64(len(s.workouts) + 1)
		s.workouts = append(s.workouts, w)
	}
	return nil
}

func (s *stubStore) UpsertNutrition(_ context.Context, rows []domain.Nutrition) error {
	s.nutrition = append(s.nutrition, rows...)
	return nil
}

func (s *stubStore) UpsertBodyMetrics(_ context.Context, rows []domain.BodyMetrics) error {
	s.body = append(s.body, rows...)
	return nil
}

func (s *stubStore) InsertECGRecordings(_ context.Context, recordings []domain.ECGRecording) error {
	s.ecg = append(s.ecg, recordings...)
	return nil
}

func (s *stubStore) UpsertClinicalRecords(_ context.Context, records []domain.ClinicalRecord) error {
	s.clinical = append(s.clinical, records...)
	return nil
}

func (s *stubStore) FindMatchingWorkout(_ context.Context, _ string, at time.Time, tolerance time.Duration) (*domain.Workout, error) {
	return routes.Best(s.workouts, at, tolerance), nil
}

func (s *stubStore) LinkRoute(_ context.Context, route domain.WorkoutRoute) error {
	s.routes = append(s.routes, route)
	return nil
}

type captured struct {
	err  error
	tags map[string]string
}

type stubReporter struct {
	events []captured
}

func (r *stubReporter) Capture(err error, tags map[string]string) {
	r.events = append(r.events, captured{err: err, tags: tags})
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// seedData lays out an export, one route and one clinical record. MacroFactor
// and ECG directories are left absent.
func seedData(t *testing.T, export string) (string, Paths) {
	t.Helper()
	dataPath := t.TempDir()
	paths := PathsFor(dataPath, "jordan")
	writeFile(t, paths.ExportXML, export)
	writeFile(t, filepath.Join(paths.Routes, "route_2024-01-01_8.03am.gpx"), testRoute)
	writeFile(t, filepath.Join(paths.Clinical, "Observation-obs-1.json"), testObservation)
	return dataPath, paths
}

func newTestImporter(t *testing.T, store Store, opts ...Option) *Importer {
	t.Helper()
	opts = append([]Option{WithLogger(log.New(testWriter{t}, "", 0))}, opts...)
	return New(store, opts...)
}

func bySource(s Summary) map[string]PhaseResult {
	out := make(map[string]PhaseResult)
	for _, p := range s.Phases {
		out[p.Source] = p
	}
	return out
}

func TestRunExecutesEveryPhaseInOrder(t *testing.T) {
	dataPath, paths := seedData(t, testExport)
	store := newStubStore()

	summary, err := newTestImporter(t, store).Run(context.Background(), Request{Username: " jordan ", DataPath: dataPath})
	require.NoError(t, err)
	require.True(t, summary.Succeeded())
	require.NoError(t, summary.Err())

	var order []string
	for _, p := range summary.Phases {
		order = append(order, p.Source)
	}
	require.Equal(t, []string{
		domain.SourceAppleHealth,
		domain.SourceMacroFactor,
		domain.SourceClinical,
		domain.SourceECG,
		domain.SourceRoutes,
	}, order)

	phases := bySource(summary)
	require.Equal(t, 2, phases[domain.SourceAppleHealth].Records)
	require.Zero(t, phases[domain.SourceMacroFactor].Records)
	require.Equal(t, domain.ImportStatusSuccess, phases[domain.SourceMacroFactor].Status)
	require.Equal(t, 1, phases[domain.SourceClinical].Records)
	require.Equal(t, 1, phases[domain.SourceRoutes].Records)
	require.Equal(t, 4, summary.Records())

	require.Len(t, store.audits, 5)
	require.Equal(t, paths.ExportXML, store.audits[0].SourceFile)
	require.Empty(t, store.audits[0].RoutesDir)
	require.Equal(t, "apple-health-audit", phases[domain.SourceAppleHealth].ImportID)

	require.Len(t, store.routes, 1)
	require.Equal(t, store.workouts[0].ID, store.routes[0].WorkoutID)
}

func TestRunDeferredRoutesTravelOnTheEvent(t *testing.T) {
	dataPath, paths := seedData(t, testExport)
	store := newStubStore()

	summary, err := newTestImporter(t, store).Run(context.Background(), Request{
		Username:    "jordan",
		DataPath:    dataPath,
		DeferRoutes: true,
	})
	require.NoError(t, err)
	require.Len(t, summary.Phases, 4)
	require.Empty(t, store.routes)
	require.Equal(t, paths.Routes, store.audits[0].RoutesDir)
}

func TestRunHonoursSkipFlags(t *testing.T) {
	dataPath, _ := seedData(t, testExport)
	store := newStubStore()

	summary, err := newTestImporter(t, store).Run(context.Background(), Request{
		Username:        "jordan",
		DataPath:        dataPath,
		SkipAppleHealth: true,
		SkipMacroFactor: true,
		SkipECG:         true,
		SkipRoutes:      true,
	})
	require.NoError(t, err)
	require.Len(t, summary.Phases, 1)
	require.Equal(t, domain.SourceClinical, summary.Phases[0].Source)
	require.Empty(t, store.records)
}

func TestRunMalformedExportIsFatalForItsPhaseOnly(t *testing.T) {
	dataPath, _ := seedData(t, `<HealthData><Record type="HKQuantityTypeIdentifierStepCount"`)
	store := newStubStore()
	reporter := &stubReporter{}

	summary, err := newTestImporter(t, store, WithReporter(reporter)).Run(context.Background(), Request{Username: "jordan", DataPath: dataPath})
	require.NoError(t, err)
	require.False(t, summary.Succeeded())
	require.ErrorIs(t, summary.Err(), healthexport.ErrMalformedStream)

	phases := bySource(summary)
	require.Equal(t, domain.ImportStatusFailed, phases[domain.SourceAppleHealth].Status)
	require.Equal(t, domain.ImportStatusSuccess, phases[domain.SourceClinical].Status)
	require.Len(t, store.audits, 5)
	require.Contains(t, store.audits[0].ErrorLog, "malformed")

	require.Len(t, reporter.events, 1)
	require.Equal(t, domain.SourceAppleHealth, reporter.events[0].tags["phase"])
}

func TestRunMissingExportFailsWithoutReporting(t *testing.T) {
	store := newStubStore()
	reporter := &stubReporter{}

	summary, err := newTestImporter(t, store, WithReporter(reporter)).Run(context.Background(), Request{
		Username: "jordan",
		DataPath: t.TempDir(),
	})
	require.NoError(t, err)
	phases := bySource(summary)
	require.Equal(t, domain.ImportStatusFailed, phases[domain.SourceAppleHealth].Status)
	require.Contains(t, phases[domain.SourceAppleHealth].Errors[0], "export.xml not found at")
	require.NoError(t, summary.Err())
	require.Empty(t, reporter.events)

	// Optional directories that do not exist are clean, empty phases.
	for _, source := range []string{domain.SourceMacroFactor, domain.SourceClinical, domain.SourceECG, domain.SourceRoutes} {
		require.Equal(t, domain.ImportStatusSuccess, phases[source].Status, source)
	}
}

func TestRunReportsNonDirectoryAsUnreadable(t *testing.T) {
	dataPath, paths := seedData(t, testExport)
	writeFile(t, paths.ECG, "not a directory")

	summary, err := newTestImporter(t, newStubStore()).Run(context.Background(), Request{Username: "jordan", DataPath: dataPath})
	require.NoError(t, err)
	require.ErrorIs(t, summary.Err(), ErrUnreadableInput)
	require.Equal(t, domain.ImportStatusFailed, bySource(summary)[domain.SourceECG].Status)
}

func TestRunRejectsBlankUsername(t *testing.T) {
	_, err := newTestImporter(t, newStubStore()).Run(context.Background(), Request{Username: "  "})
	require.ErrorIs(t, err, domain.ErrInvalidUsername)
}

func TestRunPropagatesOwnerFailure(t *testing.T) {
	store := newStubStore()
	store.ownerErr = errors.New("connection refused")
	_, err := newTestImporter(t, store).Run(context.Background(), Request{Username: "jordan"})
	require.ErrorContains(t, err, "connection refused")
}

func TestAuditFailureIsAttachedToThePhase(t *testing.T) {
	dataPath, _ := seedData(t, testExport)
	store := newStubStore()
	store.auditErr = errors.New("outbox insert failed")

	summary, err := newTestImporter(t, store).Run(context.Background(), Request{
		Username:        "jordan",
		DataPath:        dataPath,
		SkipAppleHealth: true,
		SkipMacroFactor: true,
		SkipECG:         true,
		SkipRoutes:      true,
	})
	require.NoError(t, err)
	require.ErrorContains(t, summary.Err(), "outbox insert failed")
	require.Empty(t, summary.Phases[0].ImportID)
}

func TestMatchRoutesAuditsStandaloneRun(t *testing.T) {
	_, paths := seedData(t, testExport)
	store := newStubStore()

	result, err := newTestImporter(t, store).MatchRoutes(context.Background(), "jordan", paths.Routes)
	require.NoError(t, err)
	require.Equal(t, domain.SourceRoutes, result.Source)
	require.Zero(t, result.Records)
	require.Equal(t, 1, result.Skipped)
	require.Len(t, store.audits, 1)
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "12.5s", FormatDuration(12500*time.Millisecond))
	require.Equal(t, "2m 5s", FormatDuration(125*time.Second))
}
