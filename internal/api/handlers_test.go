package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jordangarrison/vitals/internal/auth"
	"github.com/jordangarrison/vitals/internal/domain"
	"github.com/jordangarrison/vitals/internal/persistence"
)

func withClaims(req *http.Request, subject string, scopes ...string) *http.Request {
	set := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{
		Subject:   subject,
		Scopes:    set,
		ExpiresAt: time.Now().Add(time.Hour),
	}))
}

func serve(handler *Handler, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestListImports(t *testing.T) {
	imported := time.Date(2024, time.March, 2, 9, 0, 0, 0, time.UTC)
	repo := &mockRepo{
		owner: &domain.Owner{ID: "owner-1", Username: "jordan"},
		imports: []domain.ImportRecord{
			{ID: "imp-2", SourceType: domain.SourceECG, ImportedAt: imported, RecordsImported: 3, Status: domain.ImportStatusSuccess},
			{ID: "imp-1", SourceType: domain.SourceAppleHealth, ImportedAt: imported.Add(-time.Hour), RecordsImported: 10, Status: domain.ImportStatusFailed, ErrorLog: "boom"},
		},
	}
	handler := NewHandler(domain.NewService(repo))

	req := withClaims(httptest.NewRequest(http.MethodGet, "/v1/imports?limit=500", nil), "jordan", auth.ScopeImportsRead)
	rr := serve(handler, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp ListImportsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 imports got %d", len(resp.Items))
	}
	if resp.Items[1].ErrorLog != "boom" || resp.Items[1].Status != "failed" {
		t.Fatalf("unexpected second import %+v", resp.Items[1])
	}
	if repo.lastOwnerID != "owner-1" {
		t.Fatalf("expected owner-1 got %q", repo.lastOwnerID)
	}
	if repo.lastLimit != 200 {
		t.Fatalf("expected limit clamped to 200 got %d", repo.lastLimit)
	}
}

func TestListImportsScopeAndOwner(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{owner: &domain.Owner{ID: "owner-1", Username: "jordan"}}))

	rr := serve(handler, httptest.NewRequest(http.MethodGet, "/v1/imports", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}

	rr = serve(handler, withClaims(httptest.NewRequest(http.MethodGet, "/v1/imports", nil), "jordan", auth.ScopeWorkoutsRead))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for missing scope got %d", rr.Code)
	}

	rr = serve(handler, withClaims(httptest.NewRequest(http.MethodGet, "/v1/imports?owner=someone", nil), "jordan", auth.ScopeImportsRead))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign owner got %d", rr.Code)
	}

	rr = serve(handler, withClaims(httptest.NewRequest(http.MethodPost, "/v1/imports", nil), "jordan", auth.ScopeImportsRead))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", rr.Code)
	}
}

func TestListImportsUnknownOwner(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{}))

	rr := serve(handler, withClaims(httptest.NewRequest(http.MethodGet, "/v1/imports", nil), "ghost", auth.ScopeImportsRead))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestListWorkoutsPaginates(t *testing.T) {
	start := time.Date(2024, time.January, 1, 14, 0, 0, 0, time.UTC)
	distance := 5.2
	next := &domain.Cursor{StartTime: start, ID: 41}
	repo := &mockRepo{
		owner: &domain.Owner{ID: "owner-1", Username: "jordan"},
		workouts: []domain.Workout{{
			ID:           42,
			ActivityType: "HKWorkoutActivityTypeRunning",
			StartTime:    start,
			EndTime:      start.Add(30 * time.Minute),
			DistanceKm:   &distance,
			HasRoute:     true,
		}},
		next: next,
	}
	handler := NewHandler(domain.NewService(repo))

	token := persistence.EncodeCursor(&domain.Cursor{StartTime: start.Add(time.Hour), ID: 50})
	req := withClaims(httptest.NewRequest(http.MethodGet, "/v1/workouts?limit=1&cursor="+token, nil), "jordan", auth.ScopeWorkoutsRead)
	rr := serve(handler, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp ListWorkoutsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].WorkoutID != 42 || !resp.Items[0].HasRoute {
		t.Fatalf("unexpected items %+v", resp.Items)
	}
	if resp.Items[0].DistanceKm == nil || *resp.Items[0].DistanceKm != 5.2 {
		t.Fatalf("unexpected distance %v", resp.Items[0].DistanceKm)
	}
	if resp.NextCursor != persistence.EncodeCursor(next) {
		t.Fatalf("unexpected next cursor %q", resp.NextCursor)
	}
	if repo.lastCursor == nil || repo.lastCursor.ID != 50 {
		t.Fatalf("cursor not passed through: %+v", repo.lastCursor)
	}
	if repo.lastLimit != 1 {
		t.Fatalf("expected limit 1 got %d", repo.lastLimit)
	}
}

func TestListWorkoutsRejectsBadCursor(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{owner: &domain.Owner{ID: "owner-1"}}))

	req := withClaims(httptest.NewRequest(http.MethodGet, "/v1/workouts", nil), "jordan", auth.ScopeWorkoutsRead)
	req.URL.RawQuery = "cursor=not-base64!"
	rr := serve(handler, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestWorkoutRoute(t *testing.T) {
	at := time.Date(2024, time.January, 1, 14, 3, 0, 0, time.UTC)
	repo := &mockRepo{
		owner: &domain.Owner{ID: "owner-1", Username: "jordan"},
		route: &domain.WorkoutRoute{
			WorkoutID:  42,
			FilePath:   "/data/jordan/apple-health/workout-routes/route.gpx",
			StartTime:  &at,
			EndTime:    &at,
			PointCount: 1,
			Points:     []domain.TrackPoint{{Lat: 30.2671, Lon: -97.743, Time: &at}},
		},
	}
	handler := NewHandler(domain.NewService(repo))

	rr := serve(handler, withClaims(httptest.NewRequest(http.MethodGet, "/v1/workouts/42/route", nil), "jordan", auth.ScopeWorkoutsRead))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp RouteView
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.WorkoutID != 42 || len(resp.Points) != 1 || resp.Points[0].Lat != 30.2671 {
		t.Fatalf("unexpected route %+v", resp)
	}
	if repo.lastWorkoutID != 42 {
		t.Fatalf("expected workout 42 got %d", repo.lastWorkoutID)
	}
}

func TestWorkoutRouteErrors(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{owner: &domain.Owner{ID: "owner-1", Username: "jordan"}}))

	cases := map[string]int{
		"/v1/workouts/42/route":  http.StatusNotFound,
		"/v1/workouts/abc/route": http.StatusBadRequest,
		"/v1/workouts/42":        http.StatusNotFound,
		"/v1/workouts/42/laps":   http.StatusNotFound,
	}
	for path, want := range cases {
		rr := serve(handler, withClaims(httptest.NewRequest(http.MethodGet, path, nil), "jordan", auth.ScopeWorkoutsRead))
		if rr.Code != want {
			t.Fatalf("%s: expected %d got %d", path, want, rr.Code)
		}
	}
}

func TestRepositoryFailureIs500(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{
		owner: &domain.Owner{ID: "owner-1", Username: "jordan"},
		err:   errors.New("db down"),
	}))

	rr := serve(handler, withClaims(httptest.NewRequest(http.MethodGet, "/v1/workouts", nil), "jordan", auth.ScopeWorkoutsRead))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rr.Code)
	}
}

func TestHealthz(t *testing.T) {
	rr := serve(NewHandler(domain.NewService(&mockRepo{})), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("unexpected healthz response %d %q", rr.Code, rr.Body.String())
	}
}

type mockRepo struct {
	owner    *domain.Owner
	imports  []domain.ImportRecord
	workouts []domain.Workout
	next     *domain.Cursor
	route    *domain.WorkoutRoute
	err      error

	lastOwnerID   string
	lastLimit     int
	lastCursor    *domain.Cursor
	lastWorkoutID int64
}

func (m *mockRepo) GetOwnerByUsername(_ context.Context, _ string) (*domain.Owner, error) {
	return m.owner, nil
}

func (m *mockRepo) ListImports(_ context.Context, ownerID string, limit int) ([]domain.ImportRecord, error) {
	m.lastOwnerID, m.lastLimit = ownerID, limit
	return m.imports, m.err
}

func (m *mockRepo) ListWorkouts(_ context.Context, ownerID string, cursor *domain.Cursor, limit int) ([]domain.Workout, *domain.Cursor, error) {
	m.lastOwnerID, m.lastLimit, m.lastCursor = ownerID, limit, cursor
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.workouts, m.next, nil
}

func (m *mockRepo) GetRoute(_ context.Context, ownerID string, workoutID int64) (*domain.WorkoutRoute, error) {
	m.lastOwnerID, m.lastWorkoutID = ownerID, workoutID
	return m.route, m.err
}
