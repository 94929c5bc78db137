// Package api exposes the read-only HTTP surface over imported health data.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jordangarrison/vitals/internal/auth"
	"github.com/jordangarrison/vitals/internal/domain"
	"github.com/jordangarrison/vitals/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/imports", h.imports)
	mux.HandleFunc("/v1/workouts", h.workouts)
	mux.HandleFunc("/v1/workouts/", h.workoutRoute)
	mux.HandleFunc("/healthz", healthz)
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) imports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	owner, ok := authorize(w, r, auth.ScopeImportsRead)
	if !ok {
		return
	}

	records, err := h.service.ListImports(r.Context(), owner, parseLimit(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	items := make([]ImportView, 0, len(records))
	for _, rec := range records {
		items = append(items, toImportView(rec))
	}
	writeJSON(w, http.StatusOK, ListImportsResponse{Items: items})
}

func (h *Handler) workouts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	owner, ok := authorize(w, r, auth.ScopeWorkoutsRead)
	if !ok {
		return
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	workouts, next, err := h.service.ListWorkouts(r.Context(), owner, cursor, parseLimit(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	items := make([]WorkoutView, 0, len(workouts))
	for _, workout := range workouts {
		items = append(items, toWorkoutView(workout))
	}
	writeJSON(w, http.StatusOK, ListWorkoutsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

// workoutRoute serves GET /v1/workouts/{id}/route.
func (h *Handler) workoutRoute(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/workouts/")
	rawID, suffix, found := strings.Cut(rest, "/")
	if !found || suffix != "route" {
		writeError(w, http.StatusNotFound, "not_found", "unknown path")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	workoutID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || workoutID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid workout id")
		return
	}
	owner, ok := authorize(w, r, auth.ScopeWorkoutsRead)
	if !ok {
		return
	}

	route, err := h.service.GetWorkoutRoute(r.Context(), owner, workoutID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRouteView(*route))
}

// authorize checks the scope and resolves the owner. The owner query parameter
// defaults to the token subject and may not name anyone else.
func authorize(w http.ResponseWriter, r *http.Request, scope string) (string, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return "", false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return "", false
	}
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if owner == "" {
		owner = claims.Subject
	}
	if owner != claims.Subject {
		writeError(w, http.StatusForbidden, "forbidden", "token subject does not match owner")
		return "", false
	}
	return owner, true
}

func parseLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return 0
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidUsername):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrOwnerNotFound):
		writeError(w, http.StatusNotFound, "not_found", "owner not found")
	case errors.Is(err, domain.ErrRouteNotFound):
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

// ImportView is one import_history row.
type ImportView struct {
	ImportID        string    `json:"import_id"`
	SourceType      string    `json:"source_type"`
	SourceFile      string    `json:"source_file"`
	ImportedAt      time.Time `json:"imported_at"`
	RecordsImported int       `json:"records_imported"`
	Status          string    `json:"status"`
	ErrorLog        string    `json:"error_log,omitempty"`
}

// ListImportsResponse packages import history.
type ListImportsResponse struct {
	Items []ImportView `json:"items"`
}

// WorkoutView exposes a workout without its route points.
type WorkoutView struct {
	WorkoutID       int64           `json:"workout_id"`
	ExternalID      string          `json:"external_id,omitempty"`
	ActivityType    string          `json:"activity_type"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	DurationMinutes *float64        `json:"duration_minutes,omitempty"`
	DistanceKm      *float64        `json:"distance_km,omitempty"`
	EnergyKcal      *float64        `json:"energy_kcal,omitempty"`
	SourceName      string          `json:"source_name,omitempty"`
	Device          string          `json:"device,omitempty"`
	HasRoute        bool            `json:"has_route"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
}

// ListWorkoutsResponse packages a workout page.
type ListWorkoutsResponse struct {
	Items      []WorkoutView `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// RouteView is the decimated display copy of a linked track.
type RouteView struct {
	WorkoutID  int64               `json:"workout_id"`
	FilePath   string              `json:"file_path"`
	Name       string              `json:"name,omitempty"`
	StartTime  *time.Time          `json:"start_time,omitempty"`
	EndTime    *time.Time          `json:"end_time,omitempty"`
	PointCount int                 `json:"point_count"`
	Points     []domain.TrackPoint `json:"points"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"type":   code,
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toImportView(rec domain.ImportRecord) ImportView {
	return ImportView{
		ImportID:        rec.ID,
		SourceType:      rec.SourceType,
		SourceFile:      rec.SourceFile,
		ImportedAt:      rec.ImportedAt,
		RecordsImported: rec.RecordsImported,
		Status:          string(rec.Status),
		ErrorLog:        rec.ErrorLog,
	}
}

func toWorkoutView(w domain.Workout) WorkoutView {
	return WorkoutView{
		WorkoutID:       w.ID,
		ExternalID:      w.ExternalID,
		ActivityType:    w.ActivityType,
		StartTime:       w.StartTime,
		EndTime:         w.EndTime,
		DurationMinutes: w.DurationMinutes,
		DistanceKm:      w.DistanceKm,
		EnergyKcal:      w.EnergyKcal,
		SourceName:      w.SourceName,
		Device:          w.Device,
		HasRoute:        w.HasRoute,
		Metadata:        w.Metadata,
	}
}

func toRouteView(route domain.WorkoutRoute) RouteView {
	points := route.Points
	if points == nil {
		points = []domain.TrackPoint{}
	}
	return RouteView{
		WorkoutID:  route.WorkoutID,
		FilePath:   route.FilePath,
		Name:       route.Name,
		StartTime:  route.StartTime,
		EndTime:    route.EndTime,
		PointCount: route.PointCount,
		Points:     points,
	}
}
