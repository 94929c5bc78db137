// Package domain defines the entities and read-side workflows of the vitals store.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrOwnerNotFound is returned when no owner matches the supplied username.
	ErrOwnerNotFound = errors.New("owner not found")
	// ErrRouteNotFound is returned when a workout has no linked route.
	ErrRouteNotFound = errors.New("route not found")
	// ErrInvalidUsername rejects empty or whitespace-only usernames.
	ErrInvalidUsername = errors.New("invalid username")
)

// Repository captures the read operations served by the API.
type Repository interface {
	GetOwnerByUsername(ctx context.Context, username string) (*Owner, error)
	ListImports(ctx context.Context, ownerID string, limit int) ([]ImportRecord, error)
	ListWorkouts(ctx context.Context, ownerID string, cursor *Cursor, limit int) ([]Workout, *Cursor, error)
	GetRoute(ctx context.Context, ownerID string, workoutID int64) (*WorkoutRoute, error)
}

// Cursor models the workout pagination token.
type Cursor struct {
	StartTime time.Time
	ID        int64
}

// Service resolves owners and delegates to the repository.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) owner(ctx context.Context, username string) (*Owner, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrInvalidUsername
	}
	owner, err := s.repo.GetOwnerByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, ErrOwnerNotFound
	}
	return owner, nil
}

// ListImports returns the most recent import audit rows for the owner.
func (s *Service) ListImports(ctx context.Context, username string, limit int) ([]ImportRecord, error) {
	owner, err := s.owner(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.repo.ListImports(ctx, owner.ID, clampLimit(limit))
}

// ListWorkouts returns workouts newest first with cursor pagination.
func (s *Service) ListWorkouts(ctx context.Context, username string, cursor *Cursor, limit int) ([]Workout, *Cursor, error) {
	owner, err := s.owner(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	return s.repo.ListWorkouts(ctx, owner.ID, cursor, clampLimit(limit))
}

// GetWorkoutRoute fetches the decimated route linked to a workout.
func (s *Service) GetWorkoutRoute(ctx context.Context, username string, workoutID int64) (*WorkoutRoute, error) {
	owner, err := s.owner(ctx, username)
	if err != nil {
		return nil, err
	}
	route, err := s.repo.GetRoute(ctx, owner.ID, workoutID)
	if err != nil {
		return nil, err
	}
	if route == nil {
		return nil, ErrRouteNotFound
	}
	return route, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 200:
		return 200
	}
	return limit
}
