package routes

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jordangarrison/vitals/internal/decimate"
	"github.com/jordangarrison/vitals/internal/domain"
)

// DefaultTolerance is the slack applied on both sides of a workout when matching.
const DefaultTolerance = 5 * time.Minute

// Store resolves candidate workouts and persists links.
type Store interface {
	FindMatchingWorkout(ctx context.Context, ownerID string, at time.Time, tolerance time.Duration) (*domain.Workout, error)
	LinkRoute(ctx context.Context, route domain.WorkoutRoute) error
}

// MatchStats summarises one directory pass.
type MatchStats struct {
	FilesProcessed int
	Linked         int
	Unlinked       int
	Errors         []string
}

// Option configures the Matcher.
type Option func(*Matcher)

// WithLogger overrides the matcher logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Matcher) {
		m.logger = logger
	}
}

// WithTolerance overrides DefaultTolerance.
func WithTolerance(d time.Duration) Option {
	return func(m *Matcher) {
		if d >= 0 {
			m.tolerance = d
		}
	}
}

// Matcher links track files to persisted workouts.
type Matcher struct {
	store     Store
	tolerance time.Duration
	logger    *log.Logger
}

// NewMatcher constructs a Matcher.
func NewMatcher(store Store, opts ...Option) *Matcher {
	m := &Matcher{
		store:     store,
		tolerance: DefaultTolerance,
		logger:    log.New(log.Writer(), "[routes] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tolerance returns the configured match window.
func (m *Matcher) Tolerance() time.Duration { return m.tolerance }

// MatchDirectory processes every track file in dir in name order. Per-file
// failures are collected in MatchStats.Errors; only an unreadable directory
// returns an error.
func (m *Matcher) MatchDirectory(ctx context.Context, ownerID, dir string) (MatchStats, error) {
	var stats MatchStats

	entries, err := os.ReadDir(dir)
	if err != nil {
		return stats, fmt.Errorf("read routes directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !Supported(entry.Name()) {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	m.logger.Printf("found %d track files in %s", len(files), dir)

	for _, name := range files {
		linked, err := m.MatchFile(ctx, ownerID, filepath.Join(dir, name))
		if err != nil {
			if errors.Is(err, ErrNoTimedPoints) {
				stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", name, err))
			} else {
				stats.Errors = append(stats.Errors, fmt.Sprintf("failed to process %s: %v", name, err))
			}
			recordOutcome(outcomeError)
			continue
		}
		stats.FilesProcessed++
		if linked {
			stats.Linked++
			recordOutcome(outcomeLinked)
		} else {
			stats.Unlinked++
			recordOutcome(outcomeUnlinked)
		}
	}

	m.logger.Printf("processed %d track files, %d linked, %d unlinked, %d errors",
		stats.FilesProcessed, stats.Linked, stats.Unlinked, len(stats.Errors))
	return stats, nil
}

// MatchFile parses one track and links it to the latest workout overlapping its
// start time. It reports false when no workout matches.
func (m *Matcher) MatchFile(ctx context.Context, ownerID, path string) (bool, error) {
	track, err := ParseFile(path)
	if err != nil {
		return false, err
	}
	start, end, err := track.Bounds()
	if err != nil {
		return false, err
	}

	workout, err := m.store.FindMatchingWorkout(ctx, ownerID, start, m.tolerance)
	if err != nil {
		return false, fmt.Errorf("find workout: %w", err)
	}
	if workout == nil {
		return false, nil
	}

	points := decimate.Every(track.Points, decimate.RouteFactor(len(track.Points)))
	route := domain.WorkoutRoute{
		WorkoutID:  workout.ID,
		OwnerID:    ownerID,
		FilePath:   path,
		Name:       track.Name,
		StartTime:  &start,
		EndTime:    &end,
		PointCount: len(points),
		Points:     points,
	}
	if err := m.store.LinkRoute(ctx, route); err != nil {
		return false, fmt.Errorf("link route to workout %d: %w", workout.ID, err)
	}
	return true, nil
}

// Overlaps reports whether t falls inside the workout widened by tol on both sides:
// start <= t+tol and end >= t-tol.
func Overlaps(w domain.Workout, t time.Time, tol time.Duration) bool {
	return !w.StartTime.After(t.Add(tol)) && !w.EndTime.Before(t.Add(-tol))
}

// Best picks the overlapping workout with the latest start, breaking ties on the
// higher id. It returns nil when nothing overlaps.
func Best(candidates []domain.Workout, t time.Time, tol time.Duration) *domain.Workout {
	var best *domain.Workout
	for i := range candidates {
		w := &candidates[i]
		if !Overlaps(*w, t, tol) {
			continue
		}
		if best == nil || w.StartTime.After(best.StartTime) ||
			(w.StartTime.Equal(best.StartTime) && w.ID > best.ID) {
			best = w
		}
	}
	return best
}
