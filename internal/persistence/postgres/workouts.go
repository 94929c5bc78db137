package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jordangarrison/vitals/internal/domain"
	"github.com/jordangarrison/vitals/internal/observability"
)

const workoutColumns = `id, owner_id, COALESCE(external_id, ''), activity_type, start_time, end_time, duration_minutes, distance_km, energy_kcal, COALESCE(source_name, ''), COALESCE(device, ''), has_route, metadata`

func scanWorkout(row pgx.Row) (domain.Workout, error) {
	var (
		w        domain.Workout
		metadata []byte
	)
	if err := row.Scan(&w.ID, &w.OwnerID, &w.ExternalID, &w.ActivityType, &w.StartTime, &w.EndTime, &w.DurationMinutes, &w.DistanceKm, &w.EnergyKcal, &w.SourceName, &w.Device, &w.HasRoute, &metadata); err != nil {
		return domain.Workout{}, err
	}
	if len(metadata) > 0 {
		w.Metadata = json.RawMessage(metadata)
	}
	return w, nil
}

// FindMatchingWorkout returns the owner's workout with the latest start whose
// span, widened by tolerance on both sides, contains at. Ties on start_time go
// to the highest id. It returns nil when nothing matches.
func (r *Repository) FindMatchingWorkout(ctx context.Context, ownerID string, at time.Time, tolerance time.Duration) (*domain.Workout, error) {
	query := `SELECT ` + workoutColumns + `
        FROM workouts
        WHERE owner_id = $1 AND start_time <= $2 AND end_time >= $3
        ORDER BY start_time DESC, id DESC
        LIMIT 1`

	var found *domain.Workout
	err := r.inOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		w, err := scanWorkout(tx.QueryRow(ctx, query, ownerID, at.Add(tolerance), at.Add(-tolerance)))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		found = &w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// LinkRoute stores the route for its workout, replacing any earlier link, and
// flags the workout as having a route. Both writes commit together.
func (r *Repository) LinkRoute(ctx context.Context, route domain.WorkoutRoute) error {
	points, err := json.Marshal(route.Points)
	if err != nil {
		return fmt.Errorf("encode route points: %w", err)
	}

	const upsertRoute = `INSERT INTO workout_routes (workout_id, owner_id, file_path, name, start_time, end_time, point_count, points)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (workout_id) DO UPDATE SET
            file_path = EXCLUDED.file_path,
            name = EXCLUDED.name,
            start_time = EXCLUDED.start_time,
            end_time = EXCLUDED.end_time,
            point_count = EXCLUDED.point_count,
            points = EXCLUDED.points`

	err = r.inOwnerTx(ctx, route.OwnerID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertRoute,
			route.WorkoutID,
			route.OwnerID,
			route.FilePath,
			nullIfEmpty(route.Name),
			route.StartTime,
			route.EndTime,
			route.PointCount,
			points,
		); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE workouts SET has_route = TRUE WHERE id = $1 AND owner_id = $2`, route.WorkoutID, route.OwnerID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("workout %d not found", route.WorkoutID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	observability.RecordRouteLinked(time.Now())
	return nil
}

// GetRoute returns the route linked to a workout, or nil when there is none.
func (r *Repository) GetRoute(ctx context.Context, ownerID string, workoutID int64) (*domain.WorkoutRoute, error) {
	const query = `SELECT id, workout_id, owner_id, file_path, COALESCE(name, ''), start_time, end_time, point_count, points, created_at
        FROM workout_routes WHERE owner_id = $1 AND workout_id = $2`

	var found *domain.WorkoutRoute
	err := r.inOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		var (
			route  domain.WorkoutRoute
			points []byte
		)
		err := tx.QueryRow(ctx, query, ownerID, workoutID).Scan(&route.ID, &route.WorkoutID, &route.OwnerID, &route.FilePath, &route.Name, &route.StartTime, &route.EndTime, &route.PointCount, &points, &route.CreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		if err := json.Unmarshal(points, &route.Points); err != nil {
			return fmt.Errorf("decode route points: %w", err)
		}
		found = &route
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// ListWorkouts returns the owner's workouts newest first. A non-nil cursor
// resumes strictly after the row it names.
func (r *Repository) ListWorkouts(ctx context.Context, ownerID string, cursor *domain.Cursor, limit int) ([]domain.Workout, *domain.Cursor, error) {
	args := []interface{}{ownerID, limit}
	query := `SELECT ` + workoutColumns + ` FROM workouts WHERE owner_id = $1`

	if cursor != nil {
		query += ` AND (start_time, id) < ($3, $4)`
		args = append(args, cursor.StartTime, cursor.ID)
	}
	query += ` ORDER BY start_time DESC, id DESC LIMIT $2`

	results := make([]domain.Workout, 0, limit)
	err := r.inOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			w, err := scanWorkout(rows)
			if err != nil {
				return err
			}
			results = append(results, w)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{StartTime: last.StartTime, ID: last.ID}
	}
	return results, next, nil
}
