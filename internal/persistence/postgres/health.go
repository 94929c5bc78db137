package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/jordangarrison/vitals/internal/domain"
	"github.com/jordangarrison/vitals/internal/observability"
)

const insertHealthRecord = `INSERT INTO health_metrics (owner_id, metric_type, value, unit, source_name, source_version, device, start_time, end_time, creation_time, metadata)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    ON CONFLICT ON CONSTRAINT health_metrics_identity DO UPDATE SET
        value = EXCLUDED.value,
        unit = EXCLUDED.unit,
        source_version = EXCLUDED.source_version,
        device = EXCLUDED.device,
        creation_time = EXCLUDED.creation_time,
        metadata = EXCLUDED.metadata`

// InsertHealthRecords writes one batch of records in a single transaction. A record
// that collides on (owner, metric, start, end, source) replaces the stored row.
func (r *Repository) InsertHealthRecords(ctx context.Context, records []domain.HealthRecord) error {
	if len(records) == 0 {
		return nil
	}
	ownerID := ownerOf(records, func(rec domain.HealthRecord) string { return rec.OwnerID })

	err := r.inOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range records {
			batch.Queue(insertHealthRecord,
				rec.OwnerID,
				rec.MetricType,
				rec.Value,
				rec.Unit,
				rec.SourceName,
				nullIfEmpty(rec.SourceVersion),
				nullIfEmpty(rec.Device),
				rec.StartTime,
				rec.EndTime,
				rec.CreationTime,
				nullJSON(rec.Metadata),
			)
		}
		return sendBatch(ctx, tx, batch)
	})
	if err != nil {
		return err
	}
	observability.RecordRowsCommitted("health_metrics", len(records))
	return nil
}

const upsertWorkout = `INSERT INTO workouts (owner_id, external_id, activity_type, start_time, end_time, duration_minutes, distance_km, energy_kcal, source_name, device, metadata)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    ON CONFLICT ON CONSTRAINT workouts_identity DO UPDATE SET
        activity_type = COALESCE(EXCLUDED.activity_type, workouts.activity_type),
        start_time = COALESCE(EXCLUDED.start_time, workouts.start_time),
        end_time = COALESCE(EXCLUDED.end_time, workouts.end_time),
        duration_minutes = COALESCE(EXCLUDED.duration_minutes, workouts.duration_minutes),
        distance_km = COALESCE(EXCLUDED.distance_km, workouts.distance_km),
        energy_kcal = COALESCE(EXCLUDED.energy_kcal, workouts.energy_kcal),
        source_name = COALESCE(EXCLUDED.source_name, workouts.source_name),
        device = COALESCE(EXCLUDED.device, workouts.device),
        metadata = COALESCE(EXCLUDED.metadata, workouts.metadata)`

// UpsertWorkouts writes one batch of workouts. On an identity collision non-null
// incoming columns win and null ones keep the stored value; has_route is never
// touched here.
func (r *Repository) UpsertWorkouts(ctx context.Context, workouts []domain.Workout) error {
	if len(workouts) == 0 {
		return nil
	}
	ownerID := ownerOf(workouts, func(w domain.Workout) string { return w.OwnerID })

	err := r.inOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, w := range workouts {
			batch.Queue(upsertWorkout,
				w.OwnerID,
				nullIfEmpty(w.ExternalID),
				w.ActivityType,
				w.StartTime,
				w.EndTime,
				w.DurationMinutes,
				w.DistanceKm,
				w.EnergyKcal,
				nullIfEmpty(w.SourceName),
				nullIfEmpty(w.Device),
				nullJSON(w.Metadata),
			)
		}
		return sendBatch(ctx, tx, batch)
	})
	if err != nil {
		return err
	}
	observability.RecordRowsCommitted("workouts", len(workouts))
	return nil
}

// UpsertActivitySummary writes one day's rings, overwriting any stored day.
func (r *Repository) UpsertActivitySummary(ctx context.Context, s domain.ActivitySummary) error {
	const stmt = `INSERT INTO activity_summaries (owner_id, date, active_energy_burned, active_energy_burned_goal, move_time_minutes, move_time_goal_minutes, exercise_time_minutes, exercise_time_goal_minutes, stand_hours, stand_hours_goal)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (owner_id, date) DO UPDATE SET
            active_energy_burned = EXCLUDED.active_energy_burned,
            active_energy_burned_goal = EXCLUDED.active_energy_burned_goal,
            move_time_minutes = EXCLUDED.move_time_minutes,
            move_time_goal_minutes = EXCLUDED.move_time_goal_minutes,
            exercise_time_minutes = EXCLUDED.exercise_time_minutes,
            exercise_time_goal_minutes = EXCLUDED.exercise_time_goal_minutes,
            stand_hours = EXCLUDED.stand_hours,
            stand_hours_goal = EXCLUDED.stand_hours_goal`

	err := r.inOwnerTx(ctx, s.OwnerID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, stmt,
			s.OwnerID,
			s.Date,
			s.ActiveEnergyBurned,
			s.ActiveEnergyBurnedGoal,
			s.MoveTimeMinutes,
			s.MoveTimeGoalMinutes,
			s.ExerciseTimeMinutes,
			s.ExerciseTimeGoal,
			s.StandHours,
			s.StandHoursGoal,
		)
		return err
	})
	if err != nil {
		return err
	}
	observability.RecordRowsCommitted("activity_summaries", 1)
	return nil
}

// UpsertProfile stores the owner's characteristics.
func (r *Repository) UpsertProfile(ctx context.Context, p domain.UserProfile) error {
	const stmt = `INSERT INTO user_profile (owner_id, date_of_birth, biological_sex, blood_type, fitzpatrick_skin_type, cardio_fitness_medications_use, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6, NOW())
        ON CONFLICT (owner_id) DO UPDATE SET
            date_of_birth = EXCLUDED.date_of_birth,
            biological_sex = EXCLUDED.biological_sex,
            blood_type = EXCLUDED.blood_type,
            fitzpatrick_skin_type = EXCLUDED.fitzpatrick_skin_type,
            cardio_fitness_medications_use = EXCLUDED.cardio_fitness_medications_use,
            updated_at = NOW()`

	return r.inOwnerTx(ctx, p.OwnerID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, stmt,
			p.OwnerID,
			p.DateOfBirth,
			nullIfEmpty(p.BiologicalSex),
			nullIfEmpty(p.BloodType),
			nullIfEmpty(p.FitzpatrickSkinType),
			nullIfEmpty(p.CardioFitnessMedicationsUse),
		)
		return err
	})
}
