package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jordangarrison/vitals/internal/domain"
	"github.com/jordangarrison/vitals/internal/observability"
)

const upsertNutrition = `INSERT INTO nutrition (owner_id, date, calories, protein_g, carbs_g, fat_g, fiber_g, calcium_mg, iron_mg, magnesium_mg, potassium_mg, sodium_mg, zinc_mg, vitamin_c_mg, vitamin_d_mcg, source_name)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
    ON CONFLICT (owner_id, date) DO UPDATE SET
        calories = COALESCE(EXCLUDED.calories, nutrition.calories),
        protein_g = COALESCE(EXCLUDED.protein_g, nutrition.protein_g),
        carbs_g = COALESCE(EXCLUDED.carbs_g, nutrition.carbs_g),
        fat_g = COALESCE(EXCLUDED.fat_g, nutrition.fat_g),
        fiber_g = COALESCE(EXCLUDED.fiber_g, nutrition.fiber_g),
        calcium_mg = COALESCE(EXCLUDED.calcium_mg, nutrition.calcium_mg),
        iron_mg = COALESCE(EXCLUDED.iron_mg, nutrition.iron_mg),
        magnesium_mg = COALESCE(EXCLUDED.magnesium_mg, nutrition.magnesium_mg),
        potassium_mg = COALESCE(EXCLUDED.potassium_mg, nutrition.potassium_mg),
        sodium_mg = COALESCE(EXCLUDED.sodium_mg, nutrition.sodium_mg),
        zinc_mg = COALESCE(EXCLUDED.zinc_mg, nutrition.zinc_mg),
        vitamin_c_mg = COALESCE(EXCLUDED.vitamin_c_mg, nutrition.vitamin_c_mg),
        vitamin_d_mcg = COALESCE(EXCLUDED.vitamin_d_mcg, nutrition.vitamin_d_mcg),
        source_name = COALESCE(EXCLUDED.source_name, nutrition.source_name)`

// UpsertNutrition merges daily nutrition rows; columns absent from a sheet keep
// the values another sheet already stored for that day.
func (r *Repository) UpsertNutrition(ctx context.Context, rows []domain.Nutrition) error {
	if len(rows) == 0 {
		return nil
	}
	ownerID := ownerOf(rows, func(n domain.Nutrition) string { return n.OwnerID })

	err := r.inOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, n := range rows {
			batch.Queue(upsertNutrition,
				n.OwnerID, n.Date,
				n.Calories, n.ProteinG, n.CarbsG, n.FatG, n.FiberG,
				n.CalciumMg, n.IronMg, n.MagnesiumMg, n.PotassiumMg, n.SodiumMg, n.ZincMg,
				n.VitaminCMg, n.VitaminDMcg,
				nullIfEmpty(n.SourceName),
			)
		}
		return sendBatch(ctx, tx, batch)
	})
	if err != nil {
		return err
	}
	observability.RecordRowsCommitted("nutrition", len(rows))
	return nil
}

const upsertBodyMetrics = `INSERT INTO body_metrics (owner_id, date, weight_kg, body_fat_percent, bmi, lean_body_mass_kg, chest_cm, waist_cm, hips_cm, source_name)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    ON CONFLICT (owner_id, date) DO UPDATE SET
        weight_kg = COALESCE(EXCLUDED.weight_kg, body_metrics.weight_kg),
        body_fat_percent = COALESCE(EXCLUDED.body_fat_percent, body_metrics.body_fat_percent),
        bmi = COALESCE(EXCLUDED.bmi, body_metrics.bmi),
        lean_body_mass_kg = COALESCE(EXCLUDED.lean_body_mass_kg, body_metrics.lean_body_mass_kg),
        chest_cm = COALESCE(EXCLUDED.chest_cm, body_metrics.chest_cm),
        waist_cm = COALESCE(EXCLUDED.waist_cm, body_metrics.waist_cm),
        hips_cm = COALESCE(EXCLUDED.hips_cm, body_metrics.hips_cm),
        source_name = COALESCE(EXCLUDED.source_name, body_metrics.source_name)`

// UpsertBodyMetrics merges daily body measurements.
func (r *Repository) UpsertBodyMetrics(ctx context.Context, rows []domain.BodyMetrics) error {
	if len(rows) == 0 {
		return nil
	}
	ownerID := ownerOf(rows, func(b domain.BodyMetrics) string { return b.OwnerID })

	err := r.inOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, b := range rows {
			batch.Queue(upsertBodyMetrics,
				b.OwnerID, b.Date,
				b.WeightKg, b.BodyFatPercent, b.BMI, b.LeanBodyMassKg,
				b.ChestCm, b.WaistCm, b.HipsCm,
				nullIfEmpty(b.SourceName),
			)
		}
		return sendBatch(ctx, tx, batch)
	})
	if err != nil {
		return err
	}
	observability.RecordRowsCommitted("body_metrics", len(rows))
	return nil
}

const insertECG = `INSERT INTO ecg_recordings (owner_id, recorded_at, classification, symptoms, average_heart_rate, software_version, device, sample_rate_hz, lead, unit, file_path, waveform)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
    ON CONFLICT ON CONSTRAINT ecg_recordings_identity DO UPDATE SET
        classification = EXCLUDED.classification,
        symptoms = EXCLUDED.symptoms,
        average_heart_rate = EXCLUDED.average_heart_rate,
        software_version = EXCLUDED.software_version,
        device = EXCLUDED.device,
        sample_rate_hz = EXCLUDED.sample_rate_hz,
        lead = EXCLUDED.lead,
        unit = EXCLUDED.unit,
        file_path = EXCLUDED.file_path,
        waveform = EXCLUDED.waveform`

// InsertECGRecordings stores recordings with their decimated waveforms. A recording
// already stored for the same instant is replaced.
func (r *Repository) InsertECGRecordings(ctx context.Context, recordings []domain.ECGRecording) error {
	if len(recordings) == 0 {
		return nil
	}
	ownerID := ownerOf(recordings, func(e domain.ECGRecording) string { return e.OwnerID })

	err := r.inOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range recordings {
			waveform, err := json.Marshal(e.Waveform)
			if err != nil {
				return fmt.Errorf("encode waveform %s: %w", e.FilePath, err)
			}
			batch.Queue(insertECG,
				e.OwnerID,
				e.RecordedAt,
				nullIfEmpty(e.Classification),
				nullIfEmpty(e.Symptoms),
				e.AverageHeartRate,
				nullIfEmpty(e.SoftwareVersion),
				nullIfEmpty(e.Device),
				e.SampleRateHz,
				nullIfEmpty(e.Lead),
				nullIfEmpty(e.Unit),
				e.FilePath,
				waveform,
			)
		}
		return sendBatch(ctx, tx, batch)
	})
	if err != nil {
		return err
	}
	observability.RecordRowsCommitted("ecg_recordings", len(recordings))
	return nil
}

const upsertClinical = `INSERT INTO clinical_records (owner_id, resource_type, resource_id, recorded_at, display_name, code, code_system, value_text, value_quantity, value_unit, file_path, raw)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
    ON CONFLICT ON CONSTRAINT clinical_records_identity DO UPDATE SET
        resource_type = EXCLUDED.resource_type,
        recorded_at = EXCLUDED.recorded_at,
        display_name = EXCLUDED.display_name,
        code = EXCLUDED.code,
        code_system = EXCLUDED.code_system,
        value_text = EXCLUDED.value_text,
        value_quantity = EXCLUDED.value_quantity,
        value_unit = EXCLUDED.value_unit,
        file_path = EXCLUDED.file_path,
        raw = EXCLUDED.raw`

// UpsertClinicalRecords stores FHIR resources keyed by their resource id.
func (r *Repository) UpsertClinicalRecords(ctx context.Context, records []domain.ClinicalRecord) error {
	if len(records) == 0 {
		return nil
	}
	ownerID := ownerOf(records, func(c domain.ClinicalRecord) string { return c.OwnerID })

	err := r.inOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, c := range records {
			batch.Queue(upsertClinical,
				c.OwnerID,
				c.ResourceType,
				c.ResourceID,
				c.RecordedAt,
				nullIfEmpty(c.DisplayName),
				nullIfEmpty(c.Code),
				nullIfEmpty(c.CodeSystem),
				nullIfEmpty(c.ValueText),
				c.ValueQuantity,
				nullIfEmpty(c.ValueUnit),
				c.FilePath,
				nullJSON(c.RawJSON),
			)
		}
		return sendBatch(ctx, tx, batch)
	})
	if err != nil {
		return err
	}
	observability.RecordRowsCommitted("clinical_records", len(records))
	return nil
}
