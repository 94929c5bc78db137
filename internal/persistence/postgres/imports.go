package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jordangarrison/vitals/internal/domain"
	"github.com/jordangarrison/vitals/internal/events"
	"github.com/jordangarrison/vitals/internal/observability"
)

// RecordImport appends the audit row for one phase and queues its
// import.completed event in the same transaction. Missing ids and timestamps are
// filled in and returned.
func (r *Repository) RecordImport(ctx context.Context, rec domain.ImportRecord) (domain.ImportRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ImportedAt.IsZero() {
		rec.ImportedAt = time.Now().UTC()
	}

	const stmt = `INSERT INTO import_history (id, owner_id, source_type, source_file, imported_at, records_imported, status, error_log)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	err := r.inOwnerTx(ctx, rec.OwnerID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, stmt,
			rec.ID,
			rec.OwnerID,
			rec.SourceType,
			rec.SourceFile,
			rec.ImportedAt,
			rec.RecordsImported,
			string(rec.Status),
			nullIfEmpty(rec.ErrorLog),
		); err != nil {
			return err
		}
		return r.insertOutbox(ctx, tx, rec, events.ImportCompletedType, events.ImportCompleted{
			ImportID:        rec.ID,
			OwnerID:         rec.OwnerID,
			SourceType:      rec.SourceType,
			SourceFile:      rec.SourceFile,
			RecordsImported: rec.RecordsImported,
			Status:          string(rec.Status),
			ImportedAt:      rec.ImportedAt,
			RoutesDir:       rec.RoutesDir,
		})
	})
	if err != nil {
		return domain.ImportRecord{}, err
	}
	observability.RecordImportCompleted(rec.SourceType, string(rec.Status), rec.ImportedAt)
	return rec, nil
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, rec domain.ImportRecord, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (owner_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		rec.OwnerID,
		"import",
		rec.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(rec),
		body,
		fmt.Sprintf("%s:%s", rec.ID, eventType),
	)
	return err
}

// ListImports returns the owner's most recent audit rows first.
func (r *Repository) ListImports(ctx context.Context, ownerID string, limit int) ([]domain.ImportRecord, error) {
	const query = `SELECT id, owner_id, source_type, source_file, imported_at, records_imported, status, COALESCE(error_log, '')
        FROM import_history WHERE owner_id = $1
        ORDER BY imported_at DESC, id DESC
        LIMIT $2`

	results := make([]domain.ImportRecord, 0, limit)
	err := r.inOwnerTx(ctx, ownerID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, ownerID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				rec    domain.ImportRecord
				status string
			)
			if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.SourceType, &rec.SourceFile, &rec.ImportedAt, &rec.RecordsImported, &status, &rec.ErrorLog); err != nil {
				return err
			}
			rec.Status = domain.ImportStatus(status)
			results = append(results, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.ImportRecord) string
}

var eventCatalog = map[string]EventMetadata{
	events.ImportCompletedType: {
		Topic:         events.ImportCompletedTopic,
		SchemaSubject: events.ImportCompletedTopic + "-value",
		PartitionKeyFn: func(rec domain.ImportRecord) string {
			return rec.OwnerID
		},
	},
}
