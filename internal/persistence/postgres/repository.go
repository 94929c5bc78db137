// Package postgres implements the vitals store on Postgres.
//
// Every owner-scoped statement runs inside a transaction that first sets
// app.owner_id so row level security policies apply alongside the explicit
// owner_id predicates.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jordangarrison/vitals/internal/domain"
)

// Repository provides Postgres-backed persistence for every ingested source.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// inOwnerTx runs fn inside one transaction scoped to ownerID. The transaction is
// rolled back when fn or the commit fails.
func (r *Repository) inOwnerTx(ctx context.Context, ownerID string, fn func(pgx.Tx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.owner_id', $1, true)", ownerID); err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// sendBatch executes every queued statement and closes the batch results.
func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return err
		}
	}
	return results.Close()
}

// GetOrCreateOwner resolves a username to its owner row, creating it on first use.
func (r *Repository) GetOrCreateOwner(ctx context.Context, username string) (*domain.Owner, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, domain.ErrInvalidUsername
	}

	const stmt = `INSERT INTO owners (id, username) VALUES ($1, $2)
        ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
        RETURNING id, username, created_at`

	var owner domain.Owner
	if err := r.pool.QueryRow(ctx, stmt, uuid.NewString(), username).Scan(&owner.ID, &owner.Username, &owner.CreatedAt); err != nil {
		return nil, err
	}
	return &owner, nil
}

// GetOwnerByUsername returns nil when the username is unknown.
func (r *Repository) GetOwnerByUsername(ctx context.Context, username string) (*domain.Owner, error) {
	const query = `SELECT id, username, created_at FROM owners WHERE username = $1`

	var owner domain.Owner
	if err := r.pool.QueryRow(ctx, query, username).Scan(&owner.ID, &owner.Username, &owner.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &owner, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// nullJSON keeps absent documents as SQL NULL rather than a JSON null literal.
func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func ownerOf[T any](items []T, owner func(T) string) string {
	if len(items) == 0 {
		return ""
	}
	return owner(items[0])
}
