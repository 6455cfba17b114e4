package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admissions-api/internal/models"
)

// CounterRepository owns the application_counters table.
type CounterRepository struct {
	db *sqlx.DB
}

// NewCounterRepository constructs the repository.
func NewCounterRepository(db *sqlx.DB) *CounterRepository {
	return &CounterRepository{db: db}
}

func (r *CounterRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Increment atomically bumps the counter for key and returns the new value.
// The row is created at 1 on first use. Concurrent callers serialise on the
// row lock taken by the upsert, so no two callers observe the same value.
func (r *CounterRepository) Increment(ctx context.Context, exec sqlx.ExtContext, key string) (int64, error) {
	const query = `INSERT INTO application_counters (key, value, updated_at)
	VALUES ($1, 1, now())
	ON CONFLICT (key) DO UPDATE SET value = application_counters.value + 1, updated_at = now()
	RETURNING value`
	var value int64
	if err := sqlx.GetContext(ctx, r.exec(exec), &value, query, key); err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", key, err)
	}
	return value, nil
}

// Current returns the last issued value for key, or zero when none was issued.
func (r *CounterRepository) Current(ctx context.Context, key string) (int64, error) {
	const query = `SELECT value FROM application_counters WHERE key = $1`
	var value int64
	if err := r.db.GetContext(ctx, &value, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read counter %s: %w", key, err)
	}
	return value, nil
}

// List returns every counter ordered by key.
func (r *CounterRepository) List(ctx context.Context) ([]models.Counter, error) {
	const query = `SELECT key, value, updated_at FROM application_counters ORDER BY key`
	var counters []models.Counter
	if err := r.db.SelectContext(ctx, &counters, query); err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}
	return counters, nil
}
