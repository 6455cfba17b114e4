package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admissions-api/internal/models"
)

// OrphanRepository tracks blobs whose remote delete failed.
type OrphanRepository struct {
	db *sqlx.DB
}

// NewOrphanRepository constructs the repository.
func NewOrphanRepository(db *sqlx.DB) *OrphanRepository {
	return &OrphanRepository{db: db}
}

// Create records a new orphan.
func (r *OrphanRepository) Create(ctx context.Context, orphan *models.OrphanedBlob) error {
	if orphan.ID == "" {
		orphan.ID = uuid.NewString()
	}
	if orphan.CreatedAt.IsZero() {
		orphan.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO orphaned_blobs (id, blob_key, application_id, role, reason, attempts, last_error, created_at)
	VALUES (:id, :blob_key, :application_id, :role, :reason, :attempts, :last_error, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, orphan); err != nil {
		return fmt.Errorf("create orphaned blob: %w", err)
	}
	return nil
}

// ListPending returns unresolved orphans that still have attempts left, oldest first.
func (r *OrphanRepository) ListPending(ctx context.Context, limit, maxAttempts int) ([]models.OrphanedBlob, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, blob_key, application_id, role, reason, attempts, last_error, created_at, resolved_at
	FROM orphaned_blobs
	WHERE resolved_at IS NULL AND attempts < $1
	ORDER BY created_at
	LIMIT $2`
	var orphans []models.OrphanedBlob
	if err := r.db.SelectContext(ctx, &orphans, query, maxAttempts, limit); err != nil {
		return nil, fmt.Errorf("list orphaned blobs: %w", err)
	}
	return orphans, nil
}

// MarkResolved closes an orphan after its blob was deleted.
func (r *OrphanRepository) MarkResolved(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE orphaned_blobs SET resolved_at = $2, attempts = attempts + 1, last_error = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("resolve orphaned blob: %w", err)
	}
	return nil
}

// RecordFailure bumps the attempt counter and stores the last error.
func (r *OrphanRepository) RecordFailure(ctx context.Context, id string, cause string) error {
	const query = `UPDATE orphaned_blobs SET attempts = attempts + 1, last_error = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, cause); err != nil {
		return fmt.Errorf("record orphan failure: %w", err)
	}
	return nil
}

// CountPending returns the number of unresolved orphans.
func (r *OrphanRepository) CountPending(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM orphaned_blobs WHERE resolved_at IS NULL`); err != nil {
		return 0, fmt.Errorf("count orphaned blobs: %w", err)
	}
	return total, nil
}
