package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

type counterStore interface {
	Increment(ctx context.Context, exec sqlx.ExtContext, key string) (int64, error)
	Current(ctx context.Context, key string) (int64, error)
}

type yearScoper interface {
	YearScoped(category models.ApplicationCategory) bool
}

// SequenceAllocator hands out per-category sequence values backed by a
// durable counter row. Values are never returned or reused, so an aborted
// approval leaves a gap rather than a duplicate.
type SequenceAllocator struct {
	store   counterStore
	scope   yearScoper
	metrics *MetricsService
	logger  *zap.Logger
}

// NewSequenceAllocator constructs the allocator. scope decides which
// categories restart their sequence every calendar year.
func NewSequenceAllocator(store counterStore, scope yearScoper, metrics *MetricsService, logger *zap.Logger) *SequenceAllocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SequenceAllocator{store: store, scope: scope, metrics: metrics, logger: logger}
}

// Key returns the counter key for category at the given instant.
func (a *SequenceAllocator) Key(category models.ApplicationCategory, at time.Time) string {
	if a.scope != nil && a.scope.YearScoped(category) {
		return fmt.Sprintf("%s:%d", category, at.Year())
	}
	return string(category)
}

// Next allocates a value in its own statement.
func (a *SequenceAllocator) Next(ctx context.Context, category models.ApplicationCategory, at time.Time) (int64, error) {
	return a.NextWithin(ctx, nil, category, at)
}

// NextWithin allocates a value using exec, typically the approval
// transaction, so the bump commits or rolls back with the record update.
func (a *SequenceAllocator) NextWithin(ctx context.Context, exec sqlx.ExtContext, category models.ApplicationCategory, at time.Time) (int64, error) {
	if !category.Valid() {
		return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown category %q", category))
	}
	key := a.Key(category, at)
	start := time.Now()
	value, err := a.store.Increment(ctx, exec, key)
	a.metrics.ObserveDBQuery("counter_increment", time.Since(start))
	if err != nil {
		a.logger.Error("counter increment failed", zap.String("key", key), zap.Error(err))
		return 0, appErrors.Wrap(err, appErrors.ErrAllocation.Code, appErrors.ErrAllocation.Status, "failed to allocate identifier sequence")
	}
	if value < 1 {
		return 0, appErrors.Clone(appErrors.ErrAllocation, fmt.Sprintf("counter %s returned %d", key, value))
	}
	return value, nil
}

// Current reads the last issued value without incrementing.
func (a *SequenceAllocator) Current(ctx context.Context, category models.ApplicationCategory, at time.Time) (string, int64, error) {
	if !category.Valid() {
		return "", 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown category %q", category))
	}
	key := a.Key(category, at)
	value, err := a.store.Current(ctx, key)
	if err != nil {
		return key, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read counter")
	}
	return key, value, nil
}
