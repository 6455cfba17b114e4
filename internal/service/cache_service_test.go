package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/internal/repository"
)

type brokenCacheRepo struct{ deleted []string }

func (r *brokenCacheRepo) Get(context.Context, string, interface{}) error {
	return errors.New("connection reset")
}

func (r *brokenCacheRepo) Set(context.Context, string, interface{}, time.Duration) error {
	return errors.New("connection reset")
}

func (r *brokenCacheRepo) Delete(_ context.Context, keys ...string) error {
	r.deleted = append(r.deleted, keys...)
	return errors.New("connection reset")
}

func TestVerificationCacheStoreLookupForget(t *testing.T) {
	metrics := NewMetricsService()
	cache := NewVerificationCache(repository.NewLocalCacheRepository(8, time.Hour), metrics, time.Minute, nil, true)
	ctx := context.Background()

	_, hit := cache.Lookup(ctx, "ADM000001")
	assert.False(t, hit)

	cache.Store(ctx, &models.Verification{ExternalID: "ADM000001", Status: models.StatusApproved})
	got, hit := cache.Lookup(ctx, " adm000001 ")
	require.True(t, hit)
	assert.Equal(t, models.StatusApproved, got.Status)

	cache.Forget(ctx, "ADM000001", "")
	_, hit = cache.Lookup(ctx, "ADM000001")
	assert.False(t, hit)

	snapshot := metrics.Snapshot()
	assert.EqualValues(t, 1, snapshot.CacheHits)
	assert.EqualValues(t, 2, snapshot.CacheMisses)
}

func TestVerificationCacheDisabled(t *testing.T) {
	repo := repository.NewLocalCacheRepository(8, time.Hour)
	cache := NewVerificationCache(repo, nil, 0, nil, false)
	ctx := context.Background()

	cache.Store(ctx, &models.Verification{ExternalID: "ENQ000001"})
	_, hit := cache.Lookup(ctx, "ENQ000001")
	assert.False(t, hit)
	assert.Zero(t, repo.Len())

	var nilCache *VerificationCache
	assert.False(t, nilCache.Enabled())
}

func TestVerificationCacheSwallowsStoreErrors(t *testing.T) {
	repo := &brokenCacheRepo{}
	cache := NewVerificationCache(repo, nil, time.Minute, nil, true)
	ctx := context.Background()

	_, hit := cache.Lookup(ctx, "ATAT000003")
	assert.False(t, hit)
	cache.Store(ctx, &models.Verification{ExternalID: "ATAT000003"})
	cache.Forget(ctx, "ATAT000003")
	assert.Equal(t, []string{"verify:ATAT000003"}, repo.deleted)
}
