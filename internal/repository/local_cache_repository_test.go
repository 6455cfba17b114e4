package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

func TestLocalCacheRepositoryRoundTrip(t *testing.T) {
	repo := NewLocalCacheRepository(8, time.Minute)
	ctx := context.Background()

	var dest map[string]string
	assert.ErrorIs(t, repo.Get(ctx, "verify:ADM000001", &dest), appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "verify:ADM000001", map[string]string{"status": "approved"}, 0))
	require.NoError(t, repo.Get(ctx, "verify:ADM000001", &dest))
	assert.Equal(t, "approved", dest["status"])
}

func TestLocalCacheRepositoryPerEntryTTL(t *testing.T) {
	repo := NewLocalCacheRepository(8, time.Hour)
	now := time.Now()
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "k", 1, time.Second))
	repo.now = func() time.Time { return now.Add(2 * time.Second) }

	var dest int
	assert.ErrorIs(t, repo.Get(ctx, "k", &dest), appErrors.ErrCacheMiss)
	assert.Zero(t, repo.Len())
}

func TestLocalCacheRepositoryDelete(t *testing.T) {
	repo := NewLocalCacheRepository(8, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "verify:ADM000001", "a", 0))
	require.NoError(t, repo.Set(ctx, "verify:ENQ000001", "b", 0))
	require.NoError(t, repo.Set(ctx, "verify:ATAT000001", "c", 0))

	require.NoError(t, repo.Delete(ctx, "verify:ADM000001", "verify:ENQ000001", "verify:missing"))
	assert.Equal(t, 1, repo.Len())
	require.NoError(t, repo.Delete(ctx))
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "admissions:", nil)
	ctx := context.Background()

	assert.Equal(t, "admissions:verify:ADM000001", repo.key("verify:ADM000001"))
	var dest string
	assert.ErrorIs(t, repo.Get(ctx, "verify:ADM000001", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "verify:ADM000001", "x", time.Minute))
	assert.NoError(t, repo.Delete(ctx, "verify:ADM000001"))
	assert.NoError(t, repo.Close())
	assert.Equal(t, "k", NewCacheRepository(nil, "", nil).key("k"))
}
