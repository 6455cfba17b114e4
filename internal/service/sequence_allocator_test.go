package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

func TestSequenceAllocatorKeys(t *testing.T) {
	cfg := testIdentifierConfig()
	cfg.YearScoped = []string{"registration"}
	allocator := NewSequenceAllocator(newCounterStoreStub(), newTestFormatter(t, cfg), nil, nil)
	at := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "enquiry", allocator.Key(models.CategoryEnquiry, at))
	assert.Equal(t, "registration:2026", allocator.Key(models.CategoryRegistration, at))
}

func TestSequenceAllocatorCountsPerCategory(t *testing.T) {
	store := newCounterStoreStub()
	allocator := NewSequenceAllocator(store, newTestFormatter(t, testIdentifierConfig()), NewMetricsService(), nil)
	ctx := context.Background()
	now := time.Now()

	first, err := allocator.Next(ctx, models.CategoryEnquiry, now)
	require.NoError(t, err)
	second, err := allocator.Next(ctx, models.CategoryEnquiry, now)
	require.NoError(t, err)
	other, err := allocator.Next(ctx, models.CategoryAdmission, now)
	require.NoError(t, err)

	assert.EqualValues(t, 1, first)
	assert.EqualValues(t, 2, second)
	assert.EqualValues(t, 1, other)

	key, current, err := allocator.Current(ctx, models.CategoryEnquiry, now)
	require.NoError(t, err)
	assert.Equal(t, "enquiry", key)
	assert.EqualValues(t, 2, current)
}

func TestSequenceAllocatorYearScopeRestarts(t *testing.T) {
	cfg := testIdentifierConfig()
	cfg.YearScoped = []string{"registration"}
	allocator := NewSequenceAllocator(newCounterStoreStub(), newTestFormatter(t, cfg), nil, nil)
	ctx := context.Background()

	dec := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)
	jan := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)

	_, err := allocator.Next(ctx, models.CategoryRegistration, dec)
	require.NoError(t, err)
	last, err := allocator.Next(ctx, models.CategoryRegistration, dec)
	require.NoError(t, err)
	fresh, err := allocator.Next(ctx, models.CategoryRegistration, jan)
	require.NoError(t, err)

	assert.EqualValues(t, 2, last)
	assert.EqualValues(t, 1, fresh)
}

func TestSequenceAllocatorConcurrentValuesAreUnique(t *testing.T) {
	allocator := NewSequenceAllocator(newCounterStoreStub(), nil, nil, nil)
	const workers = 50

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := allocator.Next(context.Background(), models.CategoryAdmission, time.Now())
			if err != nil {
				return
			}
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers)
	for i := int64(1); i <= workers; i++ {
		assert.True(t, seen[i], "missing value %d", i)
	}
}

func TestSequenceAllocatorErrors(t *testing.T) {
	store := newCounterStoreStub()
	allocator := NewSequenceAllocator(store, nil, nil, nil)

	_, err := allocator.Next(context.Background(), "alumni", time.Now())
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
	assert.Zero(t, store.incCalls)

	store.incErr = errors.New("connection reset")
	_, err = allocator.Next(context.Background(), models.CategoryEnquiry, time.Now())
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrAllocation.Code))
	assert.Equal(t, appErrors.ErrAllocation.Status, appErrors.FromError(err).Status)
}
