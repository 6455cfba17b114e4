package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admissions-api/internal/models"
)

type orphanLedgerStub struct {
	mu       sync.Mutex
	pending  []models.OrphanedBlob
	resolved []string
	failures map[string]int
	listErr  error
}

func (l *orphanLedgerStub) ListPending(ctx context.Context, limit, maxAttempts int) ([]models.OrphanedBlob, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listErr != nil {
		return nil, l.listErr
	}
	var out []models.OrphanedBlob
	for _, o := range l.pending {
		if o.Attempts+l.failures[o.ID] < maxAttempts {
			out = append(out, o)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (l *orphanLedgerStub) MarkResolved(ctx context.Context, id string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resolved = append(l.resolved, id)
	kept := l.pending[:0]
	for _, o := range l.pending {
		if o.ID != id {
			kept = append(kept, o)
		}
	}
	l.pending = kept
	return nil
}

func (l *orphanLedgerStub) RecordFailure(ctx context.Context, id string, cause string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failures == nil {
		l.failures = make(map[string]int)
	}
	l.failures[id]++
	return nil
}

func (l *orphanLedgerStub) CountPending(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending), nil
}

func TestOrphanSweeperSweepOnce(t *testing.T) {
	store := newObjectStoreStub()
	store.objects["admission/app-1/photo/1.png"] = []byte("x")
	store.objects["admission/app-1/photo/2.png"] = []byte("y")
	store.failDelete["admission/app-1/photo/2.png"] = true
	ledger := &orphanLedgerStub{pending: []models.OrphanedBlob{
		{ID: "o-1", BlobKey: "admission/app-1/photo/1.png"},
		{ID: "o-2", BlobKey: "admission/app-1/photo/2.png"},
	}}
	sweeper := NewOrphanSweeper(ledger, store, NewMetricsService(), zap.NewNop(), OrphanSweeperConfig{MaxAttempts: 2})

	result, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Attempted: 2, Resolved: 1, Failed: 1, Remaining: 1}, result)
	assert.Equal(t, []string{"o-1"}, ledger.resolved)
	assert.Equal(t, 1, ledger.failures["o-2"])

	// second failure spends the attempt budget
	_, err = sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	result, err = sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Attempted)
	assert.Equal(t, 1, result.Remaining)
}

func TestOrphanSweeperMissingBlobResolves(t *testing.T) {
	// deletes are idempotent, so an already removed blob counts as resolved
	ledger := &orphanLedgerStub{pending: []models.OrphanedBlob{{ID: "o-1", BlobKey: "gone.pdf"}}}
	sweeper := NewOrphanSweeper(ledger, newObjectStoreStub(), nil, nil, OrphanSweeperConfig{})

	result, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Resolved)
	assert.Zero(t, result.Remaining)
}

func TestOrphanSweeperListError(t *testing.T) {
	ledger := &orphanLedgerStub{listErr: errors.New("db down")}
	sweeper := NewOrphanSweeper(ledger, newObjectStoreStub(), nil, nil, OrphanSweeperConfig{})

	_, err := sweeper.SweepOnce(context.Background())
	require.Error(t, err)
}

func TestOrphanSweeperRunStopsOnCancel(t *testing.T) {
	ledger := &orphanLedgerStub{pending: []models.OrphanedBlob{{ID: "o-1", BlobKey: "a.pdf"}}}
	sweeper := NewOrphanSweeper(ledger, newObjectStoreStub(), nil, nil, OrphanSweeperConfig{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		count, _ := ledger.CountPending(context.Background())
		return count == 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
