package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/pkg/storage"
)

type orphanLedger interface {
	ListPending(ctx context.Context, limit, maxAttempts int) ([]models.OrphanedBlob, error)
	MarkResolved(ctx context.Context, id string, at time.Time) error
	RecordFailure(ctx context.Context, id string, cause string) error
	CountPending(ctx context.Context) (int, error)
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Attempted int `json:"attempted"`
	Resolved  int `json:"resolved"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

// OrphanSweeperConfig tunes the sweeper.
type OrphanSweeperConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	Timeout     time.Duration
}

// OrphanSweeper retries remote deletes that failed during release or replace.
type OrphanSweeper struct {
	ledger  orphanLedger
	store   storage.ObjectStore
	metrics *MetricsService
	logger  *zap.Logger
	cfg     OrphanSweeperConfig
	now     func() time.Time
}

// NewOrphanSweeper constructs the sweeper.
func NewOrphanSweeper(ledger orphanLedger, store storage.ObjectStore, metrics *MetricsService, logger *zap.Logger, cfg OrphanSweeperConfig) *OrphanSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &OrphanSweeper{ledger: ledger, store: store, metrics: metrics, logger: logger, cfg: cfg, now: time.Now}
}

// Run sweeps every interval until ctx is cancelled.
func (s *OrphanSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Warn("orphan sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce processes one batch of pending orphans.
func (s *OrphanSweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	orphans, err := s.ledger.ListPending(ctx, s.cfg.BatchSize, s.cfg.MaxAttempts)
	if err != nil {
		return result, err
	}
	for _, orphan := range orphans {
		if ctx.Err() != nil {
			break
		}
		result.Attempted++
		delCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		err := s.store.Delete(delCtx, orphan.BlobKey)
		cancel()
		if err != nil {
			result.Failed++
			s.logger.Warn("orphan delete retry failed", zap.String("key", orphan.BlobKey), zap.Int("attempts", orphan.Attempts+1), zap.Error(err))
			if recErr := s.ledger.RecordFailure(ctx, orphan.ID, err.Error()); recErr != nil {
				s.logger.Error("failed to record orphan failure", zap.String("id", orphan.ID), zap.Error(recErr))
			}
			continue
		}
		if err := s.ledger.MarkResolved(ctx, orphan.ID, s.now().UTC()); err != nil {
			s.logger.Error("failed to resolve orphan", zap.String("id", orphan.ID), zap.Error(err))
			continue
		}
		result.Resolved++
	}

	remaining, err := s.ledger.CountPending(ctx)
	if err != nil {
		return result, err
	}
	result.Remaining = remaining
	s.metrics.SetOrphansPending(remaining)
	if result.Attempted > 0 {
		s.logger.Info("orphan sweep finished",
			zap.Int("attempted", result.Attempted),
			zap.Int("resolved", result.Resolved),
			zap.Int("failed", result.Failed),
			zap.Int("remaining", remaining),
		)
	}
	return result, nil
}
