package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

const verifyKeyPrefix = "verify:"

// CacheRepository abstracts the JSON key/value store behind the verification cache.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// VerificationCache keeps public lookups of issued identifiers off the
// database. Failures are logged and treated as misses; the cache never
// fails a request.
type VerificationCache struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewVerificationCache constructs the cache. A disabled cache answers every
// lookup with a miss.
func NewVerificationCache(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *VerificationCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerificationCache{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (c *VerificationCache) Enabled() bool {
	return c != nil && c.enabled && c.repo != nil
}

func verifyKey(code string) string {
	return verifyKeyPrefix + strings.ToUpper(strings.TrimSpace(code))
}

// Lookup returns the cached verification for code, if any.
func (c *VerificationCache) Lookup(ctx context.Context, code string) (*models.Verification, bool) {
	if !c.Enabled() {
		return nil, false
	}
	start := time.Now()
	var cached models.Verification
	err := c.repo.Get(ctx, verifyKey(code), &cached)
	c.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			c.logger.Warn("verification cache read failed", zap.String("code", code), zap.Error(err))
		}
		return nil, false
	}
	return &cached, true
}

// Store caches v under its external identifier.
func (c *VerificationCache) Store(ctx context.Context, v *models.Verification) {
	if !c.Enabled() || v == nil || v.ExternalID == "" {
		return
	}
	start := time.Now()
	err := c.repo.Set(ctx, verifyKey(v.ExternalID), v, c.ttl)
	c.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		c.logger.Warn("verification cache write failed", zap.String("code", v.ExternalID), zap.Error(err))
	}
}

// Forget drops cached verifications for the given identifiers.
func (c *VerificationCache) Forget(ctx context.Context, codes ...string) {
	if !c.Enabled() || len(codes) == 0 {
		return
	}
	keys := make([]string, 0, len(codes))
	for _, code := range codes {
		if code != "" {
			keys = append(keys, verifyKey(code))
		}
	}
	if err := c.repo.Delete(ctx, keys...); err != nil {
		c.logger.Warn("verification cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
