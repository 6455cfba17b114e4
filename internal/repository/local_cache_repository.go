package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

type localEntry struct {
	payload []byte
	expires time.Time
}

// LocalCacheRepository is an in-process LRU used when Redis is disabled.
// Entries are stored as JSON so callers see the same copy semantics as Redis.
type LocalCacheRepository struct {
	cache *expirable.LRU[string, localEntry]
	now   func() time.Time
}

// NewLocalCacheRepository builds an LRU holding at most size entries, each
// living no longer than maxTTL.
func NewLocalCacheRepository(size int, maxTTL time.Duration) *LocalCacheRepository {
	if size <= 0 {
		size = 1024
	}
	return &LocalCacheRepository{
		cache: expirable.NewLRU[string, localEntry](size, nil, maxTTL),
		now:   time.Now,
	}
}

// Get unmarshals the cached value into dest or returns ErrCacheMiss.
func (r *LocalCacheRepository) Get(_ context.Context, key string, dest interface{}) error {
	entry, ok := r.cache.Get(key)
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if !entry.expires.IsZero() && r.now().After(entry.expires) {
		r.cache.Remove(key)
		return appErrors.ErrCacheMiss
	}
	if err := json.Unmarshal(entry.payload, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return nil
}

// Set stores value under key. A ttl shorter than the LRU-wide one is enforced on read.
func (r *LocalCacheRepository) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	entry := localEntry{payload: payload}
	if ttl > 0 {
		entry.expires = r.now().Add(ttl)
	}
	r.cache.Add(key, entry)
	return nil
}

// Delete drops the given keys.
func (r *LocalCacheRepository) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		r.cache.Remove(key)
	}
	return nil
}

// Len reports the number of live entries.
func (r *LocalCacheRepository) Len() int {
	return r.cache.Len()
}
