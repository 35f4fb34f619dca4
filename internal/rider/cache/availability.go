package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pelino250/safeboda/internal/rider/domain"
)

// KeyPrefix namespaces every availability snapshot key. Invalidation deletes
// the whole prefix so filtered listings can never outlive a mutation.
const KeyPrefix = "available_riders"

// DefaultTTL bounds staleness when no mutation arrives.
const DefaultTTL = 300 * time.Second

// FilterKey derives the cache key for a listing filter. The global listing
// maps to the bare prefix; radius filters get their own key with coordinates
// quantized to ~100 m so nearby requests share entries.
func FilterKey(filter domain.ListFilter) string {
	if filter.Origin == nil || filter.RadiusKM <= 0 {
		return KeyPrefix
	}
	return fmt.Sprintf("%s:%.3f:%.3f:%.1f", KeyPrefix, filter.Origin.Lat, filter.Origin.Lng, filter.RadiusKM)
}

// AvailabilityCache serves availability snapshots with bounded staleness.
// Every store failure is absorbed: a broken cache degrades reads to
// pass-through and never fails a mutation that already committed.
type AvailabilityCache struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

// New constructs the cache. ttl <= 0 selects DefaultTTL.
func New(store Store, ttl time.Duration, logger *zap.Logger) *AvailabilityCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityCache{store: store, ttl: ttl, logger: logger}
}

// Lookup returns the cached snapshot for key. Any store or decode failure is
// treated as a miss.
func (c *AvailabilityCache) Lookup(ctx context.Context, key string) ([]domain.AvailableRider, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		storeErrorsTotal.WithLabelValues("get").Inc()
		c.logger.Warn("cache get failed, falling through to directory",
			zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		lookupTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	var snapshot []domain.AvailableRider
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		storeErrorsTotal.WithLabelValues("decode").Inc()
		c.logger.Warn("cache entry undecodable, treating as miss",
			zap.String("key", key), zap.Error(err))
		return nil, false
	}
	lookupTotal.WithLabelValues("hit").Inc()
	return snapshot, true
}

// Fill stores a fresh snapshot under key. A failed write is logged and
// abandoned; the next read simply misses again.
func (c *AvailabilityCache) Fill(ctx context.Context, key string, snapshot []domain.AvailableRider) {
	if c == nil || c.store == nil {
		return
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		c.logger.Warn("cache snapshot encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
		storeErrorsTotal.WithLabelValues("set").Inc()
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate synchronously drops every availability snapshot. Callers invoke
// it only after the durable commit; a failure here is absorbed because the
// mutation already holds, and TTL expiry bounds the resulting staleness.
func (c *AvailabilityCache) Invalidate(ctx context.Context) {
	if c == nil || c.store == nil {
		return
	}
	invalidationsTotal.Inc()
	if err := c.store.DeleteMatching(ctx, KeyPrefix); err != nil {
		storeErrorsTotal.WithLabelValues("delete").Inc()
		c.logger.Warn("cache invalidation failed, relying on ttl expiry", zap.Error(err))
	}
}

// TTL reports the configured snapshot lifetime.
func (c *AvailabilityCache) TTL() time.Duration { return c.ttl }
