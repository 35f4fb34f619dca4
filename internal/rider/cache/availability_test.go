package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pelino250/safeboda/internal/rider/cache"
	"github.com/pelino250/safeboda/internal/rider/domain"
)

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("store unreachable")
}
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("store unreachable")
}
func (brokenStore) Delete(context.Context, string) error { return errors.New("store unreachable") }
func (brokenStore) DeleteMatching(context.Context, string) error {
	return errors.New("store unreachable")
}

func TestFilterKey(t *testing.T) {
	require.Equal(t, "available_riders", cache.FilterKey(domain.ListFilter{}))

	origin := domain.GeoPoint{Lat: -1.9441, Lng: 30.0619}
	key := cache.FilterKey(domain.ListFilter{Origin: &origin, RadiusKM: 5})
	require.Equal(t, "available_riders:-1.944:30.062:5.0", key)

	// A radius without an origin degrades to the global key.
	require.Equal(t, "available_riders", cache.FilterKey(domain.ListFilter{RadiusKM: 5}))
}

func TestLookupFillRoundTrip(t *testing.T) {
	c := cache.New(cache.NewMemoryStore(), time.Minute, zap.NewNop())
	ctx := context.Background()

	_, ok := c.Lookup(ctx, cache.KeyPrefix)
	require.False(t, ok)

	snapshot := []domain.AvailableRider{{ID: uuid.New(), VerificationStatus: domain.VerificationApproved}}
	c.Fill(ctx, cache.KeyPrefix, snapshot)

	got, ok := c.Lookup(ctx, cache.KeyPrefix)
	require.True(t, ok)
	require.Equal(t, snapshot, got)
}

func TestEmptySnapshotIsCacheable(t *testing.T) {
	c := cache.New(cache.NewMemoryStore(), time.Minute, zap.NewNop())
	ctx := context.Background()

	c.Fill(ctx, cache.KeyPrefix, []domain.AvailableRider{})

	got, ok := c.Lookup(ctx, cache.KeyPrefix)
	require.True(t, ok)
	require.Empty(t, got)
}

func TestInvalidateDropsFilteredKeys(t *testing.T) {
	c := cache.New(cache.NewMemoryStore(), time.Minute, zap.NewNop())
	ctx := context.Background()

	origin := domain.GeoPoint{Lat: 0.3, Lng: 32.5}
	filtered := cache.FilterKey(domain.ListFilter{Origin: &origin, RadiusKM: 2})
	c.Fill(ctx, cache.KeyPrefix, []domain.AvailableRider{})
	c.Fill(ctx, filtered, []domain.AvailableRider{})

	c.Invalidate(ctx)

	_, ok := c.Lookup(ctx, cache.KeyPrefix)
	require.False(t, ok)
	_, ok = c.Lookup(ctx, filtered)
	require.False(t, ok)

	// Invalidating an already empty cache is a no-op success.
	c.Invalidate(ctx)
}

func TestCacheFailsOpen(t *testing.T) {
	c := cache.New(brokenStore{}, time.Minute, zap.NewNop())
	ctx := context.Background()

	_, ok := c.Lookup(ctx, cache.KeyPrefix)
	require.False(t, ok)

	// Fill and Invalidate absorb store failures entirely.
	c.Fill(ctx, cache.KeyPrefix, []domain.AvailableRider{})
	c.Invalidate(ctx)
}

func TestUndecodableEntryIsMiss(t *testing.T) {
	store := cache.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), cache.KeyPrefix, []byte("not json"), time.Minute))

	c := cache.New(store, time.Minute, zap.NewNop())
	_, ok := c.Lookup(context.Background(), cache.KeyPrefix)
	require.False(t, ok)
}
