package geo_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripfolio/tripfolio/internal/geo"
	"github.com/tripfolio/tripfolio/internal/kvstore"
)

// fakeClock is a controllable clock for TTL and eviction tests.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestKV(t *testing.T) *kvstore.Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return kvstore.NewStore(client)
}

func newTestCache(t *testing.T) (*geo.Cache, *fakeClock, *kvstore.Store) {
	t.Helper()
	kv := newTestKV(t)
	clk := newFakeClock()
	c := geo.NewCacheWithClock(kv, discardLogger(), clk.Now)
	require.NoError(t, c.Load(context.Background()))
	return c, clk, kv
}

func TestCache_StoreAndLookup(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	coords := geo.Coordinates{Lat: 35.681, Lng: 139.767}
	c.Store(ctx, "Tokyo Station", coords, geo.SourceExtracted)

	got, ok := c.Lookup(ctx, "Tokyo Station")
	require.True(t, ok)
	assert.Equal(t, coords, got.Coordinates())
	assert.Equal(t, geo.SourceExtracted, got.Source)
}

func TestCache_KeyNormalization(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	c.Store(ctx, "Tokyo Station, Chiyoda!", geo.Coordinates{Lat: 1, Lng: 2}, geo.SourceManual)

	// Case, punctuation, and whitespace differences hit the same key.
	_, ok := c.Lookup(ctx, "tokyo  station chiyoda")
	assert.True(t, ok)
}

func TestNormalizeLocationKey(t *testing.T) {
	assert.Equal(t, "tokyo_station", geo.NormalizeLocationKey("  Tokyo Station  "))
	assert.Equal(t, "caf_de_lamour", geo.NormalizeLocationKey("Café de l'Amour"))
	assert.Equal(t, "shibuya-ku_tokyo", geo.NormalizeLocationKey("Shibuya-ku, Tokyo"))
}

func TestCache_ExpiredEntryIsAMiss(t *testing.T) {
	c, clk, _ := newTestCache(t)
	ctx := context.Background()

	c.Store(ctx, "Old Place", geo.Coordinates{Lat: 1, Lng: 2}, geo.SourceAPI)

	clk.Advance(geo.CacheTTL)

	_, ok := c.Lookup(ctx, "Old Place")
	assert.False(t, ok, "entry aged exactly to the TTL is expired")
	assert.Equal(t, 0, c.Stats().TotalEntries, "expired entry is removed on read")
}

func TestCache_EvictionBound(t *testing.T) {
	c, clk, _ := newTestCache(t)
	ctx := context.Background()

	for i := 0; i <= geo.MaxCacheEntries; i++ {
		c.Store(ctx, fmt.Sprintf("place %d", i), geo.Coordinates{Lat: 1, Lng: 2}, geo.SourceManual)
		clk.Advance(time.Second)
	}

	stats := c.Stats()
	assert.Equal(t, geo.MaxCacheEntries, stats.TotalEntries)

	// The oldest insert is the one evicted.
	_, ok := c.Lookup(ctx, "place 0")
	assert.False(t, ok)
	_, ok = c.Lookup(ctx, "place 1")
	assert.True(t, ok)
	_, ok = c.Lookup(ctx, fmt.Sprintf("place %d", geo.MaxCacheEntries))
	assert.True(t, ok)
}

func TestCache_ExportImportRoundTrip(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	c.Store(ctx, "Place A", geo.Coordinates{Lat: 1, Lng: 2}, geo.SourceAPI)
	c.Store(ctx, "Place B", geo.Coordinates{Lat: 3, Lng: 4}, geo.SourceExtracted)

	exported := c.Export()
	require.Len(t, exported, 2)

	c.Clear(ctx)
	assert.Equal(t, 0, c.Stats().TotalEntries)

	c.Import(ctx, exported)
	assert.Equal(t, exported, c.Export())
}

func TestCache_PersistsAcrossInstances(t *testing.T) {
	kv := newTestKV(t)
	clk := newFakeClock()
	ctx := context.Background()

	first := geo.NewCacheWithClock(kv, discardLogger(), clk.Now)
	require.NoError(t, first.Load(ctx))
	first.Store(ctx, "Tokyo Station", geo.Coordinates{Lat: 35.681, Lng: 139.767}, geo.SourceAPI)

	second := geo.NewCacheWithClock(kv, discardLogger(), clk.Now)
	require.NoError(t, second.Load(ctx))

	got, ok := second.Lookup(ctx, "Tokyo Station")
	require.True(t, ok)
	assert.Equal(t, geo.SourceAPI, got.Source)
}

func TestCache_UnknownBlobVersionStartsFresh(t *testing.T) {
	kv := newTestKV(t)
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, "geo:cache", []byte(`{"version":99,"entries":{"x":{"lat":1,"lng":2}}}`)))

	c := geo.NewCacheWithClock(kv, discardLogger(), newFakeClock().Now)
	require.NoError(t, c.Load(ctx))
	assert.Equal(t, 0, c.Stats().TotalEntries)
}

func TestCache_Stats(t *testing.T) {
	c, clk, _ := newTestCache(t)
	ctx := context.Background()

	c.Store(ctx, "A", geo.Coordinates{Lat: 1, Lng: 1}, geo.SourceAPI)
	clk.Advance(time.Minute)
	c.Store(ctx, "B", geo.Coordinates{Lat: 2, Lng: 2}, geo.SourceExtracted)
	clk.Advance(time.Minute)
	c.Store(ctx, "C", geo.Coordinates{Lat: 3, Lng: 3}, geo.SourceManual)

	stats := c.Stats()
	assert.Equal(t, 3, stats.TotalEntries)
	assert.Equal(t, 1, stats.APIEntries)
	assert.Equal(t, 1, stats.ExtractedEntries)
	assert.Equal(t, 1, stats.ManualEntries)
	assert.Equal(t, "a", stats.OldestEntry)
	assert.Equal(t, "c", stats.NewestEntry)
}
