package geo

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	cacheKey     = "geo:cache"
	cacheVersion = 1

	// CacheTTL is how long a resolved location stays servable.
	CacheTTL = 30 * 24 * time.Hour

	// MaxCacheEntries caps the persisted blob; the oldest entries by
	// timestamp are evicted first.
	MaxCacheEntries = 1000
)

// Source records how a cached location was resolved.
type Source string

const (
	SourceAPI       Source = "api"
	SourceExtracted Source = "extracted"
	SourceManual    Source = "manual"
)

// CachedLocation is one resolved location with its provenance.
type CachedLocation struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`
}

// Coordinates returns the lat/lng pair of the entry.
func (l CachedLocation) Coordinates() Coordinates {
	return Coordinates{Lat: l.Lat, Lng: l.Lng}
}

// BlobStore is the durable storage surface the cache persists through.
// *kvstore.Store satisfies this interface.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// cacheBlob is the versioned durable format. Unknown versions are
// discarded on load rather than misread.
type cacheBlob struct {
	Version int                       `json:"version"`
	Entries map[string]CachedLocation `json:"entries"`
}

var (
	nonKeyChars = regexp.MustCompile(`[^\w\s-]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// NormalizeLocationKey derives the cache key for a free-text location:
// lowercased, punctuation stripped, whitespace collapsed to underscores.
func NormalizeLocationKey(location string) string {
	key := strings.ToLower(strings.TrimSpace(location))
	key = nonKeyChars.ReplaceAllString(key, "")
	return whitespace.ReplaceAllString(key, "_")
}

// Cache is the persistent geocoding sub-cache. Entries expire after
// CacheTTL and the total is capped at MaxCacheEntries. All methods are
// safe for concurrent use; persistence failures degrade to in-memory
// operation with a logged warning.
type Cache struct {
	mu      sync.Mutex
	entries map[string]CachedLocation
	kv      BlobStore
	log     *slog.Logger
	now     func() time.Time
}

// NewCache constructs a Cache using the real clock. Call Load before use.
func NewCache(kv BlobStore, log *slog.Logger) *Cache {
	return NewCacheWithClock(kv, log, time.Now)
}

// NewCacheWithClock constructs a Cache with an injected clock (used in tests).
func NewCacheWithClock(kv BlobStore, log *slog.Logger, now func() time.Time) *Cache {
	return &Cache{
		entries: make(map[string]CachedLocation),
		kv:      kv,
		log:     log,
		now:     now,
	}
}

// Load restores the cache from durable storage, dropping expired entries.
// A corrupt or unknown-version blob starts the cache fresh.
func (c *Cache) Load(ctx context.Context) error {
	raw, ok, err := c.kv.Get(ctx, cacheKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var blob cacheBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		c.log.Warn("discarding unreadable geocoding cache blob", "err", err)
		return nil
	}
	if blob.Version != cacheVersion {
		c.log.Warn("discarding geocoding cache blob with unknown version", "version", blob.Version)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expired := 0
	for key, entry := range blob.Entries {
		if now.Sub(entry.Timestamp) >= CacheTTL {
			expired++
			continue
		}
		c.entries[key] = entry
	}

	if expired > 0 {
		c.log.Info("dropped expired geocoding cache entries", "count", expired)
		c.persistLocked(ctx)
	}
	c.log.Info("loaded geocoding cache", "entries", len(c.entries))
	return nil
}

// Lookup returns the cached location for a free-text location string.
// Expired entries are removed and reported as misses.
func (c *Cache) Lookup(ctx context.Context, location string) (CachedLocation, bool) {
	if location == "" {
		return CachedLocation{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := NormalizeLocationKey(location)
	entry, ok := c.entries[key]
	if !ok {
		return CachedLocation{}, false
	}

	if c.now().Sub(entry.Timestamp) >= CacheTTL {
		delete(c.entries, key)
		c.persistLocked(ctx)
		return CachedLocation{}, false
	}

	return entry, true
}

// Store writes a resolved location, stamping the current time.
func (c *Cache) Store(ctx context.Context, location string, coords Coordinates, source Source) {
	if location == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[NormalizeLocationKey(location)] = CachedLocation{
		Lat:       coords.Lat,
		Lng:       coords.Lng,
		Timestamp: c.now(),
		Source:    source,
	}
	c.persistLocked(ctx)
}

// persistLocked trims the cache to MaxCacheEntries (evicting the oldest
// by timestamp) and writes the blob. Callers must hold c.mu.
func (c *Cache) persistLocked(ctx context.Context) {
	if len(c.entries) > MaxCacheEntries {
		type keyed struct {
			key   string
			entry CachedLocation
		}
		all := make([]keyed, 0, len(c.entries))
		for k, e := range c.entries {
			all = append(all, keyed{k, e})
		}
		sort.Slice(all, func(i, j int) bool {
			return all[i].entry.Timestamp.After(all[j].entry.Timestamp)
		})

		trimmed := make(map[string]CachedLocation, MaxCacheEntries)
		for _, ke := range all[:MaxCacheEntries] {
			trimmed[ke.key] = ke.entry
		}
		c.entries = trimmed
	}

	raw, err := json.Marshal(cacheBlob{Version: cacheVersion, Entries: c.entries})
	if err != nil {
		c.log.Warn("marshaling geocoding cache failed", "err", err)
		return
	}
	if err := c.kv.Set(ctx, cacheKey, raw); err != nil {
		c.log.Warn("persisting geocoding cache failed", "err", err)
	}
}

// Stats summarizes the cache contents by resolution source.
type Stats struct {
	TotalEntries     int    `json:"total_entries"`
	APIEntries       int    `json:"api_entries"`
	ExtractedEntries int    `json:"extracted_entries"`
	ManualEntries    int    `json:"manual_entries"`
	OldestEntry      string `json:"oldest_entry,omitempty"`
	NewestEntry      string `json:"newest_entry,omitempty"`
}

// Stats returns a snapshot of cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{TotalEntries: len(c.entries)}
	var oldest, newest time.Time

	for key, entry := range c.entries {
		switch entry.Source {
		case SourceAPI:
			stats.APIEntries++
		case SourceExtracted:
			stats.ExtractedEntries++
		case SourceManual:
			stats.ManualEntries++
		}

		if oldest.IsZero() || entry.Timestamp.Before(oldest) {
			oldest = entry.Timestamp
			stats.OldestEntry = key
		}
		if entry.Timestamp.After(newest) {
			newest = entry.Timestamp
			stats.NewestEntry = key
		}
	}

	return stats
}

// Export returns a copy of every entry, for backup or analysis.
func (c *Cache) Export() map[string]CachedLocation {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]CachedLocation, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Import replaces the cache contents with the given entries and persists.
func (c *Cache) Import(ctx context.Context, entries map[string]CachedLocation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]CachedLocation, len(entries))
	for k, v := range entries {
		c.entries[k] = v
	}
	c.persistLocked(ctx)
}

// Clear empties the cache and removes the durable blob.
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]CachedLocation)
	if err := c.kv.Delete(ctx, cacheKey); err != nil {
		c.log.Warn("clearing geocoding cache blob failed", "err", err)
	}
}
