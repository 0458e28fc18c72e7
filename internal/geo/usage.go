package geo

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

const (
	usageKey     = "geo:usage"
	usageVersion = 1

	// DefaultDailyLimit and DefaultMonthlyLimit are the paid-API quotas
	// the monitor warns against at 80%.
	DefaultDailyLimit   = 1000
	DefaultMonthlyLimit = 25000

	warnFraction = 0.8

	dailyRetention   = 7 // days
	monthlyRetention = 12
)

// Kind identifies which paid API a call went to.
type Kind string

const (
	KindGeocoding Kind = "geocoding"
	KindMaps      Kind = "maps"
)

// Counters holds per-bucket call counts.
type Counters struct {
	Geocoding int `json:"geocoding"`
	Maps      int `json:"maps"`
}

func (c Counters) total() int { return c.Geocoding + c.Maps }

func (c *Counters) add(kind Kind) {
	switch kind {
	case KindGeocoding:
		c.Geocoding++
	case KindMaps:
		c.Maps++
	}
}

// UsageStats is the durable counter blob and the monitor's snapshot shape.
// Daily buckets are keyed YYYY-MM-DD, monthly buckets YYYY-MM.
type UsageStats struct {
	Version int                 `json:"version"`
	Daily   map[string]Counters `json:"daily"`
	Monthly map[string]Counters `json:"monthly"`
	Total   Counters            `json:"total"`
}

// Monitor tracks paid-API call volume. It is observability only: it
// warns as usage approaches quota but never denies a call.
type Monitor struct {
	mu           sync.Mutex
	data         UsageStats
	kv           BlobStore
	log          *slog.Logger
	now          func() time.Time
	dailyLimit   int
	monthlyLimit int
}

// NewMonitor constructs a Monitor with the default quotas and the real
// clock. Call Load before use.
func NewMonitor(kv BlobStore, log *slog.Logger) *Monitor {
	return NewMonitorWithClock(kv, log, time.Now)
}

// NewMonitorWithClock constructs a Monitor with an injected clock (used
// in tests).
func NewMonitorWithClock(kv BlobStore, log *slog.Logger, now func() time.Time) *Monitor {
	return &Monitor{
		data:         emptyUsage(),
		kv:           kv,
		log:          log,
		now:          now,
		dailyLimit:   DefaultDailyLimit,
		monthlyLimit: DefaultMonthlyLimit,
	}
}

func emptyUsage() UsageStats {
	return UsageStats{
		Version: usageVersion,
		Daily:   make(map[string]Counters),
		Monthly: make(map[string]Counters),
	}
}

// SetLimits overrides the warning thresholds.
func (m *Monitor) SetLimits(daily, monthly int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyLimit = daily
	m.monthlyLimit = monthly
}

// Load restores counters from durable storage. A corrupt or
// unknown-version blob starts the counters fresh.
func (m *Monitor) Load(ctx context.Context) error {
	raw, ok, err := m.kv.Get(ctx, usageKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var data UsageStats
	if err := json.Unmarshal(raw, &data); err != nil {
		m.log.Warn("discarding unreadable usage blob", "err", err)
		return nil
	}
	if data.Version != usageVersion {
		m.log.Warn("discarding usage blob with unknown version", "version", data.Version)
		return nil
	}
	if data.Daily == nil {
		data.Daily = make(map[string]Counters)
	}
	if data.Monthly == nil {
		data.Monthly = make(map[string]Counters)
	}

	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
	return nil
}

// Record counts one paid-API call: increments the day, month, and total
// buckets, prunes buckets past retention, persists, and warns when usage
// crosses 80 % of a quota.
func (m *Monitor) Record(ctx context.Context, kind Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	day := now.Format("2006-01-02")
	month := now.Format("2006-01")

	daily := m.data.Daily[day]
	daily.add(kind)
	m.data.Daily[day] = daily

	monthly := m.data.Monthly[month]
	monthly.add(kind)
	m.data.Monthly[month] = monthly

	m.data.Total.add(kind)

	m.pruneLocked(now)

	raw, err := json.Marshal(m.data)
	if err != nil {
		m.log.Warn("marshaling usage counters failed", "err", err)
	} else if err := m.kv.Set(ctx, usageKey, raw); err != nil {
		m.log.Warn("persisting usage counters failed", "err", err)
	}

	if t := m.data.Daily[day].total(); float64(t) > float64(m.dailyLimit)*warnFraction {
		m.log.Warn("approaching daily API limit", "used", t, "limit", m.dailyLimit)
	}
	if t := m.data.Monthly[month].total(); float64(t) > float64(m.monthlyLimit)*warnFraction {
		m.log.Warn("approaching monthly API limit", "used", t, "limit", m.monthlyLimit)
	}
}

// pruneLocked drops daily buckets older than 7 days and monthly buckets
// older than 12 months. Callers must hold m.mu.
func (m *Monitor) pruneLocked(now time.Time) {
	dayCutoff := now.AddDate(0, 0, -dailyRetention).Format("2006-01-02")
	for day := range m.data.Daily {
		if day < dayCutoff {
			delete(m.data.Daily, day)
		}
	}

	monthCutoff := now.AddDate(0, -monthlyRetention, 0).Format("2006-01")
	for month := range m.data.Monthly {
		if month < monthCutoff {
			delete(m.data.Monthly, month)
		}
	}
}

// Stats returns a deep copy of the current counters.
func (m *Monitor) Stats() UsageStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := UsageStats{
		Version: m.data.Version,
		Daily:   make(map[string]Counters, len(m.data.Daily)),
		Monthly: make(map[string]Counters, len(m.data.Monthly)),
		Total:   m.data.Total,
	}
	for k, v := range m.data.Daily {
		out.Daily[k] = v
	}
	for k, v := range m.data.Monthly {
		out.Monthly[k] = v
	}
	return out
}

// Clear resets the counters and removes the durable blob.
func (m *Monitor) Clear(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = emptyUsage()
	if err := m.kv.Delete(ctx, usageKey); err != nil {
		m.log.Warn("clearing usage blob failed", "err", err)
	}
}
