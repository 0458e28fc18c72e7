package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tripfolio/tripfolio/internal/cache"
	"github.com/tripfolio/tripfolio/internal/trips"
)

const (
	// ListingTTL and DetailTTL are the in-memory staleness windows.
	ListingTTL = 5 * time.Minute
	DetailTTL  = 10 * time.Minute

	defaultPageLimit = 10
	maxPageLimit     = 100
)

// Handlers holds the dependencies for all HTTP handlers. Listing pages
// and trip details each get their own fetch coordinator so their TTLs
// and in-flight fetches stay independent.
type Handlers struct {
	source   TripSource
	repo     SnapshotRepo
	resolver DayResolver
	usage    UsageReporter
	geoCache GeoCacheReporter
	log      *slog.Logger

	listings *cache.Coordinator[*trips.TripPage]
	details  *cache.Coordinator[*trips.Trip]
}

// NewHandlers constructs Handlers with all required dependencies.
func NewHandlers(source TripSource, repo SnapshotRepo, resolver DayResolver, usage UsageReporter, geoCache GeoCacheReporter, log *slog.Logger) *Handlers {
	return &Handlers{
		source:   source,
		repo:     repo,
		resolver: resolver,
		usage:    usage,
		geoCache: geoCache,
		log:      log,
		listings: cache.NewCoordinator[*trips.TripPage](ListingTTL),
		details:  cache.NewCoordinator[*trips.Trip](DetailTTL),
	}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ListTrips handles GET /api/v1/trips?page=&limit=.
// Fresh cache → serve. Otherwise one coordinated fetch; on total failure
// the stale cache entry, then the Postgres snapshot, are served before
// giving up — previously-seen data must survive a failed refresh.
func (h *Handlers) ListTrips(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", defaultPageLimit)
	if page < 1 {
		writeError(w, http.StatusBadRequest, "page must be >= 1")
		return
	}
	if limit < 1 || limit > maxPageLimit {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxPageLimit))
		return
	}

	key := strconv.Itoa(page) + ":" + strconv.Itoa(limit)
	res := h.listings.Get(r.Context(), key, func(ctx context.Context) (*trips.TripPage, bool, error) {
		tp, err := h.source.ListTrips(ctx, page, limit)
		if err != nil {
			return nil, false, err
		}
		h.snapshotListing(ctx, page, tp)
		return tp, true, nil
	})

	switch {
	case res.Err == nil && res.Found:
		writeJSON(w, http.StatusOK, res.Value)
	case res.Err != nil && res.Found:
		h.log.Warn("serving stale trips listing after failed refresh", "page", page, "err", res.Err)
		w.Header().Set("X-Data-Stale", "true")
		writeJSON(w, http.StatusOK, res.Value)
	case res.Err != nil:
		if tp, err := h.repo.GetListingPage(r.Context(), page); err == nil && tp != nil {
			h.log.Warn("serving snapshot trips listing after failed fetch", "page", page, "err", res.Err)
			w.Header().Set("X-Data-Source", "snapshot")
			writeJSON(w, http.StatusOK, tp)
			return
		}
		h.log.Error("trips listing fetch failed with no fallback", "page", page, "err", res.Err)
		writeError(w, http.StatusBadGateway, "failed to fetch trips")
	default:
		writeError(w, http.StatusNotFound, "no trips found")
	}
}

// GetTrip handles GET /api/v1/trips/{slug}. A missing slug is a 404
// empty state, never an upstream error.
func (h *Handlers) GetTrip(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	res := h.fetchDetail(r.Context(), slug)
	switch {
	case res.Err == nil && res.Found:
		writeJSON(w, http.StatusOK, res.Value)
	case res.Err != nil && res.Found:
		h.log.Warn("serving stale trip detail after failed refresh", "slug", slug, "err", res.Err)
		w.Header().Set("X-Data-Stale", "true")
		writeJSON(w, http.StatusOK, res.Value)
	case res.Err != nil:
		if t, err := h.repo.GetTrip(r.Context(), slug); err == nil && t != nil {
			h.log.Warn("serving snapshot trip detail after failed fetch", "slug", slug, "err", res.Err)
			w.Header().Set("X-Data-Source", "snapshot")
			writeJSON(w, http.StatusOK, t)
			return
		}
		h.log.Error("trip detail fetch failed with no fallback", "slug", slug, "err", res.Err)
		writeError(w, http.StatusBadGateway, "failed to fetch trip")
	default:
		writeError(w, http.StatusNotFound, "trip not found")
	}
}

// GetTripDayGeo handles GET /api/v1/trips/{slug}/geo?day=.
// Resolves coordinates for one itinerary day's activities; activities
// whose location cannot be resolved are omitted from the response.
func (h *Handlers) GetTripDayGeo(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	day := queryInt(r, "day", 0)

	res := h.fetchDetail(r.Context(), slug)
	if res.Err != nil && !res.Found {
		h.log.Error("trip detail fetch failed for geo request", "slug", slug, "err", res.Err)
		writeError(w, http.StatusBadGateway, "failed to fetch trip")
		return
	}
	if !res.Found {
		writeError(w, http.StatusNotFound, "trip not found")
		return
	}

	trip := res.Value
	if day < 0 || day >= len(trip.Days) {
		writeError(w, http.StatusBadRequest, "day index out of range")
		return
	}

	markers := h.resolver.ResolveDay(r.Context(), trip.Days[day].Activities)
	writeJSON(w, http.StatusOK, map[string]any{
		"slug":    slug,
		"day":     day,
		"date":    trip.Days[day].Date,
		"markers": markers,
	})
}

// RefreshAll handles POST /api/v1/admin/refresh: drops every cached
// listing page and trip detail so the next reads refetch.
func (h *Handlers) RefreshAll(w http.ResponseWriter, r *http.Request) {
	h.listings.InvalidateAll()
	h.details.InvalidateAll()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cache cleared"})
}

// RefreshTrip handles POST /api/v1/admin/refresh/{slug}: drops one trip
// detail from the cache.
func (h *Handlers) RefreshTrip(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	h.details.Invalidate(slug)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cache cleared", "slug": slug})
}

// GetUsage handles GET /api/v1/admin/usage: paid-API usage counters plus
// geocoding cache statistics.
func (h *Handlers) GetUsage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"usage":           h.usage.Stats(),
		"geocoding_cache": h.geoCache.Stats(),
	})
}

// fetchDetail runs the coordinated fetch for one trip slug.
func (h *Handlers) fetchDetail(ctx context.Context, slug string) cache.Result[*trips.Trip] {
	return h.details.Get(ctx, slug, func(ctx context.Context) (*trips.Trip, bool, error) {
		t, err := h.source.GetTripBySlug(ctx, slug)
		if err != nil {
			return nil, false, err
		}
		if t == nil {
			return nil, false, nil
		}
		h.snapshotTrip(ctx, t)
		return t, true, nil
	})
}

// snapshotListing mirrors a fetched listing page to Postgres, best effort.
func (h *Handlers) snapshotListing(ctx context.Context, page int, tp *trips.TripPage) {
	if err := h.repo.UpsertListingPage(ctx, page, tp); err != nil {
		h.log.Warn("snapshotting trips listing failed", "page", page, "err", err)
	}
}

// snapshotTrip mirrors a fetched trip detail to Postgres, best effort.
func (h *Handlers) snapshotTrip(ctx context.Context, t *trips.Trip) {
	if err := h.repo.UpsertTrip(ctx, t); err != nil {
		h.log.Warn("snapshotting trip detail failed", "slug", t.Slug, "err", err)
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// HealthHandlerFunc returns an http.HandlerFunc that checks Postgres and
// Redis connectivity.
type dbPinger interface {
	Ping(ctx context.Context) error
}

type redisPinger interface {
	Ping(ctx context.Context) error
}

func HealthHandlerFunc(db dbPinger, redis redisPinger, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		dbStatus := "ok"
		redisStatus := "ok"

		if err := db.Ping(ctx); err != nil {
			log.Error("health check: db ping failed", "err", err)
			dbStatus = "error"
			status = http.StatusServiceUnavailable
		}

		if err := redis.Ping(ctx); err != nil {
			log.Error("health check: redis ping failed", "err", err)
			redisStatus = "error"
			status = http.StatusServiceUnavailable
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}

		writeJSON(w, status, map[string]string{
			"status": overall,
			"db":     dbStatus,
			"redis":  redisStatus,
		})
	}
}
