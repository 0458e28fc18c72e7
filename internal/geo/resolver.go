package geo

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tripfolio/tripfolio/internal/trips"
)

// geocodeClient is the interface satisfied by Geocoder.
type geocodeClient interface {
	Geocode(ctx context.Context, address string) (Coordinates, bool, error)
}

// ActivityMarker is one activity placed on the map.
type ActivityMarker struct {
	ActivityID  string      `json:"activity_id"`
	Title       string      `json:"title"`
	Location    string      `json:"location"`
	Category    string      `json:"category"`
	Icon        string      `json:"icon,omitempty"`
	Coordinates Coordinates `json:"coordinates"`
	Source      Source      `json:"source"`
}

// Resolver turns free-text locations into coordinates using three tiers
// in strict order: cache, text extraction, paid geocoding API. The free
// tiers are always exhausted before the paid tier is touched.
type Resolver struct {
	cache    *Cache
	geocoder geocodeClient
	usage    *Monitor
	log      *slog.Logger
}

// NewResolver constructs a Resolver. geocoder may be nil, in which case
// the paid tier is disabled and unresolvable activities are skipped.
func NewResolver(cache *Cache, geocoder geocodeClient, usage *Monitor, log *slog.Logger) *Resolver {
	return &Resolver{cache: cache, geocoder: geocoder, usage: usage, log: log}
}

// Resolve runs the tier ladder for one location. The description text
// participates in the extraction tier only.
func (r *Resolver) Resolve(ctx context.Context, location, description string) (Coordinates, Source, bool) {
	if location == "" {
		return Coordinates{}, "", false
	}

	if cached, ok := r.cache.Lookup(ctx, location); ok {
		return cached.Coordinates(), cached.Source, true
	}

	if coords, ok := ExtractCoordinates(description + " " + location); ok {
		r.cache.Store(ctx, location, coords, SourceExtracted)
		return coords, SourceExtracted, true
	}

	if r.geocoder == nil {
		return Coordinates{}, "", false
	}

	coords, found, err := r.geocoder.Geocode(ctx, location)
	if err != nil {
		r.log.Warn("geocoding failed", "location", location, "err", err)
		return Coordinates{}, "", false
	}
	if !found {
		r.log.Warn("geocoding returned no result", "location", location)
		return Coordinates{}, "", false
	}

	r.usage.Record(ctx, KindGeocoding)
	r.cache.Store(ctx, location, coords, SourceAPI)
	return coords, SourceAPI, true
}

// ResolveDay resolves every located activity of one itinerary day
// concurrently, settle-all. Activities without a location or that fail
// every tier are omitted; a day-level error is never produced. Marker
// order follows activity order.
func (r *Resolver) ResolveDay(ctx context.Context, activities []trips.Activity) []ActivityMarker {
	markers := make([]*ActivityMarker, len(activities))
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	for i, act := range activities {
		if act.Location == "" {
			continue
		}
		g.Go(func() error {
			coords, source, ok := r.Resolve(gCtx, act.Location, act.Description)
			if !ok {
				return nil
			}
			mu.Lock()
			markers[i] = &ActivityMarker{
				ActivityID:  act.ID,
				Title:       act.Title,
				Location:    act.Location,
				Category:    act.Category,
				Icon:        act.Icon,
				Coordinates: coords,
				Source:      source,
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := make([]ActivityMarker, 0, len(activities))
	for _, m := range markers {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out
}
