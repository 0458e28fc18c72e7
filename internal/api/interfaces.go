package api

import (
	"context"

	"github.com/tripfolio/tripfolio/internal/geo"
	"github.com/tripfolio/tripfolio/internal/trips"
)

// TripSource defines the remote content API operations needed by handlers.
// *trips.Client satisfies this interface.
type TripSource interface {
	ListTrips(ctx context.Context, page, limit int) (*trips.TripPage, error)
	GetTripBySlug(ctx context.Context, slug string) (*trips.Trip, error)
}

// SnapshotRepo defines the durable fallback storage needed by handlers.
// *storage.Repository satisfies this interface.
type SnapshotRepo interface {
	GetListingPage(ctx context.Context, page int) (*trips.TripPage, error)
	UpsertListingPage(ctx context.Context, page int, tp *trips.TripPage) error
	GetTrip(ctx context.Context, slug string) (*trips.Trip, error)
	UpsertTrip(ctx context.Context, t *trips.Trip) error
}

// DayResolver defines the coordinate resolution needed by the geo handler.
// *geo.Resolver satisfies this interface.
type DayResolver interface {
	ResolveDay(ctx context.Context, activities []trips.Activity) []geo.ActivityMarker
}

// UsageReporter exposes paid-API usage counters for the admin surface.
// *geo.Monitor satisfies this interface.
type UsageReporter interface {
	Stats() geo.UsageStats
}

// GeoCacheReporter exposes geocoding cache statistics for the admin surface.
// *geo.Cache satisfies this interface.
type GeoCacheReporter interface {
	Stats() geo.Stats
}
