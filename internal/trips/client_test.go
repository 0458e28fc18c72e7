package trips_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripfolio/tripfolio/internal/trips"
)

func listingPayload() map[string]any {
	return map[string]any{
		"success": true,
		"data": map[string]any{
			"trips": []map[string]any{
				{
					"id":              "trip-1",
					"title":           "Tokyo Spring",
					"slug":            "tokyo-spring",
					"location":        "Tokyo",
					"country":         "Japan",
					"startDate":       "2025-04-01",
					"endDate":         "2025-04-08",
					"daysCount":       7,
					"totalActivities": 31,
					"coverImage": map[string]any{
						"url": "/api/media/file/tokyo%20cover.jpg",
						"alt": "Shibuya crossing",
					},
				},
				{
					"id":    "trip-2",
					"title": "Seoul Weekend",
					"slug":  "seoul-weekend",
				},
			},
			"pagination": map[string]any{
				"totalDocs":   12,
				"totalPages":  2,
				"page":        1,
				"limit":       10,
				"hasNextPage": true,
				"hasPrevPage": false,
			},
		},
	}
}

func detailPayload() map[string]any {
	return map[string]any{
		"success": true,
		"data": map[string]any{
			"id":        "trip-1",
			"title":     "Tokyo Spring",
			"slug":      "tokyo-spring",
			"location":  "Tokyo",
			"country":   "Japan",
			"totalDays": 2,
			"days": []map[string]any{
				{
					"date": "2025-04-01",
					"activities": []map[string]any{
						{
							"id":       "act-1",
							"time":     "09:00",
							"title":    "Tsukiji breakfast",
							"location": "Tsukiji Outer Market",
							"category": "restaurant",
						},
						{
							"id":    "act-2",
							"time":  "14:00",
							"title": "Museum visit (rain plan)",
							"type":  "rain_plan",
							"icon":  "🏛",
						},
					},
				},
				{"date": "2025-04-02"},
			},
		},
	}
}

func TestListTrips_NormalizesFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/frontend/trips", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(listingPayload())
	}))
	defer srv.Close()

	c := trips.NewClient(srv.URL)
	page, err := c.ListTrips(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Trips, 2)

	first := page.Trips[0]
	assert.Equal(t, 7, first.DayCount)
	assert.Equal(t, 31, first.ActivityCount)
	assert.Equal(t, "published", first.Status)
	require.NotNil(t, first.CoverImage)
	assert.Equal(t, srv.URL+"/api/serve-media?file=tokyo%20cover.jpg", first.CoverImage.URL)

	// Missing numerics default to zero, missing arrays to empty slices.
	second := page.Trips[1]
	assert.Equal(t, 0, second.DayCount)
	assert.Equal(t, 0, second.ActivityCount)
	assert.NotNil(t, second.Categories)
	assert.Empty(t, second.Categories)
	assert.NotNil(t, second.Tags)
	assert.Nil(t, second.CoverImage)

	assert.Equal(t, 12, page.Pagination.TotalDocs)
	assert.True(t, page.Pagination.HasNextPage)
}

func TestGetTripBySlug_DenormalizesDays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/frontend/trips/tokyo-spring", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(detailPayload())
	}))
	defer srv.Close()

	c := trips.NewClient(srv.URL)
	trip, err := c.GetTripBySlug(context.Background(), "tokyo-spring")
	require.NoError(t, err)
	require.NotNil(t, trip)

	require.Len(t, trip.Days, 2)
	require.Len(t, trip.Days[0].Activities, 2)

	first := trip.Days[0].Activities[0]
	assert.Equal(t, "normal", first.Type, "missing type defaults to normal")
	assert.Equal(t, "📍", first.Icon, "missing icon defaults to placeholder")
	assert.Equal(t, "2025-04-01", first.Date, "date stamped from the parent day")
	assert.Equal(t, "trip-1", first.Trip, "trip stamped from the parent record")

	second := trip.Days[0].Activities[1]
	assert.Equal(t, "rain_plan", second.Type)
	assert.Equal(t, "🏛", second.Icon)

	assert.Equal(t, 2, trip.DayCount)
	assert.Equal(t, 2, trip.ActivityCount)
}

func TestGetTripBySlug_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := trips.NewClient(srv.URL)
	trip, err := c.GetTripBySlug(context.Background(), "missing-trip")
	require.NoError(t, err)
	assert.Nil(t, trip, "missing slug should yield nil, nil rather than an error")
}

func TestListTrips_EnvelopeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false})
	}))
	defer srv.Close()

	c := trips.NewClient(srv.URL)
	_, err := c.ListTrips(context.Background(), 1, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "envelope")
}

func TestListTrips_RetriesTransportFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(listingPayload())
	}))
	defer srv.Close()

	c := trips.NewClient(srv.URL)
	page, err := c.ListTrips(context.Background(), 1, 10)
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.GreaterOrEqual(t, calls.Load(), int32(2), "first attempt should have been retried")
}

func TestListTrips_NonRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := trips.NewClient(srv.URL)
	_, err := c.ListTrips(context.Background(), 1, 10)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx responses must not be retried")
}
