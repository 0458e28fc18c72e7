// Package storage mirrors fetched trip data into Postgres so that the
// last-known records survive process restarts and content API outages.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tripfolio/tripfolio/internal/trips"
)

// Querier abstracts the subset of pgxpool.Pool used by Repository.
// This allows injection of a mock in tests.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository stores snapshots of listing pages and trip details.
type Repository struct {
	q Querier
}

// NewRepository constructs a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{q: pool}
}

// NewRepositoryWithQuerier constructs a Repository with a custom Querier
// (for tests).
func NewRepositoryWithQuerier(q Querier) *Repository {
	return &Repository{q: q}
}

// GetListingPage returns the snapshot of one listing page.
// Returns nil, nil when no snapshot exists.
func (r *Repository) GetListingPage(ctx context.Context, page int) (*trips.TripPage, error) {
	const q = `SELECT data FROM listing_snapshots WHERE page = $1`

	var raw []byte
	if err := r.q.QueryRow(ctx, q, page).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying listing snapshot page %d: %w", page, err)
	}

	var tp trips.TripPage
	if err := json.Unmarshal(raw, &tp); err != nil {
		return nil, fmt.Errorf("unmarshaling listing snapshot page %d: %w", page, err)
	}
	return &tp, nil
}

// UpsertListingPage stores the snapshot of one listing page.
func (r *Repository) UpsertListingPage(ctx context.Context, page int, tp *trips.TripPage) error {
	raw, err := json.Marshal(tp)
	if err != nil {
		return fmt.Errorf("marshaling listing snapshot page %d: %w", page, err)
	}

	const q = `
		INSERT INTO listing_snapshots (page, data, fetched_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (page) DO UPDATE
		SET data       = EXCLUDED.data,
		    fetched_at = EXCLUDED.fetched_at,
		    updated_at = EXCLUDED.updated_at
	`

	if _, err := r.q.Exec(ctx, q, page, raw); err != nil {
		return fmt.Errorf("upserting listing snapshot page %d: %w", page, err)
	}
	return nil
}

// GetTrip returns the snapshot of one trip detail record.
// Returns nil, nil when no snapshot exists for the slug.
func (r *Repository) GetTrip(ctx context.Context, slug string) (*trips.Trip, error) {
	const q = `SELECT data FROM trip_snapshots WHERE slug = $1`

	var raw []byte
	if err := r.q.QueryRow(ctx, q, slug).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying trip snapshot %s: %w", slug, err)
	}

	var t trips.Trip
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("unmarshaling trip snapshot %s: %w", slug, err)
	}
	return &t, nil
}

// UpsertTrip stores the snapshot of one trip detail record.
func (r *Repository) UpsertTrip(ctx context.Context, t *trips.Trip) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshaling trip snapshot %s: %w", t.Slug, err)
	}

	const q = `
		INSERT INTO trip_snapshots (slug, data, fetched_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (slug) DO UPDATE
		SET data       = EXCLUDED.data,
		    fetched_at = EXCLUDED.fetched_at,
		    updated_at = EXCLUDED.updated_at
	`

	if _, err := r.q.Exec(ctx, q, t.Slug, raw); err != nil {
		return fmt.Errorf("upserting trip snapshot %s: %w", t.Slug, err)
	}
	return nil
}
