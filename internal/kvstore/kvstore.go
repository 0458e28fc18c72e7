// Package kvstore provides the durable string-keyed blob storage backing
// the geocoding cache and the API usage counters. Each consumer owns one
// namespaced key holding a single JSON blob.
package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Store wraps a Redis client with a plain get/set/remove surface.
// No TTLs are applied at this layer; expiry is the caller's policy.
type Store struct {
	client *redis.Client
}

// NewStore constructs a Store over the given client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Connect parses redisURL, creates a client, and verifies connectivity
// with a ping.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}

// Get retrieves the blob stored under key.
// Returns nil, false, nil when the key is absent (not an error).
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("kvstore get %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores the blob under key with no expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("kvstore set %s: %w", key, err)
	}
	return nil
}

// Delete removes the blob stored under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("kvstore delete %s: %w", key, err)
	}
	return nil
}
