// Package cache is the short-lived key/value store behind moderation
// de-duplication.
package cache

import (
	"context"
	"time"
)

// Store is a string key/value store with per-entry TTL. Expired entries
// behave as absent.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only if key is absent. When it is present, stored
	// is false and existing holds the current value.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (stored bool, existing string, err error)
	Delete(ctx context.Context, key string) error
}
