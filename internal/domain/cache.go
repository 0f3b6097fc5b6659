package domain

import (
	"context"
	"time"
)

// Cache stores run checkpoints and other short-lived values.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `json:"type" validate:"oneof=memory redis"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int           `json:"localMaxSize" validate:"gte=0"`
	LocalTTL     time.Duration `json:"localTTL"`

	// Redis settings (Pro tier)
	RedisAddr     string `json:"redisAddr" validate:"required_if=Type redis"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redisDB"`

	// Two-phase settings
	EnableTwoPhase bool `json:"enableTwoPhase"` // If true, check local first, then Redis
}
