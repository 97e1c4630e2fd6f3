/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-backed preload cache for the session
// manager's §4.J promoted-track bookkeeping: decoder resume state for a
// track the session expects to reopen soon (a queued-next track, or a
// track the user seeks back into), keyed by track identity and a coarse
// position bucket, with a circuit breaker that disables caching rather
// than blocking playback on a degraded Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultPreloadTTL is how long a promoted preload entry survives before
// the session must re-derive it from a cold open.
const DefaultPreloadTTL = 10 * time.Minute

// KeyPreload is the Redis key prefix for cached preload entries.
const KeyPreload = "audioengine:cache:preload:"

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PreloadTTL time.Duration

	// DisableOnError disables caching on the first Redis error rather than
	// retrying indefinitely against a backend that is down.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		PreloadTTL:     DefaultPreloadTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without preload caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis preload cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}

	return true, nil
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}

	return nil
}

// PreloadEntry is the decoder resume state the session manager promotes
// for a track it expects to reopen: the source locator that produced it,
// the decoder's position at capture time, and an opaque blob a decoder
// plugin can use to skip redoing expensive setup (e.g. seek tables,
// container parse state) on the next open.
type PreloadEntry struct {
	TrackKey   string `json:"track_key"`
	PositionMs int64  `json:"position_ms"`
	DecoderBlob []byte `json:"decoder_blob"`
}

func preloadKey(trackKey string, positionBucketMs int64) string {
	return fmt.Sprintf("%s%s:%d", KeyPreload, trackKey, positionBucketMs)
}

// GetPreload retrieves a cached preload entry for trackKey at the given
// position bucket (position rounded down to a coarse grid by the caller).
func (c *Cache) GetPreload(ctx context.Context, trackKey string, positionBucketMs int64) (*PreloadEntry, bool) {
	var entry PreloadEntry
	found, err := c.get(ctx, preloadKey(trackKey, positionBucketMs), &entry)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("track_key", trackKey).Int64("position_ms", positionBucketMs).Msg("preload cache hit")
	return &entry, true
}

// SetPreload caches a preload entry with the configured TTL.
func (c *Cache) SetPreload(ctx context.Context, positionBucketMs int64, entry PreloadEntry) error {
	c.logger.Debug().Str("track_key", entry.TrackKey).Int64("position_ms", positionBucketMs).Msg("caching preload entry")
	return c.set(ctx, preloadKey(entry.TrackKey, positionBucketMs), entry, c.config.PreloadTTL)
}

// InvalidatePreload removes a cached preload entry.
func (c *Cache) InvalidatePreload(ctx context.Context, trackKey string, positionBucketMs int64) error {
	return c.delete(ctx, preloadKey(trackKey, positionBucketMs))
}
