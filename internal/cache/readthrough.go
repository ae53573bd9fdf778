// Package cache keeps the customer and basket views fetched from their
// owning services in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront-checkout/internal/domain"
)

// Key prefixes.
const (
	CustomerPrefix = "storefront:customer:"
	BasketPrefix   = "storefront:basket:"
)

var lookupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_cache_lookups_total",
		Help: "Read-through cache lookups by cache and result.",
	},
	[]string{"cache", "result"},
)

// Loader fetches a value from its owning service on a miss.
type Loader[T any] func(ctx context.Context, id string) (*T, error)

// ReadThrough serves values from Redis and falls back to the loader.
// Redis errors are logged and never fail a lookup.
type ReadThrough[T any] struct {
	client redis.Cmdable
	name   string
	prefix string
	ttl    time.Duration
	load   Loader[T]
	logger *slog.Logger
}

// New creates a read-through cache.
func New[T any](client redis.Cmdable, name, prefix string, ttl time.Duration, load Loader[T], logger *slog.Logger) *ReadThrough[T] {
	return &ReadThrough[T]{
		client: client,
		name:   name,
		prefix: prefix,
		ttl:    ttl,
		load:   load,
		logger: logger,
	}
}

// NewCustomerCache caches customers under storefront:customer:<id>.
func NewCustomerCache(client redis.Cmdable, ttl time.Duration, load Loader[domain.Customer], logger *slog.Logger) *ReadThrough[domain.Customer] {
	return New(client, "customer", CustomerPrefix, ttl, load, logger)
}

// NewBasketCache caches baskets under storefront:basket:<id>.
func NewBasketCache(client redis.Cmdable, ttl time.Duration, load Loader[domain.Basket], logger *slog.Logger) *ReadThrough[domain.Basket] {
	return New(client, "basket", BasketPrefix, ttl, load, logger)
}

// Key returns the Redis key for id.
func (c *ReadThrough[T]) Key(id string) string {
	return c.prefix + id
}

// Get returns the cached value for id, loading and storing it on a miss.
func (c *ReadThrough[T]) Get(ctx context.Context, id string) (*T, error) {
	data, err := c.client.Get(ctx, c.Key(id)).Bytes()
	switch {
	case err == nil:
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			lookupsTotal.WithLabelValues(c.name, "hit").Inc()
			return &v, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cache entry", slog.String("key", c.Key(id)))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.WarnContext(ctx, "cache read failed",
			slog.String("key", c.Key(id)),
			slog.String("error", err.Error()),
		)
	}

	lookupsTotal.WithLabelValues(c.name, "miss").Inc()
	return c.loadAndStore(ctx, id)
}

// Refresh drops the cached value and loads a fresh one.
func (c *ReadThrough[T]) Refresh(ctx context.Context, id string) (*T, error) {
	c.Invalidate(ctx, id)
	return c.loadAndStore(ctx, id)
}

// Set stores v for id.
func (c *ReadThrough[T]) Set(ctx context.Context, id string, v *T) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.WarnContext(ctx, "cache encode failed", slog.String("key", c.Key(id)), slog.String("error", err.Error()))
		return
	}
	if err := c.client.Set(ctx, c.Key(id), data, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "cache write failed", slog.String("key", c.Key(id)), slog.String("error", err.Error()))
	}
}

// Invalidate removes the cached value for id.
func (c *ReadThrough[T]) Invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, c.Key(id)).Err(); err != nil {
		c.logger.WarnContext(ctx, "cache invalidate failed", slog.String("key", c.Key(id)), slog.String("error", err.Error()))
	}
}

func (c *ReadThrough[T]) loadAndStore(ctx context.Context, id string) (*T, error) {
	v, err := c.load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", c.name, id, err)
	}
	c.Set(ctx, id, v)
	return v, nil
}
