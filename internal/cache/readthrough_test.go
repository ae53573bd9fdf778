package cache

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-checkout/internal/domain"
	apperrors "github.com/utafrali/storefront-checkout/pkg/errors"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupTestRedis(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

type countingLoader struct {
	calls    int
	customer domain.Customer
	err      error
}

func (l *countingLoader) load(_ context.Context, id string) (*domain.Customer, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	c := l.customer
	c.CustomerID = id
	return &c, nil
}

func TestGet_MissLoadsAndStores(t *testing.T) {
	client, mr := setupTestRedis(t)
	loader := &countingLoader{customer: domain.Customer{Identity: domain.IdentityRegistered, Email: "ada@example.com"}}
	c := NewCustomerCache(client, time.Minute, loader.load, newTestLogger())
	ctx := context.Background()

	got, err := c.Get(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got.Email)
	assert.True(t, mr.Exists("storefront:customer:cust-1"))
	assert.Equal(t, time.Minute, mr.TTL("storefront:customer:cust-1"))

	got, err = c.Get(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "cust-1", got.CustomerID)
	assert.Equal(t, 1, loader.calls)
}

func TestGet_LoaderError(t *testing.T) {
	client, mr := setupTestRedis(t)
	loader := &countingLoader{err: apperrors.NotFound("customer", "cust-1")}
	c := NewCustomerCache(client, time.Minute, loader.load, newTestLogger())

	_, err := c.Get(context.Background(), "cust-1")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.False(t, mr.Exists("storefront:customer:cust-1"))
}

func TestGet_CorruptEntryReloads(t *testing.T) {
	client, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("storefront:customer:cust-1", "{not json"))
	loader := &countingLoader{customer: domain.Customer{Email: "ada@example.com"}}
	c := NewCustomerCache(client, time.Minute, loader.load, newTestLogger())

	got, err := c.Get(context.Background(), "cust-1")

	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got.Email)
	assert.Equal(t, 1, loader.calls)
}

func TestGet_RedisDownFallsBackToLoader(t *testing.T) {
	client, mr := setupTestRedis(t)
	mr.Close()
	loader := &countingLoader{customer: domain.Customer{Email: "ada@example.com"}}
	c := NewCustomerCache(client, time.Minute, loader.load, newTestLogger())

	got, err := c.Get(context.Background(), "cust-1")

	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got.Email)
}

func TestRefresh_ReplacesEntry(t *testing.T) {
	client, _ := setupTestRedis(t)
	loader := &countingLoader{customer: domain.Customer{Email: "old@example.com"}}
	c := NewCustomerCache(client, time.Minute, loader.load, newTestLogger())
	ctx := context.Background()

	_, err := c.Get(ctx, "cust-1")
	require.NoError(t, err)

	loader.customer.Email = "new@example.com"
	got, err := c.Refresh(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", got.Email)

	got, err = c.Get(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", got.Email)
	assert.Equal(t, 2, loader.calls)
}

func TestInvalidate(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewBasketCache(client, time.Minute, func(_ context.Context, id string) (*domain.Basket, error) {
		return &domain.Basket{BasketID: id}, nil
	}, newTestLogger())
	ctx := context.Background()

	c.Set(ctx, "basket-1", &domain.Basket{BasketID: "basket-1"})
	require.True(t, mr.Exists("storefront:basket:basket-1"))

	c.Invalidate(ctx, "basket-1")
	assert.False(t, mr.Exists("storefront:basket:basket-1"))
}

func TestKey(t *testing.T) {
	c := New[domain.Basket](nil, "basket", BasketPrefix, time.Minute, func(context.Context, string) (*domain.Basket, error) {
		return nil, errors.New("unused")
	}, newTestLogger())

	assert.Equal(t, "storefront:basket:b-1", c.Key("b-1"))
}
