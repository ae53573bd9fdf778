// Package basket folds a shopper's anonymous basket into their customer
// basket after they sign in.
package basket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/storefront-checkout/internal/domain"
	"github.com/utafrali/storefront-checkout/pkg/logger"
	"github.com/utafrali/storefront-checkout/pkg/tracing"
)

// DefaultMergeTimeout bounds a single merge call.
const DefaultMergeTimeout = 15 * time.Second

var mergesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_basket_merge_total",
		Help: "Basket merges after sign-in by result.",
	},
	[]string{"result"},
)

var tracer = tracing.Tracer("github.com/utafrali/storefront-checkout/internal/basket")

// MergeOptions are passed to the basket service merge action.
type MergeOptions struct {
	CreateDestinationBasket bool
}

// Merger calls the basket service merge action as the shopper whose token
// is in ctx.
type Merger interface {
	MergeBasket(ctx context.Context, opts MergeOptions) (*domain.Basket, error)
}

// BasketStore receives the merged basket so later reads see it.
type BasketStore interface {
	Set(ctx context.Context, basketID string, b *domain.Basket)
}

// FailureReporter records merges that did not complete.
type FailureReporter interface {
	PublishBasketMergeFailed(ctx context.Context, customerID, reason string) error
}

// Coordinator runs basket merges in the background. A merge is attempted
// once; its result never reaches the checkout flow.
type Coordinator struct {
	baskets  Merger
	store    BasketStore
	reporter FailureReporter
	timeout  time.Duration
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewCoordinator creates a Coordinator. store and reporter may be nil.
func NewCoordinator(baskets Merger, store BasketStore, reporter FailureReporter, timeout time.Duration, logger *slog.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultMergeTimeout
	}
	return &Coordinator{
		baskets:  baskets,
		store:    store,
		reporter: reporter,
		timeout:  timeout,
		logger:   logger,
	}
}

// MergeIfNeeded starts a merge when the pre-login basket had items and
// returns immediately. The merge outlives the request that triggered it.
func (c *Coordinator) MergeIfNeeded(ctx context.Context, hadItems bool) {
	if !hadItems {
		mergesTotal.WithLabelValues("skipped").Inc()
		return
	}

	mergeCtx := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.merge(mergeCtx)
	}()
}

// Wait blocks until in-flight merges have finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) merge(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "basket.Merge")
	merged, err := c.baskets.MergeBasket(ctx, MergeOptions{CreateDestinationBasket: true})
	tracing.End(span, err)

	customerID := logger.CustomerIDFromContext(ctx)
	if err != nil {
		mergesTotal.WithLabelValues("failed").Inc()
		c.logger.ErrorContext(ctx, "basket merge failed",
			slog.String("customer_id", customerID),
			slog.String("error", err.Error()),
		)
		if c.reporter != nil {
			// The merge deadline may have passed; reporting gets its own.
			reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
			defer cancel()
			if err := c.reporter.PublishBasketMergeFailed(reportCtx, customerID, err.Error()); err != nil {
				c.logger.ErrorContext(ctx, "failed to publish basket_merge_failed event",
					slog.String("customer_id", customerID),
					slog.String("error", err.Error()),
				)
			}
		}
		return
	}

	mergesTotal.WithLabelValues("merged").Inc()
	if merged == nil {
		c.logger.InfoContext(ctx, "basket merged", slog.String("customer_id", customerID))
		return
	}
	if c.store != nil && merged.BasketID != "" {
		c.store.Set(ctx, merged.BasketID, merged)
	}
	c.logger.InfoContext(ctx, "basket merged",
		slog.String("customer_id", customerID),
		slog.String("basket_id", merged.BasketID),
		slog.Int("items", len(merged.ProductItems)),
	)
}
