package basket

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-checkout/internal/domain"
	"github.com/utafrali/storefront-checkout/pkg/logger"
	"github.com/utafrali/storefront-checkout/pkg/middleware"
)

// --- Mocks ---

type mockMerger struct {
	mock.Mock
}

func (m *mockMerger) MergeBasket(ctx context.Context, opts MergeOptions) (*domain.Basket, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Basket), args.Error(1)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Set(ctx context.Context, basketID string, b *domain.Basket) {
	m.Called(ctx, basketID, b)
}

type mockReporter struct {
	mock.Mock
}

func (m *mockReporter) PublishBasketMergeFailed(ctx context.Context, customerID, reason string) error {
	args := m.Called(ctx, customerID, reason)
	return args.Error(0)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func shopperCtx() context.Context {
	ctx := middleware.WithAccessToken(context.Background(), "token-1")
	return logger.WithCustomerID(ctx, "cust-1")
}

// --- Tests ---

func TestMergeIfNeeded_NoItemsSkips(t *testing.T) {
	merger := new(mockMerger)
	c := NewCoordinator(merger, nil, nil, time.Second, newTestLogger())

	c.MergeIfNeeded(shopperCtx(), false)
	c.Wait()

	merger.AssertNotCalled(t, "MergeBasket", mock.Anything, mock.Anything)
}

func TestMergeIfNeeded_DoesNotBlockCaller(t *testing.T) {
	merger := new(mockMerger)
	store := new(mockStore)
	release := make(chan time.Time)
	merged := &domain.Basket{BasketID: "basket-2", ProductItems: []domain.ProductItem{{ItemID: "i", ProductID: "p", Quantity: 1}}}

	merger.On("MergeBasket", mock.MatchedBy(func(ctx context.Context) bool {
		return middleware.AccessTokenFromContext(ctx) == "token-1"
	}), MergeOptions{CreateDestinationBasket: true}).
		WaitUntil(release).
		Return(merged, nil)
	store.On("Set", mock.Anything, "basket-2", merged).Return()

	c := NewCoordinator(merger, store, nil, 5*time.Second, newTestLogger())

	done := make(chan struct{})
	go func() {
		c.MergeIfNeeded(shopperCtx(), true)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("MergeIfNeeded blocked on the merge call")
	}

	close(release)
	c.Wait()
	merger.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestMergeIfNeeded_SurvivesRequestCancellation(t *testing.T) {
	merger := new(mockMerger)
	merger.On("MergeBasket", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything).Return(&domain.Basket{BasketID: "basket-2"}, nil)

	c := NewCoordinator(merger, nil, nil, time.Second, newTestLogger())

	ctx, cancel := context.WithCancel(shopperCtx())
	cancel()
	c.MergeIfNeeded(ctx, true)
	c.Wait()

	merger.AssertExpectations(t)
}

func TestMergeIfNeeded_FailureIsReportedOnce(t *testing.T) {
	merger := new(mockMerger)
	reporter := new(mockReporter)
	merger.On("MergeBasket", mock.Anything, mock.Anything).Return(nil, errors.New("basket locked")).Once()
	reporter.On("PublishBasketMergeFailed", mock.Anything, "cust-1", "basket locked").Return(nil)

	c := NewCoordinator(merger, nil, reporter, time.Second, newTestLogger())
	c.MergeIfNeeded(shopperCtx(), true)
	c.Wait()

	merger.AssertNumberOfCalls(t, "MergeBasket", 1)
	reporter.AssertExpectations(t)
}

func TestMergeIfNeeded_ReportErrorIsSwallowed(t *testing.T) {
	merger := new(mockMerger)
	reporter := new(mockReporter)
	merger.On("MergeBasket", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))
	reporter.On("PublishBasketMergeFailed", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("kafka down"))

	c := NewCoordinator(merger, nil, reporter, time.Second, newTestLogger())

	require.NotPanics(t, func() {
		c.MergeIfNeeded(shopperCtx(), true)
		c.Wait()
	})
	reporter.AssertExpectations(t)
}

func TestNewCoordinator_DefaultTimeout(t *testing.T) {
	c := NewCoordinator(new(mockMerger), nil, nil, 0, newTestLogger())
	assert.Equal(t, DefaultMergeTimeout, c.timeout)
}
