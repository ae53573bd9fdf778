package repository

import (
	"context"
	"errors"
	"time"

	"github.com/utafrali/storefront-checkout/internal/domain"
)

// ErrStaleFlow is returned by Update when the stored flow has moved to a
// newer epoch than the caller expected. The caller's changes belong to a
// step that is no longer active and must be dropped.
var ErrStaleFlow = errors.New("checkout flow changed since it was read")

// FlowRepository defines the interface for checkout flow persistence operations.
type FlowRepository interface {
	// Create inserts a new checkout flow into the store.
	Create(ctx context.Context, flow *domain.CheckoutFlow) error

	// GetByID retrieves a checkout flow by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.CheckoutFlow, error)

	// Update writes flow if the stored epoch still equals expectedEpoch.
	Update(ctx context.Context, flow *domain.CheckoutFlow, expectedEpoch int64) error

	// DeleteExpired removes flows that expired before the given time and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
