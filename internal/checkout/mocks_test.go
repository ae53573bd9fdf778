package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/utafrali/storefront-checkout/internal/domain"
	"github.com/utafrali/storefront-checkout/internal/identity"
	"github.com/utafrali/storefront-checkout/internal/repository"
	apperrors "github.com/utafrali/storefront-checkout/pkg/errors"
)

// memRepo is an in-memory FlowRepository with the same epoch guard as the
// PostgreSQL one. Flows are copied in and out.
type memRepo struct {
	mu    sync.Mutex
	flows map[string]domain.CheckoutFlow
}

func newMemRepo() *memRepo {
	return &memRepo{flows: make(map[string]domain.CheckoutFlow)}
}

func (r *memRepo) Create(_ context.Context, flow *domain.CheckoutFlow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[flow.ID] = *flow
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*domain.CheckoutFlow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[id]
	if !ok {
		return nil, apperrors.NotFound("checkout flow", id)
	}
	return &f, nil
}

func (r *memRepo) Update(_ context.Context, flow *domain.CheckoutFlow, expectedEpoch int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.flows[flow.ID]
	if !ok {
		return apperrors.NotFound("checkout flow", flow.ID)
	}
	if cur.Epoch != expectedEpoch {
		return repository.ErrStaleFlow
	}
	flow.UpdatedAt = time.Now().UTC()
	r.flows[flow.ID] = *flow
	return nil
}

func (r *memRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, f := range r.flows {
		if f.ExpiresAt.Before(before) {
			delete(r.flows, id)
			n++
		}
	}
	return n, nil
}

func (r *memRepo) get(id string) domain.CheckoutFlow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flows[id]
}

func (r *memRepo) mutate(id string, fn func(*domain.CheckoutFlow)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.flows[id]
	fn(&f)
	r.flows[id] = f
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Submit(ctx context.Context, in identity.SubmitInput) domain.AuthOutcome {
	args := m.Called(ctx, in)
	return args.Get(0).(domain.AuthOutcome)
}

type mockSessions struct {
	mock.Mock
}

func (m *mockSessions) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type mockCustomerAPI struct {
	mock.Mock
}

func (m *mockCustomerAPI) RemoveCustomerAddress(ctx context.Context, customerID, addressID string) error {
	args := m.Called(ctx, customerID, addressID)
	return args.Error(0)
}

func (m *mockCustomerAPI) CreateCustomerAddress(ctx context.Context, customerID string, addr domain.Address) (*domain.Address, error) {
	args := m.Called(ctx, customerID, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Address), args.Error(1)
}

func (m *mockCustomerAPI) UpdateCustomerAddress(ctx context.Context, customerID string, addr domain.Address) (*domain.Address, error) {
	args := m.Called(ctx, customerID, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Address), args.Error(1)
}

type mockBasketAPI struct {
	mock.Mock
}

func (m *mockBasketAPI) basket(args mock.Arguments) (*domain.Basket, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Basket), args.Error(1)
}

func (m *mockBasketAPI) GetCurrentBasket(ctx context.Context) (*domain.Basket, error) {
	return m.basket(m.Called(ctx))
}

func (m *mockBasketAPI) UpdateShippingAddress(ctx context.Context, basketID string, addr domain.Address) (*domain.Basket, error) {
	return m.basket(m.Called(ctx, basketID, addr))
}

func (m *mockBasketAPI) UpdateBillingAddress(ctx context.Context, basketID string, addr domain.Address) (*domain.Basket, error) {
	return m.basket(m.Called(ctx, basketID, addr))
}

func (m *mockBasketAPI) SetShippingMethod(ctx context.Context, basketID, methodID string) (*domain.Basket, error) {
	return m.basket(m.Called(ctx, basketID, methodID))
}

func (m *mockBasketAPI) AddPaymentInstrument(ctx context.Context, basketID, methodID string) (*domain.Basket, error) {
	return m.basket(m.Called(ctx, basketID, methodID))
}

type mockCustomerCache struct {
	mock.Mock
}

func (m *mockCustomerCache) Get(ctx context.Context, customerID string) (*domain.Customer, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Customer), args.Error(1)
}

func (m *mockCustomerCache) Refresh(ctx context.Context, customerID string) (*domain.Customer, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Customer), args.Error(1)
}

func (m *mockCustomerCache) Invalidate(ctx context.Context, customerID string) {
	m.Called(ctx, customerID)
}

type mockBasketCache struct {
	mock.Mock
}

func (m *mockBasketCache) Get(ctx context.Context, basketID string) (*domain.Basket, error) {
	args := m.Called(ctx, basketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Basket), args.Error(1)
}

func (m *mockBasketCache) Set(ctx context.Context, basketID string, b *domain.Basket) {
	m.Called(ctx, basketID, b)
}

func (m *mockBasketCache) Invalidate(ctx context.Context, basketID string) {
	m.Called(ctx, basketID)
}

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishContactSubmitted(ctx context.Context, flow *domain.CheckoutFlow, outcome domain.OutcomeKind) error {
	args := m.Called(ctx, flow, outcome)
	return args.Error(0)
}

func (m *mockEvents) PublishStepAdvanced(ctx context.Context, flow *domain.CheckoutFlow, from domain.Step) error {
	args := m.Called(ctx, flow, from)
	return args.Error(0)
}
