package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/storefront-checkout/internal/address"
	"github.com/utafrali/storefront-checkout/internal/domain"
	"github.com/utafrali/storefront-checkout/internal/identity"
	"github.com/utafrali/storefront-checkout/internal/repository"
	apperrors "github.com/utafrali/storefront-checkout/pkg/errors"
	"github.com/utafrali/storefront-checkout/pkg/logger"
	"github.com/utafrali/storefront-checkout/pkg/middleware"
	"github.com/utafrali/storefront-checkout/pkg/tracing"
)

// DefaultFlowTTL is how long a checkout flow remains valid.
const DefaultFlowTTL = 30 * time.Minute

// LoginPath is where the storefront sends a shopper after signing out.
const LoginPath = "/login"

var (
	stepChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_checkout_step_changes_total",
			Help: "Checkout step transitions by source and target step.",
		},
		[]string{"from", "to"},
	)
	staleWritesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_checkout_stale_writes_total",
			Help: "Flow writes dropped because the step changed while the request ran.",
		},
	)
)

var tracer = tracing.Tracer("github.com/utafrali/storefront-checkout/internal/checkout")

// ContactResolver turns a contact-info submission into an outcome.
type ContactResolver interface {
	Submit(ctx context.Context, in identity.SubmitInput) domain.AuthOutcome
}

// SessionEnder signs the shopper in ctx out.
type SessionEnder interface {
	Logout(ctx context.Context) error
}

// CustomerAPI mutates a customer's address book.
type CustomerAPI interface {
	address.Remover
	CreateCustomerAddress(ctx context.Context, customerID string, addr domain.Address) (*domain.Address, error)
	UpdateCustomerAddress(ctx context.Context, customerID string, addr domain.Address) (*domain.Address, error)
}

// BasketAPI reads and mutates the shopper's basket.
type BasketAPI interface {
	GetCurrentBasket(ctx context.Context) (*domain.Basket, error)
	UpdateShippingAddress(ctx context.Context, basketID string, addr domain.Address) (*domain.Basket, error)
	UpdateBillingAddress(ctx context.Context, basketID string, addr domain.Address) (*domain.Basket, error)
	SetShippingMethod(ctx context.Context, basketID, methodID string) (*domain.Basket, error)
	AddPaymentInstrument(ctx context.Context, basketID, methodID string) (*domain.Basket, error)
}

// CustomerReader is the cached customer view.
type CustomerReader interface {
	Get(ctx context.Context, customerID string) (*domain.Customer, error)
	Refresh(ctx context.Context, customerID string) (*domain.Customer, error)
	Invalidate(ctx context.Context, customerID string)
}

// BasketReader is the cached basket view.
type BasketReader interface {
	Get(ctx context.Context, basketID string) (*domain.Basket, error)
	Set(ctx context.Context, basketID string, b *domain.Basket)
	Invalidate(ctx context.Context, basketID string)
}

// EventPublisher publishes checkout flow events.
type EventPublisher interface {
	PublishContactSubmitted(ctx context.Context, flow *domain.CheckoutFlow, outcome domain.OutcomeKind) error
	PublishStepAdvanced(ctx context.Context, flow *domain.CheckoutFlow, from domain.Step) error
}

// Dependencies are the collaborators of a Service. CustomerCache and
// BasketCache serve reads; writes go to Customers and Baskets and then
// refresh or invalidate the cached view.
type Dependencies struct {
	Repo          repository.FlowRepository
	Resolver      ContactResolver
	Sessions      SessionEnder
	Customers     CustomerAPI
	Baskets       BasketAPI
	CustomerCache CustomerReader
	BasketCache   BasketReader
	Events        EventPublisher
	FlowTTL       time.Duration
	Logger        *slog.Logger
}

// Service applies shopper actions to checkout flows.
type Service struct {
	repo        repository.FlowRepository
	resolver    ContactResolver
	sessions    SessionEnder
	customerAPI CustomerAPI
	basketAPI   BasketAPI
	customers   CustomerReader
	baskets     BasketReader
	events      EventPublisher
	ttl         time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a checkout Service.
func NewService(deps Dependencies) *Service {
	ttl := deps.FlowTTL
	if ttl <= 0 {
		ttl = DefaultFlowTTL
	}
	return &Service{
		repo:        deps.Repo,
		resolver:    deps.Resolver,
		sessions:    deps.Sessions,
		customerAPI: deps.Customers,
		basketAPI:   deps.Baskets,
		customers:   deps.CustomerCache,
		baskets:     deps.BasketCache,
		events:      deps.Events,
		ttl:         ttl,
		logger:      deps.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// View is what the storefront renders for a flow.
type View struct {
	FlowID             string                `json:"flow_id"`
	Step               domain.Step           `json:"step"`
	Epoch              int64                 `json:"epoch"`
	ErrorMessage       string                `json:"error_message,omitempty"`
	Outcome            *domain.AuthOutcome   `json:"outcome,omitempty"`
	Session            *domain.AuthSession   `json:"session,omitempty"`
	Modal              domain.AuthModal      `json:"modal"`
	PasswordlessIntent bool                  `json:"passwordless_intent"`
	Selection          domain.SelectionState `json:"selection"`
	SelectionView      domain.SelectionView  `json:"selection_view,omitempty"`
	AddressForm        *domain.Address       `json:"address_form,omitempty"`
	FocusTarget        domain.FocusTarget    `json:"focus_target,omitempty"`
	Registered         bool                  `json:"registered"`
	CustomerEmail      string                `json:"customer_email,omitempty"`
	ContactEmail       string                `json:"contact_email,omitempty"`
	Addresses          []domain.Address      `json:"addresses,omitempty"`
	ShippingAddress    *domain.Address       `json:"shipping_address,omitempty"`
	ShippingMethodID   string                `json:"shipping_method_id,omitempty"`
	Redirect           string                `json:"redirect,omitempty"`
	ExpiresAt          time.Time             `json:"expires_at"`
}

// StartInput identifies the shopper and basket a flow is for.
type StartInput struct {
	CustomerID string
	BasketID   string
}

// ContactInfoInput is a contact-info form submission. An empty password
// means guest checkout.
type ContactInfoInput struct {
	Email    string
	Password string
	Page     domain.PageContext
}

// PaymentInput is a payment step submission.
type PaymentInput struct {
	MethodID              string
	BillingSameAsShipping bool
	BillingAddress        *domain.Address
}

// Start creates a flow at the contact-info step.
func (s *Service) Start(ctx context.Context, in StartInput) (_ *View, err error) {
	ctx, span := tracer.Start(ctx, "checkout.Start")
	defer func() { tracing.End(span, err) }()

	if in.CustomerID == "" {
		return nil, apperrors.InvalidInput("customer id is required")
	}
	if in.BasketID == "" {
		return nil, apperrors.InvalidInput("basket id is required")
	}

	var (
		customer *domain.Customer
		basket   *domain.Basket
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.customers.Get(gctx, in.CustomerID)
		if err != nil {
			return fmt.Errorf("get customer: %w", err)
		}
		customer = c
		return nil
	})
	g.Go(func() error {
		b, err := s.baskets.Get(gctx, in.BasketID)
		if err != nil {
			return fmt.Errorf("get basket: %w", err)
		}
		basket = b
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := s.now()
	flow := &domain.CheckoutFlow{
		ID:         uuid.New().String(),
		CustomerID: in.CustomerID,
		BasketID:   in.BasketID,
		Step:       domain.StepContactInfo,
		Modal:      domain.AuthModal{View: domain.ModalViewPassword},
		ExpiresAt:  now.Add(s.ttl),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, flow); err != nil {
		return nil, fmt.Errorf("create checkout flow: %w", err)
	}

	s.logger.InfoContext(ctx, "checkout flow started",
		slog.String("flow_id", flow.ID),
		slog.String("customer_id", flow.CustomerID),
		slog.String("basket_id", flow.BasketID),
		slog.Bool("registered", customer.IsRegistered()),
	)

	return render(flow, customer, basket), nil
}

// Get returns the current view of a flow.
func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	flow, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, flow), nil
}

// RequestPasswordless routes the next contact-info submission to a
// passwordless challenge.
func (s *Service) RequestPasswordless(ctx context.Context, id string) (*View, error) {
	flow, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireStep(flow, domain.StepContactInfo); err != nil {
		return nil, err
	}

	flow.PasswordlessIntent = true
	flow.ErrorMessage = ""

	v, _, err := s.commit(ctx, flow, flow.Epoch)
	return v, err
}

// SubmitContactInfo resolves the shopper's identity. Failures land in the
// error slot; guest continuation and login advance to the shipping address.
func (s *Service) SubmitContactInfo(ctx context.Context, id string, in ContactInfoInput) (_ *View, err error) {
	ctx, span := tracer.Start(ctx, "checkout.SubmitContactInfo")
	defer func() { tracing.End(span, err) }()

	flow, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireStep(flow, domain.StepContactInfo); err != nil {
		return nil, err
	}
	ctx = logger.WithFlowID(ctx, flow.ID)
	readEpoch := flow.Epoch

	basket, err := s.baskets.Get(ctx, flow.BasketID)
	basketUnknown := err != nil
	if basketUnknown {
		s.logger.WarnContext(ctx, "pre-login basket unavailable",
			slog.String("basket_id", flow.BasketID),
			slog.String("error", err.Error()),
		)
		basket = &domain.Basket{BasketID: flow.BasketID}
	}

	outcome := s.resolver.Submit(ctx, identity.SubmitInput{
		Submission:         domain.NewContactInfoSubmission(in.Email, in.Password),
		Basket:             basket,
		BasketUnknown:      basketUnknown,
		PasswordlessIntent: flow.PasswordlessIntent,
		Page:               in.Page,
	})

	if v, err := s.staleView(ctx, flow.ID, domain.StepContactInfo, readEpoch); v != nil || err != nil {
		return withOutcome(v, outcome), err
	}

	flow.ErrorMessage = ""
	flow.PasswordlessIntent = false
	flow.Outcome = &outcome

	from := flow.Step
	advanced := false
	switch {
	case outcome.Failed():
		flow.ErrorMessage = outcome.Reason
	case outcome.Kind == domain.OutcomePasswordlessChallengeIssued:
		flow.Modal = domain.AuthModal{View: domain.ModalViewEnterCode, Open: true}
	case outcome.Advances():
		s.baskets.Invalidate(ctx, flow.BasketID)
		if outcome.Session != nil {
			s.customers.Invalidate(ctx, flow.CustomerID)
			// The rest of this request runs as the signed-in shopper.
			ctx = middleware.WithAccessToken(ctx, outcome.Session.AccessToken)
			flow.CustomerID = outcome.Session.CustomerID
			s.adoptCustomerBasket(ctx, flow)
		}

		customer, current := s.snapshot(ctx, flow)
		if err := s.advance(flow); err != nil {
			return nil, err
		}
		enterStep(flow, customer, current)
		advanced = true
	}

	v, committed, err := s.commit(ctx, flow, readEpoch)
	if err != nil {
		return nil, err
	}
	if committed {
		if err := s.events.PublishContactSubmitted(ctx, flow, outcome.Kind); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish contact_submitted event",
				slog.String("flow_id", flow.ID),
				slog.String("error", err.Error()),
			)
		}
		if advanced {
			s.stepChanged(ctx, flow, from)
		}
	}
	return withOutcome(v, outcome), nil
}

// GoToStep reopens a completed step. A signed-in shopper must sign out
// before editing contact info.
func (s *Service) GoToStep(ctx context.Context, id string, step domain.Step) (_ *View, err error) {
	ctx, span := tracer.Start(ctx, "checkout.GoToStep")
	defer func() { tracing.End(span, err) }()

	if !step.Valid() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown checkout step %q", step))
	}

	flow, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if flow.Step.Before(step) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("step %s has not been reached", step))
	}

	customer, err := s.customer(ctx, flow.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	if step == domain.StepContactInfo && customer.IsRegistered() {
		return nil, apperrors.Conflict("sign out to change contact information")
	}

	basket, err := s.baskets.Get(ctx, flow.BasketID)
	if err != nil {
		s.logger.WarnContext(ctx, "basket unavailable for step entry",
			slog.String("basket_id", flow.BasketID),
			slog.String("error", err.Error()),
		)
	}

	readEpoch, from := flow.Epoch, flow.Step
	if err := s.jump(flow, step); err != nil {
		return nil, err
	}
	enterStep(flow, customer, basket)

	v, committed, err := s.commit(ctx, flow, readEpoch)
	if err != nil {
		return nil, err
	}
	if committed {
		s.stepChanged(ctx, flow, from)
	}
	return v, nil
}

// SignOut ends a registered shopper's session and returns the flow to
// contact info as a guest.
func (s *Service) SignOut(ctx context.Context, id string) (_ *View, err error) {
	ctx, span := tracer.Start(ctx, "checkout.SignOut")
	defer func() { tracing.End(span, err) }()

	flow, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	customer, err := s.customer(ctx, flow.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	if !customer.IsRegistered() {
		return nil, apperrors.Conflict("shopper is not signed in")
	}
	readEpoch, from := flow.Epoch, flow.Step

	if err := s.sessions.Logout(ctx); err != nil {
		s.logger.WarnContext(ctx, "sign out failed",
			slog.String("flow_id", flow.ID),
			slog.String("error", err.Error()),
		)
		flow.ErrorMessage = slotMessage(err)
		v, _, err := s.commit(ctx, flow, readEpoch)
		return v, err
	}

	s.customers.Invalidate(ctx, flow.CustomerID)
	s.baskets.Invalidate(ctx, flow.BasketID)

	// The guest id arrives with the shopper's next token.
	flow.CustomerID = ""
	if err := s.jump(flow, domain.StepContactInfo); err != nil {
		return nil, err
	}

	v, committed, err := s.commit(ctx, flow, readEpoch)
	if err != nil {
		return nil, err
	}
	if committed {
		s.stepChanged(ctx, flow, from)
		v.Redirect = LoginPath
	}

	s.logger.InfoContext(ctx, "shopper signed out", slog.String("flow_id", flow.ID))
	return v, nil
}

// SelectAddress picks a saved address on the active address step.
func (s *Service) SelectAddress(ctx context.Context, id, addressID string) (*View, error) {
	flow, customer, err := s.loadAddressStep(ctx, id)
	if err != nil {
		return nil, err
	}

	sel := s.restoreSelector(flow, customer, nil)
	if err := sel.SelectAddress(addressID); err != nil {
		return nil, err
	}
	storeSelector(flow, sel)

	v, _, err := s.commit(ctx, flow, flow.Epoch)
	return v, err
}

// ToggleAddressEdit opens the form for a saved address, or toggles the
// blank add form when addr is nil.
func (s *Service) ToggleAddressEdit(ctx context.Context, id string, addr *domain.Address) (*View, error) {
	flow, customer, err := s.loadAddressStep(ctx, id)
	if err != nil {
		return nil, err
	}

	sel := s.restoreSelector(flow, customer, nil)
	if err := sel.BeginEdit(addr); err != nil {
		return nil, err
	}
	storeSelector(flow, sel)

	v, _, err := s.commit(ctx, flow, flow.Epoch)
	return v, err
}

// RemoveAddress deletes a saved address from the shopper's address book.
func (s *Service) RemoveAddress(ctx context.Context, id, addressID string) (_ *View, err error) {
	ctx, span := tracer.Start(ctx, "checkout.RemoveAddress")
	defer func() { tracing.End(span, err) }()

	flow, customer, err := s.loadAddressStep(ctx, id)
	if err != nil {
		return nil, err
	}
	if !customer.IsRegistered() {
		return nil, apperrors.Forbidden("only registered customers have saved addresses")
	}
	if _, ok := customer.FindAddress(addressID); !ok {
		return nil, apperrors.NotFound("address", addressID)
	}
	readEpoch := flow.Epoch

	sel := s.restoreSelector(flow, customer, nil)
	flow.ErrorMessage = ""
	if err := sel.RemoveAddress(ctx, addressID); err != nil {
		s.logger.WarnContext(ctx, "address removal failed",
			slog.String("flow_id", flow.ID),
			slog.String("address_id", addressID),
			slog.String("error", err.Error()),
		)
		flow.ErrorMessage = slotMessage(err)
	} else {
		refreshed, err := s.customers.Refresh(ctx, customer.CustomerID)
		if err != nil {
			s.logger.WarnContext(ctx, "customer refresh failed", slog.String("error", err.Error()))
		} else {
			sel.SetCustomer(refreshed)
			s.reconcileWithBasket(ctx, flow, sel)
		}
	}
	storeSelector(flow, sel)

	v, _, err := s.commit(ctx, flow, readEpoch)
	return v, err
}

// SubmitShippingAddress saves the shipping address and advances to the
// shipping method.
func (s *Service) SubmitShippingAddress(ctx context.Context, id string, addr domain.Address) (_ *View, err error) {
	ctx, span := tracer.Start(ctx, "checkout.SubmitShippingAddress")
	defer func() { tracing.End(span, err) }()

	flow, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireStep(flow, domain.StepShippingAddress); err != nil {
		return nil, err
	}
	customer, err := s.customer(ctx, flow.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	readEpoch := flow.Epoch

	sel := s.restoreSelector(flow, customer, s.saveShippingAddress(flow.BasketID, customer))
	flow.ErrorMessage = ""
	final, err := sel.Submit(ctx, addr)
	if err != nil {
		return s.keepForm(ctx, flow, readEpoch, addr, err)
	}

	from := flow.Step
	if err := s.advance(flow); err != nil {
		return nil, err
	}

	v, committed, err := s.commit(ctx, flow, readEpoch)
	if err != nil {
		return nil, err
	}
	if committed {
		s.stepChanged(ctx, flow, from)
	}

	s.logger.InfoContext(ctx, "shipping address set",
		slog.String("flow_id", flow.ID),
		slog.String("address_id", final.AddressID),
	)
	return v, nil
}

// SetShippingMethod applies the shipping method and advances to payment.
func (s *Service) SetShippingMethod(ctx context.Context, id, methodID string) (_ *View, err error) {
	ctx, span := tracer.Start(ctx, "checkout.SetShippingMethod")
	defer func() { tracing.End(span, err) }()

	flow, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireStep(flow, domain.StepShippingMethod); err != nil {
		return nil, err
	}
	readEpoch := flow.Epoch

	flow.ErrorMessage = ""
	basket, err := s.basketAPI.SetShippingMethod(ctx, flow.BasketID, methodID)
	if err != nil {
		s.logger.WarnContext(ctx, "set shipping method failed",
			slog.String("flow_id", flow.ID),
			slog.String("error", err.Error()),
		)
		flow.ErrorMessage = slotMessage(err)
		v, _, err := s.commit(ctx, flow, readEpoch)
		return v, err
	}
	s.baskets.Set(ctx, flow.BasketID, basket)

	customer, err := s.customer(ctx, flow.CustomerID)
	if err != nil {
		s.logger.WarnContext(ctx, "customer unavailable for billing step", slog.String("error", err.Error()))
	}

	from := flow.Step
	if err := s.advance(flow); err != nil {
		return nil, err
	}
	enterStep(flow, customer, basket)

	v, committed, err := s.commit(ctx, flow, readEpoch)
	if err != nil {
		return nil, err
	}
	if committed {
		s.stepChanged(ctx, flow, from)
	}
	return v, nil
}

// SubmitPayment sets the billing address and payment instrument and
// advances to review.
func (s *Service) SubmitPayment(ctx context.Context, id string, in PaymentInput) (_ *View, err error) {
	ctx, span := tracer.Start(ctx, "checkout.SubmitPayment")
	defer func() { tracing.End(span, err) }()

	flow, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireStep(flow, domain.StepPayment); err != nil {
		return nil, err
	}

	basket, err := s.baskets.Get(ctx, flow.BasketID)
	if err != nil {
		return nil, fmt.Errorf("get basket: %w", err)
	}

	var billing domain.Address
	switch {
	case in.BillingSameAsShipping:
		if basket.ShippingAddress == nil {
			return nil, apperrors.InvalidInput("basket has no shipping address")
		}
		billing = *basket.ShippingAddress
	case in.BillingAddress != nil:
		billing = *in.BillingAddress
	default:
		return nil, apperrors.InvalidInput("billing address is required")
	}

	customer, err := s.customer(ctx, flow.CustomerID)
	if err != nil {
		s.logger.WarnContext(ctx, "customer unavailable for billing step", slog.String("error", err.Error()))
	}
	readEpoch := flow.Epoch

	sel := s.restoreSelector(flow, customer, func(ctx context.Context, final domain.Address) error {
		if _, err := s.basketAPI.UpdateBillingAddress(ctx, flow.BasketID, final.Structural()); err != nil {
			return fmt.Errorf("update billing address: %w", err)
		}
		return nil
	})
	flow.ErrorMessage = ""
	if _, err := sel.Submit(ctx, billing); err != nil {
		return s.keepForm(ctx, flow, readEpoch, billing, err)
	}

	updated, err := s.basketAPI.AddPaymentInstrument(ctx, flow.BasketID, in.MethodID)
	if err != nil {
		s.logger.WarnContext(ctx, "add payment instrument failed",
			slog.String("flow_id", flow.ID),
			slog.String("error", err.Error()),
		)
		flow.ErrorMessage = slotMessage(err)
		v, _, err := s.commit(ctx, flow, readEpoch)
		return v, err
	}
	s.baskets.Set(ctx, flow.BasketID, updated)

	from := flow.Step
	if err := s.advance(flow); err != nil {
		return nil, err
	}

	v, committed, err := s.commit(ctx, flow, readEpoch)
	if err != nil {
		return nil, err
	}
	if committed {
		s.stepChanged(ctx, flow, from)
	}
	return v, nil
}

// SweepExpired deletes flows past their expiry.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired checkout flows: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "expired checkout flows removed", slog.Int64("count", n))
	}
	return n, nil
}

// saveShippingAddress stores a submitted shipping address in the address
// book of a registered shopper and on the basket. An unchanged saved
// address is not rewritten and a new one equal to a saved address is not
// duplicated.
func (s *Service) saveShippingAddress(basketID string, customer *domain.Customer) address.SubmitFunc {
	return func(ctx context.Context, final domain.Address) error {
		if customer.IsRegistered() {
			if err := s.saveToAddressBook(ctx, customer, final); err != nil {
				return err
			}
		}

		basket, err := s.basketAPI.UpdateShippingAddress(ctx, basketID, final.Structural())
		if err != nil {
			return fmt.Errorf("update shipping address: %w", err)
		}
		s.baskets.Set(ctx, basketID, basket)
		return nil
	}
}

func (s *Service) saveToAddressBook(ctx context.Context, customer *domain.Customer, final domain.Address) error {
	if final.AddressID != "" {
		if saved, ok := customer.FindAddress(final.AddressID); ok && domain.Matches(final, saved) {
			return nil
		}
		if _, err := s.customerAPI.UpdateCustomerAddress(ctx, customer.CustomerID, final); err != nil {
			return fmt.Errorf("update customer address: %w", err)
		}
	} else {
		if _, ok := customer.MatchSavedAddress(final); ok {
			return nil
		}
		if _, err := s.customerAPI.CreateCustomerAddress(ctx, customer.CustomerID, final); err != nil {
			return fmt.Errorf("create customer address: %w", err)
		}
	}
	s.customers.Invalidate(ctx, customer.CustomerID)
	return nil
}

// keepForm records a failed address submission. The shopper's input stays
// in the form and the selection is left as it was.
func (s *Service) keepForm(ctx context.Context, flow *domain.CheckoutFlow, readEpoch int64, addr domain.Address, cause error) (*View, error) {
	s.logger.WarnContext(ctx, "address submission failed",
		slog.String("flow_id", flow.ID),
		slog.String("step", flow.Step.String()),
		slog.String("error", cause.Error()),
	)
	flow.ErrorMessage = slotMessage(cause)
	form := addr
	flow.AddressForm = &form

	v, _, err := s.commit(ctx, flow, readEpoch)
	return v, err
}

func (s *Service) load(ctx context.Context, id string) (*domain.CheckoutFlow, error) {
	flow, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get checkout flow: %w", err)
	}
	if flow.IsExpired(s.now()) {
		return nil, apperrors.Gone("checkout flow has expired")
	}

	// A flow belongs to the shopper whose token started it. A signed-out
	// flow is claimed by the next guest token.
	if owner := middleware.CustomerIDFromContext(ctx); owner != "" {
		switch flow.CustomerID {
		case "":
			flow.CustomerID = owner
		case owner:
		default:
			return nil, apperrors.NotFound("checkout flow", id)
		}
	}
	return flow, nil
}

func (s *Service) loadAddressStep(ctx context.Context, id string) (*domain.CheckoutFlow, *domain.Customer, error) {
	flow, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if flow.Step != domain.StepShippingAddress && flow.Step != domain.StepPayment {
		return nil, nil, apperrors.Conflict(fmt.Sprintf("checkout is at %s, which has no address selection", flow.Step))
	}
	customer, err := s.customer(ctx, flow.CustomerID)
	if err != nil {
		return nil, nil, fmt.Errorf("get customer: %w", err)
	}
	return flow, customer, nil
}

func (s *Service) customer(ctx context.Context, customerID string) (*domain.Customer, error) {
	if customerID == "" {
		return &domain.Customer{Identity: domain.IdentityGuest}, nil
	}
	return s.customers.Get(ctx, customerID)
}

func (s *Service) restoreSelector(flow *domain.CheckoutFlow, customer *domain.Customer, onSubmit address.SubmitFunc) *address.Selector {
	return address.Restore(address.Config{
		Customer: customer,
		Billing:  flow.Step == domain.StepPayment,
		Remover:  s.customerAPI,
		OnSubmit: onSubmit,
	}, flow.Selection, flow.AddressForm, flow.FocusTarget)
}

func (s *Service) advance(flow *domain.CheckoutFlow) error {
	o := RestoreOrchestrator(flow.Step, flow.Epoch)
	if _, err := o.GoToNextStep(); err != nil {
		return err
	}
	applyTransition(flow, o)
	return nil
}

func (s *Service) jump(flow *domain.CheckoutFlow, step domain.Step) error {
	o := RestoreOrchestrator(flow.Step, flow.Epoch)
	if err := o.GoToStep(step); err != nil {
		return err
	}
	applyTransition(flow, o)
	return nil
}

func applyTransition(flow *domain.CheckoutFlow, o *Orchestrator) {
	flow.Step = o.Step()
	flow.Epoch = o.Epoch()
	flow.ResetStepState()
}

// adoptCustomerBasket points the flow at the signed-in shopper's basket.
// The merge of the anonymous basket runs in the background and lands in
// this basket. When it cannot be read the flow keeps its basket.
func (s *Service) adoptCustomerBasket(ctx context.Context, flow *domain.CheckoutFlow) {
	current, err := s.basketAPI.GetCurrentBasket(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "customer basket unavailable, keeping pre-login basket",
			slog.String("basket_id", flow.BasketID),
			slog.String("error", err.Error()),
		)
		return
	}
	if current == nil || current.BasketID == "" || current.BasketID == flow.BasketID {
		return
	}

	s.logger.InfoContext(ctx, "checkout moved to customer basket",
		slog.String("from_basket_id", flow.BasketID),
		slog.String("basket_id", current.BasketID),
	)
	flow.BasketID = current.BasketID
	s.baskets.Set(ctx, current.BasketID, current)
}

// basketAddress is the basket's address for an address step: the shipping
// address, or for payment the billing address falling back to shipping.
func basketAddress(step domain.Step, basket *domain.Basket) *domain.Address {
	if basket == nil {
		return nil
	}
	if step == domain.StepPayment && basket.BillingAddress != nil {
		return basket.BillingAddress
	}
	return basket.ShippingAddress
}

// enterStep prepares the address selector of an address step.
func enterStep(flow *domain.CheckoutFlow, customer *domain.Customer, basket *domain.Basket) {
	if flow.Step != domain.StepShippingAddress && flow.Step != domain.StepPayment {
		return
	}
	selected := basketAddress(flow.Step, basket)

	sel := address.Enter(address.Config{
		Customer:        customer,
		SelectedAddress: selected,
		Billing:         flow.Step == domain.StepPayment,
	})
	storeSelector(flow, sel)
}

// reconcileWithBasket checks the selection against the basket's address
// after the address book changed under it.
func (s *Service) reconcileWithBasket(ctx context.Context, flow *domain.CheckoutFlow, sel *address.Selector) {
	basket, err := s.baskets.Get(ctx, flow.BasketID)
	if err != nil {
		s.logger.WarnContext(ctx, "basket unavailable for address reconcile",
			slog.String("basket_id", flow.BasketID),
			slog.String("error", err.Error()),
		)
		return
	}
	sel.Reconcile(basketAddress(flow.Step, basket))
}

func storeSelector(flow *domain.CheckoutFlow, sel *address.Selector) {
	flow.Selection = sel.State()
	flow.AddressForm = sel.Form()
	flow.FocusTarget = sel.Focus()
}

// staleView re-reads the flow after a slow external call. It returns the
// current view when the shopper has left step since epoch, and nil when the
// caller's results may still be written.
func (s *Service) staleView(ctx context.Context, id string, step domain.Step, epoch int64) (*View, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get checkout flow: %w", err)
	}
	if RestoreOrchestrator(current.Step, current.Epoch).IsActive(step, epoch) {
		return nil, nil
	}

	staleWritesTotal.Inc()
	s.logger.WarnContext(ctx, "step changed during request, discarding result",
		slog.String("flow_id", id),
		slog.String("step", step.String()),
		slog.String("current_step", current.Step.String()),
	)
	return s.view(ctx, current), nil
}

// commit writes flow if it is still at readEpoch. A stale write is dropped
// and the current flow is rendered instead; committed reports which
// happened.
func (s *Service) commit(ctx context.Context, flow *domain.CheckoutFlow, readEpoch int64) (v *View, committed bool, err error) {
	err = s.repo.Update(ctx, flow, readEpoch)
	if errors.Is(err, repository.ErrStaleFlow) {
		staleWritesTotal.Inc()
		s.logger.WarnContext(ctx, "dropping stale checkout flow write",
			slog.String("flow_id", flow.ID),
			slog.Int64("read_epoch", readEpoch),
		)
		current, err := s.load(ctx, flow.ID)
		if err != nil {
			return nil, false, err
		}
		return s.view(ctx, current), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("update checkout flow: %w", err)
	}
	return s.view(ctx, flow), true, nil
}

func (s *Service) stepChanged(ctx context.Context, flow *domain.CheckoutFlow, from domain.Step) {
	stepChangesTotal.WithLabelValues(from.String(), flow.Step.String()).Inc()

	if err := s.events.PublishStepAdvanced(ctx, flow, from); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish step_advanced event",
			slog.String("flow_id", flow.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "checkout step changed",
		slog.String("flow_id", flow.ID),
		slog.String("from", from.String()),
		slog.String("to", flow.Step.String()),
		slog.Int64("epoch", flow.Epoch),
	)
}

// snapshot reads the customer and basket for rendering. Either may be nil
// when its service is unavailable.
func (s *Service) snapshot(ctx context.Context, flow *domain.CheckoutFlow) (*domain.Customer, *domain.Basket) {
	var (
		customer *domain.Customer
		basket   *domain.Basket
		g        errgroup.Group
	)
	g.Go(func() error {
		c, err := s.customer(ctx, flow.CustomerID)
		if err != nil {
			s.logger.WarnContext(ctx, "customer unavailable", slog.String("error", err.Error()))
			return nil
		}
		customer = c
		return nil
	})
	g.Go(func() error {
		b, err := s.baskets.Get(ctx, flow.BasketID)
		if err != nil {
			s.logger.WarnContext(ctx, "basket unavailable", slog.String("error", err.Error()))
			return nil
		}
		basket = b
		return nil
	})
	_ = g.Wait()
	return customer, basket
}

func (s *Service) view(ctx context.Context, flow *domain.CheckoutFlow) *View {
	customer, basket := s.snapshot(ctx, flow)
	return render(flow, customer, basket)
}

func render(flow *domain.CheckoutFlow, customer *domain.Customer, basket *domain.Basket) *View {
	v := &View{
		FlowID:             flow.ID,
		Step:               flow.Step,
		Epoch:              flow.Epoch,
		ErrorMessage:       flow.ErrorMessage,
		Outcome:            flow.Outcome,
		Modal:              flow.Modal,
		PasswordlessIntent: flow.PasswordlessIntent,
		Selection:          flow.Selection,
		AddressForm:        flow.AddressForm,
		FocusTarget:        flow.FocusTarget,
		ExpiresAt:          flow.ExpiresAt,
	}
	if flow.Step == domain.StepShippingAddress || flow.Step == domain.StepPayment {
		v.SelectionView = flow.Selection.View()
	}

	if customer != nil {
		v.Registered = customer.IsRegistered()
		v.CustomerEmail = customer.Email
		v.Addresses = customer.Addresses
	}
	if basket != nil {
		v.ShippingAddress = basket.ShippingAddress
		v.ShippingMethodID = basket.ShippingMethodID
		v.ContactEmail = basket.CustomerInfo.Email
	}
	if v.Registered && v.CustomerEmail != "" {
		v.ContactEmail = v.CustomerEmail
	}
	return v
}

func withOutcome(v *View, outcome domain.AuthOutcome) *View {
	if v == nil {
		return nil
	}
	v.Outcome = &outcome
	v.Session = outcome.Session
	return v
}

func requireStep(flow *domain.CheckoutFlow, step domain.Step) error {
	if flow.Step != step {
		return apperrors.Conflict(fmt.Sprintf("checkout is at %s, not %s", flow.Step, step))
	}
	return nil
}

// slotMessage is the shopper-facing text for a failed downstream call.
func slotMessage(err error) string {
	if appErr, ok := apperrors.As(err); ok && appErr.Message != "" {
		return appErr.Message
	}
	return identity.MsgGenericAPIError
}
