// Package identity decides how a contact-info submission authenticates the
// shopper: guest checkout, password login or a passwordless challenge.
package identity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/storefront-checkout/internal/domain"
	"github.com/utafrali/storefront-checkout/pkg/logger"
	"github.com/utafrali/storefront-checkout/pkg/middleware"
	"github.com/utafrali/storefront-checkout/pkg/tracing"
)

var authOutcomesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_auth_outcomes_total",
		Help: "Contact-info submissions by outcome.",
	},
	[]string{"kind"},
)

var tracer = tracing.Tracer("github.com/utafrali/storefront-checkout/internal/identity")

// Authenticator signs a shopper in with email and password.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (domain.AuthSession, error)
}

// BasketCustomerUpdater attaches a guest email to a basket.
type BasketCustomerUpdater interface {
	UpdateCustomerForBasket(ctx context.Context, basketID, email string) error
}

// BasketMerger folds the pre-login basket into the customer's basket. It
// must return without waiting for the merge.
type BasketMerger interface {
	MergeIfNeeded(ctx context.Context, hadItems bool)
}

// SubmitInput is one contact-info submission.
type SubmitInput struct {
	Submission domain.ContactInfoSubmission
	Basket     *domain.Basket
	// BasketUnknown marks a Basket that could not be read, so its item
	// count is not known.
	BasketUnknown      bool
	PasswordlessIntent bool
	Page               domain.PageContext
}

// Resolver dispatches contact-info submissions.
type Resolver struct {
	auth         Authenticator
	baskets      BasketCustomerUpdater
	merger       BasketMerger
	passwordless *Passwordless
	patterns     Patterns
	logger       *slog.Logger
}

// NewResolver creates a Resolver. passwordless may be nil when the feature
// is not configured.
func NewResolver(
	auth Authenticator,
	baskets BasketCustomerUpdater,
	merger BasketMerger,
	passwordless *Passwordless,
	patterns Patterns,
	logger *slog.Logger,
) *Resolver {
	return &Resolver{
		auth:         auth,
		baskets:      baskets,
		merger:       merger,
		passwordless: passwordless,
		patterns:     patterns,
		logger:       logger,
	}
}

// Submit resolves a submission. It never returns an error: every failure is
// a failure outcome carrying the message for the error slot.
func (r *Resolver) Submit(ctx context.Context, in SubmitInput) domain.AuthOutcome {
	ctx, span := tracer.Start(ctx, "identity.Submit")

	outcome := r.submit(ctx, in)

	authOutcomesTotal.WithLabelValues(string(outcome.Kind)).Inc()
	var spanErr error
	if outcome.Failed() {
		spanErr = errors.New(outcome.Reason)
	}
	tracing.End(span, spanErr, attribute.String("auth.outcome", string(outcome.Kind)))
	return outcome
}

func (r *Resolver) submit(ctx context.Context, in SubmitInput) domain.AuthOutcome {
	if in.Submission == nil {
		return domain.GuestContinuationFailure("email is required")
	}

	if in.PasswordlessIntent {
		return r.requestChallenge(ctx, in.Submission.SubmittedEmail(), in.Page)
	}

	switch sub := in.Submission.(type) {
	case domain.GuestSubmission:
		return r.continueAsGuest(ctx, sub, in.Basket)
	case domain.PasswordLoginSubmission:
		return r.login(ctx, sub, in.Basket, in.BasketUnknown)
	default:
		return domain.GuestContinuationFailure(MsgGenericAPIError)
	}
}

func (r *Resolver) requestChallenge(ctx context.Context, email string, page domain.PageContext) domain.AuthOutcome {
	if r.passwordless == nil {
		return domain.PasswordlessChallengeFailure(r.patterns.PasswordlessFailureMessage(ErrPasswordlessDisabled))
	}

	if err := r.passwordless.RequestChallenge(ctx, email, page); err != nil {
		r.logger.WarnContext(ctx, "passwordless challenge failed", slog.String("error", err.Error()))

		var challengeErr *ChallengeError
		if errors.As(err, &challengeErr) {
			return domain.PasswordlessChallengeFailure(challengeErr.Message)
		}
		return domain.PasswordlessChallengeFailure(MsgGenericAPIError)
	}
	return domain.PasswordlessChallengeIssued()
}

func (r *Resolver) continueAsGuest(ctx context.Context, sub domain.GuestSubmission, basket *domain.Basket) domain.AuthOutcome {
	if basket == nil || basket.BasketID == "" {
		return domain.GuestContinuationFailure(MsgGenericAPIError)
	}

	if err := r.baskets.UpdateCustomerForBasket(ctx, basket.BasketID, sub.Email); err != nil {
		r.logger.WarnContext(ctx, "guest checkout failed",
			slog.String("basket_id", basket.BasketID),
			slog.String("error", err.Error()),
		)
		return domain.GuestContinuationFailure(r.patterns.LoginFailureMessage(err))
	}
	return domain.GuestContinuation()
}

func (r *Resolver) login(ctx context.Context, sub domain.PasswordLoginSubmission, basket *domain.Basket, basketUnknown bool) domain.AuthOutcome {
	session, err := r.auth.Login(ctx, sub.Email, sub.Password)
	if err != nil {
		r.logger.WarnContext(ctx, "login failed", slog.String("error", err.Error()))
		return domain.PasswordLoginFailure(r.patterns.LoginFailureMessage(err))
	}

	// The merge runs as the newly signed-in shopper.
	mergeCtx := middleware.WithAccessToken(ctx, session.AccessToken)
	mergeCtx = logger.WithCustomerID(mergeCtx, session.CustomerID)
	if basketUnknown {
		r.logger.WarnContext(ctx, "basket merge skipped: pre-login item count unknown",
			slog.String("customer_id", session.CustomerID),
		)
	}
	r.merger.MergeIfNeeded(mergeCtx, !basketUnknown && basket.HasItems())

	r.logger.InfoContext(ctx, "shopper signed in", slog.String("customer_id", session.CustomerID))
	return domain.PasswordLoginSuccess(session)
}
