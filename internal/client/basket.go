package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/utafrali/storefront-checkout/internal/basket"
	"github.com/utafrali/storefront-checkout/internal/domain"
)

// BasketClient calls the basket service.
type BasketClient struct {
	base
}

// NewBasketClient creates a basket service client.
func NewBasketClient(doer HTTPDoer, baseURL string) *BasketClient {
	return &BasketClient{base: newBase(doer, baseURL, ServiceBasket)}
}

func basketPath(basketID string) string {
	return "/api/v1/baskets/" + url.PathEscape(basketID)
}

// GetBasket fetches a basket.
func (c *BasketClient) GetBasket(ctx context.Context, basketID string) (*domain.Basket, error) {
	var b domain.Basket
	if err := c.do(ctx, http.MethodGet, basketPath(basketID), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetCurrentBasket fetches the basket of the shopper whose token is in ctx.
func (c *BasketClient) GetCurrentBasket(ctx context.Context) (*domain.Basket, error) {
	var b domain.Basket
	if err := c.do(ctx, http.MethodGet, "/api/v1/baskets/current", nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

type customerInfoRequest struct {
	Email string `json:"email"`
}

// UpdateCustomerForBasket attaches a guest's email to the basket.
func (c *BasketClient) UpdateCustomerForBasket(ctx context.Context, basketID, email string) error {
	return c.do(ctx, http.MethodPut, basketPath(basketID)+"/customer", customerInfoRequest{Email: email}, nil)
}

// MergeBasket merges the shopper's previous guest basket into their customer
// basket. The basket service identifies both baskets from the token.
func (c *BasketClient) MergeBasket(ctx context.Context, opts basket.MergeOptions) (*domain.Basket, error) {
	q := url.Values{}
	q.Set("createDestinationBasket", strconv.FormatBool(opts.CreateDestinationBasket))

	var b domain.Basket
	if err := c.do(ctx, http.MethodPost, "/api/v1/baskets/actions/merge?"+q.Encode(), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateShippingAddress sets the basket's shipping address.
func (c *BasketClient) UpdateShippingAddress(ctx context.Context, basketID string, addr domain.Address) (*domain.Basket, error) {
	var b domain.Basket
	if err := c.do(ctx, http.MethodPut, basketPath(basketID)+"/shipping-address", addr.Structural(), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBillingAddress sets the basket's billing address.
func (c *BasketClient) UpdateBillingAddress(ctx context.Context, basketID string, addr domain.Address) (*domain.Basket, error) {
	var b domain.Basket
	if err := c.do(ctx, http.MethodPut, basketPath(basketID)+"/billing-address", addr.Structural(), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

type shippingMethodRequest struct {
	ID string `json:"id"`
}

// SetShippingMethod selects a shipping method.
func (c *BasketClient) SetShippingMethod(ctx context.Context, basketID, methodID string) (*domain.Basket, error) {
	var b domain.Basket
	if err := c.do(ctx, http.MethodPut, basketPath(basketID)+"/shipping-method", shippingMethodRequest{ID: methodID}, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

type paymentInstrumentRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
}

// AddPaymentInstrument attaches a payment method to the basket.
func (c *BasketClient) AddPaymentInstrument(ctx context.Context, basketID, methodID string) (*domain.Basket, error) {
	var b domain.Basket
	if err := c.do(ctx, http.MethodPost, basketPath(basketID)+"/payment-instruments", paymentInstrumentRequest{PaymentMethodID: methodID}, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
