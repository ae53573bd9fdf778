package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/utafrali/storefront-checkout/internal/domain"
)

// CustomerClient calls the customer service.
type CustomerClient struct {
	base
}

// NewCustomerClient creates a customer service client.
func NewCustomerClient(doer HTTPDoer, baseURL string) *CustomerClient {
	return &CustomerClient{base: newBase(doer, baseURL, ServiceCustomer)}
}

func customerPath(customerID string) string {
	return "/api/v1/customers/" + url.PathEscape(customerID)
}

func addressPath(customerID, addressID string) string {
	return customerPath(customerID) + "/addresses/" + url.PathEscape(addressID)
}

// GetCustomer fetches a customer with their address book.
func (c *CustomerClient) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	var customer domain.Customer
	if err := c.do(ctx, http.MethodGet, customerPath(customerID), nil, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// RemoveCustomerAddress deletes a saved address.
func (c *CustomerClient) RemoveCustomerAddress(ctx context.Context, customerID, addressID string) error {
	return c.do(ctx, http.MethodDelete, addressPath(customerID, addressID), nil, nil)
}

// CreateCustomerAddress adds addr to the address book and returns the saved
// address with its AddressID.
func (c *CustomerClient) CreateCustomerAddress(ctx context.Context, customerID string, addr domain.Address) (*domain.Address, error) {
	var saved domain.Address
	if err := c.do(ctx, http.MethodPost, customerPath(customerID)+"/addresses", addr.Structural(), &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// UpdateCustomerAddress replaces the saved address addr.AddressID.
func (c *CustomerClient) UpdateCustomerAddress(ctx context.Context, customerID string, addr domain.Address) (*domain.Address, error) {
	var saved domain.Address
	if err := c.do(ctx, http.MethodPut, addressPath(customerID, addr.AddressID), addr.Structural(), &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}
