package domain

// Identity says whether a shopper is authenticated.
type Identity string

const (
	IdentityGuest      Identity = "guest"
	IdentityRegistered Identity = "registered"
)

// Customer is the read-only view of a shopper fetched from the customer
// service.
type Customer struct {
	CustomerID string    `json:"customer_id"`
	Identity   Identity  `json:"identity"`
	Email      string    `json:"email,omitempty"`
	Addresses  []Address `json:"addresses,omitempty"`
}

// IsRegistered reports whether the customer has an account.
func (c *Customer) IsRegistered() bool {
	return c != nil && c.Identity == IdentityRegistered
}

// HasSavedAddresses reports whether the address book is non-empty.
func (c *Customer) HasSavedAddresses() bool {
	return c != nil && len(c.Addresses) > 0
}

// PreferredAddress returns the address flagged preferred, if any.
func (c *Customer) PreferredAddress() (Address, bool) {
	if c == nil {
		return Address{}, false
	}
	for _, a := range c.Addresses {
		if a.Preferred {
			return a, true
		}
	}
	return Address{}, false
}

// FindAddress returns the saved address with the given id.
func (c *Customer) FindAddress(addressID string) (Address, bool) {
	if c == nil || addressID == "" {
		return Address{}, false
	}
	for _, a := range c.Addresses {
		if a.AddressID == addressID {
			return a, true
		}
	}
	return Address{}, false
}

// MatchSavedAddress returns the first saved address structurally equal to
// candidate.
func (c *Customer) MatchSavedAddress(candidate Address) (Address, bool) {
	if c == nil {
		return Address{}, false
	}
	for _, a := range c.Addresses {
		if Matches(candidate, a) {
			return a, true
		}
	}
	return Address{}, false
}

// CustomerInfo is the contact part of a basket.
type CustomerInfo struct {
	CustomerID string `json:"customer_id,omitempty"`
	Email      string `json:"email,omitempty"`
}

// ProductItem is one basket line.
type ProductItem struct {
	ItemID    string `json:"item_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Basket is the view of the shopper's basket fetched from the basket
// service.
type Basket struct {
	BasketID         string        `json:"basket_id"`
	CustomerInfo     CustomerInfo  `json:"customer_info"`
	ProductItems     []ProductItem `json:"product_items,omitempty"`
	ShippingAddress  *Address      `json:"shipping_address,omitempty"`
	BillingAddress   *Address      `json:"billing_address,omitempty"`
	ShippingMethodID string        `json:"shipping_method_id,omitempty"`
	PaymentMethodID  string        `json:"payment_method_id,omitempty"`
}

// HasItems reports whether the basket holds at least one product line.
func (b *Basket) HasItems() bool {
	return b != nil && len(b.ProductItems) > 0
}
