package domain

import "time"

// Address is a postal address as held in a customer's address book or
// submitted from a checkout form.
//
// AddressID is set only once the address has been persisted. CreationDate,
// LastModified and Preferred are bookkeeping owned by the customer service.
// ID and Type are client-side identifiers a submitted candidate may carry.
// None of these take part in structural equality (see Matches).
type Address struct {
	AddressID    string     `json:"address_id,omitempty"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Address1     string     `json:"address1"`
	Address2     string     `json:"address2,omitempty"`
	City         string     `json:"city"`
	StateCode    string     `json:"state_code,omitempty"`
	PostalCode   string     `json:"postal_code"`
	CountryCode  string     `json:"country_code"`
	Phone        string     `json:"phone,omitempty"`
	Preferred    bool       `json:"preferred,omitempty"`
	CreationDate *time.Time `json:"creation_date,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	ID           string     `json:"id,omitempty"`
	Type         string     `json:"_type,omitempty"`
}

// addressFields is the structural part of an Address. It is comparable, so
// two addresses match exactly when their projections are ==.
type addressFields struct {
	FirstName   string
	LastName    string
	Address1    string
	Address2    string
	City        string
	StateCode   string
	PostalCode  string
	CountryCode string
	Phone       string
}

func (a Address) fields() addressFields {
	return addressFields{
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		Address1:    a.Address1,
		Address2:    a.Address2,
		City:        a.City,
		StateCode:   a.StateCode,
		PostalCode:  a.PostalCode,
		CountryCode: a.CountryCode,
		Phone:       a.Phone,
	}
}

// Matches reports whether candidate and saved describe the same address,
// comparing structural fields only.
func Matches(candidate, saved Address) bool {
	return candidate.fields() == saved.fields()
}

// Structural returns a copy of a with every non-structural field cleared.
// It is the payload sent when creating or updating a saved address.
func (a Address) Structural() Address {
	f := a.fields()
	return Address{
		FirstName:   f.FirstName,
		LastName:    f.LastName,
		Address1:    f.Address1,
		Address2:    f.Address2,
		City:        f.City,
		StateCode:   f.StateCode,
		PostalCode:  f.PostalCode,
		CountryCode: f.CountryCode,
		Phone:       f.Phone,
	}
}

// IsZero reports whether no structural field is set.
func (a Address) IsZero() bool {
	return a.fields() == addressFields{}
}
