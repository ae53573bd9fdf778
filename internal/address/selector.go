// Package address implements the saved-address selector used by the
// shipping and billing steps of checkout.
package address

import (
	"context"
	"fmt"

	"github.com/utafrali/storefront-checkout/internal/domain"
	apperrors "github.com/utafrali/storefront-checkout/pkg/errors"
)

// Remover deletes an address from a customer's address book.
type Remover interface {
	RemoveCustomerAddress(ctx context.Context, customerID, addressID string) error
}

// SubmitFunc receives the finalized address of a submission. An address
// with an AddressID is an update of that saved address, one without is a
// create.
type SubmitFunc func(ctx context.Context, addr domain.Address) error

// Config is what a Selector needs from the surrounding step.
type Config struct {
	Customer *domain.Customer
	// SelectedAddress is the externally supplied default, e.g. the basket's
	// current shipping address. May be nil.
	SelectedAddress *domain.Address
	Billing         bool
	Remover         Remover
	OnSubmit        SubmitFunc
}

// Selector tracks which saved address is selected, whether the address
// form is open, and where focus should go after each action.
//
// A Selector is not safe for concurrent use. The checkout service restores
// one per request, applies a single action and persists the result.
type Selector struct {
	cfg   Config
	state domain.SelectionState
	form  *domain.Address
	focus domain.FocusTarget
}

// Enter builds the selector for a fresh entry into the step.
func Enter(cfg Config) *Selector {
	s := &Selector{cfg: cfg}

	if preferred, ok := cfg.Customer.PreferredAddress(); ok && !cfg.Billing {
		s.form = &preferred
	} else if cfg.SelectedAddress != nil {
		form := *cfg.SelectedAddress
		s.form = &form
	}

	if !cfg.Customer.HasSavedAddresses() {
		s.state.IsEditingAddress = true
	}

	s.Reconcile(cfg.SelectedAddress)
	return s
}

// Restore rebuilds a selector from persisted state.
func Restore(cfg Config, state domain.SelectionState, form *domain.Address, focus domain.FocusTarget) *Selector {
	s := &Selector{cfg: cfg, state: state, focus: focus}
	if form != nil {
		f := *form
		s.form = &f
	}
	return s
}

// State returns the selection state to persist.
func (s *Selector) State() domain.SelectionState { return s.state }

// View returns the rendered view for the current state.
func (s *Selector) View() domain.SelectionView { return s.state.View() }

// Form returns the address currently loaded into the form, or nil when the
// form is empty.
func (s *Selector) Form() *domain.Address {
	if s.form == nil {
		return nil
	}
	f := *s.form
	return &f
}

// Focus returns the control that should receive focus, if any.
func (s *Selector) Focus() domain.FocusTarget { return s.focus }

func (s *Selector) heading() domain.FocusTarget {
	if s.cfg.Billing {
		return domain.FocusBillingHeading
	}
	return domain.FocusShippingHeading
}

// SelectAddress picks a saved address. Any open form is closed.
func (s *Selector) SelectAddress(addressID string) error {
	addr, ok := s.cfg.Customer.FindAddress(addressID)
	if !ok {
		return apperrors.NotFound("address", addressID)
	}

	s.state.IsEditingAddress = false
	s.state.SelectedAddressID = addressID
	s.form = &addr
	return nil
}

// BeginEdit opens the form. With a saved address the form is pre-filled to
// edit it. Without one the blank add form is toggled and the selection is
// cleared; closing it returns focus to the edit button of the previously
// selected address, or to the section heading.
func (s *Selector) BeginEdit(addr *domain.Address) error {
	if addr != nil {
		saved, ok := s.cfg.Customer.FindAddress(addr.AddressID)
		if !ok {
			return apperrors.NotFound("address", addr.AddressID)
		}
		s.state.SelectedAddressID = saved.AddressID
		s.state.IsEditingAddress = true
		s.form = &saved
		s.focus = ""
		return nil
	}

	closing := s.state.IsEditingAddress
	s.focus = ""
	if closing {
		s.focus = s.heading()
		if _, ok := s.cfg.Customer.FindAddress(s.state.SelectedAddressID); ok {
			s.focus = domain.EditButtonFocus(s.state.SelectedAddressID)
		}
	}

	s.state.SelectedAddressID = ""
	s.state.IsEditingAddress = !closing
	s.form = nil
	return nil
}

// RemoveAddress deletes a saved address. Removing the selected address
// clears the selection before the call is made.
func (s *Selector) RemoveAddress(ctx context.Context, addressID string) error {
	if !s.cfg.Customer.IsRegistered() {
		return apperrors.Forbidden("only registered customers have saved addresses")
	}
	if _, ok := s.cfg.Customer.FindAddress(addressID); !ok {
		return apperrors.NotFound("address", addressID)
	}
	if s.cfg.Remover == nil {
		return fmt.Errorf("remove address %s: no remover configured", addressID)
	}

	if addressID == s.state.SelectedAddressID {
		s.state = domain.SelectionState{}
		s.form = nil
	}

	if err := s.cfg.Remover.RemoveCustomerAddress(ctx, s.cfg.Customer.CustomerID, addressID); err != nil {
		return fmt.Errorf("remove customer address: %w", err)
	}

	s.focus = s.heading()
	return nil
}

// Submit finalizes addr and hands it to the configured SubmitFunc. The
// payload carries the selected address id when there is one and no id
// otherwise. The selector is back in the listing view with no selection
// before the callback runs.
func (s *Selector) Submit(ctx context.Context, addr domain.Address) (domain.Address, error) {
	final := addr.Structural()
	final.AddressID = s.state.SelectedAddressID

	s.state = domain.SelectionState{}
	s.form = nil
	s.focus = ""

	if s.cfg.OnSubmit == nil {
		return final, nil
	}
	if err := s.cfg.OnSubmit(ctx, final); err != nil {
		return final, err
	}
	return final, nil
}

// Reconcile loads the saved address structurally equal to selected into
// the form. When nothing matches and an address had been selected, the
// selection no longer reflects current data and the add form opens.
func (s *Selector) Reconcile(selected *domain.Address) {
	if selected == nil || !s.cfg.Customer.HasSavedAddresses() {
		return
	}

	if matched, ok := s.cfg.Customer.MatchSavedAddress(*selected); ok {
		s.form = &matched
		return
	}

	if s.state.SelectedAddressID != "" {
		s.state.SelectedAddressID = ""
		s.state.IsEditingAddress = true
		s.form = nil
	}
}

// SetCustomer swaps in a refreshed customer view. A customer left without
// saved addresses gets the add form.
func (s *Selector) SetCustomer(c *domain.Customer) {
	s.cfg.Customer = c
	if !c.HasSavedAddresses() && !s.state.IsEditingAddress {
		s.state.SelectedAddressID = ""
		s.state.IsEditingAddress = true
	}
}
