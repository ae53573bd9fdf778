package domain

import "time"

// CheckoutFlow is one shopper's pass through checkout, persisted between
// requests.
//
// Epoch increments on every step transition. A request that started under an
// older epoch must not write its results; see repository.ErrStaleFlow.
type CheckoutFlow struct {
	ID                 string         `json:"id"`
	CustomerID         string         `json:"customer_id"`
	BasketID           string         `json:"basket_id"`
	Step               Step           `json:"step"`
	Epoch              int64          `json:"epoch"`
	PasswordlessIntent bool           `json:"passwordless_intent"`
	ErrorMessage       string         `json:"error_message,omitempty"`
	Outcome            *AuthOutcome   `json:"outcome,omitempty"`
	Modal              AuthModal      `json:"modal"`
	Selection          SelectionState `json:"selection"`
	AddressForm        *Address       `json:"address_form,omitempty"`
	FocusTarget        FocusTarget    `json:"focus_target,omitempty"`
	ExpiresAt          time.Time      `json:"expires_at"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// IsExpired reports whether the flow has passed its expiry time.
func (f *CheckoutFlow) IsExpired(now time.Time) bool {
	return now.After(f.ExpiresAt)
}

// ResetStepState discards the per-step state when the active step changes.
func (f *CheckoutFlow) ResetStepState() {
	f.PasswordlessIntent = false
	f.ErrorMessage = ""
	f.Outcome = nil
	f.Modal = AuthModal{View: ModalViewPassword}
	f.Selection = SelectionState{}
	f.AddressForm = nil
	f.FocusTarget = ""
}
