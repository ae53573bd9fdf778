package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Customer / Basket ---

func TestCustomer_AddressLookups(t *testing.T) {
	work := Address{AddressID: "work", FirstName: "Ada", City: "Cambridge"}
	home := savedAddress()
	c := &Customer{CustomerID: "c1", Identity: IdentityRegistered, Addresses: []Address{work, home}}

	preferred, ok := c.PreferredAddress()
	require.True(t, ok)
	assert.Equal(t, "home", preferred.AddressID)

	found, ok := c.FindAddress("work")
	require.True(t, ok)
	assert.Equal(t, "Cambridge", found.City)

	_, ok = c.FindAddress("")
	assert.False(t, ok)

	matched, ok := c.MatchSavedAddress(home.Structural())
	require.True(t, ok)
	assert.Equal(t, "home", matched.AddressID)

	assert.True(t, c.IsRegistered())
	assert.True(t, c.HasSavedAddresses())
}

func TestCustomer_NilSafe(t *testing.T) {
	var c *Customer
	assert.False(t, c.IsRegistered())
	assert.False(t, c.HasSavedAddresses())
	_, ok := c.PreferredAddress()
	assert.False(t, ok)
}

func TestBasket_HasItems(t *testing.T) {
	var nilBasket *Basket
	assert.False(t, nilBasket.HasItems())
	assert.False(t, (&Basket{BasketID: "b1"}).HasItems())
	assert.True(t, (&Basket{ProductItems: []ProductItem{{ItemID: "i1", Quantity: 2}}}).HasItems())
}

// --- Step ---

func TestStep_Sequence(t *testing.T) {
	step := StepContactInfo
	var visited []Step
	for {
		visited = append(visited, step)
		next, ok := step.Next()
		if !ok {
			break
		}
		step = next
	}
	assert.Equal(t, Steps(), visited)
	assert.True(t, StepContactInfo.Before(StepReview))
	assert.False(t, StepPayment.Before(StepShippingMethod))
}

func TestParseStep(t *testing.T) {
	step, err := ParseStep("SHIPPING_METHOD")
	require.NoError(t, err)
	assert.Equal(t, StepShippingMethod, step)

	_, err = ParseStep("shipping_method")
	assert.Error(t, err)

	_, ok := Step("BOGUS").Next()
	assert.False(t, ok)
}

// --- Submissions and outcomes ---

func TestNewContactInfoSubmission(t *testing.T) {
	guest := NewContactInfoSubmission("  guest@example.com ", "")
	assert.Equal(t, GuestSubmission{Email: "guest@example.com"}, guest)

	login := NewContactInfoSubmission("ada@example.com", "s3cret")
	assert.Equal(t, PasswordLoginSubmission{Email: "ada@example.com", Password: "s3cret"}, login)
	assert.Equal(t, "ada@example.com", login.SubmittedEmail())
}

func TestAuthOutcome_Classification(t *testing.T) {
	tests := []struct {
		outcome  AuthOutcome
		failed   bool
		advances bool
	}{
		{GuestContinuation(), false, true},
		{GuestContinuationFailure("x"), true, false},
		{PasswordLoginSuccess(AuthSession{CustomerID: "c1"}), false, true},
		{PasswordLoginFailure("x"), true, false},
		{PasswordlessChallengeIssued(), false, false},
		{PasswordlessChallengeFailure("x"), true, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome.Kind), func(t *testing.T) {
			assert.Equal(t, tt.failed, tt.outcome.Failed())
			assert.Equal(t, tt.advances, tt.outcome.Advances())
		})
	}
}

// --- Selection ---

func TestSelectionState_View(t *testing.T) {
	assert.Equal(t, SelectionViewListing, SelectionState{SelectedAddressID: "home"}.View())
	assert.Equal(t, SelectionViewListing, SelectionState{}.View())
	assert.Equal(t, SelectionViewEditExisting, SelectionState{SelectedAddressID: "home", IsEditingAddress: true}.View())
	assert.Equal(t, SelectionViewAddNew, SelectionState{IsEditingAddress: true}.View())
	assert.Equal(t, FocusTarget("edit-address-home"), EditButtonFocus("home"))
}

// --- Flow ---

func TestCheckoutFlow_ResetStepState(t *testing.T) {
	outcome := PasswordLoginFailure("nope")
	f := &CheckoutFlow{
		Step:               StepContactInfo,
		PasswordlessIntent: true,
		ErrorMessage:       "nope",
		Outcome:            &outcome,
		Modal:              AuthModal{View: ModalViewEnterCode, Open: true},
		Selection:          SelectionState{SelectedAddressID: "home", IsEditingAddress: true},
		AddressForm:        &Address{City: "London"},
		FocusTarget:        FocusShippingHeading,
		ExpiresAt:          time.Now().Add(time.Minute),
	}

	f.ResetStepState()

	assert.False(t, f.PasswordlessIntent)
	assert.Empty(t, f.ErrorMessage)
	assert.Nil(t, f.Outcome)
	assert.Equal(t, AuthModal{View: ModalViewPassword}, f.Modal)
	assert.Equal(t, SelectionState{}, f.Selection)
	assert.Nil(t, f.AddressForm)
	assert.Empty(t, f.FocusTarget)
	assert.False(t, f.IsExpired(time.Now()))
	assert.True(t, f.IsExpired(time.Now().Add(time.Hour)))
}
