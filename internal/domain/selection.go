package domain

// SelectionState is the persisted part of the address selector.
type SelectionState struct {
	SelectedAddressID string `json:"selected_address_id,omitempty"`
	IsEditingAddress  bool   `json:"is_editing_address"`
}

// SelectionView is what the storefront renders for a SelectionState.
type SelectionView string

const (
	SelectionViewListing      SelectionView = "listing"
	SelectionViewEditExisting SelectionView = "edit_existing"
	SelectionViewAddNew       SelectionView = "add_new"
)

// View derives the rendered view: not editing means the read-only list,
// editing with a selection means the pre-filled edit form, editing without
// one means a blank add form.
func (s SelectionState) View() SelectionView {
	switch {
	case !s.IsEditingAddress:
		return SelectionViewListing
	case s.SelectedAddressID != "":
		return SelectionViewEditExisting
	default:
		return SelectionViewAddNew
	}
}

// FocusTarget names the control the storefront should move focus to after
// an address action.
type FocusTarget string

const (
	FocusShippingHeading FocusTarget = "shipping-address-heading"
	FocusBillingHeading  FocusTarget = "billing-address-heading"
)

// EditButtonFocus is the edit control of a saved address card.
func EditButtonFocus(addressID string) FocusTarget {
	return FocusTarget("edit-address-" + addressID)
}
