package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront-checkout/internal/checkout"
	"github.com/utafrali/storefront-checkout/internal/domain"
	apperrors "github.com/utafrali/storefront-checkout/pkg/errors"
	"github.com/utafrali/storefront-checkout/pkg/httputil"
	"github.com/utafrali/storefront-checkout/pkg/middleware"
	"github.com/utafrali/storefront-checkout/pkg/validator"
)

// FlowService is the checkout flow API the handler drives.
// *checkout.Service satisfies it.
type FlowService interface {
	Start(ctx context.Context, in checkout.StartInput) (*checkout.View, error)
	Get(ctx context.Context, id string) (*checkout.View, error)
	RequestPasswordless(ctx context.Context, id string) (*checkout.View, error)
	SubmitContactInfo(ctx context.Context, id string, in checkout.ContactInfoInput) (*checkout.View, error)
	GoToStep(ctx context.Context, id string, step domain.Step) (*checkout.View, error)
	SignOut(ctx context.Context, id string) (*checkout.View, error)
	SelectAddress(ctx context.Context, id, addressID string) (*checkout.View, error)
	ToggleAddressEdit(ctx context.Context, id string, addr *domain.Address) (*checkout.View, error)
	RemoveAddress(ctx context.Context, id, addressID string) (*checkout.View, error)
	SubmitShippingAddress(ctx context.Context, id string, addr domain.Address) (*checkout.View, error)
	SetShippingMethod(ctx context.Context, id, methodID string) (*checkout.View, error)
	SubmitPayment(ctx context.Context, id string, in checkout.PaymentInput) (*checkout.View, error)
}

// FlowHandler handles HTTP requests for checkout flow endpoints.
type FlowHandler struct {
	flows  FlowService
	logger *slog.Logger
}

// NewFlowHandler creates a new checkout flow HTTP handler.
func NewFlowHandler(flows FlowService, logger *slog.Logger) *FlowHandler {
	return &FlowHandler{flows: flows, logger: logger}
}

// Routes registers the flow endpoints on r.
func (h *FlowHandler) Routes(r chi.Router) {
	r.Post("/", h.StartFlow)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetFlow)
		r.Post("/contact", h.SubmitContactInfo)
		r.Post("/passwordless", h.RequestPasswordless)
		r.Post("/sign-out", h.SignOut)
		r.Post("/steps/{step}", h.GoToStep)

		r.Post("/addresses", h.SubmitShippingAddress)
		r.Post("/addresses/select", h.SelectAddress)
		r.Post("/addresses/edit", h.ToggleAddressEdit)
		r.Delete("/addresses/{addressId}", h.RemoveAddress)

		r.Put("/shipping-method", h.SetShippingMethod)
		r.Post("/payment", h.SubmitPayment)
	})
}

// --- Request DTOs ---

// StartFlowRequest is the JSON request body for starting a checkout flow.
// The shopper is the owner of the bearer token.
type StartFlowRequest struct {
	BasketID string `json:"basket_id" validate:"required,max=64"`
}

// PageRequest is the page the shopper submitted from.
type PageRequest struct {
	Path  string `json:"path" validate:"omitempty,startswith=/,max=2048"`
	Query string `json:"query" validate:"max=2048"`
}

// ContactInfoRequest is the contact-info form. An empty password continues
// as a guest.
type ContactInfoRequest struct {
	Email    string      `json:"email" validate:"required,email,max=254"`
	Password string      `json:"password" validate:"max=128"`
	Page     PageRequest `json:"page"`
}

// AddressRequest is an address form submission.
type AddressRequest struct {
	AddressID   string `json:"address_id" validate:"max=64"`
	FirstName   string `json:"first_name" validate:"required,max=100"`
	LastName    string `json:"last_name" validate:"required,max=100"`
	Address1    string `json:"address1" validate:"required,max=255"`
	Address2    string `json:"address2" validate:"max=255"`
	City        string `json:"city" validate:"required,max=100"`
	StateCode   string `json:"state_code" validate:"max=10"`
	PostalCode  string `json:"postal_code" validate:"required,max=20"`
	CountryCode string `json:"country_code" validate:"required,len=2"`
	Phone       string `json:"phone" validate:"max=32"`
	ID          string `json:"id"`
	Type        string `json:"_type"`
}

func (a AddressRequest) toDomain() domain.Address {
	return domain.Address{
		AddressID:   a.AddressID,
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		Address1:    a.Address1,
		Address2:    a.Address2,
		City:        a.City,
		StateCode:   a.StateCode,
		PostalCode:  a.PostalCode,
		CountryCode: a.CountryCode,
		Phone:       a.Phone,
		ID:          a.ID,
		Type:        a.Type,
	}
}

// SelectAddressRequest picks a saved address.
type SelectAddressRequest struct {
	AddressID string `json:"address_id" validate:"required,max=64"`
}

// ToggleEditRequest opens the form for a saved address, or toggles the
// blank add form when AddressID is empty.
type ToggleEditRequest struct {
	AddressID string `json:"address_id" validate:"max=64"`
}

// ShippingMethodRequest selects a shipping method.
type ShippingMethodRequest struct {
	MethodID string `json:"method_id" validate:"required,max=64"`
}

// PaymentRequest is the payment step submission.
type PaymentRequest struct {
	MethodID              string          `json:"method_id" validate:"required,max=64"`
	BillingSameAsShipping bool            `json:"billing_same_as_shipping"`
	BillingAddress        *AddressRequest `json:"billing_address" validate:"required_without=BillingSameAsShipping"`
}

// --- Handlers ---

// StartFlow handles POST /api/v1/checkout/flows
func (h *FlowHandler) StartFlow(w http.ResponseWriter, r *http.Request) {
	var req StartFlowRequest
	if !h.decode(w, r, &req) {
		return
	}

	view, err := h.flows.Start(r.Context(), checkout.StartInput{
		CustomerID: middleware.CustomerIDFromContext(r.Context()),
		BasketID:   req.BasketID,
	})
	h.respond(w, r, http.StatusCreated, view, err)
}

// GetFlow handles GET /api/v1/checkout/flows/{id}
func (h *FlowHandler) GetFlow(w http.ResponseWriter, r *http.Request) {
	view, err := h.flows.Get(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, view, err)
}

// SubmitContactInfo handles POST /api/v1/checkout/flows/{id}/contact
func (h *FlowHandler) SubmitContactInfo(w http.ResponseWriter, r *http.Request) {
	var req ContactInfoRequest
	if !h.decode(w, r, &req) {
		return
	}

	view, err := h.flows.SubmitContactInfo(r.Context(), chi.URLParam(r, "id"), checkout.ContactInfoInput{
		Email:    req.Email,
		Password: req.Password,
		Page:     domain.PageContext{Path: req.Page.Path, RawQuery: req.Page.Query},
	})
	h.respond(w, r, http.StatusOK, view, err)
}

// RequestPasswordless handles POST /api/v1/checkout/flows/{id}/passwordless
func (h *FlowHandler) RequestPasswordless(w http.ResponseWriter, r *http.Request) {
	view, err := h.flows.RequestPasswordless(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, view, err)
}

// SignOut handles POST /api/v1/checkout/flows/{id}/sign-out
func (h *FlowHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	view, err := h.flows.SignOut(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, view, err)
}

// GoToStep handles POST /api/v1/checkout/flows/{id}/steps/{step}
func (h *FlowHandler) GoToStep(w http.ResponseWriter, r *http.Request) {
	step, err := domain.ParseStep(chi.URLParam(r, "step"))
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput(err.Error()), h.logger)
		return
	}

	view, err := h.flows.GoToStep(r.Context(), chi.URLParam(r, "id"), step)
	h.respond(w, r, http.StatusOK, view, err)
}

// SubmitShippingAddress handles POST /api/v1/checkout/flows/{id}/addresses
func (h *FlowHandler) SubmitShippingAddress(w http.ResponseWriter, r *http.Request) {
	var req AddressRequest
	if !h.decode(w, r, &req) {
		return
	}

	view, err := h.flows.SubmitShippingAddress(r.Context(), chi.URLParam(r, "id"), req.toDomain())
	h.respond(w, r, http.StatusOK, view, err)
}

// SelectAddress handles POST /api/v1/checkout/flows/{id}/addresses/select
func (h *FlowHandler) SelectAddress(w http.ResponseWriter, r *http.Request) {
	var req SelectAddressRequest
	if !h.decode(w, r, &req) {
		return
	}

	view, err := h.flows.SelectAddress(r.Context(), chi.URLParam(r, "id"), req.AddressID)
	h.respond(w, r, http.StatusOK, view, err)
}

// ToggleAddressEdit handles POST /api/v1/checkout/flows/{id}/addresses/edit
func (h *FlowHandler) ToggleAddressEdit(w http.ResponseWriter, r *http.Request) {
	var req ToggleEditRequest
	if !h.decode(w, r, &req) {
		return
	}

	var addr *domain.Address
	if req.AddressID != "" {
		addr = &domain.Address{AddressID: req.AddressID}
	}
	view, err := h.flows.ToggleAddressEdit(r.Context(), chi.URLParam(r, "id"), addr)
	h.respond(w, r, http.StatusOK, view, err)
}

// RemoveAddress handles DELETE /api/v1/checkout/flows/{id}/addresses/{addressId}
func (h *FlowHandler) RemoveAddress(w http.ResponseWriter, r *http.Request) {
	view, err := h.flows.RemoveAddress(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "addressId"))
	h.respond(w, r, http.StatusOK, view, err)
}

// SetShippingMethod handles PUT /api/v1/checkout/flows/{id}/shipping-method
func (h *FlowHandler) SetShippingMethod(w http.ResponseWriter, r *http.Request) {
	var req ShippingMethodRequest
	if !h.decode(w, r, &req) {
		return
	}

	view, err := h.flows.SetShippingMethod(r.Context(), chi.URLParam(r, "id"), req.MethodID)
	h.respond(w, r, http.StatusOK, view, err)
}

// SubmitPayment handles POST /api/v1/checkout/flows/{id}/payment
func (h *FlowHandler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := checkout.PaymentInput{
		MethodID:              req.MethodID,
		BillingSameAsShipping: req.BillingSameAsShipping,
	}
	if req.BillingAddress != nil && !req.BillingSameAsShipping {
		addr := req.BillingAddress.toDomain()
		in.BillingAddress = &addr
	}

	view, err := h.flows.SubmitPayment(r.Context(), chi.URLParam(r, "id"), in)
	h.respond(w, r, http.StatusOK, view, err)
}

// decode reads and validates a request body. On failure it writes the
// response and returns false.
func (h *FlowHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httputil.DecodeJSON(w, r, dst); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return false
	}
	if err := validator.Validate(dst); err != nil {
		httputil.WriteValidationError(w, err)
		return false
	}
	return true
}

func (h *FlowHandler) respond(w http.ResponseWriter, r *http.Request, status int, view *checkout.View, err error) {
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, status, view)
}
