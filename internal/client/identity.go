package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/utafrali/storefront-checkout/internal/domain"
	"github.com/utafrali/storefront-checkout/internal/identity"
)

// IdentityClient calls the identity service.
type IdentityClient struct {
	base
}

// NewIdentityClient creates an identity service client.
func NewIdentityClient(doer HTTPDoer, baseURL string) *IdentityClient {
	return &IdentityClient{base: newBase(doer, baseURL, ServiceIdentity)}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Login signs the shopper in. A 401 from the identity service is returned
// as an Unauthorized AppError.
func (c *IdentityClient) Login(ctx context.Context, email, password string) (domain.AuthSession, error) {
	var tokens tokenResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", loginRequest{Email: email, Password: password}, &tokens); err != nil {
		return domain.AuthSession{}, err
	}

	session, err := identity.SessionFromTokens(tokens.AccessToken, tokens.RefreshToken)
	if err != nil {
		return domain.AuthSession{}, fmt.Errorf("read login token: %w", err)
	}
	return session, nil
}

// Logout ends the session of the shopper whose token is in ctx.
func (c *IdentityClient) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil)
}

type passwordlessRequest struct {
	UserID      string `json:"user_id"`
	CallbackURI string `json:"callback_uri"`
}

// AuthorizePasswordless asks the identity service to send a login challenge
// to email. The challenge link points at callbackURI.
func (c *IdentityClient) AuthorizePasswordless(ctx context.Context, email, callbackURI string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/auth/passwordless/authorize",
		passwordlessRequest{UserID: email, CallbackURI: callbackURI}, nil)
}
