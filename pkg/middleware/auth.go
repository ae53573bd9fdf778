package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKeyType string

const (
	customerIDKey  contextKeyType = "customer_id"
	accessTokenKey contextKeyType = "access_token"
	registeredKey  contextKeyType = "registered"
)

// Claims are the shopper claims read from a storefront access token.
type Claims struct {
	CustomerID string
	Registered bool
}

// TokenValidator verifies a bearer token and returns its claims. A token
// whose signature does not check out must be rejected.
type TokenValidator func(token string) (*Claims, error)

// Auth requires a bearer token on every request and stores the raw token and
// its claims in the context. Guests carry a guest token, so every shopper
// has one.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, "missing authorization header")
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				writeAuthError(w, "invalid authorization header format")
				return
			}

			claims, err := validate(token)
			if err != nil {
				writeAuthError(w, "invalid or expired token")
				return
			}

			ctx := WithAccessToken(r.Context(), token)
			next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
		})
	}
}

// WithClaims stores verified token claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, customerIDKey, claims.CustomerID)
	return context.WithValue(ctx, registeredKey, claims.Registered)
}

// WithAccessToken stores the shopper's bearer token for outbound calls.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey, token)
}

// AccessTokenFromContext returns the bearer token stored by Auth or
// WithAccessToken.
func AccessTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey).(string)
	return token
}

// CustomerIDFromContext returns the customer ID read from the token.
func CustomerIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(customerIDKey).(string)
	return id
}

// RegisteredFromContext reports whether the token belongs to a registered
// shopper.
func RegisteredFromContext(ctx context.Context) bool {
	registered, _ := ctx.Value(registeredKey).(bool)
	return registered
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	})
}
