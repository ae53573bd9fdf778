package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/storefront-checkout/internal/domain"
	"github.com/utafrali/storefront-checkout/pkg/middleware"
)

// shopperClaims is the claim set of a storefront access token.
type shopperClaims struct {
	CustomerType string `json:"customer_type"`
	jwt.RegisteredClaims
}

// ErrNoTokenSecret is returned when no shopper token secret is configured.
var ErrNoTokenSecret = errors.New("shopper token secret is not configured")

var unverifiedParser = jwt.NewParser()

// parseUnverified decodes a token without checking its signature. Only
// tokens handed to us directly by the identity service go through here.
func parseUnverified(token string) (*shopperClaims, error) {
	claims := &shopperClaims{}
	if _, _, err := unverifiedParser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// TokenVerifier checks the HMAC signature and expiry of shopper bearer
// tokens signed with the secret shared with the identity service.
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenVerifier creates a verifier for tokens signed with secret.
func NewTokenVerifier(secret string) (*TokenVerifier, error) {
	if secret == "" {
		return nil, ErrNoTokenSecret
	}
	return &TokenVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

func (v *TokenVerifier) key(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, jwt.ErrSignatureInvalid
	}
	return v.secret, nil
}

// ReadClaims is a middleware.TokenValidator. Tokens with a bad signature,
// no expiry, an expiry in the past or no subject are rejected.
func (v *TokenVerifier) ReadClaims(token string) (*middleware.Claims, error) {
	claims := &shopperClaims{}
	if _, err := v.parser.ParseWithClaims(token, claims, v.key); err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &middleware.Claims{
		CustomerID: claims.Subject,
		Registered: claims.CustomerType == string(domain.IdentityRegistered),
	}, nil
}

// SessionFromTokens builds the session returned by a successful login. The
// tokens come straight from the identity service, so they are read as is.
func SessionFromTokens(accessToken, refreshToken string) (domain.AuthSession, error) {
	claims, err := parseUnverified(accessToken)
	if err != nil {
		return domain.AuthSession{}, err
	}

	session := domain.AuthSession{
		CustomerID:   claims.Subject,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}
