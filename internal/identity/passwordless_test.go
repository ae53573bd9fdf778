package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-checkout/internal/domain"
	apperrors "github.com/utafrali/storefront-checkout/pkg/errors"
)

func TestNewPasswordless_CallbackResolution(t *testing.T) {
	tests := []struct {
		name     string
		callback string
		origin   string
		page     domain.PageContext
		want     string
	}{
		{
			name:     "absolute callback used verbatim",
			callback: "https://auth.example.com/cb",
			origin:   "https://shop.example.com",
			page:     domain.PageContext{Path: "/checkout"},
			want:     "https://auth.example.com/cb?redirectUrl=%2Fcheckout",
		},
		{
			name:     "relative callback prefixed with origin",
			callback: "/passwordless-login-callback",
			origin:   "https://shop.example.com/",
			page:     domain.PageContext{Path: "/checkout", RawQuery: "lang=en"},
			want:     "https://shop.example.com/passwordless-login-callback?redirectUrl=%2Fcheckout%3Flang%3Den",
		},
		{
			name:     "existing callback query kept",
			callback: "https://auth.example.com/cb?site=ref",
			page:     domain.PageContext{Path: "/checkout"},
			want:     "https://auth.example.com/cb?redirectUrl=%2Fcheckout&site=ref",
		},
		{
			name:     "empty path falls back to root",
			callback: "https://auth.example.com/cb",
			want:     "https://auth.example.com/cb?redirectUrl=%2F",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPasswordless(new(mockAuthorizer), tt.callback, tt.origin, DefaultPatterns())
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.CallbackURL(tt.page))
		})
	}
}

func TestNewPasswordless_Errors(t *testing.T) {
	_, err := NewPasswordless(new(mockAuthorizer), "", "https://shop.example.com", DefaultPatterns())
	assert.ErrorIs(t, err, ErrPasswordlessDisabled)

	_, err = NewPasswordless(new(mockAuthorizer), "/cb", "", DefaultPatterns())
	assert.Error(t, err)
}

func TestRequestChallenge_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"user not found message", errors.New("no such user: User Not Found"), MsgCreateAccountFirst},
		{"user not found code", &apperrors.AppError{Code: CodeUserNotFound, Message: "nope", Status: 400}, MsgCreateAccountFirst},
		{"404 status", fmt.Errorf("identity-service: %w", apperrors.NotFound("user", "ada@example.com")), MsgCreateAccountFirst},
		{"callback mismatch", errors.New("callback_uri doesn't match the registered redirect"), MsgFeatureUnavailable},
		{"permissions", errors.New("PASSWORDLESS PERMISSIONS ERROR"), MsgFeatureUnavailable},
		{"client secret", errors.New("Client secret is not provided"), MsgFeatureUnavailable},
		{"feature code", &apperrors.AppError{Code: CodeFeatureUnavailable, Message: "off", Status: 400}, MsgFeatureUnavailable},
		{"anything else", errors.New("connection reset by peer"), MsgGenericAPIError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authorizer := new(mockAuthorizer)
			authorizer.On("AuthorizePasswordless", mock.Anything, "ada@example.com", mock.Anything).Return(tt.err)
			p, err := NewPasswordless(authorizer, "https://auth.example.com/cb", "", DefaultPatterns())
			require.NoError(t, err)

			err = p.RequestChallenge(context.Background(), "ada@example.com", domain.PageContext{Path: "/checkout"})

			var challengeErr *ChallengeError
			require.ErrorAs(t, err, &challengeErr)
			assert.Equal(t, tt.want, challengeErr.Message)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestCompilePatterns_Invalid(t *testing.T) {
	_, err := CompilePatterns("(", DefaultUserNotFoundPattern, nil)
	assert.Error(t, err)

	_, err = CompilePatterns(DefaultUnauthorizedPattern, DefaultUserNotFoundPattern, []string{"[a-"})
	assert.Error(t, err)
}

func TestLoginFailureMessage_CustomPattern(t *testing.T) {
	p, err := CompilePatterns(`(?i)invalid credentials`, DefaultUserNotFoundPattern, nil)
	require.NoError(t, err)

	assert.Equal(t, MsgIncorrectCredentials, p.LoginFailureMessage(errors.New("Invalid Credentials supplied")))
	assert.Equal(t, "Unauthorized", p.LoginFailureMessage(errors.New("Unauthorized")))
}

// --- Tokens ---

func signToken(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func newTestVerifier(t *testing.T) *TokenVerifier {
	t.Helper()
	v, err := NewTokenVerifier("test-secret")
	require.NoError(t, err)
	return v
}

func validFor(subject, customerType string) shopperClaims {
	return shopperClaims{
		CustomerType: customerType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestTokenVerifier_ReadClaims(t *testing.T) {
	claims, err := newTestVerifier(t).ReadClaims(signToken(t, validFor("cust-1", "registered")))

	require.NoError(t, err)
	assert.Equal(t, "cust-1", claims.CustomerID)
	assert.True(t, claims.Registered)
}

func TestTokenVerifier_Guest(t *testing.T) {
	claims, err := newTestVerifier(t).ReadClaims(signToken(t, validFor("guest-1", "guest")))

	require.NoError(t, err)
	assert.False(t, claims.Registered)
}

func TestTokenVerifier_Rejects(t *testing.T) {
	v := newTestVerifier(t)

	expired := validFor("cust-1", "registered")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, err := v.ReadClaims(signToken(t, expired))
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	noExpiry := validFor("cust-1", "registered")
	noExpiry.ExpiresAt = nil
	_, err = v.ReadClaims(signToken(t, noExpiry))
	assert.Error(t, err)

	_, err = v.ReadClaims(signToken(t, validFor("", "guest")))
	assert.Error(t, err)

	_, err = v.ReadClaims("not-a-jwt")
	assert.Error(t, err)
}

func TestTokenVerifier_RejectsForgedTokens(t *testing.T) {
	v := newTestVerifier(t)
	victim := validFor("victim", "registered")

	otherKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, victim).SignedString([]byte("attacker-secret"))
	require.NoError(t, err)
	_, err = v.ReadClaims(otherKey)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, victim).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.ReadClaims(unsigned)
	assert.Error(t, err)

	// A genuine guest token with its payload swapped for the victim's.
	genuine := strings.Split(signToken(t, validFor("guest-9", "guest")), ".")
	swapped := strings.Split(signToken(t, victim), ".")
	_, err = v.ReadClaims(genuine[0] + "." + swapped[1] + "." + genuine[2])
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	_, err = v.ReadClaims(swapped[0] + "." + swapped[1] + ".Z2FyYmFnZQ")
	assert.Error(t, err)
}

func TestNewTokenVerifier_RequiresSecret(t *testing.T) {
	_, err := NewTokenVerifier("")
	assert.ErrorIs(t, err, ErrNoTokenSecret)
}

func TestSessionFromTokens(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	access := signToken(t, shopperClaims{
		CustomerType: "registered",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "cust-1",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})

	s, err := SessionFromTokens(access, "refresh-1")

	require.NoError(t, err)
	assert.Equal(t, "cust-1", s.CustomerID)
	assert.Equal(t, "refresh-1", s.RefreshToken)
	assert.True(t, exp.Equal(s.ExpiresAt))
}
