package identity

import (
	"errors"
	"fmt"
	"regexp"

	apperrors "github.com/utafrali/storefront-checkout/pkg/errors"
)

// Shopper-facing messages written to the flow's error slot.
const (
	MsgIncorrectCredentials = "Incorrect username or password, please try again."
	MsgCreateAccountFirst   = "This feature is not currently available. You must create an account to access this feature."
	MsgFeatureUnavailable   = "This feature is not currently available."
	MsgGenericAPIError      = "Something went wrong. Try again!"
)

// Structured codes the identity service may send. When it only sends a
// message, the patterns below are used instead.
const (
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeFeatureUnavailable = "FEATURE_UNAVAILABLE"
)

// Default patterns matched against downstream error messages.
var (
	DefaultUnauthorizedPattern       = `(?i)unauthorized`
	DefaultUserNotFoundPattern       = `(?i)user not found`
	DefaultFeatureUnavailablePattern = []string{
		`(?i)callback_uri doesn't match`,
		`(?i)passwordless permissions error`,
		`(?i)client secret is not provided`,
	}
)

// Patterns classifies identity service errors by message.
type Patterns struct {
	Unauthorized       *regexp.Regexp
	UserNotFound       *regexp.Regexp
	FeatureUnavailable []*regexp.Regexp
}

// DefaultPatterns returns the built-in patterns.
func DefaultPatterns() Patterns {
	p, err := CompilePatterns(DefaultUnauthorizedPattern, DefaultUserNotFoundPattern, DefaultFeatureUnavailablePattern)
	if err != nil {
		panic(err)
	}
	return p
}

// CompilePatterns compiles configured patterns.
func CompilePatterns(unauthorized, userNotFound string, featureUnavailable []string) (Patterns, error) {
	var p Patterns
	var err error

	if p.Unauthorized, err = regexp.Compile(unauthorized); err != nil {
		return Patterns{}, fmt.Errorf("compile unauthorized pattern: %w", err)
	}
	if p.UserNotFound, err = regexp.Compile(userNotFound); err != nil {
		return Patterns{}, fmt.Errorf("compile user-not-found pattern: %w", err)
	}
	for _, expr := range featureUnavailable {
		re, err := regexp.Compile(expr)
		if err != nil {
			return Patterns{}, fmt.Errorf("compile feature-unavailable pattern %q: %w", expr, err)
		}
		p.FeatureUnavailable = append(p.FeatureUnavailable, re)
	}
	return p, nil
}

// errorMessage is the message a shopper would see for err: the downstream
// message when the error came from a collaborator, else err.Error().
func errorMessage(err error) string {
	if appErr, ok := apperrors.As(err); ok && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

// LoginFailureMessage maps a login or guest-continuation error to the error
// slot text: bad credentials get a fixed message, anything else the raw
// server message.
func (p Patterns) LoginFailureMessage(err error) string {
	if errors.Is(err, apperrors.ErrUnauthorized) {
		return MsgIncorrectCredentials
	}
	msg := errorMessage(err)
	if p.Unauthorized != nil && p.Unauthorized.MatchString(msg) {
		return MsgIncorrectCredentials
	}
	return msg
}

// PasswordlessFailureMessage maps a passwordless authorization error.
func (p Patterns) PasswordlessFailureMessage(err error) string {
	switch {
	case p.isUserNotFound(err):
		return MsgCreateAccountFirst
	case p.isFeatureUnavailable(err):
		return MsgFeatureUnavailable
	default:
		return MsgGenericAPIError
	}
}

func (p Patterns) isUserNotFound(err error) bool {
	if appErr, ok := apperrors.As(err); ok {
		if appErr.Code == CodeUserNotFound || errors.Is(appErr, apperrors.ErrNotFound) {
			return true
		}
	}
	return p.UserNotFound != nil && p.UserNotFound.MatchString(errorMessage(err))
}

func (p Patterns) isFeatureUnavailable(err error) bool {
	if appErr, ok := apperrors.As(err); ok && appErr.Code == CodeFeatureUnavailable {
		return true
	}
	if errors.Is(err, ErrPasswordlessDisabled) {
		return true
	}
	msg := errorMessage(err)
	for _, re := range p.FeatureUnavailable {
		if re.MatchString(msg) {
			return true
		}
	}
	return false
}
