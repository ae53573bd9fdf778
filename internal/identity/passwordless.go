package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/utafrali/storefront-checkout/internal/domain"
)

// ErrPasswordlessDisabled is returned when no passwordless callback is
// configured.
var ErrPasswordlessDisabled = errors.New("passwordless login is not configured")

// PasswordlessAuthorizer asks the identity service to send a passwordless
// challenge.
type PasswordlessAuthorizer interface {
	AuthorizePasswordless(ctx context.Context, email, callbackURI string) error
}

// ChallengeError is a failed passwordless request. Message is what the
// shopper sees.
type ChallengeError struct {
	Message string
	Err     error
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("passwordless challenge: %v", e.Err)
}

func (e *ChallengeError) Unwrap() error { return e.Err }

// Passwordless requests out-of-band login challenges.
type Passwordless struct {
	client   PasswordlessAuthorizer
	callback *url.URL
	patterns Patterns
}

// NewPasswordless resolves the callback once. An absolute callback is used
// as is; a relative one is joined to appOrigin.
func NewPasswordless(client PasswordlessAuthorizer, callbackURI, appOrigin string, patterns Patterns) (*Passwordless, error) {
	if callbackURI == "" {
		return nil, ErrPasswordlessDisabled
	}

	raw := callbackURI
	if !isAbsoluteURL(callbackURI) {
		if appOrigin == "" {
			return nil, fmt.Errorf("relative passwordless callback %q needs an application origin", callbackURI)
		}
		raw = strings.TrimSuffix(appOrigin, "/") + "/" + strings.TrimPrefix(callbackURI, "/")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse passwordless callback: %w", err)
	}

	return &Passwordless{client: client, callback: u, patterns: patterns}, nil
}

func isAbsoluteURL(s string) bool {
	if strings.HasPrefix(s, "//") {
		return true
	}
	u, err := url.Parse(s)
	return err == nil && u.IsAbs() && u.Host != ""
}

// CallbackURL is the configured callback with the shopper's current page
// appended as redirectUrl.
func (p *Passwordless) CallbackURL(page domain.PageContext) string {
	redirect := page.Path
	if redirect == "" {
		redirect = "/"
	}
	if page.RawQuery != "" {
		redirect += "?" + strings.TrimPrefix(page.RawQuery, "?")
	}

	u := *p.callback
	q := u.Query()
	q.Set("redirectUrl", redirect)
	u.RawQuery = q.Encode()
	return u.String()
}

// RequestChallenge sends a challenge to email. Failures are returned as
// *ChallengeError.
func (p *Passwordless) RequestChallenge(ctx context.Context, email string, page domain.PageContext) error {
	if err := p.client.AuthorizePasswordless(ctx, email, p.CallbackURL(page)); err != nil {
		return &ChallengeError{Message: p.patterns.PasswordlessFailureMessage(err), Err: err}
	}
	return nil
}
