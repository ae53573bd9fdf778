package domain

import (
	"strings"
	"time"
)

// ContactInfoSubmission is what the shopper sends from the contact-info
// step: either a guest email or email plus password.
type ContactInfoSubmission interface {
	SubmittedEmail() string
	contactInfoSubmission()
}

// GuestSubmission continues checkout as a guest with an email only.
type GuestSubmission struct {
	Email string
}

func (s GuestSubmission) SubmittedEmail() string { return s.Email }
func (GuestSubmission) contactInfoSubmission()   {}

// PasswordLoginSubmission signs a registered shopper in.
type PasswordLoginSubmission struct {
	Email    string
	Password string
}

func (s PasswordLoginSubmission) SubmittedEmail() string { return s.Email }
func (PasswordLoginSubmission) contactInfoSubmission()   {}

// NewContactInfoSubmission classifies raw form input: an empty password
// means guest checkout.
func NewContactInfoSubmission(email, password string) ContactInfoSubmission {
	email = strings.TrimSpace(email)
	if password == "" {
		return GuestSubmission{Email: email}
	}
	return PasswordLoginSubmission{Email: email, Password: password}
}

// AuthSession is the result of a successful login.
type AuthSession struct {
	CustomerID   string    `json:"customer_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// OutcomeKind tags an AuthOutcome.
type OutcomeKind string

const (
	OutcomeGuestContinuation            OutcomeKind = "guest_continuation"
	OutcomeGuestContinuationFailure     OutcomeKind = "guest_continuation_failure"
	OutcomePasswordLoginSuccess         OutcomeKind = "password_login_success"
	OutcomePasswordLoginFailure         OutcomeKind = "password_login_failure"
	OutcomePasswordlessChallengeIssued  OutcomeKind = "passwordless_challenge_issued"
	OutcomePasswordlessChallengeFailure OutcomeKind = "passwordless_challenge_failure"
)

// AuthOutcome is the result of a contact-info submission. Reason holds the
// shopper-facing message for failures. Session is set only on login success
// and is never persisted.
type AuthOutcome struct {
	Kind    OutcomeKind  `json:"kind"`
	Reason  string       `json:"reason,omitempty"`
	Session *AuthSession `json:"-"`
}

func GuestContinuation() AuthOutcome {
	return AuthOutcome{Kind: OutcomeGuestContinuation}
}

func GuestContinuationFailure(reason string) AuthOutcome {
	return AuthOutcome{Kind: OutcomeGuestContinuationFailure, Reason: reason}
}

func PasswordLoginSuccess(session AuthSession) AuthOutcome {
	return AuthOutcome{Kind: OutcomePasswordLoginSuccess, Session: &session}
}

func PasswordLoginFailure(reason string) AuthOutcome {
	return AuthOutcome{Kind: OutcomePasswordLoginFailure, Reason: reason}
}

func PasswordlessChallengeIssued() AuthOutcome {
	return AuthOutcome{Kind: OutcomePasswordlessChallengeIssued}
}

func PasswordlessChallengeFailure(reason string) AuthOutcome {
	return AuthOutcome{Kind: OutcomePasswordlessChallengeFailure, Reason: reason}
}

// Failed reports whether the outcome carries an error for the error slot.
func (o AuthOutcome) Failed() bool {
	switch o.Kind {
	case OutcomeGuestContinuationFailure, OutcomePasswordLoginFailure, OutcomePasswordlessChallengeFailure:
		return true
	default:
		return false
	}
}

// Advances reports whether the contact-info step is complete.
func (o AuthOutcome) Advances() bool {
	return o.Kind == OutcomeGuestContinuation || o.Kind == OutcomePasswordLoginSuccess
}

// ModalView is the view shown in the login modal.
type ModalView string

const (
	ModalViewPassword  ModalView = "password"
	ModalViewEnterCode ModalView = "enter_code"
)

// AuthModal is the state of the login modal.
type AuthModal struct {
	View ModalView `json:"view"`
	Open bool      `json:"open"`
}

// PageContext is the shopper's current page, used to send them back to
// checkout after a passwordless link is followed.
type PageContext struct {
	Path     string `json:"path"`
	RawQuery string `json:"query,omitempty"`
}
