package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels. Every AppError built here wraps one, so errors.Is matches on
// the kind whatever the message says.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternal       = errors.New("internal error")
	ErrConflict       = errors.New("conflict")
	ErrGone           = errors.New("gone")
	ErrServiceUnavail = errors.New("service unavailable")
)

// Codes used in error envelopes, ours and the downstream services'.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeConflict           = "CONFLICT"
	CodeGone               = "GONE"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

type kind struct {
	sentinel error
	code     string
	status   int
}

var kinds = []kind{
	{ErrNotFound, CodeNotFound, http.StatusNotFound},
	{ErrInvalidInput, CodeInvalidInput, http.StatusBadRequest},
	{ErrUnauthorized, CodeUnauthorized, http.StatusUnauthorized},
	{ErrForbidden, CodeForbidden, http.StatusForbidden},
	{ErrConflict, CodeConflict, http.StatusConflict},
	{ErrGone, CodeGone, http.StatusGone},
	{ErrServiceUnavail, CodeServiceUnavailable, http.StatusServiceUnavailable},
	{ErrInternal, CodeInternal, http.StatusInternalServerError},
}

func kindOf(sentinel error) kind {
	for _, k := range kinds {
		if k.sentinel == sentinel {
			return k
		}
	}
	return kinds[len(kinds)-1]
}

// AppError is an error with a code and message safe to show to clients and
// the HTTP status it maps to.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func newError(sentinel error, message string) *AppError {
	k := kindOf(sentinel)
	return &AppError{Code: k.code, Message: message, Status: k.status, Err: sentinel}
}

func NotFound(resource, id string) *AppError {
	return newError(ErrNotFound, fmt.Sprintf("%s with id %s not found", resource, id))
}

func InvalidInput(message string) *AppError { return newError(ErrInvalidInput, message) }

func Unauthorized(message string) *AppError { return newError(ErrUnauthorized, message) }

func Forbidden(message string) *AppError { return newError(ErrForbidden, message) }

func Conflict(message string) *AppError { return newError(ErrConflict, message) }

// Gone reports an expired checkout flow.
func Gone(message string) *AppError { return newError(ErrGone, message) }

// ServiceUnavailable reports a downstream service that cannot be reached.
func ServiceUnavailable(service string) *AppError {
	return newError(ErrServiceUnavail, service+" is temporarily unavailable")
}

// Internal hides err behind a generic message. err stays in the chain.
func Internal(err error) *AppError {
	e := newError(ErrInternal, "an internal error occurred")
	e.Err = err
	return e
}

// FromStatus builds the AppError for a downstream response. A 5xx becomes a
// 502 from our side; 503 keeps its meaning. An empty code falls back to the
// code of the matched kind.
func FromStatus(status int, code, message string) *AppError {
	e := &AppError{Code: code, Message: message, Status: status}

	switch {
	case status == http.StatusUnprocessableEntity:
		e.Err = ErrInvalidInput
	case status == http.StatusServiceUnavailable:
		e.Err = ErrServiceUnavail
	case status >= http.StatusInternalServerError:
		e.Err = ErrInternal
		e.Status = http.StatusBadGateway
	default:
		for _, k := range kinds {
			if k.status == status {
				e.Err = k.sentinel
			}
		}
	}

	if e.Code == "" {
		e.Code = kindOf(e.Err).code
	}
	return e
}

// Wrap adds context to err.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HTTPStatus maps err to a response status. Unclassified errors are 500.
func HTTPStatus(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.Status
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}
