package httpclient

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/storefront-checkout/pkg/errors"
)

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestParseResponseError_Structured(t *testing.T) {
	err := ParseResponseError(response(http.StatusNotFound,
		`{"error":{"code":"USER_NOT_FOUND","message":"User not found"}}`), "identity-service")

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "USER_NOT_FOUND", appErr.Code)
	assert.Equal(t, "User not found", appErr.Message)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "identity-service")
}

func TestParseResponseError_Unstructured(t *testing.T) {
	err := ParseResponseError(response(http.StatusUnauthorized, "Unauthorized: bad credentials\n"), "identity-service")

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeUnauthorized, appErr.Code)
	assert.Equal(t, "Unauthorized: bad credentials", appErr.Message)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestParseResponseError_EmptyBody(t *testing.T) {
	err := ParseResponseError(response(http.StatusForbidden, ""), "basket-service")

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "Forbidden", appErr.Message)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestParseResponseError_ServerErrorMapsToBadGateway(t *testing.T) {
	err := ParseResponseError(response(http.StatusInternalServerError,
		`{"error":{"code":"DB_DOWN","message":"database unavailable"}}`), "customer-service")

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
	assert.Equal(t, "DB_DOWN", appErr.Code)
	assert.ErrorIs(t, err, apperrors.ErrInternal)
}

func TestParseResponseError_StatusMapping(t *testing.T) {
	tests := []struct {
		status   int
		sentinel error
	}{
		{http.StatusBadRequest, apperrors.ErrInvalidInput},
		{http.StatusUnprocessableEntity, apperrors.ErrInvalidInput},
		{http.StatusConflict, apperrors.ErrConflict},
		{http.StatusGone, apperrors.ErrGone},
		{http.StatusServiceUnavailable, apperrors.ErrServiceUnavail},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := ParseResponseError(response(tt.status, "x"), "svc")
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}
