package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/storefront-checkout/pkg/errors"
)

// DownstreamErrorResponse is the error envelope returned by the identity,
// basket and customer services.
type DownstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes a non-2xx response and translates
// it into an *apperrors.AppError. The downstream code and message are kept
// verbatim so callers can classify them and show the message to shoppers.
// Unstructured bodies become the message as-is.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	code, message := "", strings.TrimSpace(string(body))
	var downstream DownstreamErrorResponse
	if json.Unmarshal(body, &downstream) == nil && downstream.Error != nil {
		code, message = downstream.Error.Code, downstream.Error.Message
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return fmt.Errorf("%s: %w", serviceName, apperrors.FromStatus(resp.StatusCode, code, message))
}
