// Package client holds the HTTP clients for the identity, basket and
// customer services.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/storefront-checkout/pkg/errors"
	"github.com/utafrali/storefront-checkout/pkg/httpclient"
	"github.com/utafrali/storefront-checkout/pkg/logger"
	"github.com/utafrali/storefront-checkout/pkg/middleware"
	"github.com/utafrali/storefront-checkout/pkg/tracing"
)

// Service names used in errors, breaker names and metrics.
const (
	ServiceIdentity = "identity-service"
	ServiceBasket   = "basket-service"
	ServiceCustomer = "customer-service"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// CircuitOpenFallback turns a rejected request into a ServiceUnavailable
// error naming service.
func CircuitOpenFallback(service string) httpclient.FallbackFunc {
	return func(_ context.Context, _ error) (*http.Response, error) {
		return nil, apperrors.ServiceUnavailable(service)
	}
}

// envelope is the success body of the downstream services.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// base sends JSON requests as the shopper whose token is in the context.
type base struct {
	doer    HTTPDoer
	baseURL string
	service string
}

func newBase(doer HTTPDoer, baseURL, service string) base {
	return base{doer: doer, baseURL: strings.TrimSuffix(baseURL, "/"), service: service}
}

// do sends body (if any) as JSON and decodes the data of a 2xx response
// into out (if any). Non-2xx responses become *apperrors.AppError.
func (b base) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", b.service, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", b.service, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := middleware.AccessTokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set(middleware.CorrelationHeader, id)
	}
	tracing.InjectHTTP(ctx, req)

	resp, err := b.doer.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("call %s: %w", b.service, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, b.service)
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s response: %w", b.service, err)
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("decode %s response: missing data", b.service)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", b.service, err)
	}
	return nil
}
