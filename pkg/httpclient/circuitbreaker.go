package httpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig configures the breaker in front of one downstream
// service. The breaker trips once MinRequests have been seen in the current
// Interval and at least FailureRatio of them failed. After Timeout it lets
// MaxRequests probes through.
type CircuitBreakerConfig struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

func (c CircuitBreakerConfig) readyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < c.MinRequests {
		return false
	}
	return float64(counts.TotalFailures) >= c.FailureRatio*float64(counts.Requests)
}

// FallbackFunc answers in place of a downstream that the breaker has cut off.
type FallbackFunc func(ctx context.Context, err error) (*http.Response, error)

// ErrCircuitOpen is returned while the breaker rejects requests and no
// fallback is set.
var ErrCircuitOpen = gobreaker.ErrOpenState

var (
	// gobreaker orders its states closed=0, half-open=1, open=2.
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storefront_downstream_breaker_state",
			Help: "Downstream circuit breaker state (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service"},
	)
	breakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_downstream_breaker_rejections_total",
			Help: "Requests rejected by an open downstream circuit breaker.",
		},
		[]string{"service", "fallback"},
	)
)

// downstreamFailure lets a 5xx count against the breaker while the response
// itself still reaches the caller.
type downstreamFailure struct{ status int }

func (e downstreamFailure) Error() string {
	return fmt.Sprintf("downstream responded %d", e.status)
}

// CircuitBreakerClient is a Client guarded by a gobreaker breaker.
type CircuitBreakerClient struct {
	name     string
	client   *Client
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	fallback FallbackFunc
	logger   *slog.Logger
}

// NewCircuitBreakerClient guards client with a breaker configured by cfg.
func NewCircuitBreakerClient(client *Client, cfg CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerClient {
	breakerState.WithLabelValues(cfg.Name).Set(float64(gobreaker.StateClosed))

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.readyToTrip,
		// A shopper abandoning a request is not a downstream failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn("downstream breaker changed state",
				slog.String("service", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &CircuitBreakerClient{
		name:    cfg.Name,
		client:  client,
		breaker: breaker,
		logger:  logger,
	}
}

// WithFallback returns a copy of c that answers with fn while open.
func (c *CircuitBreakerClient) WithFallback(fn FallbackFunc) *CircuitBreakerClient {
	guarded := *c
	guarded.fallback = fn
	return &guarded
}

// Do sends req through the breaker. 5xx responses are returned as responses
// so callers can parse the downstream error body.
func (c *CircuitBreakerClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.client.Do(ctx, req)
		if err == nil && resp.StatusCode >= http.StatusInternalServerError {
			return resp, downstreamFailure{status: resp.StatusCode}
		}
		return resp, err
	})
	if err == nil {
		return resp, nil
	}

	var failure downstreamFailure
	if errors.As(err, &failure) && resp != nil {
		return resp, nil
	}
	if !errors.Is(err, ErrCircuitOpen) {
		return nil, err
	}

	breakerRejections.WithLabelValues(c.name, fmt.Sprint(c.fallback != nil)).Inc()
	if c.fallback == nil {
		return nil, err
	}
	c.logger.WarnContext(ctx, "downstream breaker open, using fallback", slog.String("service", c.name))
	return c.fallback(ctx, err)
}

// State reports the breaker state.
func (c *CircuitBreakerClient) State() gobreaker.State { return c.breaker.State() }

// Name is the downstream service the breaker guards.
func (c *CircuitBreakerClient) Name() string { return c.name }
