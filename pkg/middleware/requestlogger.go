package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/storefront-checkout/pkg/logger"
)

// RequestLogger stores a request-scoped logger carrying the correlation,
// customer and trace identifiers. Mount it after RequestLogging, Tracing and
// Auth so those identifiers are already in the context.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if id := CustomerIDFromContext(ctx); id != "" {
				ctx = logger.WithCustomerID(ctx, id)
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
