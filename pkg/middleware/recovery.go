package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/utafrali/storefront-checkout/pkg/httputil"
)

// Recovery turns a handler panic into a 500 error envelope. If the handler
// already started its response the connection is left as is.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newStatusRecorder(w)
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}

				l.ErrorContext(r.Context(), "handler panic",
					slog.Any("panic", v),
					slog.String("route", r.Method+" "+r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				if rec.wroteHeader {
					return
				}
				httputil.WriteError(rec, r, fmt.Errorf("panic: %v", v), l)
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
