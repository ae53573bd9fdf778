package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig lists what a browser on an allowed origin may send and read.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
	MaxAge         int

	// AnyOrigin answers every origin with "*". Bearer tokens travel in a
	// header, so credentials are never allowed.
	AnyOrigin bool
}

// StorefrontCORSConfig allows the storefront origins to call the checkout
// API. Development, or an explicit "*", opens it to any origin.
func StorefrontCORSConfig(origins []string, environment string) CORSConfig {
	return CORSConfig{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Correlation-ID", "Traceparent"},
		ExposedHeaders: []string{"X-Correlation-ID"},
		MaxAge:         600,
		AnyOrigin:      environment == "development" || slices.Contains(origins, "*"),
	}
}

// CORS answers preflight requests and tags responses for allowed origins.
// Requests from other origins pass through untagged and the browser blocks
// the response.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	preflight := map[string]string{
		"Access-Control-Allow-Methods": strings.Join(cfg.AllowedMethods, ", "),
		"Access-Control-Allow-Headers": strings.Join(cfg.AllowedHeaders, ", "),
		"Access-Control-Max-Age":       strconv.Itoa(cfg.MaxAge),
	}
	exposed := strings.Join(cfg.ExposedHeaders, ", ")

	allowed := func(origin string) string {
		switch {
		case cfg.AnyOrigin:
			return "*"
		case origin != "" && slices.Contains(cfg.AllowedOrigins, origin):
			return origin
		}
		return ""
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			if origin := allowed(r.Header.Get("Origin")); origin != "" {
				h.Set("Access-Control-Allow-Origin", origin)
				if exposed != "" {
					h.Set("Access-Control-Expose-Headers", exposed)
				}
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				for k, v := range preflight {
					h.Set(k, v)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
