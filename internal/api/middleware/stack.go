// SPDX-License-Identifier: MIT

// Package middleware provides the HTTP ingress middleware of the lock API.
package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/IsakPar/the-lml-sub003/internal/log"
)

// StackConfig configures the canonical ingress stack. Both the API server and
// the test harness apply the same stack to prevent drift in cross-cutting
// concerns.
type StackConfig struct {
	EnableMetrics  bool
	TracingService string // empty disables tracing
	EnableLogging  bool
}

// NewRouter constructs a chi router with the canonical stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack applies the canonical middleware stack to r. Order matters:
// the recoverer is outermost, logging wraps handlers so it captures full
// latency.
func ApplyStack(r chi.Router, cfg StackConfig) {
	r.Use(Recoverer)
	r.Use(RequestID)
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	if cfg.TracingService != "" {
		r.Use(Tracing(cfg.TracingService))
	}
	if cfg.EnableLogging {
		r.Use(Logging)
	}
}

// TenantRequired extracts and validates the X-Tenant-Id header, storing the
// tenant in the request context. Requests without a tenant are rejected
// before any handler runs.
func TenantRequired(reject func(w http.ResponseWriter, r *http.Request, detail string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := r.Header.Get(HeaderTenantID)
			if tenant == "" {
				reject(w, r, "missing "+HeaderTenantID+" header")
				return
			}
			ctx := log.ContextWithTenantID(r.Context(), tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
