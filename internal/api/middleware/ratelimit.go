// SPDX-License-Identifier: MIT

package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// MutationRateLimit protects the mutating routes with a per-IP sliding
// window. This is transport back-pressure; the per-owner acquire budget is
// enforced separately inside the coordinator.
func MutationRateLimit(requestLimit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/problem+json")
			w.Header().Set(HeaderRetryAfter, strconv.Itoa(int(window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"type":   "urn:ticketing:inventory:rate-limited",
				"title":  "Too Many Requests",
				"status": http.StatusTooManyRequests,
				"detail": "request rate exceeded, retry later",
			})
		}),
	)
}
