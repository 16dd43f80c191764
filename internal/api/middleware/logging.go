// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"time"

	"github.com/IsakPar/the-lml-sub003/internal/log"
)

// Logging emits one structured access log line per request, enriched with
// the correlation fields already placed in the context.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(sw, r)

		logger := log.WithComponentFromContext(r.Context(), "http")
		evt := logger.Info()
		if sw.statusCode >= 500 {
			evt = logger.Error()
		} else if sw.statusCode >= 400 {
			evt = logger.Warn()
		}
		evt.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("request")
	})
}
