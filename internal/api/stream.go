// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/IsakPar/the-lml-sub003/internal/log"
)

// keepAliveInterval is how often the stream emits a comment so intermediate
// proxies keep the connection open.
const keepAliveInterval = 15 * time.Second

// handleStream serves GET /v1/performances/{performanceID}/availability/stream
// as Server-Sent Events. Each event carries its partition sequence number as
// the SSE id; a subscriber that observes a gap re-snapshots and resumes.
// There is no backfill.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, r, http.StatusInternalServerError, typeInternal, "Streaming Unsupported", "", nil)
		return
	}

	tenant := log.TenantIDFromContext(r.Context())
	performance := chi.URLParam(r, "performanceID")

	sub, err := s.Bus.Subscribe(r.Context(), tenant, performance)
	if err != nil {
		writeError(w, r, err, 0)
		return
	}
	defer func() { _ = sub.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-sub.C():
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Sequence, ev.Kind, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
