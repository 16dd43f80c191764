// SPDX-License-Identifier: MIT

// Package api exposes the seat lock engine over HTTP: hold mutations,
// availability snapshots and the SSE change stream, with RFC 7807 errors.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/IsakPar/the-lml-sub003/internal/api/middleware"
	"github.com/IsakPar/the-lml-sub003/internal/bus"
	"github.com/IsakPar/the-lml-sub003/internal/config"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/coordinator"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/ledger"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/projector"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/shadow"
)

// Server wires the engine components behind the HTTP surface.
type Server struct {
	Coordinator *coordinator.Coordinator
	Projector   *projector.Projector
	Bus         bus.Bus
	Ledger      ledger.Ledger
	Shadow      shadow.Store
	Cfg         *config.Config
}

func NewServer(coord *coordinator.Coordinator, proj *projector.Projector, b bus.Bus, l ledger.Ledger, s shadow.Store, cfg *config.Config) *Server {
	return &Server{
		Coordinator: coord,
		Projector:   proj,
		Bus:         b,
		Ledger:      l,
		Shadow:      s,
		Cfg:         cfg,
	}
}

// Router builds the chi router with the canonical middleware stack. Mutating
// routes additionally carry the per-IP rate limit.
func (s *Server) Router() *chi.Mux {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: s.tracingService(),
		EnableLogging:  true,
	})

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.TenantRequired(writeBadRequest))

		r.Group(func(r chi.Router) {
			r.Use(middleware.MutationRateLimit(s.Cfg.Rate.Burst, s.Cfg.Rate.Window))

			r.Post("/holds", s.handleAcquire)
			r.Patch("/holds", s.handleExtend)
			r.Delete("/holds/{holdID}", s.handleRelease)
			r.Post("/holds/{holdID}/convert", s.handleConvert)
			r.Put("/performances/{performanceID}/blocks", s.handleBlock)
			r.Delete("/performances/{performanceID}/blocks", s.handleUnblock)
		})

		r.Get("/holds/{holdID}", s.handleGetHold)
		r.Get("/performances/{performanceID}/availability", s.handleAvailability)
		r.Get("/performances/{performanceID}/availability/stream", s.handleStream)
	})

	return r
}

func (s *Server) tracingService() string {
	if s.Cfg.Telemetry.Enabled {
		return "lockd-api"
	}
	return ""
}

// retryAfter is the advisory wait advertised on budget rejections.
func (s *Server) retryAfter() time.Duration {
	return s.Cfg.Rate.Window
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz probes both substrates. A failing probe answers 503 so the
// orchestrator stops routing traffic here.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.Ledger.Ping(r.Context()); err != nil {
		writeProblem(w, r, http.StatusServiceUnavailable, typeUnavailable, "Ledger Unreachable", err.Error(), nil)
		return
	}
	if err := s.Shadow.Ping(r.Context()); err != nil {
		writeProblem(w, r, http.StatusServiceUnavailable, typeUnavailable, "Shadow Store Unreachable", err.Error(), nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
