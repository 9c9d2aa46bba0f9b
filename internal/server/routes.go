package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes wires the HTTP surface: health check, board REST endpoints, the
// WebSocket endpoint, and metrics when a handler was provided.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/boards", s.handleCreateBoard)
	r.Get("/boards/{code}", s.handleGetBoard)
	r.Get("/ws", s.handleWebSocket)
	if s.metricsH != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsH)
	}

	return r
}
