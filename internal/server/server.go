package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"echoboard/internal/board"
	"echoboard/internal/config"
	"echoboard/internal/security"
)

// Server binds the transport layer to a board registry.
type Server struct {
	cfg       config.Config
	registry  *board.Registry
	sanitizer *security.Sanitizer
	origins   originPolicy
	upgrader  websocket.Upgrader
	metricsH  http.Handler
}

// New builds a Server. metricsHandler serves /metrics and may be nil to
// disable the endpoint.
func New(cfg config.Config, registry *board.Registry, metricsHandler http.Handler) *Server {
	s := &Server{
		cfg:       cfg,
		registry:  registry,
		sanitizer: security.NewSanitizer(),
		origins:   newOriginPolicy(cfg.AllowedOrigins),
		metricsH:  metricsHandler,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	return s
}
