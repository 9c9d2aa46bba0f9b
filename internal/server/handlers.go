package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"echoboard/internal/board"
	"echoboard/internal/security"
)

// handleWebSocket upgrades the connection and hands it to a Client. The
// client stays anonymous until its first frame joins a board.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := newClient(s, conn, r.RemoteAddr)
	go client.run()
}

type createBoardRequest struct {
	Theme string `json:"theme"`
}

type createBoardResponse struct {
	Code  string `json:"code"`
	Theme string `json:"theme"`
}

// handleCreateBoard allocates a new board and returns its join code.
// Code-space exhaustion maps to 503 so clients know to retry.
func (s *Server) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	// An empty body is a board with the default theme.
	var req createBoardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	theme := s.sanitizer.Text(req.Theme, security.MaxTheme)
	if theme == "" {
		theme = "ocean"
	}

	b, err := s.registry.Create(theme)
	if err != nil {
		if errors.Is(err, board.ErrCodeSpaceExhausted) {
			http.Error(w, "no board codes available, retry later", http.StatusServiceUnavailable)
			return
		}
		log.Printf("Board creation failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, createBoardResponse{Code: b.Code(), Theme: theme})
}

// handleGetBoard returns a consistent snapshot of a board without joining
// it.
func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "code")))

	b, err := s.registry.Get(code)
	if err != nil {
		if errors.Is(err, board.ErrNotFound) {
			http.Error(w, "board not found", http.StatusNotFound)
			return
		}
		log.Printf("Board lookup failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	snap, err := b.Snapshot()
	if err != nil {
		http.Error(w, "board unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleHealth is a plain liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "EchoBoard server is running!")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}
