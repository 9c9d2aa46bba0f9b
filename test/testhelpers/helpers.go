// Package testhelpers provides shared utilities for integration tests: a
// fully wired test server, WebSocket dialing, and event-frame assertions.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"echoboard/internal/board"
	"echoboard/internal/config"
	"echoboard/internal/metrics"
	"echoboard/internal/server"
	"echoboard/internal/store"
)

// Event mirrors the server-to-client frame envelope for assertions.
type Event struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// StartServer boots a complete stack — SQLite store in a temp dir, async
// writer, board registry, HTTP routes — and returns the test server's base
// URL. Everything is torn down via t.Cleanup.
func StartServer(t *testing.T) string {
	t.Helper()
	return StartServerWithOrigins(t, []string{"*"})
}

// StartServerWithOrigins is StartServer with an explicit WebSocket origin
// allow-list, for tests that exercise origin enforcement.
func StartServerWithOrigins(t *testing.T, origins []string) string {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "echoboard-test.db"))
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	collector := metrics.NewCollector(prometheus.NewRegistry())
	writer := store.NewWriter(st, 256, collector)
	registry := board.NewRegistry(st, writer, collector, board.Config{})

	cfg := config.Default()
	cfg.AllowedOrigins = origins
	// Integration scenarios fire frames much faster than a human would.
	cfg.RatePerSecond = 200
	cfg.RateBurst = 200

	srv := server.New(cfg, registry, collector.Handler())
	testServer := httptest.NewServer(srv.Routes())

	t.Cleanup(func() {
		testServer.Close()
		registry.Shutdown()
		writer.Close()
		_ = st.Close()
	})
	return testServer.URL
}

// CreateBoard creates a board over the REST endpoint and returns its join
// code.
func CreateBoard(t *testing.T, baseURL, theme string) string {
	t.Helper()

	body, err := json.Marshal(map[string]string{"theme": theme})
	if err != nil {
		t.Fatalf("Failed to marshal create request: %v", err)
	}
	resp, err := http.Post(baseURL+"/boards", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create board: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Create board returned status %d, want 201", resp.StatusCode)
	}
	var created struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode create response: %v", err)
	}
	return created.Code
}

// FetchSnapshot reads a board snapshot over REST into v.
func FetchSnapshot(t *testing.T, baseURL, code string, v any) {
	t.Helper()

	resp, err := http.Get(baseURL + "/boards/" + code)
	if err != nil {
		t.Fatalf("Failed to fetch snapshot: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Snapshot returned status %d, want 200", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
}

// Dial opens a WebSocket connection to the server's /ws endpoint.
func Dial(t *testing.T, baseURL string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", baseURL)

	conn, resp, err := dialer.Dial(wsURL, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendAction writes one client action frame as JSON.
func SendAction(t *testing.T, conn *websocket.Conn, action map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(action); err != nil {
		t.Fatalf("Failed to send %v: %v", action["action"], err)
	}
}

// Join sends a join frame for the given board and returns the board-state
// snapshot frame that must arrive before anything else.
func Join(t *testing.T, conn *websocket.Conn, code, displayName string) Event {
	t.Helper()

	SendAction(t, conn, map[string]any{
		"action":      "join",
		"boardCode":   code,
		"displayName": displayName,
	})

	ev := ReadEvent(t, conn)
	if ev.Kind != "board-state" {
		t.Fatalf("First frame after join is %q, want board-state (%s)", ev.Kind, ev.Data)
	}
	return ev
}

// ReadEvent reads a single event frame, failing the test after a timeout.
func ReadEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("Undecodable frame %s: %v", raw, err)
	}
	return ev
}

// WaitForEvent reads frames until one of the wanted kind arrives, skipping
// others. It fails the test if the deadline passes first.
func WaitForEvent(t *testing.T, conn *websocket.Conn, kind string) Event {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		ev := ReadEvent(t, conn)
		if ev.Kind == kind {
			return ev
		}
	}
	t.Fatalf("No %s event arrived in time", kind)
	return Event{}
}

// ExpectSilence asserts no frame arrives within the window. A read timeout
// is fatal to the connection, so call this only as the connection's final
// assertion.
func ExpectSilence(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	if _, raw, err := conn.ReadMessage(); err == nil {
		t.Fatalf("Expected silence, got frame %s", raw)
	}
}

// DecodeData unmarshals an event's payload into v.
func DecodeData(t *testing.T, ev Event, v any) {
	t.Helper()
	if err := json.Unmarshal(ev.Data, v); err != nil {
		t.Fatalf("Failed to decode %s payload: %v", ev.Kind, err)
	}
}
