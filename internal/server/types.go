package server

import "strings"

// Action names a client can send over the WebSocket.
const (
	ActionJoin      = "join"
	ActionAddIdea   = "add-idea"
	ActionVote      = "vote"
	ActionSendChat  = "send-chat"
	ActionSetTheme  = "set-theme"
	ActionSetTitle  = "set-title"
	ActionHeartbeat = "heartbeat"
	ActionLeave     = "leave"
)

// Action is the client-to-server frame. The first frame on a connection
// must be a join; everything else is rejected until the session is
// attached to a board.
type Action struct {
	Action      string `json:"action"`
	BoardCode   string `json:"boardCode,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Text        string `json:"text,omitempty"`
	CardID      int64  `json:"cardId,omitempty"`
	Direction   int    `json:"direction,omitempty"`
	Theme       string `json:"theme,omitempty"`
	Title       string `json:"title,omitempty"`
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
