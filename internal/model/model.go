// Package model defines the domain entities shared by the board engine,
// the persistence layer, and the wire protocol.
package model

import "time"

// SessionState tracks where a connected client sits in its lifecycle.
// Disconnected is terminal; a rejoin always produces a new Session identity.
type SessionState string

const (
	SessionConnecting   SessionState = "connecting"
	SessionActive       SessionState = "active"
	SessionIdle         SessionState = "idle"
	SessionDisconnected SessionState = "disconnected"
)

// Board is the durable identity of a collaborative space. Live state
// (sessions, vote ledger) is owned by the board actor and never serialized.
type Board struct {
	Code      string    `json:"code"`
	Theme     string    `json:"theme"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// IdeaCard is a votable content unit posted to a board. Card identifiers
// are a per-board sequence starting at 1.
type IdeaCard struct {
	ID        int64     `json:"id"`
	BoardCode string    `json:"boardCode"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Votes     int       `json:"votes"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatMessage is an append-only chat entry; it is never mutated after
// creation.
type ChatMessage struct {
	ID        string    `json:"id"`
	BoardCode string    `json:"boardCode"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is one connected client's live presence within a board. It is
// owned exclusively by the board actor; everything else sees copies.
type Session struct {
	ID          string       `json:"id"`
	BoardCode   string       `json:"boardCode"`
	DisplayName string       `json:"displayName"`
	State       SessionState `json:"state"`
	ConnectedAt time.Time    `json:"connectedAt"`
	LastSeen    time.Time    `json:"lastSeen"`
}
