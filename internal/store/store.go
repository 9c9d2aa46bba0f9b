// Package store is the persistence adapter for the board engine. The core
// treats it as a best-effort sink: real-time delivery never waits for a
// durable commit, and store failures are logged and counted rather than
// surfaced to other sessions.
package store

import (
	"errors"

	"echoboard/internal/model"
)

// ErrNotFound reports a board absent from the durable store.
var ErrNotFound = errors.New("store: not found")

// Store is the narrow interface the engine issues read/write requests
// through. Implementations must be safe for concurrent use.
type Store interface {
	SaveBoard(b model.Board) error
	LoadBoard(code string) (model.Board, error)

	SaveCard(c model.IdeaCard) error
	UpdateCardVotes(boardCode string, cardID int64, votes int) error
	LoadCards(boardCode string) ([]model.IdeaCard, error)

	SaveMessage(m model.ChatMessage) error
	LoadRecentHistory(boardCode string, limit int) ([]model.ChatMessage, error)

	Close() error
}
