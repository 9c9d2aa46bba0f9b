package board

import (
	"encoding/json"
	"time"

	"echoboard/internal/model"
)

// EventKind tags every frame pushed from the server to its clients.
type EventKind string

const (
	EventBoardState      EventKind = "board-state"
	EventIdeaAdded       EventKind = "idea-added"
	EventVoteChanged     EventKind = "vote-changed"
	EventChatMessage     EventKind = "chat-message"
	EventPresenceChanged EventKind = "presence-changed"
	EventThemeChanged    EventKind = "theme-changed"
	EventTitleChanged    EventKind = "title-changed"
	EventError           EventKind = "error"
)

// Event is the envelope for every server-to-client frame: a kind tag, a
// kind-specific payload, and the publish timestamp.
type Event struct {
	Kind EventKind `json:"kind"`
	Data any       `json:"data"`
	At   time.Time `json:"at"`
}

// CardPayload carries a freshly created idea card.
type CardPayload struct {
	Card model.IdeaCard `json:"card"`
}

// VotePayload carries the authoritative new total for a card.
type VotePayload struct {
	CardID int64 `json:"cardId"`
	Total  int   `json:"total"`
}

// MessagePayload carries one chat message.
type MessagePayload struct {
	Message model.ChatMessage `json:"message"`
}

// PresencePayload carries the full set of display names currently present,
// so clients never have to reconcile incremental diffs.
type PresencePayload struct {
	Sessions []string `json:"sessions"`
}

// ThemePayload carries the board's new theme tag.
type ThemePayload struct {
	Theme string `json:"theme"`
}

// TitlePayload carries the board's new title.
type TitlePayload struct {
	Title string `json:"title"`
}

// ErrorPayload is the acknowledgment sent to the acting client when its own
// request fails. Other sessions on the board never see it.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Snapshot is the consistent view of a board handed to a session at join
// time: cards with aggregated totals, present display names, and recent
// chat history from the persistence adapter.
type Snapshot struct {
	Code     string              `json:"code"`
	Theme    string              `json:"theme"`
	Title    string              `json:"title"`
	Cards    []model.IdeaCard    `json:"cards"`
	Sessions []string            `json:"sessions"`
	Messages []model.ChatMessage `json:"messages"`
}

// EncodeEvent marshals an event envelope once so a single byte slice can be
// fanned out to every subscriber.
func EncodeEvent(kind EventKind, data any) ([]byte, error) {
	return json.Marshal(Event{Kind: kind, Data: data, At: time.Now().UTC()})
}
