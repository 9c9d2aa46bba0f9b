package board

import (
	"encoding/json"
	"reflect"
	"sync"
	"testing"
	"time"

	"echoboard/internal/model"
	"echoboard/internal/store"
)

// memStore is an in-memory Store for exercising the actor without SQLite.
type memStore struct {
	mu     sync.Mutex
	boards map[string]model.Board
	cards  map[string][]model.IdeaCard
	msgs   map[string][]model.ChatMessage
}

func newMemStore() *memStore {
	return &memStore{
		boards: make(map[string]model.Board),
		cards:  make(map[string][]model.IdeaCard),
		msgs:   make(map[string][]model.ChatMessage),
	}
}

func (m *memStore) SaveBoard(b model.Board) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boards[b.Code] = b
	return nil
}

func (m *memStore) LoadBoard(code string) (model.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boards[code]
	if !ok {
		return model.Board{}, store.ErrNotFound
	}
	return b, nil
}

func (m *memStore) SaveCard(c model.IdeaCard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[c.BoardCode] = append(m.cards[c.BoardCode], c)
	return nil
}

func (m *memStore) UpdateCardVotes(boardCode string, cardID int64, votes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cards := m.cards[boardCode]
	for i := range cards {
		if cards[i].ID == cardID {
			cards[i].Votes = votes
		}
	}
	return nil
}

func (m *memStore) LoadCards(boardCode string) ([]model.IdeaCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.IdeaCard(nil), m.cards[boardCode]...), nil
}

func (m *memStore) SaveMessage(msg model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs[msg.BoardCode] = append(m.msgs[msg.BoardCode], msg)
	return nil
}

func (m *memStore) LoadRecentHistory(boardCode string, limit int) ([]model.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.msgs[boardCode]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]model.ChatMessage(nil), msgs...), nil
}

func (m *memStore) messageCount(boardCode string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs[boardCode])
}

func (m *memStore) Close() error { return nil }

type testFrame struct {
	Kind EventKind       `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, sink chan []byte) testFrame {
	t.Helper()
	select {
	case raw := <-sink:
		var f testFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("undecodable frame %s: %v", raw, err)
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return testFrame{}
	}
}

func expectKind(t *testing.T, sink chan []byte, kind EventKind) testFrame {
	t.Helper()
	f := readFrame(t, sink)
	if f.Kind != kind {
		t.Fatalf("expected %s frame, got %s (%s)", kind, f.Kind, f.Data)
	}
	return f
}

func expectNoFrame(t *testing.T, sink chan []byte, wait time.Duration) {
	t.Helper()
	select {
	case raw := <-sink:
		t.Fatalf("expected no frame, got %s", raw)
	case <-time.After(wait):
	}
}

func decodePayload(t *testing.T, f testFrame, v any) {
	t.Helper()
	if err := json.Unmarshal(f.Data, v); err != nil {
		t.Fatalf("decode %s payload: %v", f.Kind, err)
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func startTestBoard(t *testing.T, st store.Store, cards []model.IdeaCard, cfg Config) *Board {
	t.Helper()
	writer := store.NewWriter(st, 64, nil)
	row := model.Board{Code: "AB12", Theme: "ocean", Title: "Untitled", CreatedAt: time.Now().UTC()}
	b := newBoard(row, cards, st, writer, nil, cfg.withDefaults())
	go b.run()
	t.Cleanup(func() {
		b.close()
		writer.Close()
	})
	return b
}

// join attaches a session with a generously buffered sink and drains the
// snapshot and self-presence frames.
func join(t *testing.T, b *Board, name string) (model.Session, chan []byte) {
	t.Helper()
	sink := make(chan []byte, 64)
	session, err := b.Join(name, sink, nil)
	if err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	expectKind(t, sink, EventBoardState)
	expectKind(t, sink, EventPresenceChanged)
	return session, sink
}

func TestJoinDeliversSnapshotBeforeEvents(t *testing.T) {
	b := startTestBoard(t, newMemStore(), nil, Config{})

	sink := make(chan []byte, 64)
	session, err := b.Join("alice", sink, nil)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if session.ID == "" || session.State != model.SessionActive {
		t.Fatalf("unexpected session %+v", session)
	}

	var snap Snapshot
	decodePayload(t, expectKind(t, sink, EventBoardState), &snap)
	if len(snap.Cards) != 0 {
		t.Errorf("fresh board snapshot should have no cards, got %d", len(snap.Cards))
	}
	if !reflect.DeepEqual(snap.Sessions, []string{"alice"}) {
		t.Errorf("snapshot sessions = %v, want [alice]", snap.Sessions)
	}
	if snap.Theme != "ocean" {
		t.Errorf("snapshot theme = %q, want ocean", snap.Theme)
	}

	var presence PresencePayload
	decodePayload(t, expectKind(t, sink, EventPresenceChanged), &presence)
	if !reflect.DeepEqual(presence.Sessions, []string{"alice"}) {
		t.Errorf("presence = %v, want [alice]", presence.Sessions)
	}
}

func TestIdeaAddedReachesEverySession(t *testing.T) {
	b := startTestBoard(t, newMemStore(), nil, Config{})
	alice, aliceSink := join(t, b, "alice")
	_, bobSink := join(t, b, "bob")
	expectKind(t, aliceSink, EventPresenceChanged) // bob's arrival

	if err := b.AddIdea(alice.ID, "hi"); err != nil {
		t.Fatalf("add idea: %v", err)
	}

	for _, sink := range []chan []byte{aliceSink, bobSink} {
		var payload CardPayload
		decodePayload(t, expectKind(t, sink, EventIdeaAdded), &payload)
		if payload.Card.ID != 1 || payload.Card.Text != "hi" || payload.Card.Votes != 0 {
			t.Errorf("unexpected card %+v", payload.Card)
		}
		if payload.Card.Author != "alice" {
			t.Errorf("card author = %q, want alice", payload.Card.Author)
		}
	}
}

func TestVoteIdempotenceAndRevoke(t *testing.T) {
	b := startTestBoard(t, newMemStore(), nil, Config{})
	alice, aliceSink := join(t, b, "alice")
	_, bobSink := join(t, b, "bob")
	expectKind(t, aliceSink, EventPresenceChanged)

	if err := b.AddIdea(alice.ID, "hi"); err != nil {
		t.Fatalf("add idea: %v", err)
	}
	expectKind(t, aliceSink, EventIdeaAdded)
	expectKind(t, bobSink, EventIdeaAdded)

	total, err := b.Vote(alice.ID, 1, +1)
	if err != nil || total != 1 {
		t.Fatalf("first vote: total=%d err=%v, want 1 nil", total, err)
	}
	var payload VotePayload
	decodePayload(t, expectKind(t, bobSink, EventVoteChanged), &payload)
	if payload.CardID != 1 || payload.Total != 1 {
		t.Errorf("vote-changed = %+v, want card 1 total 1", payload)
	}
	expectKind(t, aliceSink, EventVoteChanged)

	// The same session upvoting again must not double-count, and nobody
	// should see an event for a no-op.
	total, err = b.Vote(alice.ID, 1, +1)
	if err != nil || total != 1 {
		t.Fatalf("repeat vote: total=%d err=%v, want 1 nil", total, err)
	}
	expectNoFrame(t, bobSink, 100*time.Millisecond)

	total, err = b.Vote(alice.ID, 1, -1)
	if err != nil || total != 0 {
		t.Fatalf("revoke: total=%d err=%v, want 0 nil", total, err)
	}
	decodePayload(t, expectKind(t, bobSink, EventVoteChanged), &payload)
	if payload.Total != 0 {
		t.Errorf("after revoke total = %d, want 0", payload.Total)
	}
}

func TestVoteOnUnknownCardIsIsolated(t *testing.T) {
	b := startTestBoard(t, newMemStore(), nil, Config{})
	alice, aliceSink := join(t, b, "alice")
	_, bobSink := join(t, b, "bob")
	expectKind(t, aliceSink, EventPresenceChanged)

	if _, err := b.Vote(alice.ID, 99, +1); err != ErrInvalidTarget {
		t.Fatalf("vote on missing card: err=%v, want ErrInvalidTarget", err)
	}

	// The failed action must be invisible to everyone else.
	expectNoFrame(t, bobSink, 100*time.Millisecond)

	snap, err := b.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Cards) != 0 {
		t.Errorf("failed vote must not create state, got %d cards", len(snap.Cards))
	}
}

func TestEventsArriveInPublishOrder(t *testing.T) {
	b := startTestBoard(t, newMemStore(), nil, Config{})
	alice, aliceSink := join(t, b, "alice")
	_, bobSink := join(t, b, "bob")
	expectKind(t, aliceSink, EventPresenceChanged)

	texts := []string{"one", "two", "three", "four", "five"}
	for _, text := range texts {
		if err := b.Chat(alice.ID, text); err != nil {
			t.Fatalf("chat %q: %v", text, err)
		}
	}

	for _, want := range texts {
		var payload MessagePayload
		decodePayload(t, expectKind(t, bobSink, EventChatMessage), &payload)
		if payload.Message.Text != want {
			t.Fatalf("out of order: got %q, want %q", payload.Message.Text, want)
		}
	}
}

func TestLeaveIsIdempotentAndAnnounced(t *testing.T) {
	b := startTestBoard(t, newMemStore(), nil, Config{})
	_, aliceSink := join(t, b, "alice")
	bob, _ := join(t, b, "bob")
	expectKind(t, aliceSink, EventPresenceChanged)

	b.Leave(bob.ID)

	var presence PresencePayload
	decodePayload(t, expectKind(t, aliceSink, EventPresenceChanged), &presence)
	if !reflect.DeepEqual(presence.Sessions, []string{"alice"}) {
		t.Errorf("presence after leave = %v, want [alice]", presence.Sessions)
	}

	// Leaving again is a no-op and announces nothing.
	b.Leave(bob.ID)
	expectNoFrame(t, aliceSink, 100*time.Millisecond)
}

func TestHeartbeatTimeoutForcesLeave(t *testing.T) {
	cfg := Config{HeartbeatTimeout: 80 * time.Millisecond, SweepInterval: 20 * time.Millisecond}
	b := startTestBoard(t, newMemStore(), nil, cfg)

	dropped := make(chan struct{})
	sink := make(chan []byte, 64)
	if _, err := b.Join("ghost", sink, func() { close(dropped) }); err != nil {
		t.Fatalf("join: %v", err)
	}

	select {
	case <-dropped:
	case <-time.After(2 * time.Second):
		t.Fatal("silent session was never forced out")
	}

	snap, err := b.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Sessions) != 0 {
		t.Errorf("sessions after timeout = %v, want none", snap.Sessions)
	}
}

func TestHeartbeatKeepsSessionAlive(t *testing.T) {
	cfg := Config{HeartbeatTimeout: 120 * time.Millisecond, SweepInterval: 20 * time.Millisecond}
	b := startTestBoard(t, newMemStore(), nil, cfg)

	dropped := make(chan struct{})
	sink := make(chan []byte, 64)
	session, err := b.Join("alice", sink, func() { close(dropped) })
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	deadline := time.After(400 * time.Millisecond)
	tick := time.NewTicker(40 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-dropped:
			t.Fatal("heartbeating session was forced out")
		case <-tick.C:
			if err := b.Heartbeat(session.ID); err != nil {
				t.Fatalf("heartbeat: %v", err)
			}
		case <-deadline:
			return
		}
	}
}

func TestSlowConsumerIsEvictedWithoutBlockingOthers(t *testing.T) {
	b := startTestBoard(t, newMemStore(), nil, Config{})
	alice, aliceSink := join(t, b, "alice")

	dropped := make(chan struct{})
	// Room for the snapshot and one presence frame, then it jams.
	slowSink := make(chan []byte, 2)
	if _, err := b.Join("slow", slowSink, func() { close(dropped) }); err != nil {
		t.Fatalf("join slow: %v", err)
	}
	expectKind(t, aliceSink, EventPresenceChanged)

	if err := b.AddIdea(alice.ID, "fills the slow buffer"); err != nil {
		t.Fatalf("add idea: %v", err)
	}

	select {
	case <-dropped:
	case <-time.After(2 * time.Second):
		t.Fatal("slow session was not evicted")
	}

	// Alice keeps receiving: the idea, then the eviction's presence.
	expectKind(t, aliceSink, EventIdeaAdded)
	var presence PresencePayload
	decodePayload(t, expectKind(t, aliceSink, EventPresenceChanged), &presence)
	if !reflect.DeepEqual(presence.Sessions, []string{"alice"}) {
		t.Errorf("presence after eviction = %v, want [alice]", presence.Sessions)
	}
}

func TestSnapshotAggregatesCardsAndVotes(t *testing.T) {
	b := startTestBoard(t, newMemStore(), nil, Config{})
	alice, _ := join(t, b, "alice")
	bob, _ := join(t, b, "bob")

	for _, text := range []string{"a", "b", "c"} {
		if err := b.AddIdea(alice.ID, text); err != nil {
			t.Fatalf("add idea: %v", err)
		}
	}
	if _, err := b.Vote(alice.ID, 2, +1); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if _, err := b.Vote(bob.ID, 2, +1); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if _, err := b.Vote(bob.ID, 3, +1); err != nil {
		t.Fatalf("vote: %v", err)
	}

	snap, err := b.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Cards) != 3 {
		t.Fatalf("snapshot cards = %d, want 3", len(snap.Cards))
	}
	wantVotes := map[int64]int{1: 0, 2: 2, 3: 1}
	for _, card := range snap.Cards {
		if card.Votes != wantVotes[card.ID] {
			t.Errorf("card %d votes = %d, want %d", card.ID, card.Votes, wantVotes[card.ID])
		}
	}
}

func TestRehydratedBoardContinuesCardSequence(t *testing.T) {
	existing := []model.IdeaCard{
		{ID: 5, BoardCode: "AB12", Author: "old", Text: "kept", Votes: 2, CreatedAt: time.Now().UTC()},
	}
	b := startTestBoard(t, newMemStore(), existing, Config{})
	alice, aliceSink := join(t, b, "alice")

	if err := b.AddIdea(alice.ID, "new"); err != nil {
		t.Fatalf("add idea: %v", err)
	}

	var payload CardPayload
	decodePayload(t, expectKind(t, aliceSink, EventIdeaAdded), &payload)
	if payload.Card.ID != 6 {
		t.Errorf("card id after rehydration = %d, want 6", payload.Card.ID)
	}
}

func TestChatIsPersistedAndReplayedToJoiners(t *testing.T) {
	st := newMemStore()
	b := startTestBoard(t, st, nil, Config{})
	alice, _ := join(t, b, "alice")

	if err := b.Chat(alice.ID, "hello history"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	waitFor(t, func() bool { return st.messageCount("AB12") == 1 },
		"chat message never reached the store")

	sink := make(chan []byte, 64)
	if _, err := b.Join("carol", sink, nil); err != nil {
		t.Fatalf("join carol: %v", err)
	}
	var snap Snapshot
	decodePayload(t, expectKind(t, sink, EventBoardState), &snap)
	if len(snap.Messages) != 1 || snap.Messages[0].Text != "hello history" {
		t.Errorf("replayed history = %+v, want the one chat message", snap.Messages)
	}
}

func TestThemeChangeBroadcast(t *testing.T) {
	b := startTestBoard(t, newMemStore(), nil, Config{})
	alice, aliceSink := join(t, b, "alice")
	_, bobSink := join(t, b, "bob")
	expectKind(t, aliceSink, EventPresenceChanged)

	if err := b.SetTheme(alice.ID, "sunset"); err != nil {
		t.Fatalf("set theme: %v", err)
	}

	var payload ThemePayload
	decodePayload(t, expectKind(t, bobSink, EventThemeChanged), &payload)
	if payload.Theme != "sunset" {
		t.Errorf("theme = %q, want sunset", payload.Theme)
	}

	snap, err := b.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Theme != "sunset" {
		t.Errorf("snapshot theme = %q, want sunset", snap.Theme)
	}
}

func TestActionsFromUnknownSessionAreRejected(t *testing.T) {
	b := startTestBoard(t, newMemStore(), nil, Config{})
	_, aliceSink := join(t, b, "alice")

	if err := b.AddIdea("no-such-session", "x"); err != ErrNotFound {
		t.Fatalf("add idea from unknown session: err=%v, want ErrNotFound", err)
	}
	expectNoFrame(t, aliceSink, 100*time.Millisecond)
}

func TestClosedBoardRejectsOperations(t *testing.T) {
	writer := store.NewWriter(newMemStore(), 16, nil)
	defer writer.Close()
	row := model.Board{Code: "GONE", Theme: "ocean", CreatedAt: time.Now().UTC()}
	b := newBoard(row, nil, newMemStore(), writer, nil, Config{}.withDefaults())
	go b.run()
	b.close()

	if _, err := b.Join("alice", make(chan []byte, 1), nil); err != ErrBoardClosed {
		t.Errorf("join after close: err=%v, want ErrBoardClosed", err)
	}
	if err := b.AddIdea("s", "x"); err != ErrBoardClosed {
		t.Errorf("add idea after close: err=%v, want ErrBoardClosed", err)
	}
}
