// Package board implements the real-time core: a registry of collaborative
// boards, one owning actor goroutine per board, vote aggregation, and
// event fan-out to subscribed sessions.
//
// All mutation of a board's cards, sessions, and vote ledger is funneled
// through that board's actor loop, so operations are linearizable per
// board while distinct boards proceed fully independently.
package board

import (
	"context"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"echoboard/internal/metrics"
	"echoboard/internal/model"
	"echoboard/internal/store"
)

// Config carries the tunables the board engine needs at runtime.
type Config struct {
	// HeartbeatTimeout is how long a session may stay silent before it is
	// forcibly left, treated as a disconnect.
	HeartbeatTimeout time.Duration

	// SweepInterval is how often each board actor checks session
	// liveness.
	SweepInterval time.Duration

	// InactivityTTL is how long a board with no sessions keeps its live
	// actor before the registry janitor expires it.
	InactivityTTL time.Duration

	// ExpirySweepInterval is how often the janitor runs.
	ExpirySweepInterval time.Duration

	// HistoryLimit caps how many chat messages a join snapshot replays.
	HistoryLimit int

	// CodeLength is the join code length in characters.
	CodeLength int

	// CreateAttempts bounds collision retries before board creation is
	// reported as code-space exhaustion.
	CreateAttempts int
}

func (c Config) withDefaults() Config {
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 45 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = c.HeartbeatTimeout / 3
	}
	if c.InactivityTTL <= 0 {
		c.InactivityTTL = 30 * time.Minute
	}
	if c.ExpirySweepInterval <= 0 {
		c.ExpirySweepInterval = time.Minute
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 200
	}
	if c.CodeLength <= 0 {
		c.CodeLength = DefaultCodeLength
	}
	if c.CreateAttempts <= 0 {
		c.CreateAttempts = 32
	}
	return c
}

// subscriber pairs a session with the channel its connection drains and a
// drop hook that tears the connection down when the board evicts it.
type subscriber struct {
	session model.Session
	sink    chan<- []byte
	drop    func()
}

type opKind int

const (
	opLeave opKind = iota
	opHeartbeat
	opAddIdea
	opVote
	opChat
	opSetTheme
	opSetTitle
	opSnapshot
)

type request struct {
	op        opKind
	sessionID string
	text      string
	cardID    int64
	direction int
	reply     chan response
}

type response struct {
	err      error
	total    int
	snapshot Snapshot
}

type joinRequest struct {
	displayName string
	sink        chan<- []byte
	drop        func()
	reply       chan joinResponse
}

type joinResponse struct {
	session model.Session
	err     error
}

// Board is one live collaborative space. Its exported methods are safe for
// concurrent use; they hand requests to the actor loop and wait for the
// reply.
type Board struct {
	code      string
	createdAt time.Time

	joins    chan joinRequest
	requests chan request

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	history   store.Store
	writer    *store.Writer
	collector *metrics.Collector
	cfg       Config

	// Observed by the registry janitor without entering the loop.
	lastActive   atomic.Int64
	sessionCount atomic.Int32

	closeOnce sync.Once

	// Everything below is owned by the actor loop.
	theme      string
	title      string
	cards      map[int64]*model.IdeaCard
	cardOrder  []int64
	nextCardID int64
	votes      voteLedger
	subs       map[string]*subscriber
}

func newBoard(b model.Board, cards []model.IdeaCard, history store.Store, writer *store.Writer, collector *metrics.Collector, cfg Config) *Board {
	ctx, cancel := context.WithCancel(context.Background())
	bd := &Board{
		code:      b.Code,
		createdAt: b.CreatedAt,
		theme:     b.Theme,
		title:     b.Title,
		joins:     make(chan joinRequest),
		requests:  make(chan request),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		history:   history,
		writer:    writer,
		collector: collector,
		cfg:       cfg,
		cards:     make(map[int64]*model.IdeaCard, len(cards)),
		votes:     make(voteLedger),
		subs:      make(map[string]*subscriber),
	}
	bd.nextCardID = 1
	for i := range cards {
		c := cards[i]
		bd.cards[c.ID] = &c
		bd.cardOrder = append(bd.cardOrder, c.ID)
		if c.ID >= bd.nextCardID {
			bd.nextCardID = c.ID + 1
		}
	}
	bd.touch()
	return bd
}

// Code returns the board's immutable join code.
func (b *Board) Code() string {
	return b.code
}

func (b *Board) touch() {
	b.lastActive.Store(time.Now().UnixNano())
}

func (b *Board) idleSince() time.Time {
	return time.Unix(0, b.lastActive.Load())
}

// run is the board's serialization point. It owns all mutable state and
// processes one request at a time, which is what makes join snapshots
// torn-state free and gives every subscriber the same event order.
func (b *Board) run() {
	b.collector.BoardOpened()
	sweep := time.NewTicker(b.cfg.SweepInterval)
	defer func() {
		sweep.Stop()
		b.collector.BoardClosed()
		close(b.done)
	}()

	for {
		select {
		case <-b.ctx.Done():
			b.shutdownSessions()
			return
		case req := <-b.joins:
			req.reply <- b.handleJoin(req)
		case req := <-b.requests:
			req.reply <- b.handleRequest(req)
		case <-sweep.C:
			b.sweepSessions()
		}
	}
}

// Join registers a new session, delivers a consistent snapshot frame into
// the sink before any subsequent event, and announces the new presence to
// the whole board. drop is invoked if the board later evicts the session.
func (b *Board) Join(displayName string, sink chan<- []byte, drop func()) (model.Session, error) {
	req := joinRequest{
		displayName: displayName,
		sink:        sink,
		drop:        drop,
		reply:       make(chan joinResponse, 1),
	}
	select {
	case b.joins <- req:
	case <-b.ctx.Done():
		return model.Session{}, ErrBoardClosed
	}
	resp := <-req.reply
	return resp.session, resp.err
}

// Leave detaches a session. It is idempotent: leaving twice, or leaving a
// session the board already evicted, is a no-op.
func (b *Board) Leave(sessionID string) {
	_, _ = b.do(request{op: opLeave, sessionID: sessionID})
}

// Heartbeat refreshes a session's last-seen time and returns it to the
// active state.
func (b *Board) Heartbeat(sessionID string) error {
	_, err := b.do(request{op: opHeartbeat, sessionID: sessionID})
	return err
}

// AddIdea posts a new card authored by the given session and broadcasts it.
func (b *Board) AddIdea(sessionID, text string) error {
	_, err := b.do(request{op: opAddIdea, sessionID: sessionID, text: text})
	return err
}

// Vote applies an idempotent vote delta for the session and returns the
// card's new total. direction +1 records an upvote, -1 revokes it; the
// delta comes from the state transition, never the raw direction, so a
// repeated request cannot double-count.
func (b *Board) Vote(sessionID string, cardID int64, direction int) (int, error) {
	resp, err := b.do(request{op: opVote, sessionID: sessionID, cardID: cardID, direction: direction})
	if err != nil {
		return 0, err
	}
	return resp.total, nil
}

// Chat appends a chat message and broadcasts it.
func (b *Board) Chat(sessionID, text string) error {
	_, err := b.do(request{op: opChat, sessionID: sessionID, text: text})
	return err
}

// SetTheme changes the board theme and broadcasts the change.
func (b *Board) SetTheme(sessionID, theme string) error {
	_, err := b.do(request{op: opSetTheme, sessionID: sessionID, text: theme})
	return err
}

// SetTitle changes the board title and broadcasts the change.
func (b *Board) SetTitle(sessionID, title string) error {
	_, err := b.do(request{op: opSetTitle, sessionID: sessionID, text: title})
	return err
}

// Snapshot returns a consistent view of the board without joining it.
func (b *Board) Snapshot() (Snapshot, error) {
	resp, err := b.do(request{op: opSnapshot})
	if err != nil {
		return Snapshot{}, err
	}
	return resp.snapshot, nil
}

func (b *Board) do(req request) (response, error) {
	req.reply = make(chan response, 1)
	select {
	case b.requests <- req:
	case <-b.ctx.Done():
		return response{}, ErrBoardClosed
	}
	select {
	case resp := <-req.reply:
		return resp, resp.err
	case <-b.ctx.Done():
		return response{}, ErrBoardClosed
	}
}

// close stops the actor and waits for it to finish. Evicted connections
// are torn down through their drop hooks.
func (b *Board) close() {
	b.closeOnce.Do(b.cancel)
	<-b.done
}

func (b *Board) handleJoin(req joinRequest) joinResponse {
	now := time.Now().UTC()
	session := model.Session{
		ID:          uuid.NewString(),
		BoardCode:   b.code,
		DisplayName: req.displayName,
		State:       model.SessionActive,
		ConnectedAt: now,
		LastSeen:    now,
	}

	b.subs[session.ID] = &subscriber{session: session, sink: req.sink, drop: req.drop}
	b.sessionCount.Store(int32(len(b.subs)))
	b.collector.SessionJoined()
	b.touch()

	// The snapshot frame goes into the sink before the presence broadcast
	// below, so a joiner always observes its snapshot first and events in
	// publish order after it.
	frame, err := EncodeEvent(EventBoardState, b.snapshotLocked())
	if err != nil {
		log.Printf("board %s: encode snapshot: %v", b.code, err)
	} else {
		select {
		case req.sink <- frame:
		default:
			log.Printf("board %s: snapshot dropped, sink full at join", b.code)
		}
	}

	b.publishPresence()
	log.Printf("board %s: session %s (%q) joined, %d present", b.code, session.ID, session.DisplayName, len(b.subs))
	return joinResponse{session: session}
}

func (b *Board) handleRequest(req request) response {
	// Any action from a live session counts as liveness.
	if sub, ok := b.subs[req.sessionID]; ok {
		sub.session.LastSeen = time.Now().UTC()
		sub.session.State = model.SessionActive
	}

	switch req.op {
	case opLeave:
		b.removeSessions([]string{req.sessionID}, "left")
		b.touch()
		return response{}
	case opHeartbeat:
		sub, ok := b.subs[req.sessionID]
		if !ok {
			return response{err: ErrNotFound}
		}
		sub.session.LastSeen = time.Now().UTC()
		sub.session.State = model.SessionActive
		return response{}
	case opAddIdea:
		return b.handleAddIdea(req)
	case opVote:
		return b.handleVote(req)
	case opChat:
		return b.handleChat(req)
	case opSetTheme:
		sub, ok := b.subs[req.sessionID]
		if !ok {
			return response{err: ErrNotFound}
		}
		b.theme = req.text
		b.touch()
		b.writer.SaveBoard(b.boardRow())
		b.publish(EventThemeChanged, ThemePayload{Theme: b.theme})
		log.Printf("board %s: theme set to %q by %s", b.code, b.theme, sub.session.ID)
		return response{}
	case opSetTitle:
		if _, ok := b.subs[req.sessionID]; !ok {
			return response{err: ErrNotFound}
		}
		b.title = req.text
		b.touch()
		b.writer.SaveBoard(b.boardRow())
		b.publish(EventTitleChanged, TitlePayload{Title: b.title})
		return response{}
	case opSnapshot:
		return response{snapshot: b.snapshotLocked()}
	default:
		return response{err: ErrInvalidTarget}
	}
}

func (b *Board) handleAddIdea(req request) response {
	sub, ok := b.subs[req.sessionID]
	if !ok {
		return response{err: ErrNotFound}
	}

	card := model.IdeaCard{
		ID:        b.nextCardID,
		BoardCode: b.code,
		Author:    sub.session.DisplayName,
		Text:      req.text,
		CreatedAt: time.Now().UTC(),
	}
	b.nextCardID++
	stored := card
	b.cards[card.ID] = &stored
	b.cardOrder = append(b.cardOrder, card.ID)
	b.touch()

	b.writer.SaveCard(card)
	b.publish(EventIdeaAdded, CardPayload{Card: card})
	return response{}
}

func (b *Board) handleVote(req request) response {
	if _, ok := b.subs[req.sessionID]; !ok {
		return response{err: ErrNotFound}
	}
	card, ok := b.cards[req.cardID]
	if !ok {
		return response{err: ErrInvalidTarget}
	}

	delta, changed := b.votes.apply(req.cardID, req.sessionID, req.direction)
	if changed {
		card.Votes += delta
		if card.Votes < 0 {
			card.Votes = 0
		}
		b.touch()
		b.collector.VoteApplied()
		b.writer.UpdateCardVotes(b.code, card.ID, card.Votes)
		b.publish(EventVoteChanged, VotePayload{CardID: card.ID, Total: card.Votes})
	}
	return response{total: card.Votes}
}

func (b *Board) handleChat(req request) response {
	sub, ok := b.subs[req.sessionID]
	if !ok {
		return response{err: ErrNotFound}
	}

	msg := model.ChatMessage{
		ID:        uuid.NewString(),
		BoardCode: b.code,
		Author:    sub.session.DisplayName,
		Text:      req.text,
		CreatedAt: time.Now().UTC(),
	}
	b.touch()

	b.writer.SaveMessage(msg)
	b.publish(EventChatMessage, MessagePayload{Message: msg})
	return response{}
}

// snapshotLocked builds the join snapshot from actor-owned state. Chat
// history comes from the persistence adapter; a store failure degrades to
// an empty history rather than a failed join.
func (b *Board) snapshotLocked() Snapshot {
	cards := make([]model.IdeaCard, 0, len(b.cardOrder))
	for _, id := range b.cardOrder {
		cards = append(cards, *b.cards[id])
	}

	messages, err := b.history.LoadRecentHistory(b.code, b.cfg.HistoryLimit)
	if err != nil {
		log.Printf("board %s: load history: %v", b.code, err)
		messages = nil
	}

	return Snapshot{
		Code:     b.code,
		Theme:    b.theme,
		Title:    b.title,
		Cards:    cards,
		Sessions: b.presenceNames(),
		Messages: messages,
	}
}

func (b *Board) presenceNames() []string {
	names := make([]string, 0, len(b.subs))
	for _, sub := range b.subs {
		names = append(names, sub.session.DisplayName)
	}
	sort.Strings(names)
	return names
}

// publish encodes the event once and offers it to every subscriber without
// blocking. A session whose buffer is full is evicted instead of retried;
// its connection is torn down and the remaining sessions keep receiving.
func (b *Board) publish(kind EventKind, data any) {
	frame, err := EncodeEvent(kind, data)
	if err != nil {
		log.Printf("board %s: encode %s: %v", b.code, kind, err)
		return
	}

	var dead []string
	delivered := 0
	for id, sub := range b.subs {
		select {
		case sub.sink <- frame:
			delivered++
		default:
			dead = append(dead, id)
		}
	}
	b.collector.EventBroadcast(string(kind), delivered)

	if len(dead) > 0 {
		for range dead {
			b.collector.DeliveryDropped()
		}
		log.Printf("board %s: evicting %d slow session(s)", b.code, len(dead))
		b.removeSessions(dead, "evicted")
	}
}

func (b *Board) publishPresence() {
	b.publish(EventPresenceChanged, PresencePayload{Sessions: b.presenceNames()})
}

// removeSessions detaches the given sessions, fires their drop hooks, and
// announces the new presence once. Unknown ids are ignored, which is what
// makes Leave idempotent.
func (b *Board) removeSessions(ids []string, reason string) {
	removed := 0
	for _, id := range ids {
		sub, ok := b.subs[id]
		if !ok {
			continue
		}
		delete(b.subs, id)
		sub.session.State = model.SessionDisconnected
		b.collector.SessionLeft()
		removed++
		if sub.drop != nil {
			sub.drop()
		}
		log.Printf("board %s: session %s %s, %d present", b.code, id, reason, len(b.subs))
	}
	if removed == 0 {
		return
	}
	b.sessionCount.Store(int32(len(b.subs)))
	b.publishPresence()
}

// sweepSessions enforces the heartbeat timeout: silent sessions are
// forcibly left, and sessions past half the timeout are marked idle until
// their next heartbeat.
func (b *Board) sweepSessions() {
	now := time.Now().UTC()
	var expired []string
	for id, sub := range b.subs {
		silent := now.Sub(sub.session.LastSeen)
		switch {
		case silent > b.cfg.HeartbeatTimeout:
			expired = append(expired, id)
		case silent > b.cfg.HeartbeatTimeout/2:
			sub.session.State = model.SessionIdle
		}
	}
	if len(expired) > 0 {
		b.removeSessions(expired, "timed out")
	}
}

func (b *Board) shutdownSessions() {
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.session.State = model.SessionDisconnected
		b.collector.SessionLeft()
		if sub.drop != nil {
			sub.drop()
		}
	}
	b.sessionCount.Store(0)
}

func (b *Board) boardRow() model.Board {
	return model.Board{Code: b.code, Theme: b.theme, Title: b.title, CreatedAt: b.createdAt}
}
