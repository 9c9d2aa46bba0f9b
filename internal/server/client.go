package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"echoboard/internal/board"
	"echoboard/internal/model"
	"echoboard/internal/security"
)

const (
	// writeWait bounds a single outbound write.
	writeWait = 10 * time.Second

	// pongWait is how long the read side tolerates silence; pings go out
	// well inside it.
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client is one WebSocket connection. Before a join it is anonymous; after
// a join it holds the board and session identity every further action acts
// under.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	addr    string
	srv     *Server
	limiter *rate.Limiter

	board   *board.Board
	session model.Session
	joined  bool
}

func newClient(srv *Server, conn *websocket.Conn, addr string) *Client {
	if conn != nil {
		conn.SetReadLimit(srv.cfg.MaxMessageSize)
	}
	return &Client{
		conn:    conn,
		send:    make(chan []byte, srv.cfg.SendBuffer),
		addr:    addr,
		srv:     srv,
		limiter: rate.NewLimiter(rate.Limit(srv.cfg.RatePerSecond), srv.cfg.RateBurst),
	}
}

// run drives the connection until it closes. The write pump owns the
// socket's write side; the read pump owns the read side and all dispatch.
func (c *Client) run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer c.teardown()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				return
			}
			continue
		}

		if !c.limiter.Allow() {
			log.Printf("Rate limit exceeded for %s; discarding message", c.addr)
			continue
		}

		if stop := c.dispatch(raw); stop {
			return
		}
	}
}

// teardown detaches from the board, then closes the send channel. Leave is
// synchronous, so once it returns the board actor holds no reference to
// this client's channel and closing it is safe.
func (c *Client) teardown() {
	if c.joined {
		c.board.Leave(c.session.ID)
		c.joined = false
	}
	close(c.send)
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		log.Printf("Error closing connection for %s: %v", c.addr, err)
	}
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// handleReadError logs based on error type and reports whether the read
// loop should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		log.Printf("Message from %s exceeded maximum size of %d bytes", c.addr, c.srv.cfg.MaxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		log.Printf("Client %s disconnected: %v", c.addr, err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		log.Printf("Client %s connection closed: %v", c.addr, err)
		return true
	}

	log.Printf("WebSocket read error from %s: %v", c.addr, err)
	return true
}

// dispatch decodes one frame and applies it. Failures of the client's own
// action come back as an error frame to this client alone; other sessions
// never observe them.
func (c *Client) dispatch(raw []byte) (stop bool) {
	var act Action
	if err := json.Unmarshal(raw, &act); err != nil {
		log.Printf("Invalid message from %s: %v", c.addr, err)
		c.sendError("invalid message")
		return false
	}

	if !c.joined {
		if act.Action != ActionJoin {
			c.sendError("join a board first")
			return false
		}
		return c.handleJoin(act)
	}

	switch act.Action {
	case ActionJoin:
		c.sendError("already joined")
	case ActionAddIdea:
		text := c.srv.sanitizer.Text(act.Text, security.MaxCardText)
		if text == "" {
			c.sendError("missing text")
			return false
		}
		c.replyOnError(c.board.AddIdea(c.session.ID, text))
	case ActionVote:
		if act.Direction == 0 {
			c.sendError("vote direction must be +1 or -1")
			return false
		}
		_, err := c.board.Vote(c.session.ID, act.CardID, act.Direction)
		c.replyOnError(err)
	case ActionSendChat:
		text := c.srv.sanitizer.Text(act.Text, security.MaxChatText)
		if text == "" {
			c.sendError("missing text")
			return false
		}
		c.replyOnError(c.board.Chat(c.session.ID, text))
	case ActionSetTheme:
		theme := c.srv.sanitizer.Text(act.Theme, security.MaxTheme)
		if theme == "" {
			c.sendError("invalid theme")
			return false
		}
		c.replyOnError(c.board.SetTheme(c.session.ID, theme))
	case ActionSetTitle:
		title := c.srv.sanitizer.Text(act.Title, security.MaxTitle)
		if title == "" {
			c.sendError("invalid title")
			return false
		}
		c.replyOnError(c.board.SetTitle(c.session.ID, title))
	case ActionHeartbeat:
		c.replyOnError(c.board.Heartbeat(c.session.ID))
	case ActionLeave:
		return true
	default:
		c.sendError("unknown action")
	}
	return false
}

func (c *Client) handleJoin(act Action) (stop bool) {
	code := strings.ToUpper(strings.TrimSpace(act.BoardCode))
	if code == "" {
		c.sendError("missing board code")
		return false
	}

	b, err := c.srv.registry.Get(code)
	if err != nil {
		if errors.Is(err, board.ErrNotFound) {
			c.sendError("board not found")
		} else {
			log.Printf("Board lookup for %s failed: %v", c.addr, err)
			c.sendError("board unavailable")
		}
		return false
	}

	name := c.srv.sanitizer.DisplayName(act.DisplayName)
	conn := c.conn
	session, err := b.Join(name, c.send, func() {
		// Invoked by the board when it evicts this session. Closing the
		// socket unwinds both pumps; the later Leave is a no-op.
		_ = conn.Close()
	})
	if err != nil {
		c.sendError("board unavailable")
		return false
	}

	c.board = b
	c.session = session
	c.joined = true
	return false
}

// replyOnError forwards a board error to the acting client as an error
// frame. A nil error means the outcome arrives via the board's broadcast.
func (c *Client) replyOnError(err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, board.ErrInvalidTarget):
		c.sendError("no such card on this board")
	case errors.Is(err, board.ErrNotFound):
		c.sendError("session not attached")
	case errors.Is(err, board.ErrBoardClosed):
		c.sendError("board closed")
	default:
		c.sendError("request failed")
	}
}

func (c *Client) sendError(message string) {
	frame, err := board.EncodeEvent(board.EventError, board.ErrorPayload{Message: message})
	if err != nil {
		log.Printf("Error encoding error frame for %s: %v", c.addr, err)
		return
	}
	select {
	case c.send <- frame:
	default:
		log.Printf("Send buffer full for %s; dropping error frame", c.addr)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Printf("Error setting write deadline for %s: %v", c.addr, err)
				return
			}
			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
					log.Printf("Error writing close message to %s: %v", c.addr, err)
				}
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error writing message to %s: %v", c.addr, err)
				}
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error writing ping message to %s: %v", c.addr, err)
				}
				return
			}
		}
	}
}
