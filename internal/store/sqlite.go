package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"echoboard/internal/model"
)

//go:embed schema.sql
var schemaFS embed.FS

// SQLite is the single-file relational Store backing the engine.
type SQLite struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies the embedded schema.
func Open(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema, err := fs.ReadFile(schemaFS, "schema.sql")
	if err != nil {
		return fmt.Errorf("read embedded schema: %w", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// SaveBoard inserts the board row, or refreshes its theme and title when
// the code already exists.
func (s *SQLite) SaveBoard(b model.Board) error {
	_, err := s.db.Exec(`
		INSERT INTO boards (code, theme, title, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET theme = excluded.theme, title = excluded.title`,
		b.Code, b.Theme, b.Title, b.CreatedAt)
	return err
}

// LoadBoard fetches a board row by code, returning ErrNotFound when absent.
func (s *SQLite) LoadBoard(code string) (model.Board, error) {
	row := s.db.QueryRow(`SELECT code, theme, title, created_at FROM boards WHERE code = ?`, code)
	var b model.Board
	err := row.Scan(&b.Code, &b.Theme, &b.Title, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Board{}, ErrNotFound
	}
	return b, err
}

// SaveCard inserts a card row; replaying the same card is harmless.
func (s *SQLite) SaveCard(c model.IdeaCard) error {
	_, err := s.db.Exec(`
		INSERT INTO cards (board_code, id, author, text, votes, created_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(board_code, id) DO UPDATE SET votes = excluded.votes`,
		c.BoardCode, c.ID, c.Author, c.Text, c.Votes, c.CreatedAt)
	return err
}

// UpdateCardVotes records the authoritative total computed by the vote
// aggregator.
func (s *SQLite) UpdateCardVotes(boardCode string, cardID int64, votes int) error {
	_, err := s.db.Exec(`UPDATE cards SET votes = ? WHERE board_code = ? AND id = ?`,
		votes, boardCode, cardID)
	return err
}

// LoadCards returns all cards of a board in creation order.
func (s *SQLite) LoadCards(boardCode string) ([]model.IdeaCard, error) {
	rows, err := s.db.Query(`
		SELECT board_code, id, author, text, votes, created_at
		FROM cards WHERE board_code = ? ORDER BY id ASC`, boardCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []model.IdeaCard
	for rows.Next() {
		var c model.IdeaCard
		if err := rows.Scan(&c.BoardCode, &c.ID, &c.Author, &c.Text, &c.Votes, &c.CreatedAt); err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// SaveMessage appends a chat message.
func (s *SQLite) SaveMessage(m model.ChatMessage) error {
	_, err := s.db.Exec(`
		INSERT INTO messages (id, board_code, author, text, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		m.ID, m.BoardCode, m.Author, m.Text, m.CreatedAt)
	return err
}

// LoadRecentHistory returns up to limit of the board's newest messages in
// chronological order, for replay in join snapshots.
func (s *SQLite) LoadRecentHistory(boardCode string, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(`
		SELECT id, board_code, author, text, created_at
		FROM messages WHERE board_code = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, boardCode, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.BoardCode, &m.Author, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-first from the query; snapshots replay oldest-first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Close closes the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
