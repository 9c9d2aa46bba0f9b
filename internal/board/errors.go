package board

import "errors"

var (
	// ErrNotFound reports an unknown board, card, or session. It is
	// surfaced to the requesting client only.
	ErrNotFound = errors.New("board: not found")

	// ErrInvalidTarget reports an operation that references a card the
	// target board does not own.
	ErrInvalidTarget = errors.New("board: invalid target")

	// ErrCodeSpaceExhausted reports that no free join code could be
	// generated. Callers should treat it as a retryable server error.
	ErrCodeSpaceExhausted = errors.New("board: code space exhausted")

	// ErrBoardClosed reports an operation against a board whose actor has
	// already shut down.
	ErrBoardClosed = errors.New("board: closed")
)
