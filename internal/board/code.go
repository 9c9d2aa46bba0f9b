package board

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet excludes glyphs that read ambiguously when a join code is
// shared out loud or scrawled on a whiteboard (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// DefaultCodeLength matches the short hex codes the product has always
// handed out: easy to type, hard to guess by accident.
const DefaultCodeLength = 6

// newCode returns a random join code of n characters drawn from
// codeAlphabet. Collision handling is the caller's job; the registry
// retries against its own map and the durable store.
func newCode(n int) (string, error) {
	if n <= 0 {
		n = DefaultCodeLength
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate board code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
