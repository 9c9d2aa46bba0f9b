// Package security cleans user-supplied text before it enters board state.
// Everything a client can type — card text, chat, display names, themes,
// titles — is stripped of markup and length-capped, so no downstream
// consumer ever has to re-sanitize.
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Length caps applied to each field.
const (
	MaxCardText    = 280
	MaxChatText    = 500
	MaxDisplayName = 24
	MaxTheme       = 16
	MaxTitle       = 80
)

// Sanitizer strips all HTML from user text with a strict allow-nothing
// policy. It is safe for concurrent use.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer builds a Sanitizer. The strict policy removes every tag and
// attribute; board content is plain text by contract.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Text sanitizes and trims the input and caps it at max runes. Sanitizing
// the same input twice yields the same output.
func (s *Sanitizer) Text(in string, max int) string {
	out := strings.TrimSpace(s.policy.Sanitize(in))
	if max > 0 {
		if runes := []rune(out); len(runes) > max {
			out = string(runes[:max])
		}
	}
	return out
}

// DisplayName sanitizes a display name, substituting a fallback when the
// result is empty.
func (s *Sanitizer) DisplayName(in string) string {
	name := s.Text(in, MaxDisplayName)
	if name == "" {
		return "Anon"
	}
	return name
}
