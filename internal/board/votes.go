package board

// voteLedger records, per card, which sessions currently hold an upvote.
// Vote totals are always computed from state transitions, never from the
// raw direction value, so replaying the same request can never
// double-count.
type voteLedger map[int64]map[string]bool

// apply records a vote request and returns the delta it produced.
//
// direction +1 records an upvote; if the session already holds one the
// request is a no-op (delta 0, changed false). direction -1 revokes the
// session's upvote; revoking a vote that was never recorded is likewise a
// no-op. Each session therefore contributes at most one unit per card.
func (l voteLedger) apply(cardID int64, sessionID string, direction int) (delta int, changed bool) {
	voters := l[cardID]
	voted := voters[sessionID]

	switch {
	case direction > 0 && !voted:
		if voters == nil {
			voters = make(map[string]bool)
			l[cardID] = voters
		}
		voters[sessionID] = true
		return 1, true
	case direction < 0 && voted:
		delete(voters, sessionID)
		if len(voters) == 0 {
			delete(l, cardID)
		}
		return -1, true
	default:
		return 0, false
	}
}

// holds reports whether the session currently has an upvote recorded for
// the card.
func (l voteLedger) holds(cardID int64, sessionID string) bool {
	return l[cardID][sessionID]
}
