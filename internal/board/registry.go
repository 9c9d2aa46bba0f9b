package board

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"echoboard/internal/metrics"
	"echoboard/internal/model"
	"echoboard/internal/store"
)

// Registry maps join codes to live board actors. The map itself sits
// behind one RWMutex, but that lock is only touched for lookups and
// lifecycle; every mutation of board content goes through the board's own
// actor, so boards never contend with each other.
//
// Boards are durable, live actors are not: a lookup that misses in memory
// rehydrates the board from the persistence adapter, and the janitor only
// evicts idle actors, never durable rows.
type Registry struct {
	mu     sync.RWMutex
	boards map[string]*Board

	store     store.Store
	writer    *store.Writer
	collector *metrics.Collector
	cfg       Config

	// newCode is swappable in tests to force collisions.
	newCode func(n int) (string, error)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRegistry builds a Registry over the given store and async writer and
// starts the expiry janitor in the background.
func NewRegistry(st store.Store, writer *store.Writer, collector *metrics.Collector, cfg Config) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		boards:    make(map[string]*Board),
		store:     st,
		writer:    writer,
		collector: collector,
		cfg:       cfg.withDefaults(),
		newCode:   newCode,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go r.runJanitor()
	return r
}

// Create allocates a board under a fresh collision-free join code and
// starts its actor. The board row is persisted asynchronously. After the
// configured number of collisions it gives up with ErrCodeSpaceExhausted.
func (r *Registry) Create(theme string) (*Board, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < r.cfg.CreateAttempts; attempt++ {
		code, err := r.newCode(r.cfg.CodeLength)
		if err != nil {
			return nil, err
		}
		if _, live := r.boards[code]; live {
			continue
		}
		// The code must also be free in the durable store, or a later
		// rehydration would resurrect someone else's board under it.
		if _, err := r.store.LoadBoard(code); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("check code %s: %w", code, err)
		}

		row := model.Board{
			Code:      code,
			Theme:     theme,
			Title:     "Untitled",
			CreatedAt: time.Now().UTC(),
		}
		b := newBoard(row, nil, r.store, r.writer, r.collector, r.cfg)
		r.boards[code] = b
		go b.run()
		r.writer.SaveBoard(row)
		log.Printf("registry: created board %s (theme %q)", code, theme)
		return b, nil
	}

	return nil, ErrCodeSpaceExhausted
}

// Get returns the live board for a code, rehydrating it from the store
// when the actor is not in memory. Unknown codes return ErrNotFound.
func (r *Registry) Get(code string) (*Board, error) {
	r.mu.RLock()
	b, ok := r.boards[code]
	r.mu.RUnlock()
	if ok {
		return b, nil
	}
	return r.rehydrate(code)
}

func (r *Registry) rehydrate(code string) (*Board, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Lost a race with another rehydration.
	if b, ok := r.boards[code]; ok {
		return b, nil
	}

	row, err := r.store.LoadBoard(code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load board %s: %w", code, err)
	}
	cards, err := r.store.LoadCards(code)
	if err != nil {
		return nil, fmt.Errorf("load cards for %s: %w", code, err)
	}

	b := newBoard(row, cards, r.store, r.writer, r.collector, r.cfg)
	r.boards[code] = b
	go b.run()
	log.Printf("registry: rehydrated board %s with %d card(s)", code, len(cards))
	return b, nil
}

// ExpireInactive stops actors for boards with no active session and no
// activity inside the threshold, and returns how many were expired. The
// durable rows survive; Get rehydrates them on demand.
func (r *Registry) ExpireInactive(threshold time.Duration) int {
	cutoff := time.Now().Add(-threshold)

	r.mu.Lock()
	var idle []*Board
	for code, b := range r.boards {
		if b.sessionCount.Load() == 0 && b.idleSince().Before(cutoff) {
			delete(r.boards, code)
			idle = append(idle, b)
		}
	}
	r.mu.Unlock()

	for _, b := range idle {
		b.close()
		log.Printf("registry: expired idle board %s", b.code)
	}
	return len(idle)
}

// runJanitor drives expiry until Shutdown is called. Cleanup is amortized
// on a timer, never on the request path.
func (r *Registry) runJanitor() {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.ExpirySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.ExpireInactive(r.cfg.InactivityTTL)
		}
	}
}

// Shutdown stops the janitor and closes every live board, disconnecting
// their sessions.
func (r *Registry) Shutdown() {
	r.cancel()
	<-r.done

	r.mu.Lock()
	boards := make([]*Board, 0, len(r.boards))
	for code, b := range r.boards {
		delete(r.boards, code)
		boards = append(boards, b)
	}
	r.mu.Unlock()

	for _, b := range boards {
		b.close()
	}
	log.Printf("registry: shut down %d board(s)", len(boards))
}
