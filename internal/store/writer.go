package store

import (
	"log"
	"sync"

	"echoboard/internal/metrics"
	"echoboard/internal/model"
)

// Writer applies persistence writes asynchronously, in submission order,
// on a single background goroutine. Enqueueing never blocks the real-time
// path: when the queue is full the write is shed, logged, and counted.
// This is the accepted weak-consistency tradeoff — broadcast does not wait
// for durable commit, so a crash can lose the last few writes.
type Writer struct {
	store     Store
	ops       chan writeOp
	collector *metrics.Collector

	closeOnce sync.Once
	done      chan struct{}
}

type writeOp struct {
	kind  string
	apply func(Store) error
}

// NewWriter starts the background apply loop over the given store.
func NewWriter(st Store, queueSize int, collector *metrics.Collector) *Writer {
	if queueSize <= 0 {
		queueSize = 256
	}
	w := &Writer{
		store:     st,
		ops:       make(chan writeOp, queueSize),
		collector: collector,
		done:      make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Writer) run() {
	defer close(w.done)
	for op := range w.ops {
		if err := op.apply(w.store); err != nil {
			w.collector.StoreWriteFailure()
			log.Printf("store: %s failed: %v", op.kind, err)
		}
	}
}

func (w *Writer) enqueue(op writeOp) {
	select {
	case w.ops <- op:
	default:
		w.collector.StoreWriteFailure()
		log.Printf("store: write queue full, shedding %s", op.kind)
	}
}

// SaveBoard queues a board upsert.
func (w *Writer) SaveBoard(b model.Board) {
	w.enqueue(writeOp{kind: "save board", apply: func(st Store) error {
		return st.SaveBoard(b)
	}})
}

// SaveCard queues a card insert.
func (w *Writer) SaveCard(c model.IdeaCard) {
	w.enqueue(writeOp{kind: "save card", apply: func(st Store) error {
		return st.SaveCard(c)
	}})
}

// UpdateCardVotes queues a vote-total update.
func (w *Writer) UpdateCardVotes(boardCode string, cardID int64, votes int) {
	w.enqueue(writeOp{kind: "update votes", apply: func(st Store) error {
		return st.UpdateCardVotes(boardCode, cardID, votes)
	}})
}

// SaveMessage queues a chat message append.
func (w *Writer) SaveMessage(m model.ChatMessage) {
	w.enqueue(writeOp{kind: "save message", apply: func(st Store) error {
		return st.SaveMessage(m)
	}})
}

// Close drains queued writes and stops the apply loop. Further enqueues
// after Close are invalid.
func (w *Writer) Close() {
	w.closeOnce.Do(func() {
		close(w.ops)
	})
	<-w.done
}
