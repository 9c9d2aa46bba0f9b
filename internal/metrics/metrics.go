// Package metrics collects and exposes Prometheus metrics for the board
// engine: live boards and sessions, fan-out volume, dropped deliveries, and
// persistence failures.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns every metric the engine records. A nil *Collector is
// valid and records nothing, which keeps tests and tools free of metric
// plumbing.
type Collector struct {
	registry *prometheus.Registry

	boardsActive      prometheus.Gauge
	sessionsActive    prometheus.Gauge
	eventsBroadcast   *prometheus.CounterVec
	deliveriesDropped prometheus.Counter
	votesApplied      prometheus.Counter
	storeWriteFails   prometheus.Counter
}

// NewCollector builds a Collector and registers its metrics on the given
// registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	c := &Collector{
		registry: reg,
		boardsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "echoboard_boards_active",
			Help: "Number of boards with a live actor goroutine.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "echoboard_sessions_active",
			Help: "Number of connected sessions across all boards.",
		}),
		eventsBroadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "echoboard_events_broadcast_total",
			Help: "Events fanned out to board subscribers, by event kind.",
		}, []string{"kind"}),
		deliveriesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echoboard_deliveries_dropped_total",
			Help: "Per-session deliveries dropped because the send buffer was full.",
		}),
		votesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echoboard_votes_applied_total",
			Help: "Vote transitions that changed a card total.",
		}),
		storeWriteFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echoboard_store_write_failures_total",
			Help: "Persistence writes that failed or were shed under load.",
		}),
	}

	reg.MustRegister(
		c.boardsActive,
		c.sessionsActive,
		c.eventsBroadcast,
		c.deliveriesDropped,
		c.votesApplied,
		c.storeWriteFails,
	)

	return c
}

// Handler returns the HTTP handler serving the collector's registry in the
// Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// BoardOpened records a board actor starting.
func (c *Collector) BoardOpened() {
	if c != nil {
		c.boardsActive.Inc()
	}
}

// BoardClosed records a board actor stopping.
func (c *Collector) BoardClosed() {
	if c != nil {
		c.boardsActive.Dec()
	}
}

// SessionJoined records a session attaching to a board.
func (c *Collector) SessionJoined() {
	if c != nil {
		c.sessionsActive.Inc()
	}
}

// SessionLeft records a session detaching from a board.
func (c *Collector) SessionLeft() {
	if c != nil {
		c.sessionsActive.Dec()
	}
}

// EventBroadcast records one event delivered to n subscribers.
func (c *Collector) EventBroadcast(kind string, n int) {
	if c != nil {
		c.eventsBroadcast.WithLabelValues(kind).Add(float64(n))
	}
}

// DeliveryDropped records a subscriber evicted for a full send buffer.
func (c *Collector) DeliveryDropped() {
	if c != nil {
		c.deliveriesDropped.Inc()
	}
}

// VoteApplied records a vote transition that changed a total.
func (c *Collector) VoteApplied() {
	if c != nil {
		c.votesApplied.Inc()
	}
}

// StoreWriteFailure records a failed or shed persistence write.
func (c *Collector) StoreWriteFailure() {
	if c != nil {
		c.storeWriteFails.Inc()
	}
}
