// Package dot1xmetrics exposes Prometheus metrics for dot1x-authenticatord.
package dot1xmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "dot1xd"
	subsystem = "auth"
)

// Label names for dot1x metrics.
const (
	labelPort      = "port"
	labelFromState = "from_state"
	labelToState   = "to_state"
	labelOutcome   = "outcome"
)

// -------------------------------------------------------------------------
// Collector — Prometheus 802.1X/RADIUS Metrics
// -------------------------------------------------------------------------

// Collector holds all dot1x-authenticatord Prometheus metrics.
//
//   - Sessions tracks currently live supplicant sessions per port.
//   - StateTransitions counts FSM transitions for alerting on stuck states.
//   - AuthOutcomes counts terminal outcomes (success/failure/timeout/logoff).
//   - RadiusRetransmits counts Access-Request retransmissions.
//   - IDExhaustions counts PacketIdAllocator exhaustion events (§7
//     KindResource).
type Collector struct {
	Sessions          *prometheus.GaugeVec
	StateTransitions  *prometheus.CounterVec
	AuthOutcomes      *prometheus.CounterVec
	RadiusRetransmits *prometheus.CounterVec
	IDExhaustions     prometheus.Counter
}

// NewCollector creates a Collector with all metrics registered against reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Sessions,
		c.StateTransitions,
		c.AuthOutcomes,
		c.RadiusRetransmits,
		c.IDExhaustions,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	portLabels := []string{labelPort}
	transitionLabels := []string{labelPort, labelFromState, labelToState}
	outcomeLabels := []string{labelPort, labelOutcome}

	return &Collector{
		Sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions",
			Help:      "Number of currently live supplicant sessions.",
		}, portLabels),

		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state_transitions_total",
			Help:      "Total EAP state machine transitions.",
		}, transitionLabels),

		AuthOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outcomes_total",
			Help:      "Total terminal authentication outcomes by kind (success, failure, timeout, logoff).",
		}, outcomeLabels),

		RadiusRetransmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "radius_retransmits_total",
			Help:      "Total Access-Request retransmissions.",
		}, portLabels),

		IDExhaustions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packet_id_exhausted_total",
			Help:      "Total times the RADIUS packet id space was exhausted.",
		}),
	}
}

// -------------------------------------------------------------------------
// Session Lifecycle
// -------------------------------------------------------------------------

// RegisterSession increments the active sessions gauge for port.
func (c *Collector) RegisterSession(port string) {
	c.Sessions.WithLabelValues(port).Inc()
}

// UnregisterSession decrements the active sessions gauge for port.
func (c *Collector) UnregisterSession(port string) {
	c.Sessions.WithLabelValues(port).Dec()
}

// SyncSessions resets the sessions gauge to exactly counts, keyed by port.
// Callers that only observe sessions periodically (rather than on every
// creation/eviction) use this instead of drifting Inc/Dec calls out of
// sync with reality.
func (c *Collector) SyncSessions(counts map[string]int) {
	c.Sessions.Reset()
	for port, n := range counts {
		c.Sessions.WithLabelValues(port).Set(float64(n))
	}
}

// -------------------------------------------------------------------------
// State Transitions
// -------------------------------------------------------------------------

// RecordStateTransition increments the transition counter with the old and
// new state labels.
func (c *Collector) RecordStateTransition(port, from, to string) {
	c.StateTransitions.WithLabelValues(port, from, to).Inc()
}

// -------------------------------------------------------------------------
// Outcomes
// -------------------------------------------------------------------------

// RecordOutcome increments the outcome counter for port (one of "success",
// "failure", "timeout", "logoff").
func (c *Collector) RecordOutcome(port, outcome string) {
	c.AuthOutcomes.WithLabelValues(port, outcome).Inc()
}

// -------------------------------------------------------------------------
// RADIUS
// -------------------------------------------------------------------------

// IncRadiusRetransmit increments the retransmission counter for port.
func (c *Collector) IncRadiusRetransmit(port string) {
	c.RadiusRetransmits.WithLabelValues(port).Inc()
}

// IncIDExhausted increments the packet-id-exhaustion counter.
func (c *Collector) IncIDExhausted() {
	c.IDExhaustions.Inc()
}
