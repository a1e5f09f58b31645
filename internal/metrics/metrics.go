// Package metrics holds the prometheus collectors of the call coordinator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Call collects coordinator metrics. A nil *Call is valid and records nothing.
type Call struct {
	JoinsTotal       *prometheus.CounterVec
	LeavesTotal      *prometheus.CounterVec
	SessionsActive   prometheus.Gauge
	RosterSize       prometheus.Gauge
	RosterDropped    prometheus.Counter
	VolumeBatches    prometheus.Counter
	TeardownErrors   *prometheus.CounterVec
	StateTransitions *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Call {
	f := promauto.With(reg)
	return &Call{
		JoinsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "call_joins_total",
			Help: "Total number of join attempts by result",
		}, []string{"result"}), // "joined", "device_error", "join_error", "cancelled"

		LeavesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "call_leaves_total",
			Help: "Total number of session teardowns by cause",
		}, []string{"cause"}), // "user", "fault", "cancelled"

		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "call_sessions_active",
			Help: "Sessions currently connecting, joined or leaving",
		}),

		RosterSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "call_roster_size",
			Help: "Participants in the current roster, local included",
		}),

		RosterDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "call_roster_dropped_total",
			Help: "Remote participants not added because the roster was full",
		}),

		VolumeBatches: f.NewCounter(prometheus.CounterOpts{
			Name: "call_volume_batches_total",
			Help: "Volume sample batches applied to the roster",
		}),

		TeardownErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "call_teardown_errors_total",
			Help: "Errors swallowed while releasing session resources",
		}, []string{"step"}),

		StateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "call_state_transitions_total",
			Help: "Session state transitions",
		}, []string{"from", "to"}),
	}
}

func (m *Call) Join(result string) {
	if m == nil {
		return
	}
	m.JoinsTotal.WithLabelValues(result).Inc()
}

func (m *Call) Leave(cause string) {
	if m == nil {
		return
	}
	m.LeavesTotal.WithLabelValues(cause).Inc()
}

func (m *Call) Transition(from, to string, active bool) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(from, to).Inc()
	if active {
		m.SessionsActive.Set(1)
	} else {
		m.SessionsActive.Set(0)
	}
}

func (m *Call) Roster(size int) {
	if m == nil {
		return
	}
	m.RosterSize.Set(float64(size))
}

func (m *Call) Dropped() {
	if m == nil {
		return
	}
	m.RosterDropped.Inc()
}

func (m *Call) VolumeBatch() {
	if m == nil {
		return
	}
	m.VolumeBatches.Inc()
}

func (m *Call) TeardownError(step string) {
	if m == nil {
		return
	}
	m.TeardownErrors.WithLabelValues(step).Inc()
}
