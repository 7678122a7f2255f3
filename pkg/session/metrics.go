package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records session activity. A nil *Metrics records nothing.
type Metrics struct {
	transitions *prometheus.CounterVec
	errors      *prometheus.CounterVec
	pairing     *prometheus.HistogramVec
}

// NewMetrics creates session metrics and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "naisho",
				Subsystem: "session",
				Name:      "transitions_total",
				Help:      "Processed session state machine events.",
			},
			[]string{"from", "to", "event"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "naisho",
				Subsystem: "session",
				Name:      "errors_total",
				Help:      "Session failures by kind.",
			},
			[]string{"kind"},
		),
		pairing: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "naisho",
				Subsystem: "session",
				Name:      "pairing_duration_seconds",
				Help:      "Time from the first handshake action to the data phase.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 180, 300, 600},
			},
			[]string{"role"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.transitions, m.errors, m.pairing)
	}
	return m
}

func (m *Metrics) recordTransition(tr Transition) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(tr.From.String(), tr.To.String(), tr.Event.String()).Inc()
}

func (m *Metrics) recordError(kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind).Inc()
}

func (m *Metrics) recordPairing(role string, d time.Duration) {
	if m == nil {
		return
	}
	m.pairing.WithLabelValues(role).Observe(d.Seconds())
}
