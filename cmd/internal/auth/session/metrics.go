package session

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is an Observer that exports state-machine counters to Prometheus.
type Metrics struct {
	issued      prometheus.Counter
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	swept       prometheus.Counter
}

// NewMetrics registers the session collectors on reg. live, when non-nil,
// backs a gauge of stored sessions.
func NewMetrics(reg prometheus.Registerer, live func() int) *Metrics {
	m := &Metrics{
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qrauth",
			Subsystem: "session",
			Name:      "issued_total",
			Help:      "Login sessions issued.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrauth",
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Committed status transitions by target status.",
		}, []string{"to"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrauth",
			Subsystem: "session",
			Name:      "rejections_total",
			Help:      "Rejected operations by operation and reason.",
		}, []string{"op", "reason"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qrauth",
			Subsystem: "session",
			Name:      "swept_total",
			Help:      "Expired sessions removed by the reaper.",
		}),
	}

	if reg == nil {
		return m
	}
	reg.MustRegister(m.issued, m.transitions, m.rejections, m.swept)
	if live != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "qrauth",
			Subsystem: "session",
			Name:      "live",
			Help:      "Sessions currently held in the store.",
		}, func() float64 { return float64(live()) }))
	}
	return m
}

func (m *Metrics) Observe(_ context.Context, ev Event) {
	switch ev.Kind {
	case EventIssued:
		m.issued.Inc()
	case EventScanned:
		m.transitions.WithLabelValues(string(StatusScanned)).Inc()
	case EventAuthenticated:
		m.transitions.WithLabelValues(string(StatusAuthenticated)).Inc()
	case EventCancelled:
		m.transitions.WithLabelValues(string(StatusCancelled)).Inc()
	case EventExpired:
		m.transitions.WithLabelValues(string(StatusExpired)).Inc()
	case EventRejected:
		m.rejections.WithLabelValues(ev.Op, Reason(ev.Err)).Inc()
	case EventSwept:
		m.swept.Add(float64(ev.Count))
	}
}

var _ Observer = (*Metrics)(nil)
