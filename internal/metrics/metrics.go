// Package metrics registers all Prometheus collectors for the bot on a
// private registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the gatekeeper bot.
type Metrics struct {
	registry *prometheus.Registry

	// Dialogue metrics.
	SessionsStartedTotal   prometheus.Counter
	SessionsCompletedTotal prometheus.Counter
	SessionsCancelledTotal prometheus.Counter
	SessionsExpiredTotal   prometheus.Counter
	ActiveSessions         prometheus.Gauge

	ValidationRejectionsTotal *prometheus.CounterVec

	// Gatekeeper metrics.
	JoinRequestsTotal prometheus.Counter
	ApprovalsTotal    prometheus.Counter

	// Transport metrics.
	TransportErrorsTotal *prometheus.CounterVec
	UpdatesTotal         *prometheus.CounterVec

	// Process lifecycle.
	StartTime prometheus.Gauge
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		SessionsStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vestibule_sessions_started_total",
			Help: "Total number of identification dialogues started.",
		}),
		SessionsCompletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vestibule_sessions_completed_total",
			Help: "Total number of identification dialogues completed.",
		}),
		SessionsCancelledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vestibule_sessions_cancelled_total",
			Help: "Total number of identification dialogues cancelled by the user.",
		}),
		SessionsExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vestibule_sessions_expired_total",
			Help: "Total number of identification dialogues destroyed by idle expiry.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vestibule_active_sessions",
			Help: "Number of identification dialogues currently in progress.",
		}),

		ValidationRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vestibule_validation_rejections_total",
			Help: "Total number of rejected field submissions.",
		}, []string{"field"}),

		JoinRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vestibule_join_requests_total",
			Help: "Total number of join requests received for the managed group.",
		}),
		ApprovalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vestibule_approvals_total",
			Help: "Total number of join requests approved.",
		}),

		TransportErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vestibule_transport_errors_total",
			Help: "Total number of Telegram API call failures.",
		}, []string{"op"}),
		UpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vestibule_updates_total",
			Help: "Total number of updates received, by kind.",
		}, []string{"kind"}),

		StartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vestibule_start_time_seconds",
			Help: "Unix timestamp when the process started.",
		}),
	}

	reg.MustRegister(
		m.SessionsStartedTotal,
		m.SessionsCompletedTotal,
		m.SessionsCancelledTotal,
		m.SessionsExpiredTotal,
		m.ActiveSessions,
		m.ValidationRejectionsTotal,
		m.JoinRequestsTotal,
		m.ApprovalsTotal,
		m.TransportErrorsTotal,
		m.UpdatesTotal,
		m.StartTime,
	)

	m.StartTime.Set(float64(time.Now().Unix()))

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncValidationRejection increments the rejection counter for a form field.
func (m *Metrics) IncValidationRejection(field string) {
	m.ValidationRejectionsTotal.WithLabelValues(field).Inc()
}

// IncTransportError increments the transport error counter for an API call.
func (m *Metrics) IncTransportError(op string) {
	m.TransportErrorsTotal.WithLabelValues(op).Inc()
}

// IncUpdate increments the received-update counter for an update kind.
func (m *Metrics) IncUpdate(kind string) {
	m.UpdatesTotal.WithLabelValues(kind).Inc()
}
