package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors exported by the access engine.
type Metrics struct {
	DecisionsTotal      *prometheus.CounterVec
	EvalDuration        prometheus.Histogram
	AuditBufferDepth    prometheus.Gauge
	AuditRetriesTotal   prometheus.Counter
	SessionsRevoked     *prometheus.CounterVec
	PolicyReloadsTotal  *prometheus.CounterVec
	IsolationViolations prometheus.Counter
}

// NewMetrics registers the engine's collectors on the given registerer.
// Re-registration (tests, restarts sharing the default registry) reuses
// the existing collector instead of failing.
func NewMetrics(reg prometheus.Registerer, serviceName string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "access",
			Name:        "decisions_total",
			Help:        "Authorization decisions by outcome and reason",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}, []string{"outcome", "reason"}),
		EvalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "access",
			Name:        "evaluation_duration_seconds",
			Help:        "Latency of access evaluation",
			ConstLabels: prometheus.Labels{"service": serviceName},
			Buckets:     []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),
		AuditBufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "access",
			Name:        "audit_buffer_depth",
			Help:        "Entries waiting in the audit retry buffer",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}),
		AuditRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "access",
			Name:        "audit_retries_total",
			Help:        "Audit store append retries",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}),
		SessionsRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "access",
			Name:        "sessions_revoked_total",
			Help:        "Sessions revoked by reason",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}, []string{"reason"}),
		PolicyReloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "access",
			Name:        "policy_reloads_total",
			Help:        "Policy snapshot reloads by result",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}, []string{"result"}),
		IsolationViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "access",
			Name:        "isolation_violations_total",
			Help:        "Rows rejected by the tenant isolation gate after query",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}),
	}

	m.DecisionsTotal = register(reg, m.DecisionsTotal).(*prometheus.CounterVec)
	m.EvalDuration = register(reg, m.EvalDuration).(prometheus.Histogram)
	m.AuditBufferDepth = register(reg, m.AuditBufferDepth).(prometheus.Gauge)
	m.AuditRetriesTotal = register(reg, m.AuditRetriesTotal).(prometheus.Counter)
	m.SessionsRevoked = register(reg, m.SessionsRevoked).(*prometheus.CounterVec)
	m.PolicyReloadsTotal = register(reg, m.PolicyReloadsTotal).(*prometheus.CounterVec)
	m.IsolationViolations = register(reg, m.IsolationViolations).(prometheus.Counter)

	return m
}

func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

// ObserveDecision records one evaluation result.
func (m *Metrics) ObserveDecision(outcome, reason string, seconds float64) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(outcome, reason).Inc()
	m.EvalDuration.Observe(seconds)
}
