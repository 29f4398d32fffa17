package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the domain counters exposed on /metrics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	TempCodeVerifications *prometheus.CounterVec
	TempCodesCreated      prometheus.Counter
	AuditEvents           *prometheus.CounterVec
	CleanupDeletions      *prometheus.CounterVec
	RateLimitRejections   *prometheus.CounterVec
	JobTransitions        *prometheus.CounterVec
}

// NewMetrics registers the domain collectors under namespace with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "smartlock"
	}

	m := &Metrics{}
	var err error

	if m.TempCodeVerifications, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "temp_codes",
		Name:      "verifications_total",
		Help:      "Temporary code verifications partitioned by outcome.",
	}, "result"); err != nil {
		return nil, err
	}

	if m.TempCodesCreated, err = Register[prometheus.Counter](reg, "created", prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "temp_codes",
		Name:      "created_total",
		Help:      "Temporary codes issued.",
	})); err != nil {
		return nil, err
	}

	if m.AuditEvents, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "events_total",
		Help:      "Audit events recorded partitioned by event type.",
	}, "event_type"); err != nil {
		return nil, err
	}

	if m.CleanupDeletions, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cleanup",
		Name:      "deleted_total",
		Help:      "Records removed by the cleanup sweep partitioned by kind.",
	}, "kind"); err != nil {
		return nil, err
	}

	if m.RateLimitRejections, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rate_limit",
		Name:      "rejections_total",
		Help:      "Requests rejected by the rate limiter partitioned by policy.",
	}, "policy"); err != nil {
		return nil, err
	}

	if m.JobTransitions, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "transitions_total",
		Help:      "External job state transitions partitioned by job and target state.",
	}, "job", "state"); err != nil {
		return nil, err
	}

	return m, nil
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) (*prometheus.CounterVec, error) {
	return Register(reg, opts.Name, prometheus.NewCounterVec(opts, labels))
}

// TempCodeVerified counts one verification outcome.
func (m *Metrics) TempCodeVerified(result string) {
	if m == nil || m.TempCodeVerifications == nil {
		return
	}
	m.TempCodeVerifications.WithLabelValues(result).Inc()
}

// TempCodeCreated counts one issued code.
func (m *Metrics) TempCodeCreated() {
	if m == nil || m.TempCodesCreated == nil {
		return
	}
	m.TempCodesCreated.Inc()
}

// AuditRecorded counts one audit event.
func (m *Metrics) AuditRecorded(eventType string) {
	if m == nil || m.AuditEvents == nil {
		return
	}
	m.AuditEvents.WithLabelValues(eventType).Inc()
}

// CleanupDeleted adds n removed records of kind.
func (m *Metrics) CleanupDeleted(kind string, n int) {
	if m == nil || m.CleanupDeletions == nil || n <= 0 {
		return
	}
	m.CleanupDeletions.WithLabelValues(kind).Add(float64(n))
}

// RateLimited counts one rejection by policy.
func (m *Metrics) RateLimited(policy string) {
	if m == nil || m.RateLimitRejections == nil {
		return
	}
	m.RateLimitRejections.WithLabelValues(policy).Inc()
}

// JobTransitioned counts a job entering state.
func (m *Metrics) JobTransitioned(job, state string) {
	if m == nil || m.JobTransitions == nil {
		return
	}
	m.JobTransitions.WithLabelValues(job, state).Inc()
}
