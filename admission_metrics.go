package auth

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// AdmissionMetrics records admission outcomes as prometheus series.
// It implements ActivitySink so it can be combined with other sinks.
type AdmissionMetrics struct {
	decisions *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	logins    *prometheus.CounterVec
}

var _ ActivitySink = (*AdmissionMetrics)(nil)

// NewAdmissionMetrics registers the admission collectors on reg
func NewAdmissionMetrics(reg prometheus.Registerer) (*AdmissionMetrics, error) {
	m := &AdmissionMetrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_admission_decisions_total",
			Help: "Total number of token admission decisions by outcome and reason",
		}, []string{"outcome", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auth_admission_duration_seconds",
			Help:    "Histogram of token admission latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_sign_in_total",
			Help: "Total number of password sign in attempts by outcome",
		}, []string{"outcome"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.decisions, m.duration, m.logins} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

// Record implements ActivitySink.
func (m *AdmissionMetrics) Record(_ context.Context, event ActivityEvent) error {
	var outcome string
	switch event.EventType {
	case ActivityEventAdmissionAccepted:
		outcome = "accepted"
	case ActivityEventAdmissionRejected:
		outcome = "rejected"
	case ActivityEventAdmissionAnomaly:
		outcome = "anomaly"
	case ActivityEventAdmissionError:
		outcome = "error"
	case ActivityEventLoginSuccess:
		m.logins.WithLabelValues("success").Inc()
		return nil
	case ActivityEventLoginFailure:
		m.logins.WithLabelValues("failure").Inc()
		return nil
	default:
		return nil
	}

	m.decisions.WithLabelValues(outcome, string(event.Reason)).Inc()
	m.duration.WithLabelValues(outcome).Observe(event.Duration.Seconds())
	return nil
}
