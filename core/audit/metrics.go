package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	records       *prometheus.CounterVec
	actorFailures prometheus.Counter
}

// NewMetrics registers the audit counters on reg. A nil registerer keeps the
// collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sharedcal",
			Name:      "audit_records_total",
			Help:      "Audit records appended, by action and entity type.",
		}, []string{"action", "entity"}),
		actorFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sharedcal",
			Name:      "audit_actor_failures_total",
			Help:      "Audit writes rejected because no administrator could be resolved.",
		}),
	}
}

func (m *Metrics) recorded(action, entity string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(action, entity).Inc()
}

func (m *Metrics) actorFailure() {
	if m == nil {
		return
	}
	m.actorFailures.Inc()
}
