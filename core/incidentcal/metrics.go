package incidentcal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	syncs          *prometheus.CounterVec
	orphansDeleted prometheus.Counter
	missingEvents  prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		syncs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sharedcal",
			Name:      "incident_sync_total",
			Help:      "Incident calendar synchronization calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		orphansDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sharedcal",
			Name:      "incident_reconcile_orphans_deleted_total",
			Help:      "Derived events removed because their incident no longer exists.",
		}),
		missingEvents: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sharedcal",
			Name:      "incident_reconcile_missing_events",
			Help:      "Incidents without a derived event at the last reconcile run.",
		}),
	}
}

func (m *Metrics) sync(op string, outcome Outcome) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(op, outcome.String()).Inc()
}

func (m *Metrics) syncError(op string) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(op, "error").Inc()
}

func (m *Metrics) reconciled(orphans, missing int) {
	if m == nil {
		return
	}
	m.orphansDeleted.Add(float64(orphans))
	m.missingEvents.Set(float64(missing))
}
