package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus collectors for the lifecycle engine.
//
// Registration goes through sync.Once so that several engines in one
// process (tests, CLI + server) share the same collectors.
//
//   - pcengine_transitions_total{action,outcome}
//   - pcengine_active_cap_rejections_total
//   - pcengine_overrides_total
//   - pcengine_drafts_imported_total
//   - pcengine_drafts_converted_total
//   - pcengine_webhook_deliveries_total{outcome}
type Metrics struct {
	TransitionsTotal       *prometheus.CounterVec
	ActiveCapRejections    prometheus.Counter
	OverridesTotal         prometheus.Counter
	DraftsImportedTotal    prometheus.Counter
	DraftsConvertedTotal   prometheus.Counter
	WebhookDeliveriesTotal *prometheus.CounterVec
}

// New returns the process-wide metrics, registering them on first use.
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			TransitionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pcengine_transitions_total",
					Help: "Lifecycle transitions attempted, by action and outcome",
				},
				[]string{"action", "outcome"},
			),
			ActiveCapRejections: promauto.NewCounter(prometheus.CounterOpts{
				Name: "pcengine_active_cap_rejections_total",
				Help: "Launches or creates refused because the active cap was reached",
			}),
			OverridesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "pcengine_overrides_total",
				Help: "Committed active-cap overrides",
			}),
			DraftsImportedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "pcengine_drafts_imported_total",
				Help: "Repository drafts upserted by imports",
			}),
			DraftsConvertedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "pcengine_drafts_converted_total",
				Help: "Drafts converted into projects",
			}),
			WebhookDeliveriesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pcengine_webhook_deliveries_total",
					Help: "Webhook deliveries by outcome",
				},
				[]string{"outcome"},
			),
		}
	})
	return globalMetrics
}

// Transition records one lifecycle attempt.
func (m *Metrics) Transition(action, outcome string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(action, outcome).Inc()
}
