// Package metrics exposes prometheus counters for ledger activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	slotsCredited     prometheus.Counter
	slotsConsumed     prometheus.Counter
	reconcileOutcomes *prometheus.CounterVec
	webhookEvents     *prometheus.CounterVec
}

// New registers the ledger counters on the provided registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		slotsCredited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "examslots",
			Name:      "slots_credited_total",
			Help:      "Registration slots credited to coordinator balances.",
		}),
		slotsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "examslots",
			Name:      "slots_consumed_total",
			Help:      "Registration slots debited from coordinator balances.",
		}),
		reconcileOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "examslots",
			Name:      "reconcile_outcomes_total",
			Help:      "Reconciliation results by outcome.",
		}, []string{"outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "examslots",
			Name:      "webhook_events_total",
			Help:      "Inbound payment webhook events by disposition.",
		}, []string{"disposition"}),
	}

	reg.MustRegister(m.slotsCredited, m.slotsConsumed, m.reconcileOutcomes, m.webhookEvents)
	return m
}

func (m *Metrics) AddSlotsCredited(n int) {
	if m == nil {
		return
	}
	m.slotsCredited.Add(float64(n))
}

func (m *Metrics) AddSlotsConsumed(n int) {
	if m == nil {
		return
	}
	m.slotsConsumed.Add(float64(n))
}

func (m *Metrics) IncReconcileOutcome(outcome string) {
	if m == nil {
		return
	}
	m.reconcileOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncWebhookEvent(disposition string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(disposition).Inc()
}
