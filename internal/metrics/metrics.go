package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "studio"

var (
	once sync.Once

	reconcileOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_outcomes_total",
			Help:      "Payment reconciliation results by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	slotReservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_reservations_total",
			Help:      "Slot reserve/release attempts by result.",
		},
		[]string{"op", "result"},
	)

	refunds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Refund attempts by result.",
		},
		[]string{"result"},
	)

	manualReconciliation = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manual_reconciliation_required_total",
			Help:      "Paid checkouts left without booking or refund.",
		},
	)

	approvalDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_decisions_total",
			Help:      "Approval gate decisions by action type and outcome.",
		},
		[]string{"action_type", "outcome"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "SQL call latency by operation.",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"op"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			reconcileOutcomes,
			slotReservations,
			refunds,
			manualReconciliation,
			approvalDecisions,
			httpDuration,
			queryDuration,
		)
	})
}

// IncReconcile counts a reconciliation outcome. kind is "booking" or "package".
func IncReconcile(kind, outcome string) {
	reconcileOutcomes.WithLabelValues(kind, outcome).Inc()
}

// IncSlot counts a ledger operation.
func IncSlot(op, result string) {
	slotReservations.WithLabelValues(op, result).Inc()
}

// IncRefund counts a refund attempt.
func IncRefund(result string) {
	refunds.WithLabelValues(result).Inc()
}

// IncManualReconciliation counts a paid checkout that needs operator attention.
func IncManualReconciliation() {
	manualReconciliation.Inc()
}

// IncApproval counts an approval gate decision.
func IncApproval(actionType, outcome string) {
	approvalDecisions.WithLabelValues(actionType, outcome).Inc()
}

// ObserveHTTP records request latency.
func ObserveHTTP(method, route, status string, seconds float64) {
	httpDuration.WithLabelValues(method, route, status).Observe(seconds)
}

// ObserveQuery records SQL latency.
func ObserveQuery(op string, seconds float64) {
	queryDuration.WithLabelValues(op).Observe(seconds)
}
