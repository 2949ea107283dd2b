package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Payment core counters and histograms.

var (
	// Ledger
	TransactionsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "votefox",
		Subsystem: "ledger",
		Name:      "transactions_opened_total",
		Help:      "Total pending transactions created",
	}, []string{"payment_method"})

	TransactionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "votefox",
		Subsystem: "ledger",
		Name:      "transitions_total",
		Help:      "Conditional status updates by target status and whether the writer won",
	}, []string{"status", "won"})

	VotesCredited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "votefox",
		Subsystem: "ledger",
		Name:      "votes_credited_total",
		Help:      "Total vote rows inserted",
	})

	// Payment provider
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "votefox",
		Subsystem: "provider",
		Name:      "requests_total",
		Help:      "Outbound provider calls by operation and result",
	}, []string{"operation", "result"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "votefox",
		Subsystem: "provider",
		Name:      "request_duration_seconds",
		Help:      "Outbound provider call duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
	}, []string{"operation"})

	// Webhook
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "votefox",
		Subsystem: "webhook",
		Name:      "deliveries_total",
		Help:      "Inbound payment callbacks by processing outcome",
	}, []string{"outcome"})

	// USSD
	USSDRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "votefox",
		Subsystem: "ussd",
		Name:      "requests_total",
		Help:      "USSD requests by the step the dialog ended on",
	}, []string{"step"})

	// Reconciliation
	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "votefox",
		Subsystem: "reconcile",
		Name:      "runs_total",
		Help:      "Reconciliation passes by pass name",
	}, []string{"pass"})

	ReconcileItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "votefox",
		Subsystem: "reconcile",
		Name:      "items_total",
		Help:      "Items touched by reconciliation passes by pass and result",
	}, []string{"pass", "result"})

	ReconcileLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "votefox",
		Subsystem: "reconcile",
		Name:      "pass_duration_seconds",
		Help:      "Reconciliation pass duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}, []string{"pass"})
)
