package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stablepay_payments_submitted_total",
		Help: "The total number of submitted payments",
	}, []string{"chain_id", "token"})

	ExecutionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stablepay_execution_outcomes_total",
		Help: "Payment execution attempts by outcome",
	}, []string{"outcome"})

	StatusPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stablepay_status_polls_total",
		Help: "Transaction status polls by result",
	}, []string{"result"})

	PaymentsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stablepay_payments_finished_total",
		Help: "Payments that reached a final outcome",
	}, []string{"outcome"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stablepay_active_sessions",
		Help: "The number of payment sessions currently running",
	})

	PersistenceErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stablepay_persistence_errors_total",
		Help: "Status writes that failed and left the record behind the workflow",
	})

	ProviderRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stablepay_provider_request_seconds",
		Help:    "Latency of payment provider calls",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"op", "code"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stablepay_provider_breaker_state",
		Help: "Circuit breaker state of the provider client (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})
)
