package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transfers_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "transfers_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "route"})

	CodeVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transfers_code_verifications_total",
		Help: "Verification code submissions by flow and outcome",
	}, []string{"flow", "outcome"})

	Executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transfers_executions_total",
		Help: "Ledger executions by flow and outcome",
	}, []string{"flow", "outcome"})

	ConcurrencyRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transfers_concurrency_retries_total",
		Help: "Units of work retried after a concurrency conflict",
	}, []string{"flow"})
)

const (
	OutcomeSuccess      = "success"
	OutcomeExpired      = "expired"
	OutcomeInvalid      = "invalid"
	OutcomeBlocked      = "blocked"
	OutcomeNoPending    = "no_pending"
	OutcomeInsufficient = "insufficient_funds"
	OutcomeConflict     = "conflict"
	OutcomeError        = "error"
)
