package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Parsing
	IntentsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingo_intents_parsed_total",
			Help: "Total number of parsed commands by intent kind",
		},
		[]string{"kind"},
	)

	// Planning and execution
	PlansBuilt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingo_plans_total",
			Help: "Total number of transaction plans by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	Executions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingo_executions_total",
			Help: "Total number of plan executions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	QuoteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lingo_quote_duration_seconds",
			Help:    "Routing quote request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	Reconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingo_reconciled_total",
			Help: "Total number of pending transactions resolved by the reconciler",
		},
		[]string{"status"},
	)

	// Claims
	ClaimsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lingo_claims_created_total",
		Help: "Total number of phone claims created",
	})

	ClaimRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingo_claim_redemptions_total",
			Help: "Total number of claim redemption attempts by outcome",
		},
		[]string{"outcome"},
	)

	SMSSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingo_sms_total",
			Help: "Total number of claim SMS attempts by outcome",
		},
		[]string{"outcome"},
	)

	Translations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingo_translations_total",
			Help: "Total number of translation lookups by source",
		},
		[]string{"source"},
	)

	// Outbound provider calls, labelled by host so every provider shares one
	// collector.
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingo_provider_requests_total",
			Help: "Total number of outbound provider requests by host and outcome",
		},
		[]string{"host", "outcome"},
	)

	// HTTP
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingo_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lingo_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// Outcome labels shared by the counters above.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

func Outcome(err error) string {
	if err != nil {
		return OutcomeFailed
	}
	return OutcomeOK
}
