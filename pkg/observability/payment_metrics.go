package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Gateway transaction metrics
	transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_engine_transactions_total",
		Help: "Gateway transactions by operation and outcome",
	}, []string{
		"gateway",      // gateway id
		"payment_type", // credit_card, echeck
		"operation",    // charge, authorization, check_debit, capture, tokenize
		"outcome",      // approved, held, declined, error
	})

	transactionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_engine_transaction_duration_seconds",
		Help:    "Gateway call latency",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{
		"gateway",
		"operation",
	})

	// Token synchronizer metrics
	tokenCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_engine_token_cache_lookups_total",
		Help: "Token cache lookups by result",
	}, []string{"result"}) // hit, miss, error

	tokenRemoteSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_engine_token_remote_sync_total",
		Help: "Remote token listing merges by result",
	}, []string{"gateway", "result"}) // merged, failed, declined

	legacyTokensMigrated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_engine_legacy_tokens_migrated_total",
		Help: "Legacy token records copied to the token store",
	}, []string{"gateway", "result"}) // migrated, failed

	// Order lifecycle metrics
	capturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_engine_captures_total",
		Help: "Capture attempts by outcome",
	}, []string{"gateway", "outcome"})

	renewalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_engine_renewals_total",
		Help: "Subscription renewal attempts by outcome",
	}, []string{"gateway", "outcome"})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_engine_events_published_total",
		Help: "Payment events handed to the publisher",
	}, []string{"type", "result"})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "payment_engine_gateway_circuit_state",
		Help: "Gateway circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"gateway"})
)

// RecordTransaction records one gateway call.
func RecordTransaction(gateway, paymentType, operation, outcome string, duration time.Duration) {
	transactionsTotal.WithLabelValues(gateway, paymentType, operation, outcome).Inc()
	transactionDuration.WithLabelValues(gateway, operation).Observe(duration.Seconds())
}

// RecordTokenCacheLookup records a cache hit, miss or error.
func RecordTokenCacheLookup(result string) {
	tokenCacheLookups.WithLabelValues(result).Inc()
}

// RecordRemoteTokenSync records the result of a remote token merge.
func RecordRemoteTokenSync(gateway, result string) {
	tokenRemoteSyncs.WithLabelValues(gateway, result).Inc()
}

// RecordLegacyMigration records migrated legacy token records.
func RecordLegacyMigration(gateway, result string, count int) {
	if count <= 0 {
		return
	}
	legacyTokensMigrated.WithLabelValues(gateway, result).Add(float64(count))
}

// RecordCapture records a capture attempt.
func RecordCapture(gateway, outcome string) {
	capturesTotal.WithLabelValues(gateway, outcome).Inc()
}

// RecordRenewal records a subscription renewal attempt.
func RecordRenewal(gateway, outcome string) {
	renewalsTotal.WithLabelValues(gateway, outcome).Inc()
}

// RecordEventPublished records a publish attempt.
func RecordEventPublished(eventType, result string) {
	eventsPublished.WithLabelValues(eventType, result).Inc()
}

// SetCircuitBreakerState exports the breaker state of a gateway.
func SetCircuitBreakerState(gateway string, state int) {
	circuitBreakerState.WithLabelValues(gateway).Set(float64(state))
}
