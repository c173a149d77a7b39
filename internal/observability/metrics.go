package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Domain collectors. HTTP traffic metrics live in the middleware package;
// these count what the payment pipeline decided.
var (
	// ProofCacheHits counts verifications answered from the result cache.
	ProofCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paygate_proof_cache_hits_total",
		Help: "Proof verifications served from cache.",
	})

	// Verifications counts non-cached verification outcomes:
	// valid, invalid, malformed, config_error, busy, error.
	Verifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paygate_proof_verifications_total",
		Help: "Proof verifications by outcome.",
	}, []string{"outcome"})

	// VerifyDuration observes time spent inside the pairing check.
	VerifyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "paygate_proof_verify_duration_seconds",
		Help:    "Duration of the cryptographic proof check.",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// ReplaysRejected counts nullifier reuse attempts by path (direct|bridge).
	ReplaysRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paygate_replays_rejected_total",
		Help: "Payments rejected because the nullifier or message was already spent.",
	}, []string{"path"})

	// BridgeOutcomes counts bridge verification results.
	BridgeOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paygate_bridge_verifications_total",
		Help: "Cross-chain attestation verifications by outcome.",
	}, []string{"outcome"})

	// SessionTransitions counts session state changes by target status.
	SessionTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paygate_session_transitions_total",
		Help: "Payment session transitions by resulting status.",
	}, []string{"status"})

	// EventsPublished counts domain events by result (ok|error).
	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paygate_events_published_total",
		Help: "Domain events handed to the publisher.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		ProofCacheHits,
		Verifications,
		VerifyDuration,
		ReplaysRejected,
		BridgeOutcomes,
		SessionTransitions,
		EventsPublished,
	)
}
