package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "everkeep_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// InvitationRedemptions counts invitation acceptance attempts by outcome
	// (accepted|not_found|expired|already_accepted|email_mismatch|error).
	InvitationRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "everkeep_invitation_redemptions_total",
			Help: "Total number of invitation acceptance attempts",
		},
		[]string{"outcome"},
	)

	// VerificationSubmissions counts death certificate submissions by outcome
	// (verified|rejected|error).
	VerificationSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "everkeep_verification_submissions_total",
			Help: "Total number of death verification submissions",
		},
		[]string{"outcome"},
	)

	// AccessGateDecisions counts access gate evaluations (allow|deny).
	AccessGateDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "everkeep_access_gate_decisions_total",
			Help: "Total number of executor access gate evaluations",
		},
		[]string{"decision"},
	)

	// ActiveSessions tracks active sessions (not expired/revoked).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "everkeep_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "everkeep_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
