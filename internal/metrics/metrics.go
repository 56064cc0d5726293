// Package metrics holds the domain Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

var (
	// AuthAttempts counts register and login attempts by outcome.
	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_attempts_total",
		Help: "Register and login attempts by operation and result.",
	}, []string{"operation", "result"})

	// SessionsIssued counts issued bearer tokens.
	SessionsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_sessions_issued_total",
		Help: "Sessions issued.",
	})

	// SessionsRevoked counts deleted sessions by reason.
	SessionsRevoked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_sessions_revoked_total",
		Help: "Sessions revoked by reason.",
	}, []string{"reason"})

	// BotGateDecisions counts bot gate verdicts.
	BotGateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_bot_gate_decisions_total",
		Help: "Bot gate decisions by result.",
	}, []string{"result"})

	// ResetCodesIssued counts reset codes created for known accounts.
	ResetCodesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_reset_codes_issued_total",
		Help: "Password reset codes issued.",
	})

	// ResetCompletions counts reset-password attempts by outcome.
	ResetCompletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_reset_completions_total",
		Help: "Password reset completions by result.",
	}, []string{"result"})

	// MailDeliveries counts notification attempts per transport.
	MailDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_mail_deliveries_total",
		Help: "Mail delivery attempts by transport and result.",
	}, []string{"transport", "result"})

	// SweptRecords counts expired records removed by the sweeper.
	SweptRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_swept_records_total",
		Help: "Expired records removed by kind.",
	}, []string{"kind"})
)
