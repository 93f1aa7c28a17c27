// Package metrics exposes prometheus collectors for the chat core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive tracks live WebSocket sessions.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lanchat_connections_active",
		Help: "Number of live WebSocket sessions.",
	})

	// MessagesAccepted counts messages accepted into the log.
	MessagesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lanchat_messages_accepted_total",
		Help: "Messages accepted, persisted, and broadcast.",
	})

	// MessagesRejected counts rejected submissions by reason.
	MessagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lanchat_messages_rejected_total",
		Help: "Submissions rejected at the boundary.",
	}, []string{"reason"})

	// TypingTransitions counts typing state transitions by direction.
	TypingTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lanchat_typing_transitions_total",
		Help: "Typing state machine transitions.",
	}, []string{"state"})
)
