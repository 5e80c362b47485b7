// Package metrics exposes Prometheus counters for the service. Collectors are
// registered on the default registry via promauto so the /metrics endpoint
// only needs promhttp.Handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InboundEvents counts webhook events by kind (text, button,
	// interactive_button) after normalization.
	InboundEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optichat_inbound_events_total",
		Help: "Inbound WhatsApp events received, by event kind.",
	}, []string{"kind"})

	// OutboundSends counts provider sends by message type and outcome.
	OutboundSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optichat_outbound_sends_total",
		Help: "Outbound messages sent to the provider, by type and outcome.",
	}, []string{"type", "outcome"})

	// AIAttempts counts upstream AI completion attempts by outcome
	// (ok, retryable, fatal).
	AIAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optichat_ai_attempts_total",
		Help: "AI completion attempts against upstream keys, by outcome.",
	}, []string{"outcome"})

	// AIFailovers counts completions that needed more than one key.
	AIFailovers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "optichat_ai_failovers_total",
		Help: "AI completions that failed over to a subsequent key.",
	})

	// HumanHandoffs counts handoff lifecycle transitions
	// (requested, closed_command, closed_timeout).
	HumanHandoffs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optichat_human_handoffs_total",
		Help: "Human handoff transitions, by kind.",
	}, []string{"kind"})
)
