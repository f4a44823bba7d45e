// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesStored tracks messages persisted by the ingestion path.
	MessagesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimic_messages_stored_total",
			Help: "Messages persisted to the store",
		},
		[]string{"team"},
	)

	// StoreFailures tracks failed store writes.
	StoreFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimic_store_failures_total",
			Help: "Failed store operations",
		},
		[]string{"team", "op"},
	)

	// GenerationRequests tracks resolved generation requests.
	GenerationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimic_generation_requests_total",
			Help: "Generation requests dispatched to the pipeline",
		},
		[]string{"team"},
	)

	// Denials tracks denial replies (self-mention and empty corpus).
	Denials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimic_denials_total",
			Help: "Denial replies sent",
		},
		[]string{"team", "reason"},
	)

	// Commands tracks administrative command invocations.
	Commands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimic_commands_total",
			Help: "Command invocations",
		},
		[]string{"team", "command"},
	)

	// SendFailures tracks outbound message delivery failures.
	SendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimic_send_failures_total",
			Help: "Outbound send failures",
		},
		[]string{"team"},
	)
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
