// Package metrics holds the Prometheus collectors shared by the bot's
// components and the registry that exposes them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "nightguide"

var (
	RelayedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_messages_total",
			Help:      "Messages relayed to the model by result (ok, error, not_ready)",
		},
		[]string{"result"},
	)

	RelayDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_duration_seconds",
			Help:      "Time spent generating a reply for a relayed message",
			Buckets:   prometheus.DefBuckets,
		},
	)

	IngestionPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_status_checks_total",
			Help:      "Artifact status checks by the status the remote service reported",
		},
		[]string{"status"},
	)

	IngestionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_duration_seconds",
			Help:      "Duration of a full ingestion run by outcome",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"outcome"},
	)

	ArtifactsReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifacts_ready",
			Help:      "Artifacts currently attached to conversations",
		},
	)

	TaskRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_task_runs_total",
			Help:      "Scheduled task runs by task and result (ok, error)",
		},
		[]string{"task", "result"},
	)

	ArtifactsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_dropped_total",
			Help:      "Optional artifacts dropped after a failed submission or processing",
		},
	)
)

// NewRegistry returns a registry with the runtime collectors and every
// collector declared in this package.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		RelayedMessages,
		RelayDuration,
		IngestionPolls,
		IngestionDuration,
		ArtifactsReady,
		ArtifactsDropped,
		TaskRuns,
	)
	return reg
}
