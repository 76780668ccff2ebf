// Package metrics exposes the server's Prometheus instrumentation:
// request counts and latencies per RPC, active streams, and registry
// occupancy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCTotal counts completed RPCs by method and outcome.
	RPCTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flightsql_rpc_total",
		Help: "Total Flight SQL RPCs served, by method and result kind.",
	}, []string{"method", "result"})

	// RPCDuration tracks RPC latency by method.
	RPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flightsql_rpc_duration_seconds",
		Help:    "Flight SQL RPC latency in seconds, by method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	// ActiveStreams is a gauge of in-flight getStream calls.
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flightsql_active_streams",
		Help: "Number of currently streaming getStream RPCs.",
	})

	// RegistrySize tracks live handle-registry occupancy by kind.
	RegistrySize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flightsql_registry_entries",
		Help: "Live handle registry entries, by kind.",
	}, []string{"kind"})

	// BatchesEmitted counts Arrow batches produced per stream.
	BatchesEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flightsql_batches_emitted_total",
		Help: "Total Arrow record batches sent to clients.",
	})

	// IngestConflicts counts ingest writes rejected for an existing path.
	IngestConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flightsql_ingest_conflicts_total",
		Help: "Total ingest writes rejected because the target path already existed.",
	})
)

// ObserveRPC records one completed RPC's outcome and latency.
func ObserveRPC(method, result string, seconds float64) {
	RPCTotal.WithLabelValues(method, result).Inc()
	RPCDuration.WithLabelValues(method).Observe(seconds)
}
