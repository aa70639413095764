// Package telemetry implements the Synaptic Bridge's observability
// surface: a bounded event store with percentile/health-score
// statistics per proxy, plus Prometheus counters/histograms registered
// the way internal/escrow/metrics.go registers its own.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instrumentation exported by the bridge.
type Metrics struct {
	TasksTotal       *prometheus.CounterVec
	TaskDuration     *prometheus.HistogramVec
	WorkerPoolSize   *prometheus.GaugeVec
	CircuitState     *prometheus.GaugeVec
	SharedMemoryUsed prometheus.Gauge
}

// NewMetrics registers and returns the bridge's Prometheus metrics. It
// must be called at most once per registry (promauto panics on
// duplicate registration), so callers keep a single NewMetrics() call
// per process.
func NewMetrics() *Metrics {
	return &Metrics{
		TasksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synapsevm_bridge_tasks_total",
				Help: "Total number of tasks dispatched across the Synaptic Bridge",
			},
			[]string{"proxy", "status"}, // status: completed, failed, timed_out
		),
		TaskDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "synapsevm_bridge_task_duration_seconds",
				Help:    "Task round-trip latency across the Synaptic Bridge",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"proxy"},
		),
		WorkerPoolSize: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "synapsevm_bridge_worker_pool_size",
				Help: "Configured worker pool capacity",
			},
			[]string{"proxy"},
		),
		CircuitState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "synapsevm_bridge_circuit_state",
				Help: "Circuit breaker state per proxy (0=closed, 1=half-open, 2=open)",
			},
			[]string{"proxy"},
		),
		SharedMemoryUsed: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "synapsevm_bridge_shared_memory_bytes_used",
				Help: "Bytes currently allocated from the shared-memory pool",
			},
		),
	}
}
