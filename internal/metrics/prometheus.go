// Package metrics provides the processor's MetricsCollector implementations:
// a no-op default and a Prometheus-backed collector.
package metrics

import (
	"sync"

	"github.com/arloliu/eventproc/internal/types"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Metrics are registered lazily on first use so that constructing a
// collector never fails even before a namespace/registerer is finalized.
type PrometheusCollector struct {
	*NopMetrics

	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	cycleDuration     prometheus.Histogram
	claimAttempts     *prometheus.CounterVec
	ownedPartitions   prometheus.Gauge
	renewals          *prometheus.CounterVec
	pumpsStarted      *prometheus.CounterVec
	pumpsStopped      *prometheus.CounterVec
	eventsProcessed   *prometheus.CounterVec
	checkpointsWritten *prometheus.CounterVec
	storeOpDuration   *prometheus.HistogramVec
	storeOpErrors     *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "eventproc" if empty)
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "eventproc"
	}

	return &PrometheusCollector{NopMetrics: NewNop(), reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "loop",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one load-balancer loop cycle.",
			Buckets:   prometheus.DefBuckets,
		})
		p.claimAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "loop",
			Name:      "claim_attempts_total",
			Help:      "Claim attempts during Phase F, by victim-selection reason and outcome.",
		}, []string{"reason", "result"})
		p.ownedPartitions = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "loop",
			Name:      "owned_partitions",
			Help:      "Current number of partitions owned by this instance.",
		})
		p.renewals = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "loop",
			Name:      "renewals_total",
			Help:      "Lease renewal attempts during Phase A, by outcome.",
		}, []string{"result"})
		p.pumpsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "pump",
			Name:      "started_total",
			Help:      "Pumps started, by partition id.",
		}, []string{"partition"})
		p.pumpsStopped = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "pump",
			Name:      "stopped_total",
			Help:      "Pumps stopped, by partition id and close reason.",
		}, []string{"partition", "reason"})
		p.eventsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "pump",
			Name:      "events_processed_total",
			Help:      "Events delivered to the user handler, by partition id.",
		}, []string{"partition"})
		p.checkpointsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "pump",
			Name:      "checkpoints_written_total",
			Help:      "Checkpoints written, by partition id.",
		}, []string{"partition"})
		p.storeOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Store call latency by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"})
		p.storeOpErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "store",
			Name:      "operation_errors_total",
			Help:      "Store call failures by operation and error kind.",
		}, []string{"operation", "kind"})

		p.reg.MustRegister(
			p.cycleDuration,
			p.claimAttempts,
			p.ownedPartitions,
			p.renewals,
			p.pumpsStarted,
			p.pumpsStopped,
			p.eventsProcessed,
			p.checkpointsWritten,
			p.storeOpDuration,
			p.storeOpErrors,
		)
	})
}

// LoopMetrics implementation.

func (p *PrometheusCollector) RecordCycleDuration(duration float64) {
	p.ensureRegistered()
	p.cycleDuration.Observe(duration)
}

func (p *PrometheusCollector) RecordClaimAttempt(reason string, success bool) {
	p.ensureRegistered()
	p.claimAttempts.WithLabelValues(reason, resultLabel(success)).Inc()
}

func (p *PrometheusCollector) RecordOwnedPartitions(count int) {
	p.ensureRegistered()
	p.ownedPartitions.Set(float64(count))
}

func (p *PrometheusCollector) RecordRenewal(success bool) {
	p.ensureRegistered()
	p.renewals.WithLabelValues(resultLabel(success)).Inc()
}

// PumpMetrics implementation.

func (p *PrometheusCollector) RecordPumpStarted(partitionID string) {
	p.ensureRegistered()
	p.pumpsStarted.WithLabelValues(partitionID).Inc()
}

func (p *PrometheusCollector) RecordPumpStopped(partitionID string, reason string) {
	p.ensureRegistered()
	p.pumpsStopped.WithLabelValues(partitionID, reason).Inc()
}

func (p *PrometheusCollector) RecordEventProcessed(partitionID string) {
	p.ensureRegistered()
	p.eventsProcessed.WithLabelValues(partitionID).Inc()
}

func (p *PrometheusCollector) RecordCheckpointWritten(partitionID string) {
	p.ensureRegistered()
	p.checkpointsWritten.WithLabelValues(partitionID).Inc()
}

// StoreMetrics implementation.

func (p *PrometheusCollector) RecordStoreOperationDuration(operation string, duration float64) {
	p.ensureRegistered()
	p.storeOpDuration.WithLabelValues(operation).Observe(duration)
}

func (p *PrometheusCollector) RecordStoreOperationError(operation string, kind string) {
	p.ensureRegistered()
	p.storeOpErrors.WithLabelValues(operation, kind).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}

	return "failure"
}
