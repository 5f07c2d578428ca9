package metrics

import "github.com/arloliu/eventproc/internal/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Used as the default when no Metrics option is
// supplied to NewProcessor.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// LoopMetrics implementation.

func (n *NopMetrics) RecordCycleDuration(_ float64)                    {}
func (n *NopMetrics) RecordClaimAttempt(_ string, _ bool)               {}
func (n *NopMetrics) RecordOwnedPartitions(_ int)                       {}
func (n *NopMetrics) RecordRenewal(_ bool)                              {}

// PumpMetrics implementation.

func (n *NopMetrics) RecordPumpStarted(_ string)            {}
func (n *NopMetrics) RecordPumpStopped(_ string, _ string)  {}
func (n *NopMetrics) RecordEventProcessed(_ string)         {}
func (n *NopMetrics) RecordCheckpointWritten(_ string)      {}

// StoreMetrics implementation.

func (n *NopMetrics) RecordStoreOperationDuration(_ string, _ float64) {}
func (n *NopMetrics) RecordStoreOperationError(_ string, _ string)     {}
