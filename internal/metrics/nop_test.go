package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/eventproc/internal/types"
)

func TestNewNop(t *testing.T) {
	m := NewNop()

	require.NotNil(t, m)
	require.IsType(t, &NopMetrics{}, m)
	var _ types.MetricsCollector = m
}

func TestNopMetrics_LoopMetrics(t *testing.T) {
	m := NewNop()

	require.NotPanics(t, func() {
		m.RecordCycleDuration(0.5)
		m.RecordClaimAttempt("unclaimed", true)
		m.RecordClaimAttempt("over_quota", false)
		m.RecordOwnedPartitions(3)
		m.RecordRenewal(true)
		m.RecordRenewal(false)
	})
}

func TestNopMetrics_PumpMetrics(t *testing.T) {
	m := NewNop()

	require.NotPanics(t, func() {
		m.RecordPumpStarted("p0")
		m.RecordPumpStopped("p0", types.CloseShutdown.String())
		m.RecordEventProcessed("p0")
		m.RecordCheckpointWritten("p0")
	})
}

func TestNopMetrics_StoreMetrics(t *testing.T) {
	m := NewNop()

	require.NotPanics(t, func() {
		m.RecordStoreOperationDuration("ListOwnership", 0.1)
		m.RecordStoreOperationError("ClaimOwnership", types.KindTransient.String())
	})
}

func BenchmarkNopMetrics_RecordEventProcessed(b *testing.B) {
	m := NewNop()
	for b.Loop() {
		m.RecordEventProcessed("p0")
	}
}
