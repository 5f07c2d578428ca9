package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from internal goroutines and must be thread-safe.
// The interface composes smaller, component-focused interfaces so that a
// collector can be assembled from independently testable pieces.
type MetricsCollector interface {
	LoopMetrics
	PumpMetrics
	StoreMetrics
}

// LoopMetrics defines metrics for the load-balancer loop.
type LoopMetrics interface {
	// RecordCycleDuration records the wall-clock time a single loop cycle took.
	RecordCycleDuration(duration float64)

	// RecordClaimAttempt records the outcome of a claim attempt made during
	// Phase F, tagged by the selection reason ("unclaimed", "over_quota",
	// "at_max").
	RecordClaimAttempt(reason string, success bool)

	// RecordOwnedPartitions sets the current count of partitions owned by
	// this instance (gauge).
	RecordOwnedPartitions(count int)

	// RecordRenewal records the outcome of renewing one owned lease.
	RecordRenewal(success bool)
}

// PumpMetrics defines metrics for partition pump lifecycle events.
type PumpMetrics interface {
	// RecordPumpStarted records a pump transitioning to running.
	RecordPumpStarted(partitionID string)

	// RecordPumpStopped records a pump terminating, tagged by close reason.
	RecordPumpStopped(partitionID string, reason string)

	// RecordEventProcessed records one event delivered to the user handler.
	RecordEventProcessed(partitionID string)

	// RecordCheckpointWritten records a successful checkpoint write.
	RecordCheckpointWritten(partitionID string)
}

// StoreMetrics defines metrics for checkpoint/ownership store operations.
type StoreMetrics interface {
	// RecordStoreOperationDuration records store call latency by operation
	// name ("ListOwnership", "ClaimOwnership", "ListCheckpoints",
	// "UpdateCheckpoint").
	RecordStoreOperationDuration(operation string, duration float64)

	// RecordStoreOperationError records a failed store call by operation
	// name and error kind ("transient", "permanent").
	RecordStoreOperationError(operation string, kind string)
}
