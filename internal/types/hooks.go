package types

import "context"

// CheckpointFunc persists the position of the event it was captured from.
// Calling it for an event with no position (Event.Empty()) returns
// ErrEmptyEvent instead of writing to the Store.
type CheckpointFunc func(ctx context.Context) error

// ProcessEventHandler is the mandatory per-event callback. checkpoint
// captures the event's offset and sequence number; calling it writes a
// Checkpoint via the Store.
type ProcessEventHandler func(ctx context.Context, pc PartitionContext, event Event, checkpoint CheckpointFunc) error

// ProcessErrorHandler is the mandatory error callback. It is invoked
// fire-and-forget; any error it itself returns is swallowed. pc is nil for
// errors not scoped to a partition (for example a failed GetPartitionIDs).
type ProcessErrorHandler func(ctx context.Context, pc *PartitionContext, operation string, err error)

// PartitionInitializingHandler is the optional callback invoked once before
// the first event of a partition's current pump generation. It may mutate
// defaultStartingPosition; any existing Checkpoint for the partition still
// overrides it afterward.
type PartitionInitializingHandler func(ctx context.Context, partitionID string, defaultStartingPosition *EventPosition) error

// PartitionClosingHandler is the optional callback invoked once after the
// last event of a partition's current pump generation, regardless of
// CloseReason.
type PartitionClosingHandler func(ctx context.Context, partitionID string, reason CloseReason) error
