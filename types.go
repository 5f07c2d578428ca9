package eventproc

import "github.com/arloliu/eventproc/internal/types"

// Re-exported value types and interfaces.
//
// This file mirrors the internal/types package at the root so that
// application code can write eventproc.Event instead of reaching into an
// internal package. The actual definitions live in internal/types, which
// exists to let the internal packages (pump, loadbalancer, kvstore) share
// these types without importing the root package and creating a cycle.
type (
	Store           = types.Store
	Client          = types.Client
	PartitionClient = types.PartitionClient

	Event               = types.Event
	EventPosition       = types.EventPosition
	PositionKind        = types.PositionKind
	PartitionOwnership  = types.PartitionOwnership
	Checkpoint          = types.Checkpoint
	PartitionContext    = types.PartitionContext
	ReaderOptions       = types.ReaderOptions
	ConnectionOptions   = types.ConnectionOptions
	RetryOptions        = types.RetryOptions
	RetryMode           = types.RetryMode
	CloseReason         = types.CloseReason
	ErrorKind           = types.ErrorKind
	LastEnqueuedEventProperties = types.LastEnqueuedEventProperties

	Logger           = types.Logger
	MetricsCollector = types.MetricsCollector

	CheckpointFunc               = types.CheckpointFunc
	ProcessEventHandler          = types.ProcessEventHandler
	ProcessErrorHandler          = types.ProcessErrorHandler
	PartitionInitializingHandler = types.PartitionInitializingHandler
	PartitionClosingHandler      = types.PartitionClosingHandler
)

// Re-exported position constructors.
var (
	Earliest           = types.Earliest
	Latest             = types.Latest
	FromOffset         = types.FromOffset
	FromSequenceNumber = types.FromSequenceNumber
	FromEnqueuedTime   = types.FromEnqueuedTime
)

// Re-exported enum constants.
const (
	PositionEarliest     = types.PositionEarliest
	PositionLatest       = types.PositionLatest
	PositionOffset       = types.PositionOffset
	PositionSequence     = types.PositionSequence
	PositionEnqueuedTime = types.PositionEnqueuedTime

	RetryFixed       = types.RetryFixed
	RetryExponential = types.RetryExponential

	CloseShutdown        = types.CloseShutdown
	CloseOwnershipLost   = types.CloseOwnershipLost
	CloseProcessingError = types.CloseProcessingError

	KindTransient     = types.KindTransient
	KindPermanent     = types.KindPermanent
	KindConfiguration = types.KindConfiguration
	KindLogic         = types.KindLogic
)
