// Package types holds the value types and small interfaces shared across
// the processor's internal packages. It exists, like the equivalent
// subpackage in the teacher library, purely to avoid an import cycle
// between the root façade and the internal packages that implement it.
package types

import "time"

// PositionKind tags the payload carried by an EventPosition.
type PositionKind int

const (
	// PositionEarliest selects the oldest available event in the partition.
	PositionEarliest PositionKind = iota
	// PositionLatest selects the next event produced after the link opens.
	PositionLatest
	// PositionOffset selects a position by byte offset.
	PositionOffset
	// PositionSequence selects a position by sequence number.
	PositionSequence
	// PositionEnqueuedTime selects the first event enqueued at or after a timestamp.
	PositionEnqueuedTime
)

// EventPosition is a starting-position descriptor for a Partition Reader.
//
// It is a value type: two positions are equal iff they carry the same tag
// and the same payload. Earliest and Latest carry no payload and are never
// equal to each other or to any offset/sequence/enqueued-time position.
type EventPosition struct {
	kind         PositionKind
	offset       int64
	sequence     int64
	inclusive    bool
	enqueuedTime time.Time
}

// Earliest returns the position preceding the oldest retained event.
func Earliest() EventPosition {
	return EventPosition{kind: PositionEarliest}
}

// Latest returns the position following the newest event at link-open time.
func Latest() EventPosition {
	return EventPosition{kind: PositionLatest}
}

// FromOffset returns a position anchored to a byte offset.
func FromOffset(offset int64) EventPosition {
	return EventPosition{kind: PositionOffset, offset: offset}
}

// FromSequenceNumber returns a position anchored to a sequence number.
// When inclusive is true the event at seq is itself replayed.
func FromSequenceNumber(seq int64, inclusive bool) EventPosition {
	return EventPosition{kind: PositionSequence, sequence: seq, inclusive: inclusive}
}

// FromEnqueuedTime returns a position anchored to a broker enqueue timestamp.
func FromEnqueuedTime(t time.Time) EventPosition {
	return EventPosition{kind: PositionEnqueuedTime, enqueuedTime: t}
}

// Kind reports the tag of the position.
func (p EventPosition) Kind() PositionKind { return p.kind }

// Offset reports the payload for a PositionOffset; zero otherwise.
func (p EventPosition) Offset() int64 { return p.offset }

// SequenceNumber reports the payload for a PositionSequence; zero otherwise.
func (p EventPosition) SequenceNumber() int64 { return p.sequence }

// Inclusive reports whether a PositionSequence replays the anchor event itself.
func (p EventPosition) Inclusive() bool { return p.inclusive }

// EnqueuedTime reports the payload for a PositionEnqueuedTime; zero otherwise.
func (p EventPosition) EnqueuedTime() time.Time { return p.enqueuedTime }

// Equal reports whether p and other carry the same tag and payload.
func (p EventPosition) Equal(other EventPosition) bool {
	if p.kind != other.kind {
		return false
	}
	switch p.kind {
	case PositionOffset:
		return p.offset == other.offset
	case PositionSequence:
		return p.sequence == other.sequence && p.inclusive == other.inclusive
	case PositionEnqueuedTime:
		return p.enqueuedTime.Equal(other.enqueuedTime)
	case PositionEarliest, PositionLatest:
		return true
	default:
		return true
	}
}

// String renders the position for logging.
func (p EventPosition) String() string {
	switch p.kind {
	case PositionEarliest:
		return "earliest"
	case PositionLatest:
		return "latest"
	case PositionOffset:
		return "offset"
	case PositionSequence:
		return "sequence"
	case PositionEnqueuedTime:
		return "enqueued-time"
	default:
		return "unknown"
	}
}

// Event is the payload surfaced to the user handler. It is immutable once
// delivered; the handler must not retain Body beyond the callback unless it
// copies it.
type Event struct {
	Body           []byte
	Offset         int64
	SequenceNumber int64
	EnqueuedTime   time.Time
	PartitionKey   *string
	Properties     map[string]any
}

// Empty reports whether the event carries no content, i.e. it is a
// synthetic placeholder (the zero Event{}) rather than one read from the
// transport. Checkpointing an empty event is a logic error.
//
// A zero Offset or SequenceNumber alone does not make an event empty: a
// transport may legitimately number its very first event 0, and that event
// still carries a body and an enqueued timestamp from the broker.
func (e Event) Empty() bool {
	return e.Body == nil && e.EnqueuedTime.IsZero() && e.Offset == 0 && e.SequenceNumber == 0
}

// PartitionOwnership is a lease record over one partition.
//
// At most one record exists per (Namespace, EventHubName, ConsumerGroup,
// PartitionID). LastModified and ETag are stamped by the Store; callers
// never set them directly except to echo back a previously observed ETag
// when attempting a claim or renewal.
type PartitionOwnership struct {
	Namespace     string
	EventHubName  string
	ConsumerGroup string
	PartitionID   string
	OwnerID       string
	LastModified  time.Time
	ETag          string
}

// Active reports whether the lease is still valid at instant now, given the
// configured expiration window. An ownership with an empty OwnerID is never
// active.
func (o PartitionOwnership) Active(now time.Time, expiration time.Duration) bool {
	if o.OwnerID == "" {
		return false
	}

	return now.Sub(o.LastModified) < expiration
}

// Checkpoint is a durable (offset, sequence) position for one partition
// within one consumer group. The Store accepts checkpoint writes
// unconditionally; it does not enforce monotonicity.
type Checkpoint struct {
	Namespace      string
	EventHubName   string
	ConsumerGroup  string
	PartitionID    string
	Offset         int64
	SequenceNumber int64
}

// CloseReason identifies why a partition pump stopped.
type CloseReason int

const (
	// CloseShutdown indicates the processor is stopping.
	CloseShutdown CloseReason = iota
	// CloseOwnershipLost indicates the lease was not renewed in time.
	CloseOwnershipLost
	// CloseProcessingError indicates the pump stopped on an error: a user
	// handler failed, or the reader could not open or read the partition.
	CloseProcessingError
)

// String renders the close reason for logging and tests.
func (r CloseReason) String() string {
	switch r {
	case CloseShutdown:
		return "Shutdown"
	case CloseOwnershipLost:
		return "OwnershipLost"
	case CloseProcessingError:
		return "ProcessingError"
	default:
		return "Unknown"
	}
}

// ErrorKind classifies an error surfaced by the core, per the four kinds
// the error-handling design distinguishes.
type ErrorKind int

const (
	// KindTransient covers timeouts, socket errors, and throttling.
	KindTransient ErrorKind = iota
	// KindPermanent covers invalid credentials, not-found, quota-exceeded.
	KindPermanent
	// KindConfiguration covers missing/duplicate handler registration and
	// similar façade misuse.
	KindConfiguration
	// KindLogic covers misuse detectable only at call time, such as
	// checkpointing an event with no position.
	KindLogic
)

// String renders the error kind for logging.
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindConfiguration:
		return "configuration"
	case KindLogic:
		return "logic"
	default:
		return "unknown"
	}
}
