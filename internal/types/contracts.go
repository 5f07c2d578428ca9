package types

import (
	"context"
	"time"
)

// Store is the checkpoint/ownership persistence surface. A conforming
// implementation provides optimistic-concurrency semantics via an opaque
// version token (PartitionOwnership.ETag); the core never takes a
// distributed lock.
type Store interface {
	// ListOwnership returns every ownership record currently persisted for
	// the given namespace/hub/group, including expired ones.
	ListOwnership(ctx context.Context, namespace, eventHubName, consumerGroup string) ([]PartitionOwnership, error)

	// ClaimOwnership attempts a compare-and-set claim or renewal for each
	// element of the batch. An element whose ETag field matches the
	// currently stored token (or is empty and no record exists) succeeds
	// and is returned with a freshly stamped LastModified and a new ETag.
	// Elements that lose the race are silently omitted from the result;
	// partial success is the normal case.
	ClaimOwnership(ctx context.Context, ownerships []PartitionOwnership) ([]PartitionOwnership, error)

	// ListCheckpoints returns every checkpoint currently persisted for the
	// given namespace/hub/group.
	ListCheckpoints(ctx context.Context, namespace, eventHubName, consumerGroup string) ([]Checkpoint, error)

	// UpdateCheckpoint writes a checkpoint unconditionally (last-writer-wins).
	UpdateCheckpoint(ctx context.Context, checkpoint Checkpoint) error
}

// Client discovers partitions and opens per-partition consumers against the
// transport (the AMQP/broker client itself is out of scope; this interface
// is the seam the core consumes).
type Client interface {
	// Namespace, EventHubName, and ConsumerGroup identify the scope this
	// client reads from; the façade surfaces them as read-only properties.
	Namespace() string
	EventHubName() string
	ConsumerGroup() string

	// GetPartitionIDs returns the current partition id set of the event hub.
	GetPartitionIDs(ctx context.Context) ([]string, error)

	// OpenConsumer opens a link to one partition at the given starting
	// position, honoring the reader options.
	OpenConsumer(ctx context.Context, partitionID string, position EventPosition, options ReaderOptions) (PartitionClient, error)
}

// PartitionClient reads events from one partition's transport link.
type PartitionClient interface {
	// ReadEvents returns up to maxBatch events, or an empty batch once
	// maxWait elapses with no events available. An empty batch is not an
	// error.
	ReadEvents(ctx context.Context, maxBatch int, maxWait time.Duration) ([]Event, error)

	// Close releases the link.
	Close(ctx context.Context) error
}

// ReaderOptions configures one partition's transport link.
type ReaderOptions struct {
	// PrefetchCount hints how many events the transport link should buffer
	// ahead of ReadEvents calls.
	PrefetchCount int

	// TrackLastEnqueuedEventProperties requests partition-tail metadata be
	// attached to each ReadEvents response.
	TrackLastEnqueuedEventProperties bool

	// ConnectionOptions carries transport-level settings (TLS, proxy,
	// protocol version); the core treats it as opaque and forwards it.
	ConnectionOptions ConnectionOptions
}

// ConnectionOptions carries transport settings consumed only by the
// Client/PartitionClient implementation, never interpreted by the core.
type ConnectionOptions struct {
	TLSInsecureSkipVerify bool
	Proxy                 string
	ProtocolVersion       string
}

// RetryMode selects the backoff shape used by the Partition Reader.
type RetryMode int

const (
	// RetryFixed retries at a constant delay.
	RetryFixed RetryMode = iota
	// RetryExponential retries with exponentially growing delay.
	RetryExponential
)

// RetryOptions configures the Partition Reader's retry policy.
type RetryOptions struct {
	Mode          RetryMode
	MaxRetries    int
	Delay         time.Duration
	MaxDelay      time.Duration
	TryTimeout    time.Duration
}

// PartitionContext is the read-only view of a partition passed to user
// callbacks.
type PartitionContext struct {
	Namespace     string
	EventHubName  string
	ConsumerGroup string
	PartitionID   string

	lastEnqueued *LastEnqueuedEventProperties
}

// LastEnqueuedEventProperties reports the transport's view of a partition's
// tail. A PartitionContext carries one only when it was built with
// WithLastEnqueuedEventProperties; the partition pump does not attach one,
// so handlers see nil even when ReaderOptions.TrackLastEnqueuedEventProperties
// is set.
type LastEnqueuedEventProperties struct {
	SequenceNumber int64
	Offset         int64
	EnqueuedTime   time.Time
	RetrievedTime  time.Time
}

// WithLastEnqueuedEventProperties returns a copy of the context carrying
// the given tail snapshot.
func (c PartitionContext) WithLastEnqueuedEventProperties(p *LastEnqueuedEventProperties) PartitionContext {
	c.lastEnqueued = p

	return c
}

// LastEnqueuedEventProperties returns the tail snapshot attached with
// WithLastEnqueuedEventProperties, or nil if none was attached.
func (c PartitionContext) LastEnqueuedEventProperties() *LastEnqueuedEventProperties {
	return c.lastEnqueued
}
