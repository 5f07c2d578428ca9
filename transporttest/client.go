// Package transporttest provides an in-memory types.Client/PartitionClient
// pair for tests and examples, in the shape of the teacher library's static
// partition source: a fixed (or test-mutated) partition set, here backed by
// an append-only in-memory log per partition instead of a weight list.
package transporttest

import (
	"context"
	"sync"
	"time"

	"github.com/arloliu/eventproc/internal/types"
)

// partitionLog is one partition's append-only event log plus the
// condition variable readers block on when they catch up to the tail.
type partitionLog struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events []types.Event
	closed bool
}

// Client is an in-memory types.Client. Tests construct one, call Publish to
// append events, and hand it to a Processor exactly like a real transport
// client.
type Client struct {
	namespace     string
	eventHubName  string
	consumerGroup string

	mu   sync.RWMutex
	logs map[string]*partitionLog
}

// NewClient returns a Client scoped to namespace/eventHubName/consumerGroup
// with the given fixed partition ids. Partitions cannot be added or
// removed after construction — GetPartitionIDs always returns this set.
func NewClient(namespace, eventHubName, consumerGroup string, partitionIDs []string) *Client {
	c := &Client{
		namespace:     namespace,
		eventHubName:  eventHubName,
		consumerGroup: consumerGroup,
		logs:          make(map[string]*partitionLog, len(partitionIDs)),
	}
	for _, id := range partitionIDs {
		l := &partitionLog{}
		l.cond = sync.NewCond(&l.mu)
		c.logs[id] = l
	}

	return c
}

func (c *Client) Namespace() string     { return c.namespace }
func (c *Client) EventHubName() string  { return c.eventHubName }
func (c *Client) ConsumerGroup() string { return c.consumerGroup }

// GetPartitionIDs returns the fixed partition id set.
func (c *Client) GetPartitionIDs(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.logs))
	for id := range c.logs {
		ids = append(ids, id)
	}

	return ids, nil
}

// Publish appends an event to partitionID's log, waking any blocked reader.
// It stamps SequenceNumber/Offset/EnqueuedTime for the caller.
func (c *Client) Publish(partitionID string, body []byte) (types.Event, error) {
	c.mu.RLock()
	l, ok := c.logs[partitionID]
	c.mu.RUnlock()
	if !ok {
		return types.Event{}, types.NewPermanentError(&unknownPartitionError{partitionID})
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seq := int64(len(l.events)) + 1
	event := types.Event{
		Body:           body,
		Offset:         seq,
		SequenceNumber: seq,
		EnqueuedTime:   time.Now(),
	}
	l.events = append(l.events, event)
	l.cond.Broadcast()

	return event, nil
}

// OpenConsumer opens a PartitionClient positioned per position. Earliest
// and a zero-valued FromSequenceNumber start at the beginning of the log,
// and Latest after the current tail. Any other sequence position starts
// right after that sequence number, or at it when inclusive. Offset and
// enqueued-time positions are not interpreted and start at the beginning.
func (c *Client) OpenConsumer(_ context.Context, partitionID string, position types.EventPosition, _ types.ReaderOptions) (types.PartitionClient, error) {
	c.mu.RLock()
	l, ok := c.logs[partitionID]
	c.mu.RUnlock()
	if !ok {
		return nil, types.NewPermanentError(&unknownPartitionError{partitionID})
	}

	l.mu.Lock()
	next := int64(0)
	switch position.Kind() {
	case types.PositionSequence:
		next = position.SequenceNumber()
		if !position.Inclusive() {
			// SequenceNumber() already counts events delivered, so the
			// next read starts immediately after it.
		} else if next > 0 {
			next--
		}
	case types.PositionLatest:
		next = int64(len(l.events))
	case types.PositionEarliest, types.PositionOffset, types.PositionEnqueuedTime:
		next = 0
	}
	l.mu.Unlock()

	return &partitionClient{log: l, next: next}, nil
}

type unknownPartitionError struct{ partitionID string }

func (e *unknownPartitionError) Error() string { return "transporttest: unknown partition " + e.partitionID }

// partitionClient reads sequentially from a partitionLog starting at next.
type partitionClient struct {
	log    *partitionLog
	next   int64
	closed bool
}

// ReadEvents blocks until at least one event is available past next, or
// maxWait elapses, or ctx is done. It never returns more than maxBatch
// events.
func (pc *partitionClient) ReadEvents(ctx context.Context, maxBatch int, maxWait time.Duration) ([]types.Event, error) {
	pc.log.mu.Lock()
	defer pc.log.mu.Unlock()

	if pc.closed {
		return nil, types.NewPermanentError(errClosed{})
	}

	deadline := time.Now().Add(maxWait)

	for int64(len(pc.log.events)) <= pc.next {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if pc.log.closed {
			return nil, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		timer := time.AfterFunc(remaining, pc.log.cond.Broadcast)
		pc.log.cond.Wait()
		timer.Stop()
	}

	available := pc.log.events[pc.next:]
	if len(available) > maxBatch {
		available = available[:maxBatch]
	}

	batch := make([]types.Event, len(available))
	copy(batch, available)
	pc.next += int64(len(batch))

	return batch, nil
}

// Close marks the consumer closed; further ReadEvents calls fail.
func (pc *partitionClient) Close(_ context.Context) error {
	pc.log.mu.Lock()
	pc.closed = true
	pc.log.mu.Unlock()

	return nil
}

type errClosed struct{}

func (errClosed) Error() string { return "transporttest: consumer closed" }

var (
	_ types.Client          = (*Client)(nil)
	_ types.PartitionClient = (*partitionClient)(nil)
)
