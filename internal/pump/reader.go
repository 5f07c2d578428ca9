// Package pump implements the Partition Reader and Partition Pump: the
// per-partition task that opens a transport link, delivers events to the
// user handler, and relays checkpoint requests.
package pump

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/arloliu/eventproc/internal/types"
)

// reader wraps a Client/PartitionClient pair with the retry-and-reopen
// behavior the Partition Reader contract requires: a retryable error backs
// off and transparently reopens the link at the last successfully-delivered
// position, so callers observe no gap.
type reader struct {
	client      types.Client
	partitionID string
	options     types.ReaderOptions
	retry       types.RetryOptions
	logger      types.Logger

	current types.EventPosition
	pc      types.PartitionClient
}

// openReader opens the initial link at start.
func openReader(
	ctx context.Context,
	client types.Client,
	partitionID string,
	start types.EventPosition,
	options types.ReaderOptions,
	retry types.RetryOptions,
	logger types.Logger,
) (*reader, error) {
	pc, err := client.OpenConsumer(ctx, partitionID, start, options)
	if err != nil {
		return nil, err
	}

	return &reader{
		client:      client,
		partitionID: partitionID,
		options:     options,
		retry:       retry,
		logger:      logger,
		current:     start,
		pc:          pc,
	}, nil
}

// readBatch returns up to maxBatch events, or an empty batch if maxWait
// elapses with nothing available. A non-retryable error is returned as-is;
// a retryable error is retried per the configured policy, reopening the
// link at r.current before each retry.
func (r *reader) readBatch(ctx context.Context, maxBatch int, maxWait time.Duration) ([]types.Event, error) {
	var events []types.Event

	op := func() error {
		tryCtx := ctx
		var cancel context.CancelFunc
		if r.retry.TryTimeout > 0 {
			tryCtx, cancel = context.WithTimeout(ctx, r.retry.TryTimeout)
			defer cancel()
		}

		batch, err := r.pc.ReadEvents(tryCtx, maxBatch, maxWait)
		if err == nil {
			events = batch

			return nil
		}

		// The per-try timeout can expire just before the transport's own
		// maxWait does; with the caller's context still live that means no
		// events arrived in time, which is an empty batch, not a failure.
		if ctx.Err() == nil && tryCtx.Err() != nil && errors.Is(err, context.DeadlineExceeded) {
			events = nil

			return nil
		}

		if types.IsPermanent(err) {
			return backoff.Permanent(err)
		}

		if reopenErr := r.reopen(ctx); reopenErr != nil {
			if types.IsPermanent(reopenErr) {
				return backoff.Permanent(reopenErr)
			}

			return reopenErr
		}

		return err
	}

	bo := backoff.WithContext(r.backOff(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}

	if len(events) > 0 {
		last := events[len(events)-1]
		r.current = types.FromSequenceNumber(last.SequenceNumber, false)
	}

	return events, nil
}

// reopen closes the current link and opens a fresh one at r.current, the
// position just after the sequence number of the last event readBatch
// returned.
func (r *reader) reopen(ctx context.Context) error {
	if r.pc != nil {
		_ = r.pc.Close(ctx)
	}

	pc, err := r.client.OpenConsumer(ctx, r.partitionID, r.current, r.options)
	if err != nil {
		return err
	}
	r.pc = pc

	return nil
}

func (r *reader) backOff() backoff.BackOff {
	maxRetries := r.retry.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	if r.retry.Mode == types.RetryFixed {
		delay := r.retry.Delay
		if delay <= 0 {
			delay = 500 * time.Millisecond
		}

		return backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(maxRetries))
	}

	eb := backoff.NewExponentialBackOff()
	if r.retry.Delay > 0 {
		eb.InitialInterval = r.retry.Delay
	}
	if r.retry.MaxDelay > 0 {
		eb.MaxInterval = r.retry.MaxDelay
	}
	eb.MaxElapsedTime = 0 // bounded by MaxRetries, not wall-clock

	return backoff.WithMaxRetries(eb, uint64(maxRetries))
}

// close releases the underlying link.
func (r *reader) close(ctx context.Context) error {
	if r.pc == nil {
		return nil
	}

	return r.pc.Close(ctx)
}
