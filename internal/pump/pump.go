package pump

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/eventproc/internal/types"
)

// Deps bundles the collaborators a Pump needs, so the Load-Balancer Loop can
// construct one without threading a dozen constructor parameters.
type Deps struct {
	Client        types.Client
	Store         types.Store
	Namespace     string
	EventHubName  string
	ConsumerGroup string

	ReaderOptions types.ReaderOptions
	RetryOptions  types.RetryOptions

	OnEvent         types.ProcessEventHandler
	OnError         types.ProcessErrorHandler
	OnInitializing  types.PartitionInitializingHandler
	OnClosing       types.PartitionClosingHandler

	Logger  types.Logger
	Metrics types.MetricsCollector
}

// Pump wraps one Partition Reader, invokes the user's event handler per
// event, and relays checkpoint requests. It runs on its own goroutine and
// communicates completion only through Done()/Err() — it never calls back
// into the Load-Balancer Loop directly (§9, "no cyclic references").
type Pump struct {
	deps        Deps
	partitionID string
	checkpoint  *types.Checkpoint // last known checkpoint at pump creation, nil if none

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	reasonOnce sync.Once
	reason     types.CloseReason

	err atomic.Pointer[error]
}

// New constructs a Pump for one partition. checkpoint, if non-nil, is the
// most recently persisted position for this partition and overrides
// whatever defaultStartingPosition onPartitionInitializing chooses.
func New(parent context.Context, partitionID string, checkpoint *types.Checkpoint, deps Deps) *Pump {
	ctx, cancel := context.WithCancel(parent)

	return &Pump{
		deps:        deps,
		partitionID: partitionID,
		checkpoint:  checkpoint,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Start launches the pump's run loop in a new goroutine and returns
// immediately.
func (p *Pump) Start() {
	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordPumpStarted(p.partitionID)
	}
	go p.run()
}

// Done returns a channel closed once the pump has fully terminated,
// including having invoked onPartitionClosing.
func (p *Pump) Done() <-chan struct{} {
	return p.done
}

// IsDone reports whether the pump has already terminated, for the Loop's
// Phase C ("whose pump has completed") check without blocking.
func (p *Pump) IsDone() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Err returns the error that terminated the pump, if any. A pump stopped
// deliberately (Shutdown/OwnershipLost) returns nil.
func (p *Pump) Err() error {
	if e := p.err.Load(); e != nil {
		return *e
	}

	return nil
}

// Stop requests the pump terminate with the given reason and blocks until
// it has (or ctx is done first). Calling Stop more than once is safe; only
// the first reason sticks, matching "the pump terminates" being a one-shot
// transition.
func (p *Pump) Stop(ctx context.Context, reason types.CloseReason) error {
	p.setReason(reason)
	p.cancel()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pump) setReason(reason types.CloseReason) {
	p.reasonOnce.Do(func() {
		p.reason = reason
	})
}

func (p *Pump) run() {
	defer close(p.done)

	pc := types.PartitionContext{
		Namespace:     p.deps.Namespace,
		EventHubName:  p.deps.EventHubName,
		ConsumerGroup: p.deps.ConsumerGroup,
		PartitionID:   p.partitionID,
	}

	defaultPos := types.Earliest()
	onInit := p.deps.OnInitializing
	if err := onInit(p.ctx, p.partitionID, &defaultPos); err != nil {
		p.fail(fmt.Errorf("onPartitionInitializing: %w", err))
		p.closeWith(p.ctx, types.CloseProcessingError, pc)

		return
	}

	startPos := defaultPos
	if p.checkpoint != nil {
		startPos = types.FromSequenceNumber(p.checkpoint.SequenceNumber, false)
	}

	rd, err := openReader(p.ctx, p.deps.Client, p.partitionID, startPos, p.deps.ReaderOptions, p.deps.RetryOptions, p.deps.Logger)
	if err != nil {
		p.deps.OnError(p.ctx, &pc, "OpenConsumer", err)
		p.fail(err)
		p.closeWith(context.Background(), types.CloseProcessingError, pc)

		return
	}
	defer func() { _ = rd.close(context.Background()) }()

	for {
		select {
		case <-p.ctx.Done():
			p.closeWith(context.Background(), p.closeReason(types.CloseShutdown), pc)

			return
		default:
		}

		batch, err := rd.readBatch(p.ctx, batchSize(p.deps.ReaderOptions), readWait(p.deps.RetryOptions))
		if err != nil {
			if p.ctx.Err() != nil {
				p.closeWith(context.Background(), p.closeReason(types.CloseShutdown), pc)

				return
			}
			p.deps.OnError(p.ctx, &pc, "ReadEvents", err)
			p.fail(err)
			p.closeWith(context.Background(), types.CloseProcessingError, pc)

			return
		}

		for _, ev := range batch {
			event := ev
			checkpointFn := p.checkpointFunc(event)

			if err := p.deps.OnEvent(p.ctx, pc, event, checkpointFn); err != nil {
				p.deps.OnError(p.ctx, &pc, "ReadEvents", err)
				p.fail(err)
				p.closeWith(context.Background(), types.CloseProcessingError, pc)

				return
			}

			if p.deps.Metrics != nil {
				p.deps.Metrics.RecordEventProcessed(p.partitionID)
			}
		}
	}
}

// closeReason returns the externally-requested reason if one was set via
// Stop, else the fallback (used when the context was cancelled without an
// explicit Stop call, which should not normally happen but is handled
// defensively).
func (p *Pump) closeReason(fallback types.CloseReason) types.CloseReason {
	var set bool
	p.reasonOnce.Do(func() {
		p.reason = fallback
		set = true
	})
	_ = set

	return p.reason
}

func (p *Pump) closeWith(ctx context.Context, reason types.CloseReason, pc types.PartitionContext) {
	if err := p.deps.OnClosing(ctx, p.partitionID, reason); err != nil {
		p.deps.OnError(ctx, &pc, "onPartitionClosing", err)
	}
	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordPumpStopped(p.partitionID, reason.String())
	}
}

func (p *Pump) fail(err error) {
	p.err.Store(&err)
}

// checkpointFunc captures the event's position at the time it was
// delivered, per §4.3: "The checkpointFn captures event.offset and
// event.sequence and, when called, writes a Checkpoint via the Store."
func (p *Pump) checkpointFunc(event types.Event) types.CheckpointFunc {
	return func(ctx context.Context) error {
		if event.Empty() {
			return types.ErrEmptyEvent
		}

		cp := types.Checkpoint{
			Namespace:      p.deps.Namespace,
			EventHubName:   p.deps.EventHubName,
			ConsumerGroup:  p.deps.ConsumerGroup,
			PartitionID:    p.partitionID,
			Offset:         event.Offset,
			SequenceNumber: event.SequenceNumber,
		}
		if err := p.deps.Store.UpdateCheckpoint(ctx, cp); err != nil {
			return err
		}
		if p.deps.Metrics != nil {
			p.deps.Metrics.RecordCheckpointWritten(p.partitionID)
		}

		return nil
	}
}

func batchSize(opts types.ReaderOptions) int {
	if opts.PrefetchCount > 0 {
		return opts.PrefetchCount
	}

	return 100
}

func readWait(opts types.RetryOptions) time.Duration {
	if opts.TryTimeout > 0 {
		return opts.TryTimeout
	}

	return 30 * time.Second
}
