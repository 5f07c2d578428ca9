package eventproc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/eventproc/internal/hooks"
	"github.com/arloliu/eventproc/internal/loadbalancer"
	"github.com/arloliu/eventproc/internal/logging"
	"github.com/arloliu/eventproc/internal/metrics"
	"github.com/arloliu/eventproc/internal/types"
)

// processorState tracks the façade's lifecycle: idle (handlers may still be
// registered), starting (handlers locked, loop under construction), or
// running (a Load-Balancer Loop is active).
type processorState int32

const (
	stateIdle processorState = iota
	// stateStarting is held only while Start constructs the Load-Balancer
	// Loop, so a concurrent Stop cannot observe stateRunning before p.loop
	// is assigned and dereference a nil loop.
	stateStarting
	stateRunning
)

// Processor is the entry point applications construct: it owns one
// instance's share of the cooperative partition-distribution algorithm and
// dispatches events to user-registered handlers.
//
// Thread safety: all public methods are safe for concurrent use. Handler
// registration is only permitted while the Processor is idle.
type Processor struct {
	store  types.Store
	client types.Client
	opts   Options

	logger  types.Logger
	metrics types.MetricsCollector

	mu             sync.RWMutex
	onEvent        types.ProcessEventHandler
	onError        types.ProcessErrorHandler
	onInitializing types.PartitionInitializingHandler
	onClosing      types.PartitionClosingHandler

	state atomic.Int32

	loop   *loadbalancer.Loop
	stopMu sync.Mutex
}

// NewProcessor constructs a Processor bound to store and client, scoped by
// opts.Namespace/EventHubName/ConsumerGroup. opts is defaulted and
// validated before use.
func NewProcessor(store types.Store, client types.Client, opts Options, optFns ...Option) (*Processor, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if client == nil {
		return nil, ErrClientRequired
	}

	opts.setDefaults()
	if opts.OwnerID == "" {
		id, err := generateOwnerID()
		if err != nil {
			return nil, fmt.Errorf("generate owner id: %w", err)
		}
		opts.OwnerID = id
	}
	if err := opts.Validate(); err != nil {
		return nil, newError("NewProcessor", KindConfiguration, err)
	}

	resolved := &processorOptions{}
	for _, fn := range optFns {
		fn(resolved)
	}

	logger := resolved.logger
	if logger == nil {
		logger = logging.NewNop()
	}
	metricsCollector := resolved.metrics
	if metricsCollector == nil {
		metricsCollector = metrics.NewNop()
	}

	opts.ValidateWithWarnings(logger)

	p := &Processor{
		store:   store,
		client:  client,
		opts:    opts,
		logger:  logger,
		metrics: metricsCollector,
	}
	p.state.Store(int32(stateIdle))

	return p, nil
}

// SetProcessEventHandler registers the mandatory per-event callback. It may
// only be called while the Processor is idle, and only once.
func (p *Processor) SetProcessEventHandler(h types.ProcessEventHandler) error {
	return p.setHandler(func() error {
		if p.onEvent != nil {
			return ErrDuplicateHandler
		}
		p.onEvent = h

		return nil
	})
}

// SetProcessErrorHandler registers the mandatory error callback.
func (p *Processor) SetProcessErrorHandler(h types.ProcessErrorHandler) error {
	return p.setHandler(func() error {
		if p.onError != nil {
			return ErrDuplicateHandler
		}
		p.onError = h

		return nil
	})
}

// SetPartitionInitializingHandler registers the optional pre-read callback.
func (p *Processor) SetPartitionInitializingHandler(h types.PartitionInitializingHandler) error {
	return p.setHandler(func() error {
		if p.onInitializing != nil {
			return ErrDuplicateHandler
		}
		p.onInitializing = h

		return nil
	})
}

// SetPartitionClosingHandler registers the optional post-read callback.
func (p *Processor) SetPartitionClosingHandler(h types.PartitionClosingHandler) error {
	return p.setHandler(func() error {
		if p.onClosing != nil {
			return ErrDuplicateHandler
		}
		p.onClosing = h

		return nil
	})
}

func (p *Processor) setHandler(set func() error) error {
	if processorState(p.state.Load()) != stateIdle {
		return ErrHandlersLocked
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return set()
}

// Start validates that the mandatory handlers are registered, locks
// further registration, and launches the Load-Balancer Loop in the
// background. It returns once the loop goroutine has been started, not
// once a partition has been claimed.
func (p *Processor) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(stateIdle), int32(stateStarting)) {
		return ErrAlreadyStarted
	}

	p.mu.RLock()
	onEvent, onError := p.onEvent, p.onError
	onInit, onClose := p.onInitializing, p.onClosing
	p.mu.RUnlock()

	if onEvent == nil {
		p.state.Store(int32(stateIdle))

		return ErrMissingEventHandler
	}
	if onError == nil {
		p.state.Store(int32(stateIdle))

		return ErrMissingErrorHandler
	}
	if onInit == nil {
		onInit = hooks.NopInitializing
	}
	if onClose == nil {
		onClose = hooks.NopClosing
	}

	p.loop = loadbalancer.New(loadbalancer.Config{
		Client:              p.client,
		Store:               p.store,
		Namespace:           p.opts.Namespace,
		EventHubName:        p.opts.EventHubName,
		ConsumerGroup:       p.opts.ConsumerGroup,
		OwnerID:             p.opts.OwnerID,
		OwnershipExpiration: p.opts.OwnershipExpiration,
		UpdateInterval:      p.opts.UpdateInterval,
		ReaderOptions: types.ReaderOptions{
			PrefetchCount:                     p.opts.Reader.PrefetchCount,
			TrackLastEnqueuedEventProperties:  p.opts.Reader.TrackLastEnqueuedEventProperties,
			ConnectionOptions: types.ConnectionOptions{
				TLSInsecureSkipVerify: p.opts.Reader.TLSInsecureSkipVerify,
				Proxy:                 p.opts.Reader.Proxy,
			},
		},
		RetryOptions: types.RetryOptions{
			Mode:       p.opts.Reader.RetryMode,
			MaxRetries: p.opts.Reader.RetryMaxRetries,
			Delay:      p.opts.Reader.RetryDelay,
			MaxDelay:   p.opts.Reader.RetryMaxDelay,
			TryTimeout: p.opts.Reader.RetryTryTimeout,
		},
		OnEvent:        onEvent,
		OnError:        onError,
		OnInitializing: onInit,
		OnClosing:      onClose,
		Logger:         p.logger,
		Metrics:        p.metrics,
		StartedAt:      time.Now(),
	})

	p.state.Store(int32(stateRunning))
	go p.loop.Run(context.Background())

	p.logger.Info("processor started", "owner_id", p.opts.OwnerID, "namespace", p.opts.Namespace, "event_hub", p.opts.EventHubName)

	return nil
}

// Stop cancels the Load-Balancer Loop and waits for every owned pump to
// terminate, or for ctx to be done first. Leases are not explicitly
// surrendered; they are simply left to expire.
func (p *Processor) Stop(ctx context.Context) error {
	p.stopMu.Lock()
	defer p.stopMu.Unlock()

	if processorState(p.state.Load()) != stateRunning {
		return ErrNotStarted
	}

	err := p.loop.Stop(ctx)
	if err != nil {
		// The caller's own cancellation aborted the stop before the loop
		// and its pumps finished tearing down: the processor is still
		// Running, not idle, so a subsequent Stop can retry the teardown.
		return err
	}

	p.state.Store(int32(stateIdle))
	p.logger.Info("processor stopped", "owner_id", p.opts.OwnerID)

	return nil
}

// IsRunning reports whether the Processor has been started and not yet
// stopped.
func (p *Processor) IsRunning() bool {
	return processorState(p.state.Load()) == stateRunning
}

// Namespace returns the configured namespace.
func (p *Processor) Namespace() string { return p.opts.Namespace }

// EventHubName returns the configured event hub name.
func (p *Processor) EventHubName() string { return p.opts.EventHubName }

// ConsumerGroup returns the configured consumer group.
func (p *Processor) ConsumerGroup() string { return p.opts.ConsumerGroup }

// Identifier returns this instance's owner id as it appears in the shared
// ownership table.
func (p *Processor) Identifier() string { return p.opts.OwnerID }

// ActivePartitions returns the partition ids this instance currently has a
// running pump for. It returns nil if the Processor is not running.
func (p *Processor) ActivePartitions() []string {
	if !p.IsRunning() {
		return nil
	}

	return p.loop.ActivePartitions()
}

// OwnedPartitionCount returns len(ActivePartitions()), computed without
// allocating the slice.
func (p *Processor) OwnedPartitionCount() int {
	if !p.IsRunning() {
		return 0
	}

	return p.loop.OwnedPartitionCount()
}

func generateOwnerID() (string, error) {
	host, _ := os.Hostname()

	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	if host == "" {
		host = "instance"
	}

	return fmt.Sprintf("%s-%s", host, hex.EncodeToString(buf)), nil
}
