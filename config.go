package eventproc

import (
	"fmt"
	"time"
)

// ReaderConfig controls how the Partition Reader opens and re-opens its
// transport link.
//
// All duration fields accept standard Go duration strings like "30s", "5m".
type ReaderConfig struct {
	// PrefetchCount hints how many events the transport link should
	// buffer ahead of reads. Recommended: 100-300.
	PrefetchCount int `yaml:"prefetchCount"`

	// TrackLastEnqueuedEventProperties is forwarded to the Client's
	// OpenConsumer in ReaderOptions. The pump does not populate
	// PartitionContext.LastEnqueuedEventProperties, which stays nil.
	TrackLastEnqueuedEventProperties bool `yaml:"trackLastEnqueuedEventProperties"`

	// RetryMode selects fixed or exponential backoff for a retryable
	// transport error.
	RetryMode RetryMode `yaml:"retryMode"`

	// RetryMaxRetries bounds how many times a single read is retried
	// before the pump terminates with CloseProcessingError.
	RetryMaxRetries int `yaml:"retryMaxRetries"`

	// RetryDelay is the fixed delay, or the initial delay in exponential
	// mode.
	RetryDelay time.Duration `yaml:"retryDelay"`

	// RetryMaxDelay caps the delay between retries in exponential mode.
	RetryMaxDelay time.Duration `yaml:"retryMaxDelay"`

	// RetryTryTimeout bounds a single underlying read attempt.
	RetryTryTimeout time.Duration `yaml:"retryTryTimeout"`

	// TLSInsecureSkipVerify and Proxy are forwarded to the Client as
	// opaque connection settings; the core never interprets them.
	TLSInsecureSkipVerify bool   `yaml:"tlsInsecureSkipVerify"`
	Proxy                 string `yaml:"proxy"`
}

// ============================================================================
// Timing Configuration Model
// ============================================================================
//
// Two timers govern the Load-Balancer Loop:
//
//   - UpdateInterval: how often a running instance renews its leases,
//     observes the shared ownership table, and attempts one new claim.
//   - OwnershipExpiration: how long a lease survives without renewal
//     before a peer is allowed to claim it out from under its holder.
//
// OwnershipExpiration must exceed UpdateInterval by a comfortable margin —
// an instance renews once per UpdateInterval, so an expiration window
// tighter than that would let a transient Store hiccup evict a healthy
// owner. Validate enforces OwnershipExpiration >= 3*UpdateInterval,
// mirroring the margin the teacher's own TTL hierarchy (WorkerIDTTL >=
// HeartbeatTTL >= 2*HeartbeatInterval) uses for the same reason.
//
// ============================================================================

// Options is the configuration for a Processor.
type Options struct {
	// Namespace, EventHubName, and ConsumerGroup scope every Store and
	// Client call this Processor makes.
	Namespace     string `yaml:"namespace"`
	EventHubName  string `yaml:"eventHubName"`
	ConsumerGroup string `yaml:"consumerGroup"`

	// OwnerID identifies this instance in the shared ownership table. If
	// empty, NewProcessor generates one.
	OwnerID string `yaml:"ownerId"`

	// UpdateInterval is the Load-Balancer Loop's cycle pace.
	UpdateInterval time.Duration `yaml:"updateInterval"`

	// OwnershipExpiration is how long an unrenewed lease remains valid.
	OwnershipExpiration time.Duration `yaml:"ownershipExpiration"`

	// StartupTimeout is filled in with a default like the other durations.
	// Processor.Start does not read it: Start returns once the loop
	// goroutine is launched, without waiting for a first cycle.
	StartupTimeout time.Duration `yaml:"startupTimeout"`

	// ShutdownTimeout is filled in with a default like the other durations.
	// Processor.Stop does not read it; Stop waits for the pumps only as
	// long as its own ctx allows.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// Reader controls the Partition Reader's buffering and retry policy.
	Reader ReaderConfig `yaml:"reader"`
}

// DefaultOptions returns an Options with production-sensible defaults. The
// caller must still set Namespace, EventHubName, and ConsumerGroup.
func DefaultOptions() Options {
	return Options{
		UpdateInterval:      10 * time.Second,
		OwnershipExpiration: 30 * time.Second,
		StartupTimeout:      30 * time.Second,
		ShutdownTimeout:     10 * time.Second,
		Reader: ReaderConfig{
			PrefetchCount:   300,
			RetryMode:       RetryExponential,
			RetryMaxRetries: 5,
			RetryDelay:      500 * time.Millisecond,
			RetryMaxDelay:   30 * time.Second,
			RetryTryTimeout: 30 * time.Second,
		},
	}
}

// setDefaults fills in zero-valued fields with DefaultOptions' values.
func (o *Options) setDefaults() {
	d := DefaultOptions()

	if o.UpdateInterval == 0 {
		o.UpdateInterval = d.UpdateInterval
	}
	if o.OwnershipExpiration == 0 {
		o.OwnershipExpiration = d.OwnershipExpiration
	}
	if o.StartupTimeout == 0 {
		o.StartupTimeout = d.StartupTimeout
	}
	if o.ShutdownTimeout == 0 {
		o.ShutdownTimeout = d.ShutdownTimeout
	}
	if o.Reader.PrefetchCount == 0 {
		o.Reader.PrefetchCount = d.Reader.PrefetchCount
	}
	if o.Reader.RetryMaxRetries == 0 {
		o.Reader.RetryMaxRetries = d.Reader.RetryMaxRetries
	}
	if o.Reader.RetryDelay == 0 {
		o.Reader.RetryDelay = d.Reader.RetryDelay
	}
	if o.Reader.RetryMaxDelay == 0 {
		o.Reader.RetryMaxDelay = d.Reader.RetryMaxDelay
	}
	if o.Reader.RetryTryTimeout == 0 {
		o.Reader.RetryTryTimeout = d.Reader.RetryTryTimeout
	}
}

// Validate checks configuration constraints and returns an error
// describing the first violation found.
//
// Hard rules:
//   - Namespace, EventHubName, and ConsumerGroup must be non-empty.
//   - UpdateInterval must be > 0.
//   - OwnershipExpiration must be >= 3*UpdateInterval.
func (o *Options) Validate() error {
	if o.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if o.EventHubName == "" {
		return fmt.Errorf("eventHubName is required")
	}
	if o.ConsumerGroup == "" {
		return fmt.Errorf("consumerGroup is required")
	}
	if o.UpdateInterval <= 0 {
		return fmt.Errorf("updateInterval must be > 0, got %v", o.UpdateInterval)
	}
	if o.OwnershipExpiration < 3*o.UpdateInterval {
		return fmt.Errorf(
			"ownershipExpiration (%v) must be >= 3*updateInterval (%v) to tolerate a missed renewal cycle",
			o.OwnershipExpiration, 3*o.UpdateInterval,
		)
	}

	return nil
}

// ValidateWithWarnings logs non-fatal guidance after Validate has already
// accepted the configuration.
func (o *Options) ValidateWithWarnings(logger Logger) {
	if o.OwnershipExpiration < 5*o.UpdateInterval {
		logger.Warn(
			"ownershipExpiration is below the recommended minimum",
			"ownershipExpiration", o.OwnershipExpiration,
			"updateInterval", o.UpdateInterval,
			"recommended", 5*o.UpdateInterval,
		)
	}
}

// TestOptions returns an Options tuned for fast test execution. Namespace,
// EventHubName, and ConsumerGroup are still left for the caller to set.
func TestOptions() Options {
	o := DefaultOptions()
	o.UpdateInterval = 50 * time.Millisecond
	o.OwnershipExpiration = 200 * time.Millisecond
	o.StartupTimeout = 2 * time.Second
	o.ShutdownTimeout = 2 * time.Second
	o.Reader.RetryDelay = 10 * time.Millisecond
	o.Reader.RetryMaxDelay = 100 * time.Millisecond
	o.Reader.RetryTryTimeout = 1 * time.Second

	return o
}
