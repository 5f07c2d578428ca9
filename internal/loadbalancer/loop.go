// Package loadbalancer implements the cooperative, leaderless partition
// distribution loop: each running instance independently renews what it
// holds, observes the global ownership table, and claims at most one
// additional partition per cycle until the table is balanced.
package loadbalancer

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/eventproc/internal/pump"
	"github.com/arloliu/eventproc/internal/types"
)

// Config bundles everything the Loop needs to run one instance's share of
// the cooperative balancing algorithm.
type Config struct {
	Client types.Client
	Store  types.Store

	Namespace     string
	EventHubName  string
	ConsumerGroup string
	OwnerID       string

	OwnershipExpiration time.Duration
	UpdateInterval      time.Duration

	ReaderOptions types.ReaderOptions
	RetryOptions  types.RetryOptions

	OnEvent        types.ProcessEventHandler
	OnError        types.ProcessErrorHandler
	OnInitializing types.PartitionInitializingHandler
	OnClosing      types.PartitionClosingHandler

	Logger  types.Logger
	Metrics types.MetricsCollector

	// StartedAt seeds the per-instance tie-break picker; distinct instances
	// started at the same wall-clock instant still draw independent streams
	// because OwnerID is mixed into the seed too.
	StartedAt time.Time
}

// Loop runs the renew/reap/heal/observe/enumerate/claim/pace cycle on the
// calling goroutine until its context is cancelled.
type Loop struct {
	cfg    Config
	picker *picker

	// instanceOwnership is touched only from the loop goroutine; no lock
	// needed as long as Run is never called concurrently with itself.
	instanceOwnership map[string]types.PartitionOwnership
	lastKnownETag     map[string]string

	pumps *xsync.Map[string, *pump.Pump]

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// New constructs a Loop. Call Run to start it.
func New(cfg Config) *Loop {
	return &Loop{
		cfg:               cfg,
		picker:            newPicker(cfg.OwnerID, cfg.StartedAt),
		instanceOwnership: make(map[string]types.PartitionOwnership),
		lastKnownETag:     make(map[string]string),
		pumps:             xsync.NewMap[string, *pump.Pump](),
		done:              make(chan struct{}),
	}
}

// Run executes cycles until ctx is cancelled, then stops every owned pump
// and returns.
func (l *Loop) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	defer close(l.done)

	for {
		start := time.Now()

		if runCtx.Err() != nil {
			l.shutdownPumps()

			return
		}

		l.cycle(runCtx)

		if l.cfg.Metrics != nil {
			l.cfg.Metrics.RecordCycleDuration(time.Since(start).Seconds())
			l.cfg.Metrics.RecordOwnedPartitions(len(l.instanceOwnership))
		}

		l.pace(runCtx, start)

		if runCtx.Err() != nil {
			l.shutdownPumps()

			return
		}
	}
}

// Stop cancels the loop and blocks until it (and every pump it owns) has
// fully stopped, or ctx is done first.
func (l *Loop) Stop(ctx context.Context) error {
	l.stopOnce.Do(func() {
		if l.cancel != nil {
			l.cancel()
		}
	})

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActivePartitions returns the partition ids this instance currently owns
// a running pump for.
func (l *Loop) ActivePartitions() []string {
	var ids []string
	l.pumps.Range(func(id string, _ *pump.Pump) bool {
		ids = append(ids, id)

		return true
	})

	return ids
}

// OwnedPartitionCount returns len(ActivePartitions()) without allocating.
func (l *Loop) OwnedPartitionCount() int {
	return l.pumps.Size()
}

func (l *Loop) cycle(ctx context.Context) {
	l.renew(ctx)
	l.reap(ctx)
	l.heal(ctx)

	active, allPartitions, err := l.observe(ctx)
	if err != nil {
		l.cfg.OnError(ctx, nil, "ListOwnership", err)

		return
	}

	mine, minPerOwner, maxPerOwner, counts := l.enumerate(active, allPartitions)
	l.claim(ctx, allPartitions, active, mine, minPerOwner, maxPerOwner, counts)
}

// renew re-presents every owned lease's ETag to the Store. A lease that
// loses the CAS race is treated as already lost: the owning pump is torn
// down with CloseOwnershipLost and the record dropped from
// instanceOwnership. Leases are never explicitly surrendered on shutdown —
// they simply stop being renewed and expire on their own.
func (l *Loop) renew(ctx context.Context) {
	if len(l.instanceOwnership) == 0 {
		return
	}

	batch := make([]types.PartitionOwnership, 0, len(l.instanceOwnership))
	for _, o := range l.instanceOwnership {
		batch = append(batch, o)
	}

	renewed, err := l.cfg.Store.ClaimOwnership(ctx, batch)
	if err != nil {
		l.cfg.OnError(ctx, nil, "RenewOwnership", err)
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.RecordRenewal(false)
		}

		return
	}

	survivors := make(map[string]struct{}, len(renewed))
	for _, o := range renewed {
		survivors[o.PartitionID] = struct{}{}
		l.instanceOwnership[o.PartitionID] = o
		l.lastKnownETag[o.PartitionID] = o.ETag
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.RecordRenewal(true)
		}
	}

	for id := range l.instanceOwnership {
		if _, ok := survivors[id]; ok {
			continue
		}
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.RecordRenewal(false)
		}
		l.retirePartition(ctx, id, types.CloseOwnershipLost)
		delete(l.instanceOwnership, id)
	}
}

// reap drops the pump handle for any pump that has stopped on its own (the
// handler terminated it, or it hit a permanent transport error), leaving
// the partition in instanceOwnership so Heal restarts it on this very
// cycle and Renew keeps its lease alive in the meantime. The pump itself
// already reported its own error to onError before terminating; reap does
// not report it again.
func (l *Loop) reap(_ context.Context) {
	var finished []string
	l.pumps.Range(func(id string, p *pump.Pump) bool {
		if p.IsDone() {
			finished = append(finished, id)
		}

		return true
	})

	for _, id := range finished {
		l.pumps.LoadAndDelete(id)
	}
}

// heal starts a pump for every partition this instance owns but has no
// running pump for (newly claimed partitions, and partitions reaped above
// that are still owned and worth retrying).
func (l *Loop) heal(ctx context.Context) {
	for id := range l.instanceOwnership {
		l.startPumpIfAbsent(ctx, id)
	}
}

// startPumpIfAbsent starts a pump for partitionID unless one is already
// running. Called from Heal for every owned partition once per cycle, and
// inline from Claim so a freshly claimed partition starts reading
// immediately rather than waiting for next cycle's Heal.
func (l *Loop) startPumpIfAbsent(ctx context.Context, partitionID string) {
	if _, ok := l.pumps.Load(partitionID); ok {
		return
	}

	checkpoint := l.loadCheckpoint(ctx, partitionID)

	p := pump.New(ctx, partitionID, checkpoint, pump.Deps{
		Client:         l.cfg.Client,
		Store:          l.cfg.Store,
		Namespace:      l.cfg.Namespace,
		EventHubName:   l.cfg.EventHubName,
		ConsumerGroup:  l.cfg.ConsumerGroup,
		ReaderOptions:  l.cfg.ReaderOptions,
		RetryOptions:   l.cfg.RetryOptions,
		OnEvent:        l.cfg.OnEvent,
		OnError:        l.cfg.OnError,
		OnInitializing: l.cfg.OnInitializing,
		OnClosing:      l.cfg.OnClosing,
		Logger:         l.cfg.Logger,
		Metrics:        l.cfg.Metrics,
	})
	l.pumps.Store(partitionID, p)
	p.Start()
}

func (l *Loop) loadCheckpoint(ctx context.Context, partitionID string) *types.Checkpoint {
	checkpoints, err := l.cfg.Store.ListCheckpoints(ctx, l.cfg.Namespace, l.cfg.EventHubName, l.cfg.ConsumerGroup)
	if err != nil {
		l.cfg.OnError(ctx, nil, "ListCheckpoints", err)

		return nil
	}

	for _, c := range checkpoints {
		if c.PartitionID == partitionID {
			return &c
		}
	}

	return nil
}

// observe fetches the global ownership table and the event hub's current
// partition set.
func (l *Loop) observe(ctx context.Context) (active []types.PartitionOwnership, allPartitions []string, err error) {
	all, err := l.cfg.Store.ListOwnership(ctx, l.cfg.Namespace, l.cfg.EventHubName, l.cfg.ConsumerGroup)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	active = make([]types.PartitionOwnership, 0, len(all))
	for _, o := range all {
		// Record the token even for an expired record: it is still the most
		// recent one the store holds, and ClaimOwnership needs it to present
		// an Update rather than a Create against a key that already exists.
		l.lastKnownETag[o.PartitionID] = o.ETag
		if o.Active(now, l.cfg.OwnershipExpiration) {
			active = append(active, o)
		}
	}

	allPartitions, err = l.cfg.Client.GetPartitionIDs(ctx)
	if err != nil {
		l.cfg.OnError(ctx, nil, "GetPartitionIds", err)

		return active, nil, nil
	}

	return active, allPartitions, nil
}

func (l *Loop) enumerate(active []types.PartitionOwnership, allPartitions []string) (mine, minPerOwner, maxPerOwner int, counts map[string]int) {
	counts = ownerCounts(active)
	mine = counts[l.cfg.OwnerID]

	ownerSet := make(map[string]struct{}, len(counts)+1)
	for owner := range counts {
		ownerSet[owner] = struct{}{}
	}
	ownerSet[l.cfg.OwnerID] = struct{}{}

	minPerOwner, maxPerOwner = quota(len(allPartitions), len(ownerSet))

	return mine, minPerOwner, maxPerOwner, counts
}

// claim attempts at most one new claim this cycle, per §4.4 Phase F: an
// instance that is not eligible, or for which no victim exists, claims
// nothing and waits for the next cycle.
func (l *Loop) claim(
	ctx context.Context,
	allPartitions []string,
	active []types.PartitionOwnership,
	mine, minPerOwner, maxPerOwner int,
	counts map[string]int,
) {
	if allPartitions == nil {
		return
	}

	if !claimEligible(mine, minPerOwner, counts, l.cfg.OwnerID) {
		return
	}

	target, ok := selectClaimTarget(l.picker, allPartitions, active, l.lastKnownETag, mine, minPerOwner, maxPerOwner, counts)
	if !ok {
		return
	}

	claimed, err := l.cfg.Store.ClaimOwnership(ctx, []types.PartitionOwnership{{
		Namespace:     l.cfg.Namespace,
		EventHubName:  l.cfg.EventHubName,
		ConsumerGroup: l.cfg.ConsumerGroup,
		PartitionID:   target.partitionID,
		OwnerID:       l.cfg.OwnerID,
		ETag:          target.priorETag,
	}})
	if err != nil {
		l.cfg.OnError(ctx, nil, "ClaimOwnership", err)
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.RecordClaimAttempt(target.reason, false)
		}

		return
	}

	success := len(claimed) == 1
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.RecordClaimAttempt(target.reason, success)
	}
	if !success {
		return
	}

	l.instanceOwnership[target.partitionID] = claimed[0]
	l.lastKnownETag[target.partitionID] = claimed[0].ETag
	l.startPumpIfAbsent(ctx, target.partitionID)
}

// pace sleeps out the remainder of UpdateInterval since start, or returns
// immediately if ctx is cancelled first.
func (l *Loop) pace(ctx context.Context, start time.Time) {
	remaining := l.cfg.UpdateInterval - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (l *Loop) retirePartition(ctx context.Context, partitionID string, reason types.CloseReason) {
	if p, ok := l.pumps.LoadAndDelete(partitionID); ok {
		_ = p.Stop(ctx, reason)
	}
}

// shutdownPumps stops every running pump in parallel and waits for all of
// them, then clears instanceOwnership (the leases themselves are left
// alone to expire naturally).
func (l *Loop) shutdownPumps() {
	var wg sync.WaitGroup
	l.pumps.Range(func(id string, p *pump.Pump) bool {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Stop(context.Background(), types.CloseShutdown)
		}()

		return true
	})
	wg.Wait()

	l.pumps.Clear()
	l.instanceOwnership = make(map[string]types.PartitionOwnership)
}
