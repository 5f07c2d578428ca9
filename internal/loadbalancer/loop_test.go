package loadbalancer_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/eventproc/internal/kvstore"
	"github.com/arloliu/eventproc/internal/loadbalancer"
	"github.com/arloliu/eventproc/internal/types"
	eptest "github.com/arloliu/eventproc/testing"
	"github.com/arloliu/eventproc/transporttest"
)

const (
	testUpdateInterval      = 30 * time.Millisecond
	testOwnershipExpiration = 150 * time.Millisecond
	convergeWait            = 5 * time.Second
	convergeTick            = 20 * time.Millisecond
)

// errCollector gives each test's OnError handler somewhere thread-safe to
// record failures for later assertions.
type errCollector struct {
	mu   sync.Mutex
	errs []error
}

func (c *errCollector) record(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *errCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.errs)
}

func newScopedStore(t *testing.T) types.Store {
	t.Helper()

	_, nc := eptest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)

	store, err := kvstore.New(t.Context(), js, kvstore.Options{})
	require.NoError(t, err)

	return store
}

func newLoop(store types.Store, client types.Client, ownerID string, onEvent types.ProcessEventHandler, collector *errCollector) *loadbalancer.Loop {
	return loadbalancer.New(loadbalancer.Config{
		Client:              client,
		Store:               store,
		Namespace:           client.Namespace(),
		EventHubName:        client.EventHubName(),
		ConsumerGroup:       client.ConsumerGroup(),
		OwnerID:             ownerID,
		OwnershipExpiration: testOwnershipExpiration,
		UpdateInterval:      testUpdateInterval,
		ReaderOptions:       types.ReaderOptions{PrefetchCount: 10},
		RetryOptions:        types.RetryOptions{Mode: types.RetryFixed, MaxRetries: 3, Delay: 5 * time.Millisecond, TryTimeout: 200 * time.Millisecond},
		OnEvent:             onEvent,
		OnError: func(_ context.Context, _ *types.PartitionContext, _ string, err error) {
			if collector != nil {
				collector.record(err)
			}
		},
		StartedAt: time.Now(),
	})
}

func checkpointingHandler() types.ProcessEventHandler {
	return func(ctx context.Context, _ types.PartitionContext, _ types.Event, checkpoint types.CheckpointFunc) error {
		return checkpoint(ctx)
	}
}

func stopLoop(t *testing.T, l *loadbalancer.Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), convergeWait)
	defer cancel()
	require.NoError(t, l.Stop(ctx))
}

func TestSoloInstanceClaimsAllPartitions(t *testing.T) {
	store := newScopedStore(t)
	client := transporttest.NewClient("ns", "hub", "group", []string{"p0", "p1", "p2", "p3"})

	loop := newLoop(store, client, "owner-a", checkpointingHandler(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	defer stopLoop(t, loop)

	require.Eventually(t, func() bool {
		return loop.OwnedPartitionCount() == 4
	}, convergeWait, convergeTick, "solo instance should eventually own all 4 partitions")
}

func TestTwoInstancesConvergeToEvenSplit(t *testing.T) {
	store := newScopedStore(t)
	client := transporttest.NewClient("ns", "hub", "group", []string{"p0", "p1", "p2", "p3"})

	loopA := newLoop(store, client, "owner-a", checkpointingHandler(), nil)
	loopB := newLoop(store, client, "owner-b", checkpointingHandler(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loopA.Run(ctx)
	go loopB.Run(ctx)
	defer stopLoop(t, loopA)
	defer stopLoop(t, loopB)

	require.Eventually(t, func() bool {
		return loopA.OwnedPartitionCount() == 2 && loopB.OwnedPartitionCount() == 2
	}, convergeWait, convergeTick, "two instances over 4 partitions should settle at 2/2")
}

func TestTwoInstancesFailoverAfterOwnershipExpires(t *testing.T) {
	store := newScopedStore(t)
	client := transporttest.NewClient("ns", "hub", "group", []string{"p0", "p1", "p2", "p3"})

	loopA := newLoop(store, client, "owner-a", checkpointingHandler(), nil)
	loopB := newLoop(store, client, "owner-b", checkpointingHandler(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loopA.Run(ctx)
	go loopB.Run(ctx)

	require.Eventually(t, func() bool {
		return loopA.OwnedPartitionCount() == 2 && loopB.OwnedPartitionCount() == 2
	}, convergeWait, convergeTick, "steady state should be 2/2 before failover")

	// Simulate owner-b crashing: stop its loop without releasing leases, so
	// owner-a must wait out OwnershipExpiration before reclaiming them.
	stopLoop(t, loopB)

	require.Eventually(t, func() bool {
		return loopA.OwnedPartitionCount() == 4
	}, convergeWait, convergeTick, "surviving instance should claim all 4 partitions once owner-b's leases expire")
}

func TestThreeInstancesConvergeToQuotaSplit(t *testing.T) {
	store := newScopedStore(t)
	client := transporttest.NewClient("ns", "hub", "group", []string{"p0", "p1", "p2", "p3"})

	loops := []*loadbalancer.Loop{
		newLoop(store, client, "owner-a", checkpointingHandler(), nil),
		newLoop(store, client, "owner-b", checkpointingHandler(), nil),
		newLoop(store, client, "owner-c", checkpointingHandler(), nil),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, l := range loops {
		go l.Run(ctx)
	}
	defer func() {
		for _, l := range loops {
			stopLoop(t, l)
		}
	}()

	require.Eventually(t, func() bool {
		counts := countsOf(loops)
		return sum(counts) == 4 && isBalanced(counts, 1, 2)
	}, convergeWait, convergeTick, "3 instances over 4 partitions should settle at {2,1,1}")
}

func TestThirteenPartitionsThreeInstances(t *testing.T) {
	store := newScopedStore(t)
	ids := make([]string, 13)
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	client := transporttest.NewClient("ns", "hub", "group", ids)

	loops := []*loadbalancer.Loop{
		newLoop(store, client, "owner-a", checkpointingHandler(), nil),
		newLoop(store, client, "owner-b", checkpointingHandler(), nil),
		newLoop(store, client, "owner-c", checkpointingHandler(), nil),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, l := range loops {
		go l.Run(ctx)
	}
	defer func() {
		for _, l := range loops {
			stopLoop(t, l)
		}
	}()

	require.Eventually(t, func() bool {
		counts := countsOf(loops)
		return sum(counts) == 13 && isBalanced(counts, 4, 5)
	}, convergeWait, convergeTick, "13 partitions over 3 instances should settle at {5,4,4}")
}

// TestHandlerFailurePumpRestartsWithoutDisturbingSiblings exercises a
// handler error on one partition and verifies the pump for that partition
// is eventually re-established while pumps for untouched partitions are
// never torn down in the process.
func TestHandlerFailurePumpRestartsWithoutDisturbingSiblings(t *testing.T) {
	store := newScopedStore(t)
	client := transporttest.NewClient("ns", "hub", "group", []string{"p0", "p1"})

	var failOnce sync.Once
	failed := make(chan struct{})

	handler := func(ctx context.Context, pc types.PartitionContext, event types.Event, checkpoint types.CheckpointFunc) error {
		if pc.PartitionID == "p0" && string(event.Body) == "boom" {
			var fired bool
			failOnce.Do(func() {
				fired = true
				close(failed)
			})
			if fired {
				return assertError{}
			}
		}

		return checkpoint(ctx)
	}

	collector := &errCollector{}
	loop := newLoop(store, client, "owner-a", handler, collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	defer stopLoop(t, loop)

	require.Eventually(t, func() bool {
		return loop.OwnedPartitionCount() == 2
	}, convergeWait, convergeTick)

	_, err := client.Publish("p1", []byte("steady"))
	require.NoError(t, err)
	_, err = client.Publish("p0", []byte("boom"))
	require.NoError(t, err)

	select {
	case <-failed:
	case <-time.After(convergeWait):
		t.Fatal("handler failure was never triggered")
	}

	require.Eventually(t, func() bool {
		return collector.count() > 0
	}, convergeWait, convergeTick, "pump failure should be reported via OnError")

	// p0 stays in instanceOwnership across the failure (its lease is never
	// dropped), so Heal restarts it on the very next cycle rather than
	// waiting for the lease to expire and be reclaimed as unclaimed. p1
	// keeps running throughout.
	require.Eventually(t, func() bool {
		return loop.OwnedPartitionCount() == 2
	}, convergeWait, convergeTick, "p0's pump should be restarted without losing p1")

	// The handler error is reported exactly once: by the pump itself, not
	// again by the Loop's reap.
	require.Eventually(t, func() bool {
		return collector.count() == 1
	}, convergeWait, convergeTick, "a single handler failure must be reported to onError exactly once")
}

// TestCheckpointHonoredAfterRestart verifies a partition resumes after the
// last checkpointed event rather than replaying from the beginning.
func TestCheckpointHonoredAfterRestart(t *testing.T) {
	store := newScopedStore(t)
	client := transporttest.NewClient("ns", "hub", "group", []string{"p0"})

	var mu sync.Mutex
	var delivered []string
	var failNext bool

	handler := func(ctx context.Context, _ types.PartitionContext, event types.Event, checkpoint types.CheckpointFunc) error {
		mu.Lock()
		shouldFail := failNext && string(event.Body) == "third"
		if shouldFail {
			failNext = false
		}
		mu.Unlock()

		if shouldFail {
			return assertError{}
		}

		mu.Lock()
		delivered = append(delivered, string(event.Body))
		mu.Unlock()

		return checkpoint(ctx)
	}

	loop := newLoop(store, client, "owner-a", handler, &errCollector{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	defer stopLoop(t, loop)

	require.Eventually(t, func() bool {
		return loop.OwnedPartitionCount() == 1
	}, convergeWait, convergeTick)

	_, err := client.Publish("p0", []byte("first"))
	require.NoError(t, err)
	_, err = client.Publish("p0", []byte("second"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(delivered) == 2
	}, convergeWait, convergeTick, "first two events should be checkpointed before the failure")

	mu.Lock()
	failNext = true
	mu.Unlock()

	_, err = client.Publish("p0", []byte("third"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		for _, b := range delivered {
			if b == "third" {
				return true
			}
		}

		return false
	}, convergeWait, convergeTick, "restart should resume from the checkpoint and redeliver the failed event, not replay from the start")

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second", "third"}, delivered, "no event should be replayed out of order or duplicated")
}

type assertError struct{}

func (assertError) Error() string { return "handler rejected event" }

func countsOf(loops []*loadbalancer.Loop) []int {
	counts := make([]int, len(loops))
	for i, l := range loops {
		counts[i] = l.OwnedPartitionCount()
	}

	return counts
}

func sum(counts []int) int {
	total := 0
	for _, c := range counts {
		total += c
	}

	return total
}

// isBalanced reports whether every count is within [min, max]; with the
// callers' max = min+1 this also means no two counts differ by more than 1.
func isBalanced(counts []int, minPerOwner, maxPerOwner int) bool {
	sorted := append([]int(nil), counts...)
	sort.Ints(sorted)
	for _, c := range sorted {
		if c < minPerOwner || c > maxPerOwner {
			return false
		}
	}

	return true
}
