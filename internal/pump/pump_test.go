package pump_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/eventproc/internal/pump"
	"github.com/arloliu/eventproc/internal/types"
	"github.com/arloliu/eventproc/transporttest"
)

// fakeStore records checkpoints in memory; it ignores ownership entirely
// since the pump never touches it.
type fakeStore struct {
	mu          sync.Mutex
	checkpoints []types.Checkpoint
}

func (s *fakeStore) ListOwnership(context.Context, string, string, string) ([]types.PartitionOwnership, error) {
	return nil, nil
}
func (s *fakeStore) ClaimOwnership(_ context.Context, o []types.PartitionOwnership) ([]types.PartitionOwnership, error) {
	return o, nil
}
func (s *fakeStore) ListCheckpoints(context.Context, string, string, string) ([]types.Checkpoint, error) {
	return nil, nil
}
func (s *fakeStore) UpdateCheckpoint(_ context.Context, cp types.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints = append(s.checkpoints, cp)

	return nil
}

func (s *fakeStore) last() (types.Checkpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.checkpoints) == 0 {
		return types.Checkpoint{}, false
	}

	return s.checkpoints[len(s.checkpoints)-1], true
}

func newTestDeps(store *fakeStore, client *transporttest.Client, onEvent types.ProcessEventHandler) pump.Deps {
	return pump.Deps{
		Client:        client,
		Store:         store,
		Namespace:     client.Namespace(),
		EventHubName:  client.EventHubName(),
		ConsumerGroup: client.ConsumerGroup(),
		ReaderOptions: types.ReaderOptions{PrefetchCount: 10},
		RetryOptions:  types.RetryOptions{TryTimeout: 200 * time.Millisecond},
		OnEvent:       onEvent,
		OnError:       func(context.Context, *types.PartitionContext, string, error) {},
		OnInitializing: func(context.Context, string, *types.EventPosition) error {
			return nil
		},
		OnClosing: func(context.Context, string, types.CloseReason) error { return nil },
	}
}

func TestPumpProcessesPublishedEvents(t *testing.T) {
	client := transporttest.NewClient("ns", "hub", "group", []string{"p0"})
	store := &fakeStore{}

	var mu sync.Mutex
	var seen []types.Event
	onEvent := func(ctx context.Context, _ types.PartitionContext, event types.Event, checkpoint types.CheckpointFunc) error {
		mu.Lock()
		seen = append(seen, event)
		mu.Unlock()

		return checkpoint(ctx)
	}

	p := pump.New(t.Context(), "p0", nil, newTestDeps(store, client, onEvent))
	p.Start()
	defer func() { _ = p.Stop(t.Context(), types.CloseShutdown) }()

	_, err := client.Publish("p0", []byte("hello"))
	require.NoError(t, err)
	_, err = client.Publish("p0", []byte("world"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(seen) == 2
	}, time.Second, 5*time.Millisecond)

	cp, ok := store.last()
	require.True(t, ok)
	assert.Equal(t, int64(2), cp.SequenceNumber)
}

func TestPumpStopTerminatesCleanly(t *testing.T) {
	client := transporttest.NewClient("ns", "hub", "group", []string{"p0"})
	store := &fakeStore{}

	onEvent := func(ctx context.Context, _ types.PartitionContext, _ types.Event, checkpoint types.CheckpointFunc) error {
		return checkpoint(ctx)
	}

	p := pump.New(t.Context(), "p0", nil, newTestDeps(store, client, onEvent))
	p.Start()

	err := p.Stop(t.Context(), types.CloseShutdown)
	require.NoError(t, err)
	assert.True(t, p.IsDone())
	assert.NoError(t, p.Err())
}

func TestPumpFailsOnHandlerError(t *testing.T) {
	client := transporttest.NewClient("ns", "hub", "group", []string{"p0"})
	store := &fakeStore{}

	boom := assert.AnError
	onEvent := func(context.Context, types.PartitionContext, types.Event, types.CheckpointFunc) error {
		return boom
	}

	p := pump.New(t.Context(), "p0", nil, newTestDeps(store, client, onEvent))
	p.Start()

	_, err := client.Publish("p0", []byte("trigger"))
	require.NoError(t, err)

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("pump did not terminate after handler error")
	}

	assert.ErrorIs(t, p.Err(), boom)
}
