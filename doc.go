// Package eventproc implements a cooperative, durable event-stream
// processor for a partitioned pub/sub log.
//
// Multiple Processor instances sharing a Store and a Client coordinate
// partition ownership without a leader: each instance independently
// renews what it holds, observes the shared ownership table, and claims
// at most one additional partition per cycle until load settles across
// the fleet. Ownership is a lease, not a lock — a crashed or partitioned
// instance's leases simply expire and are picked up by a peer.
//
// # Quick Start
//
//	opts := eventproc.DefaultOptions()
//	opts.Namespace = "orders"
//	opts.EventHubName = "orders-events"
//	opts.ConsumerGroup = "$Default"
//
//	proc, err := eventproc.NewProcessor(store, client, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	proc.SetProcessEventHandler(func(ctx context.Context, pc eventproc.PartitionContext, event eventproc.Event, checkpoint eventproc.CheckpointFunc) error {
//	    // handle event.Body
//	    return checkpoint(ctx)
//	})
//	proc.SetProcessErrorHandler(func(ctx context.Context, pc *eventproc.PartitionContext, operation string, err error) {
//	    log.Printf("%s: %v", operation, err)
//	})
//
//	if err := proc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer proc.Stop(context.Background())
//
// # Architecture
//
// Five pieces cooperate per instance:
//
//	Store             — shared checkpoint/ownership table (optimistic concurrency)
//	Partition Reader   — per-partition transport link with retry-and-reopen
//	Partition Pump     — drives one partition's reader into the user handler
//	Load-Balancer Loop — renews, heals, observes, and claims on a fixed cadence
//	Processor          — the façade applications construct and call Start/Stop on
//
// The transporttest package provides an in-memory Client for running a
// Processor without a broker.
package eventproc
