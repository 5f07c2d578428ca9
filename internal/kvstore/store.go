// Package kvstore implements the checkpoint/ownership Store on top of NATS
// JetStream key-value buckets, using compare-and-set updates for the
// optimistic-concurrency semantics the core requires.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/eventproc/internal/kvutil"
	"github.com/arloliu/eventproc/internal/logging"
	"github.com/arloliu/eventproc/internal/metrics"
	"github.com/arloliu/eventproc/internal/natsutil"
	"github.com/arloliu/eventproc/internal/types"
)

// Options configures the two KV buckets the Store provisions.
type Options struct {
	// OwnershipBucket names the bucket backing ownership leases. Defaults
	// to "eventproc-ownership".
	OwnershipBucket string

	// CheckpointBucket names the bucket backing checkpoints. Defaults to
	// "eventproc-checkpoints".
	CheckpointBucket string

	// BucketSetupRetries bounds EnsureKVBucketWithRetry's attempts.
	BucketSetupRetries int

	Logger  types.Logger
	Metrics types.MetricsCollector
}

func (o *Options) setDefaults() {
	if o.OwnershipBucket == "" {
		o.OwnershipBucket = "eventproc-ownership"
	}
	if o.CheckpointBucket == "" {
		o.CheckpointBucket = "eventproc-checkpoints"
	}
	if o.BucketSetupRetries <= 0 {
		o.BucketSetupRetries = 3
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewNop()
	}
}

// Store is the NATS JetStream KV-backed types.Store implementation.
type Store struct {
	ownership   jetstream.KeyValue
	checkpoints jetstream.KeyValue
	logger      types.Logger
	metrics     types.MetricsCollector
}

// observe records a Store call's duration and, on failure, classifies the
// error via natsutil.IsTransient so RecordStoreOperationError's "kind"
// label lines up with the Partition Reader's transient/permanent split.
func (s *Store) observe(operation string, start time.Time, err error) {
	s.metrics.RecordStoreOperationDuration(operation, time.Since(start).Seconds())
	if err == nil {
		return
	}

	kind := types.KindPermanent
	if natsutil.IsTransient(err) {
		kind = types.KindTransient
	}
	s.metrics.RecordStoreOperationError(operation, kind.String())
}

// New provisions (or opens) the two backing buckets and returns a ready
// Store.
func New(ctx context.Context, js jetstream.JetStream, opts Options) (*Store, error) {
	opts.setDefaults()

	ownership, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket: opts.OwnershipBucket,
	}, opts.BucketSetupRetries)
	if err != nil {
		return nil, fmt.Errorf("provision ownership bucket: %w", err)
	}

	checkpoints, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket: opts.CheckpointBucket,
	}, opts.BucketSetupRetries)
	if err != nil {
		return nil, fmt.Errorf("provision checkpoint bucket: %w", err)
	}

	return &Store{ownership: ownership, checkpoints: checkpoints, logger: opts.Logger, metrics: opts.Metrics}, nil
}

// ownershipValue is the JSON payload stored for one ownership key. The
// scope fields (namespace/hub/group/partition) are re-derived from the key
// itself on read, so the payload only needs what the Store can't recover
// from the key.
type ownershipValue struct {
	OwnerID      string    `json:"ownerid"`
	LastModified time.Time `json:"lastmodified"`
}

type checkpointValue struct {
	Offset         int64 `json:"offset"`
	SequenceNumber int64 `json:"sequencenumber"`
}

func ownershipKey(namespace, eventHubName, consumerGroup, partitionID string) string {
	return strings.Join([]string{sanitize(namespace), sanitize(eventHubName), sanitize(consumerGroup), sanitize(partitionID)}, ".")
}

// sanitize maps characters NATS subjects treat specially (dot, space,
// wildcard) to underscores so scope identifiers can't collide with the key
// hierarchy separator.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '*', '>':
			return '_'
		default:
			return r
		}
	}, s)
}

// ListOwnership returns every ownership record under the given scope,
// including expired ones — expiry is a matter of interpretation by the
// caller (types.PartitionOwnership.Active), not deletion by the Store.
func (s *Store) ListOwnership(ctx context.Context, namespace, eventHubName, consumerGroup string) (result []types.PartitionOwnership, err error) {
	start := time.Now()
	defer func() { s.observe("ListOwnership", start, err) }()

	prefix := ownershipKey(namespace, eventHubName, consumerGroup, "")

	lister, err := s.ownership.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("list ownership keys: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	for key := range lister.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		entry, err := s.ownership.Get(ctx, key)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}

			return nil, fmt.Errorf("get ownership %s: %w", key, err)
		}

		var v ownershipValue
		if err := json.Unmarshal(entry.Value(), &v); err != nil {
			return nil, fmt.Errorf("decode ownership %s: %w", key, err)
		}

		result = append(result, types.PartitionOwnership{
			Namespace:     namespace,
			EventHubName:  eventHubName,
			ConsumerGroup: consumerGroup,
			PartitionID:   strings.TrimPrefix(key, prefix),
			OwnerID:       v.OwnerID,
			LastModified:  v.LastModified,
			ETag:          strconv.FormatUint(entry.Revision(), 10),
		})
	}

	return result, nil
}

// ClaimOwnership attempts a compare-and-set write for each ownership in the
// batch. An entry with an empty ETag is a first claim, attempted via
// Create so two racing claimants can't both succeed. An entry with a
// non-empty ETag is a renewal or a contested claim, attempted via Update
// against that exact revision. Entries that lose the race are omitted from
// the result, never returned as an error.
func (s *Store) ClaimOwnership(ctx context.Context, ownerships []types.PartitionOwnership) (result []types.PartitionOwnership, err error) {
	start := time.Now()
	defer func() { s.observe("ClaimOwnership", start, err) }()

	result = make([]types.PartitionOwnership, 0, len(ownerships))

	for _, o := range ownerships {
		key := ownershipKey(o.Namespace, o.EventHubName, o.ConsumerGroup, o.PartitionID)
		now := time.Now()
		payload, err := json.Marshal(ownershipValue{OwnerID: o.OwnerID, LastModified: now})
		if err != nil {
			return nil, fmt.Errorf("encode ownership %s: %w", key, err)
		}

		var revision uint64
		if o.ETag == "" {
			revision, err = s.ownership.Create(ctx, key, payload)
			if err != nil {
				if errors.Is(err, jetstream.ErrKeyExists) {
					s.logger.Debug("claim lost race, key already exists", "key", key)

					continue
				}

				return nil, fmt.Errorf("create ownership %s: %w", key, err)
			}
		} else {
			priorRevision, parseErr := strconv.ParseUint(o.ETag, 10, 64)
			if parseErr != nil {
				return nil, fmt.Errorf("malformed etag %q for %s: %w", o.ETag, key, parseErr)
			}

			revision, err = s.ownership.Update(ctx, key, payload, priorRevision)
			if err != nil {
				if isRevisionMismatch(err) {
					s.logger.Debug("renewal lost race, revision changed", "key", key)

					continue
				}
				if errors.Is(err, jetstream.ErrKeyNotFound) {
					s.logger.Debug("renewal target no longer exists", "key", key)

					continue
				}

				return nil, fmt.Errorf("update ownership %s: %w", key, err)
			}
		}

		result = append(result, types.PartitionOwnership{
			Namespace:     o.Namespace,
			EventHubName:  o.EventHubName,
			ConsumerGroup: o.ConsumerGroup,
			PartitionID:   o.PartitionID,
			OwnerID:       o.OwnerID,
			LastModified:  now,
			ETag:          strconv.FormatUint(revision, 10),
		})
	}

	return result, nil
}

// isRevisionMismatch reports whether err is JetStream's "wrong last
// sequence" CAS-conflict error, which is surfaced as a plain API error
// rather than a named sentinel.
func isRevisionMismatch(err error) bool {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}

	return false
}

func checkpointKey(namespace, eventHubName, consumerGroup, partitionID string) string {
	return ownershipKey(namespace, eventHubName, consumerGroup, partitionID)
}

// ListCheckpoints returns every checkpoint under the given scope.
func (s *Store) ListCheckpoints(ctx context.Context, namespace, eventHubName, consumerGroup string) (result []types.Checkpoint, err error) {
	start := time.Now()
	defer func() { s.observe("ListCheckpoints", start, err) }()

	prefix := checkpointKey(namespace, eventHubName, consumerGroup, "")

	lister, err := s.checkpoints.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("list checkpoint keys: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	for key := range lister.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		entry, err := s.checkpoints.Get(ctx, key)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}

			return nil, fmt.Errorf("get checkpoint %s: %w", key, err)
		}

		var v checkpointValue
		if err := json.Unmarshal(entry.Value(), &v); err != nil {
			return nil, fmt.Errorf("decode checkpoint %s: %w", key, err)
		}

		result = append(result, types.Checkpoint{
			Namespace:      namespace,
			EventHubName:   eventHubName,
			ConsumerGroup:  consumerGroup,
			PartitionID:    strings.TrimPrefix(key, prefix),
			Offset:         v.Offset,
			SequenceNumber: v.SequenceNumber,
		})
	}

	return result, nil
}

// UpdateCheckpoint writes unconditionally; the Store does not enforce
// monotonicity, per the core's checkpoint contract.
func (s *Store) UpdateCheckpoint(ctx context.Context, checkpoint types.Checkpoint) (err error) {
	start := time.Now()
	defer func() { s.observe("UpdateCheckpoint", start, err) }()

	key := checkpointKey(checkpoint.Namespace, checkpoint.EventHubName, checkpoint.ConsumerGroup, checkpoint.PartitionID)
	payload, err := json.Marshal(checkpointValue{Offset: checkpoint.Offset, SequenceNumber: checkpoint.SequenceNumber})
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", key, err)
	}

	if _, err := s.checkpoints.Put(ctx, key, payload); err != nil {
		return fmt.Errorf("put checkpoint %s: %w", key, err)
	}

	return nil
}

var _ types.Store = (*Store)(nil)
