package distributed

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-estoria/catchup"
	"github.com/go-estoria/catchup/distributor"
)

// A MultiStreamCatchup catches up partitions whose contents are themselves
// streams of streams, under lease protection. The unit of leased work is
// draining a partition's inner streams completely, and each leased cycle
// operates on a private snapshot of the subscription registry so concurrent
// partitions never share registry internals.
type MultiStreamCatchup[D, C, U any, P comparable] struct {
	distributor       distributor.Distributor[P]
	streams           catchup.PartitionedStream[catchup.Stream[D, C], U, P]
	cursors           catchup.FetchAndSaver[P, C]
	registry          *catchup.Registry[D, C]
	compareUpstream   catchup.Comparer[U]
	compareDownstream catchup.Comparer[C]
	batchSize         int

	log catchup.Logger
}

// NewMultiStreamCatchup creates a distributed multi-stream catch-up. Each
// partition's stream yields sub-streams; the persisted per-partition cursor
// is the downstream position shared by that partition's inner pumps. The
// catch-up registers itself as the distributor's lease handler.
func NewMultiStreamCatchup[D, C, U any, P comparable](
	dist distributor.Distributor[P],
	streams catchup.PartitionedStream[catchup.Stream[D, C], U, P],
	cursors catchup.FetchAndSaver[P, C],
	registry *catchup.Registry[D, C],
	compareUpstream catchup.Comparer[U],
	compareDownstream catchup.Comparer[C],
	opts ...MultiStreamCatchupOption[D, C, U, P],
) (*MultiStreamCatchup[D, C, U, P], error) {
	switch {
	case dist == nil:
		return nil, catchup.InitializationError{Err: errors.New("distributor is required")}
	case streams == nil:
		return nil, catchup.InitializationError{Err: errors.New("partitioned stream is required")}
	case cursors == nil:
		return nil, catchup.InitializationError{Err: errors.New("cursor store is required")}
	case registry == nil:
		return nil, catchup.InitializationError{Err: errors.New("subscription registry is required")}
	case compareUpstream == nil:
		return nil, catchup.InitializationError{Err: errors.New("upstream position comparer is required")}
	case compareDownstream == nil:
		return nil, catchup.InitializationError{Err: errors.New("downstream position comparer is required")}
	}

	c := &MultiStreamCatchup[D, C, U, P]{
		distributor:       dist,
		streams:           streams,
		cursors:           cursors,
		registry:          registry,
		compareUpstream:   compareUpstream,
		compareDownstream: compareDownstream,
		batchSize:         catchup.DefaultBatchSize,
		log:               catchup.GetLogger().WithGroup("distributed"),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, catchup.InitializationError{Err: err}
		}
	}

	dist.OnReceive(c.onLease)

	return c, nil
}

// RunSingleBatch performs one full pass over the known partitions, issuing
// one lease per partition; each lease fully drains its partition's inner
// streams. The returned cursor is fresh and unattached; authoritative
// progress lives in per-partition durable state.
func (c *MultiStreamCatchup[D, C, U, P]) RunSingleBatch(ctx context.Context) (*catchup.Cursor[C], error) {
	if err := distributeFullPass[P](ctx, c.distributor); err != nil {
		return nil, err
	}

	var zero C
	return catchup.NewCursor(zero, c.compareDownstream), nil
}

// onLease drains the leased partition: fetch the durable downstream cursor,
// run a multi-stream pump to caught-up over the partition's stream of
// streams, persist the advanced downstream position.
func (c *MultiStreamCatchup[D, C, U, P]) onLease(ctx context.Context, lease *distributor.Lease[P]) error {
	partition := lease.Resource()

	_, err := c.cursors.FetchAndSave(ctx, partition, func(old C, exists bool) (C, error) {
		downstream := catchup.NewCursor(old, c.compareDownstream)
		if !exists {
			c.log.Debug("no durable cursor, starting fresh", "partition", partition)
		}

		upstream, err := c.streams.GetStream(ctx, partition)
		if err != nil {
			return old, catchup.QuerySourceError{Err: fmt.Errorf("getting stream for partition %v: %w", partition, err)}
		}

		var zeroU U
		pump, err := catchup.NewMultiStreamCatchup(
			upstream,
			catchup.NewCursor(zeroU, c.compareUpstream),
			downstream,
			c.registry.Snapshot(),
			catchup.WithMultiStreamBatchSize[D, C, U](c.batchSize),
			catchup.WithMultiStreamLogger[D, C, U](c.log),
		)
		if err != nil {
			return old, err
		}

		if _, err := pump.RunUntilCaughtUp(ctx); err != nil {
			return old, err
		}

		return downstream.Position(), nil
	})

	return err
}

// A MultiStreamCatchupOption configures a distributed MultiStreamCatchup.
type MultiStreamCatchupOption[D, C, U any, P comparable] func(*MultiStreamCatchup[D, C, U, P]) error

// WithMultiStreamBatchSize sets the number of items pulled per query within
// a leased drain.
func WithMultiStreamBatchSize[D, C, U any, P comparable](size int) MultiStreamCatchupOption[D, C, U, P] {
	return func(c *MultiStreamCatchup[D, C, U, P]) error {
		if size < 1 {
			return errors.New("batch size must be positive")
		}

		c.batchSize = size
		return nil
	}
}

// WithMultiStreamLogger sets the logger for the catch-up.
func WithMultiStreamLogger[D, C, U any, P comparable](log catchup.Logger) MultiStreamCatchupOption[D, C, U, P] {
	return func(c *MultiStreamCatchup[D, C, U, P]) error {
		if log == nil {
			return errors.New("logger cannot be nil")
		}

		c.log = log
		return nil
	}
}
