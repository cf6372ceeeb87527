// Package distributed composes catch-up pumps with a lease distributor and a
// durable per-partition cursor store, so concurrent workers make progress
// across partitions with at most one worker per partition at a time.
package distributed

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-estoria/catchup"
	"github.com/go-estoria/catchup/distributor"
)

// A SingleStreamCatchup catches up partitions of a partitioned stream under
// lease protection. One granted lease corresponds to exactly one bounded unit
// of work (a single batch), keeping progress fair across partitions.
type SingleStreamCatchup[D, C any, P comparable] struct {
	distributor distributor.Distributor[P]
	streams     catchup.PartitionedStream[D, C, P]
	cursors     catchup.FetchAndSaver[P, C]
	registry    *catchup.Registry[D, C]
	compare     catchup.Comparer[C]
	batchSize   int

	log catchup.Logger
}

// NewSingleStreamCatchup creates a distributed single-stream catch-up over
// the given partitioned stream. The registry is read-shared across
// concurrently leased partitions. The catch-up registers itself as the
// distributor's lease handler.
func NewSingleStreamCatchup[D, C any, P comparable](
	dist distributor.Distributor[P],
	streams catchup.PartitionedStream[D, C, P],
	cursors catchup.FetchAndSaver[P, C],
	registry *catchup.Registry[D, C],
	compare catchup.Comparer[C],
	opts ...SingleStreamCatchupOption[D, C, P],
) (*SingleStreamCatchup[D, C, P], error) {
	switch {
	case dist == nil:
		return nil, catchup.InitializationError{Err: errors.New("distributor is required")}
	case streams == nil:
		return nil, catchup.InitializationError{Err: errors.New("partitioned stream is required")}
	case cursors == nil:
		return nil, catchup.InitializationError{Err: errors.New("cursor store is required")}
	case registry == nil:
		return nil, catchup.InitializationError{Err: errors.New("subscription registry is required")}
	case compare == nil:
		return nil, catchup.InitializationError{Err: errors.New("position comparer is required")}
	}

	c := &SingleStreamCatchup[D, C, P]{
		distributor: dist,
		streams:     streams,
		cursors:     cursors,
		registry:    registry,
		compare:     compare,
		batchSize:   catchup.DefaultBatchSize,
		log:         catchup.GetLogger().WithGroup("distributed"),
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
// one lease per partition and running one batch per lease. When the
// distributor's resource set is unbounded, a single lease is requested
// instead and progress is purely event-driven. The returned cursor is fresh
// and unattached; authoritative progress lives in per-partition durable
// state.
func (c *SingleStreamCatchup[D, C, P]) RunSingleBatch(ctx context.Context) (*catchup.Cursor[C], error) {
	if err := distributeFullPass[P](ctx, c.distributor); err != nil {
		return nil, err
	}

	var zero C
	return catchup.NewCursor(zero, c.compare), nil
}

// onLease runs one bounded unit of work for the leased partition: fetch the
// durable cursor, pump a single batch, persist the advanced position. The
// pump runs inside the atomic update, so the stored cursor never moves past
// un-aggregated data and per-partition batches stay strictly sequential.
func (c *SingleStreamCatchup[D, C, P]) onLease(ctx context.Context, lease *distributor.Lease[P]) error {
	partition := lease.Resource()

	_, err := c.cursors.FetchAndSave(ctx, partition, func(old C, exists bool) (C, error) {
		cursor := catchup.NewCursor(old, c.compare)
		if !exists {
			c.log.Debug("no durable cursor, starting fresh", "partition", partition)
		}

		stream, err := c.streams.GetStream(ctx, partition)
		if err != nil {
			return old, catchup.QuerySourceError{Err: fmt.Errorf("getting stream for partition %v: %w", partition, err)}
		}

		pump, err := catchup.NewSingleStreamCatchup(stream, cursor, c.registry,
			catchup.WithBatchSize[D, C](c.batchSize),
			catchup.WithLogger[D, C](c.log),
		)
		if err != nil {
			return old, err
		}

		updated, err := pump.RunSingleBatch(ctx)
		if err != nil {
			return old, err
		}

		return updated.Position(), nil
	})

	return err
}

// A SingleStreamCatchupOption configures a distributed SingleStreamCatchup.
type SingleStreamCatchupOption[D, C any, P comparable] func(*SingleStreamCatchup[D, C, P]) error

// WithBatchSize sets the number of items pulled per leased unit of work.
func WithBatchSize[D, C any, P comparable](size int) SingleStreamCatchupOption[D, C, P] {
	return func(c *SingleStreamCatchup[D, C, P]) error {
		if size < 1 {
			return errors.New("batch size must be positive")
		}

		c.batchSize = size
		return nil
	}
}

// WithLogger sets the logger for the catch-up.
func WithLogger[D, C any, P comparable](log catchup.Logger) SingleStreamCatchupOption[D, C, P] {
	return func(c *SingleStreamCatchup[D, C, P]) error {
		if log == nil {
			return errors.New("logger cannot be nil")
		}

		c.log = log
		return nil
	}
}

// distributeFullPass issues single-lease distributions until every partition
// in a finite resource set has been attempted once. Distributors without a
// finite enumeration receive exactly one distribution request.
func distributeFullPass[P comparable](ctx context.Context, dist distributor.Distributor[P]) error {
	set, ok := dist.(distributor.ResourceSet[P])
	if !ok {
		_, err := dist.Distribute(ctx, 1)
		return err
	}

	pending := map[P]struct{}{}
	for _, partition := range set.Resources() {
		pending[partition] = struct{}{}
	}

	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		processed, err := dist.Distribute(ctx, 1)
		for _, partition := range processed {
			delete(pending, partition)
		}

		if err != nil {
			return err
		}
	}

	return nil
}
