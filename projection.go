package catchup

import (
	"context"
	"errors"
	"fmt"
)

// A Projection pairs accumulated business state with the cursor marking how
// far into its source data that state has been built. A projection is mutated
// by exactly one aggregator invocation at a time.
type Projection[V, C any] struct {
	Value  V
	Cursor *Cursor[C]
}

// An Aggregator combines a projection with a batch of items, producing the
// updated projection. Aggregate must depend only on its arguments and be
// deterministic given them.
type Aggregator[V, D, C any] interface {
	Aggregate(ctx context.Context, projection Projection[V, C], batch Batch[D, C]) (Projection[V, C], error)
}

// An AggregatorFunc is a function that aggregates a batch into a projection.
type AggregatorFunc[V, D, C any] func(ctx context.Context, projection Projection[V, C], batch Batch[D, C]) (Projection[V, C], error)

// Aggregate implements the Aggregator interface.
func (f AggregatorFunc[V, D, C]) Aggregate(ctx context.Context, projection Projection[V, C], batch Batch[D, C]) (Projection[V, C], error) {
	return f(ctx, projection, batch)
}

// A Subscription applies one batch to its projection. Implementations load or
// create the projection from their own store, aggregate the batch into it,
// and store the result.
type Subscription[D, C any] interface {
	Apply(ctx context.Context, batch Batch[D, C]) error
}

// NewSubscription binds an aggregator to a projection store. The projection
// is keyed by id within the store and is created via newProjection the first
// time a batch arrives for it.
func NewSubscription[V, D, C any](
	id string,
	aggregator Aggregator[V, D, C],
	projections FetchAndSaver[string, Projection[V, C]],
	newProjection func() Projection[V, C],
) (Subscription[D, C], error) {
	switch {
	case id == "":
		return nil, InitializationError{Err: errors.New("projection ID is required")}
	case aggregator == nil:
		return nil, InitializationError{Err: errors.New("aggregator is required")}
	case projections == nil:
		return nil, InitializationError{Err: errors.New("projection store is required")}
	case newProjection == nil:
		return nil, InitializationError{Err: errors.New("projection factory is required")}
	}

	return &projectionSubscription[V, D, C]{
		id:            id,
		aggregator:    aggregator,
		projections:   projections,
		newProjection: newProjection,
	}, nil
}

type projectionSubscription[V, D, C any] struct {
	id            string
	aggregator    Aggregator[V, D, C]
	projections   FetchAndSaver[string, Projection[V, C]]
	newProjection func() Projection[V, C]
}

func (s *projectionSubscription[V, D, C]) Apply(ctx context.Context, batch Batch[D, C]) error {
	_, err := s.projections.FetchAndSave(ctx, s.id, func(old Projection[V, C], exists bool) (Projection[V, C], error) {
		projection := old
		if !exists {
			projection = s.newProjection()
		}

		updated, err := s.aggregator.Aggregate(ctx, projection, batch)
		if err != nil {
			return old, fmt.Errorf("aggregating: %w", err)
		}

		if updated.Cursor != nil {
			updated.Cursor.AdvanceTo(batch.Next)
		}

		return updated, nil
	})
	if err != nil {
		return fmt.Errorf("updating projection %s: %w", s.id, err)
	}

	return nil
}
