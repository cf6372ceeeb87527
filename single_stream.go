package catchup

import (
	"context"
	"errors"
)

// DefaultBatchSize is the batch size used when none is configured.
const DefaultBatchSize = 100

// A SingleStreamCatchup pulls batches from one stream and dispatches each
// batch to the subscriptions registered for its data-type tag, advancing its
// cursor after every fully aggregated batch.
type SingleStreamCatchup[D, C any] struct {
	stream    Stream[D, C]
	cursor    *Cursor[C]
	registry  *Registry[D, C]
	batchSize int

	log Logger
}

// NewSingleStreamCatchup creates a catch-up pump over the given stream,
// starting at the given cursor.
func NewSingleStreamCatchup[D, C any](
	stream Stream[D, C],
	cursor *Cursor[C],
	registry *Registry[D, C],
	opts ...SingleStreamCatchupOption[D, C],
) (*SingleStreamCatchup[D, C], error) {
	switch {
	case stream == nil:
		return nil, InitializationError{Err: errors.New("stream is required")}
	case cursor == nil:
		return nil, InitializationError{Err: errors.New("cursor is required")}
	case registry == nil:
		return nil, InitializationError{Err: errors.New("subscription registry is required")}
	}

	pump := &SingleStreamCatchup[D, C]{
		stream:    stream,
		cursor:    cursor,
		registry:  registry,
		batchSize: DefaultBatchSize,
		log:       GetLogger().WithGroup("catchup"),
	}

	for _, opt := range opts {
		if err := opt(pump); err != nil {
			return nil, InitializationError{Err: err}
		}
	}

	return pump, nil
}

// Cursor returns the pump's cursor.
func (c *SingleStreamCatchup[D, C]) Cursor() *Cursor[C] {
	return c.cursor
}

// RunSingleBatch queries the stream once, bounded by the current cursor and
// batch size, and dispatches the result. An empty batch leaves the cursor
// unchanged and ends the cycle successfully. If any matching subscription
// fails, the cursor advance for the batch is aborted and the error is
// returned; updates stored by earlier subscriptions in the same batch are
// not rolled back.
func (c *SingleStreamCatchup[D, C]) RunSingleBatch(ctx context.Context) (*Cursor[C], error) {
	batch, err := c.stream.Query(ctx, c.cursor.Position(), c.batchSize)
	if err != nil {
		return c.cursor, QuerySourceError{Err: err}
	}

	if batch.IsEmpty() {
		c.log.Debug("empty batch, cursor unchanged", "tag", batch.Tag)
		return c.cursor, nil
	}

	c.log.Debug("dispatching batch", "tag", batch.Tag, "items", len(batch.Items))

	for _, sub := range c.registry.Subscriptions(batch.Tag) {
		if err := sub.Apply(ctx, batch); err != nil {
			return c.cursor, AggregationError{Tag: batch.Tag, Err: err}
		}
	}

	c.cursor.AdvanceTo(batch.Next)

	return c.cursor, nil
}

// RunUntilCaughtUp repeatedly runs single batches until a cycle observes an
// empty batch, leaving the cursor at the stream's head. Shrinking and empty
// batches are tolerated.
func (c *SingleStreamCatchup[D, C]) RunUntilCaughtUp(ctx context.Context) (*Cursor[C], error) {
	for {
		before := c.cursor.Position()

		if _, err := c.RunSingleBatch(ctx); err != nil {
			return c.cursor, err
		}

		if c.cursor.comparePositions(c.cursor.Position(), before) == 0 {
			c.log.Debug("caught up", "position", c.cursor.Position())
			return c.cursor, nil
		}
	}
}

// A SingleStreamCatchupOption configures a SingleStreamCatchup.
type SingleStreamCatchupOption[D, C any] func(*SingleStreamCatchup[D, C]) error

// WithBatchSize sets the maximum number of items pulled per stream query.
func WithBatchSize[D, C any](size int) SingleStreamCatchupOption[D, C] {
	return func(c *SingleStreamCatchup[D, C]) error {
		if size < 1 {
			return errors.New("batch size must be positive")
		}

		c.batchSize = size
		return nil
	}
}

// WithLogger sets the logger for the pump.
func WithLogger[D, C any](log Logger) SingleStreamCatchupOption[D, C] {
	return func(c *SingleStreamCatchup[D, C]) error {
		if log == nil {
			return errors.New("logger cannot be nil")
		}

		c.log = log
		return nil
	}
}
