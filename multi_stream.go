package catchup

import (
	"context"
	"errors"
)

// A MultiStreamCatchup catches up across sub-streams discovered through an
// upstream stream whose items are themselves streams. Each discovered stream
// is drained by an inner single-stream pump seeded with the shared downstream
// cursor and subscription registry; the upstream cursor advances only once
// every inner stream surfaced by the current upstream batch is drained.
type MultiStreamCatchup[D, C, U any] struct {
	upstream   Stream[Stream[D, C], U]
	cursor     *Cursor[U]
	downstream *Cursor[C]
	registry   *Registry[D, C]
	batchSize  int

	log Logger
}

// NewMultiStreamCatchup creates a catch-up pump over a stream of streams.
// The upstream cursor tracks discovery progress; the downstream cursor seeds
// the inner pumps.
func NewMultiStreamCatchup[D, C, U any](
	upstream Stream[Stream[D, C], U],
	cursor *Cursor[U],
	downstream *Cursor[C],
	registry *Registry[D, C],
	opts ...MultiStreamCatchupOption[D, C, U],
) (*MultiStreamCatchup[D, C, U], error) {
	switch {
	case upstream == nil:
		return nil, InitializationError{Err: errors.New("upstream stream is required")}
	case cursor == nil:
		return nil, InitializationError{Err: errors.New("upstream cursor is required")}
	case downstream == nil:
		return nil, InitializationError{Err: errors.New("downstream cursor is required")}
	case registry == nil:
		return nil, InitializationError{Err: errors.New("subscription registry is required")}
	}

	pump := &MultiStreamCatchup[D, C, U]{
		upstream:   upstream,
		cursor:     cursor,
		downstream: downstream,
		registry:   registry,
		batchSize:  DefaultBatchSize,
		log:        GetLogger().WithGroup("catchup"),
	}

	for _, opt := range opts {
		if err := opt(pump); err != nil {
			return nil, InitializationError{Err: err}
		}
	}

	return pump, nil
}

// Cursor returns the upstream cursor.
func (c *MultiStreamCatchup[D, C, U]) Cursor() *Cursor[U] {
	return c.cursor
}

// DownstreamCursor returns the shared downstream cursor.
func (c *MultiStreamCatchup[D, C, U]) DownstreamCursor() *Cursor[C] {
	return c.downstream
}

// RunSingleBatch queries the upstream stream once and fully drains every
// inner stream it surfaced, then advances the upstream cursor. An empty
// upstream batch leaves the cursor unchanged.
func (c *MultiStreamCatchup[D, C, U]) RunSingleBatch(ctx context.Context) (*Cursor[U], error) {
	batch, err := c.upstream.Query(ctx, c.cursor.Position(), c.batchSize)
	if err != nil {
		return c.cursor, QuerySourceError{Err: err}
	}

	if batch.IsEmpty() {
		return c.cursor, nil
	}

	c.log.Debug("draining discovered streams", "streams", len(batch.Items))

	for _, stream := range batch.Items {
		inner, err := NewSingleStreamCatchup(stream, c.downstream, c.registry,
			WithBatchSize[D, C](c.batchSize),
			WithLogger[D, C](c.log),
		)
		if err != nil {
			return c.cursor, err
		}

		if _, err := inner.RunUntilCaughtUp(ctx); err != nil {
			return c.cursor, err
		}
	}

	c.cursor.AdvanceTo(batch.Next)

	return c.cursor, nil
}

// RunUntilCaughtUp repeats RunSingleBatch until the upstream stream surfaces
// no further sub-streams.
func (c *MultiStreamCatchup[D, C, U]) RunUntilCaughtUp(ctx context.Context) (*Cursor[U], error) {
	for {
		before := c.cursor.Position()

		if _, err := c.RunSingleBatch(ctx); err != nil {
			return c.cursor, err
		}

		if c.cursor.comparePositions(c.cursor.Position(), before) == 0 {
			return c.cursor, nil
		}
	}
}

// A MultiStreamCatchupOption configures a MultiStreamCatchup.
type MultiStreamCatchupOption[D, C, U any] func(*MultiStreamCatchup[D, C, U]) error

// WithMultiStreamBatchSize sets the batch size used for both the upstream
// query and the inner pumps.
func WithMultiStreamBatchSize[D, C, U any](size int) MultiStreamCatchupOption[D, C, U] {
	return func(c *MultiStreamCatchup[D, C, U]) error {
		if size < 1 {
			return errors.New("batch size must be positive")
		}

		c.batchSize = size
		return nil
	}
}

// WithMultiStreamLogger sets the logger for the pump.
func WithMultiStreamLogger[D, C, U any](log Logger) MultiStreamCatchupOption[D, C, U] {
	return func(c *MultiStreamCatchup[D, C, U]) error {
		if log == nil {
			return errors.New("logger cannot be nil")
		}

		c.log = log
		return nil
	}
}
