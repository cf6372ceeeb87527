// Package memory provides in-memory stream implementations. They should not
// be used as production event storage, but serve as reference sources for
// catch-up pumps in tests and examples.
package memory

import (
	"context"
	"sync"

	"github.com/go-estoria/catchup"
)

// A Stream is an append-only in-memory log queried by integer offset.
type Stream[D any] struct {
	tag string

	mu    sync.RWMutex
	items []D
}

var _ catchup.Stream[string, int64] = (*Stream[string])(nil)

// NewStream creates an empty stream whose batches carry the given tag.
func NewStream[D any](tag string) *Stream[D] {
	return &Stream[D]{tag: tag}
}

// Append adds items to the end of the stream.
func (s *Stream[D]) Append(items ...D) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, items...)
}

// Len returns the number of items in the stream.
func (s *Stream[D]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.items)
}

// Query returns at most batchSize items starting at the given offset. An
// offset at or beyond the stream's head yields an empty batch.
func (s *Stream[D]) Query(_ context.Context, cursor int64, batchSize int) (catchup.Batch[D, int64], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from := cursor
	if from < 0 {
		from = 0
	}

	if from >= int64(len(s.items)) {
		return catchup.Batch[D, int64]{Tag: s.tag, From: cursor, Next: cursor}, nil
	}

	end := from + int64(batchSize)
	if end > int64(len(s.items)) {
		end = int64(len(s.items))
	}

	items := make([]D, end-from)
	copy(items, s.items[from:end])

	return catchup.Batch[D, int64]{
		Tag:   s.tag,
		Items: items,
		From:  cursor,
		Next:  end,
	}, nil
}

// A PartitionedStream maps partition keys to per-partition in-memory
// streams, creating each stream lazily on first use.
type PartitionedStream[D any, P comparable] struct {
	tag string

	mu      sync.Mutex
	streams map[P]*Stream[D]
}

var _ catchup.PartitionedStream[string, int64, string] = (*PartitionedStream[string, string])(nil)

// NewPartitionedStream creates an empty partitioned stream whose batches
// carry the given tag.
func NewPartitionedStream[D any, P comparable](tag string) *PartitionedStream[D, P] {
	return &PartitionedStream[D, P]{
		tag:     tag,
		streams: map[P]*Stream[D]{},
	}
}

// GetStream returns the stream for the given partition, creating it if
// needed. Streams are never shared across partitions.
//
//nolint:ireturn // Satisfies the PartitionedStream interface
func (s *PartitionedStream[D, P]) GetStream(_ context.Context, partition P) (catchup.Stream[D, int64], error) {
	return s.Partition(partition), nil
}

// Partition returns the concrete stream for the given partition, creating it
// if needed. It is the appending side of GetStream.
func (s *PartitionedStream[D, P]) Partition(partition P) *Stream[D] {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.streams[partition]
	if !ok {
		stream = NewStream[D](s.tag)
		s.streams[partition] = stream
	}

	return stream
}
