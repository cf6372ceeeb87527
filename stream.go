package catchup

import "context"

// A Batch is a finite, ordered set of items returned by one stream query,
// tagged with the data-type tag of its items and with the cursor position the
// query started from.
type Batch[D, C any] struct {
	// Tag is the stable data-type tag of the items, matched against
	// subscription tags during dispatch.
	Tag string

	// Items are the batch contents, in stream order.
	Items []D

	// From is the cursor position the producing query started from.
	From C

	// Next is the position immediately after the last item in the batch.
	// A pump advances its cursor to Next once the batch is fully aggregated.
	Next C
}

// IsEmpty returns true if the batch contains no items.
func (b Batch[D, C]) IsEmpty() bool {
	return len(b.Items) == 0
}

// A Stream is a pull-based batch source. Implementations are stateless across
// calls except via the cursor argument.
type Stream[D, C any] interface {
	// Query returns at most batchSize items beginning at the given cursor
	// position. An empty batch signals that the stream's head is reached.
	Query(ctx context.Context, cursor C, batchSize int) (Batch[D, C], error)
}

// A PartitionedStream maps a partition key to its stream. Implementations own
// per-partition streams and create them lazily; a stream is never shared
// across partitions.
type PartitionedStream[D, C any, P comparable] interface {
	GetStream(ctx context.Context, partition P) (Stream[D, C], error)
}
