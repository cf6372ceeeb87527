package catchup

import "context"

// An UpdateFunc computes a new state from the previously stored one. The
// exists flag is false when no value has been stored for the id yet, in which
// case old is the zero value. Returning an error discards the update.
type UpdateFunc[S any] func(old S, exists bool) (S, error)

// A FetchAndSaver performs an atomic read-modify-write over persisted
// per-id state. Updates for the same id are serialized; updates for distinct
// ids are independent. A failed update leaves the prior stored value intact.
type FetchAndSaver[K comparable, S any] interface {
	FetchAndSave(ctx context.Context, id K, update UpdateFunc[S]) (S, error)
}
