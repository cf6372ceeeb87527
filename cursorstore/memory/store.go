// Package memory provides an in-memory fetch-and-save store. Updates are
// atomic per id and independent across distinct ids, making it a legitimate
// minimal default for single-process catch-up and for tests.
package memory

import (
	"context"
	"sync"

	"github.com/go-estoria/catchup"
)

// A Store holds per-id state guarded by per-id atomic update. A failed
// update leaves the prior stored value intact.
type Store[K comparable, S any] struct {
	mu     sync.Mutex
	locks  map[K]*sync.Mutex
	states map[K]S
}

var _ catchup.FetchAndSaver[string, int] = (*Store[string, int])(nil)

// NewStore creates an empty in-memory fetch-and-save store.
func NewStore[K comparable, S any]() *Store[K, S] {
	return &Store[K, S]{
		locks:  map[K]*sync.Mutex{},
		states: map[K]S{},
	}
}

// FetchAndSave atomically applies update to the state stored for id. When no
// state exists yet, update receives the zero value and exists == false; the
// value it returns becomes the stored state. Concurrent calls for the same id
// are serialized; calls for distinct ids proceed independently.
func (s *Store[K, S]) FetchAndSave(_ context.Context, id K, update catchup.UpdateFunc[S]) (S, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	old, exists := s.states[id]
	s.mu.Unlock()

	updated, err := update(old, exists)
	if err != nil {
		var zero S
		return zero, err
	}

	s.mu.Lock()
	s.states[id] = updated
	s.mu.Unlock()

	return updated, nil
}

// Get returns the state stored for id, if any.
func (s *Store[K, S]) Get(id K) (S, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[id]
	return state, ok
}

func (s *Store[K, S]) lockFor(id K) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}

	return lock
}
