package catchup

import "sync"

// A Registry maps stable data-type tags to the subscriptions registered for
// them. It is safe for concurrent reads and registrations; reads dominate
// once catch-up is running.
type Registry[D, C any] struct {
	mu   sync.RWMutex
	subs map[string][]Subscription[D, C]
}

// NewRegistry creates an empty subscription registry.
func NewRegistry[D, C any]() *Registry[D, C] {
	return &Registry[D, C]{
		subs: map[string][]Subscription[D, C]{},
	}
}

// Register adds subscriptions for the given data-type tag. Each registration
// declares its tag explicitly; there is no inference from item types.
func (r *Registry[D, C]) Register(tag string, subs ...Subscription[D, C]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs[tag] = append(r.subs[tag], subs...)
}

// Subscriptions returns the subscriptions registered for the given tag.
func (r *Registry[D, C]) Subscriptions(tag string) []Subscription[D, C] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := make([]Subscription[D, C], len(r.subs[tag]))
	copy(subs, r.subs[tag])

	return subs
}

// Tags returns all tags with at least one registered subscription.
func (r *Registry[D, C]) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.subs))
	for tag := range r.subs {
		tags = append(tags, tag)
	}

	return tags
}

// Snapshot returns a private copy of the registry. Concurrent per-partition
// cycles that must not share registry internals each take their own snapshot.
func (r *Registry[D, C]) Snapshot() *Registry[D, C] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := make(map[string][]Subscription[D, C], len(r.subs))
	for tag, registered := range r.subs {
		copied := make([]Subscription[D, C], len(registered))
		copy(copied, registered)
		subs[tag] = copied
	}

	return &Registry[D, C]{subs: subs}
}
