package distributor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/go-estoria/catchup"
)

// DefaultLeaseTTL is the lease duration used when none is configured.
const DefaultLeaseTTL = 30 * time.Second

// A RoundRobin is an in-process Distributor over a fixed resource
// enumeration. Acquisition scans round-robin from the point the previous
// call stopped at, so every resource is attempted before any repeats.
type RoundRobin[R comparable] struct {
	resources []R
	ttl       time.Duration
	handler   Handler[R]

	mu     sync.Mutex
	next   int
	leased map[R]*Lease[R]

	log catchup.Logger
}

var _ Distributor[string] = (*RoundRobin[string])(nil)
var _ ResourceSet[string] = (*RoundRobin[string])(nil)

// NewRoundRobin creates a round-robin distributor over the given resources.
// The resource set must be non-empty and free of duplicates.
func NewRoundRobin[R comparable](resources []R, opts ...RoundRobinOption[R]) (*RoundRobin[R], error) {
	if len(resources) == 0 {
		return nil, catchup.InitializationError{Err: errors.New("at least one resource is required")}
	}

	seen := make(map[R]struct{}, len(resources))
	for _, resource := range resources {
		if _, ok := seen[resource]; ok {
			return nil, catchup.InitializationError{Err: errors.New("duplicate resource in pool")}
		}

		seen[resource] = struct{}{}
	}

	pool := make([]R, len(resources))
	copy(pool, resources)

	d := &RoundRobin[R]{
		resources: pool,
		ttl:       DefaultLeaseTTL,
		leased:    map[R]*Lease[R]{},
		log:       catchup.GetLogger().WithGroup("distributor"),
	}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, catchup.InitializationError{Err: err}
		}
	}

	return d, nil
}

// OnReceive registers the handler invoked per granted lease. It replaces any
// previously registered handler.
func (d *RoundRobin[R]) OnReceive(handler Handler[R]) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handler = handler
}

// Resources returns the full resource enumeration.
func (d *RoundRobin[R]) Resources() []R {
	resources := make([]R, len(d.resources))
	copy(resources, d.resources)

	return resources
}

// Distribute acquires up to maxCount available resources, runs the handler
// concurrently per lease, and releases every lease once its handler returns,
// success or failure. It returns the resources processed and the first
// handler error, if any.
func (d *RoundRobin[R]) Distribute(ctx context.Context, maxCount int) ([]R, error) {
	if maxCount < 1 {
		return nil, errors.New("max count must be positive")
	}

	d.mu.Lock()
	handler := d.handler
	d.mu.Unlock()

	if handler == nil {
		return nil, errors.New("no handler registered")
	}

	leases := d.acquire(maxCount)
	if len(leases) == 0 {
		return nil, nil
	}

	processed := make([]R, len(leases))
	for i, lease := range leases {
		processed[i] = lease.Resource()
	}

	group := &errgroup.Group{}
	for _, lease := range leases {
		lease := lease
		group.Go(func() error {
			defer d.release(lease)

			d.log.Debug("lease granted", "lease_id", lease.ID(), "resource", lease.Resource())
			return handler(ctx, lease)
		})
	}

	if err := group.Wait(); err != nil {
		return processed, err
	}

	return processed, nil
}

func (d *RoundRobin[R]) acquire(maxCount int) []*Lease[R] {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	start := d.next
	leases := []*Lease[R]{}

	for scanned := 0; scanned < len(d.resources) && len(leases) < maxCount; scanned++ {
		index := (start + scanned) % len(d.resources)
		resource := d.resources[index]

		if held, ok := d.leased[resource]; ok {
			if now.Before(held.expiresAt) {
				continue
			}

			// expired lease; the resource is reclaimable
			d.log.Warn("reclaiming expired lease", "lease_id", held.ID(), "resource", resource)
		}

		lease := &Lease[R]{
			id:        uuid.New(),
			resource:  resource,
			expiresAt: now.Add(d.ttl),
		}

		d.leased[resource] = lease
		d.next = (index + 1) % len(d.resources)
		leases = append(leases, lease)
	}

	return leases
}

func (d *RoundRobin[R]) release(lease *Lease[R]) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if held, ok := d.leased[lease.Resource()]; ok && held.id == lease.id {
		delete(d.leased, lease.Resource())
	}
}

// A RoundRobinOption configures a RoundRobin distributor.
type RoundRobinOption[R comparable] func(*RoundRobin[R]) error

// WithLeaseTTL sets the duration after which an unreleased lease expires and
// its resource becomes reclaimable.
func WithLeaseTTL[R comparable](ttl time.Duration) RoundRobinOption[R] {
	return func(d *RoundRobin[R]) error {
		if ttl <= 0 {
			return errors.New("lease TTL must be positive")
		}

		d.ttl = ttl
		return nil
	}
}

// WithLogger sets the logger for the distributor.
func WithLogger[R comparable](log catchup.Logger) RoundRobinOption[R] {
	return func(d *RoundRobin[R]) error {
		if log == nil {
			return errors.New("logger cannot be nil")
		}

		d.log = log
		return nil
	}
}
