// Package distributor coordinates exclusive, time-bounded ownership of
// resources across concurrent workers. A Distributor grants leases, invokes a
// registered handler per grant, and reclaims every lease once its handler
// returns, so no resource is permanently poisoned by a failing handler.
package distributor

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// A Handler is invoked once per granted lease. Handlers for simultaneously
// granted leases may run concurrently.
type Handler[R comparable] func(ctx context.Context, lease *Lease[R]) error

// A Distributor grants exclusive leases over a pool of resources. At most one
// unexpired lease is outstanding per resource system-wide.
type Distributor[R comparable] interface {
	// OnReceive registers the single handler invoked per granted lease.
	OnReceive(handler Handler[R])

	// Distribute acquires up to maxCount currently available resources,
	// invokes the handler per acquired lease, awaits completion, and
	// releases each lease after its handler finishes. It returns the
	// resources that were processed.
	Distribute(ctx context.Context, maxCount int) ([]R, error)
}

// A ResourceSet is implemented by distributors whose resource pool is a
// finite, known enumeration.
type ResourceSet[R comparable] interface {
	Resources() []R
}

// A Lease grants exclusive, time-bounded ownership of a resource. The
// granting distributor releases the lease once its handler returns.
type Lease[R comparable] struct {
	id        uuid.UUID
	resource  R
	expiresAt time.Time
}

// ID returns the lease's unique identifier.
func (l *Lease[R]) ID() uuid.UUID {
	return l.id
}

// Resource returns the leased resource.
func (l *Lease[R]) Resource() R {
	return l.resource
}

// ExpiresAt returns the instant after which the lease no longer confers
// ownership and the resource becomes reclaimable.
func (l *Lease[R]) ExpiresAt() time.Time {
	return l.expiresAt
}
