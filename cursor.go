package catchup

import "cmp"

// A Comparer defines a total order over positions of type C. It returns a
// negative value if a orders before b, zero if they are equal, and a positive
// value if a orders after b.
type Comparer[C any] func(a, b C) int

// Ordered returns a Comparer for any natively ordered position type.
func Ordered[C cmp.Ordered]() Comparer[C] {
	return cmp.Compare[C]
}

// A Cursor marks progress within an ordered position space. It performs no
// internal locking; callers serialize access per cursor instance. A cursor is
// owned by exactly one in-flight catch-up cycle at a time.
type Cursor[C any] struct {
	position C
	compare  Comparer[C]
}

// NewCursor creates a cursor at the given initial position.
func NewCursor[C any](initial C, compare Comparer[C]) *Cursor[C] {
	return &Cursor[C]{
		position: initial,
		compare:  compare,
	}
}

// Position returns the cursor's current position.
func (c *Cursor[C]) Position() C {
	return c.position
}

// AdvanceTo sets the cursor's position unconditionally.
func (c *Cursor[C]) AdvanceTo(point C) {
	c.position = point
}

// HasReached returns true if the cursor's position is at or beyond the given
// point. A position equal to the point counts as reached.
func (c *Cursor[C]) HasReached(point C) bool {
	return hasReached(c.compare, c.position, point, true)
}

// Clone returns an independent cursor at the same position.
func (c *Cursor[C]) Clone() *Cursor[C] {
	return &Cursor[C]{
		position: c.position,
		compare:  c.compare,
	}
}

func (c *Cursor[C]) comparePositions(a, b C) int {
	return c.compare(a, b)
}

// hasReached reports whether position is at or beyond point under cmp.
// When inclusive is false, a position equal to the point does not count.
func hasReached[C any](cmp Comparer[C], position, point C, inclusive bool) bool {
	if inclusive {
		return cmp(position, point) >= 0
	}

	return cmp(position, point) > 0
}
