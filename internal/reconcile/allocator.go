package reconcile

// Allocator hands out collision-free record numbers for one
// classification pass. It tracks numbers already committed to the store
// and numbers consumed during this pass; a number is reserved before the
// next row is classified, so sequential calls never collide. One instance
// is threaded through a pass and discarded with it.
type Allocator struct {
	committed map[int]struct{}
	consumed  map[int]struct{}
	next      int
}

// NewAllocator seeds the committed set from the store snapshot and starts
// the candidate counter at max(existing)+1.
func NewAllocator(existing []int) *Allocator {
	a := &Allocator{
		committed: make(map[int]struct{}, len(existing)),
		consumed:  make(map[int]struct{}),
		next:      1,
	}
	for _, n := range existing {
		a.committed[n] = struct{}{}
		if n >= a.next {
			a.next = n + 1
		}
	}
	return a
}

// Taken reports whether n is committed in the store or already consumed
// during this pass.
func (a *Allocator) Taken(n int) bool {
	if _, ok := a.committed[n]; ok {
		return true
	}
	_, ok := a.consumed[n]
	return ok
}

// Reserve marks n as consumed for the rest of the pass.
func (a *Allocator) Reserve(n int) {
	a.consumed[n] = struct{}{}
}

// Allocate returns preferred when it is free, otherwise the next free
// sequential number. The returned number is reserved before returning.
func (a *Allocator) Allocate(preferred int) int {
	if preferred > 0 && !a.Taken(preferred) {
		a.Reserve(preferred)
		return preferred
	}
	for a.Taken(a.next) {
		a.next++
	}
	n := a.next
	a.Reserve(n)
	a.next++
	return n
}
