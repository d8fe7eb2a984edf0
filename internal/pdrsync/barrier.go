// Package pdrsync holds small synchronization primitives shared by the
// pthread 2LS (spec C12) and the core allocator (spec C7), generalized from
// the original kernel's checklist_t/barrier_t (kern/atomic.h) so both
// call sites reuse one sense-reversing rendezvous instead of each growing
// their own.
package pdrsync

import (
	"runtime"
	"sync/atomic"
)

// Barrier is a sense-reversing barrier: Wait blocks every caller until the
// configured number of parties has arrived, then releases them all at
// once, and is immediately reusable for the next round.
type Barrier struct {
	count   atomic.Int32
	n       int32
	sense   atomic.Bool
	spin    int
	onPark  func()
	onArmed func()
}

// NewBarrier constructs a Barrier for exactly n parties. Once a waiter
// has used up its short spin budget, it calls spinThenPark on every
// further check of the barrier, or runtime.Gosched if spinThenPark is
// nil; there is no separate blocking wait.
func NewBarrier(n int, spinThenPark func()) *Barrier {
	b := &Barrier{n: int32(n), spin: 1 << 12, onPark: spinThenPark}
	return b
}

// Wait arrives at the barrier and blocks until all n parties have arrived.
func (b *Barrier) Wait() {
	localSense := !b.sense.Load()
	if b.count.Add(1) == b.n {
		b.count.Store(0)
		b.sense.Store(localSense)
		return
	}
	for i := 0; b.sense.Load() != localSense; i++ {
		switch {
		case i < b.spin:
			// busy-spin briefly: the common case is a rendezvous that
			// completes within microseconds.
		case b.onPark != nil:
			b.onPark()
		default:
			runtime.Gosched()
		}
	}
}
