// Package atomicx provides the small set of atomic primitives and memory
// barriers the rest of this module is built on (spec component C1).
//
// Go's memory model already gives sync/atomic acquire/release semantics on
// every operation, so mb/rmb/wmb/cmb/wrmb are no-ops here; they exist as
// named functions (rather than being inlined away entirely) so call sites
// read the same way the original kernel/parlib sources do, and so a future
// port to a weaker-ordering primitive has a single place to change.
package atomicx

import "sync/atomic"

// Mb is a full memory barrier. On Go's memory model this is a no-op; it
// exists to document a barrier the original C required.
func Mb() {}

// Rmb is a read memory barrier (no-op on Go's memory model).
func Rmb() {}

// Wmb is a write memory barrier (no-op on Go's memory model).
func Wmb() {}

// Cmb is a compiler memory barrier (no-op; Go's compiler does not reorder
// atomic operations across this call).
func Cmb() {}

// Wrmb is a write-read memory barrier (no-op on Go's memory model).
func Wrmb() {}

// CAS32 performs a compare-and-swap on a uint32, returning success.
func CAS32(addr *uint32, old, new uint32) bool {
	return atomic.CompareAndSwapUint32(addr, old, new)
}

// CAS64 performs a compare-and-swap on a uint64, returning success.
func CAS64(addr *uint64, old, new uint64) bool {
	return atomic.CompareAndSwapUint64(addr, old, new)
}

// CASPtr performs a compare-and-swap on a pointer-sized value stored as
// an atomic.Pointer[T].
func CASPtr[T any](addr *atomic.Pointer[T], old, new *T) bool {
	return addr.CompareAndSwap(old, new)
}

// Swap32 atomically stores new into addr and returns the previous value.
func Swap32(addr *uint32, new uint32) uint32 {
	return atomic.SwapUint32(addr, new)
}

// SwapPtr atomically stores new into addr and returns the previous value.
func SwapPtr[T any](addr *atomic.Pointer[T], new *T) *T {
	return addr.Swap(new)
}

// Add32 atomically adds delta to addr and returns the new value.
func Add32(addr *int32, delta int32) int32 {
	return atomic.AddInt32(addr, delta)
}

// Andb atomically ANDs mask into the 32-bit value at addr.
func Andb(addr *atomic.Uint32, mask uint32) {
	for {
		old := addr.Load()
		if addr.CompareAndSwap(old, old&mask) {
			return
		}
	}
}

// Orb atomically ORs mask into the value at addr.
func Orb(addr *atomic.Uint32, mask uint32) {
	for {
		old := addr.Load()
		if addr.CompareAndSwap(old, old|mask) {
			return
		}
	}
}

// AddIfNonzero atomically adds delta to addr's counter unless its current
// value is zero, in which case it does nothing and returns false.
//
// This mirrors the kernel's atomic_add_not_zero, used to take a reference
// on a refcounted object without racing a concurrent final decref to zero.
func AddIfNonzero(addr *atomic.Int64, delta int64) bool {
	for {
		old := addr.Load()
		if old == 0 {
			return false
		}
		if addr.CompareAndSwap(old, old+delta) {
			return true
		}
	}
}

// SubAndTest atomically subtracts delta from addr and reports whether the
// result is zero (the caller that observes true is responsible for
// finalizing/destroying the refcounted object).
func SubAndTest(addr *atomic.Int64, delta int64) bool {
	return addr.Add(-delta) == 0
}
