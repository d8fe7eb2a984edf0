package pthread

import "github.com/akaros-project/mcp/internal/pdrsync"

// Barrier implements spec.md §4.11's sense-reversing barrier: spins
// briefly then yields with runtime.Gosched until released, reusing internal/pdrsync.Barrier (shared with
// ksched's rendezvous needs) rather than growing a second
// implementation.
type Barrier struct {
	*pdrsync.Barrier
}

// NewBarrier constructs a Barrier for n parties. spinThenPark is left
// nil, so after pdrsync.Barrier's fixed spin budget a waiter calls
// runtime.Gosched on each further check rather than parking.
func NewBarrier(n int) *Barrier {
	return &Barrier{pdrsync.NewBarrier(n, nil)}
}
