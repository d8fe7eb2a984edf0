package asyscall

import "github.com/akaros-project/mcp/eventq"

// BlockOn implements thread_blockon_sysc's uthread-facing half: attempt
// register_evq; if it is refused because the syscall already completed,
// the uthread does not block at all (spec.md §4.10 — "the CAS fails, the
// caller does not block, and the uthread is immediately marked
// runnable"). Returns true if the caller should actually park (the
// 2LS's Yield/ThreadHasBlocked path), false if it can proceed straight
// to reading the result.
func (s *Syscall) BlockOn(q *eventq.EvQ) bool {
	return s.RegisterEvq(q)
}
