package asyscall

import (
	"sync"
	"sync/atomic"

	"github.com/akaros-project/mcp/eventmsg"
	"github.com/akaros-project/mcp/eventq"
)

// registry maps a small integer id to the *Syscall it names, so a
// completion event's Arg3 can "point to the syscall" (spec.md §8
// invariant 8) without smuggling a raw, GC-unsafe pointer through a
// fixed-size eventmsg.Message — the same approach eventq's INDIR payload
// uses for pointing at an *EvQ.
var (
	registryMu sync.Mutex
	registry   = map[int64]*Syscall{}
	nextID     atomic.Int64
)

func register(s *Syscall) int64 {
	id := nextID.Add(1)
	registryMu.Lock()
	registry[id] = s
	registryMu.Unlock()
	return id
}

func unregister(id int64) {
	registryMu.Lock()
	delete(registry, id)
	registryMu.Unlock()
}

// Lookup resolves a completion event's Arg3 back to the Syscall it names.
func Lookup(id int64) (*Syscall, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	s, ok := registry[id]
	return s, ok
}

// Ack releases the registry entry for id once a handler has finished
// processing the completion event that named it, so the registry does
// not grow without bound across a long-running process.
func Ack(id int64) { unregister(id) }

// RegisterEvq implements register_evq(sysc, ev_q): races the kernel
// completion path. If SC_DONE is already set by the time this CASes the
// ev_q in, the registration is refused and the caller should not block
// (spec.md §4.10); otherwise q is now committed to receive exactly one
// completion event for sysc.
func (s *Syscall) RegisterEvq(q *eventq.EvQ) bool {
	if s.Done() {
		return false
	}
	if !s.evq.CompareAndSwap(nil, q) {
		return false
	}
	if s.Done() {
		// Completion raced us in between the Done() check and the CAS;
		// un-commit so deregister_evq's caller doesn't double-handle it.
		s.evq.CompareAndSwap(q, nil)
		return false
	}
	s.setFlag(ScUevent)
	return true
}

// DeregisterEvq implements deregister_evq: the reverse, used when an
// abort or an alternate wakeup (e.g. another ev_q in a multi-wait) wins
// the race instead of the syscall's own completion.
func (s *Syscall) DeregisterEvq() {
	s.evq.Store(nil)
}

// Complete implements the kernel completion path: sets Retval/Err,
// SC_DONE (and SC_PROGRESS if progress is true instead of a final
// completion), and — if an ev_q was successfully registered — posts the
// completion event to it with Arg3 naming sysc via the package registry.
func (s *Syscall) Complete(retval int64, err error, progress bool) {
	s.Retval = retval
	s.Err = err
	if progress {
		s.setFlag(ScProgress)
		return
	}
	s.setFlag(ScDone)
	q := s.evq.Load()
	if q == nil || !s.Flags().Has(ScUevent) {
		return
	}
	id := register(s)
	q.Post(eventmsg.Message{Type: eventmsg.EvSyscall, Arg3: uint64(id)})
}
