// Package asyscall implements the async syscall contract (spec.md
// component C10): the shared kernel/user Syscall record, the SC_* flag
// set, and the register_evq/deregister_evq race against completion.
package asyscall

import (
	"sync/atomic"

	"github.com/akaros-project/mcp/eventmsg"
	"github.com/akaros-project/mcp/eventq"
)

// Flags is the SC_* bitset from spec.md §3.
type Flags uint32

const (
	ScDone Flags = 1 << iota
	ScProgress
	ScUevent
	ScAbort
	ScKLock
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Syscall is the shared kernel/user record (spec.md §3): six generic
// arguments, a completion status, and the ev_q to notify.
type Syscall struct {
	Num  uint32
	Args [6]uintptr

	Retval int64
	Err    error
	ErrStr string

	flags atomic.Uint32
	evq   atomic.Pointer[eventq.EvQ]

	// UData is 2LS-private scratch space (spec.md §3's u_data), e.g. the
	// Uthread blocked on this syscall.
	UData any
}

// New constructs an issued syscall record.
func New(num uint32, args [6]uintptr) *Syscall {
	return &Syscall{Num: num, Args: args}
}

func (s *Syscall) Flags() Flags { return Flags(s.flags.Load()) }

func (s *Syscall) setFlag(bit Flags) {
	for {
		old := s.flags.Load()
		if Flags(old).Has(bit) {
			return
		}
		if s.flags.CompareAndSwap(old, old|uint32(bit)) {
			return
		}
	}
}

// Done reports whether SC_DONE has been observed.
func (s *Syscall) Done() bool { return s.Flags().Has(ScDone) }

// RequestAbort sets SC_ABORT (spec.md §4.10): user-mode asks the kernel
// to cancel the syscall. The kernel completion path still runs and still
// sets SC_DONE; abort only changes the eventual Retval/Err.
func (s *Syscall) RequestAbort() { s.setFlag(ScAbort) }

// Aborted reports whether SC_ABORT was requested.
func (s *Syscall) Aborted() bool { return s.Flags().Has(ScAbort) }
