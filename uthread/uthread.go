// Package uthread implements the user-level thread runtime (spec.md
// component C9): save/restore semantics, blockon, migration control, and
// the ops table a 2LS plugs in. Each Uthread is backed by its own
// goroutine, parked on a channel between runs; "saving a context" is
// simply letting that goroutine block rather than literally capturing
// register state, the natural Go rendering of spec.md §0's
// single-process simulator.
package uthread

import (
	"sync/atomic"

	"github.com/akaros-project/mcp/internal/obslog"
)

// State is a Uthread's scheduling state from the 2LS's point of view.
type State int32

const (
	Created State = iota
	Runnable
	Running
	Blocked
	Done
)

// Ops is the 2LS's plugin table (spec.md §4.9): sched_entry is called
// from vcore entry; the rest are callbacks the uthread layer invokes at
// the corresponding transition.
type Ops interface {
	// SchedEntry is called on every vcore entry (spec.md §4.6) to pick
	// and run the next uthread, or fall back to sys_yield.
	SchedEntry(vcoreid uint32)
	// ThreadRunnable is called when a previously blocked uthread becomes
	// runnable again (e.g. its event fired), so the 2LS can requeue it.
	ThreadRunnable(u *Uthread)
	// ThreadHasBlocked is called from inside a Yield's yieldFn to tell
	// the 2LS the uthread won't run again until something wakes it.
	ThreadHasBlocked(u *Uthread, reason BlockReason)
	// ThreadBlockonSysc is called when a uthread blocks on an async
	// syscall; sysc is whatever syscall-shaped value the caller's C10
	// package hands back (kept as `any` to avoid an import cycle).
	ThreadBlockonSysc(u *Uthread, sysc any)
	// ThreadReflFault is called when a uthread faults (illegal
	// instruction, segfault-equivalent) and the kernel reflects it back.
	ThreadReflFault(u *Uthread, fault any)
	// ThreadPaused is called when a uthread is paused mid-syscall by a
	// preemption rather than blocking normally.
	ThreadPaused(u *Uthread)
}

// BlockReason names why ThreadHasBlocked was called.
type BlockReason int

const (
	BlockSyscall BlockReason = iota
	BlockMutex
	BlockCondVar
	BlockBarrier
	BlockGeneric
)

// Uthread is one user-level thread.
type Uthread struct {
	ID uint32

	state atomic.Int32

	// DontMigrate mirrors spec.md §4.9's migration invariant: while set,
	// this uthread may only be resumed on savedVcoreid.
	DontMigrate atomic.Bool
	savedVcore  atomic.Uint32

	// fpInHW, when true, means this uthread's FPU/XMM state currently
	// lives in hardware on savedVcore rather than in the saved context
	// (lazy FPSAVED, spec.md §4.9); a migration must flush it first.
	fpInHW atomic.Bool

	// TLS is this uthread's TLS descriptor, swapped in by the 2LS before
	// popping it and swapped back out to the vcore's own TLS before the
	// vcore next runs non-uthread code.
	TLS any

	fn        func(u *Uthread)
	resumeCh  chan struct{}
	yieldedCh chan struct{}
}

// Create implements uthread_create: spawns the backing goroutine, which
// immediately parks waiting for its first run.
func Create(fn func(u *Uthread)) *Uthread {
	u := &Uthread{
		fn:        fn,
		resumeCh:  make(chan struct{}),
		yieldedCh: make(chan struct{}, 1),
	}
	u.state.Store(int32(Runnable))
	go u.body()
	return u
}

func (u *Uthread) body() {
	<-u.resumeCh
	u.fn(u)
	u.state.Store(int32(Done))
	u.yieldedCh <- struct{}{}
}

func (u *Uthread) State() State { return State(u.state.Load()) }

// SavedVcore returns the vcore this uthread last ran on, meaningful only
// while DontMigrate is set or fpInHW is true.
func (u *Uthread) SavedVcore() uint32 { return u.savedVcore.Load() }

// RunUthread implements run_uthread: resumes u on the calling vcore
// context and blocks until u yields, blocks, or finishes. vcoreid is
// recorded as u's saved location regardless of outcome, matching the
// real kernel's "pop_user_ctx always updates current location" behavior.
func RunUthread(u *Uthread, vcoreid uint32) {
	if u.DontMigrate.Load() && u.savedVcore.Load() != vcoreid {
		obslog.Warning().Uint64("uthread", uint64(u.ID)).Uint64("vcoreid", uint64(vcoreid)).
			Uint64("saved_vcore", uint64(u.savedVcore.Load())).
			Log("run_uthread: migration of DONT_MIGRATE uthread refused")
		return
	}
	u.savedVcore.Store(vcoreid)
	u.state.Store(int32(Running))
	u.resumeCh <- struct{}{}
	<-u.yieldedCh
}
