// Package thread0 implements the trivial single-uthread 2LS (spec.md
// component C11): exactly one uthread, no ready queue, no mutex.
// sched_entry either resumes that one uthread if it is runnable, or
// yields the vcore back to the kernel and polls events.
package thread0

import (
	"github.com/akaros-project/mcp/eventq"
	"github.com/akaros-project/mcp/internal/obslog"
	"github.com/akaros-project/mcp/uthread"
)

// Sched is a thread0 2LS instance: one process's one managed uthread.
type Sched struct {
	uth    *uthread.Uthread
	disp   *eventq.Dispatcher
	runner VcoreYielder
}

// VcoreYielder is the kernel hook sys_yield(being_nice) needs; proc/vcore
// wiring supplies it (here, just "stop running this vcore for now").
type VcoreYielder interface {
	Unmap(vcoreid uint32)
}

// New constructs a thread0 scheduler around the process's event
// dispatcher. main is the uthread's body; it runs thread_lib_init's job
// of becoming "the" uthread for this process.
func New(disp *eventq.Dispatcher, runner VcoreYielder, main func(u *uthread.Uthread)) *Sched {
	return &Sched{
		uth:    uthread.Create(main),
		disp:   disp,
		runner: runner,
	}
}

// Ops returns the uthread.Ops table a vcore-entry function drives thread0
// through. Embeds SchedEntry directly rather than taking a separate
// registration step, since thread0 has exactly one client.
func (s *Sched) Ops() uthread.Ops { return thread0Ops{s} }

type thread0Ops struct{ s *Sched }

// SchedEntry implements spec.md §4.11: resume the uthread if runnable,
// else handle_events(0) and sys_yield.
func (o thread0Ops) SchedEntry(vcoreid uint32) {
	s := o.s
	switch s.uth.State() {
	case uthread.Runnable:
		uthread.RunUthread(s.uth, vcoreid)
	case uthread.Done:
		return
	default:
		s.disp.HandleEvents(vcoreid)
		if s.uth.State() == uthread.Runnable {
			uthread.RunUthread(s.uth, vcoreid)
			return
		}
		obslog.Debug().Uint64("vcoreid", uint64(vcoreid)).Log("thread0: nothing runnable, yielding vcore")
		if s.runner != nil {
			s.runner.Unmap(vcoreid)
		}
	}
}

func (o thread0Ops) ThreadRunnable(u *uthread.Uthread) { uthread.MarkRunnable(u) }

func (o thread0Ops) ThreadHasBlocked(u *uthread.Uthread, reason uthread.BlockReason) {
	obslog.Debug().Uint64("uthread", uint64(u.ID)).Int("reason", int(reason)).Log("thread0: uthread blocked")
}

func (o thread0Ops) ThreadBlockonSysc(u *uthread.Uthread, sysc any) {}

func (o thread0Ops) ThreadReflFault(u *uthread.Uthread, fault any) {
	obslog.Err().Uint64("uthread", uint64(u.ID)).Log("thread0: unhandled fault, killing process")
	panic(fault)
}

func (o thread0Ops) ThreadPaused(u *uthread.Uthread) {}

var _ uthread.Ops = thread0Ops{}
