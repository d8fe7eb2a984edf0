// Package pthread implements the pthread 2LS (spec.md component C12): a
// ready queue guarded by a PDR lock, mutexes and condition variables that
// park uthreads on per-object queues, and a sense-reversing barrier.
package pthread

import (
	"github.com/akaros-project/mcp/atomicx"
	"github.com/akaros-project/mcp/eventq"
	"github.com/akaros-project/mcp/internal/obslog"
	"github.com/akaros-project/mcp/uthread"
)

// Sched is a pthread 2LS instance, one per process.
type Sched struct {
	lock  *atomicx.SpinPDR
	ready []*uthread.Uthread
	disp  *eventq.Dispatcher
}

// New constructs a pthread scheduler. runner lets the PDR ready-queue
// lock recover from a preempted holder (spec.md §4.1); disp is the
// process's event dispatcher, polled when the ready queue is empty.
func New(runner atomicx.CoreRunner, disp *eventq.Dispatcher) *Sched {
	return &Sched{
		lock: atomicx.NewSpinPDR(runner),
		disp: disp,
	}
}

// Spawn creates a new uthread and enqueues it runnable.
func (s *Sched) Spawn(vcoreid uint32, fn func(u *uthread.Uthread)) *uthread.Uthread {
	u := uthread.Create(fn)
	s.enqueue(vcoreid, u)
	return u
}

func (s *Sched) enqueue(vcoreid uint32, u *uthread.Uthread) {
	s.lock.Lock(vcoreid)
	s.ready = append(s.ready, u)
	s.lock.Unlock(vcoreid)
}

func (s *Sched) popReady(vcoreid uint32) *uthread.Uthread {
	s.lock.Lock(vcoreid)
	defer s.lock.Unlock(vcoreid)
	if len(s.ready) == 0 {
		return nil
	}
	u := s.ready[0]
	s.ready = s.ready[1:]
	return u
}

// Ops returns the uthread.Ops table vcore entry drives this scheduler
// through.
func (s *Sched) Ops() uthread.Ops { return pthreadOps{s} }

type pthreadOps struct{ s *Sched }

// SchedEntry implements spec.md §4.11: pop a uthread from the ready
// queue's head and run it; if empty, drain events (which may requeue
// something) and otherwise idle the vcore via handle_events(vcoreid) alone
// (no explicit yield — pthread keeps the vcore mapped, unlike thread0,
// since an MCP vcore is a dedicated resource worth holding onto).
func (o pthreadOps) SchedEntry(vcoreid uint32) {
	s := o.s
	u := s.popReady(vcoreid)
	if u == nil {
		s.disp.HandleEvents(vcoreid)
		u = s.popReady(vcoreid)
	}
	if u != nil {
		uthread.RunUthread(u, vcoreid)
		if u.State() == uthread.Runnable {
			s.enqueue(vcoreid, u)
		}
	}
}

func (o pthreadOps) ThreadRunnable(u *uthread.Uthread) {
	uthread.MarkRunnable(u)
	o.s.enqueue(0, u)
}

func (o pthreadOps) ThreadHasBlocked(u *uthread.Uthread, reason uthread.BlockReason) {
	obslog.Debug().Uint64("uthread", uint64(u.ID)).Int("reason", int(reason)).Log("pthread: uthread blocked")
}

func (o pthreadOps) ThreadBlockonSysc(u *uthread.Uthread, sysc any) {}

func (o pthreadOps) ThreadReflFault(u *uthread.Uthread, fault any) {
	obslog.Err().Uint64("uthread", uint64(u.ID)).Log("pthread: unhandled fault, killing process")
	panic(fault)
}

func (o pthreadOps) ThreadPaused(u *uthread.Uthread) {}

var _ uthread.Ops = pthreadOps{}
