// Package proc implements process lifecycle (spec.md component C8):
// proc_create, the SCP→MCP transition, and destroy/refcount semantics,
// wiring procdata's pages, vcore's runtime, and ksched's allocator
// together into one process object.
package proc

import (
	"sync/atomic"

	"github.com/akaros-project/mcp/atomicx"
	"github.com/akaros-project/mcp/eventq"
	"github.com/akaros-project/mcp/internal/obslog"
	"github.com/akaros-project/mcp/ksched"
	"github.com/akaros-project/mcp/procdata"
	"github.com/akaros-project/mcp/vcore"
)

// State mirrors spec.md §4.8's process state machine.
type State int32

const (
	Created State = iota
	RunnableS
	RunningS
	RunnableM
	RunningM
	Waiting
	Dying
	DyingAbort
)

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case RunnableS:
		return "RUNNABLE_S"
	case RunningS:
		return "RUNNING_S"
	case RunnableM:
		return "RUNNABLE_M"
	case RunningM:
		return "RUNNING_M"
	case Waiting:
		return "WAITING"
	case Dying:
		return "DYING"
	case DyingAbort:
		return "DYING_ABORT"
	default:
		return "UNKNOWN"
	}
}

// Process is one Many-Core Process: identity, refcount, its procinfo/
// procdata pages and its vcore runtime. It implements eventq.Waiter, so
// an ev_q with the WAKEUP flag can wake it directly.
type Process struct {
	pid, ppid ksched.ProcessID
	state     atomic.Int32
	refcount  atomic.Int64

	Info *procdata.ProcInfo
	Data *procdata.ProcData
	VC   *vcore.Runtime

	desiredCores atomic.Uint32

	wakeCh chan struct{}
}

// newProcess allocates procinfo/procdata for maxVcores and constructs a
// fresh CREATED process. Unexported: use Manager.Create.
func newProcess(pid, ppid ksched.ProcessID, maxVcores uint32, tscFreq uint64) *Process {
	info := procdata.NewProcInfo(uint32(pid), uint32(ppid), maxVcores, tscFreq)
	data := procdata.NewProcData(maxVcores)
	p := &Process{
		pid:    pid,
		ppid:   ppid,
		Info:   info,
		Data:   data,
		VC:     vcore.NewRuntime(maxVcores, data),
		wakeCh: make(chan struct{}, 1),
	}
	p.state.Store(int32(Created))
	p.refcount.Store(1)
	return p
}

func (p *Process) PID() ksched.ProcessID  { return p.pid }
func (p *Process) PPID() ksched.ProcessID { return p.ppid }
func (p *Process) State() State           { return State(p.state.Load()) }

func (p *Process) setState(s State) {
	old := State(p.state.Swap(int32(s)))
	obslog.Debug().Uint64("pid", uint64(p.pid)).Str("from", old.String()).Str("to", s.String()).Log("process state transition")
}

// IncRef implements the non-destroy half of reference counting: bumps
// the count if (and only if) it is still nonzero, refusing to resurrect
// an already-reaped process.
func (p *Process) IncRef() bool {
	return atomicx.AddIfNonzero(&p.refcount, 1)
}

// DecRef drops the refcount by one; the caller owning the count that
// brings it to zero is responsible for final teardown.
func (p *Process) DecRef() bool {
	return atomicx.SubAndTest(&p.refcount, 1)
}

// WakeIfWaiting implements eventq.Waiter: nudges a process parked in
// WAITING state (e.g. an SCP blocked in a kernel syscall) without
// requiring it to already be polling.
func (p *Process) WakeIfWaiting() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

// WakeChan exposes the channel WakeIfWaiting signals, for a thread0-style
// scheduler to select on directly.
func (p *Process) WakeChan() <-chan struct{} { return p.wakeCh }

var _ eventq.Waiter = (*Process)(nil)
