package vcore

import (
	"sync"

	"github.com/akaros-project/mcp/internal/obslog"
	"github.com/akaros-project/mcp/mailbox"
	"github.com/akaros-project/mcp/procdata"
)

// EntryFunc is the 2LS's vcore-entry function (spec.md §4.6): invoked
// whenever a pcore starts or resumes running a vcore, in vcore context
// (notif_disabled=true).
type EntryFunc func(vcoreid uint32)

// Runtime owns one process's vcores and the pcore-goroutine bindings
// backing them. It implements atomicx.CoreRunner so the lower-level PDR
// lock (C1) can ask it to "ensure this vcore is running" without
// importing this package.
type Runtime struct {
	mu     sync.Mutex
	vcores []*Vcore
	entry  EntryFunc
	rrCtr  uint32 // ROUNDROBIN cursor for eventq (C4)

	wakeups map[uint32]*wakeFd
}

// NewRuntime constructs a Runtime for maxVcores vcores, backed by pd's
// per-vcore preempt slots.
func NewRuntime(maxVcores uint32, pd *procdata.ProcData) *Runtime {
	rt := &Runtime{
		vcores:  make([]*Vcore, maxVcores),
		wakeups: make(map[uint32]*wakeFd, maxVcores),
	}
	for i := range rt.vcores {
		rt.vcores[i] = newVcore(uint32(i), pd.VcorePreemptData(uint32(i)))
	}
	return rt
}

// SetEntry registers the 2LS's vcore-entry function. Called once during
// process setup, before any vcore is mapped.
func (rt *Runtime) SetEntry(fn EntryFunc) { rt.entry = fn }

func (rt *Runtime) Vcore(id uint32) *Vcore { return rt.vcores[id] }

func (rt *Runtime) NumVcores() uint32 { return uint32(len(rt.vcores)) }

// RunnableVcores returns a snapshot of currently-runnable vcore ids, used
// by eventq's FALLBACK/SPAM_PUBLIC routing (spec.md §4.4 steps 4-5).
func (rt *Runtime) RunnableVcores() []uint32 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	var out []uint32
	for _, v := range rt.vcores {
		if v.Runnable() {
			out = append(out, v.ID)
		}
	}
	return out
}

// NextRoundRobin returns the next vcore id in round-robin order over all
// of the runtime's vcore ids, mapped or not, advancing the internal
// cursor (spec.md §4.4 step 2, ROUNDROBIN flag).
func (rt *Runtime) NextRoundRobin() uint32 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	n := uint32(len(rt.vcores))
	id := rt.rrCtr % n
	rt.rrCtr++
	return id
}

// Map binds vcoreid to a pcore and starts its goroutine running the 2LS
// entry function in a loop, the user-mode analogue of the kernel handing
// the process a pcore. Equivalent to the kernel's side of sys_change_to_m
// / vcore grant.
func (rt *Runtime) Map(vcoreid, pcoreid uint32) {
	v := rt.vcores[vcoreid]
	v.pcoreid.Store(pcoreid)
	v.state.Store(int32(RunningVcoreContext))
	v.Preempt.NotifDisabled.Store(true)

	wf := newWakeFd()
	rt.mu.Lock()
	rt.wakeups[vcoreid] = wf
	rt.mu.Unlock()

	go rt.runLoop(vcoreid, wf)
}

// runLoop is the pcore-goroutine's body: block for an IPI/wakeup, then
// invoke vcore entry, repeat. Grounded on eventloop's single-threaded
// Run loop shape (wait for readiness, run a batch of work, repeat) with
// "readiness" here meaning "something IPI'd or notified this vcore".
func (rt *Runtime) runLoop(vcoreid uint32, wf *wakeFd) {
	for {
		if !wf.wait() {
			return // Unmap closed the wake fd: pcore reclaimed
		}
		v := rt.vcores[vcoreid]
		if v.State() == Unmapped {
			return
		}
		if rt.entry != nil {
			rt.entry(vcoreid)
		}
	}
}

// Unmap reclaims vcoreid's pcore, the user-mode analogue of the kernel
// revoking the core (e.g. via sys_change_vcore away, or a full preempt
// that is not restarted).
func (rt *Runtime) Unmap(vcoreid uint32) {
	v := rt.vcores[vcoreid]
	v.state.Store(int32(Unmapped))
	rt.mu.Lock()
	wf, ok := rt.wakeups[vcoreid]
	delete(rt.wakeups, vcoreid)
	rt.mu.Unlock()
	if ok {
		wf.close()
	}
}

// BeginPreempt saves v as Preempted (spec.md §4.6 state 4): the kernel
// has sent more preempt messages than it has confirmed done, and a saved
// context sits in procdata awaiting a change_to_vcore restart.
func (rt *Runtime) BeginPreempt(vcoreid uint32) {
	v := rt.vcores[vcoreid]
	v.nrPreemptsSent.Add(1)
	v.state.Store(int32(Preempted))
	obslog.Debug().Uint64("vcoreid", uint64(vcoreid)).Log("vcore preempted")
}

// Restart completes a change_to_vcore onto a previously-preempted vcore,
// remapping it onto pcoreid and re-entering vcore context.
func (rt *Runtime) Restart(vcoreid, pcoreid uint32) {
	v := rt.vcores[vcoreid]
	v.nrPreemptsDone.Add(1)
	rt.Map(vcoreid, pcoreid)
}

// IPI fires an inter-processor interrupt at vcoreid: if it is currently
// blocked in runLoop waiting for work, wake it immediately. Used by
// eventq's IPI flag (spec.md §4.4 step 3) and by SpinPDR's
// EnsureVcoreRuns (the holder may be "preempted"; nudging just requests
// the kernel restart it, modeled here as a no-op if already running).
func (rt *Runtime) IPI(vcoreid uint32) {
	rt.mu.Lock()
	wf, ok := rt.wakeups[vcoreid]
	rt.mu.Unlock()
	if ok {
		wf.signal()
	}
}

// Runnable implements eventq.Vcores.
func (rt *Runtime) Runnable(vcoreid uint32) bool {
	if vcoreid >= uint32(len(rt.vcores)) {
		return false
	}
	return rt.vcores[vcoreid].Runnable()
}

// AppropriateVcore implements eventq.Vcores for the VCORE_APPRO flag
// (spec.md §4.4 step 2): spec.md §9 leaves the exact selection rule
// unspecified beyond "the kernel may choose any appropriate vcore", so
// this picks the lowest-numbered runnable one.
func (rt *Runtime) AppropriateVcore() uint32 {
	runnable := rt.RunnableVcores()
	if len(runnable) == 0 {
		return 0
	}
	best := runnable[0]
	for _, v := range runnable[1:] {
		if v < best {
			best = v
		}
	}
	return best
}

// PublicMbox implements eventq.Vcores.
func (rt *Runtime) PublicMbox(vcoreid uint32) mailbox.Mailbox {
	return rt.vcores[vcoreid].PublicMbox
}

// SetSpamIndir implements eventq.Vcores, depositing an INDIR pointer into
// vcoreid's dedicated single-slot field (spec.md §4.4 step 5).
func (rt *Runtime) SetSpamIndir(vcoreid uint32, evqID int64) {
	rt.vcores[vcoreid].Preempt.SpamIndir.Store(evqID)
}

// TakeSpamIndir implements eventq.Vcores: read-and-clear vcoreid's
// spam-indir slot.
func (rt *Runtime) TakeSpamIndir(vcoreid uint32) int64 {
	return rt.vcores[vcoreid].Preempt.SpamIndir.Swap(-1)
}

// EnsureVcoreRuns implements atomicx.CoreRunner: ask the kernel (here,
// just this Runtime) to make sure target is running, on behalf of
// selfVcoreid, e.g. because a PDR lock holder appears to be preempted. If
// the vcore is merely RunningVcoreContext or RunningUthread, this is a
// cheap no-op IPI; if it is Preempted, a real kernel would schedule a
// restart, which in this simulator is the job of ksched's run_scheduler
// tick. While target sits preempted, any pending messages in its public
// mailbox are opportunistically moved to selfVcoreid's so they get
// serviced without waiting out the full preempt/restart cycle
// (try_handle_remote_mbox, spec.md Scenario E).
func (rt *Runtime) EnsureVcoreRuns(selfVcoreid, target uint32) {
	if target >= uint32(len(rt.vcores)) {
		return
	}
	if selfVcoreid < uint32(len(rt.vcores)) && selfVcoreid != target && rt.vcorePreempted(target) {
		rt.HandleRemoteMbox(selfVcoreid, target)
	}
	rt.IPI(target)
}

func (rt *Runtime) vcorePreempted(vcoreid uint32) bool {
	return rt.vcores[vcoreid].State() == Preempted
}

// HandleRemoteMbox drains remoteVcoreid's public mailbox into
// selfVcoreid's, the user-mode analogue of handle_vcpd_mbox: a live vcore
// that notices another one is down (e.g. spinning on a PDR lock it
// holds) rescues its pending messages rather than leaving them stranded
// until the kernel restarts remoteVcoreid.
func (rt *Runtime) HandleRemoteMbox(selfVcoreid, remoteVcoreid uint32) {
	if remoteVcoreid >= uint32(len(rt.vcores)) || selfVcoreid >= uint32(len(rt.vcores)) {
		return
	}
	remote := rt.vcores[remoteVcoreid].PublicMbox
	self := rt.vcores[selfVcoreid].PublicMbox
	for {
		msg, ok := remote.ExtractOne()
		if !ok {
			return
		}
		self.Post(msg)
	}
}
