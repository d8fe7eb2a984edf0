package ksched

import "github.com/akaros-project/mcp/internal/obslog"

// ChangeToM implements __sched_proc_change_to_m: the one-time SCP→MCP
// transition. The caller (proc package) has already flipped
// ProcInfo.IsMCP; ksched's part is to start tracking the process as a
// scheduling candidate and kick run_scheduler once, since an MCP
// typically wants more than the single core an SCP ran on.
func (k *Ksched) ChangeToM(pid ProcessID) {
	k.RegisterProc(pid)
	k.poke.Poke(nil)
}

// WakeupMCP implements __sched_mcp_wakeup: pid changed its resource
// desires (spec.md §6) and the scheduler should reconsider allocation.
// Coalesced through the same poke tracker as every other trigger so a
// storm of wakeups only runs run_scheduler a bounded number of times.
func (k *Ksched) WakeupMCP(pid ProcessID) {
	k.poke.Poke(nil)
}

// WakeupSCP implements __sched_scp_wakeup: an SCP (which owns exactly
// one vcore and never requests more) became runnable again after
// blocking; ksched's only job is to make sure its single core is still
// allocated, which run_scheduler's sweep covers.
func (k *Ksched) WakeupSCP(pid ProcessID) {
	k.poke.Poke(nil)
}

// RunScheduler is the public entry point for run_scheduler, exposed so
// callers (tests, cmd/akademo) can force a pass without waiting on a
// wakeup trigger.
func (k *Ksched) RunScheduler() {
	k.poke.Poke(nil)
}

// runScheduler is the PokeTracker-wrapped body of run_scheduler: never
// runs concurrently with itself, and a poke posted while it's running
// is guaranteed to trigger another pass. It walks every registered
// process, asks the querier how many cores it wants, and grants idle
// cores until demand is met or the idle pool is empty.
func (k *Ksched) runScheduler() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.querier == nil {
		return
	}
	for pid := range k.requests {
		desired := int(k.querier.DesiredCores(pid))
		for k.allocated[pid] < desired {
			pc, ok := k.popIdleLocked(pid)
			if !ok {
				if k.revokeForProvisionedLocked(pid) {
					continue
				}
				break
			}
			k.grantCoreLocked(pid, pc)
			obslog.Debug().Uint64("pid", uint64(pid)).Uint64("pcoreid", uint64(pc)).Log("granted core")
		}
	}
}

// revokeForProvisionedLocked implements the "revoke cores beyond their
// provision" half of spec.md §4.7: when the idle pool is dry and pid
// wants a core that's provisioned to it but currently held by some
// other process (which has no matching provision on it), preempt that
// core back. Returns true if a core was freed this way, so the caller's
// grant loop can retry popIdleLocked.
func (k *Ksched) revokeForProvisionedLocked(pid ProcessID) bool {
	r, ok := k.requests[pid]
	if !ok {
		return false
	}
	for _, pc := range r.provNotAllocMe {
		holder := k.pcores[pc].allocProc
		if holder == 0 || holder == pid {
			continue
		}
		if k.pcores[pc].provProc == holder {
			continue // legitimately provisioned to its current holder
		}
		k.trackCoreDeallocLocked(holder, pc)
		if k.querier != nil {
			k.querier.OnRevoke(holder, pc)
		}
		return true
	}
	return false
}
