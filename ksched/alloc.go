package ksched

// grantCoreLocked and trackCoreDeallocLocked maintain the
// provAllocMe/provNotAllocMe split named in spec.md §4.7: a pcore
// provisioned to a process moves between the two lists as it is handed
// out and taken back, so provision_core and run_scheduler can each
// consult a cheap, pre-partitioned view instead of rescanning all_pcores.

func (k *Ksched) reqFor(pid ProcessID) *procRequest {
	r, ok := k.requests[pid]
	if !ok {
		r = &procRequest{}
		k.requests[pid] = r
	}
	return r
}

func removeUint32(s []uint32, v uint32) []uint32 {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// grantCoreLocked hands pcoreid to pid: marks it allocated, updates
// pid's provisioning bucket, and notifies the querier. Callers take
// pcoreid off idlecores first (popIdleLocked).
func (k *Ksched) grantCoreLocked(pid ProcessID, pcoreid uint32) {
	k.pcores[pcoreid].allocProc = pid
	if k.pcores[pcoreid].provProc == pid {
		r := k.reqFor(pid)
		r.provNotAllocMe = removeUint32(r.provNotAllocMe, pcoreid)
		r.provAllocMe = append(r.provAllocMe, pcoreid)
	}
	k.allocated[pid]++
	if k.querier != nil {
		k.querier.OnGrant(pid, pcoreid)
	}
}

// trackCoreDeallocLocked reclaims pcoreid from whichever process held
// it (__sched_put_idle_core / part of __sched_proc_destroy) and returns
// it to the idle stack.
func (k *Ksched) trackCoreDeallocLocked(pid ProcessID, pcoreid uint32) {
	if int(pcoreid) >= len(k.pcores) {
		return
	}
	rec := &k.pcores[pcoreid]
	if rec.allocProc != pid {
		return
	}
	rec.allocProc = 0
	if rec.provProc == pid {
		r := k.reqFor(pid)
		r.provAllocMe = removeUint32(r.provAllocMe, pcoreid)
		r.provNotAllocMe = append(r.provNotAllocMe, pcoreid)
	}
	if k.allocated[pid] > 0 {
		k.allocated[pid]--
	}
	k.idlecores = append(k.idlecores, pcoreid)
}

// PutIdleCore implements __sched_put_idle_core: pid voluntarily yields
// pcoreid back to the allocator.
func (k *Ksched) PutIdleCore(pid ProcessID, pcoreid uint32) {
	k.mu.Lock()
	k.trackCoreDeallocLocked(pid, pcoreid)
	k.mu.Unlock()
	k.poke.Poke(nil)
}

// PutIdleCores implements __sched_put_idle_cores, the bulk form used
// when a process drops out of several cores at once (e.g. responding to
// a resource grant reduction).
func (k *Ksched) PutIdleCores(pid ProcessID, pcoreids []uint32) {
	k.mu.Lock()
	for _, pc := range pcoreids {
		k.trackCoreDeallocLocked(pid, pc)
	}
	k.mu.Unlock()
	k.poke.Poke(nil)
}

// popIdleLocked pops one pcore off the idle stack, preferring one
// already provisioned to pid if present (spec.md §4.7: "prefer a
// process's own provisioned-but-idle cores over the general pool").
func (k *Ksched) popIdleLocked(pid ProcessID) (uint32, bool) {
	if r, ok := k.requests[pid]; ok && len(r.provNotAllocMe) > 0 {
		pc := r.provNotAllocMe[len(r.provNotAllocMe)-1]
		for i, idle := range k.idlecores {
			if idle == pc {
				k.idlecores = append(k.idlecores[:i], k.idlecores[i+1:]...)
				return pc, true
			}
		}
	}
	if len(k.idlecores) == 0 {
		return 0, false
	}
	pc := k.idlecores[len(k.idlecores)-1]
	k.idlecores = k.idlecores[:len(k.idlecores)-1]
	return pc, true
}
