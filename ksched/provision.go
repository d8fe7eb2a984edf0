package ksched

// ProvisionCore implements provision_core: marks pcoreid as pid's,
// stealing it from whatever process previously had it provisioned (a
// provision is exclusive; spec.md §4.7 "at most one process provisioned
// per pcore"). Provisioning does not itself grant the core; it only
// biases future run_scheduler decisions and popIdleLocked's preference
// order toward pid.
func (k *Ksched) ProvisionCore(pid ProcessID, pcoreid uint32) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if int(pcoreid) >= len(k.pcores) {
		return
	}
	rec := &k.pcores[pcoreid]
	if prev := rec.provProc; prev != 0 && prev != pid {
		if r, ok := k.requests[prev]; ok {
			r.provAllocMe = removeUint32(r.provAllocMe, pcoreid)
			r.provNotAllocMe = removeUint32(r.provNotAllocMe, pcoreid)
		}
	}
	rec.provProc = pid
	r := k.reqFor(pid)
	if rec.allocProc == pid {
		if indexOfUint32(r.provAllocMe, pcoreid) < 0 {
			r.provAllocMe = append(r.provAllocMe, pcoreid)
		}
	} else {
		if indexOfUint32(r.provNotAllocMe, pcoreid) < 0 {
			r.provNotAllocMe = append(r.provNotAllocMe, pcoreid)
		}
	}
}

func indexOfUint32(s []uint32, v uint32) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
