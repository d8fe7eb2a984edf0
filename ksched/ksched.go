// Package ksched implements the core allocator (spec.md component C7):
// idle-core tracking, per-pcore alloc/provision bookkeeping, and the
// provision/allocate/deallocate/poke algorithms of spec.md §4.7.
package ksched

import (
	"sync"

	"github.com/akaros-project/mcp/atomicx"
	"github.com/akaros-project/mcp/internal/obslog"
	"github.com/akaros-project/mcp/internal/pdrsync"
)

// ProcessID identifies a process to ksched; proc.Process.PID() supplies
// it, kept as a plain type here so ksched never imports proc (proc
// depends on ksched, not the reverse).
type ProcessID uint32

// DesireQuerier lets run_scheduler ask a process how many more cores it
// wants, without ksched importing proc directly.
type DesireQuerier interface {
	// DesiredCores returns pid's total desired core count (spec.md §6
	// "resource requests"); run_scheduler tries to raise pid's allocation
	// toward this number.
	DesiredCores(pid ProcessID) uint32
	// OnGrant is called once per pcore granted to pid.
	OnGrant(pid ProcessID, pcoreid uint32)
	// OnRevoke is called once per pcore revoked from pid (a preempt
	// message sent, per spec.md §4.7's "revoke cores ... beyond their
	// provision").
	OnRevoke(pid ProcessID, pcoreid uint32)
}

type pcoreRec struct {
	allocProc ProcessID // 0 = unallocated
	provProc  ProcessID // 0 = unprovisioned
}

type procRequest struct {
	provAllocMe    []uint32 // provisioned to this proc AND currently allocated to it
	provNotAllocMe []uint32 // provisioned to this proc but not currently allocated
}

// Ksched is the core allocator for one machine's worth of CG pcores.
type Ksched struct {
	mu        sync.Mutex
	pcores    []pcoreRec
	idlecores []uint32 // LIFO: append/pop from the end for recycling
	requests  map[ProcessID]*procRequest
	querier   DesireQuerier
	allocated map[ProcessID]int

	poke *atomicx.PokeTracker
}

// New constructs a Ksched managing nrPcores CG pcores, all initially
// idle.
func New(nrPcores uint32, querier DesireQuerier) *Ksched {
	k := &Ksched{
		pcores:    make([]pcoreRec, nrPcores),
		requests:  make(map[ProcessID]*procRequest),
		allocated: make(map[ProcessID]int),
		querier:   querier,
	}
	for i := uint32(0); i < nrPcores; i++ {
		k.idlecores = append(k.idlecores, i)
	}
	k.poke = atomicx.NewPokeTracker(func(any) { k.runScheduler() })
	return k
}

// RegisterProc implements __sched_proc_register.
func (k *Ksched) RegisterProc(pid ProcessID) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.requests[pid]; !ok {
		k.requests[pid] = &procRequest{}
	}
}

// DestroyProc implements __sched_proc_destroy: returns every pcore in
// pcoreids to the allocator in bulk and removes pid from all
// provisioning lists.
func (k *Ksched) DestroyProc(pid ProcessID, pcoreids []uint32) {
	k.rendezvousBulkReclaim(pcoreids)

	k.mu.Lock()
	defer k.mu.Unlock()
	for _, pc := range pcoreids {
		k.trackCoreDeallocLocked(pid, pc)
	}
	for i := range k.pcores {
		if k.pcores[i].provProc == pid {
			k.pcores[i].provProc = 0
		}
	}
	delete(k.requests, pid)
	obslog.Info().Uint64("pid", uint64(pid)).Log("process destroyed, cores reclaimed")
}

// rendezvousBulkReclaim gates bulk reclaim on every pcore in pcoreids
// having reached this point, reusing the same sense-reversing barrier
// sched/pthread's barrier.go builds on (generalized from the original
// kernel's checklist_t/barrier_t, kern/atomic.h), so __sched_proc_destroy
// never observes bulk revoke as a half-applied set of individual ones:
// either every named pcore arrives and all are deallocated together, or
// none are.
func (k *Ksched) rendezvousBulkReclaim(pcoreids []uint32) {
	if len(pcoreids) == 0 {
		return
	}
	b := pdrsync.NewBarrier(len(pcoreids), nil)
	var wg sync.WaitGroup
	wg.Add(len(pcoreids))
	for range pcoreids {
		go func() {
			defer wg.Done()
			b.Wait()
		}()
	}
	wg.Wait()
}
