// Package procdata implements the shared procinfo (read-only) and procdata
// (read-write) pages from spec.md component C2, grounded field-for-field
// on original_source/kern/include/ros/procinfo.h. In the hosted Go
// simulator (SPEC_FULL.md §0) there is no real memory-protection boundary
// between kernel and user; "read-only" is enforced by convention, exposed
// only through accessor methods that never let a caller outside this
// package obtain a mutable reference.
package procdata

import (
	"sync/atomic"

	"github.com/akaros-project/mcp/atomicx"
)

// Resource indexes res_grant, mirroring ros/resource.h's resource types.
// Only the ones the simulator actually grants are named; everything else
// a real kernel tracks (memory, fd quota, ...) is out of scope.
type Resource int

const (
	ResCores Resource = iota
	numResources
)

// VcoreEntry mirrors original_source's "struct vcore" embedded in
// vcoremap: the kernel's view of one vcore slot, as seen from procinfo.
type VcoreEntry struct {
	Pcoreid        uint32
	Valid          bool
	NrPreemptsSent uint32
	NrPreemptsDone uint32
	PreemptPending uint64
	ResumeTicks    uint64
	TotalTicks     uint64
}

// PcoreEntry mirrors original_source's "struct pcore": the reverse
// mapping, pcoreid -> vcoreid.
type PcoreEntry struct {
	Vcoreid uint32
	Valid   bool
}

// ProcInfo is the kernel-writable, user-readable page (original_source
// procinfo_t). Fields are read through accessors; only the coremap
// lookups (GetVcoreidFromPcoreid, VcoreMapping) retry under the seqctr
// seqlock that WriteCoremap holds. Nothing here is exported for direct
// field access from outside the package.
type ProcInfo struct {
	pid        uint32
	ppid       uint32
	maxVcores  uint32
	tscFreq    uint64
	programEnd uintptr
	isMCP      atomic.Bool

	resGrant  [numResources]uint64
	vcoremap  []VcoreEntry
	pcoremap  []PcoreEntry
	numVcores uint32

	seqctr SeqCtr
}

// NewProcInfo constructs a ProcInfo for a process with room for up to
// maxVcores vcores/pcores.
func NewProcInfo(pid, ppid, maxVcores uint32, tscFreq uint64) *ProcInfo {
	pi := &ProcInfo{
		pid:       pid,
		ppid:      ppid,
		maxVcores: maxVcores,
		tscFreq:   tscFreq,
		vcoremap:  make([]VcoreEntry, maxVcores),
		pcoremap:  make([]PcoreEntry, maxVcores),
	}
	for i := range pi.pcoremap {
		pi.pcoremap[i].Vcoreid = atomicx.UnlockedHolder // sentinel "no vcore"
	}
	return pi
}

func (pi *ProcInfo) PID() uint32       { return pi.pid }
func (pi *ProcInfo) PPID() uint32      { return pi.ppid }
func (pi *ProcInfo) MaxVcores() uint32 { return pi.maxVcores }
func (pi *ProcInfo) TSCFreq() uint64   { return pi.tscFreq }
func (pi *ProcInfo) ProgramEnd() uintptr { return pi.programEnd }
func (pi *ProcInfo) SetProgramEnd(end uintptr) { pi.programEnd = end }

func (pi *ProcInfo) IsMCP() bool        { return pi.isMCP.Load() }
func (pi *ProcInfo) SetIsMCP(mcp bool)  { pi.isMCP.Store(mcp) }

func (pi *ProcInfo) ResGrant(r Resource) uint64 { return pi.resGrant[r] }

// SetResGrant updates the published resource grant (spec.md §4.8: the
// allocator records what it has actually handed out here, distinct from
// ProcData's resourceDesires which records what the process asked for).
func (pi *ProcInfo) SetResGrant(r Resource, n uint64) { pi.resGrant[r] = n }

func (pi *ProcInfo) NumVcores() uint32 { return pi.numVcores }

// WriteCoremap performs an atomic update of the vcoremap/pcoremap/
// num_vcores triple under the seqlock, per spec.md §4.2: "writers of the
// coremap must bracket the update with BeginWrite/EndWrite so concurrent
// readers can detect and retry a torn read." fn receives direct slice
// access; only the kernel side (ksched, proc) ever calls this.
func (pi *ProcInfo) WriteCoremap(fn func(vcoremap []VcoreEntry, pcoremap []PcoreEntry, setNumVcores func(uint32))) {
	pi.seqctr.BeginWrite()
	defer pi.seqctr.EndWrite()
	fn(pi.vcoremap, pi.pcoremap, func(n uint32) { pi.numVcores = n })
}

// GetVcoreidFromPcoreid mirrors __get_vcoreid_from_procinfo: given a
// pcoreid, look up the owning vcoreid via a seqlock read-retry loop so a
// racing coremap update never yields a torn (pcoreid, vcoreid) pair.
func (pi *ProcInfo) GetVcoreidFromPcoreid(pcoreid uint32) (vcoreid uint32, ok bool) {
	for {
		seq := pi.seqctr.BeginRead()
		if int(pcoreid) >= len(pi.pcoremap) || !pi.pcoremap[pcoreid].Valid {
			vcoreid, ok = 0, false
		} else {
			vcoreid, ok = pi.pcoremap[pcoreid].Vcoreid, true
		}
		if !pi.seqctr.Retry(seq) {
			return
		}
	}
}

// VcoreMapping returns a snapshot of vcoremap[vcoreid], retrying under the
// seqlock until it observes a consistent entry.
func (pi *ProcInfo) VcoreMapping(vcoreid uint32) (entry VcoreEntry, ok bool) {
	for {
		seq := pi.seqctr.BeginRead()
		if int(vcoreid) >= len(pi.vcoremap) {
			entry, ok = VcoreEntry{}, false
		} else {
			entry, ok = pi.vcoremap[vcoreid], pi.vcoremap[vcoreid].Valid
		}
		if !pi.seqctr.Retry(seq) {
			return
		}
	}
}
