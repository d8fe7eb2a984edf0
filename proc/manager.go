package proc

import (
	"fmt"
	"sync"

	"github.com/akaros-project/mcp/internal/obslog"
	"github.com/akaros-project/mcp/ksched"
	"github.com/akaros-project/mcp/procdata"
	"github.com/akaros-project/mcp/vcore"
)

// Manager is the kernel-side process table: it implements
// ksched.DesireQuerier so run_scheduler can ask it about, and act on,
// any process by pid, and it is the one place proc_create/
// __sched_proc_change_to_m/__sched_proc_destroy are called from.
type Manager struct {
	mu      sync.Mutex
	procs   map[ksched.ProcessID]*Process
	nextPID ksched.ProcessID
	ksched  *ksched.Ksched
	tscFreq uint64
}

// NewManager constructs an empty process table; the Ksched it drives is
// attached afterwards with Bind. Callers typically do:
//
//	mgr := proc.NewManager(tscFreq)
//	k := ksched.New(nrPcores, mgr)
//	mgr.Bind(k)
func NewManager(tscFreq uint64) *Manager {
	return &Manager{
		procs:   make(map[ksched.ProcessID]*Process),
		nextPID: 1,
		tscFreq: tscFreq,
	}
}

// Bind attaches the Ksched instance this manager drives resource
// requests through; separated from NewManager because Ksched.New itself
// needs a DesireQuerier, creating an unavoidable two-step wiring (mirrors
// the teacher's Server/Option two-phase construction where a callback
// needs a not-yet-built peer).
func (m *Manager) Bind(k *ksched.Ksched) { m.ksched = k }

// Create implements proc_create: builds a fresh procinfo/procdata pair
// for maxVcores vcores, registers it with ksched, and leaves it
// RUNNABLE_S (spec.md §4.8).
func (m *Manager) Create(ppid ksched.ProcessID, maxVcores uint32) *Process {
	m.mu.Lock()
	pid := m.nextPID
	m.nextPID++
	p := newProcess(pid, ppid, maxVcores, m.tscFreq)
	m.procs[pid] = p
	m.mu.Unlock()

	if m.ksched != nil {
		m.ksched.RegisterProc(pid)
	}
	p.setState(RunnableS)
	obslog.Info().Uint64("pid", uint64(pid)).Uint64("ppid", uint64(ppid)).Log("process created")
	return p
}

// Lookup returns the process for pid, if it still exists.
func (m *Manager) Lookup(pid ksched.ProcessID) (*Process, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procs[pid]
	return p, ok
}

// ChangeToM implements __sched_proc_change_to_m (spec.md §4.8): the
// one-time SCP→MCP transition. nrRequested is the initial vcore count
// the process asks for; vcore 0 always keeps running what was the SCP's
// single core, re-entered through entry like every other vcore (the
// 2LS's vcore_entry is responsible for distinguishing "this is a resumed
// SCP context" if it needs to).
func (m *Manager) ChangeToM(p *Process, nrRequested uint32, entry vcore.EntryFunc) error {
	if p.State() != RunningS && p.State() != RunnableS {
		return fmt.Errorf("proc: change_to_m: pid %d not an SCP (state %s)", p.pid, p.State())
	}
	p.Info.SetIsMCP(true)
	p.VC.SetEntry(entry)
	p.desiredCores.Store(nrRequested)
	p.setState(RunnableM)
	if m.ksched != nil {
		m.ksched.ChangeToM(p.pid)
	}
	obslog.Info().Uint64("pid", uint64(p.pid)).Uint64("nr_requested", uint64(nrRequested)).Log("process became MCP")
	return nil
}

// RequestCores updates p's desired core count (spec.md §6 resource
// requests) and pokes the scheduler to reconsider allocation.
func (m *Manager) RequestCores(p *Process, n uint32) {
	p.desiredCores.Store(n)
	if m.ksched != nil {
		m.ksched.WakeupMCP(p.pid)
	}
}

// Destroy implements __sched_proc_destroy: gathers every pcore currently
// mapped to p, hands them back to ksched in bulk, drops the table's
// reference, and (on the final decref) tears down the process.
func (m *Manager) Destroy(p *Process) {
	p.setState(Dying)
	var held []uint32
	for i := uint32(0); i < p.VC.NumVcores(); i++ {
		if v := p.VC.Vcore(i); v.State() != vcore.Unmapped {
			held = append(held, v.Pcoreid())
			p.VC.Unmap(i)
		}
	}
	if m.ksched != nil {
		m.ksched.DestroyProc(p.pid, held)
	}
	if p.DecRef() {
		m.mu.Lock()
		delete(m.procs, p.pid)
		m.mu.Unlock()
		obslog.Info().Uint64("pid", uint64(p.pid)).Log("process reaped")
	}
}

// DesiredCores implements ksched.DesireQuerier.
func (m *Manager) DesiredCores(pid ksched.ProcessID) uint32 {
	p, ok := m.Lookup(pid)
	if !ok {
		return 0
	}
	return p.desiredCores.Load()
}

// OnGrant implements ksched.DesireQuerier: publishes the new vcore into
// p's coremap and maps it onto the granted pcore.
func (m *Manager) OnGrant(pid ksched.ProcessID, pcoreid uint32) {
	p, ok := m.Lookup(pid)
	if !ok {
		return
	}
	var vcoreid uint32
	p.Info.WriteCoremap(func(vcoremap []procdata.VcoreEntry, pcoremap []procdata.PcoreEntry, setNumVcores func(uint32)) {
		for i := range vcoremap {
			if !vcoremap[i].Valid {
				vcoreid = uint32(i)
				vcoremap[i] = procdata.VcoreEntry{Valid: true, Pcoreid: pcoreid}
				pcoremap[pcoreid] = procdata.PcoreEntry{Valid: true, Vcoreid: uint32(i)}
				break
			}
		}
		n := uint32(0)
		for _, e := range vcoremap {
			if e.Valid {
				n++
			}
		}
		setNumVcores(n)
	})
	p.Info.SetResGrant(procdata.ResCores, uint64(p.Info.NumVcores()))
	p.VC.Map(vcoreid, pcoreid)
}

// OnRevoke implements ksched.DesireQuerier: the allocator preempted
// pcoreid from p; mark the owning vcore Preempted rather than unmapping
// it outright, so a restart can still resume it (spec.md §4.6 state 4).
func (m *Manager) OnRevoke(pid ksched.ProcessID, pcoreid uint32) {
	p, ok := m.Lookup(pid)
	if !ok {
		return
	}
	vcoreid, ok := p.Info.GetVcoreidFromPcoreid(pcoreid)
	if !ok {
		return
	}
	p.VC.BeginPreempt(vcoreid)
}

var _ ksched.DesireQuerier = (*Manager)(nil)
