package procdata

import "sync/atomic"

// PreemptData is the per-vcore notification/preemption record, grounded
// on original_source/kern/include/ros/notification.h's "struct
// preempt_data". The trapframe/ancillary-state fields of the original are
// hardware context the simulator never executes, so they are left out
// (no package saves or restores a trapframe here), and the fields this
// package cares about — notif_pending, notif_disabled, the transition
// stack pointer, the indirection-event slot — keep their original shape
// and race behavior.
type PreemptData struct {
	TransitionStack  uintptr
	PreemptPending   atomic.Uint64
	NotifDisabled    atomic.Bool // inverse of notif_enabled: true means vcore context, no one should notify it
	NotifPending     atomic.Bool

	// PreemptTFValid is preempt_tf_valid from the original: a seqctr
	// guarding whether preempt_tf holds a usable saved context.
	PreemptTFValid SeqCtr

	// SpamIndir is the dedicated single-slot "mailbox" a SPAM_INDIR event
	// queue's indirection event lands in (SPEC_FULL.md §11, supplementing
	// the distilled spec's silence on where the kernel actually posts an
	// indirection event): it can only ever remember one pending ev_q at a
	// time, so it holds that ev_q's registry id rather than allocating a
	// UCQ slot per spec.md §4.4 step 5's "avoid UCQ allocation". -1 means
	// empty. A second SPAM_INDIR racing in before the first is drained
	// overwrites it, which is the same tie-break ambiguity spec.md §9
	// notes the original kernel has.
	SpamIndir atomic.Int64
}

// ProcData is the kernel-and-user-writable page (procdata_t in the
// original, sibling to procinfo_t). Where procinfo is "mostly written by
// the kernel, read by the user", procdata is written by both sides:
// vcore preemption state by the kernel, resource desires and argv by the
// user.
type ProcData struct {
	vcorePreempt []*PreemptData

	// ResourceDesires is the per-resource-type count the user side has
	// asked for (spec.md §6 "Resource requests"), set and read through
	// SetResourceDesire/ResourceDesire. ksched does not read it: it asks
	// proc.Manager.DesiredCores, which reports the Process's own count.
	resourceDesires [numResources]atomic.Uint64

	argv   []string
	argbuf string
}

// NewProcData constructs a ProcData with PreemptData allocated for
// maxVcores vcores.
func NewProcData(maxVcores uint32) *ProcData {
	pd := &ProcData{vcorePreempt: make([]*PreemptData, maxVcores)}
	for i := range pd.vcorePreempt {
		pdat := &PreemptData{}
		pdat.SpamIndir.Store(-1)
		pd.vcorePreempt[i] = pdat
	}
	return pd
}

// VcorePreemptData returns the PreemptData for vcoreid. The returned
// pointer is long-lived and safe to retain; its fields are all
// independently synchronized.
func (pd *ProcData) VcorePreemptData(vcoreid uint32) *PreemptData {
	return pd.vcorePreempt[vcoreid]
}

func (pd *ProcData) ResourceDesire(r Resource) uint64 {
	return pd.resourceDesires[r].Load()
}

func (pd *ProcData) SetResourceDesire(r Resource, n uint64) {
	pd.resourceDesires[r].Store(n)
}

// Argv returns the process's argument vector, mirroring the original's
// argp/argbuf: the kernel populates this once at exec time from an
// argbuf the user later re-reads (e.g. to implement getenv-style lookups
// without a syscall).
func (pd *ProcData) Argv() []string { return pd.argv }

// SetArgv stores argv and its flattened argbuf form. Called once, at
// process creation.
func (pd *ProcData) SetArgv(argv []string) {
	pd.argv = argv
	buf := ""
	for _, a := range argv {
		buf += a + "\x00"
	}
	pd.argbuf = buf
}
