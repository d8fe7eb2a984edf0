// Package vcore implements the vcore state machine (spec.md component
// C6): the four states a vcore moves through, the notification/re-entry
// invariants guarding transitions, and the per-vcore public mailbox used
// for INDIR and SPAM_INDIR delivery.
package vcore

import (
	"sync/atomic"

	"github.com/akaros-project/mcp/mailbox"
	"github.com/akaros-project/mcp/procdata"
)

// State is one of the four vcore states from spec.md §4.6.
type State int32

const (
	Unmapped State = iota
	RunningUthread
	RunningVcoreContext
	Preempted
)

func (s State) String() string {
	switch s {
	case Unmapped:
		return "unmapped"
	case RunningUthread:
		return "running-uthread"
	case RunningVcoreContext:
		return "running-vcore-context"
	case Preempted:
		return "preempted"
	default:
		return "invalid"
	}
}

// Vcore is one of a process's virtual cores.
type Vcore struct {
	ID      uint32
	state   atomic.Int32
	pcoreid atomic.Uint32 // bound pcore, only meaningful when not Unmapped

	// Preempt is this vcore's slot in procdata (notification flags and
	// the SPAM_INDIR slot).
	Preempt *procdata.PreemptData

	// PublicMbox is ev_mbox_public: the target of INDIR and SPAM_PUBLIC
	// deliveries (spec.md §4.4 step 3/5). Always a UCQ: an indirection
	// pointer must never be lost or coalesced away.
	PublicMbox *mailbox.UCQ

	nrPreemptsSent atomic.Uint32
	nrPreemptsDone atomic.Uint32

	// TLS is this vcore's own thread-local storage slot, distinct from
	// any uthread's TLS (spec.md §4.9: vcore context has its own TLS
	// descriptor). The 2LS swaps a uthread's TLS in before popping it and
	// restores this one before running vcore-context code again.
	TLS any
}

func newVcore(id uint32, preempt *procdata.PreemptData) *Vcore {
	v := &Vcore{ID: id, Preempt: preempt, PublicMbox: mailbox.NewUCQ()}
	v.state.Store(int32(Unmapped))
	return v
}

func (v *Vcore) State() State { return State(v.state.Load()) }

// Pcoreid returns the pcore currently bound to v; only meaningful when
// State() is not Unmapped.
func (v *Vcore) Pcoreid() uint32 { return v.pcoreid.Load() }

// Runnable reports whether v can currently receive an event delivery:
// mapped to a pcore and not mid-preemption. Running-vcore-context still
// counts as runnable for delivery purposes (notif_disabled only blocks
// *notifications*, not mailbox posts, per spec.md §4.6).
func (v *Vcore) Runnable() bool {
	s := v.State()
	return s == RunningUthread || s == RunningVcoreContext
}

// NotifDisabled reports whether the kernel may currently deliver a
// notification (interrupt-and-reenter) to v, as opposed to merely posting
// to its mailbox.
func (v *Vcore) NotifDisabled() bool { return v.Preempt.NotifDisabled.Load() }

func (v *Vcore) PreemptsOutstanding() bool {
	return v.nrPreemptsSent.Load() > v.nrPreemptsDone.Load()
}
