package atomicx

import "sync/atomic"

// UnlockedHolder is the sentinel lock-word value meaning "not held".
const UnlockedHolder = ^uint32(0)

// CoreRunner is the minimal kernel/runtime hook a SpinPDR lock needs in
// order to recover from spinning on a preempted holder: ask whoever owns
// vcore scheduling to restart a specific vcore (sys_change_vcore, in the
// original kernel ABI). selfVcoreid identifies the spinner, so the
// runtime can also opportunistically drain target's mailbox into
// selfVcoreid's while target is down (try_handle_remote_mbox).
// Implemented by *vcore.Runtime.
type CoreRunner interface {
	EnsureVcoreRuns(selfVcoreid, target uint32)
}

// SpinPDR is a preemption-detection-and-recovery spinlock (spec C1).
//
// Two equivalent disciplines are implemented, selected by UseCAS:
//   - CAS variant: the lock word is UnlockedHolder or the holder's vcoreid.
//     A spinner CASes its own vcoreid in only when the slot reads
//     UnlockedHolder, and while spinning calls EnsureVcoreRuns(holder) so a
//     preempted holder gets restarted by the kernel/ksched.
//   - Non-CAS variant: a plain test-and-set bit plus an auxiliary holder
//     field; spinners that can't yet read a valid holder ensure *every*
//     vcore runs (a performance hazard at scale — fallback only, per
//     spec.md's open questions).
//
// Locks taken in vcore context must not sleep; locks taken in uthread
// context are expected to be wrapped by the caller with
// uth_disable_notifs/uth_enable_notifs so preemption handlers know not to
// save/migrate the calling uthread mid-critical-section.
type SpinPDR struct {
	holder atomic.Uint32 // UnlockedHolder, or the holder's vcoreid
	taken  atomic.Bool   // non-CAS variant: plain test-and-set bit

	UseCAS bool
	Runner CoreRunner
}

// NewSpinPDR constructs an unlocked SpinPDR lock using the CAS discipline.
func NewSpinPDR(runner CoreRunner) *SpinPDR {
	l := &SpinPDR{UseCAS: true, Runner: runner}
	l.holder.Store(UnlockedHolder)
	return l
}

// Lock acquires the lock on behalf of vcoreid, spinning (and, if the
// current holder is known and not running, nudging the kernel to restart
// it) until acquired.
func (l *SpinPDR) Lock(vcoreid uint32) {
	if l.UseCAS {
		l.lockCAS(vcoreid)
		return
	}
	l.lockTAS(vcoreid)
}

func (l *SpinPDR) lockCAS(vcoreid uint32) {
	for {
		if l.holder.CompareAndSwap(UnlockedHolder, vcoreid) {
			return
		}
		if holder := l.holder.Load(); holder != UnlockedHolder && l.Runner != nil {
			l.Runner.EnsureVcoreRuns(vcoreid, holder)
		}
	}
}

// Unlock releases a CAS-discipline lock held by vcoreid. Unlock must only
// be called by the current holder; correctness relies on the lock word
// moving monotonically unlocked -> holder -> unlocked.
func (l *SpinPDR) Unlock(vcoreid uint32) {
	if l.UseCAS {
		l.holder.CompareAndSwap(vcoreid, UnlockedHolder)
		return
	}
	l.holder.Store(UnlockedHolder)
	l.taken.Store(false)
}

func (l *SpinPDR) lockTAS(vcoreid uint32) {
	for !l.taken.CompareAndSwap(false, true) {
		if holder := l.holder.Load(); holder != UnlockedHolder && l.Runner != nil {
			l.Runner.EnsureVcoreRuns(vcoreid, holder)
		} else if l.Runner != nil {
			// Can't identify the holder yet: fall back to nudging every
			// live vcore. Spec.md flags this as a scale hazard; it is a
			// last resort, not the steady-state path.
			l.Runner.EnsureVcoreRuns(vcoreid, AllVcores)
		}
	}
	l.holder.Store(vcoreid)
}

// AllVcores is the sentinel EnsureVcoreRuns argument meaning "every vcore",
// used only by the non-CAS SpinPDR fallback.
const AllVcores = ^uint32(0) - 1

// TryLock attempts a non-blocking acquisition, returning false immediately
// if the lock is held.
func (l *SpinPDR) TryLock(vcoreid uint32) bool {
	if l.UseCAS {
		return l.holder.CompareAndSwap(UnlockedHolder, vcoreid)
	}
	if l.taken.CompareAndSwap(false, true) {
		l.holder.Store(vcoreid)
		return true
	}
	return false
}

// Holder reports the current holder's vcoreid, or UnlockedHolder.
func (l *SpinPDR) Holder() uint32 {
	return l.holder.Load()
}
