package atomicx

import "sync/atomic"

// PokeTracker is original_source user/parlib/poke.c's post-and-poke
// synchronization: a wait-free way to ensure some function runs at least
// once after it was asked to, without ever running concurrently with
// itself. Under contention everyone just posts (sets NeedToRun) and
// exactly one caller carries out the work, looping to pick up any work
// posted while it ran.
type PokeTracker struct {
	needToRun      atomic.Bool
	runInProgress  atomic.Bool
	Func           func(arg any)
}

// NewPokeTracker constructs a tracker around fn.
func NewPokeTracker(fn func(arg any)) *PokeTracker {
	return &PokeTracker{Func: fn}
}

// Poke ensures Func runs at least once after this call: by the time Poke
// returns, Func either has run (reflecting this call's post) or is
// currently running and will notice the posted work on its next
// iteration. Safe to call recursively, from within Func itself.
func (p *PokeTracker) Poke(arg any) {
	p.needToRun.Store(true)
	for {
		if p.runInProgress.Swap(true) {
			// Someone else is already running; they'll see need_to_run.
			return
		}
		p.needToRun.Store(false)
		p.Func(arg)
		p.runInProgress.Store(false)
		if !p.needToRun.Load() {
			return
		}
	}
}
