package alarm

// NewWaiter implements init_awaiter: constructs a fresh, unarmed Waiter.
func NewWaiter(fn func(w *Waiter)) *Waiter {
	return &Waiter{Func: fn}
}

// SetAbs implements set_awaiter_abs_unix, expressed directly in TSC
// ticks rather than absolute microseconds (the chain only ever compares
// TSC values).
func (w *Waiter) SetAbs(tscDeadline uint64) { w.WakeUpTime = tscDeadline }

// SetRel implements set_awaiter_rel: arm for usec microseconds from now,
// per clock.
func (w *Waiter) SetRel(clock *Clock, usec uint64) {
	w.WakeUpTime = clock.NowTSC() + clock.USec2TSC(usec)
}

// SetInc implements set_awaiter_inc: advance the existing deadline by
// usec microseconds rather than measuring from now, so a periodic
// handler resisting drift can chain itself without accumulating the
// time its own execution took.
func (w *Waiter) SetInc(clock *Clock, usec uint64) {
	w.WakeUpTime += clock.USec2TSC(usec)
}
