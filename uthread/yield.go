package uthread

// Yield implements uthread_yield: called from inside a uthread's own
// goroutine (body fn). It runs yieldFn — typically a call to
// Ops.ThreadHasBlocked or a 2LS-specific park — then hands control back
// to whatever called RunUthread, and only resumes this goroutine's
// forward progress once a future RunUthread call fires again.
//
// save mirrors spec.md §4.9's save_user_ctx/pop_user_ctx pair: when
// false, the uthread is not parked for later resumption at all (used for
// the final yield of a uthread that is about to exit, where there is
// nothing worth saving).
func Yield(u *Uthread, save bool, yieldFn func(u *Uthread)) {
	if yieldFn != nil {
		yieldFn(u)
	}
	if !save {
		u.state.Store(int32(Done))
		u.yieldedCh <- struct{}{}
		return
	}
	u.state.Store(int32(Blocked))
	u.yieldedCh <- struct{}{}
	<-u.resumeCh
	u.state.Store(int32(Running))
}

// MarkRunnable implements the Ops.ThreadRunnable half of a wakeup: flips
// a blocked uthread back to Runnable so the 2LS's sched_entry will
// consider it again. The 2LS is responsible for actually re-queuing u;
// this only updates the state the uthread layer itself tracks.
func MarkRunnable(u *Uthread) {
	u.state.Store(int32(Runnable))
}

// FlushFPState implements the lazy-FPSAVED flush referenced in spec.md
// §4.9: called under the source vcore's PDR protection before migrating
// u to a different vcore than savedVcore.
func (u *Uthread) FlushFPState() {
	u.fpInHW.Store(false)
}

// MarkFPInHW records that u's FPU state currently lives in hardware on
// its saved vcore (set after a context switch that left it there rather
// than spilling it into the saved context).
func (u *Uthread) MarkFPInHW() {
	u.fpInHW.Store(true)
}

// FPInHW reports whether a migration to another vcore would first need
// FlushFPState.
func (u *Uthread) FPInHW() bool {
	return u.fpInHW.Load()
}
