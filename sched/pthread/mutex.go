package pthread

import (
	"sync"

	"github.com/akaros-project/mcp/uthread"
)

// Mutex parks blocked uthreads on a per-object queue rather than
// spinning, per spec.md §4.11: lock contention moves the waiter to
// Sched's ready queue once released instead of busy-waiting a vcore.
type Mutex struct {
	sched   *Sched
	mu      sync.Mutex
	held    bool
	waiters []*uthread.Uthread
}

// NewMutex constructs an unlocked Mutex served by sched's ready queue.
func NewMutex(sched *Sched) *Mutex {
	return &Mutex{sched: sched}
}

// Lock implements mutex_lock: acquires immediately if free, else parks
// the calling uthread until Unlock hands it the lock directly. A waiter
// woken by Unlock already owns the lock on return — Unlock never clears
// `held` when handing off, so there is nothing to re-check or re-race.
func (m *Mutex) Lock(u *uthread.Uthread, vcoreid uint32) {
	m.mu.Lock()
	if !m.held {
		m.held = true
		m.mu.Unlock()
		return
	}
	m.waiters = append(m.waiters, u)
	m.mu.Unlock()

	uthread.Yield(u, true, nil)
}

// Unlock implements mutex_unlock: if a waiter is queued, the lock passes
// directly to it (it is marked runnable, skipping the race of releasing
// and re-acquiring); otherwise the lock goes idle.
func (m *Mutex) Unlock(vcoreid uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.waiters) == 0 {
		m.held = false
		return
	}
	next := m.waiters[0]
	m.waiters = m.waiters[1:]
	uthread.MarkRunnable(next)
	m.sched.enqueue(vcoreid, next)
}
