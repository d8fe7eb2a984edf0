package pthread

import (
	"sync"

	"github.com/akaros-project/mcp/uthread"
)

// Cond is a condition variable parking uthreads on a wait queue, matched
// with a Mutex the caller holds across Wait (spec.md §4.11).
type Cond struct {
	mu   sync.Mutex
	wait []*uthread.Uthread
}

// NewCond constructs an empty condition variable.
func NewCond() *Cond { return &Cond{} }

// Wait implements cond_wait: atomically releases m and parks u, to be
// resumed only by a matching Signal/Broadcast; re-acquires m before
// returning, as POSIX cond_wait requires.
func (c *Cond) Wait(u *uthread.Uthread, m *Mutex, vcoreid uint32) {
	c.mu.Lock()
	c.wait = append(c.wait, u)
	c.mu.Unlock()

	m.Unlock(vcoreid)
	uthread.Yield(u, true, nil)
	m.Lock(u, vcoreid)
}

// Signal implements cond_signal: wakes at most one waiter.
func (c *Cond) Signal(vcoreid uint32, sched *Sched) {
	c.mu.Lock()
	if len(c.wait) == 0 {
		c.mu.Unlock()
		return
	}
	u := c.wait[0]
	c.wait = c.wait[1:]
	c.mu.Unlock()

	uthread.MarkRunnable(u)
	sched.enqueue(vcoreid, u)
}

// Broadcast implements cond_broadcast: wakes every current waiter.
func (c *Cond) Broadcast(vcoreid uint32, sched *Sched) {
	c.mu.Lock()
	woken := c.wait
	c.wait = nil
	c.mu.Unlock()

	for _, u := range woken {
		uthread.MarkRunnable(u)
		sched.enqueue(vcoreid, u)
	}
}
