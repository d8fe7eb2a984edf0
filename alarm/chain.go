package alarm

import (
	"container/heap"
	"sync"

	"github.com/akaros-project/mcp/eventmsg"
)

// Waiter mirrors original_source's struct alarm_waiter. Func runs from
// vcore context (spec.md §4.5) with the chain's lock released, so it may
// re-arm itself or others via Chain.Set; calling Chain.Unset on its own
// waiter from within Func blocks, since Unset waits for the running
// handler to finish.
type Waiter struct {
	WakeUpTime uint64 // absolute TSC deadline
	Func       func(w *Waiter)
	Data       any

	onChain bool
	index   int // heap slot, maintained by waiterHeap
}

// waiterHeap is a min-heap by WakeUpTime, the sorted-collection
// replacement SPEC_FULL.md's redesign calls for in place of
// original_source's "ideally not a LL" TAILQ, grounded on eventloop's
// timerHeap (container/heap over a slice of deadlines).
type waiterHeap []*Waiter

func (h waiterHeap) Len() int            { return len(h) }
func (h waiterHeap) Less(i, j int) bool  { return h[i].WakeUpTime < h[j].WakeUpTime }
func (h waiterHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *waiterHeap) Push(x any) {
	w := x.(*Waiter)
	w.index = len(*h)
	*h = append(*h, w)
}
func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	w.index = -1
	return w
}

// Chain is the per-process timer chain (spec.md §4.5): a sorted
// collection of waiters backed by exactly one Device, reprogrammed to
// track the earliest pending deadline.
type Chain struct {
	mu      sync.Mutex
	waiters waiterHeap
	running *Waiter
	doneCh  chan struct{} // closed and replaced each time `running` clears, for Unset to wait on

	dev *Device
}

// NewChain constructs an empty Chain backed by dev. It does not register
// any handler itself: callers must route dev's bound ev_q's
// EV_ALARM events to Chain.HandleAlarmEvent (e.g. via
// eventq.Registry.RegisterHandler), since spec.md §4.5 describes the
// pop-due-waiters step as "a dedicated vcore-context handler" reacting
// to that event rather than the device firing directly into the chain.
func NewChain(dev *Device) *Chain {
	return &Chain{dev: dev, doneCh: make(chan struct{})}
}

// Set implements set_alarm: arms w at its WakeUpTime, reprogramming the
// backing device if w is now the earliest pending waiter.
func (c *Chain) Set(w *Waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w.onChain = true
	heap.Push(&c.waiters, w)
	if c.waiters[0] == w {
		c.dev.SetTime(w.WakeUpTime)
	}
}

// Unset implements unset_alarm's three cases: still queued (remove, and
// reprogram if it was the head); currently firing (wait for the handler
// to finish, then report false — it already fired); already gone
// (false).
func (c *Chain) Unset(w *Waiter) bool {
	c.mu.Lock()
	if w.onChain {
		heap.Remove(&c.waiters, w.index)
		w.onChain = false
		if len(c.waiters) > 0 {
			c.dev.SetTime(c.waiters[0].WakeUpTime)
		} else {
			c.dev.Disable()
		}
		c.mu.Unlock()
		return true
	}
	if c.running == w {
		done := c.doneCh
		c.mu.Unlock()
		<-done
		return false
	}
	c.mu.Unlock()
	return false
}

// Reset implements reset_alarm_abs: atomically relocate w to absTime,
// equivalent to Unset (if queued) followed by Set at the new time.
func (c *Chain) Reset(w *Waiter, absTime uint64) {
	c.mu.Lock()
	if w.onChain {
		heap.Remove(&c.waiters, w.index)
		w.onChain = false
	}
	w.WakeUpTime = absTime
	w.onChain = true
	heap.Push(&c.waiters, w)
	head := c.waiters[0]
	c.mu.Unlock()
	c.dev.SetTime(head.WakeUpTime)
}

// HandleAlarmEvent is the dedicated vcore-context handler spec.md §4.5
// describes: pop every waiter whose deadline has passed, run its
// handler one at a time, then reprogram the device to the new head (or
// disable it if the chain emptied).
//
// Its signature deliberately doesn't match eventq.HandlerFunc: alarm
// must not import eventq (see the EventPoster comment in device.go for
// why), so it can't spell eventq.HandlerResult in its own return type.
// A caller wiring this into an eventq.Registry instead registers a
// closure that calls HandleAlarmEvent and always returns eventq.Consumed
// — popping due waiters always fully drains them, so there is never
// anything to requeue.
func (c *Chain) HandleAlarmEvent(msg eventmsg.Message, evType eventmsg.Type, data any) {
	now := c.dev.clock.NowTSC()
	for {
		c.mu.Lock()
		if len(c.waiters) == 0 || c.waiters[0].WakeUpTime > now {
			c.mu.Unlock()
			break
		}
		w := heap.Pop(&c.waiters).(*Waiter)
		w.onChain = false
		c.running = w
		c.mu.Unlock()

		if w.Func != nil {
			w.Func(w)
		}

		c.mu.Lock()
		c.running = nil
		close(c.doneCh)
		c.doneCh = make(chan struct{})
		c.mu.Unlock()
	}

	c.mu.Lock()
	if len(c.waiters) > 0 {
		c.dev.SetTime(c.waiters[0].WakeUpTime)
	} else {
		c.dev.Disable()
	}
	c.mu.Unlock()
}

// AwaiterInfo is one pending waiter's debug-visible state, returned by
// Snapshot in place of a bare deadline so a caller (or test) can tell
// which waiter a deadline belongs to without reaching into the Chain's
// lock itself.
type AwaiterInfo struct {
	WakeUpTime uint64
	Data       any
}

// Snapshot returns the currently-pending waiters in chain (earliest
// deadline first) order, for debugging (original_source's print_chain).
func (c *Chain) Snapshot() []AwaiterInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AwaiterInfo, len(c.waiters))
	cp := append(waiterHeap(nil), c.waiters...)
	for i := 0; len(cp) > 0; i++ {
		w := heap.Pop(&cp).(*Waiter)
		out[i] = AwaiterInfo{WakeUpTime: w.WakeUpTime, Data: w.Data}
	}
	return out
}
