package mailbox

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/akaros-project/mcp/eventmsg"
)

// ucqPageSize mirrors original_source/kern/include/ros/ucq.h's
// NR_MSG_PER_PAGE: messages-per-page sized so one page holds a useful
// batch without the chain growing a new page on every few posts.
const ucqPageSize = 512

type msgContainer[T any] struct {
	msg   T
	ready atomic.Bool
}

type ucqPage[T any] struct {
	nextPg  atomic.Pointer[ucqPage[T]]
	prodIdx atomic.Int32
	msgs    [ucqPageSize]msgContainer[T]
}

// GenericQueue is the unbounded-concurrent-queue discipline
// (original_source kern/include/ros/ucq.h) parameterized over its
// element type: original_source's ucq_t only ever carries an ev_msg, but
// the same chain-of-pages, two-phase "reserve a slot, then fill it"
// protocol works for any fixed-size payload. The module instantiates it
// only as UCQ, over eventmsg.Message; eventq's INDIR pointers travel as
// EvEvent Messages.
//
// Producer side is lock-free, per spec.md §4.3: Push reserves its slot
// with a single atomic fetch-add on the current page's prod_idx. A
// producer whose reservation lands exactly on the page boundary is the
// one that CASes a new page onto the chain and swaps it in as the
// current producer page; producers that overshoot the boundary (raced
// past it before the swap lands) just spin until the swap completes and
// retry. ucq.h documents the real kernel's own userspace ucq as only
// lock-free on this producer path; consumer-side page traversal there is
// explicitly guarded by the mailbox's own lock ("u_lock"), since a
// mailbox is only ever drained by one consumer at a time. This keeps
// that same asymmetry: Pop and Empty hold consMu across slot/page
// traversal, spinning only for the brief window between a producer's
// slot reservation and its write becoming visible, or between a
// boundary producer's reservation and its page-chain CAS landing.
type GenericQueue[T any] struct {
	prodPage atomic.Pointer[ucqPage[T]]
	sparePg  atomic.Pointer[ucqPage[T]]

	consMu   sync.Mutex
	consPage *ucqPage[T]
	consIdx  int
}

// NewGenericQueue constructs an empty queue of T.
func NewGenericQueue[T any]() *GenericQueue[T] {
	first := &ucqPage[T]{}
	q := &GenericQueue[T]{consPage: first}
	q.prodPage.Store(first)
	q.sparePg.Store(&ucqPage[T]{})
	return q
}

// Push reserves a slot via fetch-add on the current producer page and
// fills it, extending the page chain first if this call's reservation
// landed on the page boundary.
func (q *GenericQueue[T]) Push(msg T) {
	for {
		page := q.prodPage.Load()
		idx := page.prodIdx.Add(1) - 1
		switch {
		case idx < ucqPageSize:
			slot := &page.msgs[idx]
			slot.msg = msg
			slot.ready.Store(true)
			return
		case idx == ucqPageSize:
			// Exactly one producer's fetch-add can land here: attach the
			// spare page, refill the spare for next time, and swap the
			// chain's current producer page. Then loop back and reserve a
			// slot on the new page for this call's own message.
			next := q.sparePg.Load()
			page.nextPg.Store(next)
			q.sparePg.Store(&ucqPage[T]{})
			q.prodPage.CompareAndSwap(page, next)
		default:
			// Overshot the boundary: the landing producer hasn't finished
			// the page-chain CAS yet. Spin and retry against whatever page
			// is current once it lands.
			runtime.Gosched()
		}
	}
}

// Pop extracts the oldest unread message, or reports false if none is
// currently reachable.
func (q *GenericQueue[T]) Pop() (T, bool) {
	q.consMu.Lock()
	defer q.consMu.Unlock()
	for {
		page := q.consPage
		if q.consIdx == ucqPageSize {
			next := page.nextPg.Load()
			if next == nil {
				if page.prodIdx.Load() > ucqPageSize {
					// A producer already reserved the boundary slot and is
					// mid page-swap; the next page link will appear shortly.
					q.consMu.Unlock()
					runtime.Gosched()
					q.consMu.Lock()
					continue
				}
				var zero T
				return zero, false
			}
			q.consPage = next
			q.consIdx = 0
			continue
		}
		if int32(q.consIdx) >= page.prodIdx.Load() {
			var zero T
			return zero, false
		}
		slot := &page.msgs[q.consIdx]
		if !slot.ready.Load() {
			// Reserved but not yet written: rare and brief, so spin rather
			// than pay for a second lock.
			q.consMu.Unlock()
			runtime.Gosched()
			q.consMu.Lock()
			continue
		}
		msg := slot.msg
		var zero T
		slot.msg = zero
		slot.ready.Store(false)
		q.consIdx++
		return msg, true
	}
}

// Empty reports whether the queue currently holds nothing reachable from
// the consumer's position.
func (q *GenericQueue[T]) Empty() bool {
	q.consMu.Lock()
	defer q.consMu.Unlock()
	page := q.consPage
	if q.consIdx < ucqPageSize {
		return int32(q.consIdx) >= page.prodIdx.Load()
	}
	return page.nextPg.Load() == nil
}

// UCQ is the Mailbox-discipline instantiation of GenericQueue, carrying
// eventmsg.Message payloads.
type UCQ struct {
	*GenericQueue[eventmsg.Message]
}

// NewUCQ constructs an empty UCQ mailbox.
func NewUCQ() *UCQ { return &UCQ{GenericQueue: NewGenericQueue[eventmsg.Message]()} }

func (q *UCQ) Post(msg eventmsg.Message) { q.Push(msg) }

func (q *UCQ) ExtractOne() (eventmsg.Message, bool) { return q.Pop() }

func (q *UCQ) IsEmpty() bool { return q.Empty() }
