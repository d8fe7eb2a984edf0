package mailbox

import (
	"sync"

	"github.com/akaros-project/mcp/eventmsg"
)

// CeqOp selects how repeated posts to the same ev_type accumulate before
// being drained, mirroring original_source ceq.h's per-ceq "operation".
type CeqOp int

const (
	// CeqOr bitwise-ORs successive blobs together (e.g. a bitmask of
	// "which of my N sub-channels made progress").
	CeqOr CeqOp = iota
	// CeqAdd sums successive blobs (e.g. a count of completions).
	CeqAdd
)

type ceqEvent struct {
	coalesce  uint64
	userData  uint64
	pending   bool
}

// CEQ is the coalescing-event-queue mailbox discipline (original_source
// ceq.h): one slot per ev_type, so N posts to the same type before it is
// drained fold into a single manifestation carrying the accumulated blob.
// A ring of recently-touched ev_types gives O(1) amortized drain in the
// common case; when the ring overflows (too many distinct types posted
// between drains) the consumer falls back to one linear scan, the same
// ring-plus-overflow-scan shape as eventloop's MicrotaskRing.
//
// Single-consumer: CEQ is drained from vcore context by the vcore that
// owns it, never concurrently by two goroutines. Producers may be
// concurrent with each other and with the single consumer.
type CEQ struct {
	mu             sync.Mutex
	events         []ceqEvent
	op             CeqOp
	ring           []eventmsg.Type
	prod, cons     uint64
	ringOverflowed bool
	maxEverPosted  int
}

// NewCEQ constructs a CEQ sized for nrEvents distinct ev_types, in range
// [0, nrEvents).
func NewCEQ(nrEvents int, op CeqOp) *CEQ {
	if nrEvents <= 0 {
		nrEvents = int(eventmsg.EvFirstUnreserved) + 64
	}
	ringSz := 64
	for ringSz < nrEvents {
		ringSz *= 2
	}
	return &CEQ{
		events: make([]ceqEvent, nrEvents),
		op:     op,
		ring:   make([]eventmsg.Type, ringSz),
	}
}

func (q *CEQ) Post(msg eventmsg.Message) {
	blob := msg.Arg3
	q.mu.Lock()
	defer q.mu.Unlock()
	if int(msg.Type) >= len(q.events) {
		return
	}
	ev := &q.events[msg.Type]
	switch q.op {
	case CeqAdd:
		ev.coalesce += blob
	default:
		ev.coalesce |= blob
	}
	ev.userData = msg.Arg4
	if int(msg.Type) > q.maxEverPosted {
		q.maxEverPosted = int(msg.Type)
	}
	if !ev.pending {
		ev.pending = true
		if q.prod-q.cons >= uint64(len(q.ring)) {
			q.ringOverflowed = true
		} else {
			q.ring[q.prod%uint64(len(q.ring))] = msg.Type
			q.prod++
		}
	}
}

func (q *CEQ) ExtractOne() (eventmsg.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.cons < q.prod {
		evType := q.ring[q.cons%uint64(len(q.ring))]
		q.cons++
		if msg, ok := q.drainLocked(evType); ok {
			return msg, true
		}
	}
	if q.ringOverflowed {
		for t := 0; t <= q.maxEverPosted; t++ {
			if msg, ok := q.drainLocked(eventmsg.Type(t)); ok {
				if q.cons >= q.prod {
					q.ringOverflowed = false
				}
				return msg, true
			}
		}
		q.ringOverflowed = false
	}
	return eventmsg.Message{}, false
}

// drainLocked consumes events[evType] if pending, reporting the coalesced
// message. Caller holds q.mu.
func (q *CEQ) drainLocked(evType eventmsg.Type) (eventmsg.Message, bool) {
	if int(evType) >= len(q.events) {
		return eventmsg.Message{}, false
	}
	ev := &q.events[evType]
	if !ev.pending {
		return eventmsg.Message{}, false
	}
	msg := eventmsg.Message{Type: evType, Arg3: ev.coalesce, Arg4: ev.userData}
	ev.pending = false
	ev.coalesce = 0
	ev.userData = 0
	return msg, true
}

func (q *CEQ) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cons < q.prod {
		return false
	}
	if !q.ringOverflowed {
		return true
	}
	for t := 0; t <= q.maxEverPosted; t++ {
		if q.events[t].pending {
			return false
		}
	}
	return true
}
