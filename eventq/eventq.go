// Package eventq implements event queues and dispatch (spec.md component
// C4): the ev_q routing descriptor, its flag-driven delivery algorithm,
// handler registration, and handle_events/handle_event_q.
package eventq

import (
	"sync"
	"sync/atomic"

	"github.com/akaros-project/mcp/eventmsg"
	"github.com/akaros-project/mcp/mailbox"
)

// Flags is the ev_q flag bitset from spec.md §3.
type Flags uint32

const (
	IPI Flags = 1 << iota
	NOMSG
	ROUNDROBIN
	INDIR
	FALLBACK
	SPAM_PUBLIC
	SPAM_INDIR
	WAKEUP
	VCORE_APPRO
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// Vcores is the subset of vcore.Runtime eventq needs to route deliveries,
// kept as a local interface so eventq never imports vcore; *vcore.Runtime
// satisfies it without vcore importing eventq either.
type Vcores interface {
	Runnable(vcoreid uint32) bool
	RunnableVcores() []uint32
	NextRoundRobin() uint32
	AppropriateVcore() uint32
	PublicMbox(vcoreid uint32) mailbox.Mailbox
	SetSpamIndir(vcoreid uint32, evqID int64)
	// TakeSpamIndir atomically reads and clears vcoreid's spam-indir
	// slot, returning -1 if it was empty.
	TakeSpamIndir(vcoreid uint32) int64
	IPI(vcoreid uint32)
}

// Waiter is notified when WAKEUP delivery should transition the process
// out of WAITING (spec.md §4.4 step 6). proc.Process implements this.
type Waiter interface {
	WakeIfWaiting()
}

var (
	registryMu  sync.RWMutex
	registry    = map[int64]*EvQ{}
	nextID      atomic.Int64
)

// register assigns q a stable small id an INDIR payload can carry instead
// of an unsafe pointer, the same registry-of-ids-instead-of-pointers
// shape as eventloop's promise registry.
func register(q *EvQ) int64 {
	id := nextID.Add(1)
	registryMu.Lock()
	registry[id] = q
	registryMu.Unlock()
	return id
}

func lookup(id int64) *EvQ {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[id]
}

// Put releases q's registry entry. The kernel/user contract (spec.md §3)
// says mailbox lifetime must outlive any pending delivery; callers must
// ensure no INDIR payload referencing q is still unconsumed.
func Put(q *EvQ) {
	registryMu.Lock()
	delete(registry, q.id)
	registryMu.Unlock()
}

// EvQ is a routing descriptor owned by its consumer (spec.md §3).
type EvQ struct {
	id int64

	Mbox   mailbox.Mailbox
	Flags  Flags
	Vcore  uint32 // ev_vcore: preferred target when VCORE_APPRO is unset
	Waiter Waiter

	vcores Vcores
	wakeup *WakeupCtlr
}

// New constructs an EvQ backed by mbox, targeting vcore by default
// (get_eventq in spec.md §4.4's public operations).
func New(mbox mailbox.Mailbox, flags Flags, vcore uint32, vcores Vcores) *EvQ {
	q := &EvQ{Mbox: mbox, Flags: flags, Vcore: vcore, vcores: vcores}
	q.id = register(q)
	return q
}
