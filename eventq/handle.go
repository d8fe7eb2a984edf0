package eventq

import "github.com/akaros-project/mcp/eventmsg"

// Dispatcher runs handle_events/handle_event_q for one process: it owns
// the handler Registry and knows how to reach a vcore's public mailbox
// and spam-indir slot, so it can fully drive spec.md §4.4's consumption
// algorithm without the caller (the 2LS's vcore-entry function) having to
// know mailbox internals.
type Dispatcher struct {
	Registry *Registry
	vcores   Vcores
}

// NewDispatcher constructs a Dispatcher over reg, routed through vcores.
func NewDispatcher(reg *Registry, vcores Vcores) *Dispatcher {
	return &Dispatcher{Registry: reg, vcores: vcores}
}

// HandleEvents drains vcoreid's public mailbox (dispatching INDIR
// pointers via HandleEventQ) and its spam-indir slot, invoking the
// registered handler chain for each extracted message's ev_type. A
// Requeue verdict reposts msg to the mailbox it came from and stops this
// drain pass, the same way ev_we_returned==false in the original leaves
// the event for a later handle_events call rather than spinning on it.
func (d *Dispatcher) HandleEvents(vcoreid uint32) {
	mbox := d.vcores.PublicMbox(vcoreid)
	for {
		msg, ok := mbox.ExtractOne()
		if !ok {
			break
		}
		if d.dispatchPublic(msg) == Requeue {
			mbox.Post(msg)
			return
		}
	}
	d.drainSpamIndir(vcoreid)
}

func (d *Dispatcher) dispatchPublic(msg eventmsg.Message) HandlerResult {
	if msg.Type == eventmsg.EvEvent {
		if q := lookup(int64(msg.Arg3)); q != nil {
			d.HandleEventQ(q)
		}
		return Consumed
	}
	return d.invoke(msg)
}

func (d *Dispatcher) drainSpamIndir(vcoreid uint32) {
	id := d.vcores.TakeSpamIndir(vcoreid)
	if id < 0 {
		return
	}
	if q := lookup(id); q != nil {
		d.HandleEventQ(q)
	}
}

// HandleEventQ drains ev_q's own mailbox (handle_event_q), invoking
// handlers for every message extracted. A Requeue verdict reposts msg to
// q's own mailbox and stops draining q for this call.
func (d *Dispatcher) HandleEventQ(q *EvQ) {
	for {
		msg, ok := q.Mbox.ExtractOne()
		if !ok {
			return
		}
		if d.invoke(msg) == Requeue {
			q.Mbox.Post(msg)
			return
		}
	}
}

// invoke runs msg's whole handler chain and reports Requeue if any
// handler in the chain asked for it, else Consumed. A chain is rare
// (register_ev_handler supports multiple handlers per ev_type) but when
// any single handler can't finish the event, the whole delivery is
// treated as undelivered rather than silently dropping the other
// handlers' half-applied effects.
func (d *Dispatcher) invoke(msg eventmsg.Message) HandlerResult {
	verdict := Consumed
	for _, h := range d.Registry.chainFor(msg.Type) {
		if h.fn(msg, msg.Type, h.data) == Requeue {
			verdict = Requeue
		}
	}
	return verdict
}
