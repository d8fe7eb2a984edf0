package eventq

import "github.com/akaros-project/mcp/eventmsg"

// Post runs the delivery algorithm of spec.md §4.4 steps 1-6 against msg.
func (q *EvQ) Post(msg eventmsg.Message) {
	defer q.signalWakeup()

	payload := msg
	indir := q.Flags.has(INDIR)
	if indir {
		// Step 1: the real message goes into this ev_q's own mailbox; what
		// is deposited into a vcore's public mailbox is a pointer to this
		// ev_q, carried as an EvEvent/id pair (see eventq.go's registry
		// doc comment).
		if q.Flags.has(NOMSG) {
			q.Mbox.Post(eventmsg.Message{Type: msg.Type})
		} else {
			q.Mbox.Post(msg)
		}
		payload = eventmsg.Message{Type: eventmsg.EvEvent, Arg3: uint64(q.id)}
	}

	target := q.chooseVcore()

	delivered := false
	if q.vcores.Runnable(target) {
		delivered = q.depositAndMaybeIPI(target, payload, indir)
	}

	if !delivered && q.Flags.has(FALLBACK) {
		for _, v := range q.vcores.RunnableVcores() {
			if v == target {
				continue
			}
			if q.depositAndMaybeIPI(v, payload, indir) {
				delivered = true
				break
			}
		}
	}

	if !delivered && (q.Flags.has(SPAM_PUBLIC) || (indir && q.Flags.has(SPAM_INDIR))) {
		for _, v := range q.vcores.RunnableVcores() {
			if q.spam(v, payload, indir) {
				delivered = true
				break
			}
		}
	}

	if q.Flags.has(WAKEUP) && q.Waiter != nil {
		q.Waiter.WakeIfWaiting()
	}
}

// chooseVcore implements spec.md §4.4 step 2.
func (q *EvQ) chooseVcore() uint32 {
	switch {
	case q.Flags.has(VCORE_APPRO):
		return q.vcores.AppropriateVcore()
	case q.Flags.has(ROUNDROBIN):
		return q.vcores.NextRoundRobin()
	default:
		return q.Vcore
	}
}

// depositAndMaybeIPI implements spec.md §4.4 step 3: an INDIR pointer
// always lands in the public mailbox (Post has already put the real
// message into the ev_q's own mailbox);
// otherwise it goes to ev_q.ev_mbox (unless NOMSG, which only records
// that the event type occurred with no payload).
func (q *EvQ) depositAndMaybeIPI(vcoreid uint32, payload eventmsg.Message, indir bool) bool {
	switch {
	case indir:
		q.vcores.PublicMbox(vcoreid).Post(payload)
	case q.Flags.has(NOMSG):
		q.Mbox.Post(eventmsg.Message{Type: payload.Type})
	default:
		q.Mbox.Post(payload)
	}
	if q.Flags.has(IPI) {
		q.vcores.IPI(vcoreid)
	}
	return true
}

// spam implements spec.md §4.4 step 5: deposit into some runnable
// vcore's spam/public mailbox, repeating across vcores until one
// succeeds (here, the first runnable vcore always succeeds, since the
// simulator has no notion of a full public mailbox).
func (q *EvQ) spam(vcoreid uint32, payload eventmsg.Message, indir bool) bool {
	if indir && q.Flags.has(SPAM_INDIR) {
		q.vcores.SetSpamIndir(vcoreid, q.id)
	} else {
		q.vcores.PublicMbox(vcoreid).Post(payload)
	}
	if q.Flags.has(IPI) {
		q.vcores.IPI(vcoreid)
	}
	return true
}
