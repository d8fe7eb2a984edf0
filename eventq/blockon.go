package eventq

import (
	"context"
	"reflect"
	"time"
)

// WakeupCtlr is evq_attach_wakeup_ctlr's Go-side state: a one-shot signal
// channel a blocked uthread can select on. Modeled after longpoll's
// ChannelConfig.PartialTimeout idea of "wait, but bound how long", here
// applied to "wait for whichever of N event queues fires first" instead
// of longpoll's "batch values from one channel" case.
type WakeupCtlr struct {
	fired chan struct{}
}

// AttachWakeupCtlr implements evq_attach_wakeup_ctlr: arms q so a future
// Post wakes anyone blocked in BlockOnEvqs.
func (q *EvQ) AttachWakeupCtlr() {
	q.wakeup = &WakeupCtlr{fired: make(chan struct{}, 1)}
}

// RemoveWakeupCtlr implements evq_remove_wakeup_ctlr.
func (q *EvQ) RemoveWakeupCtlr() { q.wakeup = nil }

func (q *EvQ) signalWakeup() {
	if q.wakeup == nil {
		return
	}
	select {
	case q.wakeup.fired <- struct{}{}:
	default:
	}
}

// BlockOnEvqs implements uth_blockon_evqs: attaches a wakeup controller
// to every evq in evqs, then blocks until one of them fires, ctx is
// canceled, or timeout elapses (0 disables the timeout). Returns the
// first evq to fire. Every evq must already have Mbox populated; the
// caller is responsible for extracting the message via HandleEventQ or
// Mbox.ExtractOne after BlockOnEvqs returns.
func BlockOnEvqs(ctx context.Context, timeout time.Duration, evqs ...*EvQ) (*EvQ, error) {
	for _, q := range evqs {
		q.AttachWakeupCtlr()
	}
	defer func() {
		for _, q := range evqs {
			q.RemoveWakeupCtlr()
		}
	}()

	cases := make([]reflect.SelectCase, 0, len(evqs)+2)
	for _, q := range evqs {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(q.wakeup.fired)})
	}
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})
	if timeout > 0 {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(time.After(timeout))})
	}

	chosen, _, _ := reflect.Select(cases)
	switch {
	case chosen < len(evqs):
		return evqs[chosen], nil
	case chosen == len(evqs):
		return nil, ctx.Err()
	default:
		return nil, context.DeadlineExceeded
	}
}
