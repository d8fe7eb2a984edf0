package alarm

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/akaros-project/mcp/eventmsg"
)

var nextAlarmID atomic.Int32

// EventPoster is the slice of eventq.EvQ a Device needs: just enough to
// post the EV_ALARM completion, kept local to avoid an import of eventq
// (which would otherwise make alarm and eventq import each other once
// the 2LS wires a chain's handler through the registry).
type EventPoster interface {
	Post(msg eventmsg.Message)
}

// Device simulates the #alarm clone device (spec.md §6): opening clone
// produces a {ctl, timer, evq_ctl} trio. Writing to timer arms it;
// writing to evq_ctl binds completion delivery; reading ctl returns the
// alarmid. One Device is the backing kernel alarm for exactly one
// Chain (spec.md §4.5: "the user library maintains a single timer
// chain ... whose only backing kernel alarm").
type Device struct {
	mu      sync.Mutex
	clock   *Clock
	alarmID int32
	evq     EventPoster
	timer   *time.Timer
}

// NewDevice opens a fresh clone of the alarm device (devalarm_get_fds).
func NewDevice(clock *Clock) *Device {
	return &Device{clock: clock, alarmID: nextAlarmID.Add(1)}
}

// AlarmID returns the id read from ctl (devalarm_get_id).
func (d *Device) AlarmID() int32 { return d.alarmID }

// BindEvq writes a marshalled ev_q to evq_ctl (devalarm_set_evq).
func (d *Device) BindEvq(evq EventPoster) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evq = evq
}

// SetTime arms the alarm for absolute TSC deadline tscDeadline
// (devalarm_set_time): writing timer). On expiry it posts an EV_ALARM
// event carrying the alarmid to the bound ev_q.
func (d *Device) SetTime(tscDeadline uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	now := d.clock.NowTSC()
	var delay time.Duration
	if tscDeadline > now {
		delay = d.clock.Duration(tscDeadline - now)
	}
	d.timer = time.AfterFunc(delay, d.fire)
}

// Disable disarms the alarm (devalarm_disable, closing timer).
func (d *Device) Disable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Device) fire() {
	d.mu.Lock()
	evq := d.evq
	id := d.alarmID
	d.mu.Unlock()
	if evq != nil {
		evq.Post(eventmsg.Message{Type: eventmsg.EvAlarm, Arg4: uint64(id)})
	}
}
