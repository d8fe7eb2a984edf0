// Command akademo exercises the MCP runtime's testable scenarios
// end-to-end, the way eventloop's examples/ binaries demonstrate that
// package's API by actually running it.
//
// Run with: go run ./cmd/akademo
package main

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/akaros-project/mcp/alarm"
	"github.com/akaros-project/mcp/asyscall"
	"github.com/akaros-project/mcp/eventmsg"
	"github.com/akaros-project/mcp/eventq"
	"github.com/akaros-project/mcp/internal/obslog"
	"github.com/akaros-project/mcp/ksched"
	"github.com/akaros-project/mcp/mailbox"
	"github.com/akaros-project/mcp/proc"
)

// demoVcores is a one-vcore, always-runnable eventq.Vcores stand-in for
// scenarios that only need a single flat mailbox and no real vcore
// routing (alarm/syscall completion delivery).
type demoVcores struct{ pub mailbox.Mailbox }

func newDemoVcores() *demoVcores { return &demoVcores{pub: mailbox.New(mailbox.KindUCQ, 0)} }

func (d *demoVcores) Runnable(uint32) bool              { return true }
func (d *demoVcores) RunnableVcores() []uint32          { return []uint32{0} }
func (d *demoVcores) NextRoundRobin() uint32            { return 0 }
func (d *demoVcores) AppropriateVcore() uint32          { return 0 }
func (d *demoVcores) PublicMbox(uint32) mailbox.Mailbox { return d.pub }
func (d *demoVcores) SetSpamIndir(uint32, int64)        {}
func (d *demoVcores) TakeSpamIndir(uint32) int64        { return -1 }
func (d *demoVcores) IPI(uint32)                        {}

func main() {
	fmt.Println("=== Scenario A/B: alarm fire and cancel-and-rearm ===")
	scenarioAlarm()

	fmt.Println("\n=== Scenario C: MCP spawn ===")
	scenarioMCPSpawn()

	fmt.Println("\n=== Scenario D: UCQ stress under concurrent producers ===")
	scenarioUCQStress()

	fmt.Println("\n=== Scenario F: syscall abort via alarm ===")
	scenarioSyscallAbort()
}

// scenarioAlarm mirrors spec.md §8 Scenarios A and B: arm a waiter, let
// it fire once; then arm, cancel before it fires, and rearm a second
// waiter that does fire.
func scenarioAlarm() {
	clock := alarm.NewClock(1e9)
	dev := alarm.NewDevice(clock)
	evq := eventq.New(mailbox.New(mailbox.KindBitmap, 0), eventq.NOMSG, 0, newDemoVcores())
	dev.BindEvq(evq)
	chain := alarm.NewChain(dev)

	// A real 2LS drives this through eventq.Dispatcher.HandleEventQ, which
	// looks up a registered handler by ev_type; this demo calls the
	// chain directly since the only handler that matters here is the
	// alarm chain itself.
	pump := func(budget time.Duration, done func() bool) {
		deadline := time.Now().Add(budget)
		for !done() && time.Now().Before(deadline) {
			if _, ok := evq.Mbox.ExtractOne(); ok {
				chain.HandleAlarmEvent(eventmsg.Message{}, eventmsg.EvAlarm, nil)
			} else {
				time.Sleep(time.Millisecond)
			}
		}
	}

	var fired atomic.Int32
	w := alarm.NewWaiter(func(w *alarm.Waiter) { fired.Add(1) })
	w.SetRel(clock, 30*1000)
	chain.Set(w)
	pump(2*time.Second, func() bool { return fired.Load() != 0 })
	fmt.Printf("waiter fired: %d time(s)\n", fired.Load())

	w2 := alarm.NewWaiter(func(w *alarm.Waiter) { fired.Add(10) })
	w2.SetRel(clock, 200*1000)
	chain.Set(w2)
	if chain.Unset(w2) {
		fmt.Println("cancelled w2 before it fired")
	}
	w3 := alarm.NewWaiter(func(w *alarm.Waiter) { fired.Add(100) })
	w3.SetRel(clock, 20*1000)
	chain.Set(w3)
	pump(2*time.Second, func() bool { return fired.Load() >= 100 })
	fmt.Printf("final fired tally: %d (w2's +10 should be absent)\n", fired.Load())
}

// scenarioMCPSpawn mirrors spec.md §8 Scenario C: an SCP requests 2 extra
// vcores via change_to_m; vcore 1 sets a shared atomic, observed from the
// main goroutine standing in for the SCP's original vcore.
func scenarioMCPSpawn() {
	mgr := proc.NewManager(1e9)
	k := ksched.New(4, mgr)
	mgr.Bind(k)

	p := mgr.Create(0, 4)
	var seen atomic.Int32
	entry := func(vcoreid uint32) {
		if vcoreid == 1 {
			seen.Store(1)
		}
	}
	if err := mgr.ChangeToM(p, 3, entry); err != nil {
		fmt.Println("change_to_m failed:", err)
		return
	}

	deadline := time.Now().Add(2 * time.Second)
	for seen.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	fmt.Printf("num_vcores=%d vcore1_seen=%d\n", p.Info.NumVcores(), seen.Load())
	entry1, ok := p.Info.VcoreMapping(1)
	fmt.Printf("vcoremap[1].valid=%v pcoreid=%d\n", ok && entry1.Valid, entry1.Pcoreid)

	mgr.Destroy(p)
}

// scenarioUCQStress mirrors spec.md §8 Scenario D: several producers post
// concurrently into a UCQ-backed mailbox; every message is eventually
// extracted, none lost or duplicated.
func scenarioUCQStress() {
	mb := mailbox.NewUCQ()
	const producers, perProducer = 8, 500
	done := make(chan struct{})
	for i := 0; i < producers; i++ {
		go func(id int) {
			for j := 0; j < perProducer; j++ {
				mb.Post(eventmsg.Message{Type: eventmsg.EvUserIPI, Arg2: uint32(id), Arg3: uint64(j)})
			}
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < producers; i++ {
		<-done
	}
	count := 0
	for {
		if _, ok := mb.ExtractOne(); !ok {
			break
		}
		count++
	}
	fmt.Printf("posted=%d extracted=%d\n", producers*perProducer, count)
}

// scenarioSyscallAbort mirrors spec.md §8 Scenario F: a blocking syscall
// is aborted by an alarm 50ms later; the completion still arrives,
// carrying the abort indication.
func scenarioSyscallAbort() {
	clock := alarm.NewClock(1e9)
	dev := alarm.NewDevice(clock)
	evq := eventq.New(mailbox.New(mailbox.KindUCQ, 0), 0, 0, newDemoVcores())
	dev.BindEvq(evq)
	chain := alarm.NewChain(dev)

	sysc := asyscall.New(1 /* fake read */, [6]uintptr{})
	sysc.RegisterEvq(evq)

	w := alarm.NewWaiter(func(w *alarm.Waiter) {
		sysc.RequestAbort()
		sysc.Complete(-1, fmt.Errorf("eintr: aborted by alarm"), false)
	})
	w.SetRel(clock, 50*1000) // 50ms stand-in for the scenario's 1s
	chain.Set(w)

	start := time.Now()
	deadline := start.Add(2 * time.Second)
	for !sysc.Done() && time.Now().Before(deadline) {
		chain.HandleAlarmEvent(eventmsg.Message{}, eventmsg.EvAlarm, nil)
		time.Sleep(time.Millisecond)
	}
	fmt.Printf("syscall done=%v aborted=%v err=%v elapsed=%v\n",
		sysc.Done(), sysc.Aborted(), sysc.Err, time.Since(start).Round(time.Millisecond))

	obslog.Info().Bool("done", sysc.Done()).Log("akademo: scenario F complete")
}
