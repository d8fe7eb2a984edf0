package pthread

import (
	"testing"
	"time"

	"github.com/akaros-project/mcp/eventq"
	"github.com/akaros-project/mcp/mailbox"
	"github.com/akaros-project/mcp/uthread"
	"github.com/stretchr/testify/require"
)

type fakeVcores struct{ pub mailbox.Mailbox }

func newFakeVcores() *fakeVcores { return &fakeVcores{pub: mailbox.New(mailbox.KindUCQ, 0)} }

func (f *fakeVcores) Runnable(uint32) bool              { return true }
func (f *fakeVcores) RunnableVcores() []uint32          { return []uint32{0} }
func (f *fakeVcores) NextRoundRobin() uint32            { return 0 }
func (f *fakeVcores) AppropriateVcore() uint32          { return 0 }
func (f *fakeVcores) PublicMbox(uint32) mailbox.Mailbox { return f.pub }
func (f *fakeVcores) SetSpamIndir(uint32, int64)        {}
func (f *fakeVcores) TakeSpamIndir(uint32) int64        { return -1 }
func (f *fakeVcores) IPI(uint32)                        {}

func newTestSched() *Sched {
	reg := eventq.NewRegistry()
	disp := eventq.NewDispatcher(reg, newFakeVcores())
	return New(nil, disp)
}

func TestPthread_SchedEntryRunsReadyQueueInFIFOOrder(t *testing.T) {
	s := newTestSched()
	var order []int

	a := uthread.Create(func(u *uthread.Uthread) { order = append(order, 1); uthread.Yield(u, false, nil) })
	b := uthread.Create(func(u *uthread.Uthread) { order = append(order, 2); uthread.Yield(u, false, nil) })
	s.enqueue(0, a)
	s.enqueue(0, b)

	s.Ops().SchedEntry(0)
	s.Ops().SchedEntry(0)

	require.Equal(t, []int{1, 2}, order)
}

func TestPthread_MutexSerializesCriticalSection(t *testing.T) {
	s := newTestSched()
	m := NewMutex(s)
	var counter int

	work := func(u *uthread.Uthread) {
		m.Lock(u, 0)
		counter++
		m.Unlock(0)
		uthread.Yield(u, false, nil)
	}

	a := uthread.Create(work)
	b := uthread.Create(work)
	s.enqueue(0, a)
	s.enqueue(0, b)

	s.Ops().SchedEntry(0)
	s.Ops().SchedEntry(0)

	require.Equal(t, 2, counter)
}

func TestPthread_CondSignalWakesOneWaiter(t *testing.T) {
	s := newTestSched()
	m := NewMutex(s)
	cond := NewCond()
	woke := make(chan struct{}, 1)

	waiter := uthread.Create(func(u *uthread.Uthread) {
		m.Lock(u, 0)
		cond.Wait(u, m, 0)
		woke <- struct{}{}
		m.Unlock(0)
		uthread.Yield(u, false, nil)
	})
	s.enqueue(0, waiter)
	s.Ops().SchedEntry(0) // runs until parked in cond.Wait

	cond.Signal(0, s)
	s.Ops().SchedEntry(0) // resumes waiter, which re-locks and signals woke

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("cond.Signal never woke the waiter")
	}
}
