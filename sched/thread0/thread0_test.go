package thread0

import (
	"testing"

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

type fakeYielder struct{ unmapped []uint32 }

func (f *fakeYielder) Unmap(vcoreid uint32) { f.unmapped = append(f.unmapped, vcoreid) }

func TestThread0_SchedEntryRunsThenYieldsOnBlock(t *testing.T) {
	reg := eventq.NewRegistry()
	disp := eventq.NewDispatcher(reg, newFakeVcores())

	var ranOnce bool
	yielder := &fakeYielder{}
	var sched *Sched
	sched = New(disp, yielder, func(u *uthread.Uthread) {
		ranOnce = true
		uthread.Yield(u, true, func(u *uthread.Uthread) {})
	})

	sched.Ops().SchedEntry(0)
	require.True(t, ranOnce)
	require.Equal(t, uthread.Blocked, sched.uth.State())

	// Second entry: still blocked (nothing woke it), so thread0 drains
	// events (a no-op here) and yields the vcore.
	sched.Ops().SchedEntry(0)
	require.Len(t, yielder.unmapped, 1)
	require.Equal(t, uint32(0), yielder.unmapped[0])
}

func TestThread0_SchedEntryResumesAfterMarkRunnable(t *testing.T) {
	reg := eventq.NewRegistry()
	disp := eventq.NewDispatcher(reg, newFakeVcores())
	yielder := &fakeYielder{}

	var resumed bool
	sched := New(disp, yielder, func(u *uthread.Uthread) {
		uthread.Yield(u, true, nil)
		resumed = true
	})

	sched.Ops().SchedEntry(0)
	require.Equal(t, uthread.Blocked, sched.uth.State())

	uthread.MarkRunnable(sched.uth)
	sched.Ops().SchedEntry(0)
	require.True(t, resumed)
	require.Equal(t, uthread.Done, sched.uth.State())
}
