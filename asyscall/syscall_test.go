package asyscall

import (
	"errors"
	"testing"

	"github.com/akaros-project/mcp/eventmsg"
	"github.com/akaros-project/mcp/eventq"
	"github.com/akaros-project/mcp/mailbox"
	"github.com/stretchr/testify/require"
)

// fakeVcores is a one-vcore, always-runnable Vcores double: syscall
// completion only needs somewhere for Post's routing to land, not real
// vcore scheduling.
type fakeVcores struct{ pub mailbox.Mailbox }

func newFakeVcores() *fakeVcores { return &fakeVcores{pub: mailbox.New(mailbox.KindUCQ, 0)} }

func (f *fakeVcores) Runnable(uint32) bool           { return true }
func (f *fakeVcores) RunnableVcores() []uint32       { return []uint32{0} }
func (f *fakeVcores) NextRoundRobin() uint32         { return 0 }
func (f *fakeVcores) AppropriateVcore() uint32       { return 0 }
func (f *fakeVcores) PublicMbox(uint32) mailbox.Mailbox { return f.pub }
func (f *fakeVcores) SetSpamIndir(uint32, int64)     {}
func (f *fakeVcores) TakeSpamIndir(uint32) int64     { return -1 }
func (f *fakeVcores) IPI(uint32)                     {}

func newTestEvq() *eventq.EvQ {
	return eventq.New(mailbox.New(mailbox.KindUCQ, 0), 0, 0, newFakeVcores())
}

func TestSyscall_RegisterEvqThenCompletePostsEvent(t *testing.T) {
	s := New(1, [6]uintptr{})
	q := newTestEvq()
	require.True(t, s.RegisterEvq(q))

	s.Complete(42, nil, false)
	require.True(t, s.Done())

	msg, ok := q.Mbox.ExtractOne()
	require.True(t, ok)
	require.Equal(t, eventmsg.EvSyscall, msg.Type)

	got, ok := Lookup(int64(msg.Arg3))
	require.True(t, ok)
	require.Same(t, s, got)
	require.Equal(t, int64(42), got.Retval)
}

func TestSyscall_RegisterEvqRefusedIfAlreadyDone(t *testing.T) {
	s := New(1, [6]uintptr{})
	s.Complete(7, nil, false)

	q := newTestEvq()
	require.False(t, s.RegisterEvq(q))
}

func TestSyscall_ProgressDoesNotSetDoneOrPostEvent(t *testing.T) {
	s := New(1, [6]uintptr{})
	q := newTestEvq()
	require.True(t, s.RegisterEvq(q))

	s.Complete(0, nil, true)
	require.False(t, s.Done())
	require.True(t, s.Flags().Has(ScProgress))
	require.True(t, q.Mbox.IsEmpty())
}

func TestSyscall_AbortStillCompletesWithError(t *testing.T) {
	s := New(1, [6]uintptr{})
	q := newTestEvq()
	require.True(t, s.RegisterEvq(q))

	s.RequestAbort()
	require.True(t, s.Aborted())

	s.Complete(-1, errors.New("eintr"), false)
	require.True(t, s.Done())
	require.Error(t, s.Err)

	_, ok := q.Mbox.ExtractOne()
	require.True(t, ok, "completion event still posted despite abort")
}

func TestSyscall_DeregisterEvqPreventsLateDelivery(t *testing.T) {
	s := New(1, [6]uintptr{})
	q := newTestEvq()
	require.True(t, s.RegisterEvq(q))
	s.DeregisterEvq()

	s.Complete(1, nil, false)
	require.True(t, q.Mbox.IsEmpty())
}
