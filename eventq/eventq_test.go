package eventq

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/akaros-project/mcp/eventmsg"
	"github.com/akaros-project/mcp/mailbox"
	"github.com/stretchr/testify/require"
)

// fakeVcores is a minimal in-memory Vcores for exercising the dispatch
// algorithm without the full vcore.Runtime.
type fakeVcores struct {
	mu        sync.Mutex
	runnable  map[uint32]bool
	public    map[uint32]mailbox.Mailbox
	spamIndir map[uint32]int64
	ipiCount  map[uint32]int
	rrCtr     uint32
}

func newFakeVcores(n int) *fakeVcores {
	fv := &fakeVcores{
		runnable:  map[uint32]bool{},
		public:    map[uint32]mailbox.Mailbox{},
		spamIndir: map[uint32]int64{},
		ipiCount:  map[uint32]int{},
	}
	for i := 0; i < n; i++ {
		fv.public[uint32(i)] = mailbox.NewUCQ()
		fv.spamIndir[uint32(i)] = -1
	}
	return fv
}

func (f *fakeVcores) Runnable(v uint32) bool { f.mu.Lock(); defer f.mu.Unlock(); return f.runnable[v] }
func (f *fakeVcores) RunnableVcores() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uint32
	for v, ok := range f.runnable {
		if ok {
			out = append(out, v)
		}
	}
	return out
}
func (f *fakeVcores) NextRoundRobin() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.rrCtr
	f.rrCtr++
	return id
}
func (f *fakeVcores) AppropriateVcore() uint32 {
	rv := f.RunnableVcores()
	if len(rv) == 0 {
		return 0
	}
	return rv[0]
}
func (f *fakeVcores) PublicMbox(v uint32) mailbox.Mailbox { return f.public[v] }
func (f *fakeVcores) SetSpamIndir(v uint32, id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spamIndir[v] = id
}
func (f *fakeVcores) TakeSpamIndir(v uint32) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.spamIndir[v]
	f.spamIndir[v] = -1
	return id
}
func (f *fakeVcores) IPI(v uint32) { f.mu.Lock(); defer f.mu.Unlock(); f.ipiCount[v]++ }

func TestEvQ_DirectDeliveryToRunnableVcore(t *testing.T) {
	fv := newFakeVcores(2)
	fv.runnable[0] = true
	mb := mailbox.NewBitmap()
	q := New(mb, IPI, 0, fv)

	q.Post(eventmsg.Message{Type: eventmsg.EvUserIPI})
	msg, ok := mb.ExtractOne()
	require.True(t, ok)
	require.Equal(t, eventmsg.EvUserIPI, msg.Type)
	require.Equal(t, 1, fv.ipiCount[0])
}

func TestEvQ_FallbackToAnotherRunnableVcore(t *testing.T) {
	fv := newFakeVcores(2)
	fv.runnable[1] = true // target vcore 0 is not runnable
	mb := mailbox.NewBitmap()
	q := New(mb, FALLBACK, 0, fv)

	q.Post(eventmsg.Message{Type: eventmsg.EvAlarm})
	// FALLBACK still deposits into ev_q.ev_mbox, just targets a different
	// vcore for the runnability check/IPI.
	_, ok := mb.ExtractOne()
	require.True(t, ok)
}

func TestEvQ_IndirPostsPointerIntoPublicMbox(t *testing.T) {
	fv := newFakeVcores(1)
	fv.runnable[0] = true
	mb := mailbox.NewUCQ()
	q := New(mb, INDIR|IPI, 0, fv)

	q.Post(eventmsg.Message{Type: eventmsg.EvSyscall, Arg4: 42})

	pub, ok := fv.public[0].ExtractOne()
	require.True(t, ok)
	require.Equal(t, eventmsg.EvEvent, pub.Type)

	// The real message went to q's own mailbox; the public mailbox only
	// carries the pointer.
	real, ok := mb.ExtractOne()
	require.True(t, ok)
	require.Equal(t, uint64(42), real.Arg4)
}

func TestEvQ_SpamIndirUsesDedicatedSlot(t *testing.T) {
	fv := newFakeVcores(2)
	fv.runnable[1] = true
	mb := mailbox.NewUCQ()
	q := New(mb, INDIR|SPAM_INDIR, 0, fv) // target vcore 0 unrunnable, no FALLBACK

	q.Post(eventmsg.Message{Type: eventmsg.EvSyscall})
	require.NotEqual(t, int64(-1), fv.spamIndir[1])
}

func TestEvQ_WakeupNotifiesWaiter(t *testing.T) {
	fv := newFakeVcores(1)
	fv.runnable[0] = true
	mb := mailbox.NewBitmap()
	q := New(mb, WAKEUP, 0, fv)

	var woken bool
	q.Waiter = waiterFunc(func() { woken = true })
	q.Post(eventmsg.Message{Type: eventmsg.EvAlarm})
	require.True(t, woken)
}

type waiterFunc func()

func (f waiterFunc) WakeIfWaiting() { f() }

func TestDispatcher_HandleEventsDrainsIndirAndInvokesHandlers(t *testing.T) {
	fv := newFakeVcores(1)
	fv.runnable[0] = true
	mb := mailbox.NewUCQ()
	q := New(mb, INDIR, 0, fv)

	reg := NewRegistry()
	var got eventmsg.Message
	reg.RegisterHandler(eventmsg.EvSyscall, func(msg eventmsg.Message, evType eventmsg.Type, data any) HandlerResult {
		got = msg
		return Consumed
	}, nil)

	q.Post(eventmsg.Message{Type: eventmsg.EvSyscall, Arg4: 7})

	d := NewDispatcher(reg, fv)
	d.HandleEvents(0)
	require.Equal(t, uint64(7), got.Arg4)
}

func TestBlockOnEvqs_ReturnsFiringQueue(t *testing.T) {
	fv := newFakeVcores(1)
	fv.runnable[0] = true
	q1 := New(mailbox.NewBitmap(), 0, 0, fv)
	q2 := New(mailbox.NewBitmap(), 0, 0, fv)

	go func() {
		time.Sleep(10 * time.Millisecond)
		q2.Post(eventmsg.Message{Type: eventmsg.EvAlarm})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	fired, err := BlockOnEvqs(ctx, 0, q1, q2)
	require.NoError(t, err)
	require.Same(t, q2, fired)
}
