package mailbox

import (
	"sync"
	"testing"

	"github.com/akaros-project/mcp/eventmsg"
	"github.com/stretchr/testify/require"
)

func TestBitmap_CoalescesDuplicatePosts(t *testing.T) {
	b := NewBitmap()
	require.True(t, b.IsEmpty())
	b.Post(eventmsg.Message{Type: eventmsg.EvAlarm})
	b.Post(eventmsg.Message{Type: eventmsg.EvAlarm})
	b.Post(eventmsg.Message{Type: eventmsg.EvSyscall})
	require.False(t, b.IsEmpty())

	var got []eventmsg.Type
	for {
		msg, ok := b.ExtractOne()
		if !ok {
			break
		}
		got = append(got, msg.Type)
	}
	require.ElementsMatch(t, []eventmsg.Type{eventmsg.EvSyscall, eventmsg.EvAlarm}, got)
	require.True(t, b.IsEmpty())
}

// TestUCQ_NoLossUnderConcurrentProducers is Scenario D: a high volume of
// sequential posts from many producers into one UCQ must all be observed
// by the single consumer, with no duplicates and no drops (invariant 4).
func TestUCQ_NoLossUnderConcurrentProducers(t *testing.T) {
	const producers = 8
	const perProducer = 2000
	const total = producers * perProducer

	q := NewUCQ()
	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Post(eventmsg.Message{Type: eventmsg.EvUserIPI, Arg4: uint64(p*perProducer + i)})
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[uint64]bool, total)
	for len(seen) < total {
		msg, ok := q.ExtractOne()
		require.True(t, ok, "mailbox ran dry at %d/%d", len(seen), total)
		require.False(t, seen[msg.Arg4], "duplicate delivery of %d", msg.Arg4)
		seen[msg.Arg4] = true
	}
	require.True(t, q.IsEmpty())
}

func TestUCQ_PageChainFIFOSingleProducer(t *testing.T) {
	q := NewUCQ()
	const n = ucqPageSize*3 + 17 // cross several page boundaries
	for i := 0; i < n; i++ {
		q.Post(eventmsg.Message{Arg3: uint64(i)})
	}
	for i := 0; i < n; i++ {
		msg, ok := q.ExtractOne()
		require.True(t, ok)
		require.Equal(t, uint64(i), msg.Arg3)
	}
	require.True(t, q.IsEmpty())
}

// TestCEQ_CoalescesRepeatedPosts is invariant 5: N posts to the same
// ev_type before a drain fold into one manifestation carrying the
// accumulated blob.
func TestCEQ_CoalescesRepeatedPosts(t *testing.T) {
	q := NewCEQ(8, CeqAdd)
	for i := 0; i < 5; i++ {
		q.Post(eventmsg.Message{Type: 3, Arg3: 1})
	}
	msg, ok := q.ExtractOne()
	require.True(t, ok)
	require.Equal(t, eventmsg.Type(3), msg.Type)
	require.Equal(t, uint64(5), msg.Arg3)

	_, ok = q.ExtractOne()
	require.False(t, ok)
}

func TestCEQ_BitwiseOrMode(t *testing.T) {
	q := NewCEQ(8, CeqOr)
	q.Post(eventmsg.Message{Type: 1, Arg3: 0b001})
	q.Post(eventmsg.Message{Type: 1, Arg3: 0b010})
	q.Post(eventmsg.Message{Type: 1, Arg3: 0b100})
	msg, ok := q.ExtractOne()
	require.True(t, ok)
	require.Equal(t, uint64(0b111), msg.Arg3)
}

func TestCEQ_RingOverflowFallsBackToLinearScan(t *testing.T) {
	q := NewCEQ(4, CeqAdd)
	q.ring = make([]eventmsg.Type, 2) // force overflow with a tiny ring
	q.Post(eventmsg.Message{Type: 0, Arg3: 1})
	q.Post(eventmsg.Message{Type: 1, Arg3: 1})
	q.Post(eventmsg.Message{Type: 2, Arg3: 1}) // overflows the 2-slot ring
	require.True(t, q.ringOverflowed)

	seen := map[eventmsg.Type]bool{}
	for i := 0; i < 3; i++ {
		msg, ok := q.ExtractOne()
		require.True(t, ok)
		seen[msg.Type] = true
	}
	require.Len(t, seen, 3)
	require.True(t, q.IsEmpty())
}
