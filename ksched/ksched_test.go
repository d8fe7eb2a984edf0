package ksched

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	syncWait = time.Second
	syncTick = time.Millisecond
)

type fakeQuerier struct {
	mu      sync.Mutex
	desire  map[ProcessID]uint32
	granted map[ProcessID][]uint32
	revoked map[ProcessID][]uint32
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		desire:  make(map[ProcessID]uint32),
		granted: make(map[ProcessID][]uint32),
		revoked: make(map[ProcessID][]uint32),
	}
}

func (f *fakeQuerier) DesiredCores(pid ProcessID) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.desire[pid]
}

func (f *fakeQuerier) OnGrant(pid ProcessID, pcoreid uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.granted[pid] = append(f.granted[pid], pcoreid)
}

func (f *fakeQuerier) OnRevoke(pid ProcessID, pcoreid uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[pid] = append(f.revoked[pid], pcoreid)
}

func (f *fakeQuerier) numGranted(pid ProcessID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.granted[pid])
}

func TestKsched_RunSchedulerGrantsUpToDesire(t *testing.T) {
	q := newFakeQuerier()
	k := New(4, q)
	k.RegisterProc(1)
	q.mu.Lock()
	q.desire[1] = 3
	q.mu.Unlock()

	k.RunScheduler()
	require.Eventually(t, func() bool { return q.numGranted(1) == 3 }, syncWait, syncTick)

	k.mu.Lock()
	require.Equal(t, 3, k.allocated[1])
	require.Len(t, k.idlecores, 1)
	k.mu.Unlock()
}

func TestKsched_ExhaustedIdlePoolStopsGranting(t *testing.T) {
	q := newFakeQuerier()
	k := New(2, q)
	k.RegisterProc(1)
	k.RegisterProc(2)
	q.mu.Lock()
	q.desire[1] = 5
	q.desire[2] = 5
	q.mu.Unlock()

	k.RunScheduler()
	require.Eventually(t, func() bool {
		return q.numGranted(1)+q.numGranted(2) == 2
	}, syncWait, syncTick)

	k.mu.Lock()
	require.Empty(t, k.idlecores)
	k.mu.Unlock()
}

func TestKsched_ProvisionPrefersOwnIdleCoreOnNextGrant(t *testing.T) {
	q := newFakeQuerier()
	k := New(4, q)
	k.RegisterProc(1)
	k.RegisterProc(2)
	k.ProvisionCore(2, 3)

	q.mu.Lock()
	q.desire[1] = 4
	q.mu.Unlock()
	k.RunScheduler()
	require.Eventually(t, func() bool { return q.numGranted(1) == 4 }, syncWait, syncTick)

	k.PutIdleCore(1, 3)
	q.mu.Lock()
	q.desire[1] = 0
	q.desire[2] = 1
	q.mu.Unlock()
	k.RunScheduler()

	require.Eventually(t, func() bool { return q.numGranted(2) == 1 }, syncWait, syncTick)
	gr := q.granted[2]
	require.Equal(t, []uint32{3}, gr)
}

func TestKsched_RevokesProvisionedCoreFromSquatterWhenPoolDry(t *testing.T) {
	q := newFakeQuerier()
	k := New(2, q)
	k.RegisterProc(1)
	k.RegisterProc(2)

	q.mu.Lock()
	q.desire[1] = 2
	q.mu.Unlock()
	k.RunScheduler()
	require.Eventually(t, func() bool { return q.numGranted(1) == 2 }, syncWait, syncTick)

	k.mu.Lock()
	var squatted uint32
	for i, rec := range k.pcores {
		if rec.allocProc == 1 {
			squatted = uint32(i)
			break
		}
	}
	k.mu.Unlock()
	k.ProvisionCore(2, squatted)

	q.mu.Lock()
	q.desire[2] = 1
	q.mu.Unlock()
	k.RunScheduler()

	require.Eventually(t, func() bool { return q.numGranted(2) == 1 }, syncWait, syncTick)
	require.Equal(t, []uint32{squatted}, q.granted[2])
	require.Contains(t, q.revoked[1], squatted)
}

func TestKsched_DestroyProcReturnsAllCoresAndClearsProvisioning(t *testing.T) {
	q := newFakeQuerier()
	k := New(4, q)
	k.RegisterProc(1)
	q.mu.Lock()
	q.desire[1] = 2
	q.mu.Unlock()
	k.RunScheduler()
	require.Eventually(t, func() bool { return q.numGranted(1) == 2 }, syncWait, syncTick)

	k.mu.Lock()
	held := append([]uint32(nil), k.requests[1].provAllocMe...)
	k.mu.Unlock()
	_ = held

	var owned []uint32
	k.mu.Lock()
	for i, rec := range k.pcores {
		if rec.allocProc == 1 {
			owned = append(owned, uint32(i))
		}
	}
	k.mu.Unlock()

	k.DestroyProc(1, owned)

	k.mu.Lock()
	defer k.mu.Unlock()
	require.Len(t, k.idlecores, 4)
	_, exists := k.requests[1]
	require.False(t, exists)
}
