package procdata

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProcInfo_CoremapSeqlockReadRetry(t *testing.T) {
	pi := NewProcInfo(1, 0, 4, 1e9)

	pi.WriteCoremap(func(vcoremap []VcoreEntry, pcoremap []PcoreEntry, setNumVcores func(uint32)) {
		vcoremap[0] = VcoreEntry{Pcoreid: 7, Valid: true}
		pcoremap[7] = PcoreEntry{Vcoreid: 0, Valid: true}
		setNumVcores(1)
	})

	vcoreid, ok := pi.GetVcoreidFromPcoreid(7)
	require.True(t, ok)
	require.Equal(t, uint32(0), vcoreid)

	entry, ok := pi.VcoreMapping(0)
	require.True(t, ok)
	require.Equal(t, uint32(7), entry.Pcoreid)
	require.Equal(t, uint32(1), pi.NumVcores())
}

func TestProcInfo_ConcurrentWritesNeverYieldTornRead(t *testing.T) {
	pi := NewProcInfo(1, 0, 8, 1e9)
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint32(0); ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			pi.WriteCoremap(func(vcoremap []VcoreEntry, pcoremap []PcoreEntry, setNumVcores func(uint32)) {
				pc := i % 8
				vcoremap[0] = VcoreEntry{Pcoreid: pc, Valid: true}
				pcoremap[pc] = PcoreEntry{Vcoreid: 0, Valid: true}
			})
		}
	}()

	for i := 0; i < 2000; i++ {
		entry, ok := pi.VcoreMapping(0)
		if ok {
			require.Less(t, entry.Pcoreid, uint32(8))
		}
	}
	close(stop)
	wg.Wait()
}

func TestProcData_ArgvAndResourceDesire(t *testing.T) {
	pd := NewProcData(2)
	pd.SetArgv([]string{"akademo", "-x"})
	require.Equal(t, []string{"akademo", "-x"}, pd.Argv())

	pd.SetResourceDesire(ResCores, 4)
	require.Equal(t, uint64(4), pd.ResourceDesire(ResCores))

	pdat := pd.VcorePreemptData(1)
	require.NotNil(t, pdat)
	pdat.NotifPending.Store(true)
	require.True(t, pd.VcorePreemptData(1).NotifPending.Load())
}
