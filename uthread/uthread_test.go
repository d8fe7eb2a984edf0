package uthread

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUthread_RunUntilYieldThenResume(t *testing.T) {
	var steps []string
	u := Create(func(u *Uthread) {
		steps = append(steps, "a")
		Yield(u, true, func(u *Uthread) { steps = append(steps, "blocked") })
		steps = append(steps, "b")
	})

	RunUthread(u, 0)
	require.Equal(t, []string{"a", "blocked"}, steps)
	require.Equal(t, Blocked, u.State())

	RunUthread(u, 0)
	require.Equal(t, []string{"a", "blocked", "b"}, steps)
	require.Equal(t, Done, u.State())
}

func TestUthread_FinalYieldWithoutSaveMarksDone(t *testing.T) {
	u := Create(func(u *Uthread) {
		Yield(u, false, nil)
	})
	RunUthread(u, 0)
	require.Equal(t, Done, u.State())
}

func TestUthread_DontMigrateRefusesOtherVcore(t *testing.T) {
	done := make(chan struct{})
	u := Create(func(u *Uthread) {
		u.DontMigrate.Store(true)
		Yield(u, true, nil)
		close(done)
	})
	RunUthread(u, 2)
	require.Equal(t, Blocked, u.State())

	RunUthread(u, 5) // refused: still Blocked, saved_vcore stays 2
	require.Equal(t, Blocked, u.State())
	require.Equal(t, uint32(2), u.SavedVcore())

	RunUthread(u, 2)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("uthread never completed on its saved vcore")
	}
}

func TestUthread_MarkRunnableTransitionsState(t *testing.T) {
	u := Create(func(u *Uthread) { Yield(u, true, nil) })
	RunUthread(u, 0)
	require.Equal(t, Blocked, u.State())
	MarkRunnable(u)
	require.Equal(t, Runnable, u.State())
}

func TestUthread_LazyFPStateFlushedBeforeMigration(t *testing.T) {
	u := Create(func(u *Uthread) { Yield(u, true, nil) })
	RunUthread(u, 0)
	u.MarkFPInHW()
	require.True(t, u.FPInHW())
	u.FlushFPState()
	require.False(t, u.FPInHW())
}
