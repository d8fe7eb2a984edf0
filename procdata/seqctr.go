package procdata

import "sync/atomic"

// SeqCtr is a seqlock over a piece of shared state, grounded on
// original_source's seq_ctr_t (ros/notification.h) and its use guarding
// procinfo's coremap_seqctr: a single writer brackets an update with
// BeginWrite/EndWrite (each bump makes the counter odd, then even again),
// and any number of readers snapshot the counter, do their read, and
// retry if it changed or was caught mid-write.
type SeqCtr struct {
	v atomic.Uint64
}

// BeginWrite marks the start of a write. Must be paired with EndWrite.
// Only one writer at a time; callers serialize writers themselves (the
// kernel side of procinfo, in this simulator, is single-threaded per
// process by convention).
func (s *SeqCtr) BeginWrite() {
	s.v.Add(1) // now odd: "write in progress"
}

// EndWrite marks the end of a write.
func (s *SeqCtr) EndWrite() {
	s.v.Add(1) // now even: "stable"
}

// BeginRead returns a snapshot to later pass to Retry.
func (s *SeqCtr) BeginRead() uint64 {
	return s.v.Load()
}

// Retry reports whether the read that started at seq must be discarded
// and redone: true if a write was in progress at seq, or has completed
// since.
func (s *SeqCtr) Retry(seq uint64) bool {
	return seq&1 != 0 || s.v.Load() != seq
}
