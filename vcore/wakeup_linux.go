//go:build linux

package vcore

import (
	"golang.org/x/sys/unix"

	"github.com/akaros-project/mcp/internal/obslog"
)

// wakeFd is the IPI mechanism for one vcore's pcore-goroutine: an
// eventfd the goroutine blocks reading from, and any number of signal()
// callers write to, the same primitive eventloop's wakeup_linux.go uses
// to break its poller out of a blocking wait.
type wakeFd struct {
	fd     int
	closed chan struct{}
}

func newWakeFd() *wakeFd {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		obslog.Err().Err(err).Log("eventfd create failed, falling back to channel wakeup")
		return &wakeFd{fd: -1, closed: make(chan struct{})}
	}
	return &wakeFd{fd: fd, closed: make(chan struct{})}
}

// signal fires the IPI: wakes a pending or future wait().
func (w *wakeFd) signal() {
	if w.fd < 0 {
		return
	}
	var buf [8]byte
	buf[0] = 1
	_, _ = unix.Write(w.fd, buf[:])
}

// wait blocks until signal() has been called at least once since the
// last wait(), or close() is called. Returns false on close.
func (w *wakeFd) wait() bool {
	if w.fd < 0 {
		<-w.closed
		return false
	}
	pfd := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
	for {
		select {
		case <-w.closed:
			return false
		default:
		}
		n, err := unix.Poll(pfd, 50)
		if err == unix.EINTR {
			continue
		}
		if n > 0 {
			var buf [8]byte
			_, _ = unix.Read(w.fd, buf[:])
			return true
		}
	}
}

func (w *wakeFd) close() {
	close(w.closed)
	if w.fd >= 0 {
		_ = unix.Close(w.fd)
	}
}
