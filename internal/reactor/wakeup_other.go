//go:build !linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// wakeup is the response-ready wakeup descriptor on platforms without
// eventfd (Darwin/BSD): a classic self-pipe, read end registered with the
// poller the same way an eventfd's single fd would be.
type wakeup struct {
	readFD, writeFD int
}

func newWakeup() (*wakeup, error) {
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	return &wakeup{readFD: fds[0], writeFD: fds[1]}, nil
}

func (w *wakeup) FD() int { return w.readFD }

func (w *wakeup) Notify() {
	var b [1]byte
	_, _ = unix.Write(w.writeFD, b[:])
}

func (w *wakeup) Drain() {
	var buf [64]byte
	for {
		if _, err := unix.Read(w.readFD, buf[:]); err != nil {
			return
		}
	}
}

func (w *wakeup) Close() error {
	_ = unix.Close(w.writeFD)
	return unix.Close(w.readFD)
}
