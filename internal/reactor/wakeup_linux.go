//go:build linux

package reactor

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// wakeup is the response-ready wakeup descriptor §4.I requires every
// shard to own. On Linux this is a real eventfd, matching
// original_source/src/server.cpp's m_event_fd (created with eventfd(2)).
type wakeup struct {
	fd int
}

func newWakeup() (*wakeup, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &wakeup{fd: fd}, nil
}

func (w *wakeup) FD() int { return w.fd }

// Notify writes 8 bytes to the eventfd, per spec.md §4.D's "write 8 bytes
// to wake the reactor" contract.
func (w *wakeup) Notify() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(w.fd, buf[:])
}

// Drain resets the eventfd counter to zero so the next Notify reliably
// re-triggers edge-triggered readiness.
func (w *wakeup) Drain() {
	var buf [8]byte
	for {
		if _, err := unix.Read(w.fd, buf[:]); err != nil {
			return
		}
	}
}

func (w *wakeup) Close() error { return unix.Close(w.fd) }
