//go:build darwin

package reactor

import (
	"golang.org/x/sys/unix"
)

// kqueuePoller upgrades the teacher's core/poller/kqueue.go from raw
// `syscall` to golang.org/x/sys/unix, and adds EV_CLEAR for edge-triggered
// semantics — the teacher's comment explicitly avoided EV_CLEAR ("can miss
// events if not handled carefully"); this runtime's event loop is written
// to drain fully before the next Wait precisely so EV_CLEAR is safe
// (spec.md §4.I).
type kqueuePoller struct {
	kqfd   int
	events []unix.Kevent_t
}

// NewPoller creates the Darwin/BSD kqueue-backed Poller.
func NewPoller() (Poller, error) {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{kqfd: kqfd, events: make([]unix.Kevent_t, 256)}, nil
}

func (p *kqueuePoller) changeOne(fd int, filter int16, flags uint16) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  flags,
	}
	_, err := unix.Kevent(p.kqfd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (p *kqueuePoller) AddRead(fd int) error {
	return p.changeOne(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE|unix.EV_CLEAR)
}

func (p *kqueuePoller) EnableWrite(fd int) error {
	return p.changeOne(fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ENABLE|unix.EV_CLEAR)
}

func (p *kqueuePoller) DisableWrite(fd int) error {
	return p.changeOne(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
}

func (p *kqueuePoller) Remove(fd int) error {
	_ = p.changeOne(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	return p.changeOne(fd, unix.EVFILT_READ, unix.EV_DELETE)
}

func (p *kqueuePoller) Wait(timeoutMs int) ([]Event, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64(timeoutMs%1000) * 1_000_000,
		}
	}
	n, err := unix.Kevent(p.kqfd, nil, p.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		e := p.events[i]
		ev := Event{Fd: int(e.Ident), HangUp: e.Flags&unix.EV_EOF != 0}
		switch e.Filter {
		case unix.EVFILT_READ:
			ev.Readable = true
		case unix.EVFILT_WRITE:
			ev.Writable = true
		}
		out = append(out, ev)
	}
	return out, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kqfd)
}
