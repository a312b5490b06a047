// Package interrupt provides a non-blocking ESC-keystroke signal used to
// cut a streaming turn short. Grounded on
// ui/interrupt.py::StreamInterruptWatcher (termios.tcgetattr/tcsetattr,
// tty.setcbreak, a select-based poll loop); picoclaw's
// cmd/picoclaw/wizard.go::interactiveSelect supplies the Go idiom for
// entering cbreak mode via golang.org/x/sys/unix (ICANON|ECHO cleared,
// VMIN/VTIME tuned) rather than golang.org/x/term.MakeRaw, which also
// disables signal processing and input/output translation the original
// does not touch.
package interrupt

import (
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

const escByte = 0x1B
const pollInterval = 50 * time.Millisecond

// Source watches stdin for an ESC keypress. All operations are no-ops on
// non-TTY or unsupported platforms, matching the original's guarded
// termios import.
type Source struct {
	fd          int
	origTermios *unix.Termios
	usable      bool

	stop        chan struct{}
	stopped     chan struct{}
	interrupted atomic.Bool
	started     atomic.Bool
}

// New inspects stdin once; if it's not a TTY or termios attributes can't
// be read, every subsequent call is a harmless no-op.
func New() *Source {
	s := &Source{stop: make(chan struct{}), stopped: make(chan struct{})}

	fd := int(os.Stdin.Fd())
	termios, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return s
	}

	s.fd = fd
	s.origTermios = termios
	s.usable = true
	return s
}

// Start begins listening for Esc in a background goroutine. No-op if the
// terminal isn't usable or Start was already called.
func (s *Source) Start() {
	if !s.usable || !s.started.CompareAndSwap(false, true) {
		return
	}

	raw := *s.origTermios
	raw.Lflag &^= unix.ECHO | unix.ICANON
	raw.Cc[unix.VMIN] = 0
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(s.fd, ioctlSetTermios, &raw); err != nil {
		s.usable = false
		return
	}

	go s.listen()
}

func (s *Source) listen() {
	defer close(s.stopped)
	buf := make([]byte, 1)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		n, err := unix.Read(s.fd, buf)
		if err != nil {
			return
		}
		if n > 0 && buf[0] == escByte {
			s.interrupted.Store(true)
			return
		}
		time.Sleep(pollInterval)
	}
}

// ShouldStop reports whether Esc has been observed. Safe to poll from any
// goroutine.
func (s *Source) ShouldStop() bool {
	return s.interrupted.Load()
}

// Stop ends the listener (if any) and unconditionally restores the
// original terminal attributes, including when Start was never called.
// The returned bool reports whether an interrupt was latched.
func (s *Source) Stop() bool {
	if s.started.Load() {
		select {
		case <-s.stop:
		default:
			close(s.stop)
		}
		select {
		case <-s.stopped:
		case <-time.After(100 * time.Millisecond):
		}
	}

	if s.usable && s.origTermios != nil {
		_ = unix.IoctlSetTermios(s.fd, ioctlSetTermios, s.origTermios)
	}

	return s.interrupted.Load()
}
