//go:build linux

package transport

import (
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vladiibine/httpd/errors"
)

// fileConn is implemented by *net.TCPConn and *net.UnixConn.
type fileConn interface {
	File() (*os.File, error)
}

// detach moves the socket behind conn out of the runtime poller. The returned
// descriptor is in blocking mode and owned by file; conn is closed.
func detach(conn net.Conn) (*os.File, int, error) {
	fc, ok := conn.(fileConn)
	if !ok {
		conn.Close()
		return nil, -1, errors.NewInvalidArgumentError("connection does not expose a file descriptor")
	}

	file, err := fc.File()
	conn.Close()
	if err != nil {
		return nil, -1, errors.NewTransportError(errors.TransportErrorSocketReadFailure, "failed to duplicate socket", err)
	}

	// Fd puts the duplicate into blocking mode
	fd := int(file.Fd())
	if err := unix.SetNonblock(fd, false); err != nil {
		file.Close()
		return nil, -1, errors.NewTransportError(errors.TransportErrorSocketReadFailure, "failed to clear non-blocking mode", err)
	}

	return file, fd, nil
}

// watchdog bounds a single ring operation by shutting the socket down when
// the idle timeout elapses, which completes any pending recv or send.
// Each arm starts a new generation; an expiry from an older generation, or
// one that lost the lock to disarm, does nothing.
type watchdog struct {
	mu     sync.Mutex
	fd     int
	idle   time.Duration
	timer  *time.Timer
	gen    uint64
	armed  bool
	fired  bool
	closed bool
}

func newWatchdog(fd int, idle time.Duration) *watchdog {
	return &watchdog{fd: fd, idle: idle}
}

func (w *watchdog) arm() {
	if w.idle <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	w.armed = true
	gen := w.gen
	w.timer = time.AfterFunc(w.idle, func() { w.expire(gen) })
}

func (w *watchdog) disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed = false
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *watchdog) expire(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || !w.armed || gen != w.gen {
		return
	}
	w.fired = true
	unix.Shutdown(w.fd, unix.SHUT_RDWR)
}

// abort shuts the socket down without marking an expiry
func (w *watchdog) abort() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		unix.Shutdown(w.fd, unix.SHUT_RDWR)
	}
}

func (w *watchdog) expired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}

// stop must run before the descriptor is closed so a late expiry cannot
// shut down a reused fd.
func (w *watchdog) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.armed = false
	if w.timer != nil {
		w.timer.Stop()
	}
}
