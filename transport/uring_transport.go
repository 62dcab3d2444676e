//go:build linux

package transport

import (
	"io"
	"net"
	"os"
	"time"

	"github.com/godzie44/go-uring/uring"

	"github.com/vladiibine/httpd/errors"
)

// UringFactory owns a godzie44/go-uring ring for one worker
type UringFactory struct {
	ring *uring.Ring
	idle time.Duration
}

// NewUringFactory creates a ring with the given queue depth
func NewUringFactory(entries uint32, idle time.Duration) (*UringFactory, error) {
	ring, err := uring.New(entries)
	if err != nil {
		return nil, errors.NewTransportError(
			errors.TransportErrorIoUringInit,
			"failed to initialize io_uring",
			err,
		)
	}

	return &UringFactory{ring: ring, idle: idle}, nil
}

// Adopt detaches conn from the runtime poller and drives it through the ring
func (f *UringFactory) Adopt(conn net.Conn) (Transport, error) {
	// wrapped connections (e.g. from a limiting listener) hide their socket
	if _, ok := conn.(fileConn); !ok {
		return NewNetTransport(conn, f.idle), nil
	}

	file, fd, err := detach(conn)
	if err != nil {
		return nil, err
	}

	return &UringTransport{
		ring: f.ring,
		file: file,
		fd:   fd,
		dog:  newWatchdog(fd, f.idle),
	}, nil
}

// Close cleans up the ring
func (f *UringFactory) Close() error {
	if f.ring == nil {
		return nil
	}
	err := f.ring.Close()
	f.ring = nil
	return err
}

// UringTransport implements Transport using godzie44/go-uring
type UringTransport struct {
	ring *uring.Ring
	file *os.File
	fd   int
	dog  *watchdog
}

// complete submits one queued operation and waits for its completion.
func (t *UringTransport) complete(op uring.Operation, failure errors.TransportError) (int, error) {
	t.dog.arm()
	defer t.dog.disarm()

	if err := t.ring.QueueSQE(op, 0, 0); err != nil {
		return 0, errors.NewTransportError(errors.TransportErrorIoUringSubmit, "failed to queue request", err)
	}

	if _, err := t.ring.Submit(); err != nil {
		return 0, errors.NewTransportError(errors.TransportErrorIoUringSubmit, "failed to submit request", err)
	}

	cqe, err := t.ring.WaitCQEvents(1)
	if err != nil {
		return 0, errors.NewTransportError(failure, "failed to wait for completion", err)
	}

	n, opErr := int(cqe.Res), cqe.Error()
	t.ring.SeenCQE(cqe)

	if t.dog.expired() {
		return 0, errors.NewTransportError(errors.TransportErrorTimeout, "idle timeout exceeded", nil)
	}
	if opErr != nil {
		return 0, ringError(opErr, failure)
	}

	return n, nil
}

// Read receives data from the connection using io_uring
func (t *UringTransport) Read(buf []byte) (int, error) {
	if t.fd < 0 {
		return 0, errors.NewTransportError(errors.TransportErrorSocketReadFailure, "not connected", nil)
	}

	n, err := t.complete(uring.Read(uintptr(t.fd), buf, 0), errors.TransportErrorSocketReadFailure)
	if err != nil {
		return 0, err
	}

	if n == 0 && len(buf) > 0 {
		return 0, errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection closed by peer", io.EOF)
	}

	return n, nil
}

// Write sends data over the connection using io_uring
func (t *UringTransport) Write(buf []byte) (int, error) {
	if t.fd < 0 {
		return 0, errors.NewTransportError(errors.TransportErrorSocketWriteFailure, "not connected", nil)
	}

	totalWritten := 0
	for totalWritten < len(buf) {
		// sockets ignore the offset; it must stay zero
		n, err := t.complete(uring.Write(uintptr(t.fd), buf[totalWritten:], 0), errors.TransportErrorSocketWriteFailure)
		if err != nil {
			return totalWritten, err
		}

		if n <= 0 {
			return totalWritten, errors.NewTransportError(
				errors.TransportErrorConnectionClosed,
				"connection closed during write",
				nil,
			)
		}

		totalWritten += n
	}

	return totalWritten, nil
}

// Abort shuts the socket down, completing any pending ring operation
func (t *UringTransport) Abort() {
	t.dog.abort()
}

// Close closes the connection. The ring stays with the factory.
func (t *UringTransport) Close() error {
	if t.fd < 0 {
		return nil
	}

	t.dog.stop()
	t.fd = -1
	if err := t.file.Close(); err != nil {
		return errors.NewTransportError(errors.TransportErrorConnectionClosed, "failed to close socket", err)
	}

	return nil
}
