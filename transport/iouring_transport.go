//go:build linux

package transport

import (
	stderrors "errors"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/iceber/iouring-go"

	"github.com/vladiibine/httpd/errors"
)

// IoUringFactory owns one io_uring instance shared by every connection a
// worker adopts. Connections are served one at a time.
type IoUringFactory struct {
	iour *iouring.IOURing
	idle time.Duration
}

// NewIoUringFactory creates an io_uring instance with the given queue depth
func NewIoUringFactory(entries uint, idle time.Duration) (*IoUringFactory, error) {
	iour, err := iouring.New(entries)
	if err != nil {
		return nil, errors.NewTransportError(
			errors.TransportErrorIoUringInit,
			"failed to initialize io_uring",
			err,
		)
	}

	return &IoUringFactory{iour: iour, idle: idle}, nil
}

// Adopt detaches conn from the runtime poller and drives it through the ring
func (f *IoUringFactory) Adopt(conn net.Conn) (Transport, error) {
	// wrapped connections (e.g. from a limiting listener) hide their socket
	if _, ok := conn.(fileConn); !ok {
		return NewNetTransport(conn, f.idle), nil
	}

	file, fd, err := detach(conn)
	if err != nil {
		return nil, err
	}

	return &IoUringTransport{
		iour: f.iour,
		file: file,
		fd:   fd,
		dog:  newWatchdog(fd, f.idle),
	}, nil
}

// Close cleans up the io_uring instance
func (f *IoUringFactory) Close() error {
	if f.iour == nil {
		return nil
	}
	err := f.iour.Close()
	f.iour = nil
	return err
}

// IoUringTransport implements Transport using iceber/iouring-go
type IoUringTransport struct {
	iour *iouring.IOURing
	file *os.File
	fd   int
	dog  *watchdog
}

// Read receives data from the connection using io_uring
func (t *IoUringTransport) Read(buf []byte) (int, error) {
	if t.fd < 0 {
		return 0, errors.NewTransportError(errors.TransportErrorSocketReadFailure, "not connected", nil)
	}

	if len(buf) == 0 {
		return 0, nil
	}

	t.dog.arm()
	defer t.dog.disarm()

	// Read and Write install the resolver that ReturnInt needs; Recv and Send do not
	ch := make(chan iouring.Result, 1)
	if _, err := t.iour.SubmitRequest(iouring.Read(t.fd, buf), ch); err != nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			"failed to submit read request",
			err,
		)
	}

	result := <-ch
	n, err := result.ReturnInt()
	if t.dog.expired() {
		return 0, errors.NewTransportError(errors.TransportErrorTimeout, "idle timeout exceeded", nil)
	}
	if err != nil {
		return 0, ringError(err, errors.TransportErrorSocketReadFailure)
	}

	if n == 0 {
		return 0, errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection closed by peer", io.EOF)
	}

	return n, nil
}

// Write sends data over the connection using io_uring
func (t *IoUringTransport) Write(buf []byte) (int, error) {
	if t.fd < 0 {
		return 0, errors.NewTransportError(errors.TransportErrorSocketWriteFailure, "not connected", nil)
	}

	totalWritten := 0
	for totalWritten < len(buf) {
		t.dog.arm()
		ch := make(chan iouring.Result, 1)
		if _, err := t.iour.SubmitRequest(iouring.Write(t.fd, buf[totalWritten:]), ch); err != nil {
			t.dog.disarm()
			return totalWritten, errors.NewTransportError(
				errors.TransportErrorIoUringSubmit,
				"failed to submit write request",
				err,
			)
		}

		result := <-ch
		t.dog.disarm()
		n, err := result.ReturnInt()
		if t.dog.expired() {
			return totalWritten, errors.NewTransportError(errors.TransportErrorTimeout, "idle timeout exceeded", nil)
		}
		if err != nil {
			return totalWritten, ringError(err, errors.TransportErrorSocketWriteFailure)
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
func (t *IoUringTransport) Abort() {
	t.dog.abort()
}

// Close closes the connection. The ring stays with the factory.
func (t *IoUringTransport) Close() error {
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

// ringError maps a completion errno onto the transport taxonomy.
func ringError(err error, fallback errors.TransportError) error {
	if stderrors.Is(err, syscall.EPIPE) || stderrors.Is(err, syscall.ECONNRESET) {
		return errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection reset", err)
	}
	return errors.NewTransportError(fallback, "", err)
}
