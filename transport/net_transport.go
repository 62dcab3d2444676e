package transport

import (
	stderrors "errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/vladiibine/httpd/errors"
)

// NetFactory adopts connections as NetTransports.
type NetFactory struct {
	idle time.Duration
}

// NewNetFactory creates a NetFactory
func NewNetFactory(idle time.Duration) *NetFactory {
	return &NetFactory{idle: idle}
}

// Adopt wraps conn
func (f *NetFactory) Adopt(conn net.Conn) (Transport, error) {
	return NewNetTransport(conn, f.idle), nil
}

// Close is a no-op
func (f *NetFactory) Close() error {
	return nil
}

// NetTransport implements Transport on top of the runtime network poller.
// It works for both TCP and Unix domain sockets.
type NetTransport struct {
	conn net.Conn
	raw  net.Conn
	idle time.Duration
}

// NewNetTransport creates a new NetTransport instance
func NewNetTransport(conn net.Conn, idle time.Duration) *NetTransport {
	return &NetTransport{
		conn: conn,
		raw:  conn,
		idle: idle,
	}
}

// Read receives data from the connection
func (t *NetTransport) Read(buf []byte) (int, error) {
	if t.conn == nil {
		return 0, errors.NewTransportError(errors.TransportErrorSocketReadFailure, "not connected", nil)
	}

	if t.idle > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.idle)); err != nil {
			return 0, errors.NewTransportError(errors.TransportErrorSocketReadFailure, "failed to set read deadline", err)
		}
	}

	n, err := t.conn.Read(buf)
	if err != nil {
		return n, classify(err, errors.TransportErrorSocketReadFailure)
	}

	return n, nil
}

// Write sends data over the connection
func (t *NetTransport) Write(buf []byte) (int, error) {
	if t.conn == nil {
		return 0, errors.NewTransportError(errors.TransportErrorSocketWriteFailure, "not connected", nil)
	}

	if t.idle > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.idle)); err != nil {
			return 0, errors.NewTransportError(errors.TransportErrorSocketWriteFailure, "failed to set write deadline", err)
		}
	}

	n, err := t.conn.Write(buf)
	if err != nil {
		return n, classify(err, errors.TransportErrorSocketWriteFailure)
	}

	return n, nil
}

// Close closes the connection
func (t *NetTransport) Close() error {
	if t.conn == nil {
		return nil // Idempotent close
	}

	err := t.conn.Close()
	t.conn = nil

	if err != nil {
		return errors.NewTransportError(errors.TransportErrorConnectionClosed, "failed to close socket", err)
	}

	return nil
}

// Abort closes the socket under any blocked Read or Write
func (t *NetTransport) Abort() {
	if t.raw != nil {
		t.raw.Close()
	}
}

// classify maps a socket error onto the transport taxonomy.
func classify(err error, fallback errors.TransportError) error {
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.NewTransportError(errors.TransportErrorTimeout, "idle timeout exceeded", err)
	}
	if stderrors.Is(err, io.EOF) {
		return errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection closed by peer", err)
	}
	// Broken pipe or connection reset
	if stderrors.Is(err, syscall.EPIPE) || stderrors.Is(err, syscall.ECONNRESET) {
		return errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection reset", err)
	}
	return errors.NewTransportError(fallback, "", err)
}
