package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/vladiibine/httpd/errors"
)

// Transport is the I/O surface a worker uses for one accepted connection.
// Read reports a clean peer close as a ConnectionClosed error wrapping io.EOF.
type Transport interface {
	// Read receives data from the peer.
	// Returns the number of bytes read.
	Read(buf []byte) (int, error)

	// Write sends data to the peer.
	// Returns the number of bytes written
	Write(buf []byte) (int, error)

	// Close closes the connection
	Close() error

	// Abort unblocks pending I/O from another goroutine. The owner still
	// calls Close.
	Abort()
}

// Factory turns accepted connections into Transports. A Factory belongs to a
// single worker and is never used from two goroutines at once.
type Factory interface {
	// Adopt takes ownership of conn. The caller must not touch conn afterwards.
	Adopt(conn net.Conn) (Transport, error)

	// Close releases resources held by the factory itself.
	Close() error
}

// Kind selects a transport backend.
type Kind string

const (
	KindNet     Kind = "net"
	KindIoUring Kind = "iouring"
	KindUring   Kind = "uring"
)

// ringEntries is the submission queue depth of the per-worker rings.
const ringEntries = 32

// ParseKind validates a backend name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindNet, KindIoUring, KindUring:
		return k, nil
	}
	return "", errors.NewInvalidArgumentError(fmt.Sprintf("unknown transport %q", s))
}

// NewFactory creates a factory for kind. Every read and write of an adopted
// connection is bounded by idle when idle > 0.
func NewFactory(kind Kind, idle time.Duration) (Factory, error) {
	switch kind {
	case KindNet, "":
		return NewNetFactory(idle), nil
	case KindIoUring:
		f, err := NewIoUringFactory(ringEntries, idle)
		if err != nil {
			return nil, err
		}
		return f, nil
	case KindUring:
		f, err := NewUringFactory(ringEntries, idle)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("unknown transport %q", kind))
	}
}
