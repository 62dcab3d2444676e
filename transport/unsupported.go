//go:build !linux

package transport

import (
	"time"

	"github.com/vladiibine/httpd/errors"
)

// NewIoUringFactory fails: io_uring exists only on Linux
func NewIoUringFactory(entries uint, idle time.Duration) (Factory, error) {
	return nil, errors.NewTransportError(errors.TransportErrorIoUringInit, "io_uring requires linux", nil)
}

// NewUringFactory fails: io_uring exists only on Linux
func NewUringFactory(entries uint32, idle time.Duration) (Factory, error) {
	return nil, errors.NewTransportError(errors.TransportErrorIoUringInit, "io_uring requires linux", nil)
}
