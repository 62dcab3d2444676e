package server

import (
	"context"
	"net"
	"os"
	"syscall"

	"golang.org/x/net/netutil"
	"golang.org/x/sys/unix"

	"github.com/vladiibine/httpd/errors"
)

// listen binds the configured address. A failure here is the only fatal
// error the server has.
func (s *Server) listen(ctx context.Context) (net.Listener, error) {
	if s.cfg.Network == "unix" {
		// a stale socket file from a previous run blocks the bind
		if err := os.Remove(s.cfg.Address); err != nil && !os.IsNotExist(err) {
			return nil, errors.NewTransportError(errors.TransportErrorBindFailure, s.cfg.Address, err)
		}
	}

	lc := net.ListenConfig{Control: s.control}
	ln, err := lc.Listen(ctx, s.cfg.Network, s.cfg.Address)
	if err != nil {
		return nil, errors.NewTransportError(errors.TransportErrorBindFailure, s.cfg.Address, err)
	}

	if s.cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConns)
	}
	return ln, nil
}

// control sets socket options on TCP listeners before bind
func (s *Server) control(network, address string, c syscall.RawConn) error {
	if network == "unix" {
		return nil
	}

	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if sockErr == nil && s.cfg.ReusePort {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}
