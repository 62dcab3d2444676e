package worker

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/vladiibine/httpd/errors"
	"github.com/vladiibine/httpd/protocol"
	"github.com/vladiibine/httpd/transport"
)

// serve handles one connection from adoption to close. Nothing that happens
// here may escape to the worker loop.
func (p *Pool) serve(log zerolog.Logger, factory transport.Factory, c Conn) {
	remote := ""
	if addr := c.Conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	log = log.With().Str("conn_id", c.ID.String()).Str("remote", remote).Logger()

	var t transport.Transport
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			log.Error().
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("recovered panic while serving connection")
		}

		if t == nil {
			c.Conn.Close()
			return
		}
		p.active.Delete(c.ID)
		if err := t.Close(); err != nil {
			log.Debug().Err(err).Msg("close failed")
		}
	}()

	t, err := factory.Adopt(c.Conn)
	if err != nil {
		p.connErrors.Add(1)
		log.Warn().Err(err).Msg("failed to adopt connection")
		return
	}
	p.active.Store(c.ID, t)

	log.Debug().Dur("queued", time.Since(c.Accepted)).Msg("connection dequeued")
	p.exchange(log, t, c, remote)
}

// exchange runs parse, handler and write for the single request on t
func (p *Pool) exchange(log zerolog.Logger, t transport.Transport, c Conn, remote string) {
	start := time.Now()

	req, err := p.parser.Parse(t)
	if err != nil {
		if resp, ok := protocol.FramingResponse(err); ok {
			p.framingErrors.Add(1)
			log.Info().Err(err).Int("status", resp.StatusCode).Msg("rejecting malformed request")
			p.write(log, t, resp)
			return
		}
		if errors.IsProtocol(err, errors.ProtocolErrorUnexpectedEOF) {
			p.framingErrors.Add(1)
			log.Debug().Err(err).Msg("peer closed before sending a full request")
			return
		}
		p.connErrors.Add(1)
		log.Warn().Err(err).Msg("read failed")
		return
	}
	req.ID = c.ID
	req.RemoteAddr = remote

	resp, herr := p.invoke(log, req)
	if herr != nil {
		p.handlerErrors.Add(1)
		log.Info().Err(herr).Str("path", req.Path).Msg("handler failed")
	}
	resp = protocol.Outcome(resp, herr)

	if !p.write(log, t, resp) {
		return
	}
	p.served.Add(1)

	log.Info().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Int("body_bytes", len(resp.Body)).
		Dur("elapsed", time.Since(start)).
		Msg("request served")
}

// invoke calls the handler, turning a panic into a server error
func (p *Pool) invoke(log zerolog.Logger, req *protocol.Request) (resp *protocol.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			log.Error().
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")
			resp, err = nil, fmt.Errorf("%w: handler panic: %v", protocol.ErrServer, r)
		}
	}()
	return p.handler.ServeHTTP1(req)
}

// write sends resp; a failure is logged and swallowed
func (p *Pool) write(log zerolog.Logger, t transport.Transport, resp *protocol.Response) bool {
	if err := p.writer.WriteResponse(t, resp); err != nil {
		p.connErrors.Add(1)
		log.Warn().Err(err).Msg("write failed")
		return false
	}
	return true
}
