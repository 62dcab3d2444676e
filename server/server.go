// Package server binds the listening socket and feeds accepted connections
// into the worker pool through a bounded queue.
package server

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/vladiibine/httpd/protocol"
	"github.com/vladiibine/httpd/queue"
	"github.com/vladiibine/httpd/worker"
)

const (
	maxAcceptDelay = time.Second
	rejectLinger   = 100 * time.Millisecond
)

// Stats is a snapshot of acceptor and pool counters
type Stats struct {
	worker.Stats
	Accepted uint64
	Rejected uint64
	Queued   int
	Active   int
}

// Server is the acceptor. It owns the listener and the queue and shares the
// queue with the pool; nothing else is shared between goroutines.
type Server struct {
	cfg     Config
	handler protocol.Handler
	base    zerolog.Logger
	log     zerolog.Logger
	writer  protocol.ResponseWriter

	listener   net.Listener
	queue      *queue.Queue[worker.Conn]
	pool       *worker.Pool
	cancel     context.CancelFunc
	acceptDone chan struct{}
	stopOnce   sync.Once

	// rejections in progress; each lingers up to rejectLinger
	rejecting sync.WaitGroup

	accepted atomic.Uint64
	rejected atomic.Uint64
}

// New validates cfg and creates a server. Nothing is bound until Start.
func New(cfg Config, handler protocol.Handler, logger zerolog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Server{
		cfg:        cfg,
		handler:    handler,
		base:       logger,
		log:        logger.With().Str("component", "server").Logger(),
		writer:     protocol.ResponseWriter{ServerName: cfg.ServerName},
		acceptDone: make(chan struct{}),
	}, nil
}

// Start binds the listener, starts the workers and runs the accept loop in the
// background. It returns once the server is accepting.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	ln, err := s.listen(ctx)
	if err != nil {
		cancel()
		return err
	}
	s.listener = ln

	q, err := queue.New[worker.Conn](s.cfg.QueueCapacity)
	if err != nil {
		ln.Close()
		cancel()
		return err
	}
	s.queue = q

	s.pool = worker.New(worker.Config{
		Workers:        s.cfg.Workers,
		Transport:      s.cfg.Transport,
		IdleTimeout:    s.cfg.IdleTimeout,
		MaxHeaderBytes: s.cfg.MaxHeaderBytes,
		MaxBodyBytes:   s.cfg.MaxBodyBytes,
		ServerName:     s.cfg.ServerName,
	}, s.handler, s.base)
	if err := s.pool.Start(ctx, q); err != nil {
		ln.Close()
		cancel()
		return err
	}

	s.log.Info().
		Str("network", s.cfg.Network).
		Str("address", ln.Addr().String()).
		Int("queue_capacity", s.cfg.QueueCapacity).
		Str("queue_policy", string(s.cfg.QueuePolicy)).
		Msg("server started")

	go func() {
		<-ctx.Done()
		if err := ln.Close(); err != nil && !stderrors.Is(err, net.ErrClosed) {
			s.log.Warn().Err(err).Msg("error closing listener")
		}
	}()

	go s.acceptLoop(ctx)
	return nil
}

// Addr returns the bound address
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Stats returns the current counters
func (s *Server) Stats() Stats {
	return Stats{
		Stats:    s.pool.Stats(),
		Accepted: s.accepted.Load(),
		Rejected: s.rejected.Load(),
		Queued:   s.queue.Len(),
		Active:   s.pool.Active(),
	}
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer close(s.acceptDone)

	var delay time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, net.ErrClosed) {
				return
			}

			// out of descriptors and the like; back off and retry
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			s.log.Warn().Err(err).Dur("retry_in", delay).Msg("accept failed")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}
		delay = 0

		s.enqueue(ctx, conn)
	}
}

// enqueue hands conn to the queue according to the queue policy
func (s *Server) enqueue(ctx context.Context, conn net.Conn) {
	c := worker.Conn{ID: xid.New(), Conn: conn, Accepted: time.Now()}

	var err error
	if s.cfg.QueuePolicy == PolicyReject {
		err = s.queue.TryPush(c)
	} else {
		err = s.queue.Push(ctx, c)
	}

	switch {
	case err == nil:
		s.accepted.Add(1)
	case stderrors.Is(err, queue.ErrFull):
		s.rejecting.Add(1)
		go func() {
			defer s.rejecting.Done()
			s.reject(c)
		}()
	default:
		conn.Close()
	}
}

// reject answers 503 without parsing the request. The write side is shut
// first and the peer gets a short window to finish sending, so the response
// is not lost to a reset. It runs off the accept loop.
func (s *Server) reject(c worker.Conn) {
	s.rejected.Add(1)
	s.log.Info().Str("conn_id", c.ID.String()).Msg("queue full, rejecting connection")

	defer c.Conn.Close()
	c.Conn.SetDeadline(time.Now().Add(rejectLinger))

	if err := s.writer.WriteResponse(c.Conn, protocol.Text(http.StatusServiceUnavailable, "server busy\n")); err != nil {
		s.log.Debug().Err(err).Msg("failed to write rejection")
		return
	}
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}
	io.Copy(io.Discard, io.LimitReader(c.Conn, 64<<10))
}

// Stop shuts the server down: no new connections are accepted, workers
// finish their current connection within GracePeriod and are then aborted,
// and connections still waiting in the queue are closed unserved.
func (s *Server) Stop() {
	if s.listener == nil {
		return
	}
	s.stopOnce.Do(func() {
		s.log.Info().Msg("shutting down")

		s.cancel()
		s.listener.Close()
		<-s.acceptDone
		s.rejecting.Wait()

		s.queue.Close()
		for _, c := range s.queue.Drain() {
			c.Conn.Close()
		}

		done := make(chan struct{})
		go func() {
			s.pool.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(s.cfg.GracePeriod):
			n := s.pool.Abort()
			s.log.Warn().Int("aborted", n).Msg("grace period exceeded, aborting connections in progress")
			<-done
		}

		s.log.Info().Msg("shutdown complete")
	})
}
