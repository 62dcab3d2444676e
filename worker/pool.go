// Package worker runs the fixed set of goroutines that serve queued
// connections one at a time.
package worker

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/vladiibine/httpd/errors"
	"github.com/vladiibine/httpd/protocol"
	"github.com/vladiibine/httpd/queue"
	"github.com/vladiibine/httpd/transport"
)

// Conn is an accepted connection waiting in the queue. The worker that pops
// it owns it and closes it.
type Conn struct {
	ID       xid.ID
	Conn     net.Conn
	Accepted time.Time
}

// Config holds the per-connection settings of a Pool
type Config struct {
	Workers        int
	Transport      transport.Kind
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodyBytes   int64
	ServerName     string
}

// Stats is a snapshot of the pool counters
type Stats struct {
	Served        uint64
	FramingErrors uint64
	ConnErrors    uint64
	HandlerErrors uint64
	Panics        uint64
}

// Pool is a fixed-size set of workers draining a connection queue
type Pool struct {
	cfg     Config
	handler protocol.Handler
	log     zerolog.Logger
	parser  protocol.Parser
	writer  protocol.ResponseWriter

	// in-flight connections, for forced shutdown only
	active *xsync.MapOf[xid.ID, transport.Transport]
	wg     sync.WaitGroup

	served        atomic.Uint64
	framingErrors atomic.Uint64
	connErrors    atomic.Uint64
	handlerErrors atomic.Uint64
	panics        atomic.Uint64
}

// New creates a pool. Nothing runs until Start.
func New(cfg Config, handler protocol.Handler, logger zerolog.Logger) *Pool {
	return &Pool{
		cfg:     cfg,
		handler: handler,
		log:     logger.With().Str("component", "worker").Logger(),
		parser: protocol.Parser{
			MaxHeaderBytes: cfg.MaxHeaderBytes,
			MaxBodyBytes:   cfg.MaxBodyBytes,
		},
		writer: protocol.ResponseWriter{ServerName: cfg.ServerName},
		active: xsync.NewMapOf[xid.ID, transport.Transport](),
	}
}

// Start spawns exactly cfg.Workers workers popping from q. Workers exit when
// q is closed or ctx is cancelled.
func (p *Pool) Start(ctx context.Context, q *queue.Queue[Conn]) error {
	if p.cfg.Workers < 1 {
		return errors.NewInvalidArgumentError(fmt.Sprintf("worker count must be >= 1, got %d", p.cfg.Workers))
	}
	if p.handler == nil {
		return errors.NewInvalidArgumentError("nil handler")
	}

	factories := make([]transport.Factory, p.cfg.Workers)
	for i := range factories {
		factories[i] = p.newFactory(i)
	}

	p.wg.Add(p.cfg.Workers)
	for i, factory := range factories {
		go p.run(ctx, i, q, factory)
	}

	p.log.Info().
		Int("workers", p.cfg.Workers).
		Str("transport", string(p.cfg.Transport)).
		Msg("worker pool started")
	return nil
}

// newFactory falls back to the net backend when a ring cannot be created
func (p *Pool) newFactory(id int) transport.Factory {
	factory, err := transport.NewFactory(p.cfg.Transport, p.cfg.IdleTimeout)
	if err != nil {
		p.log.Warn().Err(err).Int("worker", id).Msg("transport unavailable, using net")
		return transport.NewNetFactory(p.cfg.IdleTimeout)
	}
	return factory
}

// Wait blocks until every worker has exited
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Abort unblocks every in-flight connection and returns how many there were
func (p *Pool) Abort() int {
	n := 0
	p.active.Range(func(id xid.ID, t transport.Transport) bool {
		t.Abort()
		n++
		return true
	})
	return n
}

// Active returns the number of connections being served
func (p *Pool) Active() int {
	return p.active.Size()
}

// Stats returns the current counters
func (p *Pool) Stats() Stats {
	return Stats{
		Served:        p.served.Load(),
		FramingErrors: p.framingErrors.Load(),
		ConnErrors:    p.connErrors.Load(),
		HandlerErrors: p.handlerErrors.Load(),
		Panics:        p.panics.Load(),
	}
}

func (p *Pool) run(ctx context.Context, id int, q *queue.Queue[Conn], factory transport.Factory) {
	defer p.wg.Done()
	defer factory.Close()

	log := p.log.With().Int("worker", id).Logger()
	for {
		c, err := q.Pop(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("worker exiting")
			return
		}
		p.serve(log, factory, c)
	}
}
