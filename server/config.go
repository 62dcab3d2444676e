package server

import (
	"fmt"
	"time"

	"github.com/vladiibine/httpd/errors"
	"github.com/vladiibine/httpd/protocol"
	"github.com/vladiibine/httpd/transport"
)

// QueuePolicy decides what the acceptor does when the queue is full
type QueuePolicy string

const (
	// PolicyBlock suspends the acceptor until a worker frees a slot
	PolicyBlock QueuePolicy = "block"
	// PolicyReject answers 503 and closes the connection
	PolicyReject QueuePolicy = "reject"
)

const (
	defaultAddress     = "0.0.0.0:7878"
	defaultWorkers     = 10
	defaultQueueSize   = 128
	defaultIdleTimeout = 30 * time.Second
	defaultGracePeriod = 3 * time.Second
	defaultServerName  = "httpd"
)

// Config is the startup configuration of a Server
type Config struct {
	Network        string
	Address        string
	Workers        int
	QueueCapacity  int
	QueuePolicy    QueuePolicy
	IdleTimeout    time.Duration
	GracePeriod    time.Duration
	MaxHeaderBytes int
	MaxBodyBytes   int64
	// MaxConns caps open connections at the listener; 0 disables the cap
	MaxConns   int
	ReusePort  bool
	Transport  transport.Kind
	ServerName string
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() Config {
	return Config{
		Network:        "tcp",
		Address:        defaultAddress,
		Workers:        defaultWorkers,
		QueueCapacity:  defaultQueueSize,
		QueuePolicy:    PolicyBlock,
		IdleTimeout:    defaultIdleTimeout,
		GracePeriod:    defaultGracePeriod,
		MaxHeaderBytes: protocol.DefaultMaxHeaderBytes,
		MaxBodyBytes:   protocol.DefaultMaxBodyBytes,
		Transport:      transport.KindNet,
		ServerName:     defaultServerName,
	}
}

// Validate checks c and fills zero durations and limits with defaults
func (c *Config) Validate() error {
	if c.Network == "" {
		c.Network = "tcp"
	}
	switch c.Network {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		return invalid("unsupported network %q", c.Network)
	}
	if c.Address == "" {
		c.Address = defaultAddress
	}
	if c.Workers < 1 {
		return invalid("workers must be >= 1, got %d", c.Workers)
	}
	if c.QueueCapacity < 1 {
		return invalid("queue capacity must be >= 1, got %d", c.QueueCapacity)
	}
	if c.QueuePolicy == "" {
		c.QueuePolicy = PolicyBlock
	}
	if c.QueuePolicy != PolicyBlock && c.QueuePolicy != PolicyReject {
		return invalid("unknown queue policy %q", c.QueuePolicy)
	}
	if c.IdleTimeout < 0 || c.GracePeriod < 0 {
		return invalid("timeouts must not be negative")
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = defaultGracePeriod
	}
	if c.MaxConns < 0 {
		return invalid("max conns must not be negative, got %d", c.MaxConns)
	}
	if c.Transport == "" {
		c.Transport = transport.KindNet
	}
	if _, err := transport.ParseKind(string(c.Transport)); err != nil {
		return err
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.NewInvalidArgumentError(fmt.Sprintf(format, args...))
}
