// Command httpd runs the HTTP/1.1 server, or probes a running one.
//
//	httpd [flags]              serve
//	httpd probe [flags] [path] issue one GET and print the response
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/vladiibine/httpd/client"
	"github.com/vladiibine/httpd/protocol"
	"github.com/vladiibine/httpd/router"
	"github.com/vladiibine/httpd/server"
	"github.com/vladiibine/httpd/transport"
)

const envPrefix = "HTTPD_"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "probe" {
		os.Exit(probe(os.Args[2:]))
	}
	os.Exit(serve(os.Args[1:]))
}

func serve(args []string) int {
	cfg := server.DefaultConfig()
	fs := flag.NewFlagSet("httpd", flag.ExitOnError)

	var (
		policy    = string(cfg.QueuePolicy)
		kind      = string(cfg.Transport)
		logLevel  = "info"
		logFormat = "console"
	)
	fs.StringVar(&cfg.Network, "network", cfg.Network, "listen network: tcp, tcp4, tcp6 or unix")
	fs.StringVar(&cfg.Address, "addr", cfg.Address, "listen address")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "number of worker goroutines")
	fs.IntVar(&cfg.QueueCapacity, "queue", cfg.QueueCapacity, "pending connection queue capacity")
	fs.StringVar(&policy, "queue-policy", policy, "full queue policy: block or reject")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "per-operation socket idle timeout")
	fs.DurationVar(&cfg.GracePeriod, "grace", cfg.GracePeriod, "shutdown grace period for in-flight connections")
	fs.IntVar(&cfg.MaxHeaderBytes, "max-header-bytes", cfg.MaxHeaderBytes, "request line and header size limit")
	fs.Int64Var(&cfg.MaxBodyBytes, "max-body-bytes", cfg.MaxBodyBytes, "request body size limit")
	fs.IntVar(&cfg.MaxConns, "max-conns", cfg.MaxConns, "open connection cap, 0 for none")
	fs.BoolVar(&cfg.ReusePort, "reuse-port", cfg.ReusePort, "set SO_REUSEPORT on the listener")
	fs.StringVar(&kind, "transport", kind, "socket backend: net, iouring or uring")
	fs.StringVar(&cfg.ServerName, "server-name", cfg.ServerName, "value of the Server response header")
	fs.StringVar(&logLevel, "log-level", logLevel, "log level")
	fs.StringVar(&logFormat, "log-format", logFormat, "log output: console or json")

	if err := fromEnv(fs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	_ = fs.Parse(args)

	logger, err := newLogger(logLevel, logFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg.QueuePolicy = server.QueuePolicy(policy)
	cfg.Transport = transport.Kind(kind)

	srv, err := server.New(cfg, routes(), logger)
	if err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("server failed to start")
		return 1
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	srv.Stop()

	st := srv.Stats()
	logger.Info().
		Uint64("accepted", st.Accepted).
		Uint64("rejected", st.Rejected).
		Uint64("served", st.Served).
		Uint64("framing_errors", st.FramingErrors).
		Uint64("conn_errors", st.ConnErrors).
		Uint64("panics", st.Panics).
		Msg("stopped")
	return 0
}

func routes() *router.Router {
	r := router.New()
	r.HandleFunc("GET", "/", func(req *protocol.Request) (*protocol.Response, error) {
		return protocol.Text(http.StatusOK, "hello\n"), nil
	})
	for _, m := range []string{"GET", "POST", "PUT", "DELETE"} {
		r.HandleFunc(m, "/echo", router.Echo)
	}
	return r
}

// fromEnv applies HTTPD_<FLAG> variables as flag values. Command-line flags
// parsed afterwards still win.
func fromEnv(fs *flag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *flag.Flag) {
		name := envPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		v, ok := os.LookupEnv(name)
		if !ok || err != nil {
			return
		}
		if serr := fs.Set(f.Name, v); serr != nil {
			err = fmt.Errorf("%s: %w", name, serr)
		}
	})
	return err
}

func newLogger(level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, err
	}

	var logger zerolog.Logger
	switch format {
	case "json":
		logger = zerolog.New(os.Stderr)
	case "console":
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	default:
		return zerolog.Logger{}, fmt.Errorf("unknown log format %q", format)
	}
	return logger.Level(lvl).With().Timestamp().Logger(), nil
}

func probe(args []string) int {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	network := fs.String("network", "tcp", "network of the server")
	addr := fs.String("addr", "127.0.0.1:7878", "address of the server")
	timeout := fs.Duration("timeout", 5*time.Second, "request timeout")
	_ = fs.Parse(args)

	path := "/"
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := client.NewHttpClient(*network, *addr, *timeout).Get(ctx, path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "probe:", err)
		return 1
	}

	fmt.Printf("%d %s\n", resp.StatusCode, resp.StatusMessage)
	for _, h := range resp.Headers {
		fmt.Printf("%s: %s\n", h.Key, h.Value)
	}
	fmt.Println()
	os.Stdout.Write(resp.Body)
	return 0
}
