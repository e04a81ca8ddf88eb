// udprelayd is the single-port UDP rendezvous relay daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/soraxas/goudprelay/internal/config"
	"github.com/soraxas/goudprelay/internal/daemonize"
	relaymetrics "github.com/soraxas/goudprelay/internal/metrics"
	"github.com/soraxas/goudprelay/internal/netio"
	"github.com/soraxas/goudprelay/internal/relay"
	appversion "github.com/soraxas/goudprelay/internal/version"
)

// exitBindInUse is the dedicated exit code the orchestration shell
// recognizes as "relay already started" (spec.md §6).
const exitBindInUse = 49

// maxDatagramSize is large enough for any UDP payload a relay peer will
// realistically send; oversized reads are simply truncated by the kernel.
const maxDatagramSize = 65535

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if cfg.Daemon.Detach {
		isParent, err := daemonize.Detach(cfg.Daemon.PIDFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "daemonize: %v\n", err)
			return 1
		}
		if isParent {
			return 0
		}
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLogger(cfg.Log, logLevel)

	logger.Info("udprelayd starting",
		slog.String("version", appversion.Version),
		slog.Uint64("port", uint64(cfg.Listen.Port)),
		slog.String("bind_ip", cfg.Listen.BindIP),
	)

	sock, err := netio.NewSocket(cfg.Listen.BindIP, cfg.Listen.Port)
	if err != nil {
		logger.Error("failed to bind UDP socket", slog.String("error", err.Error()))
		return exitBindInUse
	}
	defer sock.Close()

	reg := prometheus.NewRegistry()
	collector := relaymetrics.NewCollector(reg)

	table := relay.NewTable(logger,
		relay.WithMetrics(collector),
		relay.WithMinSecretLen(cfg.Listen.MinSecretLen),
	)
	dispatcher := relay.NewDispatcher(table, relay.Config{PSK: []byte(cfg.Auth.PSK)}, sock, collector, logger)
	supervisor := relay.NewSupervisor(table, relay.Timeouts{
		SocketWait:           cfg.Timeout.SocketWait,
		Pairing:              cfg.Timeout.Pairing,
		ConnectionInactivity: cfg.Timeout.ConnectionInactivity,
		NoConnections:        cfg.Timeout.NoConnections,
	}, time.Now(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serveDispatchLoop(gCtx, sock, dispatcher, supervisor, cfg.Timeout.SocketWait, logger)
	})

	g.Go(func() error {
		daemonize.RunWatchdog(gCtx, logger)
		return nil
	})

	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		metricsSrv = newMetricsServer(cfg.Metrics, reg)
		g.Go(func() error {
			logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Addr))
			return listenAndServe(gCtx, metricsSrv)
		})
	}

	daemonize.NotifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		daemonize.NotifyStopping(logger)
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), 5*time.Second)
			defer cancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown metrics server: %w", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errRelayExited) {
		logger.Error("udprelayd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("udprelayd stopped")
	return 0
}

// errRelayExited marks a clean self-termination (spec.md §4.4,
// §8 scenario 6) as distinct from a fatal error, without surfacing it as
// a process-exit failure.
var errRelayExited = errors.New("relay self-terminated: no connections")

// serveDispatchLoop owns the single receive loop driving both the
// dispatcher and the timeout supervisor (spec.md §5). It returns
// errRelayExited once the supervisor decides the daemon should exit.
func serveDispatchLoop(
	ctx context.Context,
	sock *netio.Socket,
	dispatcher *relay.Dispatcher,
	supervisor *relay.Supervisor,
	socketWait time.Duration,
	logger *slog.Logger,
) error {
	buf := make([]byte, maxDatagramSize)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, src, err := sock.ReadFrom(buf, time.Now().Add(socketWait))
		now := time.Now()

		if err == nil {
			payload := make([]byte, n)
			copy(payload, buf[:n])
			dispatcher.Handle(src, payload, now)
		} else if !isTimeout(err) {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("socket read error", slog.String("error", err.Error()))
		}

		if supervisor.Tick(now) {
			logger.Info("no pairings for the configured timeout, exiting")
			return errRelayExited
		}
	}
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func listenAndServe(ctx context.Context, srv *http.Server) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", srv.Addr, err)
	}
	return nil
}

func newLogger(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// parseFlags builds a Config from the positional port argument and
// recognized options (spec.md §6), layered on top of config.Load's
// file/env defaults.
func parseFlags(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("udprelayd", flag.ContinueOnError)

	configPath := fs.String("config", "", "path to an optional YAML configuration file")
	bindIP := fs.String("bind-ip", "", "local address to bind (default: wildcard IPv4)")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	daemonizeFlag := fs.Bool("daemonize", false, "detach from the controlling terminal")
	fs.BoolVar(daemonizeFlag, "d", false, "shorthand for --daemonize")
	preSharedKey := fs.String("preshared-key", "", "pre-shared key pairing requests must present")
	pidFile := fs.String("pid-file", "", "where to write the detached process's PID (only with --daemonize)")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for the Prometheus metrics endpoint")
	minSecretLen := fs.Int("min-secret-len", 0, "reject pairing requests with a session secret shorter than this (0 disables)")
	socketWait := fs.Duration("timeout-socket-wait", 0, "bound on each receive call between supervisor ticks")
	pairing := fs.Duration("timeout-pairing", 0, "HALF_OPEN entry age limit")
	inactivity := fs.Duration("timeout-connection-inactivities", 0, "ESTABLISHED entry idle limit")
	noConnections := fs.Duration("timeout-no-connections", 0, "idle-daemon exit timeout")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fs.NArg() != 1 {
		return nil, fmt.Errorf("usage: udprelayd [options] <port>")
	}
	port, err := parsePort(fs.Arg(0))
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	cfg.Listen.Port = port
	if *bindIP != "" {
		cfg.Listen.BindIP = *bindIP
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *daemonizeFlag {
		cfg.Daemon.Detach = true
	}
	if *pidFile != "" {
		cfg.Daemon.PIDFile = *pidFile
	}
	if *preSharedKey != "" {
		cfg.Auth.PSK = *preSharedKey
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if *minSecretLen > 0 {
		cfg.Listen.MinSecretLen = *minSecretLen
	}
	if *socketWait > 0 {
		cfg.Timeout.SocketWait = *socketWait
	}
	if *pairing > 0 {
		cfg.Timeout.Pairing = *pairing
	}
	if *inactivity > 0 {
		cfg.Timeout.ConnectionInactivity = *inactivity
	}
	if *noConnections > 0 {
		cfg.Timeout.NoConnections = *noConnections
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func parsePort(s string) (uint16, error) {
	var port uint32
	if _, err := fmt.Sscanf(s, "%d", &port); err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	if port == 0 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return uint16(port), nil
}
