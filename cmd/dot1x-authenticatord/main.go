// dot1x-authenticatord -- IEEE 802.1X authenticator with RADIUS EAP
// pass-through (RFC 3748, RFC 3579, RFC 4137 Section 7).
package main

import (
	"context"
	"encoding/json"
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

	"connectrpc.com/grpchealth"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/gobfd/internal/config"
	dot1xmetrics "github.com/dantte-lp/gobfd/internal/metrics"
	"github.com/dantte-lp/gobfd/internal/dot1x"
	"github.com/dantte-lp/gobfd/internal/server"
	appversion "github.com/dantte-lp/gobfd/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(appversion.Full("dot1x-authenticatord"))
		return 0
	}

	if *configPath == "" {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("missing required -config flag")
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()))
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("dot1x-authenticatord starting",
		slog.String("version", appversion.Version),
		slog.String("commit", appversion.GitCommit),
		slog.String("dp_interface", cfg.Dot1x.DPInterface),
		slog.String("radius_ip", cfg.Dot1x.RadiusIP),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := dot1xmetrics.NewCollector(reg)

	disp, err := buildDispatcher(cfg, collector, logger)
	if err != nil {
		logger.Error("failed to build dispatcher", slog.String("error", err.Error()))
		return 1
	}

	if err := runServers(cfg, disp, reg, collector, logger); err != nil {
		logger.Error("dot1x-authenticatord exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("dot1x-authenticatord stopped")
	return 0
}

// buildDispatcher wires the wire-level links, hooks, and metrics into a
// dot1x.Dispatcher ready to Run.
func buildDispatcher(cfg *config.Config, collector *dot1xmetrics.Collector, logger *slog.Logger) (*dot1x.Dispatcher, error) {
	chewieID, err := dot1x.ParseMAC(cfg.Dot1x.ChewieID)
	if err != nil {
		return nil, fmt.Errorf("parse chewie_id: %w", err)
	}

	eapolLink, err := dot1x.NewRawEapolLink(cfg.Dot1x.DPInterface)
	if err != nil {
		return nil, fmt.Errorf("open eapol link on %s: %w", cfg.Dot1x.DPInterface, err)
	}

	radiusLink, err := dot1x.NewUDPRadiusLink("0.0.0.0:0", cfg.Dot1x.RadiusIP,
		cfg.Dot1x.RadiusAuthPort, cfg.Dot1x.RadiusAcctPort)
	if err != nil {
		_ = eapolLink.Close()
		return nil, fmt.Errorf("open radius link: %w", err)
	}

	hooks := dot1x.Hooks{
		Success: func(supplicant dot1x.MacAddress, port dot1x.PortID, extras dot1x.AuthExtras) {
			collector.RecordOutcome(port.String(), "success")
			logger.Info("authentication succeeded", slog.String("supplicant", supplicant.String()), slog.String("port", port.String()))
		},
		Failure: func(supplicant dot1x.MacAddress, port dot1x.PortID) {
			collector.RecordOutcome(port.String(), "failure")
			logger.Info("authentication failed", slog.String("supplicant", supplicant.String()), slog.String("port", port.String()))
		},
		Logoff: func(supplicant dot1x.MacAddress, port dot1x.PortID) {
			collector.RecordOutcome(port.String(), "logoff")
			logger.Info("supplicant logged off", slog.String("supplicant", supplicant.String()), slog.String("port", port.String()))
		},
		Transition: func(port dot1x.PortID, from, to dot1x.State) {
			collector.RecordStateTransition(port.String(), from.String(), to.String())
		},
	}

	disp := dot1x.NewDispatcher(dot1x.Config{
		ChewieID:   chewieID,
		Secret:     cfg.Dot1x.RadiusSecret,
		EapolLink:  eapolLink,
		RadiusLink: radiusLink,
		Policy:     dot1x.DefaultPolicy,
		Hooks:      hooks,
		Log:        logger,
	})

	return disp, nil
}

// runServers runs the Dispatcher, the metrics HTTP server, and the
// read-only session-introspection endpoint under one errgroup with
// signal-aware shutdown.
func runServers(cfg *config.Config, disp *dot1x.Dispatcher, reg *prometheus.Registry, collector *dot1xmetrics.Collector, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	metricsSrv := newMetricsServer(cfg.Metrics, reg, logger)
	controlSrv := newControlServer(cfg.Control, disp, logger)

	lc := net.ListenConfig{}
	g.Go(func() error {
		logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Addr))
		return listenAndServe(gCtx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
	g.Go(func() error {
		logger.Info("control server listening", slog.String("addr", cfg.Control.Addr))
		return listenAndServe(gCtx, &lc, controlSrv, cfg.Control.Addr)
	})
	g.Go(func() error {
		return disp.Run(gCtx)
	})
	g.Go(func() error {
		return runWatchdog(gCtx, logger)
	})
	g.Go(func() error {
		return runReaper(gCtx, disp.Table(), collector)
	})

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, metricsSrv, controlSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// runReaper periodically evicts terminal-state sessions so a long-running
// authenticator never accumulates finished conversations, and resyncs the
// live-sessions gauge to the table's actual contents.
func runReaper(ctx context.Context, table *dot1x.SupplicantTable, collector *dot1xmetrics.Collector) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			table.ReapTerminal()

			counts := make(map[string]int)
			for _, s := range table.Sessions() {
				counts[s.Port.String()]++
			}
			collector.SyncSessions(counts)
		}
	}
}

// -------------------------------------------------------------------------
// Systemd Integration -- sd_notify + watchdog
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		return nil
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	handler := server.Chain(mux, server.LoggingMiddleware(logger), server.RecoveryMiddleware(logger))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// sessionView is the JSON shape returned by the read-only introspection
// endpoint. This core deliberately does not generate a protobuf/Connect
// service for this surface: the introspection contract is read-only and
// small enough that a plain JSON handler avoids depending on generated
// code this build never runs protoc/buf to produce.
type sessionView struct {
	Supplicant string `json:"supplicant"`
	Port       string `json:"port"`
	State      string `json:"state"`
}

// newControlServer serves GET /sessions (a JSON snapshot of live sessions)
// plus a gRPC health check (grpchealth needs no generated service code).
// Both are wrapped in logging/recovery middleware, in plain net/http since
// this surface intentionally has no generated service stub behind it.
func newControlServer(cfg config.ControlConfig, disp *dot1x.Dispatcher, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		sessions := disp.Table().Sessions()
		views := make([]sessionView, 0, len(sessions))
		for _, s := range sessions {
			views = append(views, sessionView{
				Supplicant: s.Supplicant.String(),
				Port:       s.Port.String(),
				State:      s.State().String(),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(views)
	})

	checker := grpchealth.NewStaticChecker(grpchealth.HealthV1ServiceName)
	mux.Handle(grpchealth.NewHandler(checker))

	handler := server.Chain(mux, server.LoggingMiddleware(logger), server.RecoveryMiddleware(logger))

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func gracefulShutdown(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
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
