package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/xraph/grantrelay/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook receiver, retry sweeper and metrics endpoint",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(parent context.Context, cfg Config) error {
	logger := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	d, err := buildDeps(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer d.Close()

	handler, err := api.NewHandler(d.relay, api.Config{
		WebhookSecret: cfg.WebhookSecret,
		AdminToken:    cfg.AdminToken,
		Metrics:       d.metrics,
	}, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.listenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.AdminToken == "" {
		logger.Info("operator routes disabled, GRANTRELAY_ADMIN_TOKEN not set")
	}

	return run(ctx, logger, cfg.ShutdownTimeout, d.relay, metricsSrv, srv)
}

// lifecycle is what run needs from the relay.
type lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// run binds every server, then starts the relay. The listeners come up
// before replay so the sender sees 503 on /readyz rather than connection
// refused; intake is accepted throughout. However the run ends, servers and
// relay are shut down within shutdownTimeout. A failed start is returned.
func run(ctx context.Context, logger *slog.Logger, shutdownTimeout time.Duration, r lifecycle, servers ...*http.Server) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info("server starting", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv)
	}

	startErr := r.Start(ctx)
	if startErr == nil {
		select {
		case <-ctx.Done():
		case err := <-errCh:
			logger.Error("server failed", "error", err)
		}
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	for _, srv := range servers {
		_ = srv.Shutdown(shutdownCtx)
	}
	if err := r.Stop(shutdownCtx); err != nil {
		logger.Warn("sweeper did not stop in time", "error", err)
	}

	logger.Info("stopped")
	return startErr
}
