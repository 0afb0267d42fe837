// Command crdgw serves the CRD search API as a JSON gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/crd"
	"github.com/kailas-cloud/crd/internal/config"
	logpkg "github.com/kailas-cloud/crd/internal/logger"
	"github.com/kailas-cloud/crd/internal/metrics"
	chiTransport "github.com/kailas-cloud/crd/internal/transport/chi"
	"github.com/kailas-cloud/crd/internal/version"
	"github.com/kailas-cloud/crd/record"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "crdgw:", err)
		os.Exit(1)
	}
}

func run() error {
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		return err
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("crd gateway starting",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("upstream", cfg.Upstream.Endpoint),
		zap.Int("max_pages", cfg.Search.MaxPages),
	)

	metrics.RegisterGatewayMetrics()
	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      newRouter(cfg, client, logger),
		ReadTimeout:  cfg.HTTP.ReadTimeout(),
		WriteTimeout: cfg.HTTP.WriteTimeout(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, srv, cfg, logger)
}

// serve runs srv until ctx is done, then drains connections.
func serve(ctx context.Context, srv *http.Server, cfg config.Config, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("budget", cfg.HTTP.ShutdownTimeout()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("stopped")
	return nil
}

// newRouter wires middleware and gateway routes around searcher.
func newRouter(cfg config.Config, searcher chiTransport.Searcher, logger *zap.Logger) http.Handler {
	server := chiTransport.NewServer(searcher, chiTransport.Options{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxPages:     cfg.Search.MaxPages,
	}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(accessLog(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)
	return r
}

func newClient(cfg config.Config, logger *zap.Logger) (*crd.Client, error) {
	policy := record.Strict
	if cfg.Search.LenientItems {
		policy = record.Lenient
	}
	c, err := crd.New(
		crd.WithEndpoint(cfg.Upstream.Endpoint),
		crd.WithUserAgent(cfg.Upstream.UserAgent),
		crd.WithTimeout(cfg.Upstream.Timeout()),
		crd.WithConcurrency(cfg.Upstream.Concurrency),
		crd.WithRecordPolicy(policy),
		crd.WithLogger(logger.Named("sdk")),
		crd.WithPrometheus(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return c, nil
}
