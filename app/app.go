// Package app runs a model registry inside a host process: it binds the
// registry to a manifest, serves metrics and health, reloads the manifest on
// change and drains background work on shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ekisa-team/beam/host"
	"github.com/ekisa-team/beam/internal/config"
	"github.com/ekisa-team/beam/internal/health"
	"github.com/ekisa-team/beam/internal/metrics"
	"github.com/ekisa-team/beam/model"
)

// App wires one registry to its manifest and endpoints.
type App struct {
	manifest *config.Manifest
	host     *host.Host
	registry *model.Registry
	metrics  *metrics.Metrics
	health   *health.Service
	gatherer *prometheus.Registry
	logger   *slog.Logger
	ready    chan struct{}
}

// New creates an App for manifest resolving models through catalog.
func New(manifest *config.Manifest, catalog *model.Catalog, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := metrics.New(promReg)
	hs := health.New(logger)

	registry := model.NewRegistry(catalog,
		model.WithLogger(logger.With("component", "registry")),
		model.WithObserver(m),
		model.WithObserver(hs),
	)
	m.WatchBackground(registry.Pending)

	h := host.New(
		host.WithName(manifest.Application.Name),
		host.WithVersion(manifest.Application.Version),
		host.WithEnvironment(manifest.Application.Environment),
		host.WithLogger(logger),
		host.WithMetadata(manifest),
	)

	return &App{
		manifest: manifest,
		host:     h,
		registry: registry,
		metrics:  m,
		health:   hs,
		gatherer: promReg,
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// Registry returns the application's registry.
func (a *App) Registry() *model.Registry {
	return a.registry
}

// Ready is closed once the registry has been initialized.
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// MetricsHandler serves the Prometheus exposition of this App.
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})
}

// Reload eagerly creates models newly listed in manifest. Models dropped from
// the list stay cached.
func (a *App) Reload(ctx context.Context, manifest *config.Manifest) {
	created, err := a.registry.Preload(ctx, manifest.Models())
	if err != nil {
		a.logger.Error("Failed to apply manifest reload", "error", err)
		return
	}

	a.logger.Info("Manifest applied", "declared", len(manifest.Models()), "created", created, "cached", a.registry.Len())
}

// Run initializes the registry and blocks until ctx is done or an endpoint
// fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	if err := a.registry.Init(ctx, a.host); err != nil {
		err = fmt.Errorf("init model registry: %w", err)
		if errors.Is(err, model.ErrAlreadyInitialized) {
			return err
		}

		// Init may have started the worker before failing.
		drainCtx, cancel := context.WithTimeout(context.Background(), a.manifest.Background.DrainTimeout)
		defer cancel()

		return errors.Join(err, a.registry.Shutdown(drainCtx))
	}
	a.health.Ready()
	close(a.ready)

	a.logger.Info("Application started",
		"name", a.manifest.Application.Name,
		"version", a.manifest.Application.Version,
		"models", a.registry.Len())

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	servers := 0

	if addr := a.manifest.Metrics.Address; addr != "" {
		servers++
		go func() {
			errCh <- a.serveMetrics(serveCtx, addr)
		}()
	}

	if addr := a.manifest.Health.Address; addr != "" {
		servers++
		go func() {
			errCh <- a.health.ListenAndServe(serveCtx, addr)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutdown signal received")
	case err := <-errCh:
		servers--
		if err != nil {
			a.logger.Error("Endpoint failed, shutting down", "error", err)
			runErr = err
		}
	}

	cancel()
	return errors.Join(runErr, a.shutdown(errCh, servers))
}

func (a *App) shutdown(errCh <-chan error, servers int) error {
	a.health.Shutdown()

	drainCtx, cancel := context.WithTimeout(context.Background(), a.manifest.Background.DrainTimeout)
	defer cancel()

	var errs []error
	if err := a.registry.Shutdown(drainCtx); err != nil {
		a.logger.Error("Background work did not drain", "error", err)
		errs = append(errs, err)
	}

	for range servers {
		if err := <-errCh; err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		a.logger.Info("Shutdown completed successfully")
	}

	return errors.Join(errs...)
}

func (a *App) serveMetrics(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.MetricsHandler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Metrics server listening", "address", lis.Addr().String())
		errCh <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
