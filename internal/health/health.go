// Package health publishes registry readiness over the standard gRPC health
// checking protocol.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ekisa-team/beam/model"
)

// ModelServicePrefix prefixes the per-model health service names.
const ModelServicePrefix = "beam.model/"

// Service tracks overall and per-model serving status.
type Service struct {
	health  *health.Server
	server  *grpc.Server
	logger  *slog.Logger
	created sync.Map
}

var _ model.Observer = (*Service)(nil)

// New creates a health service. The overall status starts as NOT_SERVING.
func New(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Service{
		health: hs,
		server: gs,
		logger: logger,
	}
}

// ServiceName returns the health service name of a model.
func ServiceName(key model.Key) string {
	return ModelServicePrefix + string(key)
}

// Ready marks the application as serving.
func (s *Service) Ready() {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}

// Check returns the status of service ("" for the application).
func (s *Service) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_SERVICE_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// ModelCreated implements model.Observer.
func (s *Service) ModelCreated(key model.Key, _ model.Origin) {
	s.created.Store(key, struct{}{})
	s.health.SetServingStatus(ServiceName(key), healthpb.HealthCheckResponse_SERVING)
}

// ModelFailed implements model.Observer. A model that never came up is
// reported NOT_SERVING; a cached one keeps its status.
func (s *Service) ModelFailed(key model.Key, _ error) {
	if _, ok := s.created.Load(key); ok {
		return
	}
	s.health.SetServingStatus(ServiceName(key), healthpb.HealthCheckResponse_NOT_SERVING)
}

// HookFinished implements model.Observer.
func (s *Service) HookFinished(model.Key, model.Hook, time.Duration, error) {}

// ListenAndServe serves the health protocol on addr until ctx is done.
func (s *Service) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	return s.Serve(ctx, lis)
}

// Serve serves the health protocol on lis until ctx is done.
func (s *Service) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Health server listening", "address", lis.Addr().String())
		errCh <- s.server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.server.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// Shutdown marks every service NOT_SERVING.
func (s *Service) Shutdown() {
	s.health.Shutdown()
}
