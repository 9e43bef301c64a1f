// Package grpcsvc поднимает gRPC сервер со стандартным health-сервисом,
// статус которого отражает готовность корзины.
package grpcsvc

import (
	"context"
	"errors"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// CartServiceName используется как имя сервиса в grpc.health.v1.
const CartServiceName = "cartsync.v1.Cart"

// ReadinessSource отдаёт барьер гидрации.
type ReadinessSource interface {
	WaitReady(ctx context.Context) error
}

// NewServer собирает gRPC сервер с метриками, трассировкой, reflection и
// health-сервисом. Изначально оба имени ("" и CartServiceName) в NOT_SERVING.
func NewServer(registerer prometheus.Registerer, logger *log.Entry) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = log.WithField("component", "grpc")
	}

	grpcMetrics := registerServerMetrics(registerer, logger)
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(CartServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)

	return server, healthServer
}

func registerServerMetrics(registerer prometheus.Registerer, logger *log.Entry) *promgrpc.ServerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	grpcMetrics := promgrpc.NewServerMetrics()
	if err := registerer.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				return existing
			}
		}
		logger.WithError(err).Warn("failed to register grpc metrics")
	}
	return grpcMetrics
}

// HealthReporter переводит health-статус в SERVING после гидрации корзины.
type HealthReporter struct {
	server *health.Server
	logger *log.Entry
}

// NewHealthReporter создаёт репортер поверх health.Server.
func NewHealthReporter(server *health.Server, logger *log.Entry) *HealthReporter {
	if logger == nil {
		logger = log.WithField("component", "grpc-health")
	}
	return &HealthReporter{server: server, logger: logger}
}

// Watch блокируется до завершения гидрации src и выставляет статус.
// Провал гидрации оставляет NOT_SERVING. При отмене ctx статус
// сбрасывается в NOT_SERVING.
func (r *HealthReporter) Watch(ctx context.Context, src ReadinessSource) error {
	err := src.WaitReady(ctx)
	switch {
	case err == nil:
		r.set(healthpb.HealthCheckResponse_SERVING)
		r.logger.Info("cart hydrated, grpc health is SERVING")
	case ctx.Err() != nil:
		r.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return nil
	default:
		r.set(healthpb.HealthCheckResponse_NOT_SERVING)
		r.logger.WithError(err).Warn("cart hydration failed, grpc health stays NOT_SERVING")
		return nil
	}

	<-ctx.Done()
	r.Shutdown()
	return nil
}

// Shutdown переводит все сервисы в NOT_SERVING и отклоняет дальнейшие изменения.
func (r *HealthReporter) Shutdown() {
	r.server.Shutdown()
}

func (r *HealthReporter) set(status healthpb.HealthCheckResponse_ServingStatus) {
	r.server.SetServingStatus("", status)
	r.server.SetServingStatus(CartServiceName, status)
}
