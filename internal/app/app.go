// Package app собирает сервис корзины: хранилище, сессию корзины, HTTP API,
// gRPC health, метрики и ленту снимков.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/vladislavdragonenkov/cartsync/internal/cart"
	healthcheck "github.com/vladislavdragonenkov/cartsync/internal/health"
	"github.com/vladislavdragonenkov/cartsync/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/cartsync/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/cartsync/internal/service/grpc"
	httpsvc "github.com/vladislavdragonenkov/cartsync/internal/service/http"
	"github.com/vladislavdragonenkov/cartsync/internal/telemetry"
	"github.com/vladislavdragonenkov/cartsync/internal/version"
)

const serviceName = "cart-service"

// Options позволяет подменить окружение Run в тестах.
type Options struct {
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// Ready получает фактические адреса после открытия листенеров.
	Ready func(addrs Addrs)
}

// Addrs содержит адреса, на которых слушает сервис.
type Addrs struct {
	HTTP    string
	GRPC    string
	Metrics string
}

// Run запускает сервис и блокируется до отмены ctx или ошибки одного из серверов.
// При отмене ctx возвращает ctx.Err().
func Run(ctx context.Context, cfg Config) error {
	return RunWithOptions(ctx, cfg, Options{})
}

// RunWithOptions работает как Run, но с явными зависимостями окружения.
func RunWithOptions(ctx context.Context, cfg Config, opts Options) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		logger.WithError(err).Warn("tracing disabled")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.WithError(err).Warn("tracing shutdown failed")
		}
	}()

	backend, err := OpenBackend(ctx, cfg, logger.WithField("layer", "storage"))
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	producer := initKafkaProducer(cfg.KafkaBrokers, logger.WithField("layer", "kafka"))
	defer closeKafka(producer, logger)

	cartOpts := append(cfg.CartOptions(),
		cart.WithLogger(logger.WithField("component", "cart-store")),
		cart.WithMetrics(metrics.NewCartMetricsWithRegisterer(opts.Registerer)),
		cart.WithWriteFailureHandler(func(revision uint64, err error) {
			logger.WithError(err).WithField("revision", revision).Error("cart snapshot was not persisted")
		}),
	)
	if producer != nil {
		cartOpts = append(cartOpts, cart.WithSnapshotPublisher(kafka.NewSnapshotPublisher(producer, cfg.KafkaTopic)))
	}

	store := cart.New(backend, cartOpts...)
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("init cart session: %w", err)
	}
	logger.WithField("session_id", store.SessionID()).Info("cart session started")

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", healthcheck.NewFuncChecker("storage", backend.Ping))
	healthHandler.RegisterChecker("hydration", healthcheck.NewFuncChecker("hydration", hydrationCheck(store)))

	apiMux := http.NewServeMux()
	httpsvc.NewHandler(store,
		httpsvc.WithLogger(logger.WithField("layer", "http")),
		httpsvc.WithMetrics(metrics.NewHTTPMetricsWithRegisterer(opts.Registerer)),
		httpsvc.WithRequestTimeout(cfg.RequestTimeout),
	).Register(apiMux)

	grpcServer, grpcHealth := grpcsvc.NewServer(opts.Registerer, logger.WithField("layer", "grpc"))
	reporter := grpcsvc.NewHealthReporter(grpcHealth, logger.WithField("layer", "grpc-health"))

	apiLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = apiLis.Close()
		return fmt.Errorf("listen grpc: %w", err)
	}
	metricsLis, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		_ = apiLis.Close()
		_ = grpcLis.Close()
		return fmt.Errorf("listen metrics: %w", err)
	}

	apiSrv := &http.Server{Handler: apiMux, ReadHeaderTimeout: 5 * time.Second}
	metricsSrv := &http.Server{Handler: opsMux(opts.Gatherer, healthHandler), ReadHeaderTimeout: 5 * time.Second}

	if opts.Ready != nil {
		opts.Ready(Addrs{
			HTTP:    apiLis.Addr().String(),
			GRPC:    grpcLis.Addr().String(),
			Metrics: metricsLis.Addr().String(),
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("HTTP API слушает %s", apiLis.Addr())
		return serveHTTP(apiSrv, apiLis)
	})
	g.Go(func() error {
		logger.Infof("метрики доступны по адресу %s/metrics", metricsLis.Addr())
		return serveHTTP(metricsSrv, metricsLis)
	})
	g.Go(func() error {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return reporter.Watch(gctx, store)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("получен сигнал остановки, останавливаем серверы")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		reporter.Shutdown()
		shutdownHTTP(shutdownCtx, apiSrv, logger)
		stopGRPC(shutdownCtx, grpcServer, logger)

		// Сессия закрывается после остановки API, чтобы последний снимок был записан.
		if err := store.Close(shutdownCtx); err != nil {
			logger.WithError(err).Warn("cart session closed with unsaved snapshot")
		}
		shutdownHTTP(shutdownCtx, metricsSrv, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// opsMux отдаёт /metrics и пробы.
func opsMux(gatherer prometheus.Gatherer, healthHandler *healthcheck.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

// hydrationCheck не блокируется: пока гидрация не завершена, проверка не проходит.
func hydrationCheck(store *cart.Store) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		select {
		case <-store.Ready():
		default:
			return errors.New("cart is hydrating")
		}
		return store.WaitReady(ctx)
	}
}

func serveHTTP(srv *http.Server, lis net.Listener) error {
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(ctx context.Context, srv *http.Server, logger *log.Entry) {
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

func stopGRPC(ctx context.Context, server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}
