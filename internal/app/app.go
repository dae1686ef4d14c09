package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/nikola1125/ashila-backend/internal/api"
	"github.com/nikola1125/ashila-backend/internal/auth"
	healthcheck "github.com/nikola1125/ashila-backend/internal/health"
	"github.com/nikola1125/ashila-backend/internal/messaging/kafka"
	"github.com/nikola1125/ashila-backend/internal/metrics"
	"github.com/nikola1125/ashila-backend/internal/service/lifecycle"
	"github.com/nikola1125/ashila-backend/internal/service/notify"
	"github.com/nikola1125/ashila-backend/internal/service/stock"
	"github.com/nikola1125/ashila-backend/internal/version"
)

const shutdownTimeout = 5 * time.Second

func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger.WithField("layer", "storage"))
	if err != nil {
		return err
	}
	defer deps.close(logger)

	strategy, err := newCommitStrategy(cfg.CommitMode, deps.tx, logger)
	if err != nil {
		return err
	}
	engine := stock.NewEngine(deps.catalog, deps.orders, strategy,
		stock.WithLogger(logger.WithField("component", "stock-engine")),
		stock.WithMetrics(metrics.NewStockMetrics()),
	)
	logger.WithField("commit_mode", engine.Mode()).Info("stock engine initialized")

	sinks, kafkaProducer := initNotifySinks(cfg, logger)
	dispatcher := notify.NewDispatcher(sinks,
		notify.WithLogger(logger.WithField("component", "notify")),
		notify.WithMetrics(metrics.NewNotifyMetrics()),
		notify.WithWorkers(cfg.NotifyWorkers),
		notify.WithQueueSize(cfg.NotifyQueue),
	)

	controller := lifecycle.NewController(engine, deps.catalog, deps.orders,
		lifecycle.WithLogger(logger.WithField("component", "order-lifecycle")),
		lifecycle.WithAuthorizer(auth.ClaimsAuthorizer{}),
		lifecycle.WithPublisher(dispatcher),
		lifecycle.WithShippingCost(decimal.NewFromInt(cfg.ShippingCost)),
		lifecycle.WithRestockOnCancel(cfg.RestockOnCancel),
		lifecycle.WithOrderNumbers(lifecycle.NewOrderNumberGenerator().Next),
	)

	secret := cfg.JWTSecret
	if secret == "" {
		logger.Warn("JWT secret is not set, staff endpoints will reject every token")
		secret = uuid.NewString()
	}
	router := api.NewRouter(api.RouterConfig{
		Service:        controller,
		Tokens:         auth.NewJWTService(secret, cfg.JWTExpiry),
		AllowedOrigins: splitList(cfg.AllowedOrigins),
		Logger:         logger.WithField("component", "http"),
	})

	grpcMetrics := promgrpc.NewServerMetrics()
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	healthHandler.RegisterChecker("stock-commit", healthcheck.NewFlagChecker("stock-commit",
		"stock commits run without a transaction, partial failures are compensated",
		func() bool { return engine.Mode() == stock.ModeBestEffort }))

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		closeNotifications(dispatcher, kafkaProducer, logger)
		return fmt.Errorf("listen grpc: %w", err)
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		shutdownHTTP(metricsSrv, logger)
		closeNotifications(dispatcher, kafkaProducer, logger)
		return fmt.Errorf("listen http: %w", err)
	}
	apiSrv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", httpLis.Addr())
		if err := apiSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := func() {
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		shutdownHTTP(apiSrv, logger)
		stopGRPC(grpcServer, logger)
		shutdownHTTP(metricsSrv, logger)
		closeNotifications(dispatcher, kafkaProducer, logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		stop()
		return ctx.Err()
	case err := <-errCh:
		stop()
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// stopGRPC ждёт завершения активных вызовов, но не дольше shutdownTimeout.
func stopGRPC(srv *grpc.Server, logger *log.Entry) {
	stoppedCh := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

// closeNotifications дожидается доставки очереди уведомлений и закрывает Kafka.
func closeNotifications(dispatcher *notify.Dispatcher, producer *kafka.Producer, logger *log.Entry) {
	if dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := dispatcher.Close(ctx); err != nil {
			logger.WithError(err).Warn("notification queue was not drained before shutdown")
		}
	}
	closeKafkaProducer(producer, logger)
}

// startMetricsServer запускает HTTP-обработчики /metrics и health-проверок.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
