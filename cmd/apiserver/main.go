// Command apiserver is the molcore read/write gateway: it exposes the C2/C5
// molecule operations, the C3 ingestion pipeline, the C4 prediction
// coordinator's request/cancel/inspect surface, and audit log replay over a
// gin-based REST API, plus an internal gRPC boundary for service-to-service
// calls from cmd/worker.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cro-platform/molcore/internal/application/events"
	"github.com/cro-platform/molcore/internal/application/ingestion"
	appmolecule "github.com/cro-platform/molcore/internal/application/molecule"
	"github.com/cro-platform/molcore/internal/application/prediction"
	"github.com/cro-platform/molcore/internal/config"
	domainmol "github.com/cro-platform/molcore/internal/domain/molecule"
	"github.com/cro-platform/molcore/internal/infrastructure/database/postgres"
	"github.com/cro-platform/molcore/internal/infrastructure/database/postgres/repositories"
	redisinfra "github.com/cro-platform/molcore/internal/infrastructure/database/redis"
	kafkaclient "github.com/cro-platform/molcore/internal/infrastructure/messaging/kafka"
	"github.com/cro-platform/molcore/internal/infrastructure/monitoring/logging"
	prometheusmon "github.com/cro-platform/molcore/internal/infrastructure/monitoring/prometheus"
	grpcserver "github.com/cro-platform/molcore/internal/interfaces/grpc"
	httpserver "github.com/cro-platform/molcore/internal/interfaces/http"
	"github.com/cro-platform/molcore/internal/interfaces/http/handlers"
)

const (
	activeJobTTL      = time.Hour
	consumerGroupName = "molcore-apiserver"
)

// Build-time variable injected via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to the molcore config YAML file")
	httpPort := flag.Int("http-port", 0, "HTTP server port (overrides config)")
	grpcPort := flag.Int("grpc-port", 0, "gRPC server port (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *httpPort > 0 {
		cfg.Server.Port = *httpPort
	}
	if *grpcPort > 0 {
		cfg.GRPC.Port = *grpcPort
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:            cfg.Log.Level,
		Format:           cfg.Log.Format,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)
	kv := logging.NewKeyValueLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewConnectionPool(cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to postgres", logging.Err(err))
	}
	defer postgres.Close(pool)

	redisClient, err := redisinfra.NewClient(toRedisConfig(cfg.Redis), logger)
	if err != nil {
		logger.Fatal("failed to connect to redis", logging.Err(err))
	}
	defer redisClient.Close()

	metricsCollector, err := prometheusmon.NewMetricsCollector(prometheusmon.CollectorConfig{
		Namespace: "molcore",
		Subsystem: "apiserver",
	}, logger)
	if err != nil {
		logger.Fatal("failed to initialize metrics collector", logging.Err(err))
	}
	grpcMetrics := prometheusmon.NewGRPCMetrics(metricsCollector)

	producer, err := kafkaclient.NewProducer(kafkaclient.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Acks:         "all",
		MaxRetries:   cfg.Kafka.ProducerRetries,
		BatchSize:    cfg.Kafka.BatchSize,
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create kafka producer", logging.Err(err))
	}
	defer producer.Close()
	publisher := kafkaclient.NewEnvelopePublisher(producer, consumerGroupName)

	moleculeRepo := repositories.NewMoleculeRepository(pool, kv)
	domainSvc := domainmol.NewService(moleculeRepo, nil, logger)
	appMoleculeSvc := appmolecule.NewService(domainSvc, logger)

	uploadRepo := repositories.NewUploadRepository(pool, kv)
	ingestionSvc := ingestion.NewService(domainSvc, uploadRepo, publisher, ingestion.Options{
		MaxFileSizeBytes: cfg.Ingestion.MaxFileSizeBytes,
		MaxRowsPerUpload: cfg.Ingestion.MaxRowsPerUpload,
		RowBatchSize:     cfg.Ingestion.RowBatchSize,
		Concurrency:      cfg.Ingestion.Concurrency,
		StageTimeout:     cfg.Ingestion.StageTimeout,
	}, kv)

	jobRepo := repositories.NewPredictionJobRepository(pool, kv)
	activeRegistry := redisinfra.NewActiveJobRegistry(redisClient, activeJobTTL)
	predictorClient := prediction.NewHTTPPredictorClient(cfg.Prediction.PredictorBaseURL, cfg.Prediction.RequestTimeout)
	predictionSvc := prediction.NewService(domainSvc, jobRepo, publisher, predictorClient, activeRegistry, prediction.Options{
		ModelName:           "default",
		BatchSize:           cfg.Prediction.BatchSize,
		MaxInFlightBatches:  cfg.Prediction.MaxInFlightBatches,
		MaxRetries:          cfg.Prediction.MaxRetries,
		RetryBaseDelay:      cfg.Prediction.RetryBaseDelay,
		RetryMaxDelay:       cfg.Prediction.RetryMaxDelay,
		BreakerFailureRatio: cfg.Prediction.BreakerFailureRatio,
		BreakerOpenDuration: cfg.Prediction.BreakerOpenDuration,
	}, kv)

	auditRepo := repositories.NewAuditRepository(pool, kv)
	eventsSvc := events.NewService(auditRepo, publisher, kv)

	routerCfg := httpserver.RouterConfig{
		MoleculeHandler:   handlers.NewMoleculeHandler(appMoleculeSvc, logger),
		IngestionHandler:  handlers.NewIngestionHandler(ingestionSvc, logger),
		PredictionHandler: handlers.NewPredictionHandler(predictionSvc, logger),
		EventsHandler:     handlers.NewEventsHandler(eventsSvc, logger),
		HealthHandler:     handlers.NewHealthHandler(version),
		Logger:            logger,
	}
	httpHandler := httpserver.NewRouter(routerCfg)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	grpcSrv, err := grpcserver.NewServer(&cfg.GRPC,
		grpcserver.WithLogger(logger),
		grpcserver.WithMetrics(grpcMetrics),
	)
	if err != nil {
		logger.Fatal("failed to initialize grpc server", logging.Err(err))
	}

	go func() {
		logger.Info("HTTP server listening", logging.Int("port", cfg.Server.Port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", logging.Err(err))
		}
	}()

	go func() {
		logger.Info("gRPC server listening", logging.String("addr", grpcSrv.Addr()))
		if err := grpcSrv.Start(); err != nil {
			logger.Error("gRPC server error", logging.Err(err))
		}
	}()

	logger.Info("molcore apiserver started", logging.Int("http_port", cfg.Server.Port), logging.Int("grpc_port", cfg.GRPC.Port))
	<-ctx.Done()
	logger.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", logging.Err(err))
	}
	if err := grpcSrv.Stop(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", logging.Err(err))
	}

	logger.Info("servers stopped")
}

// loadConfig reads the YAML file at path when provided, otherwise builds a
// Config entirely from MOLCORE_* environment variables and defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}

func toRedisConfig(cfg config.RedisConfig) *redisinfra.RedisConfig {
	return &redisinfra.RedisConfig{
		Mode:         "standalone",
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}
