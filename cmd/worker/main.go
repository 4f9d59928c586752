// Command worker is the molcore background process: it drains the
// ingestion/prediction/lifecycle Kafka topics and drives the prediction
// coordinator's dispatch/poll cycle on a ticker, alongside an HTTP health
// endpoint for orchestrator liveness/readiness probes.
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

	"github.com/cro-platform/molcore/internal/application/ingestion"
	"github.com/cro-platform/molcore/internal/application/lifecycle"
	"github.com/cro-platform/molcore/internal/application/prediction"
	"github.com/cro-platform/molcore/internal/config"
	domainmol "github.com/cro-platform/molcore/internal/domain/molecule"
	"github.com/cro-platform/molcore/internal/infrastructure/database/postgres"
	"github.com/cro-platform/molcore/internal/infrastructure/database/postgres/repositories"
	redisinfra "github.com/cro-platform/molcore/internal/infrastructure/database/redis"
	kafkaclient "github.com/cro-platform/molcore/internal/infrastructure/messaging/kafka"
	"github.com/cro-platform/molcore/internal/infrastructure/monitoring/logging"
	prometheusmon "github.com/cro-platform/molcore/internal/infrastructure/monitoring/prometheus"
)

const (
	dedupWindow       = 24 * time.Hour
	activeJobTTL      = time.Hour
	dispatchInterval  = 5 * time.Second
	pollInterval      = 10 * time.Second
	consumerGroupName = "molcore-worker"
)

func main() {
	configPath := flag.String("config", "", "path to the molcore config YAML file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
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

	metrics, err := prometheusmon.NewMetricsCollector(prometheusmon.CollectorConfig{
		Namespace: "molcore",
		Subsystem: "worker",
	}, logger)
	if err != nil {
		logger.Fatal("failed to initialize metrics collector", logging.Err(err))
	}
	rejectedCounter := metrics.RegisterCounter(
		"lifecycle_transitions_rejected_total",
		"Illegal molecule lifecycle transitions rejected by the orchestrator",
		"from", "to",
	)

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

	consumer, err := kafkaclient.NewConsumer(kafkaclient.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID,
		Topics: []string{
			kafkaclient.TopicMoleculeCreated,
			kafkaclient.TopicPropertiesRecorded,
			kafkaclient.TopicUploadValidated,
			kafkaclient.TopicPredictionRequested,
			kafkaclient.TopicPredictionSucceeded,
			kafkaclient.TopicPredictionDeadLetter,
			kafkaclient.TopicMoleculeSubmitted,
			kafkaclient.TopicMoleculeResultsIn,
		},
		AutoOffsetReset: cfg.Kafka.AutoOffsetReset,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create kafka consumer", logging.Err(err))
	}
	defer consumer.Close()

	moleculeRepo := repositories.NewMoleculeRepository(pool, kv)
	domainSvc := domainmol.NewService(moleculeRepo, nil, logger)

	uploadRepo := repositories.NewUploadRepository(pool, kv)
	ingestionSvc := ingestion.NewService(domainSvc, uploadRepo, publisher, ingestion.Options{
		MaxFileSizeBytes: cfg.Ingestion.MaxFileSizeBytes,
		MaxRowsPerUpload: cfg.Ingestion.MaxRowsPerUpload,
		RowBatchSize:     cfg.Ingestion.RowBatchSize,
		Concurrency:      cfg.Ingestion.Concurrency,
		StageTimeout:     cfg.Ingestion.StageTimeout,
	}, kv)
	_ = ingestionSvc // driven by the API server / CLI, not by Kafka; kept alive here for a future batch-reconciliation job.

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

	dedup := redisinfra.NewEventDeduplicator(redisClient, dedupWindow)
	orchestrator := lifecycle.NewOrchestrator(domainSvc, dedup, rejectedCounter, kv)

	if err := predictionSvc.Subscribe(consumer, prediction.Topics{
		MoleculeCreated:    kafkaclient.TopicMoleculeCreated,
		PropertiesRecorded: kafkaclient.TopicPropertiesRecorded,
	}); err != nil {
		logger.Fatal("failed to subscribe prediction coordinator", logging.Err(err))
	}
	if err := orchestrator.Subscribe(consumer, lifecycle.DefaultTopics()); err != nil {
		logger.Fatal("failed to subscribe lifecycle orchestrator", logging.Err(err))
	}

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal("failed to start kafka consumer", logging.Err(err))
	}

	go runDispatchLoop(ctx, predictionSvc, logger)
	go runPollLoop(ctx, predictionSvc, logger)

	healthSrv := startHealthServer(cfg.Server.Port, logger)

	logger.Info("molcore worker started", logging.String("group_id", cfg.Kafka.GroupID))
	<-ctx.Done()
	logger.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)
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

// runDispatchLoop periodically claims Queued prediction jobs and submits
// them to the external predictor. Unlike the ingestion/prediction-trigger
// handlers, dispatch and poll are not event-driven: a job becomes due purely
// by the passage of time (retry backoff, poll interval), so a ticker is the
// natural idiom rather than a Kafka subscription.
func runDispatchLoop(ctx context.Context, svc *prediction.Service, logger logging.Logger) {
	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.DispatchQueued(ctx); err != nil {
				logger.Error("dispatch cycle failed", logging.Err(err))
			}
		}
	}
}

func runPollLoop(ctx context.Context, svc *prediction.Service, logger logging.Logger) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.PollDispatched(ctx); err != nil {
				logger.Error("poll cycle failed", logging.Err(err))
			}
		}
	}
}

// startHealthServer serves a liveness probe on a background goroutine and
// returns the *http.Server so the caller can shut it down gracefully.
func startHealthServer(port int, logger logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server stopped unexpectedly", logging.Err(err))
		}
	}()
	return srv
}
