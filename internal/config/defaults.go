// Package config provides configuration loading, defaults, and validation for
// the molcore platform.
package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort = 8080
	DefaultServerMode = "debug"

	DefaultGRPCHost = "0.0.0.0"
	DefaultGRPCPort = 9090

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBName     = "molcore"
	DefaultDBMaxConns = 25

	DefaultRedisAddr = "localhost:6379"
	DefaultRedisDB   = 0

	DefaultKafkaBroker  = "localhost:9092"
	DefaultKafkaGroupID = "molcore-group"

	DefaultMilvusAddr = "localhost:19530"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultWorkerConcurrency = 10

	DefaultIngestionRowBatchSize = 500
	DefaultIngestionConcurrency  = 4
	DefaultIngestionMaxRows      = 1_000_000
	DefaultIngestionMaxFileSize  = 512 * 1024 * 1024

	DefaultPredictionBatchSize    = 32
	DefaultPredictionMaxInFlight  = 8
	DefaultPredictionMaxRetries   = 5
	DefaultPredictionBreakerRatio = 0.5
)

// ─────────────────────────────────────────────────────────────────────────────
// ApplyDefaults fills zero-value fields in cfg with well-known defaults.
// It must be called after unmarshalling raw config data and before Validate()
// so that optional-but-defaulted fields are never seen as missing.
// ─────────────────────────────────────────────────────────────────────────────

// ApplyDefaults fills every zero-value field in cfg with the platform default.
// Fields that have already been set by the caller (non-zero values) are left
// unchanged so that explicit configuration always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}

	// ── gRPC ──────────────────────────────────────────────────────────────────
	if cfg.GRPC.Host == "" {
		cfg.GRPC.Host = DefaultGRPCHost
	}
	if cfg.GRPC.Port == 0 {
		cfg.GRPC.Port = DefaultGRPCPort
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	// DB is an int; 0 is a valid explicit value so we cannot distinguish "not
	// set" from "set to 0".  We leave it as-is (0 is also the default).

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "earliest"
	}

	// ── Milvus ────────────────────────────────────────────────────────────────
	if cfg.Milvus.Addr == "" {
		cfg.Milvus.Addr = DefaultMilvusAddr
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.Mode == "" {
		cfg.Worker.Mode = "local"
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = 3
	}

	// ── Ingestion ─────────────────────────────────────────────────────────────
	if cfg.Ingestion.RowBatchSize == 0 {
		cfg.Ingestion.RowBatchSize = DefaultIngestionRowBatchSize
	}
	if cfg.Ingestion.Concurrency == 0 {
		cfg.Ingestion.Concurrency = DefaultIngestionConcurrency
	}
	if cfg.Ingestion.MaxRowsPerUpload == 0 {
		cfg.Ingestion.MaxRowsPerUpload = DefaultIngestionMaxRows
	}
	if cfg.Ingestion.MaxFileSizeBytes == 0 {
		cfg.Ingestion.MaxFileSizeBytes = DefaultIngestionMaxFileSize
	}
	if cfg.Ingestion.StageTimeout == 0 {
		cfg.Ingestion.StageTimeout = 5 * time.Minute
	}

	// ── Prediction ────────────────────────────────────────────────────────────
	if cfg.Prediction.PredictorBaseURL == "" {
		cfg.Prediction.PredictorBaseURL = "http://localhost:8501"
	}
	if cfg.Prediction.RequestTimeout == 0 {
		cfg.Prediction.RequestTimeout = 30 * time.Second
	}
	if cfg.Prediction.BatchSize == 0 {
		cfg.Prediction.BatchSize = DefaultPredictionBatchSize
	}
	if cfg.Prediction.MaxInFlightBatches == 0 {
		cfg.Prediction.MaxInFlightBatches = DefaultPredictionMaxInFlight
	}
	if cfg.Prediction.RetryBaseDelay == 0 {
		cfg.Prediction.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.Prediction.RetryMaxDelay == 0 {
		cfg.Prediction.RetryMaxDelay = 30 * time.Second
	}
	if cfg.Prediction.MaxRetries == 0 {
		cfg.Prediction.MaxRetries = DefaultPredictionMaxRetries
	}
	if cfg.Prediction.BreakerFailureRatio == 0 {
		cfg.Prediction.BreakerFailureRatio = DefaultPredictionBreakerRatio
	}
	if cfg.Prediction.BreakerOpenDuration == 0 {
		cfg.Prediction.BreakerOpenDuration = 30 * time.Second
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}
