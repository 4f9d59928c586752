package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultServerMode, cfg.Server.Mode)

	assert.Equal(t, DefaultDBHost, cfg.Database.Host)
	assert.Equal(t, DefaultDBPort, cfg.Database.Port)
	assert.Equal(t, DefaultDBName, cfg.Database.DBName)
	assert.Equal(t, DefaultDBMaxConns, cfg.Database.MaxConns)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, DefaultRedisAddr, cfg.Redis.Addr)

	assert.Equal(t, []string{DefaultKafkaBroker}, cfg.Kafka.Brokers)
	assert.Equal(t, DefaultKafkaGroupID, cfg.Kafka.GroupID)
	assert.Equal(t, "earliest", cfg.Kafka.AutoOffsetReset)

	assert.Equal(t, DefaultMilvusAddr, cfg.Milvus.Addr)

	assert.Equal(t, DefaultWorkerConcurrency, cfg.Worker.Concurrency)
	assert.Equal(t, "local", cfg.Worker.Mode)
	assert.Equal(t, 3, cfg.Worker.MaxRetries)

	assert.Equal(t, DefaultIngestionRowBatchSize, cfg.Ingestion.RowBatchSize)
	assert.Equal(t, DefaultIngestionConcurrency, cfg.Ingestion.Concurrency)
	assert.Equal(t, DefaultIngestionMaxRows, cfg.Ingestion.MaxRowsPerUpload)
	assert.Equal(t, int64(DefaultIngestionMaxFileSize), cfg.Ingestion.MaxFileSizeBytes)
	assert.Equal(t, 5*time.Minute, cfg.Ingestion.StageTimeout)

	assert.NotEmpty(t, cfg.Prediction.PredictorBaseURL)
	assert.Equal(t, 30*time.Second, cfg.Prediction.RequestTimeout)
	assert.Equal(t, DefaultPredictionBatchSize, cfg.Prediction.BatchSize)
	assert.Equal(t, DefaultPredictionMaxInFlight, cfg.Prediction.MaxInFlightBatches)
	assert.Equal(t, 500*time.Millisecond, cfg.Prediction.RetryBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Prediction.RetryMaxDelay)
	assert.Equal(t, DefaultPredictionMaxRetries, cfg.Prediction.MaxRetries)
	assert.Equal(t, DefaultPredictionBreakerRatio, cfg.Prediction.BreakerFailureRatio)
	assert.Equal(t, 30*time.Second, cfg.Prediction.BreakerOpenDuration)

	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format)
}

func TestApplyDefaults_PreserveExistingValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 9999
	cfg.Database.Host = "custom-host"

	ApplyDefaults(cfg)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "custom-host", cfg.Database.Host)
	assert.Equal(t, DefaultServerMode, cfg.Server.Mode)
}

func TestApplyDefaults_PreserveSliceValues(t *testing.T) {
	cfg := &Config{}
	brokers := []string{"kafka-1:9092", "kafka-2:9092"}
	cfg.Kafka.Brokers = brokers

	ApplyDefaults(cfg)

	assert.Equal(t, brokers, cfg.Kafka.Brokers)
}

func TestApplyDefaults_PreserveDurationValues(t *testing.T) {
	cfg := &Config{}
	timeout := 5 * time.Minute
	cfg.Prediction.RequestTimeout = timeout

	ApplyDefaults(cfg)

	assert.Equal(t, timeout, cfg.Prediction.RequestTimeout)
}

func TestApplyDefaults_NilConfigIsNoop(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}

func TestApplyDefaults_ThenValidatePasses(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "user"
	cfg.Database.DBName = "db"
	cfg.OpenSearch.Addresses = []string{"http://localhost:9200"}

	ApplyDefaults(cfg)

	assert.NoError(t, cfg.Validate())
}
