package common

import (
	"context"
	"time"
)

// Message is the consumer-side view of a single message read off a broker
// partition: topic/partition/offset coordinates, the raw key/value, and any
// broker headers flattened to strings.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
	Headers   map[string]string
}

// ProducerMessage is the producer-side view of a message to publish. Topic is
// the only required field; Key controls partition assignment when the writer
// uses a hash balancer.
type ProducerMessage struct {
	Topic     string
	Partition int
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// MessageHandler processes a single consumed message. Returning a non-nil
// error triggers the consumer's retry-then-dead-letter path.
type MessageHandler func(ctx context.Context, msg *Message) error

// BatchItemError records which message within a PublishBatch call failed and
// why. Index is -1 when the batch failed as a whole rather than per-item.
type BatchItemError struct {
	Index int
	Topic string
	Error error
}

// BatchPublishResult summarizes the outcome of a PublishBatch call.
type BatchPublishResult struct {
	Succeeded int
	Failed    int
	Errors    []BatchItemError
}

// TopicConfig describes the desired configuration of a Kafka topic for
// idempotent provisioning via TopicManager.EnsureTopics.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
	CleanupPolicy     string
	MaxMessageBytes   int
	Configs           map[string]string
}
