package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/cro-platform/molcore/internal/infrastructure/monitoring/logging"
	"github.com/cro-platform/molcore/pkg/errors"
	"github.com/cro-platform/molcore/pkg/types/common"
)

// Topic Constants
const (
	TopicUploadRowIngested    = "upload.row_ingested"
	TopicUploadValidated      = "upload.validated"
	TopicUploadFinalized      = "upload.finalized"
	TopicUploadCancelled      = "upload.cancelled"
	TopicPredictionRequested  = "prediction.requested"
	TopicPredictionSucceeded  = "prediction.succeeded"
	TopicPredictionFailed     = "prediction.failed"
	TopicPredictionDeadLetter = "prediction.dead_lettered"
	TopicMoleculeSubmitted    = "molecule.submitted_for_assay"
	TopicMoleculeResultsIn    = "molecule.results_available"
	TopicMoleculeCreated      = "molecule.created"
	TopicPropertiesRecorded   = "molecule.properties_recorded"
	TopicPredictionReady      = "prediction.ready"
	TopicAuditLog             = "audit.log"
	TopicDeadLetterDefault    = "dead_letter.default"
	TopicDeadLetterUpload     = "dead_letter.upload"
	TopicDeadLetterPrediction = "dead_letter.prediction"
)

// EventEnvelope standardizes event messages.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	TraceID       string            `json:"trace_id,omitempty"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Payload structs carried inside an EventEnvelope for each lifecycle-relevant
// event the ingestion pipeline (C3), prediction coordinator (C4), and
// lifecycle orchestrator (C6) exchange over Kafka.

// UploadRowIngestedPayload announces that a single row of an upload has been
// parsed, validated, and upserted into the molecule store.
type UploadRowIngestedPayload struct {
	UploadID   string    `json:"upload_id"`
	RowIndex   int       `json:"row_index"`
	MoleculeID string    `json:"molecule_id"`
	IngestedAt time.Time `json:"ingested_at"`
}

// UploadValidatedPayload marks a molecule as having passed structural and
// chemical validation and being ready to enqueue for prediction.
type UploadValidatedPayload struct {
	UploadID    string    `json:"upload_id"`
	MoleculeID  string    `json:"molecule_id"`
	ValidatedAt time.Time `json:"validated_at"`
}

// UploadFinalizedPayload announces that an upload has reached a terminal
// state (all rows processed or the batch was otherwise closed out).
type UploadFinalizedPayload struct {
	UploadID     string    `json:"upload_id"`
	RowCount     int       `json:"row_count"`
	AcceptedRows int       `json:"accepted_rows"`
	RejectedRows int       `json:"rejected_rows"`
	FinalizedAt  time.Time `json:"finalized_at"`
}

// UploadCancelledPayload announces an explicit cancel_upload call.
type UploadCancelledPayload struct {
	UploadID    string    `json:"upload_id"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// PredictionRequestedPayload is emitted by the prediction coordinator when a
// batch of molecules has been dispatched to a predictor.
type PredictionRequestedPayload struct {
	JobID       string    `json:"job_id"`
	MoleculeIDs []string  `json:"molecule_ids"`
	ModelName   string    `json:"model_name"`
	RequestedAt time.Time `json:"requested_at"`
}

// PredictionSucceededPayload carries the result of a completed prediction job.
type PredictionSucceededPayload struct {
	JobID       string    `json:"job_id"`
	MoleculeID  string    `json:"molecule_id"`
	Property    string    `json:"property"`
	Value       float64   `json:"value"`
	Units       string    `json:"units"`
	Confidence  float64   `json:"confidence"`
	CompletedAt time.Time `json:"completed_at"`
}

// PredictionFailedPayload marks a single job attempt failure, which may or
// may not be retryable depending on the error kind.
type PredictionFailedPayload struct {
	JobID     string    `json:"job_id"`
	Attempt   int       `json:"attempt"`
	Retryable bool      `json:"retryable"`
	Reason    string    `json:"reason"`
	FailedAt  time.Time `json:"failed_at"`
}

// PredictionDeadLetteredPayload marks a job that exhausted its retry budget.
type PredictionDeadLetteredPayload struct {
	JobID          string    `json:"job_id"`
	MoleculeID     string    `json:"molecule_id"`
	Attempts       int       `json:"attempts"`
	LastReason     string    `json:"last_reason"`
	DeadLetteredAt time.Time `json:"dead_lettered_at"`
}

// MoleculeSubmittedPayload announces a molecule has been handed off to a CRO
// for physical assay.
type MoleculeSubmittedPayload struct {
	MoleculeID  string    `json:"molecule_id"`
	CROName     string    `json:"cro_name"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// MoleculeResultsAvailablePayload announces that assay results have been
// recorded for a molecule previously submitted to a CRO.
type MoleculeResultsAvailablePayload struct {
	MoleculeID  string    `json:"molecule_id"`
	ResultCount int       `json:"result_count"`
	ReceivedAt  time.Time `json:"received_at"`
}

// MoleculeCreatedPayload is emitted by the ingestion pipeline the first time a
// content hash is seen, distinct from UploadRowIngestedPayload which fires for
// every row (including ones that dedup onto an existing molecule).
type MoleculeCreatedPayload struct {
	MoleculeID string    `json:"molecule_id"`
	UploadID   string    `json:"upload_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// PropertiesRecordedPayload is emitted when user-supplied observations change
// for an existing molecule, and is what drives the prediction coordinator's
// consumer alongside MoleculeCreatedPayload.
type PropertiesRecordedPayload struct {
	MoleculeID string    `json:"molecule_id"`
	Properties []string  `json:"properties"`
	Source     string    `json:"source"`
	RecordedAt time.Time `json:"recorded_at"`
}

// PredictionReadyPayload announces a single molecule/property prediction has
// landed and is now queryable alongside any assay-sourced observation.
type PredictionReadyPayload struct {
	MoleculeID string    `json:"molecule_id"`
	Property   string    `json:"property"`
	Value      float64   `json:"value"`
	Confidence float64   `json:"confidence"`
	ReadyAt    time.Time `json:"ready_at"`
}

// AuditReplayedPayload wraps one audit_log row being re-emitted on
// TopicAuditLog by the replay-events CLI path, distinct from the original
// event's own payload: a consumer checks Replayed to avoid double-counting
// an event it already processed once.
type AuditReplayedPayload struct {
	Seq        int64           `json:"seq"`
	Actor      string          `json:"actor"`
	Operation  string          `json:"operation"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	AfterState json.RawMessage `json:"after_state,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Replayed   bool            `json:"replayed"`
}

// Helper functions for EventEnvelope

func NewEventEnvelope(eventType string, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: "v1",
		Payload:       data,
	}, nil
}

func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil // or error if payload required?
	}
	return json.Unmarshal(e.Payload, target)
}

func (e *EventEnvelope) ToMessage(topic string) (*common.ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to marshal envelope")
	}
	headers := map[string]string{
		"event_type":     e.EventType,
		"source_service": e.Source,
		"schema_version": e.SchemaVersion,
	}
	if e.TraceID != "" {
		headers["trace_id"] = e.TraceID
	}
	return &common.ProducerMessage{
		Topic:     topic,
		Value:     val,
		Headers:   headers,
		Timestamp: e.Timestamp,
	}, nil
}

func MessageToEventEnvelope(msg *common.Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.CodeInvalidParam, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to unmarshal envelope")
	}
	return &env, nil
}

// ConnInterface abstracts kafka.Conn for testing.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	DeleteTopics(topics ...string) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager manages Kafka topics.
type TopicManager struct {
	conn   ConnInterface
	logger logging.Logger
}

func NewTopicManager(brokers []string, logger logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.CodeInvalidParam, "brokers required")
	}
	// Connect to first broker (controller or any)
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to dial kafka")
	}
	return &TopicManager{
		conn:   conn,
		logger: logger,
	}, nil
}

func (m *TopicManager) CreateTopic(ctx context.Context, cfg common.TopicConfig) error {
	if cfg.Name == "" {
		return errors.New(errors.CodeInvalidParam, "topic name required")
	}
	if cfg.NumPartitions <= 0 {
		return errors.New(errors.CodeInvalidParam, "NumPartitions must be > 0")
	}
	if cfg.ReplicationFactor <= 0 {
		return errors.New(errors.CodeInvalidParam, "ReplicationFactor must be > 0")
	}

	kCfg := kafka.TopicConfig{
		Topic:             cfg.Name,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
		ConfigEntries:     make([]kafka.ConfigEntry, 0),
	}

	if cfg.RetentionMs > 0 {
		kCfg.ConfigEntries = append(kCfg.ConfigEntries, kafka.ConfigEntry{ConfigName: "retention.ms", ConfigValue: fmt.Sprintf("%d", cfg.RetentionMs)})
	}
	if cfg.CleanupPolicy != "" {
		kCfg.ConfigEntries = append(kCfg.ConfigEntries, kafka.ConfigEntry{ConfigName: "cleanup.policy", ConfigValue: cfg.CleanupPolicy})
	}
	if cfg.MaxMessageBytes > 0 {
		kCfg.ConfigEntries = append(kCfg.ConfigEntries, kafka.ConfigEntry{ConfigName: "max.message.bytes", ConfigValue: fmt.Sprintf("%d", cfg.MaxMessageBytes)})
	}
	for k, v := range cfg.Configs {
		kCfg.ConfigEntries = append(kCfg.ConfigEntries, kafka.ConfigEntry{ConfigName: k, ConfigValue: v})
	}

	err := m.conn.CreateTopics(kCfg)
	if err != nil {
		if err.Error() == "topic already exists" {
			return nil
		}
		exists, _ := m.TopicExists(ctx, cfg.Name)
		if exists {
			return nil
		}
		return err
	}
	m.logger.Info("Topic created", logging.String("topic", cfg.Name))
	return nil
}

func (m *TopicManager) DeleteTopic(ctx context.Context, name string) error {
	err := m.conn.DeleteTopics(name)
	if err != nil {
		return nil
	}
	m.logger.Warn("Topic deleted", logging.String("topic", name))
	return nil
}

func (m *TopicManager) TopicExists(ctx context.Context, name string) (bool, error) {
	partitions, err := m.conn.ReadPartitions(name)
	if err != nil {
		return false, nil
	}
	return len(partitions) > 0, nil
}

func (m *TopicManager) ListTopics(ctx context.Context) ([]string, error) {
	partitions, err := m.conn.ReadPartitions()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var topics []string
	for _, p := range partitions {
		if !seen[p.Topic] {
			seen[p.Topic] = true
			topics = append(topics, p.Topic)
		}
	}
	return topics, nil
}

func (m *TopicManager) EnsureTopics(ctx context.Context, topics []common.TopicConfig) error {
	for _, topic := range topics {
		if err := m.CreateTopic(ctx, topic); err != nil {
			return err
		}
	}
	return nil
}

func (m *TopicManager) EnsureDefaultTopics(ctx context.Context) error {
	return m.EnsureTopics(ctx, DefaultTopics())
}

func (m *TopicManager) Close() error {
	return m.conn.Close()
}

func DefaultTopics() []common.TopicConfig {
	return []common.TopicConfig{
		{Name: TopicUploadRowIngested, NumPartitions: 12, ReplicationFactor: 3, RetentionMs: 7 * 24 * 3600 * 1000},
		{Name: TopicUploadValidated, NumPartitions: 12, ReplicationFactor: 3, RetentionMs: 7 * 24 * 3600 * 1000},
		{Name: TopicUploadFinalized, NumPartitions: 6, ReplicationFactor: 3, RetentionMs: 30 * 24 * 3600 * 1000},
		{Name: TopicUploadCancelled, NumPartitions: 3, ReplicationFactor: 3, RetentionMs: 30 * 24 * 3600 * 1000},
		{Name: TopicPredictionRequested, NumPartitions: 12, ReplicationFactor: 3, RetentionMs: 7 * 24 * 3600 * 1000},
		{Name: TopicPredictionSucceeded, NumPartitions: 12, ReplicationFactor: 3, RetentionMs: 7 * 24 * 3600 * 1000},
		{Name: TopicPredictionFailed, NumPartitions: 6, ReplicationFactor: 3, RetentionMs: 7 * 24 * 3600 * 1000},
		{Name: TopicPredictionDeadLetter, NumPartitions: 3, ReplicationFactor: 3, RetentionMs: 90 * 24 * 3600 * 1000},
		{Name: TopicMoleculeSubmitted, NumPartitions: 3, ReplicationFactor: 3, RetentionMs: 90 * 24 * 3600 * 1000},
		{Name: TopicMoleculeResultsIn, NumPartitions: 3, ReplicationFactor: 3, RetentionMs: 90 * 24 * 3600 * 1000},
		{Name: TopicMoleculeCreated, NumPartitions: 12, ReplicationFactor: 3, RetentionMs: 7 * 24 * 3600 * 1000},
		{Name: TopicPropertiesRecorded, NumPartitions: 12, ReplicationFactor: 3, RetentionMs: 7 * 24 * 3600 * 1000},
		{Name: TopicPredictionReady, NumPartitions: 12, ReplicationFactor: 3, RetentionMs: 7 * 24 * 3600 * 1000},
		{Name: TopicAuditLog, NumPartitions: 3, ReplicationFactor: 3, RetentionMs: 365 * 24 * 3600 * 1000},
		{Name: TopicDeadLetterDefault, NumPartitions: 3, ReplicationFactor: 3, RetentionMs: 30 * 24 * 3600 * 1000},
		{Name: TopicDeadLetterUpload, NumPartitions: 3, ReplicationFactor: 3, RetentionMs: 30 * 24 * 3600 * 1000},
		{Name: TopicDeadLetterPrediction, NumPartitions: 3, ReplicationFactor: 3, RetentionMs: 30 * 24 * 3600 * 1000},
	}
}
