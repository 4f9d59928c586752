package prediction

import (
	"context"
	"fmt"
	"time"

	"github.com/cro-platform/molcore/internal/domain/molecule"
	kafkaclient "github.com/cro-platform/molcore/internal/infrastructure/messaging/kafka"
	"github.com/cro-platform/molcore/pkg/errors"
	"github.com/cro-platform/molcore/pkg/types/common"
	mtypes "github.com/cro-platform/molcore/pkg/types/molecule"
)

// Logger matches the narrow structured-logging interface used throughout the
// application layer.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Subscriber is the subset of the Kafka consumer the coordinator needs to
// bind its ingestion triggers, mirroring lifecycle.KafkaSubscriber.
type Subscriber interface {
	Subscribe(topic string, handler common.MessageHandler) error
}

// Topics names the topics the coordinator binds to or publishes on. Defined
// locally rather than importing the kafka package's constants into call
// sites, matching lifecycle.lifecycleTopics.
type Topics struct {
	MoleculeCreated    string
	PropertiesRecorded string
}

// Options tunes the coordinator's batching, retry, and breaker behavior.
// Populated from internal/config.PredictionConfig at wiring time.
type Options struct {
	ModelName           string
	DefaultProperties   []string
	BatchSize           int
	MaxInFlightBatches  int
	MaxRetries          int
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
	BreakerFailureRatio float64
	BreakerOpenDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 32
	}
	if o.MaxInFlightBatches <= 0 {
		o.MaxInFlightBatches = 8
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if len(o.DefaultProperties) == 0 {
		o.DefaultProperties = []string{"logp", "solubility", "molecular_weight"}
	}
	if o.ModelName == "" {
		o.ModelName = "default"
	}
	return o
}

// Service is the C4 prediction coordinator: request_prediction / dispatch /
// poll / cancel, batching newly-validated molecules into predictor requests
// and retrying transient failures with backoff before dead-lettering a job
// whose retry budget is exhausted.
type Service struct {
	molecules *molecule.Service
	repo      Repository
	publisher Publisher
	predictor PredictorClient
	active    ActiveJobRegistry
	breaker   *circuitBreaker
	backoff   backoffSchedule
	opts      Options
	logger    Logger
}

// NewService constructs the prediction coordinator.
func NewService(molecules *molecule.Service, repo Repository, publisher Publisher, predictor PredictorClient, active ActiveJobRegistry, opts Options, logger Logger) *Service {
	opts = opts.withDefaults()
	return &Service{
		molecules: molecules,
		repo:      repo,
		publisher: publisher,
		predictor: predictor,
		active:    active,
		breaker:   newCircuitBreaker(opts.BreakerFailureRatio, opts.BreakerOpenDuration),
		backoff:   newBackoffSchedule(opts.RetryBaseDelay, opts.RetryMaxDelay),
		opts:      opts,
		logger:    logger,
	}
}

// GetJob returns a single job by id, for status lookups from the HTTP API
// and the operational CLI's jobs --show.
func (s *Service) GetJob(ctx context.Context, id common.ID) (*Job, error) {
	return s.repo.GetJob(ctx, id)
}

// Subscribe binds the coordinator's ingestion triggers to the given
// consumer. A MoleculeCreated or PropertiesRecorded event both result in a
// RequestPrediction call for the affected molecule over the coordinator's
// configured default property set.
func (s *Service) Subscribe(consumer Subscriber, topics Topics) error {
	bindings := []struct {
		topic   string
		handler common.MessageHandler
	}{
		{topics.MoleculeCreated, s.handleMoleculeCreated},
		{topics.PropertiesRecorded, s.handlePropertiesRecorded},
	}
	for _, b := range bindings {
		if err := consumer.Subscribe(b.topic, b.handler); err != nil {
			return errors.Wrap(err, errors.CodeMessageQueueError, "failed to subscribe prediction handler")
		}
	}
	return nil
}

func (s *Service) handleMoleculeCreated(ctx context.Context, msg *common.Message) error {
	var payload kafkaclient.MoleculeCreatedPayload
	if err := decodeInto(msg, &payload); err != nil {
		return err
	}
	_, err := s.RequestPrediction(ctx, RequestInput{
		MoleculeIDs: []common.ID{common.ID(payload.MoleculeID)},
		Properties:  s.opts.DefaultProperties,
	})
	return ignoreAlreadyActive(err)
}

func (s *Service) handlePropertiesRecorded(ctx context.Context, msg *common.Message) error {
	var payload kafkaclient.PropertiesRecordedPayload
	if err := decodeInto(msg, &payload); err != nil {
		return err
	}
	_, err := s.RequestPrediction(ctx, RequestInput{
		MoleculeIDs: []common.ID{common.ID(payload.MoleculeID)},
		Properties:  s.opts.DefaultProperties,
	})
	return ignoreAlreadyActive(err)
}

// ignoreAlreadyActive treats "molecule already has a job in flight" as a
// no-op rather than a consumer failure: the molecule's existing job will
// cover the newly recorded properties on its next dispatch cycle.
func ignoreAlreadyActive(err error) error {
	if err != nil && errors.IsCode(err, errors.CodeJobAlreadyActive) {
		return nil
	}
	return err
}

func decodeInto(msg *common.Message, target interface{}) error {
	env, err := kafkaclient.MessageToEventEnvelope(msg)
	if err != nil {
		return errors.Wrap(err, errors.CodeMessageQueueError, "failed to decode event envelope")
	}
	if err := env.DecodePayload(target); err != nil {
		return errors.Wrap(err, errors.CodeMessageQueueError, "failed to decode event payload")
	}
	return nil
}

// RequestPrediction registers a new job for the given molecules and
// properties. The idempotency key is derived from the molecule/property set
// so a redelivered request collapses onto the same job rather than double
// dispatching. Every molecule in the batch must first be claimed in the
// active-job registry; a molecule that already has an active job causes the
// whole request to fail with CodeJobAlreadyActive rather than splitting the
// batch silently.
func (s *Service) RequestPrediction(ctx context.Context, in RequestInput) (*Job, error) {
	if len(in.MoleculeIDs) == 0 {
		return nil, errors.InvalidParam("at least one molecule id is required")
	}
	if len(in.Properties) == 0 {
		in.Properties = s.opts.DefaultProperties
	}

	claimed := make([]common.ID, 0, len(in.MoleculeIDs))
	for _, id := range in.MoleculeIDs {
		ok, err := s.active.TryActivate(ctx, string(id))
		if err != nil {
			s.releaseAll(ctx, claimed)
			return nil, err
		}
		if !ok {
			s.releaseAll(ctx, claimed)
			return nil, errors.New(errors.CodeJobAlreadyActive, "molecule already has an active prediction job").
				WithDetail(string(id))
		}
		claimed = append(claimed, id)
	}

	key := idempotencyKey(in.MoleculeIDs, in.Properties)
	job := &Job{
		BaseEntity:          common.BaseEntity{ID: common.NewID()},
		IdempotencyKey:      key,
		MoleculeIDs:         in.MoleculeIDs,
		RequestedProperties: in.Properties,
		State:               mtypes.JobStateQueued,
	}
	created, isNew, err := s.repo.CreateJob(ctx, job)
	if err != nil {
		s.releaseAll(ctx, claimed)
		return nil, err
	}
	if !isNew {
		s.releaseAll(ctx, claimed)
	}
	s.logger.Debug("prediction job requested", "job_id", string(created.ID), "new", isNew)
	return created, nil
}

func (s *Service) releaseAll(ctx context.Context, ids []common.ID) {
	for _, id := range ids {
		if err := s.active.Release(ctx, string(id)); err != nil {
			s.logger.Warn("failed to release active-job claim", "molecule_id", string(id), "error", err.Error())
		}
	}
}

func idempotencyKey(moleculeIDs []common.ID, properties []string) string {
	return fmt.Sprintf("%v:%v", moleculeIDs, properties)
}

// DispatchQueued claims up to the coordinator's batch size of Queued jobs
// and submits each to the predictor, gated by the circuit breaker. A
// transient failure reschedules with backoff; a permanent failure or an
// exhausted retry budget dead-letters the job immediately.
func (s *Service) DispatchQueued(ctx context.Context) error {
	jobs, err := s.repo.ClaimQueued(ctx, s.opts.BatchSize)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		s.dispatchOne(ctx, job)
	}
	return nil
}

func (s *Service) dispatchOne(ctx context.Context, job *Job) {
	if job.CancellationRequested {
		s.finalizeCancelled(ctx, job)
		return
	}

	if err := s.breaker.Allow(); err != nil {
		s.scheduleRetry(ctx, job, mtypes.JobStateQueued, err)
		return
	}

	ref, err := s.predictor.Submit(ctx, job.MoleculeIDs, job.RequestedProperties)
	if err != nil {
		s.breaker.RecordFailure()
		s.handleDispatchFailure(ctx, job, err)
		return
	}
	s.breaker.RecordSuccess()

	if err := s.repo.MarkDispatched(ctx, job.ID, ref); err != nil {
		s.logger.Error("failed to mark job dispatched", "job_id", string(job.ID), "error", err.Error())
		return
	}

	moleculeIDs := make([]string, len(job.MoleculeIDs))
	for i, id := range job.MoleculeIDs {
		moleculeIDs[i] = string(id)
	}
	s.publish(ctx, kafkaclient.TopicPredictionRequested, "prediction.requested", kafkaclient.PredictionRequestedPayload{
		JobID:       string(job.ID),
		MoleculeIDs: moleculeIDs,
		ModelName:   s.opts.ModelName,
		RequestedAt: time.Now().UTC(),
	})
}

func (s *Service) handleDispatchFailure(ctx context.Context, job *Job, err error) {
	if errors.GetCode(err).Kind() == errors.KindTransient {
		s.scheduleRetry(ctx, job, mtypes.JobStateQueued, err)
		return
	}
	s.deadLetter(ctx, job, err.Error())
}

// scheduleRetry bumps the attempt count and reschedules the job, or
// dead-letters it once MaxRetries has been exhausted.
func (s *Service) scheduleRetry(ctx context.Context, job *Job, resumeState mtypes.PredictionJobState, cause error) {
	attempt := job.AttemptCount + 1
	if attempt > s.opts.MaxRetries {
		s.deadLetter(ctx, job, errors.Wrap(cause, errors.CodeRetriesExhausted, "prediction retries exhausted").Error())
		return
	}
	nextAttempt := time.Now().UTC().Add(s.backoff.next(attempt))
	if err := s.repo.ScheduleRetry(ctx, job.ID, resumeState, cause.Error(), nextAttempt); err != nil {
		s.logger.Error("failed to schedule prediction retry", "job_id", string(job.ID), "error", err.Error())
		return
	}
	s.publish(ctx, kafkaclient.TopicPredictionFailed, "prediction.failed", kafkaclient.PredictionFailedPayload{
		JobID:     string(job.ID),
		Attempt:   attempt,
		Retryable: true,
		Reason:    cause.Error(),
		FailedAt:  time.Now().UTC(),
	})
}

func (s *Service) deadLetter(ctx context.Context, job *Job, reason string) {
	if err := s.repo.MarkDeadLettered(ctx, job.ID, reason); err != nil {
		s.logger.Error("failed to mark job dead-lettered", "job_id", string(job.ID), "error", err.Error())
		return
	}
	for _, id := range job.MoleculeIDs {
		s.publish(ctx, kafkaclient.TopicPredictionDeadLetter, "prediction.dead_lettered", kafkaclient.PredictionDeadLetteredPayload{
			JobID:          string(job.ID),
			MoleculeID:     string(id),
			Attempts:       job.AttemptCount + 1,
			LastReason:     reason,
			DeadLetteredAt: time.Now().UTC(),
		})
		s.releaseOne(ctx, id)
	}
}

func (s *Service) finalizeCancelled(ctx context.Context, job *Job) {
	if err := s.repo.MarkCancelled(ctx, job.ID); err != nil {
		s.logger.Error("failed to mark job cancelled", "job_id", string(job.ID), "error", err.Error())
		return
	}
	for _, id := range job.MoleculeIDs {
		s.releaseOne(ctx, id)
	}
}

func (s *Service) releaseOne(ctx context.Context, id common.ID) {
	if err := s.active.Release(ctx, string(id)); err != nil {
		s.logger.Warn("failed to release active-job claim", "molecule_id", string(id), "error", err.Error())
	}
}

// PollDispatched claims up to the coordinator's batch size of
// Dispatched/Polling jobs and checks each against the predictor. A job still
// running is rescheduled for another poll; a completed job has its results
// recorded as observations and is marked Succeeded.
func (s *Service) PollDispatched(ctx context.Context) error {
	jobs, err := s.repo.ClaimPollable(ctx, s.opts.BatchSize)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		s.pollOne(ctx, job)
	}
	return nil
}

func (s *Service) pollOne(ctx context.Context, job *Job) {
	if job.CancellationRequested {
		s.finalizeCancelled(ctx, job)
		return
	}

	outcome, err := s.predictor.Poll(ctx, job.ExternalRef)
	if err != nil {
		s.handlePollFailure(ctx, job, err)
		return
	}
	if !outcome.Done {
		nextAttempt := time.Now().UTC().Add(s.backoff.next(1))
		if err := s.repo.ScheduleRetry(ctx, job.ID, mtypes.JobStatePolling, "", nextAttempt); err != nil {
			s.logger.Error("failed to reschedule poll", "job_id", string(job.ID), "error", err.Error())
		}
		return
	}

	for _, result := range outcome.Results {
		obs, err := molecule.NewPropertyObservation(result.MoleculeID, result.Property, "prediction", result.Value, result.Units)
		if err != nil {
			s.logger.Warn("discarding malformed prediction result", "job_id", string(job.ID), "error", err.Error())
			continue
		}
		if err := s.molecules.RecordObservations(ctx, result.MoleculeID, []*molecule.PropertyObservation{obs}); err != nil {
			s.logger.Error("failed to record prediction observation", "job_id", string(job.ID), "error", err.Error())
			continue
		}
		s.publish(ctx, kafkaclient.TopicPredictionSucceeded, "prediction.succeeded", kafkaclient.PredictionSucceededPayload{
			JobID:       string(job.ID),
			MoleculeID:  string(result.MoleculeID),
			Property:    result.Property,
			Value:       result.Value,
			Units:       result.Units,
			Confidence:  result.Confidence,
			CompletedAt: time.Now().UTC(),
		})
		s.publish(ctx, kafkaclient.TopicPredictionReady, "prediction.ready", kafkaclient.PredictionReadyPayload{
			MoleculeID: string(result.MoleculeID),
			Property:   result.Property,
			Value:      result.Value,
			Confidence: result.Confidence,
			ReadyAt:    time.Now().UTC(),
		})
	}

	if err := s.repo.MarkSucceeded(ctx, job.ID); err != nil {
		s.logger.Error("failed to mark job succeeded", "job_id", string(job.ID), "error", err.Error())
		return
	}
	for _, id := range job.MoleculeIDs {
		s.releaseOne(ctx, id)
	}
}

func (s *Service) handlePollFailure(ctx context.Context, job *Job, err error) {
	if errors.GetCode(err).Kind() == errors.KindTransient {
		s.scheduleRetry(ctx, job, mtypes.JobStatePolling, err)
		return
	}
	s.deadLetter(ctx, job, err.Error())
}

// Cancel flags a job for cancellation. A job already mid-dispatch or
// mid-poll observes the flag on its next claim and finalizes as Cancelled
// rather than continuing its retry cycle; a still-Queued job is finalized
// immediately since no external submission has happened yet to race with.
func (s *Service) Cancel(ctx context.Context, jobID common.ID, reason string) error {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.isTerminal() {
		return nil
	}
	if job.State == mtypes.JobStateQueued {
		s.finalizeCancelled(ctx, job)
		return nil
	}
	return s.repo.RequestCancellation(ctx, jobID)
}

func (s *Service) publish(ctx context.Context, topic, eventType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, topic, eventType, payload); err != nil {
		s.logger.Error("failed to publish prediction event", "topic", topic, "error", err.Error())
	}
}
