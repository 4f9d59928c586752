package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/cro-platform/molcore/internal/domain/molecule"
	kafkaclient "github.com/cro-platform/molcore/internal/infrastructure/messaging/kafka"
	prometheusmon "github.com/cro-platform/molcore/internal/infrastructure/monitoring/prometheus"
	"github.com/cro-platform/molcore/pkg/errors"
	"github.com/cro-platform/molcore/pkg/types/common"
	mtypes "github.com/cro-platform/molcore/pkg/types/molecule"
)

// decodeEnvelope unmarshals the EventEnvelope carried in a Kafka message
// value and decodes its payload into target, returning the envelope's
// event_id separately since that identifier lives on the envelope, not the
// domain payload.
func decodeEnvelope(raw []byte, target interface{}) (eventID string, err error) {
	env, err := kafkaclient.MessageToEventEnvelope(&common.Message{Value: raw})
	if err != nil {
		return "", errors.Wrap(err, errors.CodeMessageQueueError, "failed to decode event envelope")
	}
	if err := env.DecodePayload(target); err != nil {
		return "", errors.Wrap(err, errors.CodeMessageQueueError, "failed to decode event payload")
	}
	return env.EventID, nil
}

// dedupWindow bounds how long a consumed event_id is remembered. A replay
// outside this window is still safe because TransitionState is a
// compare-and-set write, but staying within it avoids relogging transitions
// that were already applied.
const dedupWindow = 24 * time.Hour

// EventDeduplicator remembers event IDs that have already been applied so a
// redelivered Kafka message does not drive a transition twice within the
// retention window.
type EventDeduplicator interface {
	// MarkSeen records eventID and reports whether it had already been seen.
	MarkSeen(ctx context.Context, eventID string) (alreadySeen bool, err error)
}

// KafkaSubscriber is the subset of Consumer the orchestrator needs: binding
// a topic to a handler. Kept narrow so the orchestrator can be tested
// without a real broker.
type KafkaSubscriber interface {
	Subscribe(topic string, handler common.MessageHandler) error
}

// Orchestrator is the C6 lifecycle orchestrator. It is the only caller of
// molecule.Service.TransitionState: every state change on a Molecule is
// driven by an event this orchestrator consumes from the ingestion pipeline,
// the prediction coordinator, or a CRO-submission collaborator, never by a
// direct caller.
type Orchestrator struct {
	molecules *molecule.Service
	dedup     EventDeduplicator
	rejected  prometheusmon.CounterVec
	logger    Logger
}

// NewOrchestrator constructs the lifecycle orchestrator. rejected may be nil,
// in which case illegal-transition rejections are only logged.
func NewOrchestrator(molecules *molecule.Service, dedup EventDeduplicator, rejected prometheusmon.CounterVec, logger Logger) *Orchestrator {
	return &Orchestrator{
		molecules: molecules,
		dedup:     dedup,
		rejected:  rejected,
		logger:    logger,
	}
}

// Subscribe binds the orchestrator's handlers to the lifecycle-relevant
// topics on the given consumer. Call once per consumer group at startup.
func (o *Orchestrator) Subscribe(consumer KafkaSubscriber, topics lifecycleTopics) error {
	bindings := []struct {
		topic   string
		handler common.MessageHandler
	}{
		{topics.UploadValidated, o.handleUploadValidated},
		{topics.PredictionRequested, o.handlePredictionRequested},
		{topics.PredictionSucceeded, o.handlePredictionSucceeded},
		{topics.PredictionDeadLettered, o.handlePredictionDeadLettered},
		{topics.MoleculeSubmitted, o.handleMoleculeSubmitted},
		{topics.MoleculeResultsIn, o.handleMoleculeResultsAvailable},
	}
	for _, b := range bindings {
		if err := consumer.Subscribe(b.topic, b.handler); err != nil {
			return errors.Wrap(err, errors.CodeMessageQueueError, "failed to subscribe orchestrator handler")
		}
	}
	return nil
}

// lifecycleTopics names the topics the orchestrator binds to. Defined as a
// struct rather than importing the kafka package's constants directly so the
// orchestrator stays decoupled from the transport's topic-naming choices.
type lifecycleTopics struct {
	UploadValidated        string
	PredictionRequested    string
	PredictionSucceeded    string
	PredictionDeadLettered string
	MoleculeSubmitted      string
	MoleculeResultsIn      string
}

// DefaultTopics returns the standard topic bindings backed by the platform's
// Kafka topic constants. Callers outside the package cannot name
// lifecycleTopics directly, so this is the supported way to obtain a value
// to pass to Subscribe.
func DefaultTopics() lifecycleTopics {
	return lifecycleTopics{
		UploadValidated:        kafkaclient.TopicUploadValidated,
		PredictionRequested:    kafkaclient.TopicPredictionRequested,
		PredictionSucceeded:    kafkaclient.TopicPredictionSucceeded,
		PredictionDeadLettered: kafkaclient.TopicPredictionDeadLetter,
		MoleculeSubmitted:      kafkaclient.TopicMoleculeSubmitted,
		MoleculeResultsIn:      kafkaclient.TopicMoleculeResultsIn,
	}
}

func (o *Orchestrator) handleUploadValidated(ctx context.Context, msg *common.Message) error {
	var payload kafkaclient.UploadValidatedPayload
	eventID, err := decodeEnvelope(msg.Value, &payload)
	if err != nil {
		return err
	}
	return o.applyTransition(ctx, eventID, common.ID(payload.MoleculeID), mtypes.StateUploaded, mtypes.StateValidated)
}

func (o *Orchestrator) handlePredictionRequested(ctx context.Context, msg *common.Message) error {
	var payload kafkaclient.PredictionRequestedPayload
	eventID, err := decodeEnvelope(msg.Value, &payload)
	if err != nil {
		return err
	}
	for _, id := range payload.MoleculeIDs {
		perMoleculeEventID := fmt.Sprintf("%s:%s", eventID, id)
		if err := o.applyTransition(ctx, perMoleculeEventID, common.ID(id), mtypes.StateValidated, mtypes.StatePredictionPending); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) handlePredictionSucceeded(ctx context.Context, msg *common.Message) error {
	var payload kafkaclient.PredictionSucceededPayload
	eventID, err := decodeEnvelope(msg.Value, &payload)
	if err != nil {
		return err
	}
	return o.applyTransition(ctx, eventID, common.ID(payload.MoleculeID), mtypes.StatePredictionPending, mtypes.StatePredictionReady)
}

func (o *Orchestrator) handlePredictionDeadLettered(ctx context.Context, msg *common.Message) error {
	var payload kafkaclient.PredictionDeadLetteredPayload
	eventID, err := decodeEnvelope(msg.Value, &payload)
	if err != nil {
		return err
	}
	return o.applyTransition(ctx, eventID, common.ID(payload.MoleculeID), mtypes.StatePredictionPending, mtypes.StatePredictionFailed)
}

func (o *Orchestrator) handleMoleculeSubmitted(ctx context.Context, msg *common.Message) error {
	var payload kafkaclient.MoleculeSubmittedPayload
	eventID, err := decodeEnvelope(msg.Value, &payload)
	if err != nil {
		return err
	}
	mol, err := o.molecules.GetMolecule(ctx, common.ID(payload.MoleculeID))
	if err != nil {
		return err
	}
	return o.applyTransition(ctx, eventID, mol.ID, mol.State, mtypes.StateSubmittedForAssay)
}

func (o *Orchestrator) handleMoleculeResultsAvailable(ctx context.Context, msg *common.Message) error {
	var payload kafkaclient.MoleculeResultsAvailablePayload
	eventID, err := decodeEnvelope(msg.Value, &payload)
	if err != nil {
		return err
	}
	return o.applyTransition(ctx, eventID, common.ID(payload.MoleculeID), mtypes.StateSubmittedForAssay, mtypes.StateResultsAvailable)
}

// RequestRetry performs the one transition this orchestrator exposes as a
// direct call rather than an event reaction: an operator or an upstream
// service explicitly asking to re-dispatch a molecule stuck in
// PredictionFailed. It is still routed through applyTransition so it gets
// the same illegal-transition handling as event-driven moves.
func (o *Orchestrator) RequestRetry(ctx context.Context, moleculeID common.ID) error {
	return o.applyTransition(ctx, "retry:"+string(moleculeID)+":"+time.Now().UTC().Format(time.RFC3339Nano), moleculeID, mtypes.StatePredictionFailed, mtypes.StatePredictionPending)
}

// applyTransition deduplicates by event_id, drives the transition through
// molecule.Service (the sole path to TransitionState), and on an illegal
// edge logs the rejected event for replay analysis rather than dropping it
// silently.
func (o *Orchestrator) applyTransition(ctx context.Context, eventID string, id common.ID, from, to mtypes.MoleculeState) error {
	if eventID != "" && o.dedup != nil {
		seen, err := o.dedup.MarkSeen(ctx, eventID)
		if err != nil {
			return errors.Wrap(err, errors.CodeCacheError, "dedup check failed")
		}
		if seen {
			o.logger.Debug("duplicate lifecycle event ignored",
				"event_id", eventID, "molecule_id", string(id))
			return nil
		}
	}

	err := o.molecules.TransitionState(ctx, id, from, to)
	if err == nil {
		return nil
	}

	if errors.IsCode(err, errors.CodeIllegalStateTransition) {
		o.logger.Warn("rejected illegal lifecycle transition",
			"event_id", eventID, "molecule_id", string(id),
			"from", string(from), "to", string(to))
		if o.rejected != nil {
			o.rejected.WithLabelValues(string(from), string(to)).Inc()
		}
		return nil
	}
	return err
}
