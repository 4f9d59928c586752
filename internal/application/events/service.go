package events

import (
	"context"

	kafkaclient "github.com/cro-platform/molcore/internal/infrastructure/messaging/kafka"
	"github.com/cro-platform/molcore/pkg/errors"
)

// Logger matches the narrow structured-logging interface used throughout the
// application layer.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

const defaultReplayLimit = 500

// Service replays the audit log onto the message bus for consumers that
// missed, or want to reprocess, the original delivery.
type Service struct {
	repo      Repository
	publisher Publisher
	logger    Logger
}

// NewService constructs the events/replay service.
func NewService(repo Repository, publisher Publisher, logger Logger) *Service {
	return &Service{repo: repo, publisher: publisher, logger: logger}
}

// ReplayEvents re-emits every audit_log entry with seq > since, in order, on
// TopicAuditLog, each wrapped in an AuditReplayedPayload so a subscriber can
// tell a replay apart from the event's original delivery. Replay of old
// events is always safe: downstream handlers deduplicate by event_id or are
// compare-and-set against the current entity state, never assuming
// at-most-once delivery.
func (s *Service) ReplayEvents(ctx context.Context, since int64, limit int) (*ReplayResult, error) {
	if since < 0 {
		return nil, errors.InvalidParam("since must be >= 0")
	}
	if limit <= 0 {
		limit = defaultReplayLimit
	}

	entries, err := s.repo.ListSince(ctx, since, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to list audit log entries")
	}

	result := &ReplayResult{Entries: entries, LastSeq: since}
	for _, e := range entries {
		payload := kafkaclient.AuditReplayedPayload{
			Seq:        e.Seq,
			Actor:      e.Actor,
			Operation:  e.Operation,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			AfterState: e.AfterState,
			OccurredAt: e.OccurredAt,
			Replayed:   true,
		}
		if err := s.publisher.Publish(ctx, kafkaclient.TopicAuditLog, "audit.replayed", payload); err != nil {
			s.logger.Error("failed to republish audit entry", "seq", e.Seq, "error", err.Error())
			continue
		}
		result.Republished++
		result.LastSeq = e.Seq
	}

	s.logger.Info("replayed audit log", "since", since, "count", len(entries), "republished", result.Republished)
	return result, nil
}
