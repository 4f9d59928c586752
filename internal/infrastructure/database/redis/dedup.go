package redis

import (
	"context"
	"time"

	"github.com/cro-platform/molcore/pkg/errors"
)

// EventDeduplicator remembers event IDs the lifecycle orchestrator has
// already applied so a redelivered Kafka message does not drive a state
// transition twice. It satisfies lifecycle.EventDeduplicator.
type EventDeduplicator struct {
	client *Client
	prefix string
	window time.Duration
}

// NewEventDeduplicator builds a deduplicator keyed under "molcore:dedup:event:" with
// the given retention window. A window of zero falls back to 24h.
func NewEventDeduplicator(client *Client, window time.Duration) *EventDeduplicator {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &EventDeduplicator{
		client: client,
		prefix: "molcore:dedup:event:",
		window: window,
	}
}

// MarkSeen records eventID and reports whether it had already been seen
// within the retention window. The SETNX is the single point of truth: two
// concurrent consumers racing on the same event_id will have exactly one
// SETNX succeed, so only one of them proceeds to apply the transition.
func (d *EventDeduplicator) MarkSeen(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	ok, err := d.client.GetUnderlyingClient().SetNX(ctx, d.prefix+eventID, time.Now().UTC().Format(time.RFC3339Nano), d.window).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.CodeCacheError, "dedup SETNX failed")
	}
	return !ok, nil
}
