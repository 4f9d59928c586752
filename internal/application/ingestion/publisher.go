package ingestion

import "context"

// Publisher is the narrow event-emission capability the ingestion pipeline
// needs: hand an envelope payload to a named topic. Kept narrow so the
// service can be tested without a real broker; the production adapter
// wraps *kafka.Producer together with kafka.NewEventEnvelope/ToMessage.
type Publisher interface {
	Publish(ctx context.Context, topic, eventType string, payload interface{}) error
}
