package prediction

import "context"

// Publisher is the narrow event-emission capability the prediction
// coordinator needs. Shaped identically to ingestion.Publisher so the same
// kafka.EnvelopePublisher adapter satisfies both.
type Publisher interface {
	Publish(ctx context.Context, topic, eventType string, payload interface{}) error
}
