package events

import "context"

// Publisher matches the narrow publish contract used throughout the
// application layer (ingestion.Publisher, prediction.Publisher).
type Publisher interface {
	Publish(ctx context.Context, topic, eventType string, payload interface{}) error
}
