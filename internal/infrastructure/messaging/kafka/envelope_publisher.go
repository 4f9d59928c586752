package kafka

import "context"

// EnvelopePublisher adapts a Producer to the narrow Publish(topic, eventType,
// payload) capability the application-layer services (ingestion, prediction)
// depend on, so they never construct an EventEnvelope or a ProducerMessage
// themselves.
type EnvelopePublisher struct {
	producer *Producer
	source   string
}

// NewEnvelopePublisher builds an EnvelopePublisher. source identifies the
// emitting component in every envelope's Source field (e.g. "ingestion",
// "prediction").
func NewEnvelopePublisher(producer *Producer, source string) *EnvelopePublisher {
	return &EnvelopePublisher{producer: producer, source: source}
}

// Publish wraps payload in an EventEnvelope and publishes it to topic.
func (p *EnvelopePublisher) Publish(ctx context.Context, topic, eventType string, payload interface{}) error {
	env, err := NewEventEnvelope(eventType, p.source, payload)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(topic)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, msg)
}
