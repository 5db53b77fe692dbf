package bus

import "context"

// AdvancedBus exposes explicit topology and exchange-level publishing.
// The dead-letter scheduler is built on it.
type AdvancedBus interface {
	TopologyDeclarer

	// PublishToExchange sends env to exchange with routingKey. It returns once the broker accepted
	// the message (or the adapter buffered it, when the transport has no confirmation).
	PublishToExchange(
		ctx context.Context,
		exchange Exchange,
		routingKey string,
		mandatory, immediate bool,
		env Envelope,
	) error
	// PublishToExchangeAsync is the non-blocking form of PublishToExchange.
	PublishToExchangeAsync(
		ctx context.Context,
		exchange Exchange,
		routingKey string,
		mandatory, immediate bool,
		env Envelope,
	) *Future
}

// Publisher publishes whole messages; the destination is derived from the message type.
// Library users provide an implementation that maps to RabbitMQ/NATS/Kafka etc.
type Publisher interface {
	Publish(ctx context.Context, msg any) error
	PublishAsync(ctx context.Context, msg any) *Future
}
