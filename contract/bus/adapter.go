package bus

// Adapter is a convenience interface that combines exchange-level and message-level publishing.
// Any adapter that implements both AdvancedBus and Publisher can back either scheduling strategy.
//
// This keeps schedulers decoupled from concrete transports while enabling simple injection
// of user-provided adapters (RabbitMQ, in-memory, etc.).
type Adapter interface {
	AdvancedBus
	Publisher
}
