package bus

import "context"

// Exchange kinds understood by the adapters.
const (
	ExchangeTopic   = "topic"
	ExchangeDirect  = "direct"
	ExchangeFanout  = "fanout"
	ExchangeHeaders = "headers"
)

// MatchAll is the topic routing key that matches every published key.
const MatchAll = "#"

// Exchange references a declared broker exchange.
type Exchange struct {
	Name string
	Type string
}

// QueueSpec holds the attributes a queue is declared with.
// PerQueueTTL is in milliseconds; zero with an empty DeadLetterExchange declares a plain queue.
type QueueSpec struct {
	Durable            bool
	Exclusive          bool
	AutoDelete         bool
	PerQueueTTL        int
	DeadLetterExchange string
}

// DelayQueueSpec returns the spec of a durable, non-exclusive queue that dead-letters
// into dlx after ttlMillis.
func DelayQueueSpec(ttlMillis int, dlx string) QueueSpec {
	return QueueSpec{
		Durable:            true,
		PerQueueTTL:        ttlMillis,
		DeadLetterExchange: dlx,
	}
}

// Queue references a declared broker queue together with the attributes it was declared with.
type Queue struct {
	Name string
	Spec QueueSpec
}

// Binding is an exchange-to-queue binding.
type Binding struct {
	Exchange   Exchange
	Queue      Queue
	RoutingKey string
}

// TopologyDeclarer declares broker topology. Every call must be idempotent: declaring a resource
// that already exists with matching attributes succeeds, mismatching attributes fail with
// errors.ErrTopologyConflict.
type TopologyDeclarer interface {
	ExchangeDeclare(ctx context.Context, name, kind string) (Exchange, error)
	QueueDeclare(ctx context.Context, name string, spec QueueSpec) (Queue, error)
	Bind(ctx context.Context, exchange Exchange, queue Queue, routingKey string) (Binding, error)
}
