package rabbitmq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the slice of an AMQP channel the adapter needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	// PublishWithConfirm publishes msg. The confirmation is nil unless the channel is in confirm mode.
	PublishWithConfirm(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) (Confirmation, error)
}

// Confirmation is a pending publisher confirm.
type Confirmation interface {
	// WaitContext blocks until the broker acked (true) or nacked (false) the publish.
	WaitContext(ctx context.Context) (bool, error)
}

// ChannelProvider hands out the channel to use for the next operation.
type ChannelProvider interface {
	Channel(ctx context.Context) (Channel, error)
}

type staticProvider struct{ ch Channel }

func (p staticProvider) Channel(context.Context) (Channel, error) { return p.ch, nil }

// Static returns a provider that always hands out ch.
func Static(ch Channel) ChannelProvider { return staticProvider{ch: ch} }

// amqpChannel adapts *amqp.Channel to Channel.
type amqpChannel struct{ ch *amqp.Channel }

var _ Channel = amqpChannel{}

func (c amqpChannel) ExchangeDeclare(
	name, kind string,
	durable, autoDelete, internal, noWait bool,
	args amqp.Table,
) error {
	return c.ch.ExchangeDeclare(name, kind, durable, autoDelete, internal, noWait, args)
}

func (c amqpChannel) QueueDeclare(
	name string,
	durable, autoDelete, exclusive, noWait bool,
	args amqp.Table,
) (amqp.Queue, error) {
	return c.ch.QueueDeclare(name, durable, autoDelete, exclusive, noWait, args)
}

func (c amqpChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	return c.ch.QueueBind(name, key, exchange, noWait, args)
}

func (c amqpChannel) PublishWithConfirm(
	ctx context.Context,
	exchange, key string,
	mandatory, immediate bool,
	msg amqp.Publishing,
) (Confirmation, error) {
	dc, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, mandatory, immediate, msg)
	if err != nil || dc == nil {
		return nil, err
	}

	return dc, nil
}
