package rabbitmq_test

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/next-trace/scg-future-publish/adapters/rabbitmq"
)

type exchangeDecl struct {
	name, kind string
	durable    bool
}

type queueDecl struct {
	name      string
	durable   bool
	exclusive bool
	args      amqp.Table
}

type bindCall struct{ queue, key, exchange string }

type publishCall struct {
	exchange, key        string
	mandatory, immediate bool
	msg                  amqp.Publishing
}

type fakeConfirmation struct {
	acked bool
	err   error
}

func (c fakeConfirmation) WaitContext(context.Context) (bool, error) { return c.acked, c.err }

type fakeChannel struct {
	mu        sync.Mutex
	exchanges []exchangeDecl
	queues    []queueDecl
	binds     []bindCall
	publishes []publishCall

	declareErr error
	publishErr error
	confirm    rabbitmq.Confirmation
}

var _ rabbitmq.Channel = (*fakeChannel)(nil)

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.exchanges = append(f.exchanges, exchangeDecl{name: name, kind: kind, durable: durable})

	return f.declareErr
}

func (f *fakeChannel) QueueDeclare(name string, durable, _, exclusive, _ bool, args amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queues = append(f.queues, queueDecl{name: name, durable: durable, exclusive: exclusive, args: args})

	if f.declareErr != nil {
		return amqp.Queue{}, f.declareErr
	}

	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.binds = append(f.binds, bindCall{queue: name, key: key, exchange: exchange})

	return f.declareErr
}

func (f *fakeChannel) PublishWithConfirm(
	_ context.Context,
	exchange, key string,
	mandatory, immediate bool,
	msg amqp.Publishing,
) (rabbitmq.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.publishes = append(f.publishes, publishCall{exchange, key, mandatory, immediate, msg})

	if f.publishErr != nil {
		return nil, f.publishErr
	}

	return f.confirm, nil
}

func (f *fakeChannel) published() []publishCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]publishCall(nil), f.publishes...)
}
