package rabbitmq_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/next-trace/scg-future-publish/adapters/rabbitmq"
	cbus "github.com/next-trace/scg-future-publish/contract/bus"
	berr "github.com/next-trace/scg-future-publish/contract/errors"
	"github.com/next-trace/scg-future-publish/conventions"
	"github.com/next-trace/scg-future-publish/serializer"
	"github.com/next-trace/scg-future-publish/topology"
)

type OrderPlaced struct{ ID string }

func newAdapter(ch *fakeChannel, opts ...rabbitmq.Option) *rabbitmq.Adapter {
	return rabbitmq.New(rabbitmq.Static(ch), opts...)
}

func TestRabbitMQ_DelayTopologyArguments(t *testing.T) {
	ch := &fakeChannel{}
	tns := serializer.NewTypeNames()
	conv := conventions.New(tns, conventions.WithExchangeNames(map[reflect.Type]string{
		reflect.TypeOf(OrderPlaced{}): "orders",
	}))
	ad := newAdapter(ch, rabbitmq.WithTypeNames(tns), rabbitmq.WithConventions(conv))

	ex, err := topology.NewDelayTopologyBuilder(ad, conv).Prepare(t.Context(), reflect.TypeOf(OrderPlaced{}), 90*time.Second)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	if ex.Name != "orders_00_01_30" || ex.Type != cbus.ExchangeTopic {
		t.Fatalf("delay exchange: %+v", ex)
	}

	want := []exchangeDecl{
		{name: "orders", kind: "topic", durable: true},
		{name: "orders_00_01_30", kind: "topic", durable: true},
	}
	if !reflect.DeepEqual(ch.exchanges, want) {
		t.Fatalf("exchanges: %+v", ch.exchanges)
	}

	if len(ch.queues) != 1 {
		t.Fatalf("want 1 queue, got %d", len(ch.queues))
	}

	q := ch.queues[0]
	if !q.durable || q.exclusive {
		t.Fatalf("queue flags: %+v", q)
	}

	wantArgs := amqp.Table{"x-message-ttl": int32(90000), "x-dead-letter-exchange": "orders"}
	if !reflect.DeepEqual(q.args, wantArgs) {
		t.Fatalf("queue args: %#v", q.args)
	}

	if len(ch.binds) != 1 || ch.binds[0] != (bindCall{queue: q.name, key: "#", exchange: "orders_00_01_30"}) {
		t.Fatalf("binds: %+v", ch.binds)
	}
}

func TestRabbitMQ_LongDelayTTL(t *testing.T) {
	tests := []struct {
		name  string
		delay time.Duration
		ms    int64
		ttl   any
	}{
		{name: "largest int32 bucket", delay: 2147483 * time.Second, ms: 2147483000, ttl: int32(2147483000)},
		{name: "2^31 ms truncates into int32", delay: 1 << 31 * time.Millisecond, ms: 2147483000, ttl: int32(2147483000)},
		{name: "first bucket past int32", delay: 2147484 * time.Second, ms: 2147484000, ttl: int64(2147484000)},
		{name: "30 days", delay: 720 * time.Hour, ms: 2592000000, ttl: int64(2592000000)},
		{name: "largest accepted bucket", delay: 4294967 * time.Second, ms: 4294967000, ttl: int64(4294967000)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ch := &fakeChannel{}
			tns := serializer.NewTypeNames()
			conv := conventions.New(tns)
			ad := newAdapter(ch, rabbitmq.WithTypeNames(tns), rabbitmq.WithConventions(conv))

			if _, err := topology.NewDelayTopologyBuilder(ad, conv).Prepare(t.Context(), reflect.TypeOf(OrderPlaced{}), tc.delay); err != nil {
				t.Fatalf("prepare: %v", err)
			}

			if len(ch.queues) != 1 {
				t.Fatalf("want 1 queue, got %d", len(ch.queues))
			}

			if got := ch.queues[0].args["x-message-ttl"]; got != tc.ttl {
				t.Fatalf("x-message-ttl: got %#v want %#v", got, tc.ttl)
			}

			if got := int64(topology.BucketFor(tc.delay).TTL()); got != tc.ms {
				t.Fatalf("bucket TTL: got %d want %d", got, tc.ms)
			}
		})
	}
}

func TestRabbitMQ_DelayBeyondMaxTTLIsRejected(t *testing.T) {
	for _, delay := range []time.Duration{4294968 * time.Second, 1200 * time.Hour} {
		ch := &fakeChannel{}
		tns := serializer.NewTypeNames()
		conv := conventions.New(tns)
		ad := newAdapter(ch, rabbitmq.WithTypeNames(tns), rabbitmq.WithConventions(conv))

		_, err := topology.NewDelayTopologyBuilder(ad, conv).Prepare(t.Context(), reflect.TypeOf(OrderPlaced{}), delay)
		if !errors.Is(err, berr.ErrInvalidDelay) {
			t.Fatalf("%s: want ErrInvalidDelay, got %v", delay, err)
		}

		if errors.Is(err, berr.ErrTopologyConflict) {
			t.Fatalf("%s: out-of-range TTL reported as a conflict: %v", delay, err)
		}

		if len(ch.queues) != 0 || len(ch.binds) != 0 {
			t.Fatalf("%s: queue reached the broker: %+v", delay, ch.queues)
		}
	}
}

func TestRabbitMQ_PlainQueueHasNoArguments(t *testing.T) {
	ch := &fakeChannel{}
	ad := newAdapter(ch)

	if _, err := ad.QueueDeclare(t.Context(), "plain", cbus.QueueSpec{Durable: true}); err != nil {
		t.Fatalf("declare: %v", err)
	}

	if ch.queues[0].args != nil {
		t.Fatalf("want no args, got %#v", ch.queues[0].args)
	}
}

func TestRabbitMQ_ZeroDelayQueueKeepsZeroTTL(t *testing.T) {
	ch := &fakeChannel{}
	ad := newAdapter(ch)

	if _, err := ad.QueueDeclare(t.Context(), "now", cbus.DelayQueueSpec(0, "target")); err != nil {
		t.Fatalf("declare: %v", err)
	}

	if ttl, ok := ch.queues[0].args["x-message-ttl"]; !ok || ttl != int32(0) {
		t.Fatalf("ttl arg: %#v", ch.queues[0].args)
	}
}

func TestRabbitMQ_PreconditionFailedIsTopologyConflict(t *testing.T) {
	ch := &fakeChannel{declareErr: &amqp.Error{Code: amqp.PreconditionFailed, Reason: "PRECONDITION_FAILED - inequivalent arg 'type'"}}
	ad := newAdapter(ch)

	_, err := ad.ExchangeDeclare(t.Context(), "orders", cbus.ExchangeTopic)
	if !errors.Is(err, berr.ErrTopologyConflict) {
		t.Fatalf("want ErrTopologyConflict, got %v", err)
	}

	ch.declareErr = errors.New("socket closed")

	_, err = ad.QueueDeclare(t.Context(), "q", cbus.QueueSpec{})
	if !errors.Is(err, berr.ErrDeclareFailed) || errors.Is(err, berr.ErrTopologyConflict) {
		t.Fatalf("want ErrDeclareFailed only, got %v", err)
	}
}

func TestRabbitMQ_PublishToExchangeProperties(t *testing.T) {
	ch := &fakeChannel{}
	tns := serializer.NewTypeNames()
	prop := cbus.HeaderPropagatorFunc(func(_ context.Context, h map[string]string) { h["traceparent"] = "00-abc" })
	ad := newAdapter(ch, rabbitmq.WithTypeNames(tns), rabbitmq.WithPropagator(prop))

	callerHeaders := map[string]string{"tenant": "t1"}
	env := cbus.Envelope{
		Message:    OrderPlaced{ID: "42"},
		Properties: cbus.Properties{DeliveryMode: cbus.Transient, Headers: callerHeaders},
	}

	err := ad.PublishToExchange(t.Context(), cbus.Exchange{Name: "orders_00_00_05", Type: "topic"}, "#", false, false, env)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	calls := ch.published()
	if len(calls) != 1 {
		t.Fatalf("want 1 publish, got %d", len(calls))
	}

	c := calls[0]
	if c.exchange != "orders_00_00_05" || c.key != "#" || c.mandatory || c.immediate {
		t.Fatalf("routing: %+v", c)
	}

	m := c.msg
	if m.DeliveryMode != amqp.Transient {
		t.Fatalf("delivery mode: %d", m.DeliveryMode)
	}

	if m.ContentType != "application/json" || m.MessageId == "" || m.Timestamp.IsZero() {
		t.Fatalf("properties: %+v", m)
	}

	if m.Type != tns.Serialize(reflect.TypeOf(OrderPlaced{})) {
		t.Fatalf("type: %q", m.Type)
	}

	if m.Headers["tenant"] != "t1" || m.Headers["traceparent"] != "00-abc" {
		t.Fatalf("headers: %#v", m.Headers)
	}

	if len(callerHeaders) != 1 {
		t.Fatalf("caller headers mutated: %#v", callerHeaders)
	}

	var got OrderPlaced
	if err := json.Unmarshal(m.Body, &got); err != nil || got.ID != "42" {
		t.Fatalf("body %s: %v", m.Body, err)
	}
}

func TestRabbitMQ_MessageIDsAreUnique(t *testing.T) {
	ch := &fakeChannel{}
	ad := newAdapter(ch)
	ex := cbus.Exchange{Name: "x", Type: "topic"}

	for range 2 {
		if err := ad.PublishToExchange(t.Context(), ex, "", false, false, cbus.Envelope{Message: OrderPlaced{}}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	calls := ch.published()
	if calls[0].msg.MessageId == calls[1].msg.MessageId {
		t.Fatalf("duplicate message id %q", calls[0].msg.MessageId)
	}

	if calls[0].msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("default delivery mode: %d", calls[0].msg.DeliveryMode)
	}
}

func TestRabbitMQ_WholeBusPublishDeclaresTypeExchange(t *testing.T) {
	ch := &fakeChannel{}
	tns := serializer.NewTypeNames()
	ad := newAdapter(ch, rabbitmq.WithTypeNames(tns), rabbitmq.WithPersistent(false))

	if err := ad.Publish(t.Context(), &OrderPlaced{ID: "1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	name := tns.Serialize(reflect.TypeOf(OrderPlaced{}))
	if len(ch.exchanges) != 1 || ch.exchanges[0] != (exchangeDecl{name: name, kind: "topic", durable: true}) {
		t.Fatalf("exchanges: %+v", ch.exchanges)
	}

	c := ch.published()[0]
	if c.exchange != name || c.key != "" {
		t.Fatalf("routing: %q %q", c.exchange, c.key)
	}

	if c.msg.DeliveryMode != amqp.Transient {
		t.Fatalf("delivery mode: %d", c.msg.DeliveryMode)
	}

	if err := ad.PublishAsync(t.Context(), OrderPlaced{ID: "2"}).Wait(t.Context()); err != nil {
		t.Fatalf("publish async: %v", err)
	}

	if len(ch.published()) != 2 {
		t.Fatalf("want 2 publishes, got %d", len(ch.published()))
	}
}

func TestRabbitMQ_NilMessage(t *testing.T) {
	ch := &fakeChannel{}
	ad := newAdapter(ch)

	if err := ad.Publish(t.Context(), nil); !errors.Is(err, berr.ErrNilMessage) {
		t.Fatalf("want ErrNilMessage, got %v", err)
	}

	if err := ad.PublishAsync(t.Context(), (*OrderPlaced)(nil)).Wait(t.Context()); !errors.Is(err, berr.ErrNilMessage) {
		t.Fatalf("want ErrNilMessage, got %v", err)
	}

	if len(ch.exchanges) != 0 || len(ch.published()) != 0 {
		t.Fatalf("no broker calls expected")
	}
}

func TestRabbitMQ_PublisherConfirms(t *testing.T) {
	ex := cbus.Exchange{Name: "x", Type: "topic"}
	env := cbus.Envelope{Message: OrderPlaced{}}

	acked := newAdapter(&fakeChannel{confirm: fakeConfirmation{acked: true}})
	if err := acked.PublishToExchange(t.Context(), ex, "#", false, false, env); err != nil {
		t.Fatalf("acked publish: %v", err)
	}

	nacked := newAdapter(&fakeChannel{confirm: fakeConfirmation{acked: false}})
	if err := nacked.PublishToExchange(t.Context(), ex, "#", false, false, env); !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("want ErrPublishFailed on nack, got %v", err)
	}

	err := nacked.PublishToExchangeAsync(t.Context(), ex, "#", false, false, env).Wait(t.Context())
	if !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("want ErrPublishFailed on async nack, got %v", err)
	}

	waitErr := newAdapter(&fakeChannel{confirm: fakeConfirmation{err: context.Canceled}})
	if err := waitErr.PublishToExchange(t.Context(), ex, "#", false, false, env); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestRabbitMQ_Publish_ErrorWrapping_And_ContextCancel(t *testing.T) {
	ex := cbus.Exchange{Name: "x", Type: "topic"}
	env := cbus.Envelope{Message: OrderPlaced{}}

	boom := errors.New("boom")
	ad := newAdapter(&fakeChannel{publishErr: boom})

	err := ad.PublishToExchange(t.Context(), ex, "#", false, false, env)
	if !errors.Is(err, berr.ErrPublishFailed) || !errors.Is(err, boom) {
		t.Fatalf("want wrapped ErrPublishFailed, got %v", err)
	}

	ad2 := newAdapter(&fakeChannel{publishErr: context.Canceled})
	if err := ad2.PublishToExchange(t.Context(), ex, "#", false, false, env); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	ch := &fakeChannel{}
	if err := newAdapter(ch).PublishToExchange(ctx, ex, "#", false, false, env); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}

	if len(ch.published()) != 0 {
		t.Fatalf("cancelled publish reached the channel")
	}
}

func TestRabbitMQ_SerializationFailure(t *testing.T) {
	ch := &fakeChannel{}
	ad := newAdapter(ch)

	err := ad.PublishToExchange(t.Context(), cbus.Exchange{Name: "x"}, "#", false, false, cbus.Envelope{Message: make(chan int)})
	if !errors.Is(err, berr.ErrSerializationFailed) {
		t.Fatalf("want ErrSerializationFailed, got %v", err)
	}

	if len(ch.published()) != 0 {
		t.Fatalf("unserializable message reached the channel")
	}
}

func TestRabbitMQ_NilProvider(t *testing.T) {
	ad := rabbitmq.New(nil)

	if _, err := ad.ExchangeDeclare(t.Context(), "x", "topic"); !errors.Is(err, berr.ErrDeclareFailed) {
		t.Fatalf("want ErrDeclareFailed, got %v", err)
	}

	err := ad.PublishToExchange(t.Context(), cbus.Exchange{Name: "x"}, "", false, false, cbus.Envelope{Message: 1})
	if !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("want ErrPublishFailed, got %v", err)
	}
}
