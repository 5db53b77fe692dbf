package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	cbus "github.com/next-trace/scg-future-publish/contract/bus"
	berr "github.com/next-trace/scg-future-publish/contract/errors"
	"github.com/next-trace/scg-future-publish/conventions"
	"github.com/next-trace/scg-future-publish/serializer"
	"github.com/next-trace/scg-future-publish/topology"
)

// Queue arguments understood by RabbitMQ.
const (
	argMessageTTL         = "x-message-ttl"
	argDeadLetterExchange = "x-dead-letter-exchange"

	// MaxMessageTTL is the largest x-message-ttl RabbitMQ accepts, in milliseconds (about 49.7 days).
	MaxMessageTTL = math.MaxUint32
)

type Adapter struct {
	channels    ChannelProvider
	typeNames   serializer.TypeNameSerializer
	serializer  serializer.Serializer
	conventions *conventions.Conventions
	declare     topology.PublishExchangeDeclareStrategy
	propagator  cbus.HeaderPropagator
	mode        cbus.DeliveryMode
	logger      *zap.Logger
	newID       func() string
	now         func() time.Time
}

var _ cbus.Adapter = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithPropagator injects tracing context into every published message's headers.
func WithPropagator(hp cbus.HeaderPropagator) Option {
	return func(a *Adapter) {
		if hp != nil {
			a.propagator = hp
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithTypeNames sets the type name serializer used for the AMQP Type property and, unless
// WithConventions is given too, for exchange naming.
func WithTypeNames(tns serializer.TypeNameSerializer) Option {
	return func(a *Adapter) {
		if tns != nil {
			a.typeNames = tns
		}
	}
}

func WithSerializer(s serializer.Serializer) Option {
	return func(a *Adapter) {
		if s != nil {
			a.serializer = s
		}
	}
}

func WithConventions(c *conventions.Conventions) Option {
	return func(a *Adapter) {
		if c != nil {
			a.conventions = c
		}
	}
}

// WithDeclareStrategy replaces how Publish resolves the exchange of a message type.
func WithDeclareStrategy(s topology.PublishExchangeDeclareStrategy) Option {
	return func(a *Adapter) {
		if s != nil {
			a.declare = s
		}
	}
}

// WithPersistent selects the delivery mode of whole-bus publishes and of envelopes that leave
// it unset.
func WithPersistent(persistent bool) Option {
	return func(a *Adapter) { a.mode = cbus.DeliveryModeFor(persistent) }
}

// New builds an Adapter that takes its channel from p.
func New(p ChannelProvider, opts ...Option) *Adapter {
	a := &Adapter{
		channels:   p,
		serializer: serializer.JSON{},
		propagator: cbus.NopHeaderPropagator{},
		mode:       cbus.Persistent,
		logger:     zap.NewNop(),
		newID:      uuid.NewString,
		now:        time.Now,
	}

	for _, o := range opts {
		o(a)
	}

	if a.typeNames == nil {
		a.typeNames = serializer.NewTypeNames()
	}

	if a.conventions == nil {
		a.conventions = conventions.New(a.typeNames)
	}

	if a.declare == nil {
		a.declare = topology.NewDeclareStrategy(a.conventions)
	}

	return a
}

// NewWithAMQPChannel wraps a caller-owned channel. Put it in confirm mode beforehand to have
// publishes wait for broker acks.
func NewWithAMQPChannel(ch *amqp.Channel, opts ...Option) *Adapter {
	return New(Static(amqpChannel{ch: ch}), opts...)
}

// Conventions returns the naming conventions the adapter publishes with.
func (a *Adapter) Conventions() *conventions.Conventions { return a.conventions }

// TypeNames returns the type name serializer the adapter stamps messages with.
func (a *Adapter) TypeNames() serializer.TypeNameSerializer { return a.typeNames }

func (a *Adapter) ExchangeDeclare(ctx context.Context, name, kind string) (cbus.Exchange, error) {
	ch, err := a.channel(ctx, berr.ErrDeclareFailed, "declare exchange")
	if err != nil {
		return cbus.Exchange{}, err
	}

	if err := ch.ExchangeDeclare(name, kind, true, false, false, false, nil); err != nil {
		return cbus.Exchange{}, fmt.Errorf("rabbitmq declare exchange %q: %w", name, declareError(err))
	}

	return cbus.Exchange{Name: name, Type: kind}, nil
}

func (a *Adapter) QueueDeclare(ctx context.Context, name string, spec cbus.QueueSpec) (cbus.Queue, error) {
	ch, err := a.channel(ctx, berr.ErrDeclareFailed, "declare queue")
	if err != nil {
		return cbus.Queue{}, err
	}

	args, err := queueArgs(spec)
	if err != nil {
		return cbus.Queue{}, fmt.Errorf("rabbitmq declare queue %q: %w", name, err)
	}

	q, err := ch.QueueDeclare(name, spec.Durable, spec.AutoDelete, spec.Exclusive, false, args)
	if err != nil {
		return cbus.Queue{}, fmt.Errorf("rabbitmq declare queue %q: %w", name, declareError(err))
	}

	if q.Name == "" {
		q.Name = name
	}

	return cbus.Queue{Name: q.Name, Spec: spec}, nil
}

func (a *Adapter) Bind(ctx context.Context, ex cbus.Exchange, q cbus.Queue, routingKey string) (cbus.Binding, error) {
	ch, err := a.channel(ctx, berr.ErrDeclareFailed, "bind")
	if err != nil {
		return cbus.Binding{}, err
	}

	if err := ch.QueueBind(q.Name, routingKey, ex.Name, false, nil); err != nil {
		return cbus.Binding{}, fmt.Errorf("rabbitmq bind %q to %q: %w", q.Name, ex.Name, declareError(err))
	}

	return cbus.Binding{Exchange: ex, Queue: q, RoutingKey: routingKey}, nil
}

func (a *Adapter) PublishToExchange(
	ctx context.Context,
	ex cbus.Exchange,
	routingKey string,
	mandatory, immediate bool,
	env cbus.Envelope,
) error {
	ch, err := a.channel(ctx, berr.ErrPublishFailed, "publish")
	if err != nil {
		return err
	}

	msg, err := a.publishing(ctx, env)
	if err != nil {
		return err
	}

	conf, err := ch.PublishWithConfirm(ctx, ex.Name, routingKey, mandatory, immediate, msg)
	if err != nil {
		return publishError(ex.Name, err)
	}

	if conf != nil {
		acked, err := conf.WaitContext(ctx)
		if err != nil {
			return publishError(ex.Name, err)
		}

		if !acked {
			return fmt.Errorf("rabbitmq publish to %q: broker nack: %w", ex.Name, berr.ErrPublishFailed)
		}
	}

	a.logger.Debug("published",
		zap.String("exchange", ex.Name),
		zap.String("routing_key", routingKey),
		zap.String("message_id", msg.MessageId),
		zap.String("type", msg.Type),
	)

	return nil
}

// PublishToExchangeAsync publishes off the caller's goroutine; with confirms enabled the future
// completes on the broker ack.
func (a *Adapter) PublishToExchangeAsync(
	ctx context.Context,
	ex cbus.Exchange,
	routingKey string,
	mandatory, immediate bool,
	env cbus.Envelope,
) *cbus.Future {
	return cbus.Go(func() error {
		return a.PublishToExchange(ctx, ex, routingKey, mandatory, immediate, env)
	})
}

// Publish declares the topic exchange of msg's type and publishes msg to it with an empty
// routing key.
func (a *Adapter) Publish(ctx context.Context, msg any) error {
	if conventions.IsNil(msg) {
		return fmt.Errorf("rabbitmq publish: %w", berr.ErrNilMessage)
	}

	ex, err := a.declare.DeclareExchange(ctx, a, conventions.TypeOf(msg), cbus.ExchangeTopic)
	if err != nil {
		return err
	}

	env := cbus.Envelope{Message: msg, Properties: cbus.Properties{DeliveryMode: a.mode}}

	return a.PublishToExchange(ctx, ex, "", false, false, env)
}

func (a *Adapter) PublishAsync(ctx context.Context, msg any) *cbus.Future {
	if conventions.IsNil(msg) {
		return cbus.Completed(fmt.Errorf("rabbitmq publish: %w", berr.ErrNilMessage))
	}

	return cbus.Go(func() error { return a.Publish(ctx, msg) })
}

func (a *Adapter) channel(ctx context.Context, base error, label string) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if a.channels == nil {
		return nil, fmt.Errorf("rabbitmq %s: no channel provider: %w", label, base)
	}

	ch, err := a.channels.Channel(ctx)
	if err != nil {
		if isContextErr(err) {
			return nil, err
		}

		return nil, fmt.Errorf("rabbitmq %s: %w", label, errors.Join(base, err))
	}

	return ch, nil
}

// publishing maps env onto an AMQP message, filling unset properties.
func (a *Adapter) publishing(ctx context.Context, env cbus.Envelope) (amqp.Publishing, error) {
	body, err := a.serializer.MessageToBytes(env.Message)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("rabbitmq publish: %w", err)
	}

	p := env.Properties

	if p.DeliveryMode == 0 {
		p.DeliveryMode = a.mode
	}

	if p.ContentType == "" {
		p.ContentType = contentType(a.serializer)
	}

	if p.MessageID == "" {
		p.MessageID = a.newID()
	}

	if p.Type == "" && env.Message != nil {
		p.Type = a.typeNames.Serialize(conventions.TypeOf(env.Message))
	}

	if p.Timestamp.IsZero() {
		p.Timestamp = a.now()
	}

	// copy headers to avoid mutating the caller's envelope
	hdrs := make(map[string]string, len(p.Headers)+4)
	for k, v := range p.Headers {
		hdrs[k] = v
	}

	a.propagator.Inject(ctx, hdrs)

	var table amqp.Table
	if len(hdrs) > 0 {
		table = make(amqp.Table, len(hdrs))
		for k, v := range hdrs {
			table[k] = v
		}
	}

	return amqp.Publishing{
		Headers:      table,
		ContentType:  p.ContentType,
		DeliveryMode: uint8(p.DeliveryMode),
		MessageId:    p.MessageID,
		Timestamp:    p.Timestamp,
		Type:         p.Type,
		Body:         body,
	}, nil
}

// queueArgs carries the TTL and dead-letter arguments. A queue with neither gets no arguments.
func queueArgs(spec cbus.QueueSpec) (amqp.Table, error) {
	if spec.PerQueueTTL <= 0 && spec.DeadLetterExchange == "" {
		return nil, nil
	}

	ttl, err := messageTTL(spec.PerQueueTTL)
	if err != nil {
		return nil, err
	}

	args := amqp.Table{argMessageTTL: ttl}
	if spec.DeadLetterExchange != "" {
		args[argDeadLetterExchange] = spec.DeadLetterExchange
	}

	return args, nil
}

// messageTTL encodes ms as a signed 32-bit table value when it fits and as a 64-bit one up to
// MaxMessageTTL.
func messageTTL(ms int) (any, error) {
	switch {
	case ms <= 0:
		return int32(0), nil
	case int64(ms) <= math.MaxInt32:
		return int32(ms), nil
	case int64(ms) <= MaxMessageTTL:
		return int64(ms), nil
	default:
		return nil, fmt.Errorf("x-message-ttl %dms exceeds %dms: %w", ms, int64(MaxMessageTTL), berr.ErrInvalidDelay)
	}
}

func contentType(s serializer.Serializer) string {
	if ct, ok := s.(interface{ ContentType() string }); ok {
		return ct.ContentType()
	}

	return serializer.ContentTypeJSON
}

// declareError maps a PRECONDITION_FAILED channel exception to a topology conflict.
func declareError(err error) error {
	var ae *amqp.Error
	if errors.As(err, &ae) && ae.Code == amqp.PreconditionFailed {
		return errors.Join(berr.ErrTopologyConflict, err)
	}

	return errors.Join(berr.ErrDeclareFailed, err)
}

func publishError(exchange string, err error) error {
	if isContextErr(err) {
		return err
	}

	return fmt.Errorf("rabbitmq publish to %q: %w", exchange, errors.Join(berr.ErrPublishFailed, err))
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
