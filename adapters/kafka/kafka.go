package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	cbus "github.com/next-trace/scg-future-publish/contract/bus"
	berr "github.com/next-trace/scg-future-publish/contract/errors"
	"github.com/next-trace/scg-future-publish/conventions"
	"github.com/next-trace/scg-future-publish/serializer"
)

// Record headers set on every publish.
const (
	HeaderType      = "type"
	HeaderMessageID = "message-id"
)

const maxTopicLength = 249

// Writer is a minimal Kafka-like writer interface.
// Users can adapt segmentio/kafka-go or any other client to this.
type Writer interface {
	Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Adapter implements cbus.Publisher using an injected Writer. The topic of a message is the
// exchange name of its type with characters Kafka rejects replaced by '_'.
type Adapter struct {
	writer      Writer
	typeNames   serializer.TypeNameSerializer
	serializer  serializer.Serializer
	conventions *conventions.Conventions
	propagator  cbus.HeaderPropagator
	logger      *zap.Logger
}

var _ cbus.Publisher = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

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

// New creates a new Kafka adapter instance with the provided writer.
func New(w Writer, opts ...Option) *Adapter {
	a := &Adapter{
		writer:     w,
		serializer: serializer.JSON{},
		propagator: cbus.NopHeaderPropagator{},
		logger:     zap.NewNop(),
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

	return a
}

// Topic returns the topic msg is published to.
func (a *Adapter) Topic(msg any) string {
	return TopicName(a.conventions.ExchangeName(conventions.TypeOf(msg)))
}

func (a *Adapter) Publish(ctx context.Context, msg any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if conventions.IsNil(msg) {
		return fmt.Errorf("kafka publish: %w", berr.ErrNilMessage)
	}

	if a.writer == nil {
		return fmt.Errorf("kafka publish: %w", berr.ErrPublishNotConfigured)
	}

	val, err := a.serializer.MessageToBytes(msg)
	if err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}

	topic := a.Topic(msg)
	headers := map[string]string{
		HeaderType:      a.typeNames.Serialize(conventions.TypeOf(msg)),
		HeaderMessageID: uuid.NewString(),
	}
	a.propagator.Inject(ctx, headers)

	if err = a.writer.Write(ctx, topic, nil, val, headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("kafka publish to %q: %w", topic, errors.Join(berr.ErrPublishFailed, err))
	}

	a.logger.Debug("produced", zap.String("topic", topic), zap.String("type", headers[HeaderType]))

	return nil
}

func (a *Adapter) PublishAsync(ctx context.Context, msg any) *cbus.Future {
	return cbus.Go(func() error { return a.Publish(ctx, msg) })
}

// TopicName maps name onto the characters Kafka accepts in a topic: ASCII letters, digits,
// '.', '_' and '-'. Anything else becomes '_' and the result is cut to 249 bytes.
func TopicName(name string) string {
	topic := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)

	if len(topic) > maxTopicLength {
		topic = topic[:maxTopicLength]
	}

	return topic
}
