package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	cbus "github.com/next-trace/scg-future-publish/contract/bus"
	berr "github.com/next-trace/scg-future-publish/contract/errors"
	"github.com/next-trace/scg-future-publish/conventions"
	"github.com/next-trace/scg-future-publish/serializer"
)

// Message headers set on every publish.
const (
	HeaderType      = "type"
	HeaderMessageID = "message-id"
)

// Client is a minimal NATS-like publisher interface decoupled from any concrete library.
// Users can provide a wrapper around their NATS connection to satisfy this.
type Client interface {
	// Publish publishes a message to a subject with optional headers.
	Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error
}

// Adapter implements cbus.Publisher using an injected NATS-like Client. The subject of a message
// is the exchange name its type maps to, so ScheduleMe and UnscheduleMe land on the subjects the
// scheduler service subscribes to.
type Adapter struct {
	client      Client
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

// New creates a new NATS adapter instance with the provided client.
func New(c Client, opts ...Option) *Adapter {
	a := &Adapter{
		client:     c,
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

// Subject returns the subject msg is published on.
func (a *Adapter) Subject(msg any) string { return a.conventions.ExchangeName(conventions.TypeOf(msg)) }

func (a *Adapter) Publish(ctx context.Context, msg any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if conventions.IsNil(msg) {
		return fmt.Errorf("nats publish: %w", berr.ErrNilMessage)
	}

	if a.client == nil {
		return fmt.Errorf("nats publish: %w", berr.ErrPublishNotConfigured)
	}

	body, err := a.serializer.MessageToBytes(msg)
	if err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}

	t := conventions.TypeOf(msg)
	subject := a.conventions.ExchangeName(t)
	headers := map[string]string{
		HeaderType:      a.typeNames.Serialize(t),
		HeaderMessageID: uuid.NewString(),
	}
	a.propagator.Inject(ctx, headers)

	if err := a.client.Publish(ctx, subject, body, headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("nats publish to %q: %w", subject, errors.Join(berr.ErrPublishFailed, err))
	}

	a.logger.Debug("published", zap.String("subject", subject), zap.String("type", headers[HeaderType]))

	return nil
}

func (a *Adapter) PublishAsync(ctx context.Context, msg any) *cbus.Future {
	return cbus.Go(func() error { return a.Publish(ctx, msg) })
}
