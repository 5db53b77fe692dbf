package topology

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	cbus "github.com/next-trace/scg-future-publish/contract/bus"
	"github.com/next-trace/scg-future-publish/conventions"
)

// DelayTopology is the set of names and attributes prepared for one delay bucket.
type DelayTopology struct {
	Bucket         Bucket
	TargetExchange string
	DelayExchange  string
	DelayQueue     string
	QueueSpec      cbus.QueueSpec
}

// DelayTopologyBuilder ensures the delay exchange and queue of a (message type, delay) pair exist.
// It is stateless; concurrent calls for the same pair race harmlessly on the broker.
type DelayTopologyBuilder struct {
	declarer    cbus.TopologyDeclarer
	conventions *conventions.Conventions
	strategy    PublishExchangeDeclareStrategy
	logger      *zap.Logger
}

// Option configures a DelayTopologyBuilder.
type Option func(*DelayTopologyBuilder)

// WithLogger sets the logger; the default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(b *DelayTopologyBuilder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithDeclareStrategy replaces the target exchange resolver.
func WithDeclareStrategy(s PublishExchangeDeclareStrategy) Option {
	return func(b *DelayTopologyBuilder) {
		if s != nil {
			b.strategy = s
		}
	}
}

func NewDelayTopologyBuilder(
	d cbus.TopologyDeclarer,
	c *conventions.Conventions,
	opts ...Option,
) *DelayTopologyBuilder {
	b := &DelayTopologyBuilder{
		declarer:    d,
		conventions: c,
		strategy:    NewDeclareStrategy(c),
		logger:      zap.NewNop(),
	}

	for _, o := range opts {
		o(b)
	}

	return b
}

// Plan computes the delay topology for t and delay without touching the broker, assuming the
// target exchange is named by the exchange naming convention.
func (b *DelayTopologyBuilder) Plan(t reflect.Type, delay time.Duration) DelayTopology {
	return b.plan(t, BucketFor(delay), b.conventions.ExchangeName(t))
}

func (b *DelayTopologyBuilder) plan(t reflect.Type, bucket Bucket, target string) DelayTopology {
	return DelayTopology{
		Bucket:         bucket,
		TargetExchange: target,
		DelayExchange:  target + "_" + bucket.Label,
		DelayQueue:     b.conventions.QueueName(t, bucket.Label),
		QueueSpec:      cbus.DelayQueueSpec(bucket.TTL(), target),
	}
}

// Prepare declares the target exchange, the delay exchange and the delay queue, binds the queue
// with "#" and returns the delay exchange to publish into.
func (b *DelayTopologyBuilder) Prepare(ctx context.Context, t reflect.Type, delay time.Duration) (cbus.Exchange, error) {
	bucket := BucketFor(delay)

	target, err := b.strategy.DeclareExchange(ctx, b.declarer, t, cbus.ExchangeTopic)
	if err != nil {
		return cbus.Exchange{}, err
	}

	plan := b.plan(t, bucket, target.Name)

	delayExchange, err := b.declarer.ExchangeDeclare(ctx, plan.DelayExchange, cbus.ExchangeTopic)
	if err != nil {
		return cbus.Exchange{}, fmt.Errorf("declare delay exchange %q: %w", plan.DelayExchange, err)
	}

	queue, err := b.declarer.QueueDeclare(ctx, plan.DelayQueue, plan.QueueSpec)
	if err != nil {
		return cbus.Exchange{}, fmt.Errorf("declare delay queue %q: %w", plan.DelayQueue, err)
	}

	if _, err = b.declarer.Bind(ctx, delayExchange, queue, cbus.MatchAll); err != nil {
		return cbus.Exchange{}, fmt.Errorf("bind delay queue %q: %w", plan.DelayQueue, err)
	}

	b.logger.Debug("delay topology prepared",
		zap.String("target_exchange", plan.TargetExchange),
		zap.String("delay_exchange", plan.DelayExchange),
		zap.String("delay_queue", plan.DelayQueue),
		zap.Int("ttl_ms", plan.QueueSpec.PerQueueTTL),
	)

	return delayExchange, nil
}
