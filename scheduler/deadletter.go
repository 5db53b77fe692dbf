package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	cbus "github.com/next-trace/scg-future-publish/contract/bus"
	berr "github.com/next-trace/scg-future-publish/contract/errors"
	"github.com/next-trace/scg-future-publish/conventions"
	"github.com/next-trace/scg-future-publish/topology"
)

// DeadLetter schedules messages through per-delay TTL queues that dead-letter into the message
// type's exchange. Delays are rounded down to whole seconds.
type DeadLetter struct {
	bus     cbus.AdvancedBus
	builder *topology.DelayTopologyBuilder
	mode    cbus.DeliveryMode
	logger  *zap.Logger
}

var _ Scheduler = (*DeadLetter)(nil)

// NewDeadLetter builds a DeadLetter scheduler. persistent selects the delivery mode of every
// scheduled message.
func NewDeadLetter(
	adv cbus.AdvancedBus,
	builder *topology.DelayTopologyBuilder,
	persistent bool,
	opts ...Option,
) *DeadLetter {
	s := newSettings(opts)

	return &DeadLetter{
		bus:     adv,
		builder: builder,
		mode:    cbus.DeliveryModeFor(persistent),
		logger:  s.logger,
	}
}

func (d *DeadLetter) Strategy() string { return StrategyDeadLetter }

// Schedule prepares the delay topology and publishes msg into the delay exchange.
func (d *DeadLetter) Schedule(ctx context.Context, msg any, delay time.Duration) error {
	if conventions.IsNil(msg) {
		return fmt.Errorf("dead-letter schedule: %w", berr.ErrNilMessage)
	}

	ex, env, err := d.prepare(ctx, msg, delay)
	if err != nil {
		return err
	}

	if err := d.bus.PublishToExchange(ctx, ex, cbus.MatchAll, false, false, env); err != nil {
		return err
	}

	d.logScheduled(ex, msg, delay)

	return nil
}

// ScheduleAsync is Schedule off the caller's goroutine. A nil message fails the returned
// future immediately.
func (d *DeadLetter) ScheduleAsync(ctx context.Context, msg any, delay time.Duration) *cbus.Future {
	if conventions.IsNil(msg) {
		return cbus.Completed(fmt.Errorf("dead-letter schedule: %w", berr.ErrNilMessage))
	}

	return cbus.Go(func() error {
		ex, env, err := d.prepare(ctx, msg, delay)
		if err != nil {
			return err
		}

		if err := d.bus.PublishToExchangeAsync(ctx, ex, cbus.MatchAll, false, false, env).Wait(ctx); err != nil {
			return err
		}

		d.logScheduled(ex, msg, delay)

		return nil
	})
}

func (d *DeadLetter) prepare(ctx context.Context, msg any, delay time.Duration) (cbus.Exchange, cbus.Envelope, error) {
	ex, err := d.builder.Prepare(ctx, conventions.TypeOf(msg), delay)
	if err != nil {
		return cbus.Exchange{}, cbus.Envelope{}, err
	}

	env := cbus.Envelope{
		Message:    msg,
		Properties: cbus.Properties{DeliveryMode: d.mode},
	}

	return ex, env, nil
}

func (d *DeadLetter) logScheduled(ex cbus.Exchange, msg any, delay time.Duration) {
	d.logger.Debug("message scheduled",
		zap.String("strategy", StrategyDeadLetter),
		zap.String("delay_exchange", ex.Name),
		zap.String("message_type", fmt.Sprintf("%T", msg)),
		zap.Duration("delay", topology.Round(delay)),
	)
}
