package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	cbus "github.com/next-trace/scg-future-publish/contract/bus"
	berr "github.com/next-trace/scg-future-publish/contract/errors"
	"github.com/next-trace/scg-future-publish/contract/messages"
	"github.com/next-trace/scg-future-publish/conventions"
	"github.com/next-trace/scg-future-publish/serializer"
)

// External hands scheduling to a separate scheduler service by publishing messages.ScheduleMe
// and messages.UnscheduleMe on the bus. It creates no broker topology.
type External struct {
	pub        cbus.Publisher
	typeNames  serializer.TypeNameSerializer
	serializer serializer.Serializer
	now        func() time.Time
	logger     *zap.Logger
}

var (
	_ Scheduler      = (*External)(nil)
	_ TimedScheduler = (*External)(nil)
)

func NewExternal(
	pub cbus.Publisher,
	tns serializer.TypeNameSerializer,
	ser serializer.Serializer,
	opts ...Option,
) *External {
	s := newSettings(opts)

	return &External{
		pub:        pub,
		typeNames:  tns,
		serializer: ser,
		now:        s.now,
		logger:     s.logger,
	}
}

func (e *External) Strategy() string { return StrategyExternal }

// Schedule schedules msg for now+delay without a cancellation key.
func (e *External) Schedule(ctx context.Context, msg any, delay time.Duration) error {
	return e.ScheduleAt(ctx, msg, e.now().Add(delay))
}

func (e *External) ScheduleAsync(ctx context.Context, msg any, delay time.Duration) *cbus.Future {
	return e.ScheduleAtAsync(ctx, msg, e.now().Add(delay))
}

// ScheduleAt publishes a ScheduleMe for msg waking at at.
func (e *External) ScheduleAt(ctx context.Context, msg any, at time.Time, opts ...ScheduleOption) error {
	req, err := e.scheduleMe(msg, at, opts)
	if err != nil {
		return err
	}

	if err := e.pub.Publish(ctx, req); err != nil {
		return err
	}

	e.logScheduled(req)

	return nil
}

func (e *External) ScheduleAtAsync(ctx context.Context, msg any, at time.Time, opts ...ScheduleOption) *cbus.Future {
	req, err := e.scheduleMe(msg, at, opts)
	if err != nil {
		return cbus.Completed(err)
	}

	return e.pub.PublishAsync(ctx, req)
}

// Unschedule publishes an UnscheduleMe for cancellationKey. Unknown keys are a no-op for the
// scheduler service.
func (e *External) Unschedule(ctx context.Context, cancellationKey string) error {
	if err := e.pub.Publish(ctx, messages.UnscheduleMe{CancellationKey: cancellationKey}); err != nil {
		return err
	}

	e.logger.Debug("unschedule requested", zap.String("cancellation_key", cancellationKey))

	return nil
}

func (e *External) UnscheduleAsync(ctx context.Context, cancellationKey string) *cbus.Future {
	return e.pub.PublishAsync(ctx, messages.UnscheduleMe{CancellationKey: cancellationKey})
}

func (e *External) scheduleMe(msg any, at time.Time, opts []ScheduleOption) (messages.ScheduleMe, error) {
	if conventions.IsNil(msg) {
		return messages.ScheduleMe{}, fmt.Errorf("external schedule: %w", berr.ErrNilMessage)
	}

	body, err := e.serializer.MessageToBytes(msg)
	if err != nil {
		return messages.ScheduleMe{}, fmt.Errorf("external schedule: %w", err)
	}

	o := applyScheduleOptions(opts)

	return messages.ScheduleMe{
		WakeTime:        at.UTC(),
		BindingKey:      e.typeNames.Serialize(conventions.TypeOf(msg)),
		CancellationKey: o.cancellationKey,
		InnerMessage:    body,
	}, nil
}

func (e *External) logScheduled(req messages.ScheduleMe) {
	fields := []zap.Field{
		zap.String("strategy", StrategyExternal),
		zap.String("binding_key", req.BindingKey),
		zap.Time("wake_time", req.WakeTime),
	}
	if req.CancellationKey != nil {
		fields = append(fields, zap.String("cancellation_key", *req.CancellationKey))
	}

	e.logger.Debug("message scheduled", fields...)
}
