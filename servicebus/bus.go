package servicebus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	cbus "github.com/next-trace/scg-future-publish/contract/bus"
	berr "github.com/next-trace/scg-future-publish/contract/errors"
	"github.com/next-trace/scg-future-publish/conventions"
	"github.com/next-trace/scg-future-publish/metric"
	"github.com/next-trace/scg-future-publish/scheduler"
)

// Bus publishes messages now or in the future.
// Immediate publishes go to the Publisher, future publishes to the configured scheduler.
//
// Bus is concurrency-safe and contains no global state.
type Bus struct {
	pub       cbus.Publisher
	scheduler scheduler.Scheduler
	timed     scheduler.TimedScheduler
	metrics   *metric.Metrics
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	cleanups []func()
	closed   bool
}

var _ cbus.Bus = (*Bus)(nil)

// New constructs a Bus over pub. Without WithScheduler the FuturePublish family fails with
// errors.ErrSchedulerNotConfigured.
func New(pub cbus.Publisher, opts ...Option) *Bus {
	b := &Bus{
		pub:    pub,
		logger: zap.NewNop(),
		now:    time.Now,
	}

	for _, o := range opts {
		o(b)
	}

	return b
}

// Strategy names the configured scheduler strategy, or "" without one.
func (b *Bus) Strategy() string {
	if b.scheduler == nil {
		return ""
	}

	return b.scheduler.Strategy()
}

// Publish publishes msg immediately.
func (b *Bus) Publish(ctx context.Context, msg any) error {
	if err := b.checkPublish(msg); err != nil {
		return err
	}

	err := b.pub.Publish(ctx, msg)
	b.metrics.ObservePublish(err)

	return err
}

func (b *Bus) PublishAsync(ctx context.Context, msg any) *cbus.Future {
	if err := b.checkPublish(msg); err != nil {
		return cbus.Completed(err)
	}

	return b.observe(b.pub.PublishAsync(ctx, msg), b.metrics.ObservePublish)
}

// FuturePublish delivers msg no earlier than delay from now. The dead-letter strategy rounds
// delay down to whole seconds.
func (b *Bus) FuturePublish(ctx context.Context, delay time.Duration, msg any) error {
	if err := b.checkSchedule(msg); err != nil {
		return err
	}

	err := b.scheduler.Schedule(ctx, msg, delay)
	b.scheduled(msg, delay, err)

	return err
}

func (b *Bus) FuturePublishAsync(ctx context.Context, delay time.Duration, msg any) *cbus.Future {
	if err := b.checkSchedule(msg); err != nil {
		return cbus.Completed(err)
	}

	return b.observe(b.scheduler.ScheduleAsync(ctx, msg, delay), func(err error) { b.scheduled(msg, delay, err) })
}

// FuturePublishAt delivers msg at or after at. A non-empty cancellationKey needs a scheduler with
// cancellation support; without one the call fails with errors.ErrCancellationUnsupported.
//
// "" is not a valid cancellation key: it schedules msg one-way, with a null key on the wire, and
// CancelFuturePublish(ctx, "") never matches it.
func (b *Bus) FuturePublishAt(ctx context.Context, at time.Time, cancellationKey string, msg any) error {
	if err := b.checkSchedule(msg); err != nil {
		return err
	}

	delay := at.Sub(b.now())

	if b.timed != nil {
		err := b.timed.ScheduleAt(ctx, msg, at, scheduler.WithCancellationKey(cancellationKey))
		b.scheduled(msg, delay, err)

		return err
	}

	if err := b.checkCancellationKey(cancellationKey); err != nil {
		return err
	}

	err := b.scheduler.Schedule(ctx, msg, delay)
	b.scheduled(msg, delay, err)

	return err
}

func (b *Bus) FuturePublishAtAsync(ctx context.Context, at time.Time, cancellationKey string, msg any) *cbus.Future {
	if err := b.checkSchedule(msg); err != nil {
		return cbus.Completed(err)
	}

	delay := at.Sub(b.now())
	record := func(err error) { b.scheduled(msg, delay, err) }

	if b.timed != nil {
		return b.observe(b.timed.ScheduleAtAsync(ctx, msg, at, scheduler.WithCancellationKey(cancellationKey)), record)
	}

	if err := b.checkCancellationKey(cancellationKey); err != nil {
		return cbus.Completed(err)
	}

	return b.observe(b.scheduler.ScheduleAsync(ctx, msg, delay), record)
}

// CancelFuturePublish asks the scheduler to drop every message scheduled with cancellationKey.
// Unknown keys are not an error.
func (b *Bus) CancelFuturePublish(ctx context.Context, cancellationKey string) error {
	if err := b.checkCancel(); err != nil {
		return err
	}

	err := b.timed.Unschedule(ctx, cancellationKey)
	b.unscheduled(cancellationKey, err)

	return err
}

func (b *Bus) CancelFuturePublishAsync(ctx context.Context, cancellationKey string) *cbus.Future {
	if err := b.checkCancel(); err != nil {
		return cbus.Completed(err)
	}

	return b.observe(b.timed.UnscheduleAsync(ctx, cancellationKey), func(err error) { b.unscheduled(cancellationKey, err) })
}

// Close runs the registered cleanups once. It always returns nil.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true

	for i := len(b.cleanups) - 1; i >= 0; i-- {
		b.cleanups[i]()
	}

	return nil
}

func (b *Bus) checkPublish(msg any) error {
	if conventions.IsNil(msg) {
		return fmt.Errorf("publish: %w", berr.ErrNilMessage)
	}

	if b.pub == nil {
		return fmt.Errorf("publish %T: %w", msg, berr.ErrPublishNotConfigured)
	}

	return nil
}

func (b *Bus) checkSchedule(msg any) error {
	if conventions.IsNil(msg) {
		return fmt.Errorf("future publish: %w", berr.ErrNilMessage)
	}

	if b.scheduler == nil {
		return fmt.Errorf("future publish %T: %w", msg, berr.ErrSchedulerNotConfigured)
	}

	return nil
}

func (b *Bus) checkCancellationKey(key string) error {
	if key == "" {
		return nil
	}

	return fmt.Errorf("future publish with cancellation key %q on %s strategy: %w",
		key, b.scheduler.Strategy(), berr.ErrCancellationUnsupported)
}

func (b *Bus) checkCancel() error {
	if b.scheduler == nil {
		return fmt.Errorf("cancel future publish: %w", berr.ErrSchedulerNotConfigured)
	}

	if b.timed == nil {
		return fmt.Errorf("cancel future publish on %s strategy: %w", b.scheduler.Strategy(), berr.ErrCancellationUnsupported)
	}

	return nil
}

// observe returns a future completing with f's outcome after record has seen it.
func (b *Bus) observe(f *cbus.Future, record func(error)) *cbus.Future {
	return cbus.Go(func() error {
		<-f.Done()

		err := f.Err()
		record(err)

		return err
	})
}

func (b *Bus) scheduled(msg any, delay time.Duration, err error) {
	strategy := b.scheduler.Strategy()
	b.metrics.ObserveSchedule(strategy, delay, err)

	if err != nil {
		b.logger.Warn("future publish failed",
			zap.String("strategy", strategy),
			zap.String("message_type", fmt.Sprintf("%T", msg)),
			zap.Error(err),
		)

		return
	}

	b.logger.Debug("future publish scheduled",
		zap.String("strategy", strategy),
		zap.String("message_type", fmt.Sprintf("%T", msg)),
		zap.Duration("delay", delay),
	)
}

func (b *Bus) unscheduled(key string, err error) {
	b.metrics.ObserveUnschedule(b.scheduler.Strategy(), err)

	if err != nil {
		b.logger.Warn("cancel future publish failed", zap.String("cancellation_key", key), zap.Error(err))
	}
}
