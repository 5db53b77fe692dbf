package servicebus

import (
	"time"

	"go.uber.org/zap"

	"github.com/next-trace/scg-future-publish/metric"
	"github.com/next-trace/scg-future-publish/scheduler"
)

// Option configures a Bus instance.
type Option func(*Bus)

// WithScheduler sets the strategy behind the FuturePublish family. A scheduler that also
// implements scheduler.TimedScheduler enables absolute wake times and cancellation.
func WithScheduler(s scheduler.Scheduler) Option {
	return func(b *Bus) {
		b.scheduler = s
		b.timed, _ = s.(scheduler.TimedScheduler)
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMetrics records every operation on m.
func WithMetrics(m *metric.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// WithClock replaces time.Now, used to turn wake times into delays for the dead-letter strategy.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

// WithCleanup registers fn to run on Close. Cleanups run in reverse registration order.
func WithCleanup(fn func()) Option {
	return func(b *Bus) {
		if fn != nil {
			b.cleanups = append(b.cleanups, fn)
		}
	}
}
