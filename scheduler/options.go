package scheduler

import (
	"time"

	"go.uber.org/zap"
)

// Option configures a scheduler.
type Option func(*settings)

type settings struct {
	logger *zap.Logger
	now    func() time.Time
}

func newSettings(opts []Option) settings {
	s := settings{logger: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(&s)
	}

	return s
}

// WithLogger sets the logger; the default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now, used to turn delays into wake times.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// ScheduleOption configures one ScheduleAt call.
type ScheduleOption func(*scheduleOptions)

type scheduleOptions struct {
	cancellationKey *string
}

// WithCancellationKey makes the scheduled message cancellable with key. An empty key is ignored:
// the message is then scheduled one-way.
func WithCancellationKey(key string) ScheduleOption {
	return func(o *scheduleOptions) {
		if key != "" {
			o.cancellationKey = &key
		}
	}
}

func applyScheduleOptions(opts []ScheduleOption) scheduleOptions {
	var o scheduleOptions
	for _, f := range opts {
		f(&o)
	}

	return o
}
