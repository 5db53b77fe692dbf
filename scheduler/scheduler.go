package scheduler

import (
	"context"
	"time"

	cbus "github.com/next-trace/scg-future-publish/contract/bus"
)

// Strategy names, as used in configuration.
const (
	StrategyDeadLetter = "deadletter"
	StrategyExternal   = "external"
)

// Scheduler publishes a message after a delay.
type Scheduler interface {
	Schedule(ctx context.Context, msg any, delay time.Duration) error
	ScheduleAsync(ctx context.Context, msg any, delay time.Duration) *cbus.Future
	Strategy() string
}

// TimedScheduler publishes a message at an absolute time and can cancel scheduled messages by key.
type TimedScheduler interface {
	ScheduleAt(ctx context.Context, msg any, at time.Time, opts ...ScheduleOption) error
	ScheduleAtAsync(ctx context.Context, msg any, at time.Time, opts ...ScheduleOption) *cbus.Future
	Unschedule(ctx context.Context, cancellationKey string) error
	UnscheduleAsync(ctx context.Context, cancellationKey string) *cbus.Future
}
