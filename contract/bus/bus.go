package bus

import (
	"context"
	"time"
)

// Bus is the consumer-facing contract of the future-publish facade.
// It is intended for code that wants to depend only on contracts.
type Bus interface {
	Publish(ctx context.Context, msg any) error
	PublishAsync(ctx context.Context, msg any) *Future

	// FuturePublish delivers msg no earlier than delay from now.
	FuturePublish(ctx context.Context, delay time.Duration, msg any) error
	FuturePublishAsync(ctx context.Context, delay time.Duration, msg any) *Future

	// FuturePublishAt delivers msg at (or after) at. A non-empty cancellationKey makes the
	// scheduled message cancellable through CancelFuturePublish. An empty key means one-way; "" is
	// never sent as a key.
	FuturePublishAt(ctx context.Context, at time.Time, cancellationKey string, msg any) error
	FuturePublishAtAsync(ctx context.Context, at time.Time, cancellationKey string, msg any) *Future

	// CancelFuturePublish removes every scheduled message carrying cancellationKey.
	CancelFuturePublish(ctx context.Context, cancellationKey string) error
	CancelFuturePublishAsync(ctx context.Context, cancellationKey string) *Future

	Close() error
}
