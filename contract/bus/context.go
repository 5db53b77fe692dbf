package bus

import "context"

// HeaderPropagator abstracts injecting tracing context into message headers.
// Implementations may bridge to OpenTelemetry or any other propagation standard.
// Implementors mutate the provided headers map; they must be safe for concurrent use.
type HeaderPropagator interface {
	Inject(ctx context.Context, headers map[string]string)
}

// NopHeaderPropagator is a no-op implementation useful for tests or when tracing is disabled.
type NopHeaderPropagator struct{}

func (NopHeaderPropagator) Inject(context.Context, map[string]string) {}

// HeaderPropagatorFunc lets a plain function satisfy HeaderPropagator.
type HeaderPropagatorFunc func(ctx context.Context, headers map[string]string)

func (f HeaderPropagatorFunc) Inject(ctx context.Context, headers map[string]string) { f(ctx, headers) }
