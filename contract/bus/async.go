package bus

import "context"

// Future is the completion signal of an asynchronous publish or schedule call.
// It completes exactly once; Err is meaningful only after Done is closed.
type Future struct {
	done chan struct{}
	err  error
}

// Go runs fn on a new goroutine and returns a Future completed with its result.
func Go(fn func() error) *Future {
	f := &Future{done: make(chan struct{})}

	go func() {
		f.err = fn()
		close(f.done)
	}()

	return f
}

// Completed returns an already completed Future.
func Completed(err error) *Future {
	f := &Future{done: make(chan struct{}), err: err}
	close(f.done)

	return f
}

// Done is closed when the operation has finished.
func (f *Future) Done() <-chan struct{} { return f.done }

// Err returns the outcome. It returns nil while the operation is still running.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the operation finishes or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
