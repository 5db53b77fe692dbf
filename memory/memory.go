// Package memory wires a future-publish bus onto the in-memory broker for tests and examples.
package memory

import (
	"github.com/next-trace/scg-future-publish/adapters/inmemory"
	cbus "github.com/next-trace/scg-future-publish/contract/bus"
	"github.com/next-trace/scg-future-publish/servicebus"
)

// New constructs a bus backed by the in-memory adapter using the named scheduler strategy and
// persistent delivery. It returns the bus as a contract.Bus, the broker for inspection and
// inmemory.Adapter.Expire, and a cleanup function that closes the bus.
func New(strategy string, opts ...servicebus.Option) (cbus.Bus, *inmemory.Adapter, func(), error) { //nolint:ireturn
	ad := inmemory.New()

	sb, err := servicebus.NewWithAdapter(ad, servicebus.Strategy{Name: strategy, Persistent: true}, nil, opts...)
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup := func() { _ = sb.Close() }

	return sb, ad, cleanup, nil
}
