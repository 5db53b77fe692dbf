// Package conventions derives broker exchange and queue names from message types.
package conventions

import (
	"reflect"

	"github.com/next-trace/scg-future-publish/serializer"
)

// ExchangeNamingConvention names the exchange a message type is published to.
type ExchangeNamingConvention func(t reflect.Type) string

// QueueNamingConvention names a queue for a message type and a subscription id.
type QueueNamingConvention func(t reflect.Type, subscriptionID string) string

// Conventions bundles the naming conventions. It is read-only after construction.
type Conventions struct {
	ExchangeNaming ExchangeNamingConvention
	QueueNaming    QueueNamingConvention
}

// Option configures Conventions.
type Option func(*Conventions)

// New returns the default conventions: the exchange is the serialized type name and a queue is
// "{serialized type name}_{subscriptionID}".
func New(tns serializer.TypeNameSerializer, opts ...Option) *Conventions {
	c := &Conventions{
		ExchangeNaming: func(t reflect.Type) string { return tns.Serialize(t) },
		QueueNaming: func(t reflect.Type, subscriptionID string) string {
			return tns.Serialize(t) + "_" + subscriptionID
		},
	}

	for _, o := range opts {
		o(c)
	}

	return c
}

// WithExchangeNames maps message types to explicit exchange names. Unmapped types keep the
// convention configured before this option.
func WithExchangeNames(names map[reflect.Type]string) Option {
	mapped := make(map[reflect.Type]string, len(names))
	for t, n := range names {
		mapped[serializer.Indirect(t)] = n
	}

	return func(c *Conventions) {
		fallback := c.ExchangeNaming
		c.ExchangeNaming = func(t reflect.Type) string {
			if n, ok := mapped[serializer.Indirect(t)]; ok {
				return n
			}

			return fallback(t)
		}
	}
}

// WithExchangeNaming replaces the exchange naming convention.
func WithExchangeNaming(fn ExchangeNamingConvention) Option {
	return func(c *Conventions) { c.ExchangeNaming = fn }
}

// WithQueueNaming replaces the queue naming convention.
func WithQueueNaming(fn QueueNamingConvention) Option {
	return func(c *Conventions) { c.QueueNaming = fn }
}

func (c *Conventions) ExchangeName(t reflect.Type) string { return c.ExchangeNaming(t) }

func (c *Conventions) QueueName(t reflect.Type, subscriptionID string) string {
	return c.QueueNaming(t, subscriptionID)
}

// TypeOf returns the message type of msg with pointers dereferenced.
func TypeOf(msg any) reflect.Type { return serializer.Indirect(reflect.TypeOf(msg)) }

// IsNil reports whether msg is nil or a nil pointer, map, slice, func, chan or interface.
func IsNil(msg any) bool {
	if msg == nil {
		return true
	}

	v := reflect.ValueOf(msg)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}
