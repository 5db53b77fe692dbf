package bus

import "time"

// DeliveryMode mirrors the AMQP basic.properties delivery-mode octet.
type DeliveryMode uint8

const (
	// Transient messages may be lost on broker restart.
	Transient DeliveryMode = 1
	// Persistent messages are written to disk by durable queues.
	Persistent DeliveryMode = 2
)

// DeliveryModeFor maps the process-wide "persistent messages" flag onto a delivery mode.
func DeliveryModeFor(persistent bool) DeliveryMode {
	if persistent {
		return Persistent
	}

	return Transient
}

// Properties are the transport properties carried next to a message.
// Adapters fill the fields left empty (content type, message id, type, timestamp).
type Properties struct {
	DeliveryMode DeliveryMode
	ContentType  string
	MessageID    string
	Type         string
	Timestamp    time.Time
	Headers      map[string]string
}

// Envelope wraps a message value with its transport properties.
// The adapter owns serialization of Message.
type Envelope struct {
	Message    any
	Properties Properties
}
