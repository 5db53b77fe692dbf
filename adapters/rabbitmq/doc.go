/*
Package rabbitmq implements the bus contracts on AMQP 0-9-1.
It declares exchanges, TTL/dead-letter queues and bindings, publishes envelopes with optional
publisher confirms, includes an auto-reconnecting channel provider, and supports optional header
propagation via a bus.HeaderPropagator.
*/
package rabbitmq
