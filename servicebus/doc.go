/*
Package servicebus provides the future-publish facade: immediate publishes plus delayed
publishes through a pluggable scheduler strategy.
It stays decoupled from concrete transports via the contract interfaces; NewWithRabbitMQ wires the
RabbitMQ stack from configuration.
*/
package servicebus
