// Package messages defines the wire messages exchanged with an external scheduler service.
package messages

import "time"

// ScheduleMe asks the scheduler service to publish InnerMessage at WakeTime.
//
// BindingKey is the serialized type name of the inner message; the service re-publishes
// InnerMessage verbatim with it. CancellationKey is nil when the request cannot be cancelled.
type ScheduleMe struct {
	WakeTime        time.Time `json:"WakeTime"`
	BindingKey      string    `json:"BindingKey"`
	CancellationKey *string   `json:"CancellationKey"`
	InnerMessage    []byte    `json:"InnerMessage"`
}

// Cancellable reports whether the request carries a cancellation key.
func (m ScheduleMe) Cancellable() bool { return m.CancellationKey != nil }

// UnscheduleMe asks the scheduler service to drop every pending ScheduleMe carrying CancellationKey.
// A key without pending entries is a no-op for the service.
type UnscheduleMe struct {
	CancellationKey string `json:"CancellationKey"`
}
