// Package metric holds the Prometheus instruments of the future-publish facade.
// A nil *Metrics is valid and records nothing.
package metric

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "future_publish"

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

type Metrics struct {
	Published     *prometheus.CounterVec   // by status
	Scheduled     *prometheus.CounterVec   // by strategy and status
	Unscheduled   *prometheus.CounterVec   // by strategy and status
	ScheduleDelay *prometheus.HistogramVec // requested delay in seconds, by strategy
}

// New creates the instruments and registers them with reg. A nil reg leaves them unregistered.
// Instruments already registered by an earlier call are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "published_total",
			Help:      "Total number of immediate publishes",
		}, []string{"status"}),

		Scheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "scheduled_total",
			Help:      "Total number of future publishes handed to a scheduler",
		}, []string{"strategy", "status"}),

		Unscheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "unscheduled_total",
			Help:      "Total number of cancellation requests",
		}, []string{"strategy", "status"}),

		ScheduleDelay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "delay_seconds",
			Help:      "Requested delay of future publishes in seconds",
			Buckets:   []float64{1, 5, 30, 60, 300, 900, 3600, 21600, 86400},
		}, []string{"strategy"}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	if m.Published, err = register(reg, m.Published); err != nil {
		return nil, err
	}

	if m.Scheduled, err = register(reg, m.Scheduled); err != nil {
		return nil, err
	}

	if m.Unscheduled, err = register(reg, m.Unscheduled); err != nil {
		return nil, err
	}

	if m.ScheduleDelay, err = register(reg, m.ScheduleDelay); err != nil {
		return nil, err
	}

	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}

		return c, err
	}

	return c, nil
}

func (m *Metrics) ObservePublish(err error) {
	if m == nil {
		return
	}

	m.Published.WithLabelValues(status(err)).Inc()
}

func (m *Metrics) ObserveSchedule(strategy string, delay time.Duration, err error) {
	if m == nil {
		return
	}

	m.Scheduled.WithLabelValues(strategy, status(err)).Inc()

	if err == nil {
		m.ScheduleDelay.WithLabelValues(strategy).Observe(max(delay, 0).Seconds())
	}
}

func (m *Metrics) ObserveUnschedule(strategy string, err error) {
	if m == nil {
		return
	}

	m.Unscheduled.WithLabelValues(strategy, status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return StatusError
	}

	return StatusOK
}
