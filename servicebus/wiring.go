package servicebus

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/next-trace/scg-future-publish/adapters/nats"
	"github.com/next-trace/scg-future-publish/adapters/rabbitmq"
	"github.com/next-trace/scg-future-publish/config"
	cbus "github.com/next-trace/scg-future-publish/contract/bus"
	berr "github.com/next-trace/scg-future-publish/contract/errors"
	"github.com/next-trace/scg-future-publish/conventions"
	"github.com/next-trace/scg-future-publish/scheduler"
	"github.com/next-trace/scg-future-publish/serializer"
	"github.com/next-trace/scg-future-publish/topology"
)

// Strategy selects and parameterizes the scheduler NewWithAdapter builds.
type Strategy struct {
	// Name is scheduler.StrategyDeadLetter or scheduler.StrategyExternal.
	Name string
	// Persistent selects the delivery mode of dead-letter scheduled messages.
	Persistent bool
	// TypeNames and Conventions must match the adapter's so delay queues dead-letter into the
	// exchanges subscribers bind to. Nil values get fresh defaults.
	TypeNames   serializer.TypeNameSerializer
	Conventions *conventions.Conventions
	// Requests carries the external strategy's ScheduleMe/UnscheduleMe messages; nil uses the adapter.
	Requests cbus.Publisher
}

// NewWithAdapter builds a Bus publishing through ad with the scheduler st names. The scheduler
// shares the Bus clock and replaces any WithScheduler among opts.
func NewWithAdapter(ad cbus.Adapter, st Strategy, logger *zap.Logger, opts ...Option) (*Bus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	tns := st.TypeNames
	if tns == nil {
		tns = serializer.NewTypeNames()
	}

	conv := st.Conventions
	if conv == nil {
		conv = conventions.New(tns)
	}

	b := New(ad, append([]Option{WithLogger(logger)}, opts...)...)
	schedOpts := []scheduler.Option{scheduler.WithLogger(logger), scheduler.WithClock(b.now)}

	var sched scheduler.Scheduler

	switch st.Name {
	case scheduler.StrategyDeadLetter:
		builder := topology.NewDelayTopologyBuilder(ad, conv, topology.WithLogger(logger))
		sched = scheduler.NewDeadLetter(ad, builder, st.Persistent, schedOpts...)
	case scheduler.StrategyExternal:
		requests := st.Requests
		if requests == nil {
			requests = ad
		}

		sched = scheduler.NewExternal(requests, tns, serializer.JSON{}, schedOpts...)
	default:
		return nil, fmt.Errorf("scheduler strategy %q: %w", st.Name, berr.ErrInvalidConfig)
	}

	WithScheduler(sched)(b)

	return b, nil
}

// requestTransport builds the publisher that carries the external strategy's requests when they
// do not travel over RabbitMQ. It returns the publisher and its cleanup.
type requestTransport func(
	cfg config.Config,
	logger *zap.Logger,
	tns serializer.TypeNameSerializer,
	conv *conventions.Conventions,
) (cbus.Publisher, func(), error)

// requestTransports is keyed by config transport name; builds with the franz tag add kafka.
var requestTransports = map[string]requestTransport{
	config.TransportNATS: newNATSRequests,
}

func newNATSRequests(
	cfg config.Config,
	logger *zap.Logger,
	tns serializer.TypeNameSerializer,
	conv *conventions.Conventions,
) (cbus.Publisher, func(), error) {
	return nats.NewWithNATS(
		nats.Config{
			URL:           cfg.NATS.URL,
			Name:          cfg.NATS.Name,
			ConnTimeout:   cfg.NATS.ConnTimeout,
			MaxReconnects: cfg.NATS.MaxReconnects,
		},
		logger,
		nats.WithTypeNames(tns),
		nats.WithConventions(conv),
	)
}

// NewWithRabbitMQ wires the RabbitMQ adapter and the scheduler strategy cfg selects. The
// connection is established in the background; Close tears it down.
func NewWithRabbitMQ(cfg config.Config, logger *zap.Logger, opts ...Option) (*Bus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var transport requestTransport

	if cfg.Scheduler.Transport != config.TransportRabbitMQ {
		var ok bool
		if transport, ok = requestTransports[cfg.Scheduler.Transport]; !ok {
			return nil, fmt.Errorf("scheduler.transport %q is not compiled in (kafka needs -tags franz): %w",
				cfg.Scheduler.Transport, berr.ErrInvalidConfig)
		}
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	tns := serializer.NewTypeNames()
	conv := conventions.New(tns)

	ad, rabbitCleanup, err := rabbitmq.NewWithAMQPConn(
		rabbitmq.Config{
			URL:               cfg.RabbitMQ.URL,
			ConnTimeout:       cfg.RabbitMQ.ConnTimeout,
			PublisherConfirms: cfg.RabbitMQ.PublisherConfirms,
		},
		logger,
		rabbitmq.WithTypeNames(tns),
		rabbitmq.WithConventions(conv),
		rabbitmq.WithPersistent(cfg.Scheduler.PersistentMessages),
	)
	if err != nil {
		return nil, err
	}

	cleanups := []Option{WithCleanup(rabbitCleanup)}
	st := Strategy{
		Name:        cfg.Scheduler.Strategy,
		Persistent:  cfg.Scheduler.PersistentMessages,
		TypeNames:   tns,
		Conventions: conv,
	}

	if transport != nil {
		requests, requestsCleanup, err := transport(cfg, logger, tns, conv)
		if err != nil {
			rabbitCleanup()
			return nil, err
		}

		st.Requests = requests
		cleanups = append(cleanups, WithCleanup(requestsCleanup))
	}

	b, err := NewWithAdapter(ad, st, logger, append(cleanups, opts...)...)
	if err != nil {
		_ = New(nil, cleanups...).Close()
		return nil, err
	}

	logger.Info("future publish bus ready",
		zap.String("strategy", b.Strategy()),
		zap.String("transport", cfg.Scheduler.Transport),
	)

	return b, nil
}
