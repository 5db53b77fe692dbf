package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	berr "github.com/next-trace/scg-future-publish/contract/errors"
)

// Concrete AMQP connection-backed channel provider with auto-reconnect.

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	productName    = "scg-future-publish"
)

var errProviderClosed = errors.New("rabbitmq channel provider closed")

type Config struct {
	URL         string
	ConnTimeout time.Duration
	// PublisherConfirms puts every channel in confirm mode; publishes then wait for the broker ack.
	PublisherConfirms bool
}

type reconnectingProvider struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.RWMutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	ready  chan struct{} // closed while a channel is available
	closed chan struct{}
	once   sync.Once
}

func newReconnectingProvider(cfg Config, logger *zap.Logger) (*reconnectingProvider, func()) {
	rp := &reconnectingProvider{
		cfg:    cfg,
		logger: logger,
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
	}
	go rp.run()

	return rp, rp.close
}

// Channel returns the current channel, waiting for a reconnect when there is none.
func (rp *reconnectingProvider) Channel(ctx context.Context) (Channel, error) {
	for {
		rp.mu.RLock()
		ch, ready := rp.ch, rp.ready
		rp.mu.RUnlock()

		if ch != nil {
			return amqpChannel{ch: ch}, nil
		}

		select {
		case <-ready:
		case <-rp.closed:
			return nil, errProviderClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (rp *reconnectingProvider) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(rp.cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": productName},
		Dial:       amqp.DefaultDial(rp.cfg.ConnTimeout),
	})
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	if rp.cfg.PublisherConfirms {
		if err := ch.Confirm(false); err != nil {
			_ = ch.Close()
			_ = conn.Close()

			return nil, nil, err
		}
	}

	return conn, ch, nil
}

func (rp *reconnectingProvider) run() {
	backoff := initialBackoff
	// #nosec G404 -- non-crypto RNG is acceptable for backoff jitter
	rng := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // non-crypto RNG is acceptable for backoff jitter

	for {
		select {
		case <-rp.closed:
			return
		default:
		}

		conn, ch, err := rp.dial()
		if err != nil {
			// exponential backoff with jitter
			jitter := time.Duration(rng.Int63n(int64(backoff / 2)))
			sleep := min(backoff+jitter/2, maxBackoff)

			rp.logger.Warn("rabbitmq connect failed", zap.Error(err), zap.Duration("retry_in", sleep))

			t := time.NewTimer(sleep)
			select {
			case <-rp.closed:
				t.Stop()
				return
			case <-t.C:
			}

			backoff = min(backoff*2, maxBackoff)

			continue
		}

		backoff = initialBackoff

		rp.mu.Lock()
		rp.conn = conn
		rp.ch = ch
		close(rp.ready)
		rp.mu.Unlock()

		rp.logger.Info("rabbitmq connected", zap.Bool("publisher_confirms", rp.cfg.PublisherConfirms))

		// a channel exception (e.g. a 406 on redeclare) closes the channel but not the connection
		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

		var cause *amqp.Error
		select {
		case <-rp.closed:
			_ = ch.Close()
			_ = conn.Close()

			return
		case cause = <-connClosed:
		case cause = <-chClosed:
		}

		select {
		case <-rp.closed:
			return
		default:
		}

		rp.mu.Lock()
		rp.conn = nil
		rp.ch = nil
		rp.ready = make(chan struct{})
		rp.mu.Unlock()

		_ = ch.Close()
		_ = conn.Close()

		rp.logger.Warn("rabbitmq connection lost, reconnecting", zap.Error(amqpErr(cause)))
	}
}

func (rp *reconnectingProvider) close() {
	rp.once.Do(func() {
		close(rp.closed)

		rp.mu.Lock()
		defer rp.mu.Unlock()

		if rp.ch != nil {
			_ = rp.ch.Close()
			rp.ch = nil
		}

		if rp.conn != nil {
			_ = rp.conn.Close()
			rp.conn = nil
		}
	})
}

// amqpErr keeps a nil *amqp.Error from turning into a non-nil error interface.
func amqpErr(e *amqp.Error) error {
	if e == nil {
		return nil
	}

	return e
}

// NewWithAMQPConn dials RabbitMQ with auto-reconnect and returns the Adapter and its cleanup.
// The first operations wait (bounded by their context) until the connection is up.
func NewWithAMQPConn(cfg Config, logger *zap.Logger, opts ...Option) (*Adapter, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("rabbitmq url required: %w", berr.ErrInvalidConfig)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	provider, cleanup := newReconnectingProvider(cfg, logger)
	ad := New(provider, append([]Option{WithLogger(logger)}, opts...)...)

	return ad, cleanup, nil
}
