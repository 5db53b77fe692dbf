// Package inmemory provides an in-process broker implementing cbus.Adapter.
// It records topology and publishes for tests and examples and simulates TTL dead-lettering.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	cbus "github.com/next-trace/scg-future-publish/contract/bus"
	berr "github.com/next-trace/scg-future-publish/contract/errors"
)

// Delivery is one exchange-level publish.
type Delivery struct {
	Exchange   string
	RoutingKey string
	Mandatory  bool
	Immediate  bool
	Envelope   cbus.Envelope
}

// Adapter is a thread-safe in-memory broker.
// Declares are idempotent: a redeclare with identical attributes is a no-op, different attributes
// fail with berr.ErrTopologyConflict.
type Adapter struct {
	mu sync.Mutex

	exchanges map[string]cbus.Exchange
	queues    map[string]cbus.Queue
	bindings  []cbus.Binding
	declares  map[string]int
	queued    map[string][]Delivery

	deliveries []Delivery
	published  []any

	failDeclare error
	failPublish error
}

// Ensure Adapter implements the combined contract.
var _ cbus.Adapter = (*Adapter)(nil)

// New creates a new in-memory adapter instance.
func New() *Adapter {
	return &Adapter{
		exchanges: make(map[string]cbus.Exchange),
		queues:    make(map[string]cbus.Queue),
		declares:  make(map[string]int),
		queued:    make(map[string][]Delivery),
	}
}

// FailDeclareWith makes every following declare or bind fail with err. A nil err clears it.
func (a *Adapter) FailDeclareWith(err error) {
	a.mu.Lock()
	a.failDeclare = err
	a.mu.Unlock()
}

// FailPublishWith makes every following publish fail with err. A nil err clears it.
func (a *Adapter) FailPublishWith(err error) {
	a.mu.Lock()
	a.failPublish = err
	a.mu.Unlock()
}

func (a *Adapter) ExchangeDeclare(ctx context.Context, name, kind string) (cbus.Exchange, error) {
	if err := ctx.Err(); err != nil {
		return cbus.Exchange{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.failDeclare != nil {
		return cbus.Exchange{}, fmt.Errorf("inmemory declare exchange %q: %w", name, a.failDeclare)
	}

	a.declares[name]++

	ex := cbus.Exchange{Name: name, Type: kind}
	if existing, ok := a.exchanges[name]; ok {
		if existing != ex {
			return cbus.Exchange{}, fmt.Errorf("inmemory declare exchange %q as %s, exists as %s: %w",
				name, kind, existing.Type, berr.ErrTopologyConflict)
		}

		return existing, nil
	}

	a.exchanges[name] = ex

	return ex, nil
}

func (a *Adapter) QueueDeclare(ctx context.Context, name string, spec cbus.QueueSpec) (cbus.Queue, error) {
	if err := ctx.Err(); err != nil {
		return cbus.Queue{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.failDeclare != nil {
		return cbus.Queue{}, fmt.Errorf("inmemory declare queue %q: %w", name, a.failDeclare)
	}

	a.declares[name]++

	q := cbus.Queue{Name: name, Spec: spec}
	if existing, ok := a.queues[name]; ok {
		if existing != q {
			return cbus.Queue{}, fmt.Errorf("inmemory declare queue %q with %+v, exists with %+v: %w",
				name, spec, existing.Spec, berr.ErrTopologyConflict)
		}

		return existing, nil
	}

	a.queues[name] = q

	return q, nil
}

func (a *Adapter) Bind(ctx context.Context, ex cbus.Exchange, q cbus.Queue, routingKey string) (cbus.Binding, error) {
	if err := ctx.Err(); err != nil {
		return cbus.Binding{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.failDeclare != nil {
		return cbus.Binding{}, fmt.Errorf("inmemory bind %q to %q: %w", q.Name, ex.Name, a.failDeclare)
	}

	if _, ok := a.exchanges[ex.Name]; !ok {
		return cbus.Binding{}, fmt.Errorf("inmemory bind: no exchange %q: %w", ex.Name, berr.ErrDeclareFailed)
	}

	if _, ok := a.queues[q.Name]; !ok {
		return cbus.Binding{}, fmt.Errorf("inmemory bind: no queue %q: %w", q.Name, berr.ErrDeclareFailed)
	}

	b := cbus.Binding{Exchange: a.exchanges[ex.Name], Queue: a.queues[q.Name], RoutingKey: routingKey}
	for _, existing := range a.bindings {
		if existing == b {
			return existing, nil
		}
	}

	a.bindings = append(a.bindings, b)

	return b, nil
}

func (a *Adapter) PublishToExchange(
	ctx context.Context,
	ex cbus.Exchange,
	routingKey string,
	mandatory, immediate bool,
	env cbus.Envelope,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.failPublish != nil {
		return fmt.Errorf("inmemory publish to %q: %w", ex.Name, a.failPublish)
	}

	d := Delivery{Exchange: ex.Name, RoutingKey: routingKey, Mandatory: mandatory, Immediate: immediate, Envelope: env}

	return a.route(d)
}

func (a *Adapter) PublishToExchangeAsync(
	ctx context.Context,
	ex cbus.Exchange,
	routingKey string,
	mandatory, immediate bool,
	env cbus.Envelope,
) *cbus.Future {
	return cbus.Go(func() error {
		return a.PublishToExchange(ctx, ex, routingKey, mandatory, immediate, env)
	})
}

// route records d and enqueues it on every queue bound with a matching key. Caller holds mu.
func (a *Adapter) route(d Delivery) error {
	if _, ok := a.exchanges[d.Exchange]; !ok {
		return fmt.Errorf("inmemory publish: no exchange %q: %w", d.Exchange, berr.ErrPublishFailed)
	}

	a.deliveries = append(a.deliveries, d)

	for _, b := range a.bindings {
		if b.Exchange.Name == d.Exchange && matches(b.RoutingKey, d.RoutingKey) {
			a.queued[b.Queue.Name] = append(a.queued[b.Queue.Name], d)
		}
	}

	return nil
}

func matches(bindingKey, routingKey string) bool {
	return bindingKey == cbus.MatchAll || bindingKey == routingKey
}

// Publish records a whole-bus publish.
func (a *Adapter) Publish(ctx context.Context, msg any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.failPublish != nil {
		return fmt.Errorf("inmemory publish %T: %w", msg, a.failPublish)
	}

	a.published = append(a.published, msg)

	return nil
}

func (a *Adapter) PublishAsync(ctx context.Context, msg any) *cbus.Future {
	return cbus.Go(func() error { return a.Publish(ctx, msg) })
}

// Expire simulates the TTL of queue elapsing: every queued message is dead-lettered, unmodified
// and with its original routing key, into the queue's dead-letter exchange. It returns the number
// of messages moved; a missing dead-letter exchange fails before anything is dequeued.
func (a *Adapter) Expire(queue string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	q, ok := a.queues[queue]
	if !ok {
		return 0, fmt.Errorf("inmemory expire: no queue %q: %w", queue, berr.ErrDeclareFailed)
	}

	dlx := q.Spec.DeadLetterExchange
	if _, ok := a.exchanges[dlx]; dlx != "" && !ok {
		return 0, fmt.Errorf("inmemory expire %q: no dead-letter exchange %q: %w", queue, dlx, berr.ErrPublishFailed)
	}

	pending := a.queued[queue]
	delete(a.queued, queue)

	if dlx == "" {
		return 0, nil
	}

	for i, d := range pending {
		d.Exchange = dlx
		if err := a.route(d); err != nil {
			a.queued[queue] = append(pending[i:], a.queued[queue]...)
			return i, err
		}
	}

	return len(pending), nil
}

// Exchange returns the declared exchange called name.
func (a *Adapter) Exchange(name string) (cbus.Exchange, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ex, ok := a.exchanges[name]

	return ex, ok
}

// Queue returns the declared queue called name.
func (a *Adapter) Queue(name string) (cbus.Queue, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	q, ok := a.queues[name]

	return q, ok
}

// ExchangeNames returns the declared exchange names, sorted.
func (a *Adapter) ExchangeNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return sortedKeys(a.exchanges)
}

// QueueNames returns the declared queue names, sorted.
func (a *Adapter) QueueNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return sortedKeys(a.queues)
}

// Bindings returns a copy of the declared bindings in declaration order.
func (a *Adapter) Bindings() []cbus.Binding {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]cbus.Binding(nil), a.bindings...)
}

// DeclareCount returns how many times an exchange or queue called name was declared.
func (a *Adapter) DeclareCount(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.declares[name]
}

// Deliveries returns every exchange-level publish, including dead-lettered ones, in order.
func (a *Adapter) Deliveries() []Delivery {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]Delivery(nil), a.deliveries...)
}

// DeliveriesTo returns the publishes that reached exchange with routingKey.
func (a *Adapter) DeliveriesTo(exchange, routingKey string) []Delivery {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []Delivery

	for _, d := range a.deliveries {
		if d.Exchange == exchange && d.RoutingKey == routingKey {
			out = append(out, d)
		}
	}

	return out
}

// Queued returns the messages waiting in queue.
func (a *Adapter) Queued(queue string) []Delivery {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]Delivery(nil), a.queued[queue]...)
}

// Published returns the whole-bus publishes in order.
func (a *Adapter) Published() []any {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]any(nil), a.published...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
