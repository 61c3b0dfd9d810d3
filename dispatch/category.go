package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/kbukum/eventkit/component"
	"github.com/kbukum/eventkit/di"
	"github.com/kbukum/eventkit/errors"
	"github.com/kbukum/eventkit/logger"
	"github.com/kbukum/eventkit/observability"
)

// Callback receives payloads from a Source. It returns the results of every
// listener in registration order.
type Callback func(ctx context.Context, payload any) ([]any, error)

// Source delivers external events to exactly one subscribed callback.
// Subscribe is called at most once per category.
type Source interface {
	Subscribe(fn Callback) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(fn Callback) error

// Subscribe calls f.
func (f SourceFunc) Subscribe(fn Callback) error { return f(fn) }

type listenerKey struct {
	def    *di.Definition
	method string
}

type registered struct {
	key     listenerKey
	handler Handler
}

// Category is an ordered set of listeners fed by one Source. The category
// subscribes to its source on the first Listen, or on Start.
type Category struct {
	name       string
	dispatcher *Dispatcher
	source     Source
	tracer     trace.Tracer
	log        *logger.Logger

	mu        sync.RWMutex
	listeners []registered

	subscription *component.Lazy
}

// NewCategory creates a category with its own dispatcher. source may be nil
// when events are only fired through Fire.
func NewCategory(f *Factory, name string, source Source) *Category {
	c := &Category{
		name:       name,
		dispatcher: f.CreateDispatcher(name),
		source:     source,
		tracer:     f.tracer,
		log:        f.log.WithComponent("category:" + name),
	}
	c.subscription = component.NewLazy(name, c.subscribe)
	return c
}

// Name returns the category name.
func (c *Category) Name() string { return c.name }

// Dispatcher returns the category's dispatcher.
func (c *Category) Dispatcher() *Dispatcher { return c.dispatcher }

// Listen adds def's method to the category and makes sure the category is
// subscribed to its source. A method listens at most once per category;
// a second Listen fails with ALREADY_REGISTERED. A subscription failure is
// returned; the listener stays registered and the next Listen or Start
// retries the subscription.
func (c *Category) Listen(ctx context.Context, def *di.Definition, method string, opts ...ListenOption) error {
	key := listenerKey{def: def, method: method}

	c.mu.Lock()
	for _, l := range c.listeners {
		if l.key == key {
			c.mu.Unlock()
			return errors.AlreadyRegistered(def.Name() + "." + method)
		}
	}
	h, err := c.dispatcher.Listen(def, method, opts...)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.listeners = append(c.listeners, registered{key: key, handler: h})
	c.mu.Unlock()

	return c.subscription.Initialize(ctx)
}

// Len returns the number of listeners.
func (c *Category) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.listeners)
}

// Fire delivers payload to every listener and waits for all of them.
// Handlers start in registration order: a listener is launched once the
// previous one has passed its registry lookup and filter. Resolution, init
// and the method calls then run concurrently. Results are returned in
// registration order and errors are combined.
func (c *Category) Fire(ctx context.Context, payload any) ([]any, error) {
	c.mu.RLock()
	handlers := make([]Handler, len(c.listeners))
	for i, l := range c.listeners {
		handlers[i] = l.handler
	}
	c.mu.RUnlock()

	return fire(ctx, c.tracer, c.log, c.name, handlers, payload)
}

func fire(ctx context.Context, tracer trace.Tracer, log *logger.Logger, name string, handlers []Handler, payload any) ([]any, error) {
	if len(handlers) == 0 {
		return nil, nil
	}

	eventID, ok := logger.EventIDFromContext(ctx)
	if !ok {
		eventID = uuid.NewString()
		ctx = logger.ContextWithEventID(ctx, eventID)
	}
	ctx, span := tracer.Start(ctx, observability.SpanFire, trace.WithAttributes(
		attribute.String(observability.AttrEventID, eventID),
		attribute.String(observability.AttrCategory, name),
		attribute.Int(observability.AttrListeners, len(handlers)),
	))
	defer span.End()

	results := make([]any, len(handlers))
	errs := make([]error, len(handlers))
	var wg sync.WaitGroup
	for i, h := range handlers {
		started := make(chan struct{})
		signal := sync.OnceFunc(func() { close(started) })
		hctx := context.WithValue(ctx, startedKey{}, signal)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer signal()
			results[i], errs[i] = h(hctx, payload)
		}()
		<-started
	}
	wg.Wait()

	err := multierr.Combine(errs...)
	if err != nil {
		span.RecordError(err)
		log.WithContext(ctx).Warn("Event delivered with errors", logger.Fields(
			"listeners", len(handlers),
			"failed", len(multierr.Errors(err)),
		))
	}
	return results, err
}

type startedKey struct{}

// markStarted tells Fire that the handler running under ctx has passed its
// filter, so the next listener may start.
func markStarted(ctx context.Context) {
	if signal, ok := ctx.Value(startedKey{}).(func()); ok {
		signal()
	}
}

func (c *Category) subscribe(ctx context.Context) error {
	if c.source == nil {
		return nil
	}
	if err := c.source.Subscribe(c.Fire); err != nil {
		return errors.SubscribeFailed(c.name, err)
	}
	c.log.Debug("Subscribed to source")
	return nil
}

// Start subscribes to the source if no Listen has done so yet.
func (c *Category) Start(ctx context.Context) error {
	return c.subscription.Initialize(ctx)
}

// Stop is a no-op; sources are stopped as components of their own.
func (c *Category) Stop(ctx context.Context) error { return nil }

// Health reports the subscription state.
func (c *Category) Health(ctx context.Context) component.Health {
	h := c.subscription.Health()
	h.Name = c.name
	return h
}

// Describe returns the startup summary for the category.
func (c *Category) Describe() component.Description {
	return component.Description{
		Type:    "category",
		Details: fmt.Sprintf("listeners=%d", c.Len()),
	}
}

// KeyFunc extracts the routing key of a payload.
type KeyFunc func(payload any) (string, bool)

// KeyedCategory routes each event to the listeners of one key, such as an
// event name or a topic. Every key has its own dispatcher and bindings.
type KeyedCategory struct {
	name    string
	factory *Factory
	source  Source
	keyOf   KeyFunc
	log     *logger.Logger

	mu   sync.RWMutex
	keys map[string]*Category

	subscription *component.Lazy
}

// NewKeyedCategory creates a keyed category. keyOf routes payloads coming
// from source; it may be nil when source is nil.
func NewKeyedCategory(f *Factory, name string, source Source, keyOf KeyFunc) *KeyedCategory {
	k := &KeyedCategory{
		name:    name,
		factory: f,
		source:  source,
		keyOf:   keyOf,
		log:     f.log.WithComponent("category:" + name),
		keys:    make(map[string]*Category),
	}
	k.subscription = component.NewLazy(name, k.subscribe)
	return k
}

// Name returns the category name.
func (k *KeyedCategory) Name() string { return k.name }

// Listen adds def's method as a listener for key.
func (k *KeyedCategory) Listen(ctx context.Context, key string, def *di.Definition, method string, opts ...ListenOption) error {
	if err := k.forKey(key).Listen(ctx, def, method, opts...); err != nil {
		return err
	}
	return k.subscription.Initialize(ctx)
}

// Keys returns the number of keys with listeners.
func (k *KeyedCategory) Keys() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}

// Fire delivers payload to the listeners of key only.
func (k *KeyedCategory) Fire(ctx context.Context, key string, payload any) ([]any, error) {
	k.mu.RLock()
	c, ok := k.keys[key]
	k.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return c.Fire(ctx, payload)
}

func (k *KeyedCategory) forKey(key string) *Category {
	k.mu.Lock()
	defer k.mu.Unlock()
	c, ok := k.keys[key]
	if !ok {
		c = NewCategory(k.factory, k.name+":"+key, nil)
		k.keys[key] = c
	}
	return c
}

func (k *KeyedCategory) route(ctx context.Context, payload any) ([]any, error) {
	key, ok := k.keyOf(payload)
	if !ok {
		k.log.Debug("Dropping payload without key", logger.Fields("type", fmt.Sprintf("%T", payload)))
		return nil, nil
	}
	return k.Fire(ctx, key, payload)
}

func (k *KeyedCategory) subscribe(ctx context.Context) error {
	if k.source == nil {
		return nil
	}
	if k.keyOf == nil {
		return errors.SubscribeFailed(k.name, fmt.Errorf("no key function"))
	}
	if err := k.source.Subscribe(k.route); err != nil {
		return errors.SubscribeFailed(k.name, err)
	}
	k.log.Debug("Subscribed to source")
	return nil
}

// Start subscribes to the source if no Listen has done so yet.
func (k *KeyedCategory) Start(ctx context.Context) error {
	return k.subscription.Initialize(ctx)
}

// Stop is a no-op; sources are stopped as components of their own.
func (k *KeyedCategory) Stop(ctx context.Context) error { return nil }

// Health reports the subscription state.
func (k *KeyedCategory) Health(ctx context.Context) component.Health {
	h := k.subscription.Health()
	h.Name = k.name
	return h
}

// Describe returns the startup summary for the category.
func (k *KeyedCategory) Describe() component.Description {
	return component.Description{
		Type:    "category",
		Details: fmt.Sprintf("keys=%d", k.Keys()),
	}
}
