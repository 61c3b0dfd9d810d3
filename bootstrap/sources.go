package bootstrap

import (
	"fmt"

	"github.com/kbukum/eventkit/component"
	"github.com/kbukum/eventkit/config"
	"github.com/kbukum/eventkit/dispatch"
	"github.com/kbukum/eventkit/errors"
	"github.com/kbukum/eventkit/sources/filewatch"
	"github.com/kbukum/eventkit/sources/kafka"
	"github.com/kbukum/eventkit/sources/redis"
	"github.com/kbukum/eventkit/sources/timer"
	"github.com/kbukum/eventkit/sources/topic"
	"github.com/kbukum/eventkit/sources/webhook"
)

// SourceComponent is an event source with a component lifecycle.
type SourceComponent interface {
	dispatch.Source
	component.Component
}

// buildSources creates the sources declared in cfg, in declaration order.
func buildSources(cfg config.SourcesConfig) ([]SourceComponent, error) {
	out := make([]SourceComponent, 0, len(cfg.Names()))
	for _, t := range cfg.Timers {
		s, err := timer.New(t.Name, t.Interval, timer.WithMaxInFlight(cfg.MaxInFlight))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	for _, t := range cfg.Topics {
		out = append(out, topic.NewHub(t.Name, t.Buffer, topic.WithMaxInFlight(cfg.MaxInFlight)))
	}
	for _, w := range cfg.Watches {
		opts := []filewatch.Option{filewatch.WithMaxInFlight(cfg.MaxInFlight)}
		if len(w.Ops) > 0 {
			ops, err := filewatch.ParseOps(w.Ops)
			if err != nil {
				return nil, fmt.Errorf("watch %s: %w", w.Name, err)
			}
			opts = append(opts, filewatch.WithOps(ops...))
		}
		out = append(out, filewatch.New(w.Name, w.Paths, opts...))
	}
	for _, k := range cfg.Kafka {
		s, err := kafka.New(k)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	for _, r := range cfg.Redis {
		s, err := redis.New(r, redis.WithMaxInFlight(cfg.MaxInFlight))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	for _, w := range cfg.Webhooks {
		s, err := webhook.New(w)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// AddSource adds a source that is not declared in configuration. It is
// started with the configured sources.
func (a *App[C]) AddSource(s SourceComponent) error {
	if _, exists := a.sources[s.Name()]; exists {
		return errors.New(errors.ErrCodeAlreadyRegistered, fmt.Sprintf("source %q is already registered", s.Name()))
	}
	a.sources[s.Name()] = s
	a.sourceOrder = append(a.sourceOrder, s.Name())
	return nil
}

// Source returns the named source.
func (a *App[C]) Source(name string) (dispatch.Source, bool) {
	s, ok := a.sources[name]
	return s, ok
}

// Topic returns the named topic hub.
func (a *App[C]) Topic(name string) (*topic.Hub, bool) {
	h, ok := a.sources[name].(*topic.Hub)
	return h, ok
}

// Category creates a category fed by the named source and registers it as
// a component. An empty source name creates a category that is only fired
// directly.
func (a *App[C]) Category(name, source string) (*dispatch.Category, error) {
	src, err := a.lookupSource(source)
	if err != nil {
		return nil, err
	}
	c := dispatch.NewCategory(a.Dispatch, name, src)
	if err := a.Components.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// KeyedCategory creates a keyed category fed by the named source and
// registers it as a component. When keyOf is nil, topic hubs route by topic,
// Kafka sources by record key, Redis sources by channel and webhooks by the
// event segment of the path.
func (a *App[C]) KeyedCategory(name, source string, keyOf dispatch.KeyFunc) (*dispatch.KeyedCategory, error) {
	src, err := a.lookupSource(source)
	if err != nil {
		return nil, err
	}
	if keyOf == nil {
		switch src.(type) {
		case *topic.Hub:
			keyOf = topic.KeyOf
		case *kafka.Source:
			keyOf = kafka.KeyOf
		case *redis.Source:
			keyOf = redis.KeyOf
		case *webhook.Source:
			keyOf = webhook.KeyOf
		}
	}
	k := dispatch.NewKeyedCategory(a.Dispatch, name, src, keyOf)
	if err := a.Components.Register(k); err != nil {
		return nil, err
	}
	return k, nil
}

func (a *App[C]) lookupSource(name string) (dispatch.Source, error) {
	if name == "" {
		return nil, nil
	}
	s, ok := a.sources[name]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotRegistered, fmt.Sprintf("source %q is not configured", name))
	}
	return s, nil
}

// registerSources adds the sources to the component registry. Sources are
// registered after the categories so they start last and stop first.
// Sources and categories share the component namespace.
func (a *App[C]) registerSources() error {
	for _, name := range a.sourceOrder {
		if a.Components.Get(name) == component.Component(a.sources[name]) {
			continue
		}
		if err := a.Components.Register(a.sources[name]); err != nil {
			return err
		}
	}
	return nil
}
