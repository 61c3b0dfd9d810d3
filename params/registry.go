package params

import (
	"github.com/kbukum/eventkit/errors"
	"github.com/kbukum/eventkit/logger"
	"github.com/kbukum/eventkit/metadata"
)

// Binding is re-exported so callers rarely need the metadata package.
type Binding = metadata.Binding

// Whole binds the full payload to parameter index.
func Whole(index int) Binding {
	return Binding{ParameterIndex: index}
}

// Key binds payload[key] to parameter index.
func Key(index int, key string) Binding {
	return Binding{ParameterIndex: index, ExtractionKey: key}
}

// Registry creates namespaces backed by one metadata store.
type Registry struct {
	store *metadata.Store
}

// NewRegistry creates a registry over store. A nil store gets a fresh one.
func NewRegistry(store *metadata.Store) *Registry {
	if store == nil {
		store = metadata.NewStore()
	}
	return &Registry{store: store}
}

// Store returns the backing metadata store.
func (r *Registry) Store() *metadata.Store { return r.store }

// CreateNamespace mints a new namespace. Calling it twice with the same name
// yields two independent namespaces.
func (r *Registry) CreateNamespace(name string) *Namespace {
	ns := &Namespace{key: metadata.NewNamespace(name), store: r.store}
	logger.Get("params").Debug("Namespace created", logger.Fields(logger.FieldNamespace, name))
	return ns
}

// Namespace is one event category's view of the binding store.
type Namespace struct {
	key   metadata.Namespace
	store *metadata.Store
}

// Key returns the namespace token.
func (n *Namespace) Key() metadata.Namespace { return n.key }

// Name returns the namespace name.
func (n *Namespace) Name() string { return n.key.Name() }

// Annotate records that parameter index of target.method receives
// payload[extractionKey], or the whole payload when extractionKey is empty.
func (n *Namespace) Annotate(target any, method string, index int, extractionKey string) error {
	return n.Bind(target, method, Binding{ParameterIndex: index, ExtractionKey: extractionKey})
}

// Bind records bindings for target.method in the given order. Nothing is
// recorded if any binding is invalid.
func (n *Namespace) Bind(target any, method string, bindings ...Binding) error {
	for _, b := range bindings {
		if b.ParameterIndex < 0 {
			return errors.InvalidBinding(method, b.ParameterIndex, "negative parameter index")
		}
	}
	key := n.metaKey(target, method)
	for _, b := range bindings {
		n.store.Append(key, b)
	}
	return nil
}

// Bindings returns the bindings recorded for target.method in this namespace.
func (n *Namespace) Bindings(target any, method string) []Binding {
	return n.store.Get(n.metaKey(target, method))
}

// BuildArguments produces the positional arguments for target.method.
//
// With no bindings the result is []any{payload}. Otherwise the result is
// sized to the highest bound index; positions without a binding stay nil.
// Later bindings for the same index win.
func (n *Namespace) BuildArguments(payload any, target any, method string) []any {
	bindings := n.Bindings(target, method)
	if len(bindings) == 0 {
		return []any{payload}
	}

	size := 0
	for _, b := range bindings {
		if b.ParameterIndex+1 > size {
			size = b.ParameterIndex + 1
		}
	}

	args := make([]any, size)
	for _, b := range bindings {
		if b.HasKey() {
			args[b.ParameterIndex] = Extract(payload, b.ExtractionKey)
		} else {
			args[b.ParameterIndex] = payload
		}
	}
	return args
}

func (n *Namespace) metaKey(target any, method string) metadata.Key {
	return metadata.Key{Target: target, Method: method, Namespace: n.key}
}
