package metadata

import (
	"sync"
	"sync/atomic"
)

// Namespace isolates one event category's bindings from another's.
// Two namespaces created with the same name are still distinct.
type Namespace struct {
	id   uint64
	name string
}

var namespaceSeq atomic.Uint64

// NewNamespace mints a unique namespace token.
func NewNamespace(name string) Namespace {
	return Namespace{id: namespaceSeq.Add(1), name: name}
}

// Name returns the name the namespace was created with.
func (n Namespace) Name() string { return n.name }

// IsZero reports whether n was never minted.
func (n Namespace) IsZero() bool { return n.id == 0 }

func (n Namespace) String() string { return n.name }

// Key addresses the bindings of one method under one namespace.
// Target must be comparable; the runtime uses *di.Definition values.
type Key struct {
	Target    any
	Method    string
	Namespace Namespace
}

// Binding maps a method parameter position to a payload extraction key.
// An empty ExtractionKey means the whole payload.
type Binding struct {
	ParameterIndex int
	ExtractionKey  string
}

// HasKey reports whether the binding extracts a field rather than passing
// the whole payload.
func (b Binding) HasKey() bool { return b.ExtractionKey != "" }

// Store holds bindings in registration order per key.
type Store struct {
	mu       sync.RWMutex
	bindings map[Key][]Binding
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{bindings: make(map[Key][]Binding)}
}

// Append records a binding under key.
func (s *Store) Append(key Key, b Binding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[key] = append(s.bindings[key], b)
}

// Get returns a copy of the bindings recorded under key, in registration order.
func (s *Store) Get(key Key) []Binding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.bindings[key]
	if len(src) == 0 {
		return nil
	}
	out := make([]Binding, len(src))
	copy(out, src)
	return out
}

// Len returns the number of bindings recorded under key.
func (s *Store) Len(key Key) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bindings[key])
}

// Keys returns every key that holds at least one binding within ns.
func (s *Store) Keys(ns Namespace) []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []Key
	for k := range s.bindings {
		if k.Namespace == ns {
			keys = append(keys, k)
		}
	}
	return keys
}

// Namespaces returns the distinct namespaces that hold bindings.
func (s *Store) Namespaces() []Namespace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[Namespace]struct{})
	var out []Namespace
	for k := range s.bindings {
		if _, ok := seen[k.Namespace]; ok {
			continue
		}
		seen[k.Namespace] = struct{}{}
		out = append(out, k.Namespace)
	}
	return out
}
