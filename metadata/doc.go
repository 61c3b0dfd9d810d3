// Package metadata is the process-wide store of parameter bindings.
//
// Bindings are kept per (target, method, namespace) triple. A namespace is an
// opaque token minted by NewNamespace, so two event categories can bind the
// same parameter position of the same method without seeing each other.
package metadata
