// Package component defines the lifecycle interface shared by event sources
// and event categories.
//
// Components are registered with a Registry, started in registration order
// and stopped in reverse. The bootstrap package drives the registry.
//
// # Interfaces
//
//   - Component: Core lifecycle interface (Start/Stop/Health)
//   - Describable: Bootstrap summary descriptions
//
// Lazy wraps an initializer that must succeed once, retrying after failures.
package component
