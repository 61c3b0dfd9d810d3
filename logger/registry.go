package logger

import (
	"sync"
)

// named holds per-component loggers. Packages that build their own logger
// (di, dispatch, the sources) look themselves up here so an application can
// route them through its configured logger before constructing them.
var named sync.Map

// Register stores the logger returned by Get(name).
func Register(name string, l *Logger) {
	named.Store(name, l)
}

// RegisterComponents registers base tagged with each component name.
// A nil base stands for the global logger.
func RegisterComponents(base *Logger, names ...string) {
	if base == nil {
		base = GetGlobalLogger()
	}
	for _, name := range names {
		Register(name, base.WithComponent(name))
	}
}

// Get returns the logger registered under name, or the global logger tagged
// with name.
func Get(name string) *Logger {
	if l, ok := named.Load(name); ok {
		return l.(*Logger)
	}
	return GetGlobalLogger().WithComponent(name)
}
