// Package logger provides structured logging for eventkit using zerolog.
//
// It supports JSON and console output, level configuration, and
// component-scoped loggers. The runtime packages obtain their logger via
// Get so applications can swap the underlying logger per component.
//
// # Configuration
//
//	logging:
//	  level: "debug"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("dispatch")
//	log.Debug("handler invoked", logger.Fields("namespace", "timer"))
package logger
