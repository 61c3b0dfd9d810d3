// Package errors provides the structured error type used across eventkit.
//
// Every failure the runtime can produce is an *AppError carrying a
// machine-readable code. Callers discriminate with IsCode rather than by
// matching messages. The runtime never logs or swallows these errors; they
// are returned to whoever triggered the dispatch or resolution.
package errors
