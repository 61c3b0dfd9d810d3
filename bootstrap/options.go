package bootstrap

import (
	"io"
	"time"

	"github.com/kbukum/eventkit/di"
	"github.com/kbukum/eventkit/logger"
	"github.com/kbukum/eventkit/params"
)

// DefaultGracefulTimeout bounds shutdown when WithGracefulTimeout is not set.
const DefaultGracefulTimeout = 15 * time.Second

// Option configures NewApp. Options do not depend on the config type.
type Option func(*options)

type options struct {
	logger          *logger.Logger
	container       *di.Container
	params          *params.Registry
	summaryOut      io.Writer
	gracefulTimeout time.Duration
}

func newOptions(opts []Option) options {
	o := options{gracefulTimeout: DefaultGracefulTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger replaces the logger built from the logging section.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithGracefulTimeout bounds the whole shutdown and each component's Stop.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *options) { o.gracefulTimeout = d }
}

// WithContainer shares an existing container instead of creating one.
func WithContainer(c *di.Container) Option {
	return func(o *options) { o.container = c }
}

// WithParams sets the parameter registry shared by all dispatchers.
func WithParams(r *params.Registry) Option {
	return func(o *options) { o.params = r }
}

// WithSummaryOutput redirects the startup summary, which goes to stdout by
// default.
func WithSummaryOutput(w io.Writer) Option {
	return func(o *options) { o.summaryOut = w }
}
