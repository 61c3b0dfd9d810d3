// Package webhook delivers HTTP requests as events.
//
// A POST to <path>/<event> becomes a Message routed by its event name. The
// subscriber runs on the request goroutine and the listeners' results are
// written back as JSON, so callers see failures in the response.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kbukum/eventkit/component"
	"github.com/kbukum/eventkit/config"
	"github.com/kbukum/eventkit/dispatch"
	"github.com/kbukum/eventkit/errors"
	"github.com/kbukum/eventkit/logger"
	"github.com/kbukum/eventkit/validation"
)

// RequestIDHeader carries the event id. It is generated when absent and
// echoed on the response.
const RequestIDHeader = "X-Request-Id"

// Message is the payload of one webhook request. Data holds the decoded
// body when it is JSON.
type Message struct {
	Event   string            `json:"event" mapstructure:"event"`
	Headers map[string]string `json:"headers,omitempty" mapstructure:"headers"`
	Body    []byte            `json:"-" mapstructure:"body"`
	Data    any               `json:"data,omitempty" mapstructure:"data"`
}

// KeyOf routes a Message by event name.
func KeyOf(payload any) (string, bool) {
	switch m := payload.(type) {
	case Message:
		return m.Event, true
	case *Message:
		if m == nil {
			return "", false
		}
		return m.Event, true
	}
	return "", false
}

// DataResponse wraps the listeners' results.
type DataResponse struct {
	Data []any `json:"data"`
}

// ErrorResponse is written when delivery fails. Data carries the results of
// the listeners that succeeded.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
	Data  []any     `json:"data,omitempty"`
}

// ErrorBody describes a failed delivery.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Source serves the webhook endpoint once started.
type Source struct {
	name   string
	cfg    config.WebhookConfig
	engine *gin.Engine
	log    *logger.Logger

	mu         sync.Mutex
	subscriber dispatch.Callback
	server     *http.Server
	addr       string

	received atomic.Uint64
	failed   atomic.Uint64
}

var (
	_ dispatch.Source       = (*Source)(nil)
	_ component.Component   = (*Source)(nil)
	_ component.Describable = (*Source)(nil)
)

// New creates a webhook source and registers its route. The listener is
// bound on Start.
func New(cfg config.WebhookConfig) (*Source, error) {
	cfg.ApplyDefaults()
	v := validation.New().
		Required("webhook.name", cfg.Name).
		Custom(strings.HasPrefix(cfg.Path, "/"), "webhook."+cfg.Name+".path", "must start with /")
	if err := v.Err(); err != nil {
		return nil, err
	}

	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Source{
		name:   cfg.Name,
		cfg:    cfg,
		engine: gin.New(),
		log:    logger.Get("webhook").WithComponent(cfg.Name),
	}
	s.engine.Use(s.recovery(), requestID(), bodyLimit(cfg.MaxBodyBytes))
	s.engine.POST(strings.TrimSuffix(cfg.Path, "/")+"/:event", s.handle)
	return s, nil
}

// Name returns the source name.
func (s *Source) Name() string { return s.name }

// Handler returns the gin engine serving the endpoint, for mounting on
// another server or for tests.
func (s *Source) Handler() http.Handler { return s.engine }

// Addr returns the bound address while running, and the configured one
// otherwise.
func (s *Source) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr != "" {
		return s.addr
	}
	return s.cfg.Addr
}

// Subscribe sets the callback requests are delivered to.
func (s *Source) Subscribe(fn dispatch.Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscriber != nil {
		return fmt.Errorf("webhook %s already has a subscriber", s.name)
	}
	s.subscriber = fn
	return nil
}

// Start binds the address and serves in the background. It returns once
// the port is bound. Starting a running source is a no-op.
func (s *Source) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("webhook %s failed to bind %s: %w", s.name, s.cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.server, s.addr = srv, ln.Addr().String()

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("Webhook server error", logger.ErrorFields("serve", err))
		}
	}()

	s.log.Info("Webhook started", logger.Fields("addr", s.addr, "path", s.cfg.Path))
	return nil
}

// Stop shuts the server down, waiting up to the configured timeout for
// requests in flight.
func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server, s.addr = nil, ""
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("Webhook shutdown failed", logger.ErrorFields("shutdown", err))
		return fmt.Errorf("webhook %s shutdown: %w", s.name, err)
	}
	return nil
}

func (s *Source) handle(c *gin.Context) {
	s.received.Add(1)
	s.mu.Lock()
	fn := s.subscriber
	s.mu.Unlock()
	if fn == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: ErrorBody{
			Code:    string(errors.ErrCodeNotStarted),
			Message: fmt.Sprintf("webhook %s has no listeners", s.name),
		}})
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: ErrorBody{
			Code:    string(errors.ErrCodeValidation),
			Message: err.Error(),
		}})
		return
	}

	msg := Message{Event: c.Param("event"), Headers: headers(c.Request.Header), Body: body}
	var data any
	if len(body) > 0 && json.Unmarshal(body, &data) == nil {
		msg.Data = data
	}

	ctx := logger.ContextWithEventID(c.Request.Context(), c.GetString("request_id"))
	results, err := fn(ctx, msg)
	if err != nil {
		s.failed.Add(1)
		s.log.WithContext(ctx).Warn("Webhook delivery failed",
			logger.Fields("event", msg.Event),
			logger.ErrorFields("deliver", err),
		)
		status, resp := errorResponse(err)
		resp.Data = results
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, DataResponse{Data: results})
}

// errorResponse maps a delivery error to a status code. Listener errors
// that carry no code are reported as 500.
func errorResponse(err error) (int, ErrorResponse) {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		return http.StatusInternalServerError, ErrorResponse{Error: ErrorBody{
			Code:    "LISTENER_FAILED",
			Message: err.Error(),
		}}
	}

	status := http.StatusInternalServerError
	switch appErr.Code {
	case errors.ErrCodeValidation, errors.ErrCodeArgumentMismatch:
		status = http.StatusBadRequest
	case errors.ErrCodeCapacityExceeded:
		status = http.StatusTooManyRequests
	case errors.ErrCodeNotStarted:
		status = http.StatusServiceUnavailable
	}
	return status, ErrorResponse{Error: ErrorBody{
		Code:      string(appErr.Code),
		Message:   err.Error(),
		Retryable: appErr.Retryable,
	}}
}

func headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func (s *Source) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("Panic recovered", logger.Fields(
					logger.FieldError, fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()),
					"path", c.Request.URL.Path,
				))
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: ErrorBody{
					Code:    "INTERNAL",
					Message: "internal server error",
				}})
			}
		}()
		c.Next()
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func bodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

// Stats returns received and failed request counts.
func (s *Source) Stats() (received, failed uint64) {
	return s.received.Load(), s.failed.Load()
}

// Health reports degraded while the server is not running.
func (s *Source) Health(_ context.Context) component.Health {
	s.mu.Lock()
	running := s.server != nil
	s.mu.Unlock()

	h := component.Health{
		Name:    s.name,
		Status:  component.StatusHealthy,
		Message: fmt.Sprintf("received=%d failed=%d", s.received.Load(), s.failed.Load()),
	}
	if !running {
		h.Status = component.StatusDegraded
	}
	return h
}

// Describe returns the startup summary for the endpoint.
func (s *Source) Describe() component.Description {
	return component.Description{
		Name:    "Webhook",
		Type:    "source",
		Details: fmt.Sprintf("addr=%s route=POST %s/:event", s.cfg.Addr, strings.TrimSuffix(s.cfg.Path, "/")),
	}
}
