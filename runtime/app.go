// Package phototheory is the HTTP runtime behind the photo service.
//
// Handlers see one canonical Request/Response model whether the process is a local net/http
// server or an AWS Lambda behind API Gateway.
package phototheory

import (
	"context"

	"github.com/aws/aws-lambda-go/events"

	"github.com/theory-cloud/phototheory/pkg/observability"
)

// App is the container for routes, middleware and event handlers.
type App struct {
	router      *router
	clock       Clock
	ids         IDGenerator
	limits      Limits
	logger      observability.StructuredLogger
	metrics     *RequestMetrics
	middlewares []Middleware

	sqsHandler         SQSHandler
	eventBridgeHandler EventBridgeHandler
}

// Option configures an App.
type Option func(*App)

// Limits bounds request and response sizes. Zero means unlimited.
type Limits struct {
	MaxRequestBytes  int
	MaxResponseBytes int
}

// SQSHandler receives a whole SQS batch. An error fails every message in it.
type SQSHandler func(ctx context.Context, messages []events.SQSMessage) error

// New creates an App with the given options applied.
func New(opts ...Option) *App {
	app := &App{
		router: newRouter(),
		clock:  RealClock{},
		ids:    ULIDGenerator{},
		logger: observability.NewNoOpLogger(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(app)
	}
	return app
}

func WithClock(clock Clock) Option {
	return func(app *App) {
		if clock != nil {
			app.clock = clock
		}
	}
}

func WithIDGenerator(ids IDGenerator) Option {
	return func(app *App) {
		if ids != nil {
			app.ids = ids
		}
	}
}

func WithLimits(limits Limits) Option {
	return func(app *App) {
		app.limits = limits
	}
}

// WithLogger sets the logger used for access logs and recovered panics.
func WithLogger(logger observability.StructuredLogger) Option {
	return func(app *App) {
		app.logger = observability.OrNoOp(logger).WithField("component", "http")
	}
}

// WithMetrics records request counts and latencies. A nil value disables metrics.
func WithMetrics(metrics *RequestMetrics) Option {
	return func(app *App) {
		app.metrics = metrics
	}
}

// Handle registers handler for method and pattern. Patterns use {name} for one path segment
// and a trailing {name+} for the rest of the path. Invalid patterns are logged and skipped.
func (a *App) Handle(method, pattern string, handler Handler) *App {
	if err := a.router.add(method, pattern, handler); err != nil {
		a.logger.Error("route rejected", map[string]any{
			"method":  method,
			"pattern": pattern,
			"error":   err.Error(),
		})
	}
	return a
}

func (a *App) Get(pattern string, h Handler) *App    { return a.Handle("GET", pattern, h) }
func (a *App) Post(pattern string, h Handler) *App   { return a.Handle("POST", pattern, h) }
func (a *App) Put(pattern string, h Handler) *App    { return a.Handle("PUT", pattern, h) }
func (a *App) Delete(pattern string, h Handler) *App { return a.Handle("DELETE", pattern, h) }
