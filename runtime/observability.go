package phototheory

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics counts served requests by route pattern.
type RequestMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRequestMetrics creates the request collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewRequestMetrics(reg prometheus.Registerer) (*RequestMetrics, error) {
	m := &RequestMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "phototheory",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "phototheory",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// recordRequest writes the access log line and updates metrics. Unmatched requests share one
// route label so arbitrary paths cannot grow metric cardinality.
func (a *App) recordRequest(x *exchange, status int, elapsed time.Duration) {
	route := x.route
	if route == "" {
		route = "unmatched"
	}
	if a.metrics != nil {
		a.metrics.requests.WithLabelValues(x.method, route, strconv.Itoa(status)).Inc()
		a.metrics.duration.WithLabelValues(x.method, route).Observe(elapsed.Seconds())
	}

	fields := map[string]any{
		"method":      x.method,
		"path":        x.path,
		"route":       route,
		"status":      status,
		"duration_ms": elapsed.Milliseconds(),
	}
	if x.errorCode != "" {
		fields["error_code"] = x.errorCode
	}
	logger := a.logger.WithRequestID(x.requestID)
	switch {
	case status >= 500:
		logger.Error("request.completed", fields)
	case status >= 400:
		logger.Warn("request.completed", fields)
	default:
		logger.Info("request.completed", fields)
	}
}
