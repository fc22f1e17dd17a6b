package screensaver

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "phototheory"

// Metrics exports rotation gauges and counters. A nil *Metrics records nothing.
type Metrics struct {
	images          prometheus.Gauge
	resolves        *prometheus.CounterVec
	wraps           prometheus.Counter
	recoveredPanics prometheus.Counter
}

// NewMetrics creates the rotation collectors and registers them with reg. Collectors already
// registered with reg are reused, so several Managers may share one registry. A nil reg skips
// registration.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		images: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "screensaver",
			Name:      "images",
			Help:      "Number of images in the current rotation.",
		}),
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "screensaver",
			Name:      "resolve_total",
			Help:      "Resolve calls partitioned by outcome.",
		}, []string{"status"}),
		wraps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "screensaver",
			Name:      "wraps_total",
			Help:      "Number of completed cycles that triggered a reshuffle.",
		}),
		recoveredPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "screensaver",
			Name:      "recovered_panics_total",
			Help:      "Panics raised while the rotation lock was held.",
		}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.images, err = register(reg, m.images); err != nil {
		return nil, err
	}
	if m.resolves, err = register(reg, m.resolves); err != nil {
		return nil, err
	}
	if m.wraps, err = register(reg, m.wraps); err != nil {
		return nil, err
	}
	if m.recoveredPanics, err = register(reg, m.recoveredPanics); err != nil {
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

func (m *Metrics) observe(size int, wrapped uint64) {
	if m == nil {
		return
	}
	m.images.Set(float64(size))
	if wrapped > 0 {
		m.wraps.Add(float64(wrapped))
	}
}

func (m *Metrics) resolved(result ResolveState) {
	if m == nil {
		return
	}
	m.resolves.WithLabelValues(string(result)).Inc()
}

func (m *Metrics) recoveredPanic() {
	if m == nil {
		return
	}
	m.recoveredPanics.Inc()
}
