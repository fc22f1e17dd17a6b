// Package reseed rebuilds the screensaver rotation from the catalog.
//
// The rotation is a cache; reseeding is how it catches up with catalog changes made outside
// this process.
package reseed

import (
	"context"
	"fmt"
	"time"

	"github.com/theory-cloud/phototheory/pkg/catalog"
	"github.com/theory-cloud/phototheory/pkg/observability"
	"github.com/theory-cloud/phototheory/pkg/screensaver"
)

const defaultFetchTimeout = 30 * time.Second

// Rotation is the subset of the screensaver manager the reseeder needs.
type Rotation interface {
	Replace(images map[string]screensaver.Image)
}

type Option func(*Reseeder)

func WithLogger(logger observability.StructuredLogger) Option {
	return func(r *Reseeder) {
		r.logger = observability.OrNoOp(logger).WithField("component", "reseed")
	}
}

// WithFetchTimeout bounds each catalog fetch. Zero or negative keeps the default.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Reseeder) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

type Reseeder struct {
	catalog      catalog.Catalog
	rotation     Rotation
	logger       observability.StructuredLogger
	fetchTimeout time.Duration
}

func New(cat catalog.Catalog, rotation Rotation, opts ...Option) *Reseeder {
	r := &Reseeder{
		catalog:      cat,
		rotation:     rotation,
		logger:       observability.NewNoOpLogger(),
		fetchTimeout: defaultFetchTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Reseed replaces the rotation with the full catalog and returns the number of images. On
// error the rotation is left as it was.
func (r *Reseeder) Reseed(ctx context.Context) (int, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	images, err := r.catalog.FetchAll(fetchCtx)
	if err != nil {
		return 0, fmt.Errorf("reseed: fetch catalog: %w", err)
	}
	r.rotation.Replace(images)
	r.logger.Info("rotation reseeded", map[string]any{"images": len(images)})
	return len(images), nil
}

// Run reseeds every interval until ctx is done. Failures are logged and retried on the next
// tick.
func (r *Reseeder) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Reseed(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("periodic reseed failed", map[string]any{"error": err})
			}
		}
	}
}
