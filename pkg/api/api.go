// Package api exposes the image catalog and the screensaver rotation over HTTP.
package api

import (
	"context"
	"errors"

	"github.com/theory-cloud/phototheory/pkg/activity"
	"github.com/theory-cloud/phototheory/pkg/catalog"
	"github.com/theory-cloud/phototheory/pkg/media"
	"github.com/theory-cloud/phototheory/pkg/observability"
	"github.com/theory-cloud/phototheory/pkg/screensaver"
	phototheory "github.com/theory-cloud/phototheory/runtime"
)

// DefaultMaxUploadBytes caps a single uploaded image.
const DefaultMaxUploadBytes = 250 << 20

// Canon rebuilds the catalog and rotation from disk.
type Canon interface {
	Sync(ctx context.Context) ([]screensaver.Image, error)
}

// Reseeder rebuilds the rotation from the catalog.
type Reseeder interface {
	Reseed(ctx context.Context) (int, error)
}

// Deps are the collaborators shared by every handler.
type Deps struct {
	Catalog  catalog.Catalog
	Media    *media.Store
	Rotation *screensaver.Manager
	Canon    Canon
	Reseeder Reseeder
	// Activity is optional; without it nothing is recorded.
	Activity activity.Log
}

type Option func(*Server)

func WithLogger(logger observability.StructuredLogger) Option {
	return func(s *Server) {
		s.logger = observability.OrNoOp(logger).WithField("component", "api")
	}
}

// WithMaxUploadBytes overrides DefaultMaxUploadBytes. Zero or negative keeps the default.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// Server holds the handlers. Catalog writes go to the catalog first; the rotation follows and
// any disagreement between the two is logged, never returned to the client.
type Server struct {
	catalog  catalog.Catalog
	media    *media.Store
	rotation *screensaver.Manager
	canon    Canon
	reseeder Reseeder
	activity activity.Log

	logger         observability.StructuredLogger
	maxUploadBytes int64
}

func New(deps Deps, opts ...Option) (*Server, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("api: catalog is required")
	case deps.Media == nil:
		return nil, errors.New("api: media store is required")
	case deps.Rotation == nil:
		return nil, errors.New("api: rotation is required")
	case deps.Canon == nil:
		return nil, errors.New("api: canon syncer is required")
	case deps.Reseeder == nil:
		return nil, errors.New("api: reseeder is required")
	}

	s := &Server{
		catalog:        deps.Catalog,
		media:          deps.Media,
		rotation:       deps.Rotation,
		canon:          deps.Canon,
		reseeder:       deps.Reseeder,
		activity:       deps.Activity,
		logger:         observability.NewNoOpLogger(),
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	if s.activity == nil {
		s.activity = activity.Nop{}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// MaxUploadBytes is the largest request body the upload route accepts, multipart framing
// included.
func (s *Server) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// Register mounts every route on app.
func (s *Server) Register(app *phototheory.App) {
	app.Get("/ping", s.ping)
	app.Get("/images/{name+}", s.serveImage)

	app.Post("/api/image/upload", s.upload)
	app.Get("/api/image/get", s.get)
	app.Get("/api/image/paginated", s.paginated)
	app.Post("/api/image/rename", phototheory.JSONHandler(s.rename))
	app.Post("/api/image/delete", phototheory.JSONHandler(s.delete))
	app.Get("/api/image/current", s.current)
	app.Post("/api/image/resolve", phototheory.JSONHandler(s.resolve))
	app.Post("/api/image/update_canon", s.updateCanon)
	app.Post("/api/image/reseed", s.reseed)
	app.Get("/api/activity", s.recentActivity)
}

func (s *Server) ping(*phototheory.Context) (*phototheory.Response, error) {
	return phototheory.JSON(200, map[string]string{"message": "pong"})
}

// drift logs a rotation update that failed after the catalog already changed. The next reseed
// repairs it.
func (s *Server) drift(ctx *phototheory.Context, op, name string, err error) {
	if err == nil {
		return
	}
	s.logger.WithRequestID(ctx.RequestID).Warn("rotation out of step with catalog", map[string]any{
		"op":    op,
		"image": name,
		"error": err,
	})
}

// record adds a completed change to the activity history. The change already happened, so a
// failure is only logged.
func (s *Server) record(ctx *phototheory.Context, event activity.Event) {
	event.RequestID = ctx.RequestID
	if _, err := s.activity.Record(ctx.Context(), event); err != nil {
		s.logger.WithRequestID(ctx.RequestID).Warn("activity not recorded", map[string]any{
			"kind":  event.Kind,
			"image": event.Image,
			"error": err,
		})
	}
}
