// Package canon rebuilds the catalog from the image files actually present on disk.
package canon

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/theory-cloud/phototheory/pkg/catalog"
	"github.com/theory-cloud/phototheory/pkg/observability"
	"github.com/theory-cloud/phototheory/pkg/screensaver"
)

// Files is the subset of the media store canon needs.
type Files interface {
	List() ([]string, error)
	Dimensions(name string) (width, height uint32, err error)
}

// Rotation is the subset of the screensaver manager canon needs.
type Rotation interface {
	Replace(images map[string]screensaver.Image)
}

type Syncer struct {
	files    Files
	catalog  catalog.Catalog
	rotation Rotation
	logger   observability.StructuredLogger
}

func NewSyncer(files Files, cat catalog.Catalog, rotation Rotation, logger observability.StructuredLogger) *Syncer {
	return &Syncer{
		files:    files,
		catalog:  cat,
		rotation: rotation,
		logger:   observability.OrNoOp(logger).WithField("component", "canon"),
	}
}

// Sync reads the dimensions of every file on disk, makes the catalog match, and reseeds the
// rotation. Every unreadable file is reported; nothing is written unless all files decode.
func (s *Syncer) Sync(ctx context.Context) ([]screensaver.Image, error) {
	names, err := s.files.List()
	if err != nil {
		return nil, fmt.Errorf("canon: list files: %w", err)
	}

	images := make([]screensaver.Image, 0, len(names))
	var decodeErr error
	for _, name := range names {
		width, height, err := s.files.Dimensions(name)
		if err != nil {
			decodeErr = multierr.Append(decodeErr, err)
			continue
		}
		images = append(images, screensaver.Image{Name: name, Width: width, Height: height})
	}
	if decodeErr != nil {
		s.logger.Warn("canon sync aborted", map[string]any{
			"failed": len(multierr.Errors(decodeErr)),
			"error":  decodeErr,
		})
		return nil, fmt.Errorf("canon: read dimensions: %w", decodeErr)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.catalog.ReplaceAll(ctx, images); err != nil {
		return nil, fmt.Errorf("canon: replace catalog: %w", err)
	}

	rotation := make(map[string]screensaver.Image, len(images))
	for _, img := range images {
		rotation[img.Name] = img
	}
	s.rotation.Replace(rotation)

	s.logger.Info("canon sync complete", map[string]any{"images": len(images)})
	return images, nil
}
