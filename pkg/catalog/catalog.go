// Package catalog is the durable record of which images exist and their dimensions.
//
// The catalog is authoritative; the screensaver rotation is rebuilt from FetchAll.
package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/theory-cloud/phototheory/pkg/screensaver"
)

var (
	ErrImageNotFound = errors.New("catalog: image not found")
	ErrImageExists   = errors.New("catalog: image already exists")
	ErrInvalidCursor = errors.New("catalog: invalid cursor")
	ErrInvalidName   = errors.New("catalog: image name cannot be empty")
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// PageQuery selects one page of images in name order. Cursor is the NextCursor of the previous
// page, or empty for the first page.
type PageQuery struct {
	Limit  int
	Cursor string
}

// Page is one slice of the catalog. NextCursor is empty on the last page.
type Page struct {
	Images     []screensaver.Image
	NextCursor string
}

// Catalog stores image metadata keyed by name.
type Catalog interface {
	// FetchAll returns every image keyed by name.
	FetchAll(ctx context.Context) (map[string]screensaver.Image, error)
	Get(ctx context.Context, name string) (screensaver.Image, error)
	Page(ctx context.Context, query PageQuery) (Page, error)
	// Save records a new image. It fails with ErrImageExists if the name is taken.
	Save(ctx context.Context, img screensaver.Image) error
	Rename(ctx context.Context, oldName, newName string) error
	Delete(ctx context.Context, name string) error
	// ReplaceAll makes the catalog contain exactly images.
	ReplaceAll(ctx context.Context, images []screensaver.Image) error
}

func normalizeLimit(limit int) int {
	if limit > 0 && limit <= maxPageLimit {
		return limit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return defaultPageLimit
}

func validName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	return nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
