package catalog

import (
	"context"
	"encoding/base64"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/theory-cloud/phototheory/pkg/screensaver"
)

type memoryRecord struct {
	ID        string
	Image     screensaver.Image
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MemoryCatalog keeps the catalog in process memory.
//
// Records are lost on restart. Use it for local development and tests.
type MemoryCatalog struct {
	mu      sync.RWMutex
	records map[string]*memoryRecord
	now     func() time.Time
}

var _ Catalog = (*MemoryCatalog)(nil)

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		records: make(map[string]*memoryRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryCatalog) FetchAll(_ context.Context) (map[string]screensaver.Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]screensaver.Image, len(m.records))
	for name, rec := range m.records {
		out[name] = rec.Image
	}
	return out, nil
}

func (m *MemoryCatalog) Get(_ context.Context, name string) (screensaver.Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[name]
	if !ok {
		return screensaver.Image{}, ErrImageNotFound
	}
	return rec.Image, nil
}

// Page returns images in name order. The cursor encodes the last name returned, so inserts and
// deletes between calls neither repeat nor skip surviving images.
func (m *MemoryCatalog) Page(_ context.Context, query PageQuery) (Page, error) {
	after := ""
	if query.Cursor != "" {
		decoded, err := base64.RawURLEncoding.DecodeString(query.Cursor)
		if err != nil || len(decoded) == 0 {
			return Page{}, ErrInvalidCursor
		}
		after = string(decoded)
	}

	m.mu.RLock()
	names := make([]string, 0, len(m.records))
	for name := range m.records {
		if after == "" || name > after {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	limit := normalizeLimit(query.Limit)
	hasMore := len(names) > limit
	if hasMore {
		names = names[:limit]
	}
	images := make([]screensaver.Image, 0, len(names))
	for _, name := range names {
		images = append(images, m.records[name].Image)
	}
	m.mu.RUnlock()

	page := Page{Images: images}
	if hasMore {
		page.NextCursor = base64.RawURLEncoding.EncodeToString([]byte(names[len(names)-1]))
	}
	return page, nil
}

func (m *MemoryCatalog) Save(_ context.Context, img screensaver.Image) error {
	if err := validName(img.Name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[img.Name]; exists {
		return ErrImageExists
	}
	now := m.now()
	m.records[img.Name] = &memoryRecord{
		ID:        ulid.Make().String(),
		Image:     img,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (m *MemoryCatalog) Rename(_ context.Context, oldName, newName string) error {
	if err := validName(newName); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[oldName]
	if !ok {
		return ErrImageNotFound
	}
	if oldName == newName {
		return nil
	}
	if _, exists := m.records[newName]; exists {
		return ErrImageExists
	}

	renamed := *rec
	renamed.Image.Name = newName
	renamed.UpdatedAt = m.now()
	delete(m.records, oldName)
	m.records[newName] = &renamed
	return nil
}

func (m *MemoryCatalog) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[name]; !ok {
		return ErrImageNotFound
	}
	delete(m.records, name)
	return nil
}

// ReplaceAll keeps the record ID and creation time of images that survive.
func (m *MemoryCatalog) ReplaceAll(_ context.Context, images []screensaver.Image) error {
	for _, img := range images {
		if err := validName(img.Name); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	next := make(map[string]*memoryRecord, len(images))
	for _, img := range images {
		if rec, ok := m.records[img.Name]; ok {
			kept := *rec
			if kept.Image != img {
				kept.Image = img
				kept.UpdatedAt = now
			}
			next[img.Name] = &kept
			continue
		}
		next[img.Name] = &memoryRecord{
			ID:        ulid.Make().String(),
			Image:     img,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	m.records = next
	return nil
}
