package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	tablecore "github.com/theory-cloud/tabletheory/pkg/core"
	tableerrors "github.com/theory-cloud/tabletheory/pkg/errors"

	"github.com/theory-cloud/phototheory/pkg/screensaver"
)

const (
	defaultCatalogTableName = "phototheory-images"
	imagePartition          = "IMAGE"
)

// imageRecord is the DynamoDB representation of a catalog entry. Every image lives in one
// partition so a query on PK lists the catalog in name order.
type imageRecord struct {
	_ struct{} `theorydb:"naming:snake_case"`

	CreatedAt time.Time `json:"created_at" theorydb:"created_at"`
	UpdatedAt time.Time `json:"updated_at" theorydb:"updated_at"`

	PK   string `json:"pk" theorydb:"pk,attr:pk"`
	SK   string `json:"sk" theorydb:"sk,attr:sk"`
	ID   string `json:"id"`
	Name string `json:"name"`

	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

var (
	catalogTableNameMu       sync.RWMutex
	catalogTableNameOverride string
)

func (imageRecord) TableName() string {
	catalogTableNameMu.RLock()
	override := catalogTableNameOverride
	catalogTableNameMu.RUnlock()
	if override != "" {
		return override
	}
	if name := os.Getenv("PHOTOTHEORY_CATALOG_TABLE_NAME"); name != "" {
		return name
	}
	if name := os.Getenv("CATALOG_TABLE_NAME"); name != "" {
		return name
	}
	return defaultCatalogTableName
}

// setCatalogTableName pins the table for the process lifetime; TableTheory caches model
// metadata, so it cannot change once set.
func setCatalogTableName(name string) error {
	if name == "" {
		return nil
	}
	catalogTableNameMu.Lock()
	defer catalogTableNameMu.Unlock()
	if catalogTableNameOverride != "" && catalogTableNameOverride != name {
		return fmt.Errorf("catalog table name already set to %q (cannot change to %q)", catalogTableNameOverride, name)
	}
	catalogTableNameOverride = name
	return nil
}

func newImageRecord(img screensaver.Image, now time.Time) *imageRecord {
	return &imageRecord{
		PK:        imagePartition,
		SK:        img.Name,
		ID:        ulid.Make().String(),
		Name:      img.Name,
		Width:     img.Width,
		Height:    img.Height,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *imageRecord) image() screensaver.Image {
	return screensaver.Image{Name: r.Name, Width: r.Width, Height: r.Height}
}

type DynamoOptions struct {
	// TableName overrides the environment-derived table name.
	TableName string
}

// DynamoCatalog stores the catalog in DynamoDB through TableTheory.
type DynamoCatalog struct {
	db  tablecore.DB
	now func() time.Time
}

var _ Catalog = (*DynamoCatalog)(nil)

func NewDynamoCatalog(db tablecore.DB, opts DynamoOptions) (*DynamoCatalog, error) {
	if db == nil {
		return nil, errors.New("catalog: dynamodb client is nil")
	}
	if err := setCatalogTableName(opts.TableName); err != nil {
		return nil, err
	}
	return &DynamoCatalog{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (d *DynamoCatalog) FetchAll(ctx context.Context) (map[string]screensaver.Image, error) {
	ctx = ensureContext(ctx)

	out := make(map[string]screensaver.Image)
	cursor := ""
	for {
		records, next, err := d.query(ctx, maxPageLimit, cursor)
		if err != nil {
			return nil, err
		}
		for i := range records {
			out[records[i].Name] = records[i].image()
		}
		if next == "" {
			return out, nil
		}
		cursor = next
	}
}

func (d *DynamoCatalog) Get(ctx context.Context, name string) (screensaver.Image, error) {
	rec, err := d.get(ensureContext(ctx), name)
	if err != nil {
		return screensaver.Image{}, err
	}
	return rec.image(), nil
}

func (d *DynamoCatalog) Page(ctx context.Context, query PageQuery) (Page, error) {
	records, next, err := d.query(ensureContext(ctx), normalizeLimit(query.Limit), query.Cursor)
	if err != nil {
		return Page{}, err
	}
	images := make([]screensaver.Image, 0, len(records))
	for i := range records {
		images = append(images, records[i].image())
	}
	return Page{Images: images, NextCursor: next}, nil
}

func (d *DynamoCatalog) Save(ctx context.Context, img screensaver.Image) error {
	if err := validName(img.Name); err != nil {
		return err
	}
	return d.create(ensureContext(ctx), newImageRecord(img, d.now()))
}

// Rename writes the new record before deleting the old one. If the delete fails the new record
// is removed again so the catalog never holds both names.
func (d *DynamoCatalog) Rename(ctx context.Context, oldName, newName string) error {
	ctx = ensureContext(ctx)
	if err := validName(newName); err != nil {
		return err
	}

	rec, err := d.get(ctx, oldName)
	if err != nil {
		return err
	}
	if oldName == newName {
		return nil
	}

	renamed := *rec
	renamed.SK = newName
	renamed.Name = newName
	renamed.UpdatedAt = d.now()
	if err := d.create(ctx, &renamed); err != nil {
		return err
	}

	if err := d.delete(ctx, oldName); err != nil {
		if rollbackErr := d.delete(ctx, newName); rollbackErr != nil {
			return errors.Join(err, fmt.Errorf("catalog: roll back rename: %w", rollbackErr))
		}
		return err
	}
	return nil
}

func (d *DynamoCatalog) Delete(ctx context.Context, name string) error {
	ctx = ensureContext(ctx)
	if _, err := d.get(ctx, name); err != nil {
		return err
	}
	return d.delete(ctx, name)
}

// ReplaceAll diffs against the stored catalog: it deletes missing images, creates new ones and
// updates dimensions that changed.
func (d *DynamoCatalog) ReplaceAll(ctx context.Context, images []screensaver.Image) error {
	ctx = ensureContext(ctx)
	for _, img := range images {
		if err := validName(img.Name); err != nil {
			return err
		}
	}

	existing, err := d.FetchAll(ctx)
	if err != nil {
		return err
	}

	wanted := make(map[string]struct{}, len(images))
	now := d.now()
	for _, img := range images {
		wanted[img.Name] = struct{}{}
		current, ok := existing[img.Name]
		switch {
		case !ok:
			err = d.create(ctx, newImageRecord(img, now))
		case current != img:
			err = d.updateDimensions(ctx, img, now)
		}
		if err != nil {
			return err
		}
	}

	for name := range existing {
		if _, keep := wanted[name]; keep {
			continue
		}
		if err := d.delete(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (d *DynamoCatalog) get(ctx context.Context, name string) (*imageRecord, error) {
	var rec imageRecord
	err := d.db.Model(&imageRecord{}).
		WithContext(ctx).
		Where("PK", "=", imagePartition).
		Where("SK", "=", name).
		First(&rec)
	if err != nil {
		if tableerrors.IsNotFound(err) {
			return nil, ErrImageNotFound
		}
		return nil, fmt.Errorf("catalog: get image: %w", err)
	}
	return &rec, nil
}

func (d *DynamoCatalog) query(ctx context.Context, limit int, cursor string) ([]imageRecord, string, error) {
	q := d.db.Model(&imageRecord{}).
		WithContext(ctx).
		Where("PK", "=", imagePartition).
		OrderBy("SK", "ASC").
		Limit(limit)
	if cursor != "" {
		q = q.Cursor(cursor)
	}

	var out []imageRecord
	page, err := q.AllPaginated(&out)
	if err != nil {
		return nil, "", fmt.Errorf("catalog: list images: %w", err)
	}
	if page != nil && page.HasMore && page.NextCursor != "" {
		return out, page.NextCursor, nil
	}
	return out, "", nil
}

func (d *DynamoCatalog) create(ctx context.Context, rec *imageRecord) error {
	err := d.db.Model(rec).WithContext(ctx).IfNotExists().Create()
	if err != nil {
		if tableerrors.IsConditionFailed(err) {
			return ErrImageExists
		}
		return fmt.Errorf("catalog: create image: %w", err)
	}
	return nil
}

func (d *DynamoCatalog) updateDimensions(ctx context.Context, img screensaver.Image, now time.Time) error {
	err := d.db.Model(&imageRecord{}).
		WithContext(ctx).
		Where("PK", "=", imagePartition).
		Where("SK", "=", img.Name).
		UpdateBuilder().
		Set("Width", img.Width).
		Set("Height", img.Height).
		Set("UpdatedAt", now).
		Execute()
	if err != nil {
		return fmt.Errorf("catalog: update image: %w", err)
	}
	return nil
}

func (d *DynamoCatalog) delete(ctx context.Context, name string) error {
	err := d.db.Model(&imageRecord{}).
		WithContext(ctx).
		Where("PK", "=", imagePartition).
		Where("SK", "=", name).
		Delete()
	if err != nil {
		return fmt.Errorf("catalog: delete image: %w", err)
	}
	return nil
}
