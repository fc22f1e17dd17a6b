// Package media stores image files on local disk under a single root directory.
package media

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrInvalidName = errors.New("media: invalid file name")
	ErrExists      = errors.New("media: file already exists")
	ErrNotFound    = errors.New("media: file not found")
	ErrTooLarge    = errors.New("media: file too large")
	ErrNotImage    = errors.New("media: unsupported image format")
)

// Store keeps files directly inside Root. Subdirectories are never created or listed.
type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("media: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("media: create root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string {
	return s.root
}

// ValidName reports whether name is a single plain path component: no separators, no "." or
// "..", and no leading dot.
func ValidName(name string) bool {
	if name == "" || name != strings.TrimSpace(name) {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	if strings.HasPrefix(name, ".") {
		return false
	}
	return filepath.Base(name) == name && filepath.IsLocal(name)
}

func (s *Store) path(name string) (string, error) {
	if !ValidName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.root, name), nil
}

// Write creates name from r. It fails with ErrExists if the file is already there and with
// ErrTooLarge if r yields more than maxBytes; a failed write leaves no file behind.
func (s *Store) Write(name string, r io.Reader, maxBytes int64) (err error) {
	path, err := s.path(name)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("media: create %s: %w", name, err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("media: close %s: %w", name, closeErr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		return fmt.Errorf("media: write %s: %w", name, err)
	}
	if maxBytes > 0 && n > maxBytes {
		return ErrTooLarge
	}
	return nil
}

// Open returns the file for reading. The caller closes it.
func (s *Store) Open(name string) (*os.File, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("media: open %s: %w", name, err)
	}
	return f, nil
}

func (s *Store) Exists(name string) bool {
	path, err := s.path(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Rename moves oldName to newName without overwriting an existing file.
func (s *Store) Rename(oldName, newName string) error {
	oldPath, err := s.path(oldName)
	if err != nil {
		return err
	}
	newPath, err := s.path(newName)
	if err != nil {
		return err
	}
	if !s.Exists(oldName) {
		return ErrNotFound
	}
	if oldName == newName {
		return nil
	}
	if _, err := os.Lstat(newPath); err == nil {
		return ErrExists
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("media: rename %s: %w", oldName, err)
	}
	return nil
}

func (s *Store) Remove(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("media: remove %s: %w", name, err)
	}
	return nil
}

// List returns the names of regular files in the root, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("media: list: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() && ValidName(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Dimensions decodes only the image header of name.
func (s *Store) Dimensions(name string) (width, height uint32, err error) {
	f, err := s.Open(name)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return 0, 0, fmt.Errorf("%w: %s", ErrNotImage, name)
		}
		return 0, 0, fmt.Errorf("media: decode %s: %w", name, err)
	}
	if cfg.Width < 0 || cfg.Height < 0 {
		return 0, 0, fmt.Errorf("%w: %s", ErrNotImage, name)
	}
	return uint32(cfg.Width), uint32(cfg.Height), nil //nolint:gosec // checked non-negative above.
}
