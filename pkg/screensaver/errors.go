package screensaver

import (
	"errors"
	"strings"
)

var (
	// ErrConflict is returned when an insert or rename would duplicate an image name.
	ErrConflict = errors.New("screensaver: image already exists")
	// ErrNotFound is returned when a rename or delete targets an unknown image name.
	ErrNotFound = errors.New("screensaver: image not found")
)

// ConflictError lists every name that blocked an insert. It matches ErrConflict.
type ConflictError struct {
	Keys []string
}

func (e *ConflictError) Error() string {
	if e == nil || len(e.Keys) == 0 {
		return ErrConflict.Error()
	}
	return ErrConflict.Error() + ": " + strings.Join(e.Keys, ", ")
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

type notFoundError struct {
	name string
}

func (e *notFoundError) Error() string {
	return ErrNotFound.Error() + ": " + e.name
}

func (e *notFoundError) Unwrap() error {
	return ErrNotFound
}
