// Package activity keeps a durable, newest-first history of changes to the image collection.
package activity

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kinds of recorded events.
const (
	KindUploaded    = "image.uploaded"
	KindRenamed     = "image.renamed"
	KindDeleted     = "image.deleted"
	KindCanonSynced = "catalog.canon_synced"
	KindReseeded    = "rotation.reseeded"
)

const (
	defaultLimit = 50
	maxLimit     = 500

	// DefaultRetention is how long an event is kept before the table TTL removes it.
	DefaultRetention = 30 * 24 * time.Hour
)

var (
	ErrInvalidEvent  = errors.New("activity: event kind is required")
	ErrInvalidCursor = errors.New("activity: invalid cursor")
)

// Event is one change to the collection. Image and PreviousName are empty for events that touch
// the whole collection, which report Count instead.
type Event struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Image        string    `json:"fileName,omitempty"`
	PreviousName string    `json:"previousName,omitempty"`
	Count        int       `json:"count,omitempty"`
	RequestID    string    `json:"requestId,omitempty"`
	At           time.Time `json:"at"`
}

// Query selects a page of events, newest first. Kind filters when set.
type Query struct {
	Kind   string
	Limit  int
	Cursor string
}

type Page struct {
	Events     []Event
	NextCursor string
}

// Log records and lists events.
type Log interface {
	Record(ctx context.Context, event Event) (Event, error)
	Recent(ctx context.Context, query Query) (Page, error)
}

// prepare fills in the ID and timestamp.
func prepare(event Event, now time.Time) (Event, error) {
	event.Kind = strings.TrimSpace(event.Kind)
	if event.Kind == "" {
		return Event{}, ErrInvalidEvent
	}
	if event.At.IsZero() {
		event.At = now.UTC()
	}
	if strings.TrimSpace(event.ID) == "" {
		event.ID = ulid.Make().String()
	}
	return event, nil
}

// sortKey orders events by time, then by ID for events in the same nanosecond.
func sortKey(event Event) string {
	return fmt.Sprintf("%020d#%s", event.At.UnixNano(), event.ID)
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	default:
		return limit
	}
}

func encodeCursor(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func decodeCursor(cursor string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil || len(raw) == 0 {
		return "", ErrInvalidCursor
	}
	return string(raw), nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(_ context.Context, event Event) (Event, error) { return event, nil }

func (Nop) Recent(context.Context, Query) (Page, error) { return Page{}, nil }
