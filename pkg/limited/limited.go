// Package limited throttles write traffic per client with fixed-window counters.
package limited

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidKey = errors.New("limited: identifier and resource are required")

// Key identifies one counter: who is calling and what they are calling.
type Key struct {
	Identifier string
	Resource   string
}

func (k Key) validate() error {
	if strings.TrimSpace(k.Identifier) == "" || strings.TrimSpace(k.Resource) == "" {
		return ErrInvalidKey
	}
	return nil
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed  bool
	Count    int
	Limit    int
	ResetsAt time.Time
	// RetryAfter is set only when the request is denied.
	RetryAfter time.Duration
}

// Limiter counts a request against its window and reports whether it may proceed.
type Limiter interface {
	Allow(ctx context.Context, key Key) (Decision, error)
}

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FixedWindow allows Max requests per Size-aligned window. Max <= 0 denies everything.
type FixedWindow struct {
	Size time.Duration
	Max  int
}

func (w FixedWindow) validate() error {
	if w.Size <= 0 {
		return fmt.Errorf("limited: window size must be positive, got %s", w.Size)
	}
	return nil
}

// bounds returns the start and end of the window containing now.
func (w FixedWindow) bounds(now time.Time) (time.Time, time.Time) {
	start := now.Truncate(w.Size)
	return start, start.Add(w.Size)
}

func (w FixedWindow) decide(count int, now, end time.Time) Decision {
	d := Decision{
		Allowed:  count <= w.Max && w.Max > 0,
		Count:    count,
		Limit:    w.Max,
		ResetsAt: end,
	}
	if !d.Allowed {
		d.RetryAfter = end.Sub(now)
	}
	return d
}
