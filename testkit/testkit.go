// Package testkit builds deterministic apps and synthetic AWS events for tests of the photo
// service.
package testkit

import (
	"strconv"
	"sync"
	"time"

	phototheory "github.com/theory-cloud/phototheory/runtime"
)

// Env pins time and request IDs for every app it builds.
type Env struct {
	Clock *ManualClock
	IDs   *Sequence
}

// New starts the clock at the Unix epoch.
func New() *Env {
	return NewWithTime(time.Unix(0, 0).UTC())
}

func NewWithTime(now time.Time) *Env {
	return &Env{Clock: NewManualClock(now), IDs: NewSequence("test-id")}
}

// App builds an App on the env's clock and IDs. Options passed here are applied after those,
// so they can override either.
func (e *Env) App(opts ...phototheory.Option) *phototheory.App {
	base := []phototheory.Option{phototheory.WithClock(e.Clock), phototheory.WithIDGenerator(e.IDs)}
	return phototheory.New(append(base, opts...)...)
}

// ManualClock only moves when told to. It is safe for concurrent use.
type ManualClock struct {
	mu  sync.RWMutex
	now time.Time
}

var _ phototheory.Clock = (*ManualClock)(nil)

func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *ManualClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Sequence hands out queued IDs first, then "<prefix>-1", "<prefix>-2" and so on.
type Sequence struct {
	prefix string

	mu     sync.Mutex
	issued int
	queued []string
}

var _ phototheory.IDGenerator = (*Sequence)(nil)

func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// Queue makes the next NewID calls return ids, in order.
func (s *Sequence) Queue(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = append(s.queued, ids...)
}

func (s *Sequence) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queued) > 0 {
		id := s.queued[0]
		s.queued = s.queued[1:]
		return id
	}
	s.issued++
	return s.prefix + "-" + strconv.Itoa(s.issued)
}
