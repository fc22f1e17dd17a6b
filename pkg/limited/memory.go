package limited

import (
	"context"
	"sync"
	"time"
)

type memoryCounter struct {
	count int
	end   time.Time
}

// MemoryLimiter keeps counters in process. Each instance counts independently, so it only
// limits a single server.
type MemoryLimiter struct {
	mu       sync.Mutex
	window   FixedWindow
	clock    Clock
	counters map[Key]*memoryCounter
}

func NewMemoryLimiter(window FixedWindow) (*MemoryLimiter, error) {
	if err := window.validate(); err != nil {
		return nil, err
	}
	return &MemoryLimiter{
		window:   window,
		clock:    RealClock{},
		counters: make(map[Key]*memoryCounter),
	}, nil
}

func (m *MemoryLimiter) SetClock(clock Clock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if clock == nil {
		clock = RealClock{}
	}
	m.clock = clock
}

func (m *MemoryLimiter) Allow(_ context.Context, key Key) (Decision, error) {
	if err := key.validate(); err != nil {
		return Decision{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	_, end := m.window.bounds(now)
	m.evict(now)

	counter, ok := m.counters[key]
	if !ok {
		counter = &memoryCounter{end: end}
		m.counters[key] = counter
	}
	// Denied requests are not counted, matching the conditional increment of DynamoLimiter.
	if counter.count < m.window.Max {
		counter.count++
		return m.window.decide(counter.count, now, end), nil
	}
	return m.window.decide(counter.count+1, now, end), nil
}

func (m *MemoryLimiter) evict(now time.Time) {
	for key, counter := range m.counters {
		if !now.Before(counter.end) {
			delete(m.counters, key)
		}
	}
}
