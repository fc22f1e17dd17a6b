package activity

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryLog keeps the most recent events in process. It is lost on restart, so it only suits
// local runs and tests.
type MemoryLog struct {
	mu        sync.RWMutex
	events    []Event // oldest first
	maxEvents int
	now       func() time.Time
}

var _ Log = (*MemoryLog)(nil)

// NewMemoryLog keeps at most maxEvents; zero or less keeps 1000.
func NewMemoryLog(maxEvents int) *MemoryLog {
	if maxEvents <= 0 {
		maxEvents = 1000
	}
	return &MemoryLog{maxEvents: maxEvents, now: time.Now}
}

func (m *MemoryLog) Record(_ context.Context, event Event) (Event, error) {
	event, err := prepare(event, m.now())
	if err != nil {
		return Event{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := sortKey(event)
	i := sort.Search(len(m.events), func(i int) bool { return sortKey(m.events[i]) > key })
	m.events = append(m.events, Event{})
	copy(m.events[i+1:], m.events[i:])
	m.events[i] = event
	if over := len(m.events) - m.maxEvents; over > 0 {
		m.events = append([]Event(nil), m.events[over:]...)
	}
	return event, nil
}

func (m *MemoryLog) Recent(_ context.Context, query Query) (Page, error) {
	before := ""
	if query.Cursor != "" {
		key, err := decodeCursor(query.Cursor)
		if err != nil {
			return Page{}, err
		}
		before = key
	}
	limit := normalizeLimit(query.Limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var page Page
	for i := len(m.events) - 1; i >= 0; i-- {
		event := m.events[i]
		if before != "" && sortKey(event) >= before {
			continue
		}
		if query.Kind != "" && event.Kind != query.Kind {
			continue
		}
		if len(page.Events) == limit {
			page.NextCursor = encodeCursor(sortKey(page.Events[limit-1]))
			break
		}
		page.Events = append(page.Events, event)
	}
	return page, nil
}
