package zap

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/theory-cloud/phototheory/pkg/observability"
)

// notifyQueue delivers error entries to an ErrorNotifier on a single background goroutine.
// Entries that do not fit in the buffer are dropped and counted.
type notifyQueue struct {
	notifier   observability.ErrorNotifier
	maxRetries int
	retryDelay time.Duration
	onError    func(error)

	mu      sync.Mutex
	ch      chan observability.LogEntry
	pending int
	idle    chan struct{} // closed while pending is zero
	done    chan struct{}

	dropped atomic.Int64
}

func newNotifyQueue(notifier observability.ErrorNotifier, cfg observability.LoggerConfig, onError func(error)) *notifyQueue {
	q := &notifyQueue{
		notifier:   notifier,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		onError:    onError,
		ch:         make(chan observability.LogEntry, cfg.BufferSize),
		idle:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	close(q.idle)
	go q.run(q.ch)
	return q
}

func (q *notifyQueue) enqueue(entry observability.LogEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch == nil {
		q.dropped.Add(1)
		return
	}

	select {
	case q.ch <- entry:
		if q.pending == 0 {
			q.idle = make(chan struct{})
		}
		q.pending++
	default:
		q.dropped.Add(1)
	}
}

func (q *notifyQueue) settle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending--; q.pending == 0 {
		close(q.idle)
	}
}

func (q *notifyQueue) run(entries <-chan observability.LogEntry) {
	defer close(q.done)
	for entry := range entries {
		if err := q.deliver(entry); err != nil && q.onError != nil {
			q.onError(err)
		}
		q.settle()
	}
}

func (q *notifyQueue) deliver(entry observability.LogEntry) error {
	var lastErr error
	for attempt := 0; attempt < q.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(q.retryDelay)
		}
		if lastErr = q.notifier.Notify(context.Background(), entry); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

// wait returns once every queued entry has been delivered or ctx is done.
func (q *notifyQueue) wait(ctx context.Context) {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-idle:
	}
}

// close stops accepting entries and drains what is already queued. Only q.ch is cleared; run
// keeps ranging over its own copy of the channel until it is drained.
func (q *notifyQueue) close() {
	q.mu.Lock()
	if q.ch != nil {
		close(q.ch)
		q.ch = nil
	}
	q.mu.Unlock()
	<-q.done
}
