package observability

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/theory-cloud/phototheory/pkg/sanitization"
)

// recorder is the state every logger derived from one TestLogger writes into.
type recorder struct {
	mu        sync.Mutex
	entries   []LogEntry
	flushes   int64
	lastFlush time.Time
	closed    bool
}

// TestLogger keeps entries in memory so tests can assert on what was logged. Loggers derived
// with With* write to the same recorder as their root.
type TestLogger struct {
	rec       *recorder
	fields    map[string]any
	requestID string
}

var _ StructuredLogger = (*TestLogger)(nil)

func NewTestLogger() *TestLogger {
	return &TestLogger{rec: &recorder{}}
}

// Entries returns a snapshot of everything logged so far.
func (l *TestLogger) Entries() []LogEntry {
	l.rec.mu.Lock()
	defer l.rec.mu.Unlock()
	return slices.Clone(l.rec.entries)
}

// EntriesAt returns the entries logged at level.
func (l *TestLogger) EntriesAt(level string) []LogEntry {
	return slices.DeleteFunc(l.Entries(), func(e LogEntry) bool { return e.Level != level })
}

func (l *TestLogger) Debug(message string, fields ...map[string]any) { l.append("debug", message, fields) }
func (l *TestLogger) Info(message string, fields ...map[string]any)  { l.append("info", message, fields) }
func (l *TestLogger) Warn(message string, fields ...map[string]any)  { l.append("warn", message, fields) }
func (l *TestLogger) Error(message string, fields ...map[string]any) { l.append("error", message, fields) }

func (l *TestLogger) WithField(key string, value any) StructuredLogger {
	return l.derive(map[string]any{key: value}, l.requestID)
}

func (l *TestLogger) WithFields(fields map[string]any) StructuredLogger {
	return l.derive(fields, l.requestID)
}

func (l *TestLogger) WithRequestID(requestID string) StructuredLogger {
	return l.derive(nil, requestID)
}

// Flush only counts; entries are visible as soon as they are logged.
func (l *TestLogger) Flush(ctx context.Context) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	l.rec.mu.Lock()
	l.rec.flushes++
	l.rec.lastFlush = time.Now()
	l.rec.mu.Unlock()
	return nil
}

// Close stops recording for the root and every derived logger.
func (l *TestLogger) Close() error {
	l.rec.mu.Lock()
	l.rec.closed = true
	l.rec.mu.Unlock()
	return nil
}

func (l *TestLogger) IsHealthy() bool {
	l.rec.mu.Lock()
	defer l.rec.mu.Unlock()
	return !l.rec.closed
}

func (l *TestLogger) GetStats() LoggerStats {
	l.rec.mu.Lock()
	defer l.rec.mu.Unlock()
	return LoggerStats{
		LastFlush:     l.rec.lastFlush,
		EntriesLogged: int64(len(l.rec.entries)),
		FlushCount:    l.rec.flushes,
	}
}

func (l *TestLogger) derive(extra map[string]any, requestID string) *TestLogger {
	fields := maps.Clone(l.fields)
	if fields == nil {
		fields = make(map[string]any, len(extra))
	}
	maps.Copy(fields, extra)
	return &TestLogger{rec: l.rec, fields: fields, requestID: requestID}
}

func (l *TestLogger) append(level, message string, sets []map[string]any) {
	fields := make(map[string]any, len(l.fields))
	for _, set := range append([]map[string]any{l.fields}, sets...) {
		for k, v := range set {
			fields[k] = sanitization.SanitizeFieldValue(k, v)
		}
	}
	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   sanitization.SanitizeLogString(message),
		Fields:    fields,
		RequestID: l.requestID,
	}

	l.rec.mu.Lock()
	defer l.rec.mu.Unlock()
	if !l.rec.closed {
		l.rec.entries = append(l.rec.entries, entry)
	}
}
