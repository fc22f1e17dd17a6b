// Package zap implements observability.StructuredLogger on go.uber.org/zap, with optional
// fan-out of error entries to an ErrorNotifier.
package zap

import (
	"context"
	"io"
	"maps"
	"slices"
	"sync"
	"time"

	ubzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/theory-cloud/phototheory/pkg/observability"
	"github.com/theory-cloud/phototheory/pkg/sanitization"
)

type Option func(*loggerOptions)

type loggerOptions struct {
	initErr   error
	zapLogger *ubzap.Logger
	output    io.Writer
	sanitizer observability.SanitizerFunc
	notifier  observability.ErrorNotifier
}

// WithZapLogger uses logger as-is instead of building one from the config.
func WithZapLogger(logger *ubzap.Logger) Option {
	return func(o *loggerOptions) { o.zapLogger = logger }
}

// WithOutput redirects encoded entries, which otherwise go to stdout.
func WithOutput(w io.Writer) Option {
	return func(o *loggerOptions) { o.output = w }
}

func WithSanitizer(fn observability.SanitizerFunc) Option {
	return func(o *loggerOptions) { o.sanitizer = fn }
}

func WithErrorNotifier(notifier observability.ErrorNotifier) Option {
	return func(o *loggerOptions) { o.notifier = notifier }
}

// shared is the state behind a root Logger and everything derived from it.
type shared struct {
	base     *ubzap.Logger
	sanitize observability.SanitizerFunc
	queue    *notifyQueue

	mu         sync.Mutex
	closed     bool
	logged     int64
	flushes    int64
	flushTotal time.Duration
	lastFlush  time.Time
	errors     int64
	lastErr    string
}

func (s *shared) recordError(err error) {
	s.mu.Lock()
	s.errors++
	s.lastErr = err.Error()
	s.mu.Unlock()
}

func (s *shared) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Logger is the zap-backed StructuredLogger.
type Logger struct {
	s         *shared
	log       *ubzap.Logger
	fields    map[string]any
	requestID string
}

var _ observability.StructuredLogger = (*Logger)(nil)

func NewZapLogger(config observability.LoggerConfig, options ...Option) (*Logger, error) {
	cfg := normalizeLoggerConfig(config)
	o := loggerOptions{sanitizer: sanitization.SanitizeFieldValue}
	for _, opt := range options {
		if opt != nil {
			opt(&o)
		}
	}
	if o.initErr != nil {
		return nil, o.initErr
	}

	base := o.zapLogger
	if base == nil {
		var err error
		if base, err = buildZapLogger(cfg, o.output); err != nil {
			return nil, err
		}
	}
	if o.sanitizer == nil {
		o.sanitizer = func(_ string, v any) any { return v }
	}

	s := &shared{base: base, sanitize: o.sanitizer}
	if o.notifier != nil {
		s.queue = newNotifyQueue(o.notifier, cfg, s.recordError)
	}
	return &Logger{s: s, log: base}, nil
}

func (l *Logger) Debug(message string, fields ...map[string]any) {
	l.logEntry(zapcore.DebugLevel, message, fields)
}

func (l *Logger) Info(message string, fields ...map[string]any) {
	l.logEntry(zapcore.InfoLevel, message, fields)
}

func (l *Logger) Warn(message string, fields ...map[string]any) {
	l.logEntry(zapcore.WarnLevel, message, fields)
}

func (l *Logger) Error(message string, fields ...map[string]any) {
	l.logEntry(zapcore.ErrorLevel, message, fields)
}

func (l *Logger) WithField(key string, value any) observability.StructuredLogger {
	return l.WithFields(map[string]any{key: value})
}

func (l *Logger) WithFields(fields map[string]any) observability.StructuredLogger {
	next := &Logger{s: l.s, log: l.log.With(l.zapFields(fields)...), requestID: l.requestID}
	next.fields = maps.Clone(l.fields)
	if next.fields == nil {
		next.fields = make(map[string]any, len(fields))
	}
	maps.Copy(next.fields, fields)
	return next
}

func (l *Logger) WithRequestID(requestID string) observability.StructuredLogger {
	return &Logger{
		s:         l.s,
		log:       l.log.With(ubzap.String("request_id", sanitization.SanitizeLogString(requestID))),
		fields:    l.fields,
		requestID: requestID,
	}
}

// Flush syncs zap and waits, bounded by ctx, for queued notifications.
func (l *Logger) Flush(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	err := l.s.base.Sync()
	if err != nil {
		l.s.recordError(err)
	}
	if l.s.queue != nil {
		l.s.queue.wait(ctx)
	}

	l.s.mu.Lock()
	l.s.flushes++
	l.s.flushTotal += time.Since(start)
	l.s.lastFlush = time.Now()
	l.s.mu.Unlock()
	return err
}

// Close drains pending notifications and syncs zap. Closing twice is a no-op.
func (l *Logger) Close() error {
	l.s.mu.Lock()
	already := l.s.closed
	l.s.closed = true
	l.s.mu.Unlock()
	if already {
		return nil
	}

	if l.s.queue != nil {
		l.s.queue.close()
	}
	err := l.s.base.Sync()
	if err != nil {
		l.s.recordError(err)
	}
	return err
}

// IsHealthy is false once closed or after any sync or notification failure.
func (l *Logger) IsHealthy() bool {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return !l.s.closed && l.s.lastErr == ""
}

func (l *Logger) GetStats() observability.LoggerStats {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	stats := observability.LoggerStats{
		LastFlush:     l.s.lastFlush,
		LastError:     l.s.lastErr,
		EntriesLogged: l.s.logged,
		FlushCount:    l.s.flushes,
		ErrorCount:    l.s.errors,
	}
	if l.s.flushes > 0 {
		stats.AverageFlush = l.s.flushTotal / time.Duration(l.s.flushes)
	}
	if l.s.queue != nil {
		stats.EntriesDropped = l.s.queue.dropped.Load()
	}
	return stats
}

func (l *Logger) logEntry(level zapcore.Level, message string, sets []map[string]any) {
	if l.s.isClosed() {
		return
	}
	message = sanitization.SanitizeLogString(message)

	call := make(map[string]any)
	for _, set := range sets {
		maps.Copy(call, set)
	}
	l.log.Log(level, message, l.zapFields(call)...)

	l.s.mu.Lock()
	l.s.logged++
	l.s.mu.Unlock()

	if level != zapcore.ErrorLevel || l.s.queue == nil {
		return
	}
	all := maps.Clone(l.fields)
	if all == nil {
		all = make(map[string]any, len(call))
	}
	maps.Copy(all, call)
	l.s.queue.enqueue(observability.LogEntry{
		Timestamp: time.Now(),
		Level:     level.String(),
		Message:   message,
		Fields:    l.sanitized(all),
		RequestID: l.requestID,
	})
}

func (l *Logger) sanitized(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = l.s.sanitize(k, v)
	}
	return out
}

// zapFields sorts by key so encoded output is stable.
func (l *Logger) zapFields(fields map[string]any) []ubzap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]ubzap.Field, 0, len(fields))
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		out = append(out, ubzap.Any(k, l.s.sanitize(k, fields[k])))
	}
	return out
}
