package limited

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	tablecore "github.com/theory-cloud/tabletheory/pkg/core"
	tableerrors "github.com/theory-cloud/tabletheory/pkg/errors"
)

// counterRecord is one window counter.
//
// Storage key shape:
//   - PK: {identifier}#{window_start_unix}
//   - SK: {resource}
type counterRecord struct {
	_ struct{} `theorydb:"naming:snake_case"`

	PK string `theorydb:"pk,attr:pk" json:"pk"`
	SK string `theorydb:"sk,attr:sk" json:"sk"`

	Identifier  string `json:"identifier"`
	Resource    string `json:"resource"`
	WindowStart int64  `json:"window_start"`
	Count       int64  `json:"count"`

	TTL int64 `theorydb:"ttl" json:"ttl"`

	CreatedAt time.Time `theorydb:"created_at" json:"created_at"`
	UpdatedAt time.Time `theorydb:"updated_at" json:"updated_at"`
}

func newCounterRecord(key Key, windowStart time.Time) *counterRecord {
	return &counterRecord{
		PK:          fmt.Sprintf("%s#%d", key.Identifier, windowStart.Unix()),
		SK:          key.Resource,
		Identifier:  key.Identifier,
		Resource:    key.Resource,
		WindowStart: windowStart.Unix(),
	}
}

var counterTableOverride atomic.Pointer[string]

func (counterRecord) TableName() string {
	if name := counterTableOverride.Load(); name != nil {
		return *name
	}
	if name := os.Getenv("PHOTOTHEORY_RATE_LIMIT_TABLE_NAME"); name != "" {
		return name
	}
	return "phototheory-rate-limits"
}

// DynamoLimiter shares counters across every instance through a DynamoDB table. Counters
// expire through the table TTL an hour after their window closes.
type DynamoLimiter struct {
	db       tablecore.DB
	window   FixedWindow
	clock    Clock
	failOpen bool
}

type DynamoOption func(*DynamoLimiter)

// WithFailOpen allows requests when the table cannot be reached.
func WithFailOpen(failOpen bool) DynamoOption {
	return func(l *DynamoLimiter) {
		l.failOpen = failOpen
	}
}

// WithTableName pins the counter table for the process, overriding the environment.
func WithTableName(name string) DynamoOption {
	return func(*DynamoLimiter) {
		if name != "" {
			counterTableOverride.Store(&name)
		}
	}
}

func WithClock(clock Clock) DynamoOption {
	return func(l *DynamoLimiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

func NewDynamoLimiter(db tablecore.DB, window FixedWindow, opts ...DynamoOption) (*DynamoLimiter, error) {
	if db == nil {
		return nil, fmt.Errorf("limited: db is required")
	}
	if err := window.validate(); err != nil {
		return nil, err
	}
	l := &DynamoLimiter{
		db:       db,
		window:   window,
		clock:    RealClock{},
		failOpen: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// Allow increments the counter only while it is under the limit, so denied requests never
// extend a client's lockout.
func (l *DynamoLimiter) Allow(ctx context.Context, key Key) (Decision, error) {
	return l.allow(ctx, key, true)
}

func (l *DynamoLimiter) allow(ctx context.Context, key Key, retry bool) (Decision, error) {
	if err := key.validate(); err != nil {
		return Decision{}, err
	}

	now := l.clock.Now()
	start, end := l.window.bounds(now)
	entry := newCounterRecord(key, start)

	var result counterRecord
	err := l.db.Model(&counterRecord{}).
		WithContext(ctx).
		Where("PK", "=", entry.PK).
		Where("SK", "=", entry.SK).
		UpdateBuilder().
		Add("Count", int64(1)).
		Set("UpdatedAt", now).
		Condition("Count", "<", l.window.Max).
		ExecuteWithResult(&result)
	if err == nil {
		return l.window.decide(int(result.Count), now, end), nil
	}
	if !tableerrors.IsConditionFailed(err) {
		return l.failure(err, "increment counter", end)
	}

	// The condition fails when the counter is missing as well as when it is full.
	var current counterRecord
	err = l.db.Model(&counterRecord{}).
		WithContext(ctx).
		Where("PK", "=", entry.PK).
		Where("SK", "=", entry.SK).
		First(&current)
	if err == nil {
		return l.window.decide(int(current.Count)+1, now, end), nil
	}
	if !tableerrors.IsNotFound(err) {
		return l.failure(err, "load counter", end)
	}
	if l.window.Max <= 0 {
		return l.window.decide(1, now, end), nil
	}

	entry.Count = 1
	entry.TTL = end.Add(time.Hour).Unix()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	err = l.db.Model(entry).WithContext(ctx).IfNotExists().Create()
	if err == nil {
		return l.window.decide(1, now, end), nil
	}
	if tableerrors.IsConditionFailed(err) && retry {
		// Another request created the counter first.
		return l.allow(ctx, key, false)
	}
	return l.failure(err, "create counter", end)
}

func (l *DynamoLimiter) failure(err error, op string, end time.Time) (Decision, error) {
	if l.failOpen {
		return Decision{Allowed: true, Limit: l.window.Max, ResetsAt: end}, nil
	}
	return Decision{}, fmt.Errorf("limited: %s: %w", op, err)
}
