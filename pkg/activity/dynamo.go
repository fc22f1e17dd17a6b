package activity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	tablecore "github.com/theory-cloud/tabletheory/pkg/core"
	tableerrors "github.com/theory-cloud/tabletheory/pkg/errors"
)

const activityPartition = "ACTIVITY"

// eventRecord stores every event under one partition sorted by time.
type eventRecord struct {
	_ struct{} `theorydb:"naming:snake_case"`

	PK string `theorydb:"pk,attr:pk" json:"pk"`
	SK string `theorydb:"sk,attr:sk" json:"sk"`

	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Image        string    `json:"image,omitempty" theorydb:"omitempty"`
	PreviousName string    `json:"previous_name,omitempty" theorydb:"omitempty"`
	Count        int       `json:"count"`
	RequestID    string    `json:"request_id,omitempty" theorydb:"omitempty"`
	At           time.Time `json:"at"`

	TTL int64 `theorydb:"ttl,omitempty" json:"-"`
}

var activityTableOverride atomic.Pointer[string]

func (eventRecord) TableName() string {
	if name := activityTableOverride.Load(); name != nil {
		return *name
	}
	if name := os.Getenv("PHOTOTHEORY_ACTIVITY_TABLE_NAME"); name != "" {
		return name
	}
	return "phototheory-activity"
}

func newEventRecord(event Event, retention time.Duration) *eventRecord {
	rec := &eventRecord{
		PK:           activityPartition,
		SK:           sortKey(event),
		ID:           event.ID,
		Kind:         event.Kind,
		Image:        event.Image,
		PreviousName: event.PreviousName,
		Count:        event.Count,
		RequestID:    event.RequestID,
		At:           event.At,
	}
	if retention > 0 {
		rec.TTL = event.At.Add(retention).Unix()
	}
	return rec
}

func (r *eventRecord) event() Event {
	return Event{
		ID:           r.ID,
		Kind:         r.Kind,
		Image:        r.Image,
		PreviousName: r.PreviousName,
		Count:        r.Count,
		RequestID:    r.RequestID,
		At:           r.At,
	}
}

type DynamoOptions struct {
	// TableName overrides the environment-derived table name for the process.
	TableName string
	// Retention sets the TTL of each event. Zero uses DefaultRetention; negative keeps events
	// forever.
	Retention time.Duration
	// RetryAttempts bounds retries of throttled writes. Zero uses 3.
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

// DynamoLog stores events in DynamoDB through TableTheory.
type DynamoLog struct {
	db   tablecore.DB
	opts DynamoOptions
	now  func() time.Time
}

var _ Log = (*DynamoLog)(nil)

func NewDynamoLog(db tablecore.DB, opts DynamoOptions) (*DynamoLog, error) {
	if db == nil {
		return nil, errors.New("activity: dynamodb client is nil")
	}
	if opts.TableName != "" {
		activityTableOverride.Store(&opts.TableName)
	}
	if opts.Retention == 0 {
		opts.Retention = DefaultRetention
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryBaseDelay == 0 {
		opts.RetryBaseDelay = 100 * time.Millisecond
	}
	return &DynamoLog{db: db, opts: opts, now: time.Now}, nil
}

// Record writes the event with backoff on throttling. A duplicate ID counts as success.
func (d *DynamoLog) Record(ctx context.Context, event Event) (Event, error) {
	event, err := prepare(event, d.now())
	if err != nil {
		return Event{}, err
	}
	rec := newEventRecord(event, d.opts.Retention)

	var lastErr error
	for attempt := 0; attempt <= d.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := d.opts.RetryBaseDelay * time.Duration(1<<min(attempt-1, 10))
			select {
			case <-ctx.Done():
				return Event{}, fmt.Errorf("activity: record %s: %w", event.Kind, ctx.Err())
			case <-time.After(delay):
			}
		}

		err := d.db.Model(rec).WithContext(ctx).IfNotExists().Create()
		if err == nil || tableerrors.IsConditionFailed(err) {
			return event, nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
	}
	return Event{}, fmt.Errorf("activity: record %s: %w", event.Kind, lastErr)
}

func (d *DynamoLog) Recent(ctx context.Context, query Query) (Page, error) {
	q := d.db.Model(&eventRecord{}).
		WithContext(ctx).
		Where("PK", "=", activityPartition).
		OrderBy("SK", "DESC")
	if query.Kind != "" {
		q = q.Filter("Kind", "=", query.Kind)
	}
	q = q.Limit(normalizeLimit(query.Limit))
	if query.Cursor != "" {
		q = q.Cursor(query.Cursor)
	}

	var out []eventRecord
	result, err := q.AllPaginated(&out)
	if err != nil {
		return Page{}, fmt.Errorf("activity: list events: %w", err)
	}

	page := Page{Events: make([]Event, 0, len(out))}
	for i := range out {
		page.Events = append(page.Events, out[i].event())
	}
	if result != nil && result.HasMore && result.NextCursor != "" {
		page.NextCursor = result.NextCursor
	}
	return page, nil
}

// isRetryable matches throttling and transient server errors by name; TableTheory wraps the
// SDK errors.
func isRetryable(err error) bool {
	msg := err.Error()
	for _, needle := range []string{
		"ProvisionedThroughputExceededException",
		"ThrottlingException",
		"RequestLimitExceeded",
		"ServiceUnavailable",
		"InternalServerError",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
