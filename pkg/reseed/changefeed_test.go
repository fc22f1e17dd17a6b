package reseed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/phototheory/pkg/observability"
)

type fakeSQS struct {
	mu        sync.Mutex
	responses []*sqs.ReceiveMessageOutput
	errs      []error
	deleted   [][]sqstypes.DeleteMessageBatchRequestEntry
	deleteOut *sqs.DeleteMessageBatchOutput
	receives  int
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receives++
	if aws.ToString(params.QueueUrl) != "https://sqs.local/changes" {
		return nil, errors.New("wrong queue")
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	if len(f.responses) > 0 {
		out := f.responses[0]
		f.responses = f.responses[1:]
		return out, nil
	}
	return nil, ctx.Err()
}

func (f *fakeSQS) DeleteMessageBatch(_ context.Context, params *sqs.DeleteMessageBatchInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, params.Entries)
	if f.deleteOut != nil {
		return f.deleteOut, nil
	}
	return &sqs.DeleteMessageBatchOutput{}, nil
}

func messages(handles ...string) *sqs.ReceiveMessageOutput {
	out := &sqs.ReceiveMessageOutput{}
	for _, handle := range handles {
		out.Messages = append(out.Messages, sqstypes.Message{ReceiptHandle: aws.String(handle)})
	}
	return out
}

func TestChangeFeed_ReseedsAndAcksBatch(t *testing.T) {
	client := &fakeSQS{responses: []*sqs.ReceiveMessageOutput{messages("h1", "h2")}}
	rotation := &countingRotation{}
	feed := NewChangeFeed(client, "https://sqs.local/changes", New(seededCatalog(t, "a.jpg"), rotation), nil)

	require.NoError(t, feed.poll(context.Background()))
	require.Equal(t, 1, rotation.count())
	require.Len(t, client.deleted, 1)
	require.Len(t, client.deleted[0], 2)
	require.Equal(t, "h1", aws.ToString(client.deleted[0][0].ReceiptHandle))
}

func TestChangeFeed_EmptyReceiveDoesNothing(t *testing.T) {
	client := &fakeSQS{responses: []*sqs.ReceiveMessageOutput{{}}}
	rotation := &countingRotation{}
	feed := NewChangeFeed(client, "https://sqs.local/changes", New(seededCatalog(t), rotation), nil)

	require.NoError(t, feed.poll(context.Background()))
	require.Zero(t, rotation.count())
	require.Empty(t, client.deleted)
}

func TestChangeFeed_FailedReseedLeavesMessages(t *testing.T) {
	client := &fakeSQS{responses: []*sqs.ReceiveMessageOutput{messages("h1")}}
	rotation := &countingRotation{}
	feed := NewChangeFeed(client, "https://sqs.local/changes", New(failingCatalog{err: errors.New("down")}, rotation), nil)

	require.ErrorContains(t, feed.poll(context.Background()), "down")
	require.Empty(t, client.deleted)
}

func TestChangeFeed_PartialDeleteFailure(t *testing.T) {
	client := &fakeSQS{
		responses: []*sqs.ReceiveMessageOutput{messages("h1")},
		deleteOut: &sqs.DeleteMessageBatchOutput{Failed: []sqstypes.BatchResultErrorEntry{{Id: aws.String("0"), Message: aws.String("gone")}}},
	}
	logger := observability.NewTestLogger()
	feed := NewChangeFeed(client, "https://sqs.local/changes", New(seededCatalog(t), &countingRotation{}), logger)

	require.Error(t, feed.poll(context.Background()))
	require.Len(t, logger.EntriesAt("warn"), 1)
}

func TestChangeFeed_RunBacksOffOnErrors(t *testing.T) {
	client := &fakeSQS{errs: []error{errors.New("throttled"), errors.New("throttled")}}
	logger := observability.NewTestLogger()
	feed := NewChangeFeed(client, "https://sqs.local/changes", New(seededCatalog(t), &countingRotation{}), logger)

	ctx, cancel := context.WithCancel(context.Background())
	var sleeps []time.Duration
	feed.sleep = func(_ context.Context, d time.Duration) {
		sleeps = append(sleeps, d)
		if len(sleeps) == 2 {
			cancel()
		}
	}

	require.NoError(t, feed.Run(ctx))
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps)
	require.Len(t, logger.EntriesAt("warn"), 2)
}
