package reseed

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/theory-cloud/phototheory/pkg/observability"
	"github.com/theory-cloud/phototheory/pkg/sanitization"
)

const (
	maxReceiveMessages = 10
	longPollSeconds    = 20
	minReceiveBackoff  = time.Second
	maxReceiveBackoff  = 30 * time.Second
)

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
}

// ChangeFeed long-polls an SQS queue of catalog change notifications. Any batch of messages
// triggers one reseed; the batch is deleted only after the reseed succeeds, so a failed
// reseed is retried when the messages become visible again.
type ChangeFeed struct {
	client   sqsAPI
	queueURL string
	reseeder *Reseeder
	logger   observability.StructuredLogger

	sleep func(ctx context.Context, d time.Duration)
}

func NewChangeFeed(client sqsAPI, queueURL string, reseeder *Reseeder, logger observability.StructuredLogger) *ChangeFeed {
	logger = observability.OrNoOp(logger).WithFields(map[string]any{
		"component": "changefeed",
		"queue_url": queueURL,
	})
	return &ChangeFeed{
		client:   client,
		queueURL: queueURL,
		reseeder: reseeder,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// Run polls until ctx is done.
func (f *ChangeFeed) Run(ctx context.Context) error {
	backoff := minReceiveBackoff
	for ctx.Err() == nil {
		if err := f.poll(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			f.logger.Warn("change feed poll failed", map[string]any{
				"error":   err,
				"backoff": backoff.String(),
			})
			f.sleep(ctx, backoff)
			backoff = min(backoff*2, maxReceiveBackoff)
			continue
		}
		backoff = minReceiveBackoff
	}
	return nil
}

// poll handles one receive. It returns nil when the queue was empty.
func (f *ChangeFeed) poll(ctx context.Context) error {
	out, err := f.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(f.queueURL),
		MaxNumberOfMessages: maxReceiveMessages,
		WaitTimeSeconds:     longPollSeconds,
	})
	if err != nil {
		return err
	}
	if out == nil || len(out.Messages) == 0 {
		return nil
	}

	if _, err := f.reseeder.Reseed(ctx); err != nil {
		return err
	}
	return f.ack(ctx, out.Messages)
}

func (f *ChangeFeed) ack(ctx context.Context, messages []sqstypes.Message) error {
	entries := make([]sqstypes.DeleteMessageBatchRequestEntry, 0, len(messages))
	for i, msg := range messages {
		if msg.ReceiptHandle == nil {
			continue
		}
		entries = append(entries, sqstypes.DeleteMessageBatchRequestEntry{
			Id:            aws.String(strconv.Itoa(i)),
			ReceiptHandle: msg.ReceiptHandle,
		})
	}
	if len(entries) == 0 {
		return nil
	}

	out, err := f.client.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
		QueueUrl: aws.String(f.queueURL),
		Entries:  entries,
	})
	if err != nil {
		return err
	}
	if out != nil && len(out.Failed) > 0 {
		f.logger.Warn("change feed messages not deleted", map[string]any{
			"failed": len(out.Failed),
			"reason": sanitization.SanitizeLogString(aws.ToString(out.Failed[0].Message)),
		})
		return errors.New("reseed: delete change messages: partial failure")
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
