package zap

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/phototheory/pkg/observability"
)

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, params)
	return &sns.PublishOutput{}, f.err
}

func TestSNSNotifier_Publishes(t *testing.T) {
	client := &fakeSNS{}
	notifier := NewSNSNotifier(client, " arn:aws:sns:us-east-1:1:errors ", SNSNotifierOptions{})

	err := notifier.Notify(context.Background(), observability.LogEntry{Level: "error", Message: "boom", RequestID: "req_1"})
	require.NoError(t, err)
	require.Len(t, client.inputs, 1)

	input := client.inputs[0]
	require.Equal(t, "arn:aws:sns:us-east-1:1:errors", *input.TopicArn)
	require.Equal(t, defaultSNSSubject, *input.Subject)

	var payload struct {
		Entry observability.LogEntry `json:"entry"`
	}
	require.NoError(t, json.Unmarshal([]byte(*input.Message), &payload))
	require.Equal(t, "boom", payload.Entry.Message)
	require.Equal(t, "req_1", payload.Entry.RequestID)
}

func TestSNSNotifier_TruncatesSubject(t *testing.T) {
	notifier := NewSNSNotifier(&fakeSNS{}, "arn", SNSNotifierOptions{Subject: strings.Repeat("s", 150) + "\n"})
	require.Len(t, notifier.subject, maxSNSSubject)
}

func TestSNSNotifier_Errors(t *testing.T) {
	require.Error(t, (*SNSNotifier)(nil).Notify(context.Background(), observability.LogEntry{}))
	require.Error(t, NewSNSNotifier(&fakeSNS{}, "", SNSNotifierOptions{}).Notify(context.Background(), observability.LogEntry{}))

	failing := NewSNSNotifier(&fakeSNS{err: errors.New("throttled")}, "arn", SNSNotifierOptions{})
	err := failing.Notify(context.Background(), observability.LogEntry{})
	require.ErrorContains(t, err, "throttled")
}

func TestWithSNSTopic_EmptyTopicIsNoOp(t *testing.T) {
	opts := &loggerOptions{}
	WithSNSTopic(context.Background(), " ", "")(opts)
	require.Nil(t, opts.notifier)
	require.NoError(t, opts.initErr)
}

func TestWithSNSTopic_AttachesSNS(t *testing.T) {
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	opts := &loggerOptions{}
	WithSNSTopic(context.Background(), "arn:aws:sns:us-east-1:1:errors", "frame errors")(opts)
	require.NoError(t, opts.initErr)

	notifier, ok := opts.notifier.(*SNSNotifier)
	require.True(t, ok)
	require.Equal(t, "arn:aws:sns:us-east-1:1:errors", notifier.topicARN)
	require.Equal(t, "frame errors", notifier.subject)
}

func TestSNSNotifier_SetsLevelAttribute(t *testing.T) {
	client := &fakeSNS{}
	notifier := NewSNSNotifier(client, "arn", SNSNotifierOptions{Subject: "frame"})

	require.NoError(t, notifier.Notify(context.Background(), observability.LogEntry{Level: "error", Message: "boom"}))
	require.Equal(t, "error", *client.inputs[0].MessageAttributes["level"].StringValue)
	require.Equal(t, "frame", *client.inputs[0].Subject)
}

func TestCut_KeepsRunesWhole(t *testing.T) {
	require.Equal(t, "ab", cut("ab", 5))
	require.Equal(t, "a", cut("aé", 2))
	require.Equal(t, "aé", cut("aéb", 3))
}
