package zap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/theory-cloud/phototheory/pkg/observability"
	"github.com/theory-cloud/phototheory/pkg/sanitization"
)

// SNS limits: subjects are capped at 100 characters, messages at 256 KiB.
const (
	defaultSNSSubject = "phototheory error"
	maxSNSSubject     = 100
	maxSNSMessage     = 256 * 1024
)

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSNotifierOptions struct {
	Subject string
}

// snsMessage is the JSON body published for each entry.
type snsMessage struct {
	Entry    observability.LogEntry `json:"entry"`
	Function string                 `json:"function,omitempty"`
	Region   string                 `json:"region,omitempty"`
}

// SNSNotifier publishes error entries to an SNS topic. The entry level travels as the "level"
// message attribute so subscriptions can filter on it.
type SNSNotifier struct {
	client   snsAPI
	topicARN string
	subject  string
}

var _ observability.ErrorNotifier = (*SNSNotifier)(nil)

func NewSNSNotifier(client snsAPI, topicARN string, opts SNSNotifierOptions) *SNSNotifier {
	subject := cut(sanitization.SanitizeLogString(strings.TrimSpace(opts.Subject)), maxSNSSubject)
	if subject == "" {
		subject = defaultSNSSubject
	}
	return &SNSNotifier{client: client, topicARN: strings.TrimSpace(topicARN), subject: subject}
}

func (n *SNSNotifier) Notify(ctx context.Context, entry observability.LogEntry) error {
	switch {
	case n == nil || n.client == nil:
		return errors.New("observability/zap: sns notifier is nil")
	case n.topicARN == "":
		return errors.New("observability/zap: sns topic arn is empty")
	}

	body, err := json.Marshal(snsMessage{
		Entry:    entry,
		Function: os.Getenv("AWS_LAMBDA_FUNCTION_NAME"),
		Region:   os.Getenv("AWS_REGION"),
	})
	if err != nil {
		return fmt.Errorf("observability/zap: encode sns message: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(n.subject),
		Message:  aws.String(cut(string(body), maxSNSMessage)),
	}
	if entry.Level != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"level": {DataType: aws.String("String"), StringValue: aws.String(entry.Level)},
		}
	}
	if _, err := n.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("observability/zap: publish to sns: %w", err)
	}
	return nil
}

// cut truncates s to at most n bytes without splitting a UTF-8 sequence.
func cut(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
