package zap

import (
	"context"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// WithSNSTopic publishes error-level entries to an SNS topic. An empty topic is ignored.
func WithSNSTopic(ctx context.Context, topicARN, subject string) Option {
	return func(opts *loggerOptions) {
		if strings.TrimSpace(topicARN) == "" {
			return
		}
		if ctx == nil {
			ctx = context.Background()
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			opts.initErr = err
			return
		}
		opts.notifier = NewSNSNotifier(sns.NewFromConfig(awsCfg), topicARN, SNSNotifierOptions{Subject: subject})
	}
}
