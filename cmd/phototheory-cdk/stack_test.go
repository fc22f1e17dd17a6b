package main

import (
	"testing"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/assertions"
	"github.com/aws/jsii-runtime-go"
	"github.com/stretchr/testify/require"
)

func synth(t *testing.T, props *StackProps) assertions.Template {
	t.Helper()

	app := awscdk.NewApp(nil)
	stack, err := NewPhotoStack(app, "PhotoTheoryTest", props)
	require.NoError(t, err)
	return assertions.Template_FromStack(stack.Stack, nil)
}

func TestNewPhotoStack_Tables(t *testing.T) {
	template := synth(t, &StackProps{Stage: "development", AssetDir: t.TempDir()})

	template.ResourceCountIs(jsii.String("AWS::DynamoDB::Table"), jsii.Number(3))
	for _, name := range []string{"phototheory-images-dev", "phototheory-rate-limits-dev", "phototheory-activity-dev"} {
		template.HasResourceProperties(jsii.String("AWS::DynamoDB::Table"), map[string]any{
			"TableName":   name,
			"BillingMode": "PAY_PER_REQUEST",
			"KeySchema": []any{
				map[string]any{"AttributeName": "pk", "KeyType": "HASH"},
				map[string]any{"AttributeName": "sk", "KeyType": "RANGE"},
			},
			"TimeToLiveSpecification": map[string]any{"AttributeName": "ttl", "Enabled": true},
		})
	}
}

func TestNewPhotoStack_FunctionWiring(t *testing.T) {
	template := synth(t, &StackProps{Stage: "dev", AssetDir: t.TempDir(), RateLimitEnabled: true})

	template.HasResourceProperties(jsii.String("AWS::Lambda::Function"), map[string]any{
		"FunctionName":  "phototheory-api-dev",
		"Handler":       "bootstrap",
		"Runtime":       "provided.al2023",
		"Architectures": []any{"arm64"},
		"Environment": map[string]any{
			"Variables": assertions.Match_ObjectLike(&map[string]any{
				"PHOTOTHEORY_STAGE":              "dev",
				"PHOTOTHEORY_CATALOG_DRIVER":     "dynamodb",
				"PHOTOTHEORY_RATE_LIMIT_ENABLED": "true",
			}),
		},
	})
	template.ResourceCountIs(jsii.String("AWS::SQS::Queue"), jsii.Number(1))
	template.ResourceCountIs(jsii.String("AWS::SNS::Topic"), jsii.Number(1))
	template.ResourceCountIs(jsii.String("AWS::Lambda::EventSourceMapping"), jsii.Number(1))
	template.ResourceCountIs(jsii.String("AWS::Lambda::Url"), jsii.Number(1))
	template.HasResourceProperties(jsii.String("AWS::Events::Rule"), map[string]any{
		"ScheduleExpression": "rate(15 minutes)",
	})
	template.HasOutput(jsii.String("FunctionUrl"), map[string]any{})
}

func TestNewPhotoStack_RetainsLiveTables(t *testing.T) {
	app := awscdk.NewApp(nil)
	stack, err := NewPhotoStack(app, "PhotoTheoryLive", &StackProps{Stage: "prod", AssetDir: t.TempDir()})
	require.NoError(t, err)

	template := assertions.Template_FromStack(stack.Stack, nil)
	template.HasResource(jsii.String("AWS::DynamoDB::Table"), map[string]any{
		"DeletionPolicy": "Retain",
	})
}

func TestNewPhotoStack_RequiresAssetDir(t *testing.T) {
	_, err := NewPhotoStack(awscdk.NewApp(nil), "PhotoTheoryTest", &StackProps{Stage: "dev"})
	require.ErrorContains(t, err, "asset dir")

	_, err = NewPhotoStack(awscdk.NewApp(nil), "PhotoTheoryTest", nil)
	require.Error(t, err)
}

func TestConstructID(t *testing.T) {
	require.Equal(t, "RateLimitsTable", constructID("rate-limits"))
	require.Equal(t, "ImagesTable", constructID("images"))
}
