package main

import (
	"fmt"
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsdynamodb"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsevents"
	"github.com/aws/aws-cdk-go/awscdk/v2/awseventstargets"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambdaeventsources"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssns"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssqs"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	"github.com/theory-cloud/phototheory/pkg/naming"
)

// StackProps describes one deployment of the service.
type StackProps struct {
	awscdk.StackProps

	Stage string

	// AssetDir holds the compiled "bootstrap" binary of cmd/phototheory-lambda.
	AssetDir string

	ReseedInterval   awscdk.Duration
	MemorySize       float64
	RateLimitEnabled bool
}

// PhotoStack is the synthesized stack plus the handles tests and outputs need.
type PhotoStack struct {
	awscdk.Stack

	Function awslambda.Function
	Tables   map[string]awsdynamodb.Table
	Changes  awssqs.Queue
	Errors   awssns.Topic
}

// NewPhotoStack wires the Lambda handler to its tables, the change queue, the error topic and a
// scheduled reseed.
func NewPhotoStack(scope constructs.Construct, id string, props *StackProps) (*PhotoStack, error) {
	if props == nil {
		return nil, fmt.Errorf("stack props are required")
	}
	if strings.TrimSpace(props.AssetDir) == "" {
		return nil, fmt.Errorf("asset dir is required")
	}
	stage := naming.NormalizeStage(props.Stage)

	stack := awscdk.NewStack(scope, jsii.String(id), &props.StackProps)
	out := &PhotoStack{Stack: stack, Tables: map[string]awsdynamodb.Table{}}

	resources := []string{"images", "rate-limits", "activity"}
	for _, resource := range resources {
		out.Tables[resource] = newTable(stack, resource, stage)
	}

	out.Changes = awssqs.NewQueue(stack, jsii.String("Changes"), &awssqs.QueueProps{
		QueueName:         jsii.String(naming.BoundedName("changes", stage, naming.MaxQueueName)),
		VisibilityTimeout: awscdk.Duration_Seconds(jsii.Number(180)),
	})
	out.Errors = awssns.NewTopic(stack, jsii.String("Errors"), &awssns.TopicProps{
		TopicName: jsii.String(naming.BoundedName("errors", stage, naming.MaxTopicName)),
	})

	memory := props.MemorySize
	if memory <= 0 {
		memory = 1024
	}
	env := map[string]*string{
		"PHOTOTHEORY_STAGE":                 jsii.String(stage),
		"PHOTOTHEORY_CATALOG_DRIVER":        jsii.String("dynamodb"),
		"PHOTOTHEORY_CATALOG_TABLE_NAME":    out.Tables["images"].TableName(),
		"PHOTOTHEORY_RATE_LIMIT_TABLE_NAME": out.Tables["rate-limits"].TableName(),
		"PHOTOTHEORY_ACTIVITY_TABLE_NAME":   out.Tables["activity"].TableName(),
		"PHOTOTHEORY_RATE_LIMIT_ENABLED":    jsii.String(fmt.Sprintf("%t", props.RateLimitEnabled)),
		"PHOTOTHEORY_MEDIA_DIR":             jsii.String("/tmp/images"),
		"PHOTOTHEORY_LOG_FORMAT":            jsii.String("json"),
		"PHOTOTHEORY_ERROR_TOPIC_ARN":       out.Errors.TopicArn(),
	}
	out.Function = awslambda.NewFunction(stack, jsii.String("Handler"), &awslambda.FunctionProps{
		FunctionName: jsii.String(naming.BoundedName("api", stage, naming.MaxFunctionName)),
		Runtime:      awslambda.Runtime_PROVIDED_AL2023(),
		Architecture: awslambda.Architecture_ARM_64(),
		Handler:      jsii.String("bootstrap"),
		Code:         awslambda.Code_FromAsset(jsii.String(props.AssetDir), nil),
		MemorySize:   jsii.Number(memory),
		Timeout:      awscdk.Duration_Seconds(jsii.Number(60)),
		Environment:  &env,
	})
	for _, resource := range resources {
		out.Tables[resource].GrantReadWriteData(out.Function)
	}
	out.Errors.GrantPublish(out.Function)

	out.Function.AddEventSource(awslambdaeventsources.NewSqsEventSource(out.Changes, &awslambdaeventsources.SqsEventSourceProps{
		BatchSize: jsii.Number(10),
	}))

	interval := props.ReseedInterval
	if interval == nil {
		interval = awscdk.Duration_Minutes(jsii.Number(15))
	}
	reseed := awsevents.NewRule(stack, jsii.String("Reseed"), &awsevents.RuleProps{
		Schedule: awsevents.Schedule_Rate(interval),
	})
	reseed.AddTarget(awseventstargets.NewLambdaFunction(out.Function, nil))

	url := out.Function.AddFunctionUrl(&awslambda.FunctionUrlOptions{
		AuthType: awslambda.FunctionUrlAuthType_NONE,
	})
	awscdk.NewCfnOutput(stack, jsii.String("FunctionUrl"), &awscdk.CfnOutputProps{Value: url.Url()})
	awscdk.NewCfnOutput(stack, jsii.String("ChangeQueueUrl"), &awscdk.CfnOutputProps{Value: out.Changes.QueueUrl()})

	return out, nil
}

// newTable creates a pk/sk table with TTL on "ttl", matching the records the service writes.
func newTable(stack awscdk.Stack, resource, stage string) awsdynamodb.Table {
	removal := awscdk.RemovalPolicy_DESTROY
	if stage == "live" {
		removal = awscdk.RemovalPolicy_RETAIN
	}
	return awsdynamodb.NewTable(stack, jsii.String(constructID(resource)), &awsdynamodb.TableProps{
		TableName:           jsii.String(naming.BoundedName(resource, stage, naming.MaxTableName)),
		PartitionKey:        &awsdynamodb.Attribute{Name: jsii.String("pk"), Type: awsdynamodb.AttributeType_STRING},
		SortKey:             &awsdynamodb.Attribute{Name: jsii.String("sk"), Type: awsdynamodb.AttributeType_STRING},
		BillingMode:         awsdynamodb.BillingMode_PAY_PER_REQUEST,
		TimeToLiveAttribute: jsii.String("ttl"),
		RemovalPolicy:       removal,
	})
}

// constructID turns "rate-limits" into "RateLimitsTable".
func constructID(resource string) string {
	var b strings.Builder
	for _, part := range strings.Split(resource, "-") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	b.WriteString("Table")
	return b.String()
}
