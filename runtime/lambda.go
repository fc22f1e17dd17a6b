package phototheory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
)

// ErrUnknownEvent is returned by HandleLambda for payloads that match no supported trigger.
var ErrUnknownEvent = errors.New("phototheory: unknown event type")

// IsLambda reports whether the process runs inside the AWS Lambda execution environment.
func IsLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" ||
		os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" ||
		os.Getenv("LAMBDA_TASK_ROOT") != ""
}

type trigger int

const (
	triggerUnknown trigger = iota
	triggerSQS
	triggerEventBridge
	triggerAPIGatewayV2
	triggerFunctionURL
)

// envelope holds just enough of any supported event to tell them apart.
type envelope struct {
	Records []struct {
		EventSource string `json:"eventSource"`
	} `json:"Records"`
	DetailType     *string `json:"detail-type"`
	RouteKey       *string `json:"routeKey"`
	RequestContext *struct {
		HTTP json.RawMessage `json:"http"`
	} `json:"requestContext"`
}

// classify checks records first, then detail-type, then requestContext.http. A routeKey tells
// API Gateway apart from a function URL.
func (e envelope) classify() trigger {
	switch {
	case len(e.Records) > 0:
		if e.Records[0].EventSource == "aws:sqs" {
			return triggerSQS
		}
	case e.DetailType != nil:
		return triggerEventBridge
	case e.RequestContext != nil && len(e.RequestContext.HTTP) > 0:
		if e.RouteKey != nil {
			return triggerAPIGatewayV2
		}
		return triggerFunctionURL
	}
	return triggerUnknown
}

// HandleLambda is the single Lambda entry point. It serves SQS batches, EventBridge events,
// HTTP API events and function URL events.
func (a *App) HandleLambda(ctx context.Context, payload json.RawMessage) (any, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("phototheory: parse event envelope: %w", err)
	}

	switch env.classify() {
	case triggerSQS:
		var event events.SQSEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("phototheory: parse sqs event: %w", err)
		}
		return a.ServeSQS(ctx, event), nil
	case triggerEventBridge:
		var event events.EventBridgeEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("phototheory: parse eventbridge event: %w", err)
		}
		return a.ServeEventBridge(ctx, event)
	case triggerAPIGatewayV2:
		var event events.APIGatewayV2HTTPRequest
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("phototheory: parse apigw v2 event: %w", err)
		}
		return a.ServeAPIGatewayV2(ctx, event), nil
	case triggerFunctionURL:
		var event events.LambdaFunctionURLRequest
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("phototheory: parse function url event: %w", err)
		}
		return a.ServeLambdaFunctionURL(ctx, event), nil
	}
	return nil, ErrUnknownEvent
}
