package phototheory

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// EventBridgeHandler handles an EventBridge event, typically a scheduled rule.
type EventBridgeHandler func(ctx context.Context, event events.EventBridgeEvent) error

// SQS sets the batch handler.
func (a *App) SQS(handler SQSHandler) *App {
	a.sqsHandler = handler
	return a
}

// EventBridge sets the EventBridge handler.
func (a *App) EventBridge(handler EventBridgeHandler) *App {
	a.eventBridgeHandler = handler
	return a
}

// ServeSQS answers with a partial batch response. Batches are all or nothing: without a
// handler, or when it fails, every message is listed so SQS redelivers it.
func (a *App) ServeSQS(ctx context.Context, event events.SQSEvent) events.SQSEventResponse {
	logger := a.logger.WithFields(map[string]any{"trigger": "sqs", "messages": len(event.Records)})

	var err error
	if a.sqsHandler == nil {
		err = errors.New("no sqs handler")
	} else {
		err = a.sqsHandler(ctx, event.Records)
	}
	if err != nil {
		logger.Error("sqs batch failed", map[string]any{"error": err.Error()})
		return events.SQSEventResponse{BatchItemFailures: failAll(event.Records)}
	}

	logger.Info("sqs batch handled")
	return events.SQSEventResponse{BatchItemFailures: []events.SQSBatchItemFailure{}}
}

func failAll(records []events.SQSMessage) []events.SQSBatchItemFailure {
	out := make([]events.SQSBatchItemFailure, 0, len(records))
	for _, msg := range records {
		if id := strings.TrimSpace(msg.MessageId); id != "" {
			out = append(out, events.SQSBatchItemFailure{ItemIdentifier: id})
		}
	}
	return out
}

// ServeEventBridge returns the handler's error so Lambda records the invocation as failed.
func (a *App) ServeEventBridge(ctx context.Context, event events.EventBridgeEvent) (any, error) {
	if a.eventBridgeHandler == nil {
		return nil, errors.New("phototheory: no eventbridge handler")
	}
	if err := a.eventBridgeHandler(ctx, event); err != nil {
		a.logger.Error("eventbridge event failed", map[string]any{
			"detail_type": event.DetailType,
			"source":      event.Source,
			"error":       err.Error(),
		})
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}
