// Command phototheory-lambda runs the photo service on AWS Lambda. One function serves API
// Gateway HTTP API and function URL requests, and reseeds the rotation on SQS change
// notifications and scheduled EventBridge rules.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/theory-cloud/phototheory/pkg/config"
	obszap "github.com/theory-cloud/phototheory/pkg/observability/zap"
	"github.com/theory-cloud/phototheory/pkg/server"
	phototheory "github.com/theory-cloud/phototheory/runtime"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()
	app, err := build(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "phototheory-lambda: FAIL: %v\n", err)
		return 2
	}
	lambda.Start(app.HandleLambda)
	return 0
}

// build assembles the service and seeds the rotation once per cold start.
func build(ctx context.Context) (*phototheory.App, error) {
	if !phototheory.IsLambda() {
		return nil, fmt.Errorf("not running inside AWS Lambda")
	}
	cfg, err := config.Load(os.Getenv("PHOTOTHEORY_CONFIG"))
	if err != nil {
		return nil, err
	}
	logger, err := obszap.NewZapLogger(cfg.Log,
		obszap.WithSNSTopic(ctx, cfg.Notifications.ErrorTopicARN, cfg.Notifications.Subject),
	)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	services, err := server.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if n, err := services.Reseeder.Reseed(ctx); err != nil {
		logger.Warn("cold start reseed failed", map[string]any{"error": err})
	} else {
		logger.Info("rotation seeded", map[string]any{"images": n})
	}
	return services.App, nil
}
