// Package server assembles the photo service from configuration. The HTTP binary and the Lambda
// binary share it so both serve the same routes over the same stores.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/theory-cloud/tabletheory"
	tablecore "github.com/theory-cloud/tabletheory/pkg/core"
	"github.com/theory-cloud/tabletheory/pkg/session"

	"github.com/theory-cloud/phototheory/pkg/activity"
	"github.com/theory-cloud/phototheory/pkg/api"
	"github.com/theory-cloud/phototheory/pkg/canon"
	"github.com/theory-cloud/phototheory/pkg/catalog"
	"github.com/theory-cloud/phototheory/pkg/config"
	"github.com/theory-cloud/phototheory/pkg/limited"
	"github.com/theory-cloud/phototheory/pkg/media"
	"github.com/theory-cloud/phototheory/pkg/observability"
	"github.com/theory-cloud/phototheory/pkg/reseed"
	"github.com/theory-cloud/phototheory/pkg/screensaver"
	phototheory "github.com/theory-cloud/phototheory/runtime"
)

// uploadFraming is the allowance for multipart boundaries and headers on top of the image.
const uploadFraming = 1 << 20

// Services is the assembled service.
type Services struct {
	Config   config.Config
	Logger   observability.StructuredLogger
	Registry *prometheus.Registry

	App        *phototheory.App
	Catalog    catalog.Catalog
	Rotation   *screensaver.Manager
	Reseeder   *reseed.Reseeder
	Activity   activity.Log
	ChangeFeed *reseed.ChangeFeed // nil unless a change queue is configured
}

type Option func(*builder)

// WithDB supplies the DynamoDB client instead of building one from the catalog settings.
func WithDB(db tablecore.DB) Option {
	return func(b *builder) {
		b.db = db
	}
}

// WithSQS supplies the change feed client instead of building one from the AWS environment.
func WithSQS(client *sqs.Client) Option {
	return func(b *builder) {
		b.sqs = client
	}
}

type builder struct {
	db  tablecore.DB
	sqs *sqs.Client
}

// Build wires every component described by cfg.
func Build(ctx context.Context, cfg config.Config, logger observability.StructuredLogger, opts ...Option) (*Services, error) {
	b := &builder{}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	logger = observability.OrNoOp(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := media.NewStore(cfg.Media.Dir)
	if err != nil {
		return nil, err
	}

	if cfg.Catalog.Driver == config.CatalogDynamoDB && b.db == nil {
		if b.db, err = newDB(cfg.Catalog); err != nil {
			return nil, err
		}
	}
	cat, history, limiter, err := b.stores(cfg)
	if err != nil {
		return nil, err
	}

	rotationMetrics, err := screensaver.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("server: rotation metrics: %w", err)
	}
	rotation := screensaver.NewManager(
		screensaver.WithLogger(logger),
		screensaver.WithMetrics(rotationMetrics),
	)
	reseeder := reseed.New(cat, rotation,
		reseed.WithLogger(logger),
		reseed.WithFetchTimeout(cfg.Screensaver.FetchTimeout),
	)

	handlers, err := api.New(api.Deps{
		Catalog:  cat,
		Media:    store,
		Rotation: rotation,
		Canon:    canon.NewSyncer(store, cat, rotation, logger),
		Reseeder: reseeder,
		Activity: history,
	}, api.WithLogger(logger), api.WithMaxUploadBytes(cfg.Media.MaxUploadBytes))
	if err != nil {
		return nil, err
	}

	requestMetrics, err := phototheory.NewRequestMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("server: request metrics: %w", err)
	}
	app := phototheory.New(
		phototheory.WithLogger(logger),
		phototheory.WithMetrics(requestMetrics),
		phototheory.WithLimits(phototheory.Limits{
			MaxRequestBytes: int(handlers.MaxUploadBytes()) + uploadFraming,
		}),
	)
	app.Use(phototheory.TimeoutMiddleware(phototheory.TimeoutConfig{
		DefaultTimeout: cfg.HTTP.RequestTimeout,
		OperationTimeouts: map[string]time.Duration{
			"POST:/api/image/upload":       cfg.HTTP.BulkRequestTimeout,
			"POST:/api/image/update_canon": cfg.HTTP.BulkRequestTimeout,
		},
	}))
	if limiter != nil {
		app.Use(limited.Middleware(limited.MiddlewareOptions{Limiter: limiter, Logger: logger}))
	}
	handlers.Register(app)

	// Queue messages and scheduled events both mean "the catalog changed elsewhere".
	app.SQS(func(ctx context.Context, _ []events.SQSMessage) error {
		_, err := reseeder.Reseed(ctx)
		return err
	})
	app.EventBridge(func(ctx context.Context, _ events.EventBridgeEvent) error {
		_, err := reseeder.Reseed(ctx)
		return err
	})

	services := &Services{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
		App:      app,
		Catalog:  cat,
		Rotation: rotation,
		Reseeder: reseeder,
		Activity: history,
	}

	if cfg.Screensaver.ChangeQueueURL != "" {
		client := b.sqs
		if client == nil {
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Catalog.Region))
			if err != nil {
				return nil, fmt.Errorf("server: load aws config: %w", err)
			}
			client = sqs.NewFromConfig(awsCfg)
		}
		services.ChangeFeed = reseed.NewChangeFeed(client, cfg.Screensaver.ChangeQueueURL, reseeder, logger)
	}
	return services, nil
}

// stores picks the catalog, activity log and rate limiter backends. All of them live in
// DynamoDB when the catalog does.
func (b *builder) stores(cfg config.Config) (catalog.Catalog, activity.Log, limited.Limiter, error) {
	window := limited.FixedWindow{Size: cfg.RateLimit.Window, Max: cfg.RateLimit.Requests}

	if b.db == nil {
		var limiter limited.Limiter
		if cfg.RateLimit.Enabled {
			memory, err := limited.NewMemoryLimiter(window)
			if err != nil {
				return nil, nil, nil, err
			}
			limiter = memory
		}
		return catalog.NewMemoryCatalog(), activity.NewMemoryLog(0), limiter, nil
	}

	cat, err := catalog.NewDynamoCatalog(b.db, catalog.DynamoOptions{TableName: cfg.Catalog.TableName})
	if err != nil {
		return nil, nil, nil, err
	}
	history, err := activity.NewDynamoLog(b.db, activity.DynamoOptions{
		TableName: cfg.Activity.TableName,
		Retention: cfg.Activity.Retention,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	var limiter limited.Limiter
	if cfg.RateLimit.Enabled {
		dynamo, err := limited.NewDynamoLimiter(b.db, window, limited.WithTableName(cfg.RateLimit.TableName))
		if err != nil {
			return nil, nil, nil, err
		}
		limiter = dynamo
	}
	return cat, history, limiter, nil
}

func newDB(cfg config.CatalogConfig) (tablecore.DB, error) {
	if cfg.Region == "" {
		return nil, errors.New("server: catalog region is required for dynamodb")
	}
	loadOptions := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.Endpoint != "" {
		// DynamoDB Local requires credentials even though they are not used.
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("dummy", "dummy", ""),
		))
	}
	db, err := tabletheory.NewBasic(session.Config{
		Region:           cfg.Region,
		Endpoint:         cfg.Endpoint,
		AWSConfigOptions: loadOptions,
	})
	if err != nil {
		return nil, fmt.Errorf("server: init tabletheory: %w", err)
	}
	return db, nil
}
