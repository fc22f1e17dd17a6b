package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/require"
	tablemocks "github.com/theory-cloud/tabletheory/pkg/mocks"

	"github.com/theory-cloud/phototheory/pkg/activity"
	"github.com/theory-cloud/phototheory/pkg/catalog"
	"github.com/theory-cloud/phototheory/pkg/config"
	"github.com/theory-cloud/phototheory/pkg/observability"
	"github.com/theory-cloud/phototheory/pkg/screensaver"
	phototheory "github.com/theory-cloud/phototheory/runtime"
	"github.com/theory-cloud/phototheory/testkit"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Media.Dir = filepath.Join(t.TempDir(), "images")
	return cfg
}

func hasMetric(t *testing.T, s *Services, name string) bool {
	t.Helper()
	families, err := s.Registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			return true
		}
	}
	return false
}

func TestBuild_MemoryServesRoutesAndRecordsMetrics(t *testing.T) {
	s, err := Build(context.Background(), testConfig(t), observability.NewTestLogger())
	require.NoError(t, err)
	require.Nil(t, s.ChangeFeed)
	require.IsType(t, &catalog.MemoryCatalog{}, s.Catalog)
	require.IsType(t, &activity.MemoryLog{}, s.Activity)

	resp := s.App.Serve(context.Background(), phototheory.Request{Method: "GET", Path: "/ping"})
	require.Equal(t, 200, resp.Status)
	require.JSONEq(t, `{"message":"pong"}`, string(resp.Body))

	require.True(t, hasMetric(t, s, "phototheory_http_requests_total"))
	require.True(t, hasMetric(t, s, "go_goroutines"))
}

func TestBuild_EventSourcesReseed(t *testing.T) {
	s, err := Build(context.Background(), testConfig(t), nil)
	require.NoError(t, err)

	require.NoError(t, s.Catalog.Save(context.Background(), screensaver.Image{Name: "a.png", Width: 1, Height: 1}))
	require.Equal(t, 0, s.Rotation.Len())

	out := s.App.ServeSQS(context.Background(), testkit.SQSEvent("arn:aws:sqs:us-east-1:000000000000:changes", "a.png"))
	require.Empty(t, out.BatchItemFailures)
	require.Equal(t, 1, s.Rotation.Len())

	require.NoError(t, s.Catalog.Save(context.Background(), screensaver.Image{Name: "b.png", Width: 1, Height: 1}))
	_, err = s.App.ServeEventBridge(context.Background(), testkit.ScheduledEvent("arn:aws:events:us-east-1:000000000000:rule/reseed", time.Time{}))
	require.NoError(t, err)
	require.Equal(t, 2, s.Rotation.Len())
}

func TestBuild_HandlesLambdaPayloads(t *testing.T) {
	s, err := Build(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, s.Catalog.Save(context.Background(), screensaver.Image{Name: "a.png", Width: 4, Height: 3}))

	out, err := s.App.HandleLambda(context.Background(), testkit.Payload(
		testkit.APIGatewayV2Request("GET", "/ping", testkit.HTTPEventOptions{}),
	))
	require.NoError(t, err)
	gw, ok := out.(events.APIGatewayV2HTTPResponse)
	require.True(t, ok)
	require.Equal(t, 200, gw.StatusCode)

	out, err = s.App.HandleLambda(context.Background(), testkit.Payload(
		testkit.SQSEvent("arn:aws:sqs:us-east-1:000000000000:changes", "a.png"),
	))
	require.NoError(t, err)
	require.IsType(t, events.SQSEventResponse{}, out)
	require.Equal(t, 1, s.Rotation.Len())

	out, err = s.App.HandleLambda(context.Background(), testkit.Payload(
		testkit.LambdaFunctionURLRequest("GET", "/api/image/current", testkit.HTTPEventOptions{}),
	))
	require.NoError(t, err)
	url, ok := out.(events.LambdaFunctionURLResponse)
	require.True(t, ok)
	require.Equal(t, 200, url.StatusCode)
	require.Contains(t, url.Body, "a.png")
}

func TestBuild_RateLimitsMutations(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, Requests: 1, Window: time.Minute}
	s, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)

	reseed := phototheory.Request{Method: "POST", Path: "/api/image/reseed", SourceIP: "192.0.2.1"}
	require.Equal(t, 200, s.App.Serve(context.Background(), reseed).Status)
	require.Equal(t, 429, s.App.Serve(context.Background(), reseed).Status)

	ping := phototheory.Request{Method: "GET", Path: "/ping", SourceIP: "192.0.2.1"}
	require.Equal(t, 200, s.App.Serve(context.Background(), ping).Status)
}

func TestBuild_DynamoDBBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog.Driver = config.CatalogDynamoDB
	cfg.Catalog.Region = "us-east-1"
	cfg.Screensaver.ChangeQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789012/changes"

	s, err := Build(context.Background(), cfg, nil,
		WithDB(new(tablemocks.MockDB)),
		WithSQS(sqs.New(sqs.Options{Region: "us-east-1"})),
	)
	require.NoError(t, err)
	require.IsType(t, &catalog.DynamoCatalog{}, s.Catalog)
	require.IsType(t, &activity.DynamoLog{}, s.Activity)
	require.NotNil(t, s.ChangeFeed)
}

func TestBuild_RejectsUnusableMediaDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Media.Dir = ""
	_, err := Build(context.Background(), cfg, nil)
	require.Error(t, err)
}
