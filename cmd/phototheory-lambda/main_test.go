package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuild_RequiresLambdaEnvironment(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	t.Setenv("AWS_LAMBDA_RUNTIME_API", "")
	t.Setenv("LAMBDA_TASK_ROOT", "")

	_, err := build(context.Background())
	require.ErrorContains(t, err, "not running inside AWS Lambda")
}

func TestBuild_AssemblesApp(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "phototheory")
	t.Setenv("PHOTOTHEORY_CONFIG", "")
	t.Setenv("PHOTOTHEORY_CATALOG_DRIVER", "memory")
	t.Setenv("PHOTOTHEORY_CHANGE_QUEUE_URL", "")
	t.Setenv("PHOTOTHEORY_ERROR_TOPIC_ARN", "")
	t.Setenv("ERROR_NOTIFICATIONS_TOPIC_ARN", "")
	t.Setenv("PHOTOTHEORY_MEDIA_DIR", filepath.Join(t.TempDir(), "images"))

	app, err := build(context.Background())
	require.NoError(t, err)
	require.NotNil(t, app)
}
