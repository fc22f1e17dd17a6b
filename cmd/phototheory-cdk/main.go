// Command phototheory-cdk synthesizes the AWS deployment of the photo service.
//
//	cdk deploy --app "go run ./cmd/phototheory-cdk" -c stage=dev -c assetDir=dist/lambda
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"

	"github.com/theory-cloud/phototheory/pkg/naming"
)

func main() {
	os.Exit(run())
}

func run() int {
	defer jsii.Close()

	app := awscdk.NewApp(nil)

	props := &StackProps{
		StackProps: awscdk.StackProps{
			Env: &awscdk.Environment{
				Account: envOrNil("CDK_DEFAULT_ACCOUNT"),
				Region:  envOrNil("CDK_DEFAULT_REGION"),
			},
		},
		Stage:            contextString(app, "stage", "dev"),
		AssetDir:         contextString(app, "assetDir", "dist/lambda"),
		RateLimitEnabled: contextString(app, "rateLimit", "true") == "true",
	}
	stage := naming.NormalizeStage(props.Stage)
	if _, err := NewPhotoStack(app, naming.ResourceName("stack", stage), props); err != nil {
		fmt.Fprintf(os.Stderr, "phototheory-cdk: FAIL: %v\n", err)
		return 1
	}

	app.Synth(nil)
	return 0
}

func contextString(app awscdk.App, key, fallback string) string {
	value, ok := app.Node().TryGetContext(jsii.String(key)).(string)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

func envOrNil(key string) *string {
	if value := os.Getenv(key); value != "" {
		return jsii.String(value)
	}
	return nil
}
