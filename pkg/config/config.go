// Package config loads phototheory settings from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/theory-cloud/phototheory/pkg/naming"
	"github.com/theory-cloud/phototheory/pkg/observability"
)

const (
	CatalogMemory   = "memory"
	CatalogDynamoDB = "dynamodb"

	defaultMaxUploadBytes = 250 << 20
)

type Config struct {
	// Stage names the deployment. When set, DynamoDB tables without an explicit name are
	// called phototheory-<resource>-<stage>.
	Stage         string                     `yaml:"stage"`
	HTTP          HTTPConfig                 `yaml:"http"`
	Media         MediaConfig                `yaml:"media"`
	Catalog       CatalogConfig              `yaml:"catalog"`
	Screensaver   ScreensaverConfig          `yaml:"screensaver"`
	Log           observability.LoggerConfig `yaml:"log"`
	Notifications NotificationsConfig        `yaml:"notifications"`
	RateLimit     RateLimitConfig            `yaml:"rate_limit"`
	Activity      ActivityConfig             `yaml:"activity"`
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// BulkRequestTimeout applies to uploads and canon syncs.
	BulkRequestTimeout time.Duration `yaml:"bulk_request_timeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	MetricsPath        string        `yaml:"metrics_path"`
}

type MediaConfig struct {
	Dir            string `yaml:"dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type CatalogConfig struct {
	// Driver is "memory" or "dynamodb".
	Driver    string `yaml:"driver"`
	TableName string `yaml:"table_name"`
	Region    string `yaml:"region"`
	// Endpoint points at DynamoDB Local when set.
	Endpoint string `yaml:"endpoint"`
}

type ScreensaverConfig struct {
	ReseedInterval time.Duration `yaml:"reseed_interval"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	// ChangeQueueURL enables the SQS change feed.
	ChangeQueueURL string `yaml:"change_queue_url"`
}

type NotificationsConfig struct {
	ErrorTopicARN string `yaml:"error_topic_arn"`
	Subject       string `yaml:"subject"`
}

// RateLimitConfig throttles mutating routes per client. Counters live in TableName when the
// catalog uses DynamoDB and in process otherwise.
type RateLimitConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Requests  int           `yaml:"requests"`
	Window    time.Duration `yaml:"window"`
	TableName string        `yaml:"table_name"`
}

// ActivityConfig controls the image activity history. Events are kept in TableName when the
// catalog uses DynamoDB and in process otherwise.
type ActivityConfig struct {
	TableName string        `yaml:"table_name"`
	Retention time.Duration `yaml:"retention"`
}

func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:               ":8080",
			RequestTimeout:     30 * time.Second,
			BulkRequestTimeout: 5 * time.Minute,
			ShutdownTimeout:    10 * time.Second,
			MetricsPath:        "/metrics",
		},
		Media: MediaConfig{
			Dir:            "images",
			MaxUploadBytes: defaultMaxUploadBytes,
		},
		Catalog: CatalogConfig{
			Driver: CatalogMemory,
		},
		Screensaver: ScreensaverConfig{
			ReseedInterval: 15 * time.Minute,
			FetchTimeout:   30 * time.Second,
		},
		Log: observability.LoggerConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			Requests: 60,
			Window:   time.Minute,
		},
		Activity: ActivityConfig{
			Retention: 30 * 24 * time.Hour,
		},
	}
}

// Load starts from Default, overlays the YAML file at path (skipped when path is empty), then
// the environment, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.deriveTableNames()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func firstEnv(lookup lookupFunc, keys ...string) (string, bool) {
	for _, key := range keys {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}

func (c *Config) applyEnv(lookup lookupFunc) error {
	setString := func(dst *string, keys ...string) {
		if value, ok := firstEnv(lookup, keys...); ok {
			*dst = value
		}
	}
	setDuration := func(dst *time.Duration, keys ...string) error {
		value, ok := firstEnv(lookup, keys...)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("config: %s: %w", keys[0], err)
		}
		*dst = d
		return nil
	}

	setString(&c.Stage, "PHOTOTHEORY_STAGE", "STAGE")
	setString(&c.HTTP.Addr, "PHOTOTHEORY_ADDR")
	setString(&c.Media.Dir, "PHOTOTHEORY_MEDIA_DIR", "IMAGES_DIR")
	setString(&c.Catalog.Driver, "PHOTOTHEORY_CATALOG_DRIVER")
	setString(&c.Catalog.TableName, "PHOTOTHEORY_CATALOG_TABLE_NAME", "CATALOG_TABLE_NAME")
	setString(&c.Catalog.Region, "AWS_REGION", "AWS_DEFAULT_REGION")
	setString(&c.Catalog.Endpoint, "PHOTOTHEORY_DYNAMODB_ENDPOINT", "DDB_ENDPOINT")
	setString(&c.Screensaver.ChangeQueueURL, "PHOTOTHEORY_CHANGE_QUEUE_URL")
	setString(&c.Log.Level, "PHOTOTHEORY_LOG_LEVEL", "LOG_LEVEL")
	setString(&c.Log.Format, "PHOTOTHEORY_LOG_FORMAT")
	setString(&c.Notifications.ErrorTopicARN, "PHOTOTHEORY_ERROR_TOPIC_ARN", "ERROR_NOTIFICATIONS_TOPIC_ARN")
	setString(&c.Notifications.Subject, "PHOTOTHEORY_ERROR_SUBJECT")

	setString(&c.RateLimit.TableName, "PHOTOTHEORY_RATE_LIMIT_TABLE_NAME")
	setString(&c.Activity.TableName, "PHOTOTHEORY_ACTIVITY_TABLE_NAME")

	if value, ok := firstEnv(lookup, "PHOTOTHEORY_RATE_LIMIT_ENABLED"); ok {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("config: PHOTOTHEORY_RATE_LIMIT_ENABLED: %w", err)
		}
		c.RateLimit.Enabled = enabled
	}
	if value, ok := firstEnv(lookup, "PHOTOTHEORY_MAX_UPLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("config: PHOTOTHEORY_MAX_UPLOAD_BYTES: %w", err)
		}
		c.Media.MaxUploadBytes = n
	}

	return errors.Join(
		setDuration(&c.HTTP.RequestTimeout, "PHOTOTHEORY_REQUEST_TIMEOUT"),
		setDuration(&c.HTTP.BulkRequestTimeout, "PHOTOTHEORY_BULK_REQUEST_TIMEOUT"),
		setDuration(&c.Screensaver.ReseedInterval, "PHOTOTHEORY_RESEED_INTERVAL"),
		setDuration(&c.Screensaver.FetchTimeout, "PHOTOTHEORY_FETCH_TIMEOUT"),
		setDuration(&c.RateLimit.Window, "PHOTOTHEORY_RATE_LIMIT_WINDOW"),
		setDuration(&c.Activity.Retention, "PHOTOTHEORY_ACTIVITY_RETENTION"),
	)
}

func (c *Config) deriveTableNames() {
	if strings.TrimSpace(c.Stage) == "" {
		return
	}
	for _, t := range []struct {
		name     *string
		resource string
	}{
		{&c.Catalog.TableName, "images"},
		{&c.RateLimit.TableName, "rate-limits"},
		{&c.Activity.TableName, "activity"},
	} {
		if *t.name == "" {
			*t.name = naming.ResourceName(t.resource, c.Stage)
		}
	}
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.HTTP.RequestTimeout < 0 {
		errs = append(errs, errors.New("http.request_timeout must not be negative"))
	}
	if strings.TrimSpace(c.Media.Dir) == "" {
		errs = append(errs, errors.New("media.dir is required"))
	}
	if c.Media.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("media.max_upload_bytes must be positive"))
	}
	switch c.Catalog.Driver {
	case CatalogMemory:
	case CatalogDynamoDB:
		if strings.TrimSpace(c.Catalog.Region) == "" {
			errs = append(errs, errors.New("catalog.region is required for the dynamodb driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("catalog.driver %q is not one of %q, %q", c.Catalog.Driver, CatalogMemory, CatalogDynamoDB))
	}
	if c.Screensaver.ReseedInterval < 0 {
		errs = append(errs, errors.New("screensaver.reseed_interval must not be negative"))
	}
	if c.Activity.Retention < 0 {
		errs = append(errs, errors.New("activity.retention must not be negative"))
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Window <= 0 {
			errs = append(errs, errors.New("rate_limit.window must be positive"))
		}
		if c.RateLimit.Requests < 0 {
			errs = append(errs, errors.New("rate_limit.requests must not be negative"))
		}
	}
	return errors.Join(errs...)
}
