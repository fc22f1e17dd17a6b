package zap

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"

	ubzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/theory-cloud/phototheory/pkg/observability"
)

var (
	ErrUnsupportedFormat = errors.New("observability/zap: unsupported log format")
	ErrUnsupportedLevel  = errors.New("observability/zap: unsupported log level")
)

var levels = map[string]zapcore.Level{
	"":        zapcore.InfoLevel,
	"debug":   zapcore.DebugLevel,
	"info":    zapcore.InfoLevel,
	"warn":    zapcore.WarnLevel,
	"warning": zapcore.WarnLevel,
	"error":   zapcore.ErrorLevel,
}

// normalizeLoggerConfig fills unset fields. The format defaults to json inside Lambda and
// console everywhere else.
func normalizeLoggerConfig(cfg observability.LoggerConfig) observability.LoggerConfig {
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	if cfg.Format == "" {
		cfg.Format = "console"
		if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
			cfg.Format = "json"
		}
	}
	cfg.Level = strings.ToLower(strings.TrimSpace(cfg.Level))
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	cfg.RetryDelay = positiveOr(cfg.RetryDelay, time.Second)
	cfg.MaxRetries = positiveOr(cfg.MaxRetries, 3)
	cfg.BufferSize = positiveOr(cfg.BufferSize, 256)
	return cfg
}

func positiveOr[T int | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}

func newEncoder(cfg observability.LoggerConfig) (zapcore.Encoder, error) {
	enc := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	if cfg.EnableCaller {
		enc.CallerKey, enc.EncodeCaller = "caller", zapcore.ShortCallerEncoder
	}

	switch cfg.Format {
	case "json":
		return zapcore.NewJSONEncoder(enc), nil
	case "console":
		return zapcore.NewConsoleEncoder(enc), nil
	}
	return nil, ErrUnsupportedFormat
}

// buildZapLogger writes to out, or stdout when out is nil.
func buildZapLogger(cfg observability.LoggerConfig, out io.Writer) (*ubzap.Logger, error) {
	level, ok := levels[cfg.Level]
	if !ok {
		return nil, ErrUnsupportedLevel
	}
	encoder, err := newEncoder(cfg)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = os.Stdout
	}

	var zopts []ubzap.Option
	if cfg.EnableCaller {
		// Skip the StructuredLogger method and logEntry.
		zopts = append(zopts, ubzap.AddCaller(), ubzap.AddCallerSkip(2))
	}
	if cfg.EnableStack {
		zopts = append(zopts, ubzap.AddStacktrace(zapcore.ErrorLevel))
	}
	return ubzap.New(zapcore.NewCore(encoder, zapcore.AddSync(out), level), zopts...), nil
}
