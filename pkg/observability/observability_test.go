package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()
	require.NotNil(t, logger)
	require.True(t, logger.IsHealthy())
	require.NoError(t, logger.Flush(context.Background()))
	require.NoError(t, logger.Close())
	require.Same(t, logger, logger.WithField("k", "v"))
}

func TestOrNoOp(t *testing.T) {
	require.NotNil(t, OrNoOp(nil))

	logger := NewTestLogger()
	require.Same(t, logger, OrNoOp(logger))
}

func TestTestLogger_DerivedLoggersShareEntries(t *testing.T) {
	logger := NewTestLogger()
	require.True(t, logger.IsHealthy())

	scoped := logger.WithRequestID("req_1").WithField("component", "screensaver")
	scoped.Info("hello", map[string]any{"image": "a.jpg"})
	logger.Warn("plain")

	entries := logger.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, "info", entries[0].Level)
	require.Equal(t, "hello", entries[0].Message)
	require.Equal(t, "req_1", entries[0].RequestID)
	require.Equal(t, "screensaver", entries[0].Fields["component"])
	require.Equal(t, "a.jpg", entries[0].Fields["image"])
	require.Empty(t, entries[1].RequestID)
	require.Len(t, logger.EntriesAt("warn"), 1)

	require.Equal(t, int64(2), logger.GetStats().EntriesLogged)
	require.NoError(t, logger.Flush(context.Background()))
	require.Equal(t, int64(1), logger.GetStats().FlushCount)
}

func TestTestLogger_SanitizesMessageAndFields(t *testing.T) {
	logger := NewTestLogger()
	logger.Error("line1\nline2", map[string]any{"aws_secret_access_key": "abc", "file": "x.png"})

	entries := logger.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, "line1line2", entries[0].Message)
	require.Equal(t, "[REDACTED]", entries[0].Fields["aws_secret_access_key"])
	require.Equal(t, "x.png", entries[0].Fields["file"])
}

func TestTestLogger_ClosedDropsEntries(t *testing.T) {
	logger := NewTestLogger()
	derived := logger.WithField("k", "v")
	require.NoError(t, logger.Close())

	derived.Info("ignored")
	require.Empty(t, logger.Entries())
	require.False(t, logger.IsHealthy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, logger.Flush(ctx), context.Canceled)
}
