package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/phrazzld/genrelay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "verbose", want: slog.LevelInfo, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLevel(tc.in)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.wantErr, err != nil)
		})
	}
}

func TestSetup(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	t.Run("sets default logger", func(t *testing.T) {
		l, err := Setup(config.ServerConfig{LogLevel: "debug"})
		require.NoError(t, err)
		require.NotNil(t, l)
		assert.Same(t, l, slog.Default())
		assert.True(t, l.Enabled(context.Background(), slog.LevelDebug))
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		l, err := Setup(config.ServerConfig{LogLevel: "loud"})
		require.NoError(t, err)
		assert.False(t, l.Enabled(context.Background(), slog.LevelDebug))
		assert.True(t, l.Enabled(context.Background(), slog.LevelInfo))
	})

	t.Run("writes to rotated log file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "relay.log")
		l, err := Setup(config.ServerConfig{LogLevel: "info", LogFile: path})
		require.NoError(t, err)

		l.Info("credential pool refreshed", "checked", 3)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "credential pool refreshed")
	})
}

func TestContextLogger(t *testing.T) {
	custom, buf := NewTestLogger()

	assert.Same(t, slog.Default(), FromContext(context.Background()))
	//nolint:staticcheck // nil context is handled explicitly
	assert.Same(t, custom, FromContextOrDefault(nil, custom))

	ctx := WithLogger(context.Background(), custom)
	FromContext(ctx).Info("hello", "component", "test")

	entries, err := buf.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hello", entries[0]["msg"])
	assert.Equal(t, "test", entries[0]["component"])

	assert.Panics(t, func() { WithLogger(context.Background(), nil) })
}
