package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/recall/internal/logging"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		got, ok := logging.ParseLevel(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	got, ok := logging.ParseLevel("loud")
	assert.False(t, ok)
	assert.Equal(t, slog.LevelInfo, got)
}

func TestContextPropagation(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New("debug", &buf)
	ctx := logging.With(context.Background(), logger)

	require.Same(t, logger, logging.From(ctx))
	logging.From(ctx).Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), "hello")
}

func TestFromFallsBackToDefault(t *testing.T) {
	assert.Same(t, logging.Default(), logging.From(context.Background()))
}

func TestSetDefault(t *testing.T) {
	prev := logging.Default()
	t.Cleanup(func() { logging.SetDefault(prev) })

	var buf bytes.Buffer
	logger := logging.New("info", &buf)
	logging.SetDefault(logger)
	logging.SetDefault(nil)

	require.Same(t, logger, logging.From(context.Background()))
	logging.From(context.Background()).Info("fallback used")
	assert.Contains(t, buf.String(), "fallback used")
}
