package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/autonomy/pkg/logging"
)

func TestDefaultConfig(t *testing.T) {
	cfg := logging.DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "auto", cfg.Format)
	assert.Equal(t, "stderr", cfg.Output)
	assert.False(t, cfg.AddCaller)
}

func TestNewLoggerFromConfig_FileOutput(t *testing.T) {
	originalLevel := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(originalLevel) })

	path := filepath.Join(t.TempDir(), "autonomy.log")
	logger := logging.NewLoggerFromConfig(&logging.Config{
		Level:  "debug",
		Format: "json",
		Output: path,
	})
	logger.Info().Int("streaks", 3).Msg("backfill complete")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"message":"backfill complete"`)
	assert.Contains(t, string(content), `"streaks":3`)
}

func TestNewLoggerFromConfig_LevelFilter(t *testing.T) {
	originalLevel := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(originalLevel) })

	path := filepath.Join(t.TempDir(), "warn.log")
	logger := logging.NewLoggerFromConfig(&logging.Config{Level: "warn", Format: "json", Output: path})
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "hidden")
	assert.Contains(t, string(content), "shown")
}

func TestContextLogger(t *testing.T) {
	tl := logging.NewTestLogger(t)

	ctx := logging.WithLogger(context.Background(), tl.Logger)
	ctx = logging.WithJob(ctx, "backfill")
	ctx = logging.WithField(ctx, "events", 12)

	logging.FromContext(ctx).Info().Msg("scanning")

	tl.AssertContains(t, `"job":"backfill"`)
	tl.AssertContains(t, `"events":12`)
	assert.Len(t, tl.Lines(), 1)
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, logging.Default(), logging.FromContext(context.Background()))
	assert.Same(t, logging.Default(), logging.FromContextOr(context.Background(), nil))
}

func TestFromContextOr(t *testing.T) {
	own := logging.NewNopLogger()
	assert.Same(t, own, logging.FromContextOr(context.Background(), own))

	attached := logging.NewTestLogger(t)
	ctx := logging.WithLogger(context.Background(), attached.Logger)
	assert.Same(t, attached.Logger, logging.FromContextOr(ctx, own), "attached logger wins")
}

func TestComponent(t *testing.T) {
	tl := logging.NewTestLogger(t)
	logging.Component(tl.Logger, "poller").Info().Msg("tick")
	tl.AssertContains(t, `"component":"poller"`)
}
