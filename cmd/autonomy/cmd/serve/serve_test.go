package serve

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/autonomy/internal/cmd/application"
	"github.com/agentstation/autonomy/internal/eventlog"
	"github.com/agentstation/autonomy/pkg/errors"
)

// syncBuffer guards output written from the listener goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestApp(t *testing.T) *application.Mock {
	t.Helper()
	store, err := eventlog.Open(context.Background(), eventlog.Config{
		Path:     filepath.Join(t.TempDir(), "claude.db"),
		PoolSize: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return &application.Mock{
		EventLogFunc: func(context.Context) (*eventlog.Store, error) { return store, nil },
	}
}

func TestParseConfig(t *testing.T) {
	settings := application.DefaultSettings()
	settings.PollInterval = 7 * time.Second
	settings.SecondaryEvery = 9

	t.Run("settings fill unset stream flags", func(t *testing.T) {
		cmd := NewCommand(&application.Mock{})
		require.NoError(t, cmd.ParseFlags([]string{"--keepalive", "2s", "--cors-origins", "http://a.test"}))

		cfg, err := parseConfig(cmd.Flags(), settings)
		require.NoError(t, err)
		assert.Equal(t, 7*time.Second, cfg.PollInterval)
		assert.Equal(t, 9, cfg.SecondaryEvery)
		assert.Equal(t, 2*time.Second, cfg.KeepAlive)
		assert.Equal(t, settings.StaleAfter, cfg.StaleAfter)
		assert.True(t, cfg.CORSEnabled, "explicit origins enable CORS")
		assert.Equal(t, []string{"http://a.test"}, cfg.CORSOrigins)
		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "/api/v1", cfg.PathPrefix)
	})

	t.Run("flags override settings", func(t *testing.T) {
		cmd := NewCommand(&application.Mock{})
		require.NoError(t, cmd.ParseFlags([]string{"--poll-interval", "1s", "--secondary-every", "2", "--cache-ttl", "30"}))

		cfg, err := parseConfig(cmd.Flags(), settings)
		require.NoError(t, err)
		assert.Equal(t, time.Second, cfg.PollInterval)
		assert.Equal(t, 2, cfg.SecondaryEvery)
		assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	})

	t.Run("environment overrides listener", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "9191")
		t.Setenv("HTTP_HOST", "0.0.0.0")

		cmd := NewCommand(&application.Mock{})
		require.NoError(t, cmd.ParseFlags(nil))

		cfg, err := parseConfig(cmd.Flags(), settings)
		require.NoError(t, err)
		assert.Equal(t, 9191, cfg.Port)
		assert.Equal(t, "0.0.0.0", cfg.Host)
	})

	t.Run("environment port zero picks a free port", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "0")

		cmd := NewCommand(&application.Mock{})
		require.NoError(t, cmd.ParseFlags([]string{"--port", "9000"}))

		cfg, err := parseConfig(cmd.Flags(), settings)
		require.NoError(t, err)
		assert.Equal(t, 0, cfg.Port)
	})

	t.Run("invalid environment port", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "eighty")

		cmd := NewCommand(&application.Mock{})
		require.NoError(t, cmd.ParseFlags(nil))

		_, err := parseConfig(cmd.Flags(), settings)
		assert.True(t, errors.IsValidationError(err))
	})

	t.Run("negative rate limit", func(t *testing.T) {
		cmd := NewCommand(&application.Mock{})
		require.NoError(t, cmd.ParseFlags([]string{"--backfill-rate-limit", "-1"}))

		_, err := parseConfig(cmd.Flags(), settings)
		assert.True(t, errors.IsValidationError(err))
	})
}

func TestParsePort(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"8080", 8080, false},
		{"1", 1, false},
		{"65535", 65535, false},
		{"0", 0, false},
		{"-1", 0, true},
		{"65536", 0, true},
		{"http", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePort(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServeCommand_GracefulShutdown(t *testing.T) {
	cmd := NewCommand(newTestApp(t))
	out := &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--host", "127.0.0.1", "--port", "0"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "listening on 127.0.0.1:")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
	assert.Contains(t, out.String(), "stopped gracefully")
}

func TestServeCommand_EventLogUnavailable(t *testing.T) {
	cmd := NewCommand(&application.Mock{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--host", "127.0.0.1", "--port", "0"})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsUnavailable(err))
}
