// Package serve provides the HTTP server command for the autonomy CLI.
package serve

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/agentstation/autonomy/internal/cmd/application"
	"github.com/agentstation/autonomy/internal/cmd/emoji"
	"github.com/agentstation/autonomy/internal/server"
	"github.com/agentstation/autonomy/pkg/constants"
	"github.com/agentstation/autonomy/pkg/errors"
)

// NewCommand creates the serve command using app context.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		GroupID: "core",
		Short:   "Serve live usage snapshots and streak analytics over HTTP",
		Long: `Start the autonomy API server.

Features:
  - Server-Sent Events stream of usage, health and signal snapshots (/api/v1/stream)
  - WebSocket mirror of the same stream (/api/v1/stream/ws)
  - Snapshots are published only when their content changes
  - Streak listing with in-memory caching (/api/v1/streaks)
  - On-demand streak backfill, rate limited per client IP (/api/v1/streaks/backfill)
  - CORS support for browser dashboards
  - Request logging and panic recovery
  - Graceful shutdown that notifies every stream client

Environment Variables:
  HTTP_PORT    - Override the listen port
  HTTP_HOST    - Override the bind address`,
		Example: `  # Start on default port 8080
  autonomy serve

  # Poll faster and publish health every other tick
  autonomy serve --poll-interval 1s --secondary-every 2

  # Allow a dashboard on another origin
  autonomy serve --cors-origins "http://localhost:3000"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, args, app)
		},
	}

	// Server configuration flags
	cmd.Flags().Int("port", 8080, "Server port")
	cmd.Flags().String("host", "localhost", "Bind address")
	cmd.Flags().String("prefix", "/api/v1", "API path prefix")

	// Stream flags (zero uses the configured value)
	cmd.Flags().Duration("poll-interval", 0, "Snapshot poll interval")
	cmd.Flags().Int("secondary-every", 0, "Publish health and signal every Nth active tick")
	cmd.Flags().Duration("keepalive", 0, "SSE keepalive interval")
	cmd.Flags().Duration("stale-after", 0, "Report the event log stale after this long without events")
	cmd.Flags().Duration("signal-window", 0, "How far back the live signal looks")

	// CORS flags
	cmd.Flags().Bool("cors", false, "Enable CORS for all origins")
	cmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins (comma-separated)")

	// Performance flags
	cmd.Flags().Int("backfill-rate-limit", 6, "Backfill requests per minute per IP (0 to disable)")
	cmd.Flags().Int("cache-ttl", int(constants.CacheTTL.Seconds()), "Cache TTL in seconds")

	// Timeout flags
	cmd.Flags().Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", 10*time.Second, "HTTP write timeout (streams are exempt)")
	cmd.Flags().Duration("idle-timeout", 120*time.Second, "HTTP idle timeout")

	return cmd
}

// runServer starts the API server.
func runServer(cmd *cobra.Command, _ []string, app application.Application) error {
	cfg, err := parseConfig(cmd.Flags(), app.Settings())
	if err != nil {
		return err
	}
	logger := app.Logger()

	logger.Info().
		Int("port", cfg.Port).
		Str("host", cfg.Host).
		Str("prefix", cfg.PathPrefix).
		Bool("cors", cfg.CORSEnabled).
		Int("backfill_rate_limit", cfg.BackfillRateLimit).
		Dur("cache_ttl", cfg.CacheTTL).
		Dur("poll_interval", cfg.PollInterval).
		Msg("Starting API server")

	srv, err := server.New(app, cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		_ = srv.Shutdown(context.Background())
		return errors.WrapIO("listen", addr, err)
	}

	// Start the poll loop only once the port is ours
	srv.Start()

	httpServer := &http.Server{
		Addr:         listener.Addr().String(),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Pass cmd.Context() which has signal handling from main.go
	return startWithGracefulShutdown(cmd.Context(), listener, httpServer, srv, logger, cmd.OutOrStdout())
}

// parseConfig parses command flags into server configuration. Stream
// settings fall back to the application settings when a flag is unset.
func parseConfig(flags *pflag.FlagSet, settings application.Settings) (server.Config, error) {
	port := mustGetInt(flags, "port")
	host := mustGetString(flags, "host")

	// Override with environment variables
	if envPort := os.Getenv("HTTP_PORT"); envPort != "" {
		p, err := parsePort(envPort)
		if err != nil {
			return server.Config{}, errors.NewValidationError("HTTP_PORT", envPort, err.Error())
		}
		port = p
	}
	if envHost := os.Getenv("HTTP_HOST"); envHost != "" {
		host = envHost
	}
	if port < 0 || port > maxPort {
		return server.Config{}, errors.NewValidationError("port", port, "must be between 0 and 65535")
	}

	rateLimit := mustGetInt(flags, "backfill-rate-limit")
	if rateLimit < 0 {
		return server.Config{}, errors.NewValidationError("backfill-rate-limit", rateLimit, "must not be negative")
	}

	return server.Config{
		Host:              host,
		Port:              port,
		PathPrefix:        mustGetString(flags, "prefix"),
		CORSEnabled:       mustGetBool(flags, "cors") || len(mustGetStringSlice(flags, "cors-origins")) > 0,
		CORSOrigins:       mustGetStringSlice(flags, "cors-origins"),
		BackfillRateLimit: rateLimit,
		CacheTTL:          time.Duration(mustGetInt(flags, "cache-ttl")) * time.Second,
		ReadTimeout:       mustGetDuration(flags, "read-timeout"),
		WriteTimeout:      mustGetDuration(flags, "write-timeout"),
		IdleTimeout:       mustGetDuration(flags, "idle-timeout"),
		PollInterval:      durationOr(flags, "poll-interval", settings.PollInterval),
		SecondaryEvery:    intOr(flags, "secondary-every", settings.SecondaryEvery),
		KeepAlive:         durationOr(flags, "keepalive", settings.KeepAlive),
		StaleAfter:        durationOr(flags, "stale-after", settings.StaleAfter),
		SignalWindow:      durationOr(flags, "signal-window", settings.SignalWindow),
	}, nil
}

// maxPort is the largest TCP port. Port 0 asks the kernel for a free one.
const maxPort = 65535

// parsePort safely parses a port string to integer.
func parsePort(portStr string) (int, error) {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid port number: %s", portStr)
	}
	if port < 0 || port > maxPort {
		return 0, fmt.Errorf("port out of range: %d", port)
	}
	return port, nil
}

// startWithGracefulShutdown serves on listener until ctx is cancelled.
//
// Stream connections never end on their own, so the background services
// are shut down first: every client receives a shutdown frame and is
// disconnected, after which http.Server.Shutdown only has to drain
// ordinary requests.
func startWithGracefulShutdown(ctx context.Context, listener net.Listener, httpServer *http.Server, srv *server.Server, logger *zerolog.Logger, out io.Writer) error {
	serverErr := make(chan error, 1)

	go func() {
		logger.Info().
			Str("addr", httpServer.Addr).
			Str("service", "API").
			Msg("HTTP server listening")

		fmt.Fprintf(out, "%s API server listening on %s\n", emoji.Rocket, httpServer.Addr)
		fmt.Fprintln(out, "   Press Ctrl+C to stop")

		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case err := <-serverErr:
		_ = srv.Shutdown(context.Background())
		return err
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received via context")

		fmt.Fprintf(out, "\n%s Shutting down API server...\n", emoji.Stop)

		// The parent context is already cancelled
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Background services shutdown had issues")
		}

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Msg("Server stopped gracefully")
		fmt.Fprintf(out, "%s API server stopped gracefully\n", emoji.Success)
		return nil
	}
}

// durationOr returns the flag value when it was set, otherwise fallback.
func durationOr(flags *pflag.FlagSet, name string, fallback time.Duration) time.Duration {
	if !flags.Changed(name) {
		return fallback
	}
	return mustGetDuration(flags, name)
}

// intOr returns the flag value when it was set, otherwise fallback.
func intOr(flags *pflag.FlagSet, name string, fallback int) int {
	if !flags.Changed(name) {
		return fallback
	}
	return mustGetInt(flags, name)
}

// mustGetInt retrieves an integer flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetInt(flags *pflag.FlagSet, name string) int {
	val, err := flags.GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

// mustGetString retrieves a string flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetString(flags *pflag.FlagSet, name string) string {
	val, err := flags.GetString(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

// mustGetBool retrieves a boolean flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetBool(flags *pflag.FlagSet, name string) bool {
	val, err := flags.GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

// mustGetStringSlice retrieves a string slice flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetStringSlice(flags *pflag.FlagSet, name string) []string {
	val, err := flags.GetStringSlice(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

// mustGetDuration retrieves a duration flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetDuration(flags *pflag.FlagSet, name string) time.Duration {
	val, err := flags.GetDuration(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}
