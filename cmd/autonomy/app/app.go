// Package app provides the application context and dependency management
// for the autonomy CLI. It centralizes configuration, logging and the
// lifecycle of the shared event log.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/autonomy/internal/cmd/application"
	"github.com/agentstation/autonomy/internal/eventlog"
	"github.com/agentstation/autonomy/pkg/errors"
)

// App represents the autonomy application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger

	// Event log (lazy-initialized, singleton)
	mu    sync.RWMutex
	store *eventlog.Store
}

var _ application.Application = (*App)(nil)

// New creates a new App instance with the given version information.
// The app is initialized with configuration from the default sources
// that can be customized using functional options.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig("")
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// OutputFormat returns the --format value, or "" to auto-detect.
func (a *App) OutputFormat() string {
	return a.config.Format
}

// Settings returns the domain settings resolved from the configuration.
func (a *App) Settings() application.Settings {
	return a.config.Settings()
}

// EventLog returns the event log, opening it on first use. The database
// must already exist; autonomy never creates the activity database.
func (a *App) EventLog(ctx context.Context) (*eventlog.Store, error) {
	a.mu.RLock()
	if a.store != nil {
		store := a.store
		a.mu.RUnlock()
		return store, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	// Double-check after acquiring write lock
	if a.store != nil {
		return a.store, nil
	}

	store, err := eventlog.Open(ctx, eventlog.Config{
		Path:         a.config.DBPath,
		QueryTimeout: a.config.QueryTimeout,
		MustExist:    true,
		Logger:       a.logger,
	})
	if err != nil {
		return nil, err
	}

	a.store = store
	return store, nil
}

// Shutdown releases the event log if it was opened.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to close event log during shutdown")
		return errors.WrapResource("close", "event log", a.config.DBPath, err)
	}
	return nil
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithEventLog sets an already opened event log (useful for testing).
func WithEventLog(store *eventlog.Store) Option {
	return func(a *App) error {
		a.store = store
		return nil
	}
}
