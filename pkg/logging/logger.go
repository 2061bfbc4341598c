// Package logging provides structured logging for the autonomy system using
// zerolog. Components receive a *zerolog.Logger explicitly; the package-level
// default exists for code paths that run before the application is wired.
//
// Example usage:
//
//	log := logging.Default()
//	log.Info().Int("streaks", len(streaks)).Msg("Backfill complete")
//
//	ctx := logging.WithLogger(context.Background(), log)
//	logging.FromContext(ctx).Debug().Msg("Using logger from context")
package logging

import (
	"github.com/rs/zerolog"
)

// defaultLogger is the global logger instance.
var defaultLogger = NewLoggerFromConfig(configFromEnv())

// Default returns the default global logger.
func Default() *zerolog.Logger {
	return &defaultLogger
}

// Component returns a child of logger tagged with the component name.
func Component(logger *zerolog.Logger, name string) *zerolog.Logger {
	if logger == nil {
		logger = Default()
	}
	child := logger.With().Str("component", name).Logger()
	return &child
}
