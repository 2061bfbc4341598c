// Package application defines what autonomy commands need from the
// running application.
//
// Commands accept the Application interface rather than the concrete App
// so they can be tested with Mock:
//
//	mock := &application.Mock{
//	    EventLogFunc: func(ctx context.Context) (*eventlog.Store, error) {
//	        return store, nil
//	    },
//	}
//	cmd := streaks.NewCommand(mock)
package application

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/autonomy/internal/backfill"
	"github.com/agentstation/autonomy/internal/eventlog"
	"github.com/agentstation/autonomy/pkg/constants"
)

// Settings are the domain settings resolved from config files, the
// environment and global flags.
type Settings struct {
	DBPath       string
	QueryTimeout time.Duration
	Backfill     backfill.Config

	PollInterval   time.Duration
	SecondaryEvery int
	KeepAlive      time.Duration
	StaleAfter     time.Duration
	SignalWindow   time.Duration
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() Settings {
	return Settings{
		DBPath:         constants.DefaultDBPath,
		QueryTimeout:   constants.DefaultQueryTimeout,
		Backfill:       backfill.DefaultConfig(),
		PollInterval:   constants.DefaultPollInterval,
		SecondaryEvery: constants.DefaultSecondaryEvery,
		KeepAlive:      constants.DefaultKeepAlive,
		StaleAfter:     constants.DefaultStaleAfter,
		SignalWindow:   constants.DefaultSignalWindow,
	}
}

// Application is implemented by cmd/autonomy/app.App.
//
// All methods must be safe for concurrent use.
type Application interface {
	// EventLog returns the shared event log, opening it on first use.
	// The application owns it and closes it on shutdown.
	EventLog(ctx context.Context) (*eventlog.Store, error)

	// Settings returns the resolved domain settings.
	Settings() Settings

	Logger() *zerolog.Logger

	// OutputFormat returns the requested output format (table, json,
	// yaml, wide) or "" to auto-detect.
	OutputFormat() string

	Version() string
	Commit() string
	Date() string
	BuiltBy() string
}
