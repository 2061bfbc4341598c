package application

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agentstation/autonomy/internal/eventlog"
	"github.com/agentstation/autonomy/pkg/errors"
)

var errNoEventLog = errors.NewUnavailableError("mock", errors.New("no event log configured"))

// Mock is an Application for tests. Nil function fields fall back to
// zero values or defaults.
type Mock struct {
	EventLogFunc     func(ctx context.Context) (*eventlog.Store, error)
	SettingsFunc     func() Settings
	LoggerFunc       func() *zerolog.Logger
	OutputFormatFunc func() string
	VersionFunc      func() string
}

// EventLog returns the store from EventLogFunc or an unavailable error.
func (m *Mock) EventLog(ctx context.Context) (*eventlog.Store, error) {
	if m.EventLogFunc != nil {
		return m.EventLogFunc(ctx)
	}
	return nil, errNoEventLog
}

// Settings returns SettingsFunc's result or DefaultSettings.
func (m *Mock) Settings() Settings {
	if m.SettingsFunc != nil {
		return m.SettingsFunc()
	}
	return DefaultSettings()
}

// Logger returns LoggerFunc's result or a no-op logger.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat returns OutputFormatFunc's result or "table".
func (m *Mock) OutputFormat() string {
	if m.OutputFormatFunc != nil {
		return m.OutputFormatFunc()
	}
	return "table"
}

// Version returns VersionFunc's result or "dev".
func (m *Mock) Version() string {
	if m.VersionFunc != nil {
		return m.VersionFunc()
	}
	return "dev"
}

func (m *Mock) Commit() string  { return "unknown" }
func (m *Mock) Date() string    { return "unknown" }
func (m *Mock) BuiltBy() string { return "test" }

var _ Application = (*Mock)(nil)
