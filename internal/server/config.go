package server

import (
	"time"

	"github.com/agentstation/autonomy/pkg/constants"
)

// Config holds server configuration.
type Config struct {
	// Listener
	Host string
	Port int

	// API settings
	PathPrefix string

	// CORS settings
	CORSEnabled bool
	CORSOrigins []string

	// BackfillRateLimit is the number of backfill requests allowed per
	// client IP per minute. Zero disables limiting.
	BackfillRateLimit int

	// CacheTTL bounds how long REST reads are served from cache.
	CacheTTL time.Duration

	// HTTP timeouts. WriteTimeout does not apply to stream endpoints.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Live stream settings
	PollInterval   time.Duration
	SecondaryEvery int
	KeepAlive      time.Duration
	StaleAfter     time.Duration
	SignalWindow   time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:              "localhost",
		Port:              8080,
		PathPrefix:        "/api/v1",
		CORSEnabled:       false,
		CORSOrigins:       []string{},
		BackfillRateLimit: 6,
		CacheTTL:          constants.CacheTTL,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		PollInterval:      constants.DefaultPollInterval,
		SecondaryEvery:    constants.DefaultSecondaryEvery,
		KeepAlive:         constants.DefaultKeepAlive,
		StaleAfter:        constants.DefaultStaleAfter,
		SignalWindow:      constants.DefaultSignalWindow,
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PathPrefix == "" {
		c.PathPrefix = d.PathPrefix
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.SecondaryEvery <= 0 {
		c.SecondaryEvery = d.SecondaryEvery
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = d.KeepAlive
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = d.StaleAfter
	}
	if c.SignalWindow <= 0 {
		c.SignalWindow = d.SignalWindow
	}
	return c
}
