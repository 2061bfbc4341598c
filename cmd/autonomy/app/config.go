package app

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/autonomy/internal/backfill"
	"github.com/agentstation/autonomy/internal/cmd/application"
	"github.com/agentstation/autonomy/pkg/constants"
	"github.com/agentstation/autonomy/pkg/errors"
	"github.com/agentstation/autonomy/pkg/streaks"
)

// envPrefix namespaces the environment variables viper reads.
const envPrefix = "AUTONOMY"

// Config holds the application configuration loaded from various sources
// including config files, environment variables, and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// Event log
	DBPath       string
	QueryTimeout time.Duration

	// Segmentation, in seconds
	GapThreshold float64
	MinDuration  float64
	TopK         int
	SessionLimit int

	// Live stream
	PollInterval   time.Duration
	SecondaryEvery int
	KeepAlive      time.Duration
	StaleAfter     time.Duration
	SignalWindow   time.Duration

	// Logging configuration. LogLevel is the explicit --log-level flag;
	// EnvLogLevel comes from LOG_LEVEL and ranks below -v and -q.
	LogLevel    string
	EnvLogLevel string
	LogFormat   string
	LogOutput   string
}

// LoadConfig loads configuration from all sources in order of precedence:
//  1. Command-line flags (applied later by UpdateFromFlags)
//  2. AUTONOMY_* environment variables
//  3. .env files
//  4. Config file (configFile, or ~/.autonomy.yaml / ./.autonomy.yaml)
//  5. Defaults
//
// A missing default config file is not an error; a missing or malformed
// explicit one is.
func LoadConfig(configFile string) (*Config, error) {
	// Load .env files first (before Viper env binding)
	loadEnvFiles()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(constants.DefaultConfigName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.NewConfigError("config", "failed to read config file", err)
		}
	}

	config := &Config{
		Verbose: v.GetBool("verbose"),
		Quiet:   v.GetBool("quiet"),
		NoColor: v.GetBool("no_color") || os.Getenv("NO_COLOR") != "",
		Format:  v.GetString("format"),

		ConfigFile: v.ConfigFileUsed(),

		DBPath:       v.GetString("db_path"),
		QueryTimeout: v.GetDuration("query_timeout"),

		GapThreshold: v.GetFloat64("gap_threshold"),
		MinDuration:  v.GetFloat64("min_duration"),
		TopK:         v.GetInt("top_k"),
		SessionLimit: v.GetInt("session_limit"),

		PollInterval:   v.GetDuration("poll_interval"),
		SecondaryEvery: v.GetInt("secondary_every"),
		KeepAlive:      v.GetDuration("keepalive_interval"),
		StaleAfter:     v.GetDuration("stale_after"),
		SignalWindow:   v.GetDuration("signal_window"),

		EnvLogLevel: os.Getenv("LOG_LEVEL"),
		LogFormat:   getEnvOrDefault("LOG_FORMAT", "auto"),
		LogOutput:   getEnvOrDefault("LOG_OUTPUT", "stderr"),
	}

	return config, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it.
func setDefaults(v *viper.Viper) {
	defaults := application.DefaultSettings()

	v.SetDefault("verbose", false)
	v.SetDefault("quiet", false)
	v.SetDefault("no_color", false)
	v.SetDefault("format", "")

	v.SetDefault("db_path", defaults.DBPath)
	v.SetDefault("query_timeout", defaults.QueryTimeout)

	v.SetDefault("gap_threshold", defaults.Backfill.Options.GapThreshold)
	v.SetDefault("min_duration", defaults.Backfill.Options.MinDuration)
	v.SetDefault("top_k", defaults.Backfill.TopK)
	v.SetDefault("session_limit", defaults.Backfill.SessionLimit)

	v.SetDefault("poll_interval", defaults.PollInterval)
	v.SetDefault("secondary_every", defaults.SecondaryEvery)
	v.SetDefault("keepalive_interval", defaults.KeepAlive)
	v.SetDefault("stale_after", defaults.StaleAfter)
	v.SetDefault("signal_window", defaults.SignalWindow)
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel, dbPath string) {
	c.Verbose = c.Verbose || verbose
	c.Quiet = c.Quiet || quiet
	c.NoColor = c.NoColor || noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if dbPath != "" {
		c.DBPath = dbPath
	}
}

// Settings converts the configuration into the domain settings shared
// with commands and the server.
func (c *Config) Settings() application.Settings {
	return application.Settings{
		DBPath:       c.DBPath,
		QueryTimeout: c.QueryTimeout,
		Backfill: backfill.Config{
			Options: streaks.Options{
				GapThreshold: c.GapThreshold,
				MinDuration:  c.MinDuration,
			},
			TopK:         c.TopK,
			SessionLimit: c.SessionLimit,
		},
		PollInterval:   c.PollInterval,
		SecondaryEvery: c.SecondaryEvery,
		KeepAlive:      c.KeepAlive,
		StaleAfter:     c.StaleAfter,
		SignalWindow:   c.SignalWindow,
	}
}

// loadEnvFiles loads environment variables from .env files.
// .env.local is loaded first because godotenv never overrides a
// variable that is already set.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
