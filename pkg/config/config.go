// Package config loads and validates the copad server configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/copad/pkg/store"
)

// Config represents the copad server configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (COPAD_*, plus the PORT, EXPIRY_DAYS and
//     SQLITE_URI shorthands)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains HTTP listener settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Database configures the document snapshot store (SQLite or
	// PostgreSQL). When disabled, documents live only in memory.
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	// Documents controls session lifetime and persistence cadence
	Documents DocumentsConfig `mapstructure:"documents" yaml:"documents"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	// Host is the address to bind. Empty binds all interfaces.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the HTTP port for the API, websocket and metrics routes.
	// Default: 3030
	Port int `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	// ReadHeaderTimeout bounds how long reading request headers may take.
	// Body timeouts are deliberately absent because websocket sessions are
	// long-lived.
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`

	// IdleTimeout is the keep-alive timeout for idle HTTP connections
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the document snapshot store.
type DatabaseConfig struct {
	// Enabled controls whether documents are persisted at all.
	// When false, documents vanish on eviction or restart.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Store holds the backend selection and connection settings
	Store store.Config `mapstructure:",squash" yaml:",inline"`
}

// DocumentsConfig controls session lifetime and persistence cadence.
type DocumentsConfig struct {
	// Expiry is how long a document may go unaccessed before being evicted
	// from memory. Default: 24h
	Expiry time.Duration `mapstructure:"expiry" validate:"required,gt=0" yaml:"expiry"`

	// CleanupInterval is how often expired documents are scanned for.
	// Default: 1h
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`

	// PersistInterval is the base delay between snapshot writes for each
	// live document. Default: 3s
	PersistInterval time.Duration `mapstructure:"persist_interval" yaml:"persist_interval"`
}

// MetricsConfig configures Prometheus metrics.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and the /metrics route
	// are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if configFileFound {
		if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	ApplyDefaults(&cfg)

	if err := applyLegacyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyLegacyEnv applies the bare environment shorthands PORT, EXPIRY_DAYS
// and SQLITE_URI, which take precedence over the config file. SQLITE_URI
// accepts an optional sqlite:// scheme prefix.
func applyLegacyEnv(cfg *Config) error {
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT value %q: %w", port, err)
		}
		cfg.Server.Port = p
	}
	if days := os.Getenv("EXPIRY_DAYS"); days != "" {
		d, err := strconv.Atoi(days)
		if err != nil {
			return fmt.Errorf("invalid EXPIRY_DAYS value %q: %w", days, err)
		}
		cfg.Documents.Expiry = time.Duration(d) * 24 * time.Hour
	}
	if uri := os.Getenv("SQLITE_URI"); uri != "" {
		cfg.Database.Enabled = true
		cfg.Database.Store.Type = store.DatabaseTypeSQLite
		cfg.Database.Store.SQLite.Path = strings.TrimPrefix(uri, "sqlite://")
	}
	return nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures viper with environment variables and config file
// settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the COPAD_ prefix and underscores.
	// Example: COPAD_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("COPAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings like "30s", "5m" or "24h" to
// time.Duration values.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "copad")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "copad")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}
