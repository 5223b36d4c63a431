package config

import (
	"strings"
	"time"

	"github.com/marmos91/copad/pkg/store"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields.
//
// Zero values (0, "", false, nil) are replaced with defaults; explicit
// values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyDocumentsDefaults(&cfg.Documents)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets HTTP listener defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = 3030
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyDatabaseDefaults sets snapshot store defaults.
func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = store.DatabaseTypeSQLite
	}
	if cfg.Store.Type == store.DatabaseTypeSQLite && cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = "copad.db"
	}
	cfg.Store.ApplyDefaults()
}

// applyDocumentsDefaults sets session lifetime defaults.
func applyDocumentsDefaults(cfg *DocumentsConfig) {
	if cfg.Expiry == 0 {
		cfg.Expiry = 24 * time.Hour
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.PersistInterval == 0 {
		cfg.PersistInterval = 3 * time.Second
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for generating sample configuration files and for tests.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
