package config

import (
	"fmt"
	"os"

	"github.com/marmos91/copad/pkg/store"
)

// InitConfig creates a sample configuration file at the default location.
// Returns the path the file was written to.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	return path, InitConfigToPath(path, force)
}

// InitConfigToPath creates a sample configuration file at the given path.
// An existing file is only overwritten when force is true.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	cfg := sampleConfig()
	if err := SaveConfig(cfg, path); err != nil {
		return err
	}
	return nil
}

// sampleConfig returns the configuration written by the init command. It
// enables SQLite persistence so a freshly initialized server keeps
// documents across restarts.
func sampleConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Database.Enabled = true
	cfg.Database.Store.Type = store.DatabaseTypeSQLite
	cfg.Database.Store.SQLite.Path = "copad.db"
	cfg.Database.Store.ApplyDefaults()
	return cfg
}
