package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"sculptor/internal/fileio"
	"sculptor/internal/ledger"
	"sculptor/internal/logging"
	"sculptor/internal/projectdirs"
)

// DefaultFileName is sculptor's own config file inside its config dir.
const DefaultFileName = "sculptor.toml"

// Config holds sculptor's own settings.
type Config struct {
	// Logging
	Logging LoggingConfig `toml:"logging" yaml:"logging" json:"logging"`

	// File watcher
	Watch WatchConfig `toml:"watch" yaml:"watch" json:"watch"`

	// Backups written by BackupAndSave
	Backup BackupConfig `toml:"backup" yaml:"backup" json:"backup"`

	// Snapshot history
	Ledger LedgerConfig `toml:"ledger" yaml:"ledger" json:"ledger"`
}

// WatchConfig configures the file watcher.
type WatchConfig struct {
	Debounce string `toml:"debounce" yaml:"debounce" json:"debounce"`
}

// BackupConfig configures backup retention.
type BackupConfig struct {
	Keep int `toml:"keep" yaml:"keep" json:"keep"` // 0 = keep every backup
}

// LedgerConfig configures the snapshot history database.
type LedgerConfig struct {
	Enabled     bool   `toml:"enabled" yaml:"enabled" json:"enabled"`
	File        string `toml:"file" yaml:"file" json:"file"` // relative paths resolve against the data dir
	KeepHistory int    `toml:"keep_history" yaml:"keep_history" json:"keep_history"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Watch: WatchConfig{
			Debounce: "200ms",
		},
		Backup: BackupConfig{
			Keep: 5,
		},
		Ledger: LedgerConfig{
			Enabled:     true,
			File:        ledger.DefaultFileName,
			KeepHistory: 50,
		},
	}
}

// DefaultPath returns $SCULPTOR_CONFIG, or sculptor.toml inside dirs' config dir.
func DefaultPath(dirs *projectdirs.ProjectDirs) string {
	if p := os.Getenv("SCULPTOR_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(dirs.ConfigDir(), DefaultFileName)
}

// Load loads configuration from path. The format follows the extension.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	f, err := fileio.Open[Config](path)
	if err != nil {
		return nil, err
	}
	if err := f.LoadInto(cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		logging.Get(logging.CategoryBoot).Debug("no config at %s, using defaults", path)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to path.
func (c *Config) Save(path string) error {
	f, err := fileio.Open[Config](path)
	if err != nil {
		return err
	}
	if err := f.Save(*c); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("SCULPTOR_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if debug := os.Getenv("SCULPTOR_DEBUG"); debug != "" {
		if on, err := strconv.ParseBool(debug); err == nil {
			c.Logging.DebugMode = on
		}
	}
	if ledgerEnv := os.Getenv("SCULPTOR_LEDGER"); ledgerEnv != "" {
		if on, err := strconv.ParseBool(ledgerEnv); err == nil {
			c.Ledger.Enabled = on
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format: %q (valid: text, json)", c.Logging.Format)
	}
	if d, err := time.ParseDuration(c.Watch.Debounce); err != nil || d <= 0 {
		return fmt.Errorf("invalid watch debounce: %q", c.Watch.Debounce)
	}
	if c.Backup.Keep < 0 {
		return fmt.Errorf("backup keep must be >= 0, got %d", c.Backup.Keep)
	}
	if c.Ledger.Enabled && c.Ledger.File == "" {
		return errors.New("ledger enabled but no ledger file configured")
	}
	if c.Ledger.KeepHistory < 0 {
		return fmt.Errorf("ledger keep_history must be >= 0, got %d", c.Ledger.KeepHistory)
	}
	return nil
}

// GetDebounce returns the watch debounce as a duration.
func (c *Config) GetDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 200 * time.Millisecond
	}
	return d
}

// LedgerPath resolves the ledger file against dataDir.
func (c *Config) LedgerPath(dataDir string) string {
	if filepath.IsAbs(c.Ledger.File) {
		return c.Ledger.File
	}
	return filepath.Join(dataDir, c.Ledger.File)
}
