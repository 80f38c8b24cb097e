package config

import "sculptor/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `toml:"level" yaml:"level" json:"level,omitempty"`                // debug, info, warn, error
	Format     string          `toml:"format" yaml:"format" json:"format,omitempty"`             // json, text
	File       string          `toml:"file" yaml:"file" json:"file,omitempty"`                   // empty = stderr
	DebugMode  bool            `toml:"debug_mode" yaml:"debug_mode" json:"debug_mode,omitempty"` // Master toggle - false = no logging
	Categories map[string]bool `toml:"categories,omitempty" yaml:"categories,omitempty" json:"categories,omitempty"`
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Returns false if debug_mode is false.
// Returns true if debug_mode is true and category is enabled (or not specified).
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if !c.DebugMode {
		return false
	}
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}

// Options converts to the logging package's options.
func (c *LoggingConfig) Options() logging.Options {
	return logging.Options{
		DebugMode:  c.DebugMode,
		Level:      c.Level,
		JSONFormat: c.Format == "json",
		File:       c.File,
		Categories: c.Categories,
	}
}
