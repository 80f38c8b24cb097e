// Package logging provides config-driven categorized logging for sculptor.
// Each subsystem logs through its own category; all categories share one zap core.
// Logging is controlled by debug_mode in the sculptor config - when false, nothing is written.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot   Category = "boot"   // Startup, config loading
	CategoryDirs   Category = "dirs"   // Project directory resolution
	CategoryFileIO Category = "fileio" // Load/save/backup/edit of files
	CategorySnap   Category = "snap"   // SHA-512 snapshots
	CategoryLedger Category = "ledger" // Snapshot history database
	CategoryWatch  Category = "watch"  // Filesystem watcher
	CategoryApp    Category = "app"    // Application framework glue
)

// AllCategories lists every category in display order.
var AllCategories = []Category{
	CategoryBoot, CategoryDirs, CategoryFileIO, CategorySnap,
	CategoryLedger, CategoryWatch, CategoryApp,
}

// Options mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports.
type Options struct {
	DebugMode  bool
	Level      string // debug, info, warn, error
	JSONFormat bool
	File       string // empty = stderr
	Categories map[string]bool
}

// Logger is a category-scoped sugared zap logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	options Options
	loggers = make(map[Category]*Logger)
	nop     = zap.NewNop().Sugar()
)

// Initialize builds the shared zap core from opts.
// With DebugMode off every logger is a no-op.
func Initialize(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	_ = base.Sync()
	options = opts
	loggers = make(map[Category]*Logger)

	if !opts.DebugMode {
		base = zap.NewNop()
		return nil
	}

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	if !opts.JSONFormat {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = true
	cfg.OutputPaths = []string{"stderr"}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		cfg.OutputPaths = []string{opts.File}
	}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	base = l
	return nil
}

// Use installs an already-built zap logger as the shared core.
// Category filtering from the last Initialize still applies.
func Use(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	base = l
	loggers = make(map[Category]*Logger)
}

// ParseLevel maps a config level string to a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("invalid log level: %q", s)
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return options.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabled(category)
}

func categoryEnabled(category Category) bool {
	if !options.DebugMode {
		return false
	}
	if options.Categories == nil {
		return true
	}
	enabled, exists := options.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode or the category is disabled.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	l := &Logger{category: category, sugar: nop}
	if categoryEnabled(category) {
		l.sugar = base.Named(string(category)).Sugar()
	}
	loggers[category] = l
	return l
}

// Sync flushes the shared core. Call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

// Reset drops back to the silent default. Mostly for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	_ = base.Sync()
	base = zap.NewNop()
	options = Options{}
	loggers = make(map[Category]*Logger)
}

// Category returns the logger's category.
func (l *Logger) Category() Category { return l.category }

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a child logger carrying structured key/value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
