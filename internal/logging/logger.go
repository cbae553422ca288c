// Package logging provides config-driven categorized logging for playgraph.
// Every category is a named child of one zap logger. Logging is controlled by
// debug_mode in the logging config - when false, category loggers are no-ops
// and only the CLI's own logger speaks.
package logging

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot        Category = "boot"        // Boot/initialization
	CategoryRules       Category = "rules"       // Rule-base loading and validation
	CategoryInference   Category = "inference"   // Closure computation
	CategoryViews       Category = "views"       // Visibility projections
	CategoryDiff        Category = "diff"        // Graph command synthesis
	CategoryPlaythrough Category = "playthrough" // Walkthrough traversal and branches
	CategoryWorld       Category = "world"       // Scripted environment
	CategoryStore       Category = "store"       // Record sinks
	CategoryBatch       Category = "batch"       // Multi-game runs
)

// Options mirrors config.LoggingConfig to avoid circular imports.
type Options struct {
	Level      string          // debug, info, warn, error
	Format     string          // json, console
	File       string          // empty = stderr
	DebugMode  bool            // master toggle
	Categories map[string]bool // per-category toggles, missing = enabled
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    *zap.Logger
	options Options
	loggers = make(map[Category]*Logger)
)

// Initialize builds the shared zap logger from options.
// Should be called once at startup.
func Initialize(opts Options) error {
	if !opts.DebugMode {
		Attach(nil, opts)
		return nil
	}

	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var cfg zap.Config
	if opts.Format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	if opts.File != "" {
		cfg.OutputPaths = []string{opts.File}
	}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	Attach(l, opts)

	Boot("=== playgraph logging initialized ===")
	Boot("Log level: %s", level)
	if len(opts.Categories) > 0 {
		enabled := 0
		for _, on := range opts.Categories {
			if on {
				enabled++
			}
		}
		Boot("Enabled categories: %d/%d", enabled, len(opts.Categories))
	} else {
		BootDebug("All categories enabled (no category filter)")
	}
	return nil
}

// Attach installs an existing zap logger (nil disables category logging).
func Attach(l *zap.Logger, opts Options) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	options = opts
	loggers = make(map[Category]*Logger)
}

// IsDebugMode returns whether category logging is enabled
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return base != nil && options.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if base == nil || !options.DebugMode {
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
// Returns a no-op logger if debug mode is disabled or category is disabled.
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

	l := &Logger{category: category}
	if categoryEnabledLocked(category) {
		l.sugar = base.Named(string(category)).Sugar()
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// With returns a logger carrying structured key-value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	if l.sugar == nil {
		return l
	}
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Sync flushes the shared logger.
func Sync() {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l != nil {
		_ = l.Sync()
	}
}

// Fallback writes to stderr when no logger has been configured yet.
func Fallback(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[playgraph] "+format+"\n", args...)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

func Rules(format string, args ...interface{})      { Get(CategoryRules).Info(format, args...) }
func RulesDebug(format string, args ...interface{}) { Get(CategoryRules).Debug(format, args...) }

func Inference(format string, args ...interface{})      { Get(CategoryInference).Info(format, args...) }
func InferenceDebug(format string, args ...interface{}) { Get(CategoryInference).Debug(format, args...) }
func InferenceWarn(format string, args ...interface{})  { Get(CategoryInference).Warn(format, args...) }

func ViewsDebug(format string, args ...interface{}) { Get(CategoryViews).Debug(format, args...) }

func DiffDebug(format string, args ...interface{}) { Get(CategoryDiff).Debug(format, args...) }

func Playthrough(format string, args ...interface{})      { Get(CategoryPlaythrough).Info(format, args...) }
func PlaythroughDebug(format string, args ...interface{}) { Get(CategoryPlaythrough).Debug(format, args...) }
func PlaythroughWarn(format string, args ...interface{})  { Get(CategoryPlaythrough).Warn(format, args...) }

func World(format string, args ...interface{})      { Get(CategoryWorld).Info(format, args...) }
func WorldDebug(format string, args ...interface{}) { Get(CategoryWorld).Debug(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func StoreError(format string, args ...interface{}) { Get(CategoryStore).Error(format, args...) }

func Batch(format string, args ...interface{})      { Get(CategoryBatch).Info(format, args...) }
func BatchDebug(format string, args ...interface{}) { Get(CategoryBatch).Debug(format, args...) }
func BatchError(format string, args ...interface{}) { Get(CategoryBatch).Error(format, args...) }

// =============================================================================
// TIMING HELPERS - For performance logging
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
