package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all playgraph configuration.
type Config struct {
	Name string `yaml:"name"`

	// Rule base manifest (see rules.LoadManifest)
	Rules RulesConfig `yaml:"rules"`

	// Closure evaluation
	Inference InferenceConfig `yaml:"inference"`

	// Walkthrough traversal and branching
	Collector CollectorConfig `yaml:"collector"`

	// Multi-game runs
	Batch BatchConfig `yaml:"batch"`

	// Record sink
	Output OutputConfig `yaml:"output"`

	// Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "playgraph",

		Rules: RulesConfig{
			Manifest: "rules.yaml",
			ConstantNames: map[string]string{
				"P": "player",
				"I": "inventory",
			},
		},

		Inference: InferenceConfig{
			FactLimit:        100000,
			CommandPredicate: "command",
		},

		Collector: CollectorConfig{
			Mode:             "branch",
			BranchingDepth:   10,
			Seed:             20190521,
			Ignore:           []string{"look", "examine", "inventory"},
			AlwaysAllow:      []string{"examine cookbook"},
			InventoryCommand: "inventory",
			ExploreWorkers:   1,
		},

		Batch: BatchConfig{
			Workers:     4,
			GameTimeout: "5m",
		},

		Output: OutputConfig{
			Format: "json",
			Path:   "records.json",
			Driver: "sqlite",
		},

		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9464",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Relative paths in the file resolve against its directory.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.resolvePaths(filepath.Dir(path))

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

func (c *Config) resolvePaths(dir string) {
	for _, p := range []*string{&c.Rules.Manifest, &c.Output.Path, &c.Logging.File} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("PLAYGRAPH_RULES"); path != "" {
		c.Rules.Manifest = path
	}
	if path := os.Getenv("PLAYGRAPH_OUTPUT"); path != "" {
		c.Output.Path = path
	}
	if v := os.Getenv("PLAYGRAPH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Batch.Workers = n
		}
	}
	if v := os.Getenv("PLAYGRAPH_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Collector.Seed = n
		}
	}
	if level := os.Getenv("PLAYGRAPH_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
		c.Logging.DebugMode = true
	}
}

// GetGameTimeout returns the per-game timeout. Zero means no limit.
func (c *Config) GetGameTimeout() time.Duration {
	if c.Batch.GameTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Batch.GameTimeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// ValidModes lists the collector modes.
var ValidModes = []string{"walkthrough", "explore", "branch"}

// ValidFormats lists the output formats.
var ValidFormats = []string{"json", "sqlite", "badger"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Rules.Manifest == "" {
		return fmt.Errorf("rules.manifest is required (or set PLAYGRAPH_RULES)")
	}
	if !contains(ValidModes, c.Collector.Mode) {
		return fmt.Errorf("invalid collector mode: %s (valid: %v)", c.Collector.Mode, ValidModes)
	}
	if c.Collector.Mode == "branch" && c.Collector.BranchingDepth < 1 {
		return fmt.Errorf("collector.branching_depth must be >= 1 in branch mode")
	}
	if !contains(ValidFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (valid: %v)", c.Output.Format, ValidFormats)
	}
	if c.Output.Path == "" {
		return fmt.Errorf("output.path is required")
	}
	if c.Output.Format == "sqlite" && c.Output.Driver != "sqlite" && c.Output.Driver != "sqlite3" {
		return fmt.Errorf("invalid sqlite driver: %s (valid: sqlite, sqlite3)", c.Output.Driver)
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be >= 1")
	}
	if c.Batch.GameTimeout != "" {
		if _, err := time.ParseDuration(c.Batch.GameTimeout); err != nil {
			return fmt.Errorf("invalid batch.game_timeout %q: %w", c.Batch.GameTimeout, err)
		}
	}
	if c.Inference.FactLimit < 0 || c.Inference.MaxPasses < 0 {
		return fmt.Errorf("inference limits must not be negative")
	}
	return nil
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
