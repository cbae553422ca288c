package config

// RulesConfig locates the rule base and controls how its entities render.
type RulesConfig struct {
	Manifest      string            `yaml:"manifest" json:"manifest"`
	ConstantNames map[string]string `yaml:"constant_names" json:"constant_names,omitempty"` // entity type -> display name
	Discard       []string          `yaml:"discard" json:"discard,omitempty"`               // predicates never serialized
	Verify        bool              `yaml:"verify" json:"verify,omitempty"`                 // cross-check closures with Mangle
}

// InferenceConfig bounds closure evaluation.
type InferenceConfig struct {
	FactLimit        int    `yaml:"fact_limit" json:"fact_limit"`
	MaxPasses        int    `yaml:"max_passes" json:"max_passes,omitempty"` // 0 = derived from the ground bound
	CommandPredicate string `yaml:"command_predicate" json:"command_predicate"`
}

// CollectorConfig configures walkthrough traversal.
type CollectorConfig struct {
	Mode             string   `yaml:"mode" json:"mode"` // walkthrough, explore, branch
	BranchingDepth   int      `yaml:"branching_depth" json:"branching_depth"`
	Seed             int64    `yaml:"seed" json:"seed"`
	Ignore           []string `yaml:"ignore" json:"ignore"`
	AlwaysAllow      []string `yaml:"always_allow" json:"always_allow"`
	InventoryCommand string   `yaml:"inventory_command" json:"inventory_command"`
	EmitViews        bool     `yaml:"emit_views" json:"emit_views"`
	ExploreWorkers   int      `yaml:"explore_workers" json:"explore_workers"`
}

// BatchConfig configures multi-game runs.
type BatchConfig struct {
	Workers     int    `yaml:"workers" json:"workers"`
	GameTimeout string `yaml:"game_timeout" json:"game_timeout"`
}

// OutputConfig selects the record sink.
type OutputConfig struct {
	Format string `yaml:"format" json:"format"` // json, sqlite, badger
	Path   string `yaml:"path" json:"path"`
	Driver string `yaml:"driver" json:"driver"` // sqlite (pure Go) or sqlite3 (cgo)
	Force  bool   `yaml:"force" json:"force"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}
