// Package config loads and validates fastsearchd's configuration surface.
//
// Precedence, lowest to highest: hardcoded defaults, the YAML file passed to
// Load (see PathFromEnv), then environment overrides. Validate() is always run
// after loading.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EvictionPolicy selects how the model manager chooses which on_demand slot
// to evict when the memory budget is exceeded.
type EvictionPolicy string

const (
	EvictionPolicyLRU  EvictionPolicy = "lru"
	EvictionPolicyFIFO EvictionPolicy = "fifo"
)

// KeepLoadedPolicy is a model slot's lifecycle policy.
type KeepLoadedPolicy string

const (
	KeepLoadedAlways    KeepLoadedPolicy = "always"
	KeepLoadedOnDemand  KeepLoadedPolicy = "on_demand"
	KeepLoadedDisabled  KeepLoadedPolicy = "disabled"
)

// Config is the full configuration surface recognized by fastsearchd.
type Config struct {
	Daemon     DaemonConfig     `yaml:"daemon"`
	Models     map[string]ModelConfig `yaml:"models"`
	Memory     MemoryConfig     `yaml:"memory"`
	Compaction CompactionConfig `yaml:"compaction"`
}

// DaemonConfig configures the RPC server and its ambient logging.
type DaemonConfig struct {
	SocketPath string `yaml:"socket_path"`
	PIDPath    string `yaml:"pid_path"`
	LogLevel   string `yaml:"log_level"`

	// StorePath is not part of the YAML surface; it is populated from the
	// FASTSEARCH_DB environment override (or left empty for the caller's
	// own default).
	StorePath string `yaml:"-"`
}

// ModelConfig configures one named model slot (canonically "embedder" or
// "reranker").
type ModelConfig struct {
	Name               string           `yaml:"name"`
	KeepLoaded         KeepLoadedPolicy `yaml:"keep_loaded"`
	IdleTimeoutSeconds int              `yaml:"idle_timeout_seconds"`
}

// MemoryConfig configures the model manager's memory budget.
type MemoryConfig struct {
	MaxRAMMB       int            `yaml:"max_ram_mb"`
	EvictionPolicy EvictionPolicy `yaml:"eviction_policy"`
}

// CompactionConfig configures background compaction of each opened store's
// in-memory vector graph, which otherwise only grows (deletes are tombstoned,
// never freed; see internal/store/vector.go).
type CompactionConfig struct {
	Enabled            bool    `yaml:"enabled"`
	IdleTimeoutSeconds int     `yaml:"idle_timeout_seconds"`
	CooldownSeconds    int     `yaml:"cooldown_seconds"`
	OrphanThreshold    float64 `yaml:"orphan_threshold"`
	MinOrphanCount     int     `yaml:"min_orphan_count"`
}

// Default returns the configuration with every documented default applied.
func Default() Config {
	return Config{
		Daemon: DaemonConfig{
			SocketPath: "/tmp/fastsearch.sock",
			PIDPath:    "/tmp/fastsearch.pid",
			LogLevel:   "INFO",
		},
		Models: map[string]ModelConfig{
			"embedder": {KeepLoaded: KeepLoadedOnDemand, IdleTimeoutSeconds: 0},
			"reranker": {KeepLoaded: KeepLoadedDisabled, IdleTimeoutSeconds: 0},
		},
		Memory: MemoryConfig{
			MaxRAMMB:       4000,
			EvictionPolicy: EvictionPolicyLRU,
		},
		Compaction: CompactionConfig{
			Enabled:            true,
			IdleTimeoutSeconds: 30,
			CooldownSeconds:    3600,
			OrphanThreshold:    0.2,
			MinOrphanCount:     1000,
		},
	}
}

// PathFromEnv resolves the configuration file path: the explicit flag value
// if non-empty, else FASTSEARCH_CONFIG, else the empty string (Default()
// alone applies).
func PathFromEnv(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	return os.Getenv("FASTSEARCH_CONFIG")
}

// Load reads the YAML file at path (if non-empty and it exists), merges it
// over Default(), applies environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else {
			var file Config
			if err := yaml.Unmarshal(data, &file); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
			cfg = mergeWith(cfg, file)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeWith overlays non-zero fields of override onto base and returns the
// result; it never removes a default that override left unset.
func mergeWith(base, override Config) Config {
	if override.Daemon.SocketPath != "" {
		base.Daemon.SocketPath = override.Daemon.SocketPath
	}
	if override.Daemon.PIDPath != "" {
		base.Daemon.PIDPath = override.Daemon.PIDPath
	}
	if override.Daemon.LogLevel != "" {
		base.Daemon.LogLevel = override.Daemon.LogLevel
	}
	for slot, mc := range override.Models {
		existing, ok := base.Models[slot]
		if !ok {
			base.Models[slot] = mc
			continue
		}
		if mc.Name != "" {
			existing.Name = mc.Name
		}
		if mc.KeepLoaded != "" {
			existing.KeepLoaded = mc.KeepLoaded
		}
		if mc.IdleTimeoutSeconds != 0 {
			existing.IdleTimeoutSeconds = mc.IdleTimeoutSeconds
		}
		base.Models[slot] = existing
	}
	if override.Memory.MaxRAMMB != 0 {
		base.Memory.MaxRAMMB = override.Memory.MaxRAMMB
	}
	if override.Memory.EvictionPolicy != "" {
		base.Memory.EvictionPolicy = override.Memory.EvictionPolicy
	}
	if override.Compaction.IdleTimeoutSeconds != 0 {
		base.Compaction.IdleTimeoutSeconds = override.Compaction.IdleTimeoutSeconds
	}
	if override.Compaction.CooldownSeconds != 0 {
		base.Compaction.CooldownSeconds = override.Compaction.CooldownSeconds
	}
	if override.Compaction.OrphanThreshold != 0 {
		base.Compaction.OrphanThreshold = override.Compaction.OrphanThreshold
	}
	if override.Compaction.MinOrphanCount != 0 {
		base.Compaction.MinOrphanCount = override.Compaction.MinOrphanCount
	}
	base.Compaction.Enabled = override.Compaction.Enabled || base.Compaction.Enabled
	return base
}

// applyEnvOverrides applies the FASTSEARCH_DB environment override
// (FASTSEARCH_CONFIG is resolved by PathFromEnv). FASTSEARCH_DB names the default store path, which
// is carried on DaemonConfig as StorePath for callers that need it; it is
// not itself part of the recognized YAML surface.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FASTSEARCH_DB"); v != "" {
		cfg.Daemon.StorePath = v
	}
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.Memory.MaxRAMMB <= 0 {
		return fmt.Errorf("memory.max_ram_mb must be positive, got %d", c.Memory.MaxRAMMB)
	}
	switch c.Memory.EvictionPolicy {
	case EvictionPolicyLRU, EvictionPolicyFIFO:
	default:
		return fmt.Errorf("memory.eviction_policy must be lru or fifo, got %q", c.Memory.EvictionPolicy)
	}
	for slot, mc := range c.Models {
		switch mc.KeepLoaded {
		case KeepLoadedAlways, KeepLoadedOnDemand, KeepLoadedDisabled:
		default:
			return fmt.Errorf("models.%s.keep_loaded invalid: %q", slot, mc.KeepLoaded)
		}
		if mc.IdleTimeoutSeconds < 0 {
			return fmt.Errorf("models.%s.idle_timeout_seconds must be non-negative", slot)
		}
	}
	switch c.Daemon.LogLevel {
	case "DEBUG", "INFO", "WARNING", "ERROR", "":
	default:
		return fmt.Errorf("daemon.log_level invalid: %q", c.Daemon.LogLevel)
	}
	if c.Compaction.IdleTimeoutSeconds < 0 {
		return fmt.Errorf("compaction.idle_timeout_seconds must be non-negative")
	}
	if c.Compaction.CooldownSeconds < 0 {
		return fmt.Errorf("compaction.cooldown_seconds must be non-negative")
	}
	if c.Compaction.OrphanThreshold < 0 || c.Compaction.OrphanThreshold > 1 {
		return fmt.Errorf("compaction.orphan_threshold must be between 0 and 1, got %v", c.Compaction.OrphanThreshold)
	}
	if c.Compaction.MinOrphanCount < 0 {
		return fmt.Errorf("compaction.min_orphan_count must be non-negative")
	}
	return nil
}
