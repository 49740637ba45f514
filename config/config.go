package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to key names for environment variable
// lookup, e.g. QUORUM_DEFAULT_PROVIDER.
const EnvPrefix = "QUORUM_"

// LocalConfigName is the per-project config filename.
const LocalConfigName = ".quorum.yaml"

// Provider configures one provider entry.
type Provider struct {
	// Kind selects the adapter shape: "subprocess", "api" or "agents".
	Kind string `yaml:"kind"`

	// Binary is the CLI path for subprocess providers.
	Binary string `yaml:"binary,omitempty"`

	// BaseURL is the endpoint for API providers.
	BaseURL string `yaml:"base_url,omitempty"`

	// Model overrides task-type based model selection.
	Model string `yaml:"model,omitempty"`

	// Capabilities restricts which task types the provider takes.
	Capabilities []string `yaml:"capabilities,omitempty"`
}

// Limits configures the metering budget.
type Limits struct {
	MaxCalls  int     `yaml:"max_calls,omitempty"`
	MaxTokens int     `yaml:"max_tokens,omitempty"`
	MaxCost   float64 `yaml:"max_cost,omitempty"`
}

// Config is the engine configuration.
type Config struct {
	// DefaultProvider receives tasks when an assessment carries no
	// recommendations.
	DefaultProvider string `yaml:"default_provider"`

	// Coordinator is the provider consulted first under the
	// hierarchical strategy. Empty means the strategy degrades to
	// parallel.
	Coordinator string `yaml:"coordinator,omitempty"`

	// ConsensusMode is "majority", "byzantine" or "raft".
	ConsensusMode string `yaml:"consensus_mode"`

	// FaultTolerance is the assumed faulty fraction for byzantine
	// consensus.
	FaultTolerance float64 `yaml:"fault_tolerance,omitempty"`

	// CallTimeout bounds individual provider calls.
	CallTimeout time.Duration `yaml:"call_timeout,omitempty"`

	// MemoryDir is where the file-backed result store lives.
	MemoryDir string `yaml:"memory_dir,omitempty"`

	Limits    Limits              `yaml:"limits,omitempty"`
	Providers map[string]Provider `yaml:"providers,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ConsensusMode:  "majority",
		FaultTolerance: 0.33,
		CallTimeout:    2 * time.Minute,
		MemoryDir:      ".quorum/memory",
	}
}

// Load reads a config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve loads configuration hierarchically: defaults, then the
// global config (~/.config/quorum/config.yaml), then the local
// .quorum.yaml in dir, then QUORUM_* environment variables. Missing
// files are silently skipped.
func Resolve(dir string) (Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		globalPath := filepath.Join(home, ".config", "quorum", "config.yaml")
		if err := overlay(&cfg, globalPath); err != nil {
			return cfg, err
		}
	}

	localPath := filepath.Join(dir, LocalConfigName)
	if err := overlay(&cfg, localPath); err != nil {
		return cfg, err
	}

	applyEnv(&cfg)
	return cfg, nil
}

// overlay merges a YAML file into cfg when the file exists.
func overlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides scalar settings from the environment.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "DEFAULT_PROVIDER"); v != "" {
		cfg.DefaultProvider = v
	}
	if v := os.Getenv(EnvPrefix + "COORDINATOR"); v != "" {
		cfg.Coordinator = v
	}
	if v := os.Getenv(EnvPrefix + "CONSENSUS_MODE"); v != "" {
		cfg.ConsensusMode = v
	}
	if v := os.Getenv(EnvPrefix + "FAULT_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.FaultTolerance = f
		}
	}
	if v := os.Getenv(EnvPrefix + "CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CallTimeout = d
		}
	}
	if v := os.Getenv(EnvPrefix + "MEMORY_DIR"); v != "" {
		cfg.MemoryDir = v
	}
}

// Save writes the config to a YAML file, creating parent directories.
func Save(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
