// Package config handles paperforge configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/paperforge/config.yaml,
// /etc/paperforge/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "paperforge", "config.yaml"))
	}

	paths = append(paths, "/etc/paperforge/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all paperforge configuration.
type Config struct {
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	Models     ModelsConfig     `yaml:"models"`
	Loop       LoopConfig       `yaml:"loop"`
	Memory     MemoryConfig     `yaml:"memory"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	GitHub     GitHubConfig     `yaml:"github"`
	DataDir    string           `yaml:"data_dir"`
	LogLevel   string           `yaml:"log_level"`
}

// WorkspaceConfig defines where generated repositories live.
type WorkspaceConfig struct {
	// Path is the root directory for generated code. All tool file
	// paths resolve relative to this directory.
	Path string `yaml:"path"`
	// ReferenceDir is where downloaded reference repositories land.
	ReferenceDir string `yaml:"reference_dir"`
}

// ModelsConfig names the model for each agent role.
type ModelsConfig struct {
	// Default is used for any role without an explicit model.
	Default        string `yaml:"default"`
	Implementation string `yaml:"implementation"`
	Analysis       string `yaml:"analysis"`
	Summary        string `yaml:"summary"`
}

// ForRole returns the configured model for a role, falling back to the
// default.
func (m ModelsConfig) ForRole(role string) string {
	switch role {
	case "implementation":
		if m.Implementation != "" {
			return m.Implementation
		}
	case "analysis":
		if m.Analysis != "" {
			return m.Analysis
		}
	case "summary":
		if m.Summary != "" {
			return m.Summary
		}
	}
	return m.Default
}

// LoopConfig bounds conversation loop runs.
type LoopConfig struct {
	MaxIterations       int `yaml:"max_iterations"`
	MaxSeconds          int `yaml:"max_seconds"`
	CompactionThreshold int `yaml:"compaction_threshold"`
	MaxTokens           int `yaml:"max_tokens"`
}

// MaxDuration converts MaxSeconds to a duration. Zero means "use the
// loop default".
func (l LoopConfig) MaxDuration() time.Duration {
	return time.Duration(l.MaxSeconds) * time.Second
}

// MemoryConfig controls history compaction.
type MemoryConfig struct {
	WindowRoundTrips   int `yaml:"window_round_trips"`
	EmergencyThreshold int `yaml:"emergency_threshold"`
}

// CheckpointConfig controls phase checkpointing.
type CheckpointConfig struct {
	// Path is the sqlite database file. Defaults to
	// <data_dir>/checkpoints.db when empty.
	Path string `yaml:"path"`
	// StalenessDays is how old a checkpoint may be before resume is
	// refused. Default 7.
	StalenessDays int `yaml:"staleness_days"`
	// TrackedFiles are dependency manifests whose content hashes gate
	// resume validity (relative to the workspace).
	TrackedFiles []string `yaml:"tracked_files"`
}

// Staleness converts StalenessDays to a duration. Zero means "use the
// checkpoint default".
func (c CheckpointConfig) Staleness() time.Duration {
	return time.Duration(c.StalenessDays) * 24 * time.Hour
}

// GitHubConfig configures reference repository downloads.
type GitHubConfig struct {
	// Token is a personal access token; empty means unauthenticated
	// (rate-limited) access.
	Token string `yaml:"token"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Path:         "workspace",
			ReferenceDir: "workspace/references",
		},
		Loop: LoopConfig{
			MaxIterations:       50,
			MaxSeconds:          2400,
			CompactionThreshold: 3,
		},
		Memory: MemoryConfig{
			WindowRoundTrips:   1,
			EmergencyThreshold: 120,
		},
		Checkpoint: CheckpointConfig{
			StalenessDays: 7,
			TrackedFiles:  []string{"requirements.txt", "setup.py", "environment.yml"},
		},
		DataDir: "data",
	}
}
