package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// BuildConfig holds settings for the validation gate.
type BuildConfig struct {
	// Command is the project's own build/check command, run through
	// the shell in the repository root.
	Command string `yaml:"command"`

	// TimeoutSeconds bounds one build run (default 300).
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// ManifestGlobs lists patterns for manifest files that get a
	// structural pre-check before the build (default package.json).
	ManifestGlobs []string `yaml:"manifest_globs"`
}

// GeneratorConfig holds settings for the external generator service.
type GeneratorConfig struct {
	// BaseURL is the OpenAI-compatible API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model is the model identifier sent with each request.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key
	// (default PATCHLOOP_API_KEY). The key itself never lives in the
	// config file.
	APIKeyEnv string `yaml:"api_key_env"`

	// RequestsPerMinute caps generator calls (default 30).
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// TimeoutSeconds bounds one generator call (default 120).
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// RunConfig holds settings for the integration run itself.
type RunConfig struct {
	// ModeOverride forces the run mode (FIX, FEATURE or UPGRADE).
	// Empty means the mode is derived from the latest logs.
	ModeOverride string `yaml:"mode_override"`

	// PathAllowList restricts which repository paths a candidate may
	// touch. Empty allows everything.
	PathAllowList []string `yaml:"path_allow_list"`

	// HistoryDBPath is the sqlite file recording runs, attempts and
	// chunk outcomes. Empty disables history.
	HistoryDBPath string `yaml:"history_db_path"`

	// LogTailBytes caps how much of the latest build/runtime log is
	// fed back into mode detection and corrective prompts
	// (default 8192).
	LogTailBytes int `yaml:"log_tail_bytes"`
}

// Config is the explicit configuration value threaded into the run,
// replacing any ambient state
type Config struct {
	// RepoRoot is the working copy of the target repository.
	RepoRoot string `yaml:"repo_root"`

	Build     BuildConfig     `yaml:"build"`
	Generator GeneratorConfig `yaml:"generator"`
	Run       RunConfig       `yaml:"run"`
}

// Load reads and validates a config file, applying defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with all defaults applied, for tests and
// programmatic construction
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Build.TimeoutSeconds <= 0 {
		c.Build.TimeoutSeconds = 300
	}
	if len(c.Build.ManifestGlobs) == 0 {
		c.Build.ManifestGlobs = []string{"package.json", "*/package.json"}
	}
	if c.Generator.APIKeyEnv == "" {
		c.Generator.APIKeyEnv = "PATCHLOOP_API_KEY"
	}
	if c.Generator.RequestsPerMinute <= 0 {
		c.Generator.RequestsPerMinute = 30
	}
	if c.Generator.TimeoutSeconds <= 0 {
		c.Generator.TimeoutSeconds = 120
	}
	if c.Run.LogTailBytes <= 0 {
		c.Run.LogTailBytes = 8192
	}
}

func (c *Config) validate() error {
	if c.RepoRoot == "" {
		return fmt.Errorf("config: repo_root is required")
	}
	if c.Build.Command == "" {
		return fmt.Errorf("config: build.command is required")
	}
	switch c.Run.ModeOverride {
	case "", "FIX", "FEATURE", "UPGRADE":
	default:
		return fmt.Errorf("config: unknown mode_override %q", c.Run.ModeOverride)
	}
	return nil
}

// BuildTimeout returns the build timeout as a duration
func (c *Config) BuildTimeout() time.Duration {
	return time.Duration(c.Build.TimeoutSeconds) * time.Second
}

// GeneratorTimeout returns the generator call timeout as a duration
func (c *Config) GeneratorTimeout() time.Duration {
	return time.Duration(c.Generator.TimeoutSeconds) * time.Second
}

// APIKey resolves the generator API key from the environment
func (c *Config) APIKey() string {
	return os.Getenv(c.Generator.APIKeyEnv)
}
