// Package config provides configuration loading and management for
// aiworkflow, mirroring the teacher's config package: defaults, YAML
// load/save, and env-var overrides layered on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete aiworkflow runtime configuration.
type Config struct {
	Sessions SessionsConfig `yaml:"sessions"`
	Approval ApprovalConfig `yaml:"approval"`
	Provider ProviderConfig `yaml:"provider"`
}

// SessionsConfig locates on-disk session and profile state.
type SessionsConfig struct {
	// Root is the sessions root directory (one subdirectory per session).
	Root string `yaml:"root"`
	// ProfilesDir holds profile plugin configuration/assets, if any.
	ProfilesDir string `yaml:"profiles_dir"`
	// StandardsDir holds the raw standards material profiles bundle.
	StandardsDir string `yaml:"standards_dir"`
}

// ApprovalConfig locates and bounds the approval policy.
type ApprovalConfig struct {
	// PolicyPath is the YAML approval policy file. Empty means
	// DefaultPolicy() (skip approver everywhere).
	PolicyPath string `yaml:"policy_path"`
	// DefaultMaxRetries is validated (>= 0) and round-trips through
	// YAML; nothing else reads it. Policy rows parsed by
	// approval.ParsePolicy that omit max_retries get 0.
	DefaultMaxRetries int `yaml:"default_max_retries"`
}

// ProviderConfig holds default provider timeout preferences applied
// when a provider doesn't declare its own.
type ProviderConfig struct {
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	ResponseTimeout   time.Duration `yaml:"response_timeout"`
}

// Env var overrides, consulted by Load after a file (or defaults) has
// been read, matching the teacher's layered precedence: defaults <
// file < environment.
const (
	envSessionsRoot = "AIWF_SESSIONS_ROOT"
	envProfilesDir  = "AIWF_PROFILES_DIR"
	envStandardsDir = "STANDARDS_DIR"
	envApprovalPath = "AIWF_APPROVAL_POLICY"
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Sessions: SessionsConfig{
			Root:         "./sessions",
			ProfilesDir:  "./profiles",
			StandardsDir: "./standards",
		},
		Approval: ApprovalConfig{
			PolicyPath:        "",
			DefaultMaxRetries: 3,
		},
		Provider: ProviderConfig{
			ConnectionTimeout: 30 * time.Second,
			ResponseTimeout:   5 * time.Minute,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Sessions.Root == "" {
		return fmt.Errorf("sessions.root is required")
	}
	if c.Approval.DefaultMaxRetries < 0 {
		return fmt.Errorf("approval.default_max_retries must be >= 0")
	}
	if c.Provider.ConnectionTimeout < 0 || c.Provider.ResponseTimeout < 0 {
		return fmt.Errorf("provider timeouts must be >= 0")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file, starting from
// DefaultConfig() so unspecified fields keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return cfg, nil
}

// SaveToFile writes cfg as YAML to path, creating parent directories
// as needed.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory %q: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file %q: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg's fields from environment variables, when
// set. Call after LoadFromFile/DefaultConfig so the environment wins.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(envSessionsRoot); v != "" {
		c.Sessions.Root = v
	}
	if v := os.Getenv(envProfilesDir); v != "" {
		c.Sessions.ProfilesDir = v
	}
	if v := os.Getenv(envStandardsDir); v != "" {
		c.Sessions.StandardsDir = v
	}
	if v := os.Getenv(envApprovalPath); v != "" {
		c.Approval.PolicyPath = v
	}
}

// Load resolves the effective configuration: defaults, then path (if
// non-empty), then environment overrides.
func Load(path string) (*Config, error) {
	var cfg *Config
	var err error

	if path != "" {
		cfg, err = LoadFromFile(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = DefaultConfig()
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
