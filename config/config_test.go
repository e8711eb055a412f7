package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Sessions.Root != "./sessions" {
		t.Errorf("expected default sessions root ./sessions, got %s", cfg.Sessions.Root)
	}
	if cfg.Approval.DefaultMaxRetries != 3 {
		t.Errorf("expected default max retries 3, got %d", cfg.Approval.DefaultMaxRetries)
	}
	if cfg.Provider.ResponseTimeout != 5*time.Minute {
		t.Errorf("expected default response timeout 5m, got %s", cfg.Provider.ResponseTimeout)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing sessions root",
			modify:  func(c *Config) { c.Sessions.Root = "" },
			wantErr: true,
		},
		{
			name:    "negative max retries",
			modify:  func(c *Config) { c.Approval.DefaultMaxRetries = -1 },
			wantErr: true,
		},
		{
			name:    "negative connection timeout",
			modify:  func(c *Config) { c.Provider.ConnectionTimeout = -time.Second },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
sessions:
  root: /tmp/custom-sessions
  profiles_dir: /tmp/custom-profiles
approval:
  policy_path: /tmp/policy.yaml
  default_max_retries: 5
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Sessions.Root != "/tmp/custom-sessions" {
		t.Errorf("expected sessions root /tmp/custom-sessions, got %s", cfg.Sessions.Root)
	}
	if cfg.Approval.DefaultMaxRetries != 5 {
		t.Errorf("expected max retries 5, got %d", cfg.Approval.DefaultMaxRetries)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Sessions.StandardsDir != "./standards" {
		t.Errorf("expected default standards dir to survive partial load, got %s", cfg.Sessions.StandardsDir)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error loading missing file")
	}
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Sessions.Root = "/var/aiworkflow/sessions"
	cfg.Approval.PolicyPath = "/etc/aiworkflow/policy.yaml"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	reloaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if reloaded.Sessions.Root != cfg.Sessions.Root {
		t.Errorf("expected sessions root %s, got %s", cfg.Sessions.Root, reloaded.Sessions.Root)
	}
	if reloaded.Approval.PolicyPath != cfg.Approval.PolicyPath {
		t.Errorf("expected policy path %s, got %s", cfg.Approval.PolicyPath, reloaded.Approval.PolicyPath)
	}
}

func TestApplyEnvOverridesFileValues(t *testing.T) {
	cfg := DefaultConfig()
	t.Setenv(envSessionsRoot, "/env/sessions")
	t.Setenv(envApprovalPath, "/env/policy.yaml")

	cfg.ApplyEnv()

	if cfg.Sessions.Root != "/env/sessions" {
		t.Errorf("expected env override for sessions root, got %s", cfg.Sessions.Root)
	}
	if cfg.Approval.PolicyPath != "/env/policy.yaml" {
		t.Errorf("expected env override for policy path, got %s", cfg.Approval.PolicyPath)
	}
}

func TestLoadWithEmptyPathUsesDefaultsThenEnv(t *testing.T) {
	t.Setenv(envStandardsDir, "/env/standards")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sessions.StandardsDir != "/env/standards" {
		t.Errorf("expected env override to apply over defaults, got %s", cfg.Sessions.StandardsDir)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad.yaml")
	if err := os.WriteFile(configPath, []byte("sessions:\n  root: \"\"\n"), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected Load() to reject a config with an empty sessions root")
	}
}
