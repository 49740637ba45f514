package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.ConsensusMode != "majority" {
		t.Errorf("ConsensusMode = %q, want majority", cfg.ConsensusMode)
	}
	if cfg.FaultTolerance != 0.33 {
		t.Errorf("FaultTolerance = %f, want 0.33", cfg.FaultTolerance)
	}
	if cfg.CallTimeout != 2*time.Minute {
		t.Errorf("CallTimeout = %v, want 2m", cfg.CallTimeout)
	}
	if cfg.MemoryDir != ".quorum/memory" {
		t.Errorf("MemoryDir = %q, want .quorum/memory", cfg.MemoryDir)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
default_provider: claude
coordinator: opus
consensus_mode: byzantine
fault_tolerance: 0.25
call_timeout: 90s
limits:
  max_calls: 10
  max_cost: 5.0
providers:
  claude:
    kind: subprocess
    binary: claude
    capabilities: [code, analysis]
  remote:
    kind: api
    base_url: https://provider.example.com
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DefaultProvider != "claude" {
		t.Errorf("DefaultProvider = %q, want claude", cfg.DefaultProvider)
	}
	if cfg.ConsensusMode != "byzantine" {
		t.Errorf("ConsensusMode = %q, want byzantine", cfg.ConsensusMode)
	}
	if cfg.CallTimeout != 90*time.Second {
		t.Errorf("CallTimeout = %v, want 90s", cfg.CallTimeout)
	}
	if cfg.Limits.MaxCalls != 10 {
		t.Errorf("Limits.MaxCalls = %d, want 10", cfg.Limits.MaxCalls)
	}

	claude, ok := cfg.Providers["claude"]
	if !ok {
		t.Fatal("Providers missing claude entry")
	}
	if claude.Kind != "subprocess" || claude.Binary != "claude" {
		t.Errorf("claude provider = %+v, want subprocess/claude", claude)
	}
	if len(claude.Capabilities) != 2 {
		t.Errorf("claude Capabilities = %v, want 2 entries", claude.Capabilities)
	}
	if cfg.Providers["remote"].Kind != "api" {
		t.Errorf("remote Kind = %q, want api", cfg.Providers["remote"].Kind)
	}
}

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() error = nil, want missing-file error")
	}
	// Defaults survive so callers can fall back.
	if cfg.ConsensusMode != "majority" {
		t.Errorf("ConsensusMode = %q, want defaults preserved", cfg.ConsensusMode)
	}
}

func TestResolve_LocalOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	content := "default_provider: local-pick\nconsensus_mode: raft\n"
	if err := os.WriteFile(filepath.Join(dir, LocalConfigName), []byte(content), 0o644); err != nil {
		t.Fatalf("write local config: %v", err)
	}

	cfg, err := Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.DefaultProvider != "local-pick" {
		t.Errorf("DefaultProvider = %q, want local-pick", cfg.DefaultProvider)
	}
	if cfg.ConsensusMode != "raft" {
		t.Errorf("ConsensusMode = %q, want raft", cfg.ConsensusMode)
	}
	// Untouched keys keep their defaults.
	if cfg.CallTimeout != 2*time.Minute {
		t.Errorf("CallTimeout = %v, want default 2m", cfg.CallTimeout)
	}
}

func TestResolve_EnvOverridesFiles(t *testing.T) {
	dir := t.TempDir()
	content := "consensus_mode: raft\nfault_tolerance: 0.2\n"
	if err := os.WriteFile(filepath.Join(dir, LocalConfigName), []byte(content), 0o644); err != nil {
		t.Fatalf("write local config: %v", err)
	}

	t.Setenv(EnvPrefix+"CONSENSUS_MODE", "byzantine")
	t.Setenv(EnvPrefix+"FAULT_TOLERANCE", "0.4")
	t.Setenv(EnvPrefix+"CALL_TIMEOUT", "45s")

	cfg, err := Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.ConsensusMode != "byzantine" {
		t.Errorf("ConsensusMode = %q, want env override", cfg.ConsensusMode)
	}
	if cfg.FaultTolerance != 0.4 {
		t.Errorf("FaultTolerance = %f, want 0.4", cfg.FaultTolerance)
	}
	if cfg.CallTimeout != 45*time.Second {
		t.Errorf("CallTimeout = %v, want 45s", cfg.CallTimeout)
	}
}

func TestResolve_IgnoresMalformedEnvNumbers(t *testing.T) {
	t.Setenv(EnvPrefix+"FAULT_TOLERANCE", "lots")
	t.Setenv(EnvPrefix+"CALL_TIMEOUT", "soon")

	cfg, err := Resolve(t.TempDir())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.FaultTolerance != 0.33 {
		t.Errorf("FaultTolerance = %f, want default kept", cfg.FaultTolerance)
	}
	if cfg.CallTimeout != 2*time.Minute {
		t.Errorf("CallTimeout = %v, want default kept", cfg.CallTimeout)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.DefaultProvider = "claude"
	cfg.Providers = map[string]Provider{
		"claude": {Kind: "subprocess", Binary: "claude"},
	}

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProvider != cfg.DefaultProvider {
		t.Errorf("DefaultProvider = %q, want %q", loaded.DefaultProvider, cfg.DefaultProvider)
	}
	if loaded.Providers["claude"].Binary != "claude" {
		t.Errorf("round-tripped provider = %+v", loaded.Providers["claude"])
	}
}
