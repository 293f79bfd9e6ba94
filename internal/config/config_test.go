package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingDefaultUsesDefaults(t *testing.T) {
	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workflow.DefaultMaxAttempts != 2 {
		t.Fatalf("expected default max attempts 2, got %d", cfg.Workflow.DefaultMaxAttempts)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7519" {
		t.Fatalf("unexpected default bind %q", cfg.Paths.APIBind)
	}
	if strings.HasPrefix(cfg.Paths.DataDir, "~") {
		t.Fatalf("data dir must be expanded, got %q", cfg.Paths.DataDir)
	}
	if cfg.Paths.LogDir != cfg.Paths.DataDir {
		t.Fatalf("log dir must default to data dir, got %q", cfg.Paths.LogDir)
	}
}

func TestLoadMissingExplicitPathFails(t *testing.T) {
	if _, _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing explicit config path")
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
data_dir = "` + t.TempDir() + `"

[workflow]
default_max_attempts = 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Workflow.DefaultMaxAttempts != 5 {
		t.Fatalf("file value must win, got %d", cfg.Workflow.DefaultMaxAttempts)
	}
	if cfg.Workflow.SweepIntervalSeconds != 300 {
		t.Fatalf("unset values must keep defaults, got %d", cfg.Workflow.SweepIntervalSeconds)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[workflow]
default_max_attempts = 0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := Load(path); err == nil {
		t.Fatal("expected validation error for zero max attempts")
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteSample(path); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if err := WriteSample(path); err == nil {
		t.Fatal("expected error overwriting existing config")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[workflow]") {
		t.Fatal("sample must contain the workflow section")
	}
}

func TestValidateRejectsBadLogFormat(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported log format")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	got, err := ExpandPath("~/x")
	if err != nil {
		t.Fatalf("ExpandPath: %v", err)
	}
	if got != filepath.Join(home, "x") {
		t.Fatalf("expected %q, got %q", filepath.Join(home, "x"), got)
	}
}
