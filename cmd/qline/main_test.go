package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTestConfig writes a config pointing at temp directories and returns
// its path. Commands run against it share one SQLite database.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	path := filepath.Join(base, "config.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(base, "data") + `"
log_dir = "` + filepath.Join(base, "logs") + `"

[notifications]
ntfy_topic = ""
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// runCLI executes one command against a fresh root, the way main does.
func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", configPath, "--actor", "tester"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, output)
	}
}

func TestJobAddListAdvance(t *testing.T) {
	configPath := writeTestConfig(t)

	out, err := runCLI(t, configPath, "job", "add", "--category", "laptop", "--model", "T480")
	if err != nil {
		t.Fatalf("job add: %v", err)
	}
	requireContains(t, out, "Created QLID0000000001")
	requireContains(t, out, "Queued")

	out, err = runCLI(t, configPath, "job", "list")
	if err != nil {
		t.Fatalf("job list: %v", err)
	}
	requireContains(t, out, "QLID0000000001")
	requireContains(t, out, "T480")

	out, err = runCLI(t, configPath, "job", "assign", "QLID0000000001", "alice")
	if err != nil {
		t.Fatalf("job assign: %v", err)
	}
	requireContains(t, out, "assigned to alice")

	out, err = runCLI(t, configPath, "job", "show", "QLID0000000001")
	if err != nil {
		t.Fatalf("job show: %v", err)
	}
	requireContains(t, out, "Assigned")
	requireContains(t, out, "alice")
}

func TestJobAdvanceRejectsIllegalAction(t *testing.T) {
	configPath := writeTestConfig(t)

	if _, err := runCLI(t, configPath, "job", "add"); err != nil {
		t.Fatalf("job add: %v", err)
	}
	if _, err := runCLI(t, configPath, "job", "advance", "QLID0000000001", "certify"); err == nil {
		t.Fatal("expected error for illegal action")
	}
}

func TestScanCommandResolvesCompoundPayload(t *testing.T) {
	configPath := writeTestConfig(t)

	if _, err := runCLI(t, configPath, "job", "add"); err != nil {
		t.Fatalf("job add: %v", err)
	}
	out, err := runCLI(t, configPath, "scan", "PALLET-9-QLID0000000001")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	requireContains(t, out, "Container: PALLET-9")
	requireContains(t, out, "QLID0000000001")
}

func TestConfigInitAndValidate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out.String(), "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	cmd = newRootCommand()
	out.Reset()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--config", target, "config", "validate"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out.String(), "is valid")
}

func TestParseStates(t *testing.T) {
	states, err := parseStates([]string{"queued", "ESCALATED"})
	if err != nil {
		t.Fatalf("parseStates: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("expected 2 states, got %v", states)
	}
	if _, err := parseStates([]string{"nope"}); err == nil {
		t.Fatal("expected error for unknown state")
	}
}
