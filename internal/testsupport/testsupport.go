// Package testsupport provides shared helpers for package tests: temp-backed
// configs, store lifecycle management, and seeded jobs.
package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"qline/internal/config"
	"qline/internal/jobs"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Notifications.NtfyTopic = ""

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithMaxAttempts overrides the default final-test attempt limit.
func WithMaxAttempts(limit int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.DefaultMaxAttempts = limit
	}
}

// WithAPIToken sets a bearer token on the test config.
func WithAPIToken(token string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Paths.APIToken = token
	}
}

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates a queued job for tests using the provided store.
func NewJob(t testing.TB, store *jobs.Store, category, model string) *jobs.Job {
	t.Helper()

	job, err := store.Create(context.Background(), jobs.CreateParams{
		Category: category,
		Model:    model,
		Actor:    "test",
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}
