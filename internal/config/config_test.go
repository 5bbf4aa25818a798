package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadExpandsEnvAndOverridesDefaults(t *testing.T) {
	t.Setenv("PF_TEST_TOKEN", "ghp_secret")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
workspace:
  path: /tmp/generated
models:
  default: claude-sonnet
  summary: claude-haiku
loop:
  max_iterations: 25
checkpoint:
  staleness_days: 3
github:
  token: ${PF_TEST_TOKEN}
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Workspace.Path != "/tmp/generated" {
		t.Errorf("workspace path: %q", cfg.Workspace.Path)
	}
	if cfg.GitHub.Token != "ghp_secret" {
		t.Errorf("env var not expanded: %q", cfg.GitHub.Token)
	}
	if cfg.Loop.MaxIterations != 25 {
		t.Errorf("loop override lost: %d", cfg.Loop.MaxIterations)
	}
	// Unset fields keep defaults.
	if cfg.Memory.EmergencyThreshold != 120 {
		t.Errorf("memory default lost: %d", cfg.Memory.EmergencyThreshold)
	}
	if cfg.Checkpoint.Staleness() != 3*24*time.Hour {
		t.Errorf("staleness: %v", cfg.Checkpoint.Staleness())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFindConfigExplicitMustExist(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("explicit missing path must error")
	}
}

func TestModelsForRole(t *testing.T) {
	m := ModelsConfig{Default: "base", Analysis: "big"}
	if got := m.ForRole("analysis"); got != "big" {
		t.Errorf("analysis role: %q", got)
	}
	if got := m.ForRole("implementation"); got != "base" {
		t.Errorf("fallback: %q", got)
	}
	if got := m.ForRole("unknown"); got != "base" {
		t.Errorf("unknown role: %q", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{" debug ", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tc := range cases {
		got, err := ParseLogLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLogLevel(%q) err = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
