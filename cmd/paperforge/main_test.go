package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paperforge/paperforge/internal/checkpoint"
	"github.com/paperforge/paperforge/internal/progress"
)

func runCapture(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), &out, &out, args)
	return out.String(), err
}

func TestVersionText(t *testing.T) {
	out, err := runCapture(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "paperforge") || !strings.Contains(out, "go_version:") {
		t.Errorf("version output: %q", out)
	}
}

func TestVersionJSON(t *testing.T) {
	out, err := runCapture(t, "-o", "json", "version")
	if err != nil {
		t.Fatal(err)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("version -o json must emit valid JSON: %v\n%s", err, out)
	}
	if info["version"] == "" {
		t.Errorf("missing version field: %v", info)
	}
}

func TestUsageOnNoArgs(t *testing.T) {
	out, err := runCapture(t)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Usage: paperforge") {
		t.Errorf("usage output: %q", out)
	}
}

func TestUnknownCommand(t *testing.T) {
	if _, err := runCapture(t, "frobnicate"); err == nil {
		t.Error("unknown command must error")
	}
}

func TestUnknownFlag(t *testing.T) {
	if _, err := runCapture(t, "-bogus"); err == nil {
		t.Error("unknown flag must error")
	}
}

func TestBadOutputFormat(t *testing.T) {
	if _, err := runCapture(t, "-o", "xml", "version"); err == nil {
		t.Error("unknown output format must error")
	}
}

func TestPlanCommand(t *testing.T) {
	dir := t.TempDir()
	planPath := filepath.Join(dir, "plan.md")
	content := "# Reproduction Plan\n\n## Phase 1: Core\n\n- `src/model.py` - the model\n- `src/train.py` - training loop\n"
	if err := os.WriteFile(planPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCapture(t, "plan", planPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Files: 2") || !strings.Contains(out, "src/model.py") {
		t.Errorf("plan output: %q", out)
	}
}

func TestPlanCommandMissingFile(t *testing.T) {
	if _, err := runCapture(t, "plan", filepath.Join(t.TempDir(), "absent.md")); err == nil {
		t.Error("missing plan file must error")
	}
}

func TestIngestCommand(t *testing.T) {
	dir := t.TempDir()
	paperPath := filepath.Join(dir, "paper.md")
	if err := os.WriteFile(paperPath, []byte("# A Paper\n\nBody text.\n\n## Method\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCapture(t, "ingest", paperPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Title: A Paper") || !strings.Contains(out, "Method") {
		t.Errorf("ingest output: %q", out)
	}
}

func TestReportCommand(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "data_dir: " + dataDir + "\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dataDir, "checkpoints.db"))
	if err != nil {
		t.Fatal(err)
	}
	store, err := checkpoint.NewStore(db)
	if err != nil {
		t.Fatal(err)
	}
	mgr := checkpoint.NewManager(store, "wf-1", dir, nil, 0, nil)
	mgr.MarkPhaseStarted(checkpoint.PhasePlanning)
	mgr.MarkPhaseCompleted(checkpoint.PhasePlanning, 3*time.Second)
	if _, err := mgr.Save(checkpoint.PhasePlanning, progress.State{}, nil); err != nil {
		t.Fatal(err)
	}
	db.Close()

	out, err := runCapture(t, "-config", cfgPath, "report", "wf-1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Pipeline report: wf-1") {
		t.Errorf("report header missing: %q", out)
	}
	if !strings.Contains(out, "planning completed") {
		t.Errorf("phase log missing: %q", out)
	}
}

func TestReportCommandMissingDatabase(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("data_dir: "+filepath.Join(dir, "data")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCapture(t, "-config", cfgPath, "report", "wf-1"); err == nil {
		t.Error("report without a checkpoint database must error")
	}
}

func TestStatusMissingDatabase(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "data_dir: " + filepath.Join(dir, "data") + "\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := runCapture(t, "-config", cfgPath, "status", "wf-1"); err == nil {
		t.Error("status without a checkpoint database must error")
	}
}
