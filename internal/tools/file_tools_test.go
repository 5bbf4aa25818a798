package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestFileTools(t *testing.T) (*FileTools, *Registry, string) {
	t.Helper()
	dir := t.TempDir()
	ft := NewFileTools(dir)
	reg := NewRegistry()
	ft.RegisterAll(reg)
	return ft, reg, dir
}

func TestFileToolsWriteReadRoundTrip(t *testing.T) {
	_, reg, dir := newTestFileTools(t)
	ctx := context.Background()

	out, err := reg.Execute(ctx, "write_file", map[string]any{
		"path": "src/model.py", "content": "class Model: pass\n",
	})
	if err != nil {
		t.Fatal(err)
	}
	if IsErrorResult(out) {
		t.Fatalf("write failed: %s", out)
	}

	data, err := os.ReadFile(filepath.Join(dir, "src", "model.py"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "class Model: pass\n" {
		t.Errorf("file content: %q", data)
	}

	out, err = reg.Execute(ctx, "read_file", map[string]any{"path": "src/model.py"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "class Model: pass\n" {
		t.Errorf("read content: %q", out)
	}
}

func TestFileToolsWriteEscapeRejected(t *testing.T) {
	_, reg, dir := newTestFileTools(t)

	out, err := reg.Execute(context.Background(), "write_file", map[string]any{
		"path": "../outside.txt", "content": "nope",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !IsErrorResult(out) {
		t.Fatalf("expected error envelope, got %q", out)
	}
	if !strings.Contains(ErrorMessage(out), "escapes workspace") {
		t.Errorf("error message: %s", ErrorMessage(out))
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "outside.txt")); err == nil {
		t.Error("file escaped the workspace")
	}
}

func TestFileToolsReadMissing(t *testing.T) {
	_, reg, _ := newTestFileTools(t)

	out, err := reg.Execute(context.Background(), "read_file", map[string]any{"path": "absent.py"})
	if err != nil {
		t.Fatal(err)
	}
	if !IsErrorResult(out) || !strings.Contains(ErrorMessage(out), "file not found") {
		t.Errorf("expected not-found envelope, got %q", out)
	}
}

func TestFileToolsReadOffsetLimit(t *testing.T) {
	ft, reg, _ := newTestFileTools(t)
	ctx := context.Background()

	if _, err := ft.handleWrite(ctx, map[string]any{
		"path": "lines.txt", "content": "one\ntwo\nthree\nfour\nfive",
	}); err != nil {
		t.Fatal(err)
	}

	// JSON numbers arrive as float64 through the wire.
	out, err := reg.Execute(ctx, "read_file", map[string]any{
		"path": "lines.txt", "offset": float64(2), "limit": float64(2),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "[Lines 2-3 of 5]") || !strings.Contains(out, "two\nthree") {
		t.Errorf("windowed read: %q", out)
	}
	if strings.Contains(out, "four") {
		t.Errorf("limit not applied: %q", out)
	}

	// Some providers send digit strings instead of numbers.
	out, err = reg.Execute(ctx, "read_file", map[string]any{
		"path": "lines.txt", "offset": "2", "limit": "2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "[Lines 2-3 of 5]") {
		t.Errorf("string-typed window args: %q", out)
	}
}

func TestFileToolsEdit(t *testing.T) {
	ft, reg, dir := newTestFileTools(t)
	ctx := context.Background()

	if _, err := ft.handleWrite(ctx, map[string]any{
		"path": "train.py", "content": "lr = 0.1\nepochs = 10\n",
	}); err != nil {
		t.Fatal(err)
	}

	out, err := reg.Execute(ctx, "edit_file", map[string]any{
		"path": "train.py", "old_text": "lr = 0.1", "new_text": "lr = 0.01",
	})
	if err != nil {
		t.Fatal(err)
	}
	if IsErrorResult(out) {
		t.Fatalf("edit failed: %s", out)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "train.py"))
	if !strings.Contains(string(data), "lr = 0.01") {
		t.Errorf("edit not applied: %q", data)
	}
}

func TestFileToolsEditRequiresUniqueMatch(t *testing.T) {
	ft, reg, _ := newTestFileTools(t)
	ctx := context.Background()

	if _, err := ft.handleWrite(ctx, map[string]any{
		"path": "dup.py", "content": "x = 1\nx = 1\n",
	}); err != nil {
		t.Fatal(err)
	}

	out, err := reg.Execute(ctx, "edit_file", map[string]any{
		"path": "dup.py", "old_text": "x = 1", "new_text": "x = 2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !IsErrorResult(out) || !strings.Contains(ErrorMessage(out), "must be unique") {
		t.Errorf("expected uniqueness error, got %q", out)
	}
}

func TestFileToolsList(t *testing.T) {
	ft, reg, _ := newTestFileTools(t)
	ctx := context.Background()

	for _, p := range []string{"a.py", "src/b.py"} {
		if _, err := ft.handleWrite(ctx, map[string]any{"path": p, "content": "pass"}); err != nil {
			t.Fatal(err)
		}
	}

	out, err := reg.Execute(ctx, "list_files", map[string]any{"path": ""})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "a.py") || !strings.Contains(out, "src/") {
		t.Errorf("listing: %q", out)
	}
}

func TestFileToolsCategories(t *testing.T) {
	_, reg, _ := newTestFileTools(t)

	if got := reg.Categorize("write_file"); got != CategoryWrite {
		t.Errorf("write_file category: %v", got)
	}
	if got := reg.Categorize("edit_file"); got != CategoryWrite {
		t.Errorf("edit_file category: %v", got)
	}
	if got := reg.Categorize("read_file"); got != CategoryRead {
		t.Errorf("read_file category: %v", got)
	}
	if got := reg.Categorize("list_files"); got != CategoryRead {
		t.Errorf("list_files category: %v", got)
	}
}

func TestFileToolsDisabledWithoutWorkspace(t *testing.T) {
	ft := NewFileTools("")
	if ft.Enabled() {
		t.Error("empty workspace must disable file tools")
	}
	if _, err := ft.resolvePath("x.py"); err == nil {
		t.Error("resolvePath must fail without a workspace")
	}
}
