package reference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// newTestFetcher creates a fetcher backed by the given handler. The
// test server is closed automatically when the test finishes.
func newTestFetcher(t *testing.T, handler http.Handler) *Fetcher {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	f, err := NewFetcher(ts.Client(), "test-token", ts.URL, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	return f
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/papernet", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"full_name":        "acme/papernet",
			"description":      "Official PaperNet implementation",
			"default_branch":   "main",
			"language":         "Python",
			"stargazers_count": 321,
			"html_url":         "https://github.com/acme/papernet",
		})
	})

	f := newTestFetcher(t, mux)
	info, err := f.Info(context.Background(), "acme/papernet")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.FullName != "acme/papernet" || info.Stars != 321 {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.DefaultBranch != "main" || info.Language != "Python" {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestInfoInvalidSpec(t *testing.T) {
	f := newTestFetcher(t, http.NewServeMux())
	if _, err := f.Info(context.Background(), "no-slash"); err == nil {
		t.Error("expected error for malformed repo spec")
	}
}

func TestFetchReadme(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/papernet/readme", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"type":     "file",
			"name":     "README.md",
			"path":     "README.md",
			"encoding": "base64",
			"content":  b64("# PaperNet\n\nUsage instructions.\n"),
		})
	})

	f := newTestFetcher(t, mux)
	path, err := f.FetchReadme(context.Background(), "acme/papernet")
	if err != nil {
		t.Fatalf("FetchReadme: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read local copy: %v", err)
	}
	if string(data) != "# PaperNet\n\nUsage instructions.\n" {
		t.Errorf("readme content: %q", data)
	}
	if filepath.Base(filepath.Dir(path)) != "acme-papernet" {
		t.Errorf("readme must land under the repo directory, got %s", path)
	}
}

func TestFetchDir(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/papernet/contents/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]any{
			{"type": "file", "name": "train.py", "path": "train.py", "size": 100},
			{"type": "dir", "name": "src", "path": "src"},
			{"type": "file", "name": "weights.bin", "path": "weights.bin", "size": maxFileBytes + 1},
		})
	})
	mux.HandleFunc("GET /api/v3/repos/acme/papernet/contents/train.py", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"type": "file", "name": "train.py", "path": "train.py",
			"encoding": "base64", "content": b64("print('train')\n"),
		})
	})

	f := newTestFetcher(t, mux)
	paths, err := f.FetchDir(context.Background(), "acme/papernet", "")
	if err != nil {
		t.Fatalf("FetchDir: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("expected only train.py (dir and oversized file skipped), got %v", paths)
	}
	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "print('train')\n" {
		t.Errorf("file content: %q", data)
	}
}
