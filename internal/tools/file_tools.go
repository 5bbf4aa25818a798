package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// maxReadBytes caps read_file payloads handed back to the model.
const maxReadBytes = 50 * 1024

// FileTools provides file read/write/edit capabilities sandboxed to a
// workspace directory. All paths resolve relative to the workspace;
// anything that would escape it is rejected.
type FileTools struct {
	workspacePath string
}

// NewFileTools creates file tools rooted at workspacePath. An empty
// path disables them.
func NewFileTools(workspacePath string) *FileTools {
	return &FileTools{workspacePath: workspacePath}
}

// Enabled reports whether a workspace is configured.
func (ft *FileTools) Enabled() bool {
	return ft.workspacePath != ""
}

// WorkspacePath returns the configured workspace root.
func (ft *FileTools) WorkspacePath() string {
	return ft.workspacePath
}

// RegisterAll adds the file tools to a registry under their well-known
// names, with the categories the progress tracker keys on.
func (ft *FileTools) RegisterAll(reg *Registry) {
	pathParam := map[string]any{
		"type":        "string",
		"description": "File path relative to the workspace root",
	}

	reg.Register(&Tool{
		Name:        "write_file",
		Description: "Write complete file content to a path inside the workspace, creating parent directories as needed.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    pathParam,
				"content": map[string]any{"type": "string", "description": "Complete file content"},
			},
			"required": []string{"path", "content"},
		},
		Category: CategoryWrite,
		Handler:  ft.handleWrite,
	})

	reg.Register(&Tool{
		Name:        "read_file",
		Description: "Read a file from the workspace. Large files are truncated; use offset and limit for more.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":   pathParam,
				"offset": map[string]any{"type": "integer", "description": "1-indexed first line to read"},
				"limit":  map[string]any{"type": "integer", "description": "Maximum number of lines"},
			},
			"required": []string{"path"},
		},
		Category: CategoryRead,
		Handler:  ft.handleRead,
	})

	reg.Register(&Tool{
		Name:        "edit_file",
		Description: "Replace one unique occurrence of old_text with new_text in a workspace file.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":     pathParam,
				"old_text": map[string]any{"type": "string", "description": "Exact text to replace; must appear exactly once"},
				"new_text": map[string]any{"type": "string", "description": "Replacement text"},
			},
			"required": []string{"path", "old_text", "new_text"},
		},
		Category: CategoryWrite,
		Handler:  ft.handleEdit,
	})

	reg.Register(&Tool{
		Name:        "list_files",
		Description: "List the entries of a workspace directory. Directories are suffixed with /.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "Directory path relative to the workspace root; empty for the root"},
			},
		},
		Category: CategoryRead,
		Handler:  ft.handleList,
	})
}

// resolvePath converts a tool path to an absolute path inside the
// workspace and rejects escapes.
func (ft *FileTools) resolvePath(path string) (string, error) {
	if ft.workspacePath == "" {
		return "", fmt.Errorf("workspace not configured")
	}

	workspaceAbs, err := filepath.Abs(ft.workspacePath)
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}

	var absPath string
	if filepath.IsAbs(path) {
		absPath = filepath.Clean(path)
	} else {
		absPath = filepath.Clean(filepath.Join(workspaceAbs, path))
	}

	if absPath != workspaceAbs && !strings.HasPrefix(absPath, workspaceAbs+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return absPath, nil
}

func (ft *FileTools) handleWrite(_ context.Context, args map[string]any) (string, error) {
	path, err := StringArg(args, "path")
	if err != nil {
		return "", err
	}
	content, ok := args["content"].(string)
	if !ok {
		return "", fmt.Errorf("content is required")
	}

	absPath, err := ft.resolvePath(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(absPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(content), path), nil
}

func (ft *FileTools) handleRead(_ context.Context, args map[string]any) (string, error) {
	path, err := StringArg(args, "path")
	if err != nil {
		return "", err
	}
	absPath, err := ft.resolvePath(path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("read file: %w", err)
	}
	content := string(data)

	offset := intArg(args, "offset")
	limit := intArg(args, "limit")
	if offset > 0 || limit > 0 {
		lines := strings.Split(content, "\n")
		startLine := 0
		if offset > 0 {
			startLine = offset - 1
		}
		if startLine >= len(lines) {
			return "", fmt.Errorf("offset %d exceeds file length (%d lines)", offset, len(lines))
		}
		endLine := len(lines)
		if limit > 0 && startLine+limit < endLine {
			endLine = startLine + limit
		}
		content = strings.Join(lines[startLine:endLine], "\n")
		if startLine > 0 || endLine < len(lines) {
			content = fmt.Sprintf("[Lines %d-%d of %d]\n%s", startLine+1, endLine, len(lines), content)
		}
	}

	if len(content) > maxReadBytes {
		content = content[:maxReadBytes] + "\n\n[... truncated, use offset/limit for more ...]"
	}
	return content, nil
}

func (ft *FileTools) handleEdit(_ context.Context, args map[string]any) (string, error) {
	path, err := StringArg(args, "path")
	if err != nil {
		return "", err
	}
	oldText, err := StringArg(args, "old_text")
	if err != nil {
		return "", err
	}
	newText, ok := args["new_text"].(string)
	if !ok {
		return "", fmt.Errorf("new_text is required")
	}

	absPath, err := ft.resolvePath(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("read file: %w", err)
	}
	content := string(data)

	count := strings.Count(content, oldText)
	if count == 0 {
		if len(oldText) > 100 {
			return "", fmt.Errorf("old text not found in file (first 100 chars: %q...)", oldText[:100])
		}
		return "", fmt.Errorf("old text not found in file: %q", oldText)
	}
	if count > 1 {
		return "", fmt.Errorf("old text appears %d times in file; must be unique for safe editing", count)
	}

	newContent := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(absPath, []byte(newContent), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return fmt.Sprintf("Edited %s", path), nil
}

func (ft *FileTools) handleList(_ context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	absPath, err := ft.resolvePath(path)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("directory not found: %s", path)
		}
		return "", fmt.Errorf("read directory: %w", err)
	}

	var sb strings.Builder
	for _, entry := range entries {
		sb.WriteString(entry.Name())
		if entry.IsDir() {
			sb.WriteString("/")
		}
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return "(empty directory)", nil
	}
	return sb.String(), nil
}

// intArg extracts an optional integer argument. JSON numbers arrive as
// float64; some providers send strings of digits.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
