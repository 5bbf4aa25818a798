// Package reference downloads reference repositories named by a paper
// or plan, so the analysis and implementation agents can read prior
// code alongside the paper. Only file snapshots are fetched through the
// GitHub API; nothing here shells out to git.
package reference

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	gogithub "github.com/google/go-github/v69/github"
)

// maxFileBytes caps individual file downloads. Reference material is
// for reading, not mirroring; anything bigger is skipped.
const maxFileBytes = 512 * 1024

// RepoInfo is the metadata recorded for a fetched reference repository.
type RepoInfo struct {
	FullName      string
	Description   string
	DefaultBranch string
	Language      string
	Stars         int
	HTMLURL       string
}

// Fetcher downloads reference repositories into a local directory.
type Fetcher struct {
	client  *gogithub.Client
	destDir string
	logger  *slog.Logger
}

// NewFetcher creates a fetcher. token may be empty for unauthenticated
// (rate-limited) access; baseURL overrides the API endpoint for GitHub
// Enterprise and tests.
func NewFetcher(httpClient *http.Client, token, baseURL, destDir string, logger *slog.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	client := gogithub.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("configure base url: %w", err)
		}
	}
	return &Fetcher{
		client:  client,
		destDir: destDir,
		logger:  logger.With("component", "reference"),
	}, nil
}

// splitRepo splits an "owner/repo" string into its two parts.
func splitRepo(repo string) (string, string, error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo %q: expected owner/repo", repo)
	}
	return parts[0], parts[1], nil
}

// checkRateLimit logs a warning when remaining API calls drop low.
func (f *Fetcher) checkRateLimit(resp *gogithub.Response) {
	if resp == nil {
		return
	}
	if resp.Rate.Remaining > 0 && resp.Rate.Remaining < 100 {
		f.logger.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset", resp.Rate.Reset.Time,
		)
	}
}

// Info fetches repository metadata.
func (f *Fetcher) Info(ctx context.Context, repo string) (*RepoInfo, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	r, resp, err := f.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("reference: get repo: %w", err)
	}
	f.checkRateLimit(resp)
	return &RepoInfo{
		FullName:      r.GetFullName(),
		Description:   r.GetDescription(),
		DefaultBranch: r.GetDefaultBranch(),
		Language:      r.GetLanguage(),
		Stars:         r.GetStargazersCount(),
		HTMLURL:       r.GetHTMLURL(),
	}, nil
}

// FetchReadme downloads the repository README into the destination
// directory and returns the local path.
func (f *Fetcher) FetchReadme(ctx context.Context, repo string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	readme, resp, err := f.client.Repositories.GetReadme(ctx, owner, name, nil)
	if err != nil {
		return "", fmt.Errorf("reference: get readme: %w", err)
	}
	f.checkRateLimit(resp)

	content, err := readme.GetContent()
	if err != nil {
		return "", fmt.Errorf("reference: decode readme: %w", err)
	}

	local := filepath.Join(f.repoDir(owner, name), readme.GetName())
	if err := writeLocal(local, content); err != nil {
		return "", err
	}
	f.logger.Info("readme fetched", "repo", repo, "path", local)
	return local, nil
}

// FetchDir downloads every file in one repository directory (top level
// when dir is empty) into the destination, skipping oversized entries
// and subdirectories. It returns the local paths written.
func (f *Fetcher) FetchDir(ctx context.Context, repo, dir string) ([]string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	_, entries, resp, err := f.client.Repositories.GetContents(ctx, owner, name, dir, nil)
	if err != nil {
		return nil, fmt.Errorf("reference: list contents: %w", err)
	}
	f.checkRateLimit(resp)

	var written []string
	for _, entry := range entries {
		if entry.GetType() != "file" {
			continue
		}
		if entry.GetSize() > maxFileBytes {
			f.logger.Debug("skipping oversized file",
				"repo", repo, "path", entry.GetPath(), "size", entry.GetSize())
			continue
		}
		fileContent, _, resp, err := f.client.Repositories.GetContents(ctx, owner, name, entry.GetPath(), nil)
		if err != nil {
			return written, fmt.Errorf("reference: get %s: %w", entry.GetPath(), err)
		}
		f.checkRateLimit(resp)

		content, err := fileContent.GetContent()
		if err != nil {
			return written, fmt.Errorf("reference: decode %s: %w", entry.GetPath(), err)
		}
		local := filepath.Join(f.repoDir(owner, name), filepath.FromSlash(entry.GetPath()))
		if err := writeLocal(local, content); err != nil {
			return written, err
		}
		written = append(written, local)
	}
	f.logger.Info("directory fetched", "repo", repo, "dir", dir, "files", len(written))
	return written, nil
}

// Fetch grabs metadata, README, and the top-level files of a reference
// repository. Partial results are returned alongside the error so a
// rate-limited fetch still yields whatever landed.
func (f *Fetcher) Fetch(ctx context.Context, repo string) (*RepoInfo, []string, error) {
	info, err := f.Info(ctx, repo)
	if err != nil {
		return nil, nil, err
	}
	var paths []string
	if readme, err := f.FetchReadme(ctx, repo); err == nil {
		paths = append(paths, readme)
	} else {
		f.logger.Warn("readme unavailable", "repo", repo, "error", err)
	}
	files, err := f.FetchDir(ctx, repo, "")
	paths = append(paths, files...)
	return info, paths, err
}

func (f *Fetcher) repoDir(owner, name string) string {
	return filepath.Join(f.destDir, owner+"-"+name)
}

func writeLocal(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("reference: mkdir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("reference: write: %w", err)
	}
	return nil
}
