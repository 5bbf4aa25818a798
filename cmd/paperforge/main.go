// Paperforge turns a research paper or implementation plan into a code
// repository through a multi-phase agent pipeline. The pipeline itself
// needs an LLM provider wired in by the embedding application; this CLI
// covers everything that works without one: plan inspection, paper
// ingestion, reference repository downloads, and checkpoint status.
//
// Usage:
//
//	paperforge plan <plan.md>        Parse an implementation plan and list its files
//	paperforge ingest <paper>        Extract readable text from an HTML or markdown paper
//	paperforge fetch <owner/repo>    Download a reference repository from GitHub
//	paperforge status <workflow-id>  Show checkpoint state and the resume recommendation
//	paperforge report <workflow-id>  Render the markdown pipeline report for a workflow
//	paperforge version               Print version and build information
//	paperforge -o json version       Output version information as JSON
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paperforge/paperforge/internal/buildinfo"
	"github.com/paperforge/paperforge/internal/checkpoint"
	"github.com/paperforge/paperforge/internal/config"
	"github.com/paperforge/paperforge/internal/httpkit"
	"github.com/paperforge/paperforge/internal/ingest"
	"github.com/paperforge/paperforge/internal/plan"
	"github.com/paperforge/paperforge/internal/reference"
	"github.com/paperforge/paperforge/internal/report"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main constructs the OS-level environment (context, stdio, argv) and
// delegates immediately to [run], keeping os.Exit and os.Args out of
// the application logic so the command surface is testable.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals, which makes it impossible to
// call run() concurrently from tests, and the argument surface here is
// small enough that manual parsing stays clearer than a CLI framework.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "plan":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: paperforge plan <plan.md>")
		}
		return runPlan(stdout, cmdArgs[0])
	case "ingest":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: paperforge ingest <paper.html|paper.md>")
		}
		return runIngest(stdout, cmdArgs[0])
	case "fetch":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: paperforge fetch <owner/repo>")
		}
		return runFetch(ctx, stdout, configPath, cmdArgs[0])
	case "status":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: paperforge status <workflow-id>")
		}
		return runStatus(stdout, configPath, cmdArgs[0])
	case "report":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: paperforge report <workflow-id>")
		}
		return runReport(stdout, configPath, cmdArgs[0])
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runPlan parses an implementation plan and prints its phases and file
// entries in priority order.
func runPlan(w io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read plan: %w", err)
	}
	p, err := plan.Parse(string(data))
	if err != nil {
		return fmt.Errorf("parse plan %s: %w", path, err)
	}

	if p.Title != "" {
		fmt.Fprintf(w, "Plan: %s\n", p.Title)
	}
	fmt.Fprintf(w, "Files: %d\n\n", p.TotalFiles())
	for _, phase := range p.Phases {
		fmt.Fprintf(w, "%s\n", phase.Name)
		for _, f := range phase.Files {
			if f.Purpose != "" {
				fmt.Fprintf(w, "  %3d. %s  (%s)\n", f.Priority, f.Path, f.Purpose)
				continue
			}
			fmt.Fprintf(w, "  %3d. %s\n", f.Priority, f.Path)
		}
	}
	return nil
}

// runIngest extracts readable text from a paper and prints a summary of
// what the planning anchor would contain.
func runIngest(w io.Writer, path string) error {
	doc, err := ingest.File(path)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", path, err)
	}

	fmt.Fprintf(w, "Title: %s\n", doc.Title)
	fmt.Fprintf(w, "Text: %d bytes\n", len(doc.Text))
	if len(doc.Headings) > 0 {
		fmt.Fprintln(w, "Sections:")
		for _, h := range doc.Headings {
			fmt.Fprintf(w, "  %s\n", h)
		}
	}
	return nil
}

// runFetch downloads a reference repository's README and top-level
// files into the configured reference directory.
func runFetch(ctx context.Context, w io.Writer, configPath, repo string) error {
	logger := newLogger(w, slog.LevelWarn)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		// fetch works without a config file; fall back to defaults.
		cfg = config.Default()
	}

	httpClient := httpkit.NewClient(
		httpkit.WithTimeout(60*time.Second),
		httpkit.WithRetry(2, time.Second),
		httpkit.WithLogger(logger),
	)
	fetcher, err := reference.NewFetcher(httpClient, cfg.GitHub.Token, "", cfg.Workspace.ReferenceDir, logger)
	if err != nil {
		return err
	}

	info, paths, err := fetcher.Fetch(ctx, repo)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", repo, err)
	}
	fmt.Fprintf(w, "%s (%s, %d stars)\n", info.FullName, info.Language, info.Stars)
	if info.Description != "" {
		fmt.Fprintf(w, "%s\n", info.Description)
	}
	fmt.Fprintf(w, "Downloaded %d files to %s\n", len(paths), cfg.Workspace.ReferenceDir)
	return nil
}

// openManager opens the checkpoint database for one workflow. The
// returned close function releases the database handle.
func openManager(w io.Writer, configPath, workflowID string) (*checkpoint.Manager, func(), error) {
	logger := newLogger(w, slog.LevelWarn)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		cfg = config.Default()
	}

	dbPath := cfg.Checkpoint.Path
	if dbPath == "" {
		dbPath = filepath.Join(cfg.DataDir, "checkpoints.db")
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil, nil, fmt.Errorf("no checkpoint database at %s", dbPath)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open checkpoint database: %w", err)
	}
	store, err := checkpoint.NewStore(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	mgr := checkpoint.NewManager(store, workflowID, cfg.Workspace.Path,
		trackedPaths(cfg), cfg.Checkpoint.Staleness(), logger)
	return mgr, func() { db.Close() }, nil
}

// runStatus prints the latest checkpoint, the resume recommendation,
// and the phase log for one workflow.
func runStatus(w io.Writer, configPath, workflowID string) error {
	mgr, closeDB, err := openManager(w, configPath, workflowID)
	if err != nil {
		return err
	}
	defer closeDB()

	rec := mgr.Load()
	if rec == nil {
		fmt.Fprintf(w, "Workflow %s: no usable checkpoint\n", workflowID)
	} else {
		fmt.Fprintf(w, "Workflow %s\n", workflowID)
		fmt.Fprintf(w, "  Last phase:  %s\n", rec.Phase)
		fmt.Fprintf(w, "  Saved:       %s\n", rec.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "  Files:       %d\n", rec.FileCount)
		fmt.Fprintf(w, "  Size:        %d bytes (compressed)\n", rec.ByteSize)
	}

	next, reason := mgr.RecommendResumePhase()
	fmt.Fprintf(w, "  Resume at:   %s (%s)\n", next, reason)

	log, err := mgr.PhaseLog()
	if err != nil {
		return fmt.Errorf("read phase log: %w", err)
	}
	if len(log) > 0 {
		fmt.Fprintln(w, "  Phase log:")
		for _, e := range log {
			if e.Status == checkpoint.StatusCompleted {
				fmt.Fprintf(w, "    %s  %s %s (%s)\n",
					e.At.Format(time.RFC3339), e.Phase, e.Status, e.Duration.Round(time.Second))
				continue
			}
			fmt.Fprintf(w, "    %s  %s %s\n", e.At.Format(time.RFC3339), e.Phase, e.Status)
		}
	}
	return nil
}

// runReport renders the markdown pipeline report for one workflow from
// its checkpoint phase log.
func runReport(w io.Writer, configPath, workflowID string) error {
	mgr, closeDB, err := openManager(w, configPath, workflowID)
	if err != nil {
		return err
	}
	defer closeDB()

	log, err := mgr.PhaseLog()
	if err != nil {
		return fmt.Errorf("read phase log: %w", err)
	}
	if len(log) == 0 && mgr.Load() == nil {
		return fmt.Errorf("no recorded phases for workflow %s", workflowID)
	}
	fmt.Fprint(w, report.Pipeline(workflowID, nil, log))
	return nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Paperforge - paper-to-code agent pipeline")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: paperforge [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  plan <plan.md>        Parse an implementation plan and list its files")
	fmt.Fprintln(w, "  ingest <paper>        Extract readable text from an HTML or markdown paper")
	fmt.Fprintln(w, "  fetch <owner/repo>    Download a reference repository from GitHub")
	fmt.Fprintln(w, "  status <workflow-id>  Show checkpoint state and resume recommendation")
	fmt.Fprintln(w, "  report <workflow-id>  Render the markdown pipeline report for a workflow")
	fmt.Fprintln(w, "  version               Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/paperforge/config.yaml, /etc/paperforge/config.yaml")
	return nil
}

// newLogger creates a structured text logger writing to w. All log
// output goes through slog; this helper standardizes the handler
// configuration across subcommands.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. If
// explicit is non-empty, that exact path is used and must exist.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// trackedPaths resolves the configured dependency manifests relative to
// the workspace.
func trackedPaths(cfg *config.Config) []string {
	out := make([]string, 0, len(cfg.Checkpoint.TrackedFiles))
	for _, f := range cfg.Checkpoint.TrackedFiles {
		if filepath.IsAbs(f) {
			out = append(out, f)
			continue
		}
		out = append(out, filepath.Join(cfg.Workspace.Path, f))
	}
	return out
}
