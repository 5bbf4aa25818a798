// Package plan parses markdown implementation plans into a structured
// file list. The planning agent emits plans as prose; everything
// downstream (anchor construction, completion predicates, reports)
// needs the ordered set of files the plan commits to.
package plan

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// FileEntry is one file the plan commits to implementing.
type FileEntry struct {
	Path     string
	Purpose  string
	Phase    string
	Priority int // 1-based position in overall plan order
}

// PhaseGroup is the files listed under one plan section.
type PhaseGroup struct {
	Name  string
	Files []FileEntry
}

// Plan is a parsed implementation plan.
type Plan struct {
	Title  string
	Phases []PhaseGroup
	Raw    string
}

// filePattern matches repository-relative source file paths. The
// extension requirement filters out prose that merely contains slashes
// or dots.
var filePattern = regexp.MustCompile(`(?:^|[\s\x60("'])([A-Za-z0-9_\-]+(?:/[A-Za-z0-9_\-.]+)*\.[A-Za-z0-9]{1,8})(?:[\s\x60)"':,.]|$)`)

// nonSourceExtensions are matched path suffixes that never name a file
// to implement.
var nonSourceExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".pdf": true, ".zip": true, ".tar": true, ".gz": true,
}

// Parse extracts the structured file plan from markdown. It returns an
// error only when the document contains no file entries at all; a plan
// without phases still parses as one unnamed group.
func Parse(source string) (*Plan, error) {
	src := []byte(source)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	p := &Plan{Raw: source}
	currentPhase := ""
	seen := map[string]bool{}
	priority := 0

	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			title := strings.TrimSpace(string(node.Text(src)))
			if node.Level == 1 && p.Title == "" {
				p.Title = title
			} else if node.Level >= 2 {
				currentPhase = title
			}
			return ast.WalkContinue, nil
		case *ast.ListItem:
			line := itemText(node, src)
			path, purpose := splitEntry(line)
			if path == "" || seen[path] {
				return ast.WalkContinue, nil
			}
			seen[path] = true
			priority++
			p.addFile(FileEntry{
				Path:     path,
				Purpose:  purpose,
				Phase:    currentPhase,
				Priority: priority,
			}, currentPhase)
			// List items may nest sublists; those were already covered
			// by itemText, so do not descend.
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	if priority == 0 {
		return nil, fmt.Errorf("no file entries found in plan")
	}
	return p, nil
}

func (p *Plan) addFile(f FileEntry, phase string) {
	for i := range p.Phases {
		if p.Phases[i].Name == phase {
			p.Phases[i].Files = append(p.Phases[i].Files, f)
			return
		}
	}
	p.Phases = append(p.Phases, PhaseGroup{Name: phase, Files: []FileEntry{f}})
}

// Files returns every entry in plan order.
func (p *Plan) Files() []FileEntry {
	var out []FileEntry
	for _, ph := range p.Phases {
		out = append(out, ph.Files...)
	}
	return out
}

// FilePaths returns every path in plan order.
func (p *Plan) FilePaths() []string {
	files := p.Files()
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}

// TotalFiles is the number of files the plan commits to.
func (p *Plan) TotalFiles() int {
	n := 0
	for _, ph := range p.Phases {
		n += len(ph.Files)
	}
	return n
}

// Contains reports whether path appears in the plan.
func (p *Plan) Contains(path string) bool {
	for _, ph := range p.Phases {
		for _, f := range ph.Files {
			if f.Path == path {
				return true
			}
		}
	}
	return false
}

// itemText flattens a list item's inline content, including nested
// sublists, into one line per block joined by spaces. Code spans keep
// their literal text so backticked paths survive.
func itemText(n ast.Node, src []byte) string {
	var sb strings.Builder
	ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := child.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
		case *ast.CodeSpan:
			sb.WriteByte('`')
			sb.Write(t.Text(src))
			sb.WriteByte('`')
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

// splitEntry finds the file path in a list item line and returns it
// with the remaining text as the purpose.
func splitEntry(line string) (path, purpose string) {
	m := filePattern.FindStringSubmatchIndex(line)
	if m == nil {
		return "", ""
	}
	path = line[m[2]:m[3]]
	for ext := range nonSourceExtensions {
		if strings.HasSuffix(strings.ToLower(path), ext) {
			return "", ""
		}
	}
	purpose = strings.Trim(line[m[3]:], "`\" ')")
	purpose = strings.TrimLeft(purpose, " \t-–:,.")
	purpose = strings.TrimSpace(purpose)
	return path, purpose
}
