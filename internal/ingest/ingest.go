// Package ingest normalizes research papers into plain text for the
// analysis agents. Papers arrive as HTML exports or markdown; both
// reduce to a Document with a title, readable body text, and the
// section headings the analysis prompts reference.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a normalized paper.
type Document struct {
	Title    string
	Text     string
	Headings []string
	// SourcePath is where the document was read from, empty for
	// in-memory input.
	SourcePath string
}

// skipElements are HTML elements whose content is never paper text.
var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Head:     true, // title is extracted separately
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Header:   true,
}

// File reads and normalizes a paper from disk, dispatching on the file
// extension. Markdown and plain text pass through with the title taken
// from the first heading; .html/.htm go through the DOM extractor.
func File(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read paper: %w", err)
	}
	var doc *Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		doc = HTML(string(data))
	case ".md", ".markdown", ".txt", "":
		doc = Markdown(string(data))
	default:
		return nil, fmt.Errorf("unsupported paper format %q", filepath.Ext(path))
	}
	doc.SourcePath = path
	return doc, nil
}

// HTML extracts a Document from raw HTML. Parse failures degrade to a
// naive tag strip rather than failing; a slightly mangled paper is more
// useful to the analysis loops than no paper.
func HTML(raw string) *Document {
	root, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return &Document{Text: stripTags(raw)}
	}

	doc := &Document{Title: findTitle(root)}

	var content strings.Builder
	extractText(root, &content, doc)
	doc.Text = cleanWhitespace(content.String())
	if doc.Title == "" && len(doc.Headings) > 0 {
		doc.Title = doc.Headings[0]
	}
	return doc
}

// Markdown wraps markdown or plain text in a Document, collecting ATX
// headings and using the first one as the title.
func Markdown(raw string) *Document {
	doc := &Document{Text: strings.TrimSpace(raw)}
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			continue
		}
		heading := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		if heading == "" {
			continue
		}
		doc.Headings = append(doc.Headings, heading)
		if doc.Title == "" {
			doc.Title = heading
		}
	}
	return doc
}

// findTitle walks the DOM looking for a <title> element.
func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		return strings.TrimSpace(textContent(n))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

// textContent returns concatenated text of all children.
func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}

// extractText recursively extracts visible text from the DOM, recording
// section headings as it passes them.
func extractText(n *html.Node, w *strings.Builder, doc *Document) {
	if n.Type == html.ElementNode {
		if skipElements[n.DataAtom] {
			return
		}
		if isHeading(n.DataAtom) {
			if h := strings.TrimSpace(cleanWhitespace(textContent(n))); h != "" {
				doc.Headings = append(doc.Headings, h)
			}
		}
		if isBlockElement(n.DataAtom) && w.Len() > 0 {
			w.WriteString("\n\n")
		}
	}

	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			w.WriteString(text)
			w.WriteString(" ")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, w, doc)
	}

	if n.Type == html.ElementNode && (n.DataAtom == atom.Br || n.DataAtom == atom.Li) {
		w.WriteString("\n")
	}
}

func isHeading(a atom.Atom) bool {
	switch a {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return true
	}
	return false
}

// isBlockElement returns true for elements that typically render as blocks.
func isBlockElement(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Table,
		atom.Tr, atom.Dl, atom.Dd, atom.Dt, atom.Figcaption, atom.Figure,
		atom.Details, atom.Summary, atom.Hr:
		return true
	}
	return false
}

// cleanWhitespace collapses space runs within lines and squeezes
// consecutive blank lines.
func cleanWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var cleaned []string
	prevEmpty := false

	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if prevEmpty {
				continue
			}
			prevEmpty = true
		} else {
			prevEmpty = false
		}
		cleaned = append(cleaned, line)
	}

	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

// stripTags removes HTML tags naively; fallback for unparseable input.
func stripTags(s string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return cleanWhitespace(b.String())
		case html.TextToken:
			b.WriteString(tokenizer.Token().Data)
			b.WriteString(" ")
		}
	}
}
