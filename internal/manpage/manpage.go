// SPDX-License-Identifier: MPL-2.0

// Package manpage converts markdown manual-page sources into roff. Sources
// carry a ${version} placeholder substituted at generation time and must
// open with a title heading of the form "name(section) — description"; a
// source without one fails generation so the build can name the bad page.
package manpage

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/muesli/roff"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrMissingTitle reports a markdown source whose first block is not a
// level-1 title heading in the required form.
var ErrMissingTitle = errors.New("manual page source missing title section")

// titlePattern matches "name(section) — description" (em dash or hyphen).
var titlePattern = regexp.MustCompile(`^([A-Za-z0-9_.-]+)\((\d)\)\s+(?:—|-|--)\s+(.+)$`)

// versionReplacer substitutes the version placeholder in both its spellings.
func versionReplacer(version string) *strings.Replacer {
	return strings.NewReplacer("${version}", version, "$version", version)
}

// Page is one generated manual page.
type Page struct {
	// Name is the page name from the title heading, e.g. "demo".
	Name string
	// Section is the manual section number from the title heading.
	Section uint
	// Description is the one-line description from the title heading.
	Description string
	// Roff is the rendered man-page document.
	Roff []byte
}

// Filename returns the conventional install name, e.g. "demo.1".
func (p *Page) Filename() string {
	return fmt.Sprintf("%s.%d", p.Name, p.Section)
}

// Generate substitutes version into the markdown source and renders it to
// roff. Output is reproducible for identical inputs: the only varying bytes
// come from the caller-supplied version string. Only the version placeholder
// is substituted; every other $-token stays byte-intact so pages can document
// environment variables and shell examples.
func Generate(source []byte, version string) (*Page, error) {
	expanded := versionReplacer(version).Replace(string(source))

	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader([]byte(expanded)))
	src := []byte(expanded)

	name, section, description, err := parseTitle(root, src)
	if err != nil {
		return nil, err
	}

	doc := roff.NewDocument()
	// The zero timestamp keeps generated pages byte-identical across runs.
	doc.Heading(section, name, description+" (v"+version+")", time.Time{})
	doc.Section("name")
	doc.Text(name + " - " + description)

	renderBody(doc, root, src)

	return &Page{
		Name:        name,
		Section:     section,
		Description: description,
		Roff:        []byte(doc.String()),
	}, nil
}

// parseTitle validates and splits the required level-1 title heading.
func parseTitle(root ast.Node, src []byte) (name string, section uint, description string, err error) {
	first := root.FirstChild()
	heading, ok := first.(*ast.Heading)
	if !ok || heading.Level != 1 {
		return "", 0, "", ErrMissingTitle
	}
	title := string(nodeText(heading, src))
	m := titlePattern.FindStringSubmatch(strings.TrimSpace(title))
	if m == nil {
		return "", 0, "", fmt.Errorf("%w: title %q is not of the form name(section) — description", ErrMissingTitle, title)
	}
	num, convErr := strconv.ParseUint(m[2], 10, 8)
	if convErr != nil {
		return "", 0, "", fmt.Errorf("%w: bad section number %q", ErrMissingTitle, m[2])
	}
	return m[1], uint(num), m[3], nil
}

// renderBody walks the markdown blocks after the title heading and emits
// the corresponding roff structures.
func renderBody(doc *roff.Document, root ast.Node, src []byte) {
	for node := root.FirstChild().NextSibling(); node != nil; node = node.NextSibling() {
		renderBlock(doc, node, src)
	}
}

func renderBlock(doc *roff.Document, node ast.Node, src []byte) {
	switch n := node.(type) {
	case *ast.Heading:
		if n.Level <= 2 {
			doc.Section(string(nodeText(n, src)))
		} else {
			doc.Section(string(nodeText(n, src)))
		}
	case *ast.Paragraph:
		doc.Paragraph()
		renderInlines(doc, n, src)
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		doc.Paragraph()
		doc.Text(blockLines(node, src))
	case *ast.List:
		for item := n.FirstChild(); item != nil; item = item.NextSibling() {
			doc.Paragraph()
			doc.Text("• ")
			for child := item.FirstChild(); child != nil; child = child.NextSibling() {
				renderInlines(doc, child, src)
			}
		}
	default:
		// Unhandled block kinds degrade to their plain text.
		doc.Paragraph()
		doc.Text(string(nodeText(node, src)))
	}
}

func renderInlines(doc *roff.Document, parent ast.Node, src []byte) {
	for node := parent.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Text:
			doc.Text(string(n.Segment.Value(src)))
			if n.SoftLineBreak() || n.HardLineBreak() {
				doc.Text(" ")
			}
		case *ast.CodeSpan:
			doc.TextBold(string(nodeText(n, src)))
		case *ast.Emphasis:
			if n.Level >= 2 {
				doc.TextBold(string(nodeText(n, src)))
			} else {
				doc.TextItalic(string(nodeText(n, src)))
			}
		default:
			doc.Text(string(nodeText(node, src)))
		}
	}
}

// nodeText flattens a node's text content.
func nodeText(node ast.Node, src []byte) []byte {
	var sb strings.Builder
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := n.(*ast.Text); ok {
			sb.Write(t.Segment.Value(src))
		}
		return ast.WalkContinue, nil
	})
	return []byte(sb.String())
}

// blockLines joins the raw lines of a code block.
func blockLines(node ast.Node, src []byte) string {
	var sb strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return sb.String()
}
