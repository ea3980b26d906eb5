package document

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Section is a part of a markdown document delimited by H1/H2 headings.
type Section struct {
	HeaderPath string // "# Book > ## Chapter"
	Text       string // Section markdown including its heading line
}

// MarkdownExtractor treats every H1/H2 section of a markdown document as a page.
type MarkdownExtractor struct {
	parser goldmark.Markdown
}

// NewMarkdownExtractor creates an extractor backed by a goldmark parser.
func NewMarkdownExtractor() *MarkdownExtractor {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &MarkdownExtractor{parser: md}
}

// Extract implements Extractor.
func (m *MarkdownExtractor) Extract(_ context.Context, path string) (Pages, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	sections, err := m.Sections(source)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", path, err)
	}
	return SectionsToPages(sections, 1), nil
}

// SectionsToPages numbers sections as consecutive pages starting at first.
func SectionsToPages(sections []Section, first int) Pages {
	pages := make(Pages, len(sections))
	for i, s := range sections {
		pages[first+i] = s.Text
	}
	return pages
}

// Sections splits markdown at H1 and H2 boundaries. Text before the first
// heading becomes its own section; a document without headings is one section.
func (m *MarkdownExtractor) Sections(source []byte) ([]Section, error) {
	doc := m.parser.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	boundaries := headingStarts(doc, source)
	if len(tree.Items) == 0 || len(boundaries) == 0 {
		body := strings.TrimSpace(string(source))
		if body == "" {
			return nil, nil
		}
		return []Section{{Text: body}}, nil
	}

	var sections []Section
	if preamble := strings.TrimSpace(string(source[:boundaries[0]])); preamble != "" {
		sections = append(sections, Section{Text: preamble})
	}
	collectSections(doc, source, tree.Items, nil, boundaries, &sections)
	return sections, nil
}

// collectSections walks TOC items depth first, which matches document order.
func collectSections(doc ast.Node, source []byte, items toc.Items, ancestors []string, boundaries []int, out *[]Section) {
	for _, item := range items {
		path := append(append([]string(nil), ancestors...), string(item.Title))

		if node := findHeadingByID(doc, string(item.ID)); node != nil && node.Lines().Len() > 0 {
			start := lineStart(source, node.Lines().At(0).Start)
			end := nextBoundary(boundaries, start, len(source))
			if body := strings.TrimSpace(string(source[start:end])); body != "" {
				*out = append(*out, Section{
					HeaderPath: formatHeaderPath(path),
					Text:       body,
				})
			}
		}

		if len(item.Items) > 0 {
			collectSections(doc, source, item.Items, path, boundaries, out)
		}
	}
}

// formatHeaderPath renders ["Book", "Chapter"] as "# Book > ## Chapter".
func formatHeaderPath(path []string) string {
	parts := make([]string, len(path))
	for i, segment := range path {
		parts[i] = strings.Repeat("#", i+1) + " " + segment
	}
	return strings.Join(parts, " > ")
}

func findHeadingByID(root ast.Node, id string) ast.Node {
	var found ast.Node
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		if attr, ok := n.AttributeString("id"); ok {
			if b, ok := attr.([]byte); ok && string(b) == id {
				found = n
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

// headingStarts returns the sorted line offsets of every H1/H2 heading.
func headingStarts(root ast.Node, source []byte) []int {
	var starts []int
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		if h := n.(*ast.Heading); h.Level <= 2 && h.Lines().Len() > 0 {
			starts = append(starts, lineStart(source, h.Lines().At(0).Start))
		}
		return ast.WalkContinue, nil
	})
	sort.Ints(starts)
	return starts
}

func nextBoundary(boundaries []int, start, eof int) int {
	i := sort.SearchInts(boundaries, start+1)
	if i < len(boundaries) {
		return boundaries[i]
	}
	return eof
}

// lineStart moves offset back to the beginning of its line so the heading
// marker ("## ") stays with the section.
func lineStart(source []byte, offset int) int {
	for offset > 0 && source[offset-1] != '\n' {
		offset--
	}
	return offset
}
