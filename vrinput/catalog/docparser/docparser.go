// Package docparser reads catalog alias documents: markdown files with a
// YAML front matter block and a table of raw-identifier substrings and the
// style they resolve to. Alias docs let deployments teach the catalog about
// vendor identifier variants without a rebuild.
package docparser

import (
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	meta "github.com/yuin/goldmark-meta"

	"github.com/openmotion/vrio/vrinput/catalog"
)

// Alias is one parsed table row.
type Alias struct {
	Match string
	Style catalog.Style
}

// Doc is a parsed alias document.
type Doc struct {
	Title   string
	Aliases []Alias
}

type DocParser struct {
	md goldmark.Markdown
}

func New() *DocParser {
	return &DocParser{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.Table,
				meta.Meta,
			),
		),
	}
}

// Parse extracts the front matter title and every alias table row from a
// markdown document. Style cells are normalized to kebab-case so that
// "OculusTouchRight" and "oculus-touch-right" name the same style.
func (p *DocParser) Parse(source []byte) (Doc, error) {
	ctx := parser.NewContext()
	root := p.md.Parser().Parse(text.NewReader(source), parser.WithContext(ctx))

	var doc Doc
	if metadata := meta.Get(ctx); metadata != nil {
		if title, ok := metadata["title"].(string); ok {
			doc.Title = title
		}
	}

	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		row, ok := n.(*east.TableRow)
		if !ok {
			return ast.WalkContinue, nil
		}
		cells := cellTexts(row, source)
		if len(cells) < 2 {
			return ast.WalkSkipChildren, fmt.Errorf("alias table row needs match and style columns, got %d", len(cells))
		}
		doc.Aliases = append(doc.Aliases, Alias{
			Match: cells[0],
			Style: catalog.Style(strcase.ToKebab(cells[1])),
		})
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return Doc{}, err
	}
	return doc, nil
}

// Apply registers every alias of the document on the catalog. Already
// registered rows are skipped, so re-applying a live-reloaded document only
// adds new aliases.
func (p *DocParser) Apply(c *catalog.Catalog, source []byte) error {
	doc, err := p.Parse(source)
	if err != nil {
		return fmt.Errorf("failed to parse alias doc: %w", err)
	}
	for _, alias := range doc.Aliases {
		if c.Registered(alias.Match) {
			continue
		}
		if err := c.RegisterAlias(alias.Match, alias.Style); err != nil {
			return fmt.Errorf("failed to register alias %q: %w", alias.Match, err)
		}
	}
	return nil
}

func cellTexts(row *east.TableRow, source []byte) []string {
	var cells []string
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		cells = append(cells, strings.TrimSpace(string(nodeText(cell, source))))
	}
	return cells
}

func nodeText(n ast.Node, source []byte) []byte {
	var out []byte
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			out = append(out, t.Segment.Value(source)...)
			continue
		}
		out = append(out, nodeText(c, source)...)
	}
	return out
}
