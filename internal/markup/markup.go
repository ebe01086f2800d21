// Package markup converts model-written markdown for display and for speech.
package markup

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// md escapes raw HTML in its input (goldmark's default without html.WithUnsafe).
var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// ToHTML renders markdown as HTML safe to embed in a page.
func ToHTML(s string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(s), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// PlainText removes inline formatting (emphasis, code spans, links) from a single line so it can
// be spoken. Anything that does not parse as one plain paragraph, such as "# of atoms" or a list
// item, is returned unchanged.
func PlainText(s string) string {
	src := []byte(s)
	doc := md.Parser().Parse(text.NewReader(src))
	para, ok := doc.FirstChild().(*ast.Paragraph)
	if !ok || para.NextSibling() != nil {
		return s
	}
	var b strings.Builder
	writeInline(&b, para, src)
	out := strings.Join(strings.Fields(b.String()), " ")
	if out == "" {
		return s
	}
	return out
}

func writeInline(b *strings.Builder, n ast.Node, src []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			b.Write(c.Segment.Value(src))
			if c.SoftLineBreak() || c.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(c.Value)
		case *ast.AutoLink:
			b.Write(c.URL(src))
		case *ast.RawHTML:
		default:
			writeInline(b, c, src)
		}
	}
}
