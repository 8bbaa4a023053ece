package document

import (
	"io"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// LoadMarkdown strips markup and keeps one paragraph per block so the chunker
// can split on block boundaries.
func LoadMarkdown(name string, r io.Reader) (Document, error) {
	source, err := io.ReadAll(r)
	if err != nil {
		return Document{}, goerr.Wrap(err, "failed to read markdown", goerr.V("name", name))
	}
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var blocks []string
	collectBlocks(doc, source, &blocks)
	out := strings.TrimSpace(strings.Join(blocks, "\n\n"))
	if out == "" {
		return Document{}, goerr.Wrap(ErrEmptyDocument, "markdown has no text", goerr.V("name", name))
	}
	return Document{Name: name, Text: out, MIME: "text/markdown"}, nil
}

func collectBlocks(n ast.Node, source []byte, out *[]string) {
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.Kind() {
		case ast.KindList, ast.KindListItem, ast.KindBlockquote:
			collectBlocks(child, source, out)
		case ast.KindCodeBlock, ast.KindFencedCodeBlock:
			if s := blockLines(child, source); s != "" {
				*out = append(*out, s)
			}
		case ast.KindThematicBreak, ast.KindHTMLBlock:
		default:
			if s := inlineText(child, source); s != "" {
				*out = append(*out, s)
			}
		}
	}
}

func blockLines(n ast.Node, source []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func inlineText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			sb.Write(v.Segment.Value(source))
			switch {
			case v.HardLineBreak():
				sb.WriteByte('\n')
			case v.SoftLineBreak():
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(v.Value)
		case *ast.AutoLink:
			sb.Write(v.Label(source))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
