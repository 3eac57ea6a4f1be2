package extract

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// extractMarkdown parses the markdown AST and emits its plain text content,
// one line per block element. Formatting markers are dropped; code block
// contents are kept verbatim.
func extractMarkdown(raw []byte) (string, error) {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(raw))

	var result strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
				result.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			result.Write(node.Segment.Value(raw))
			if node.HardLineBreak() || node.SoftLineBreak() {
				result.WriteString("\n")
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				result.Write(seg.Value(raw))
			}
		case *ast.AutoLink:
			result.Write(node.URL(raw))
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.String()), nil
}
