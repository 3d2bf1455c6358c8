package utils

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CleanMarkdown strips outer markdown code fences from generated narrative.
func CleanMarkdown(input string) string {
	cleaned := strings.TrimSpace(input)

	if strings.HasPrefix(cleaned, "```") && strings.HasSuffix(cleaned, "```") && len(cleaned) >= 6 {
		cleaned = strings.TrimSuffix(cleaned, "```")
		cleaned = strings.TrimPrefix(cleaned, "```")
		// Drop an info string such as "markdown" on the opening fence.
		if nl := strings.Index(cleaned, "\n"); nl >= 0 && !strings.Contains(cleaned[:nl], " ") {
			cleaned = cleaned[nl+1:]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	return cleaned
}

// HasMarkdownContent reports whether the document renders any visible text.
// A reply made only of headings markers, rules or empty fences counts as empty.
func HasMarkdownContent(input string) bool {
	source := []byte(input)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))
	if doc == nil {
		return false
	}

	found := false
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			if strings.TrimSpace(string(node.Segment.Value(source))) != "" {
				found = true
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				if strings.TrimSpace(string(seg.Value(source))) != "" {
					found = true
				}
			}
		}
		if found {
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return found
}
