package safety

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
)

// languageFor maps file extensions to tree-sitter grammars. Extensions
// without a grammar fall back to a delimiter-balance check.
func languageFor(path string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return golang.GetLanguage()
	case ".js", ".jsx", ".mjs":
		return javascript.GetLanguage()
	case ".py":
		return python.GetLanguage()
	default:
		return nil
	}
}

// checkSyntax validates that content parses under the grammar selected by
// the file extension.
func checkSyntax(path string, content []byte) error {
	lang := languageFor(path)
	if lang == nil {
		return checkBalance(content)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	if tree.RootNode().HasError() {
		return fmt.Errorf("parse error in %s", filepath.Base(path))
	}
	return nil
}

// checkBalance verifies (), [] and {} nest correctly outside string and
// character literals. It is a coarse guard for file types without a
// grammar; it catches the truncated-file and mangled-edit cases.
func checkBalance(content []byte) error {
	var stack []byte
	var inString byte // active quote, 0 when outside literals
	escaped := false

	for _, b := range content {
		if inString != 0 {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == inString:
				inString = 0
			}
			continue
		}

		switch b {
		case '"', '\'', '`':
			inString = b
		case '(', '[', '{':
			stack = append(stack, b)
		case ')', ']', '}':
			if len(stack) == 0 {
				return fmt.Errorf("unbalanced %q", b)
			}
			open := stack[len(stack)-1]
			if (b == ')' && open != '(') || (b == ']' && open != '[') || (b == '}' && open != '{') {
				return fmt.Errorf("mismatched %q", b)
			}
			stack = stack[:len(stack)-1]
		}
	}

	if len(stack) != 0 {
		return fmt.Errorf("unclosed %q", stack[len(stack)-1])
	}
	return nil
}
