// Package ast extracts structural summaries from source files using
// tree-sitter grammars. It is a best-effort collaborator: unsupported
// languages and parse failures yield an empty summary, never an error
// that could abort an analysis run.
package ast

import (
	"context"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/sentinelci/pr-sentinel/internal/domain"
)

// decisionNodeTypes are the node kinds counted as decision points for
// the cyclomatic complexity approximation (base 1 + count).
var decisionNodeTypes = map[string]bool{
	"if_statement":           true,
	"while_statement":        true,
	"for_statement":          true,
	"for_in_statement":       true,
	"conditional_expression": true,
	"boolean_operator":       true,
	"case_statement":         true,
	"ternary_expression":     true,
	"switch_case":            true,
}

// Analyzer parses source files with tree-sitter. Construct it once at
// process start and share it; grammar handles are read-only and every
// parse creates its own parser instance, so concurrent use is safe.
type Analyzer struct {
	languages map[string]*sitter.Language
}

// NewAnalyzer creates an analyzer with the supported grammar set.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		languages: map[string]*sitter.Language{
			"python":     python.GetLanguage(),
			"javascript": javascript.GetLanguage(),
			"typescript": typescript.GetLanguage(),
		},
	}
}

// Available reports whether the given language has a grammar.
func (a *Analyzer) Available(language string) bool {
	_, ok := a.languages[language]
	return ok
}

// AnalyzeCode extracts functions, classes, imports, exports and a
// complexity estimate from the source. Unsupported languages and parse
// failures return a zero-valued summary.
func (a *Analyzer) AnalyzeCode(ctx context.Context, source, language string) domain.AstSummary {
	lang, ok := a.languages[language]
	if !ok {
		return domain.AstSummary{}
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	content := []byte(source)
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil || tree == nil {
		return domain.AstSummary{}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return domain.AstSummary{}
	}

	var summary domain.AstSummary
	switch language {
	case "python":
		summary = extractPython(root, content)
	case "javascript", "typescript":
		summary = extractJavaScript(root, content)
	}
	summary.Complexity = complexity(root)
	return summary
}

// DiffImpact compares two structural summaries of the same file.
func (a *Analyzer) DiffImpact(old, new domain.AstSummary) domain.AstImpact {
	oldFuncs := nameSet(functionNames(old))
	newFuncs := nameSet(functionNames(new))
	oldClasses := nameSet(classNames(old))
	newClasses := nameSet(classNames(new))

	return domain.AstImpact{
		AddedFunctions:    difference(newFuncs, oldFuncs),
		RemovedFunctions:  difference(oldFuncs, newFuncs),
		ModifiedFunctions: intersection(oldFuncs, newFuncs),
		AddedClasses:      difference(newClasses, oldClasses),
		RemovedClasses:    difference(oldClasses, newClasses),
		OldImports:        old.Imports,
		NewImports:        new.Imports,
		ComplexityDelta:   new.Complexity - old.Complexity,
	}
}

// findNodes walks the tree collecting all nodes of the given type.
func findNodes(node *sitter.Node, nodeType string) []*sitter.Node {
	var results []*sitter.Node
	if node.Type() == nodeType {
		results = append(results, node)
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		results = append(results, findNodes(node.Child(i), nodeType)...)
	}
	return results
}

func nodeText(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	return node.Content(content)
}

func startLine(node *sitter.Node) int {
	return int(node.StartPoint().Row) + 1
}

func complexity(root *sitter.Node) int {
	count := 1
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if decisionNodeTypes[node.Type()] {
			count++
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	walk(root)
	return count
}

func functionNames(s domain.AstSummary) []string {
	names := make([]string, 0, len(s.Functions))
	for _, f := range s.Functions {
		names = append(names, f.Name)
	}
	return names
}

func classNames(s domain.AstSummary) []string {
	names := make([]string, 0, len(s.Classes))
	for _, c := range s.Classes {
		names = append(names, c.Name)
	}
	return names
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

func difference(a, b map[string]bool) []string {
	var out []string
	for name := range a {
		if !b[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func intersection(a, b map[string]bool) []string {
	var out []string
	for name := range a {
		if b[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
