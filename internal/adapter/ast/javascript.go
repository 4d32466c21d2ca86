package ast

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/sentinelci/pr-sentinel/internal/domain"
)

// extractJavaScript covers both the javascript and typescript grammars,
// which share node type names for the constructs collected here.
func extractJavaScript(root *sitter.Node, content []byte) domain.AstSummary {
	var summary domain.AstSummary

	for _, fn := range findNodes(root, "function_declaration") {
		summary.Functions = append(summary.Functions, domain.FunctionInfo{
			Name:   nodeText(fn.ChildByFieldName("name"), content),
			Line:   startLine(fn),
			Params: jsParams(fn.ChildByFieldName("parameters"), content),
		})
	}

	// Arrow functions assigned to a const or let carry their name on the
	// enclosing variable_declarator.
	for _, arrow := range findNodes(root, "arrow_function") {
		parent := arrow.Parent()
		if parent == nil || parent.Type() != "variable_declarator" {
			continue
		}
		summary.Functions = append(summary.Functions, domain.FunctionInfo{
			Name:   nodeText(parent.ChildByFieldName("name"), content),
			Line:   startLine(arrow),
			Params: jsParams(arrow.ChildByFieldName("parameters"), content),
		})
	}

	for _, class := range findNodes(root, "class_declaration") {
		info := domain.ClassInfo{
			Name: nodeText(class.ChildByFieldName("name"), content),
			Line: startLine(class),
		}
		if body := class.ChildByFieldName("body"); body != nil {
			for _, method := range findNodes(body, "method_definition") {
				info.Methods = append(info.Methods, nodeText(method.ChildByFieldName("name"), content))
			}
		}
		summary.Classes = append(summary.Classes, info)
	}

	for _, imp := range findNodes(root, "import_statement") {
		summary.Imports = append(summary.Imports, strings.TrimSpace(nodeText(imp, content)))
	}
	for _, exp := range findNodes(root, "export_statement") {
		line := strings.TrimSpace(nodeText(exp, content))
		if idx := strings.IndexByte(line, '\n'); idx >= 0 {
			line = line[:idx]
		}
		summary.Exports = append(summary.Exports, line)
	}

	return summary
}

func jsParams(params *sitter.Node, content []byte) []string {
	if params == nil {
		return nil
	}
	var names []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		child := params.NamedChild(i)
		switch child.Type() {
		case "identifier":
			names = append(names, nodeText(child, content))
		case "required_parameter", "optional_parameter", "assignment_pattern":
			for _, id := range findNodes(child, "identifier") {
				names = append(names, nodeText(id, content))
				break
			}
		}
	}
	return names
}
