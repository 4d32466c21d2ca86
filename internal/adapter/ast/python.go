package ast

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/sentinelci/pr-sentinel/internal/domain"
)

func extractPython(root *sitter.Node, content []byte) domain.AstSummary {
	var summary domain.AstSummary

	classNodes := findNodes(root, "class_definition")
	methodOwners := make(map[*sitter.Node]bool)

	for _, class := range classNodes {
		info := domain.ClassInfo{
			Name: nodeText(class.ChildByFieldName("name"), content),
			Line: startLine(class),
		}
		if body := class.ChildByFieldName("body"); body != nil {
			for _, fn := range findNodes(body, "function_definition") {
				methodOwners[fn] = true
				info.Methods = append(info.Methods, nodeText(fn.ChildByFieldName("name"), content))
			}
		}
		summary.Classes = append(summary.Classes, info)
	}

	for _, fn := range findNodes(root, "function_definition") {
		if methodOwners[fn] {
			continue
		}
		summary.Functions = append(summary.Functions, domain.FunctionInfo{
			Name:   nodeText(fn.ChildByFieldName("name"), content),
			Line:   startLine(fn),
			Params: pythonParams(fn.ChildByFieldName("parameters"), content),
		})
	}

	for _, imp := range findNodes(root, "import_statement") {
		summary.Imports = append(summary.Imports, strings.TrimSpace(nodeText(imp, content)))
	}
	for _, imp := range findNodes(root, "import_from_statement") {
		summary.Imports = append(summary.Imports, strings.TrimSpace(nodeText(imp, content)))
	}

	return summary
}

func pythonParams(params *sitter.Node, content []byte) []string {
	if params == nil {
		return nil
	}
	var names []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		child := params.NamedChild(i)
		switch child.Type() {
		case "identifier":
			names = append(names, nodeText(child, content))
		case "typed_parameter", "default_parameter", "typed_default_parameter":
			for _, id := range findNodes(child, "identifier") {
				names = append(names, nodeText(id, content))
				break
			}
		}
	}
	return names
}
