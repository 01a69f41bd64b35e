package extract

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/oldnordic/magellan-sub003/internal/identity"
	"github.com/oldnordic/magellan-sub003/internal/parserpool"
	"github.com/oldnordic/magellan-sub003/internal/types"
)

// JavaScript extracts symbols, calls and imports from a JavaScript
// source file.
func JavaScript(file *types.File, content []byte) (*Result, error) {
	return extractJSFamily(types.LangJavaScript, file, content)
}

func extractJSFamily(lang types.Language, file *types.File, content []byte) (*Result, error) {
	r := newResult()
	seen := newSeenFQN()

	err := parserpool.Global().WithParser(lang, func(parser *tree_sitter.Parser, _ *tree_sitter.Language) error {
		tree := parser.Parse(content, nil)
		if tree == nil {
			return nil
		}
		defer tree.Close()

		w := &jsWalker{lang: lang, file: file, content: content, result: r, seen: seen, scope: newScopeStack(".")}
		w.walk(tree.RootNode(), "")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

type jsWalker struct {
	lang    types.Language
	file    *types.File
	content []byte
	result  *Result
	seen    *seenFQN
	scope   *scopeStack
}

func (w *jsWalker) walk(node *tree_sitter.Node, parentASTID string) {
	astID := recordAstNode(w.result, w.file, node, parentASTID)

	switch node.Kind() {
	case "class_declaration":
		w.visitDef(node, astID, types.SymbolClass)
		return
	case "interface_declaration":
		w.visitDef(node, astID, types.SymbolInterface)
		return
	case "enum_declaration":
		w.visitDef(node, astID, types.SymbolEnum)
		return
	case "type_alias_declaration":
		w.visitDef(node, astID, types.SymbolTypeAlias)
		return
	case "module", "internal_module":
		w.visitDef(node, astID, types.SymbolNamespace)
		return
	case "function_declaration":
		w.visitDef(node, astID, types.SymbolFunction)
		return
	case "method_definition":
		w.visitMethod(node, astID)
		return
	case "import_statement":
		w.visitImport(node)
	case "call_expression":
		w.visitCall(node)
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil {
			w.walk(child, astID)
		}
	}
}

func (w *jsWalker) visitDef(node *tree_sitter.Node, astID string, kind types.SymbolKind) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		w.descendChildren(node, astID)
		return
	}
	name := nodeText(nameNode, w.content)
	w.emitSymbol(node, name, kind)

	w.scope.push(name)
	w.descendChildren(node, astID)
	w.scope.pop()
}

func (w *jsWalker) visitMethod(node *tree_sitter.Node, astID string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		w.descendChildren(node, astID)
		return
	}
	name := nodeText(nameNode, w.content)
	w.emitSymbol(node, name, types.SymbolMethod)

	w.scope.push(name)
	w.descendChildren(node, astID)
	w.scope.pop()
}

func (w *jsWalker) emitSymbol(node *tree_sitter.Node, name string, kind types.SymbolKind) {
	span := spanOf(node)
	id := spanID(w.file.Path, span)
	fqn := w.scope.fqn(name)
	if collided := w.seen.check(fqn, id); collided {
		w.result.Collisions = append(w.result.Collisions, fqn)
	}
	w.result.addSymbol(types.Symbol{
		ID:       identity.SymbolID(string(w.lang), fqn, id),
		File:     w.file.ID,
		Kind:     kind,
		Name:     name,
		FQN:      fqn,
		Language: w.lang,
		Span:     span,
	})
	w.result.addChunk(types.CodeChunk{
		File:      w.file.ID,
		ByteStart: span.ByteStart,
		ByteEnd:   span.ByteEnd,
		Source:    w.content[span.ByteStart:span.ByteEnd],
	})
}

func (w *jsWalker) visitImport(node *tree_sitter.Node) {
	sourceNode := node.ChildByFieldName("source")
	module := ""
	if sourceNode != nil {
		module = stripQuotes(nodeText(sourceNode, w.content))
	}
	var names []string
	isGlob := false
	clause := findChildKind(node, "import_clause")
	if clause != nil {
		for i := uint(0); i < clause.NamedChildCount(); i++ {
			part := clause.NamedChild(i)
			if part == nil {
				continue
			}
			switch part.Kind() {
			case "identifier":
				names = append(names, nodeText(part, w.content))
			case "namespace_import":
				isGlob = true
			case "named_imports":
				for j := uint(0); j < part.NamedChildCount(); j++ {
					spec := part.NamedChild(j)
					if spec == nil {
						continue
					}
					names = append(names, importSpecifierName(spec, w.content))
				}
			}
		}
	}
	var comps []string
	for _, seg := range strings.Split(module, "/") {
		if seg != "" && seg != "." {
			comps = append(comps, seg)
		}
	}
	w.result.addImport(types.Import{
		File:           w.file.ID,
		Kind:           types.ImportStatement,
		PathComponents: comps,
		ImportedNames:  names,
		IsGlob:         isGlob,
		Span:           spanOf(node),
	})
}

func importSpecifierName(spec *tree_sitter.Node, content []byte) string {
	alias := spec.ChildByFieldName("alias")
	if alias != nil {
		return nodeText(alias, content)
	}
	nameNode := spec.ChildByFieldName("name")
	if nameNode != nil {
		return nodeText(nameNode, content)
	}
	return nodeText(spec, content)
}

func findChildKind(node *tree_sitter.Node, kind string) *tree_sitter.Node {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		c := node.NamedChild(i)
		if c != nil && c.Kind() == kind {
			return c
		}
	}
	return nil
}

func stripQuotes(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'' || s[0] == '`') {
		return s[1 : len(s)-1]
	}
	return s
}

func (w *jsWalker) visitCall(node *tree_sitter.Node) {
	fnNode := node.ChildByFieldName("function")
	if fnNode == nil {
		return
	}
	callee := calleeNameJS(fnNode, w.content)
	if callee == "" {
		return
	}
	span := spanOf(node)
	w.result.addCall(types.Call{
		File:      w.file.ID,
		Span:      span,
		CallerFQN: w.scope.enclosingFQN(),
		CalleeFQN: callee,
	})
	w.result.recordCallReference(w.file.ID, span, callee)
}

func calleeNameJS(node *tree_sitter.Node, content []byte) string {
	switch node.Kind() {
	case "identifier", "property_identifier":
		return nodeText(node, content)
	case "member_expression":
		prop := node.ChildByFieldName("property")
		if prop != nil {
			return nodeText(prop, content)
		}
	}
	return nodeText(node, content)
}

func (w *jsWalker) descendChildren(node *tree_sitter.Node, astID string) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil {
			w.walk(child, astID)
		}
	}
}
