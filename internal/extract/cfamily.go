package extract

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/oldnordic/magellan-sub003/internal/identity"
	"github.com/oldnordic/magellan-sub003/internal/parserpool"
	"github.com/oldnordic/magellan-sub003/internal/types"
)

// extractCFamily implements the shared C/C++ walk: both grammars share
// the same declarator nesting (pointer/array/function declarators wrap
// an inner identifier), so one walker serves both, parameterized by
// language and FQN separator. C++-only constructs (namespace_definition,
// class_specifier) are no-ops against plain C input since the C grammar
// never produces those node kinds.
func extractCFamily(lang types.Language, file *types.File, content []byte) (*Result, error) {
	r := newResult()
	seen := newSeenFQN()

	err := parserpool.Global().WithParser(lang, func(parser *tree_sitter.Parser, _ *tree_sitter.Language) error {
		tree := parser.Parse(content, nil)
		if tree == nil {
			return nil
		}
		defer tree.Close()

		w := &cWalker{lang: lang, file: file, content: content, result: r, seen: seen, scope: newScopeStack("::")}
		w.walk(tree.RootNode(), "")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

type cWalker struct {
	lang    types.Language
	file    *types.File
	content []byte
	result  *Result
	seen    *seenFQN
	scope   *scopeStack
}

func (w *cWalker) walk(node *tree_sitter.Node, parentASTID string) {
	astID := recordAstNode(w.result, w.file, node, parentASTID)

	switch node.Kind() {
	case "namespace_definition":
		w.visitNamespace(node, astID)
		return
	case "class_specifier":
		w.visitNamed(node, astID, types.SymbolClass)
		return
	case "struct_specifier":
		w.visitNamed(node, astID, types.SymbolStruct)
		return
	case "union_specifier":
		w.visitNamed(node, astID, types.SymbolUnion)
		return
	case "enum_specifier":
		w.visitNamed(node, astID, types.SymbolEnum)
		return
	case "function_definition":
		w.visitFunction(node, astID)
		return
	case "preproc_include":
		w.visitInclude(node)
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

func (w *cWalker) visitNamespace(node *tree_sitter.Node, astID string) {
	nameNode := node.ChildByFieldName("name")
	name := "<anonymous>"
	if nameNode != nil {
		name = nodeText(nameNode, w.content)
		w.emitSymbol(node, name, types.SymbolNamespace)
	}
	w.scope.push(name)
	w.descendChildren(node, astID)
	w.scope.pop()
}

func (w *cWalker) visitNamed(node *tree_sitter.Node, astID string, kind types.SymbolKind) {
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

func (w *cWalker) visitFunction(node *tree_sitter.Node, astID string) {
	declarator := node.ChildByFieldName("declarator")
	name := declaratorName(declarator, w.content)
	if name == "" {
		w.descendChildren(node, astID)
		return
	}
	kind := types.SymbolFunction
	if len(w.scope.frames) > 0 {
		kind = types.SymbolMethod
	}
	w.emitSymbol(node, name, kind)

	w.scope.push(name)
	w.descendChildren(node, astID)
	w.scope.pop()
}

func (w *cWalker) emitSymbol(node *tree_sitter.Node, name string, kind types.SymbolKind) {
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

func (w *cWalker) visitInclude(node *tree_sitter.Node) {
	pathNode := node.ChildByFieldName("path")
	if pathNode == nil {
		return
	}
	raw := nodeText(pathNode, w.content)
	name := raw
	if len(raw) >= 2 {
		name = raw[1 : len(raw)-1]
	}
	w.result.addImport(types.Import{
		File:          w.file.ID,
		Kind:          types.ImportStatement,
		ImportedNames: []string{name},
		Span:          spanOf(node),
	})
}

func (w *cWalker) visitCall(node *tree_sitter.Node) {
	fnNode := node.ChildByFieldName("function")
	if fnNode == nil {
		return
	}
	callee := calleeNameC(fnNode, w.content)
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

func calleeNameC(node *tree_sitter.Node, content []byte) string {
	switch node.Kind() {
	case "identifier", "field_identifier", "qualified_identifier":
		return nodeText(node, content)
	case "field_expression":
		field := node.ChildByFieldName("field")
		if field != nil {
			return nodeText(field, content)
		}
	}
	return nodeText(node, content)
}

func (w *cWalker) descendChildren(node *tree_sitter.Node, astID string) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil {
			w.walk(child, astID)
		}
	}
}

// declaratorName unwraps C/C++ declarator nesting (pointer_declarator,
// array_declarator, function_declarator, reference_declarator) down to
// the innermost identifier, which is the declared name.
func declaratorName(node *tree_sitter.Node, content []byte) string {
	for node != nil {
		switch node.Kind() {
		case "identifier", "field_identifier", "qualified_identifier", "destructor_name", "operator_name":
			return nodeText(node, content)
		default:
			inner := node.ChildByFieldName("declarator")
			if inner == nil {
				return ""
			}
			node = inner
		}
	}
	return ""
}
