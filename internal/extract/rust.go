package extract

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/oldnordic/magellan-sub003/internal/identity"
	"github.com/oldnordic/magellan-sub003/internal/parserpool"
	"github.com/oldnordic/magellan-sub003/internal/types"
)

// Rust extracts every fact kind spec.md §4.4 defines, including the
// Rust-only CFG pass. Grounded on standardbeagle-lci's Rust handling in
// internal/parser/parser.go (the teacher's most fully built-out
// language path), generalized from its flat symbol table into the
// scope-stack / FQN model spec.md requires.
func Rust(file *types.File, content []byte) (*Result, error) {
	r := newResult()
	seen := newSeenFQN()

	err := parserpool.Global().WithParser(types.LangRust, func(parser *tree_sitter.Parser, _ *tree_sitter.Language) error {
		tree := parser.Parse(content, nil)
		if tree == nil {
			return nil
		}
		defer tree.Close()

		w := &rustWalker{file: file, content: content, result: r, seen: seen, scope: newScopeStack("::")}
		w.walk(tree.RootNode(), "")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

type rustWalker struct {
	file    *types.File
	content []byte
	result  *Result
	seen    *seenFQN
	scope   *scopeStack
}

func (w *rustWalker) walk(node *tree_sitter.Node, parentASTID string) {
	astID := recordAstNode(w.result, w.file, node, parentASTID)

	switch node.Kind() {
	case "mod_item":
		w.visitScopeDef(node, astID, types.SymbolModule)
		return
	case "struct_item":
		w.visitScopeDef(node, astID, types.SymbolStruct)
		return
	case "enum_item":
		w.visitScopeDef(node, astID, types.SymbolEnum)
		return
	case "trait_item":
		w.visitScopeDef(node, astID, types.SymbolTrait)
		return
	case "type_item":
		w.visitScopeDef(node, astID, types.SymbolTypeAlias)
		return
	case "impl_item":
		w.visitImpl(node, astID)
		return
	case "function_item":
		w.visitFunction(node, astID)
		return
	case "use_declaration":
		w.visitUse(node)
	case "extern_crate_declaration":
		w.visitExternCrate(node)
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

func (w *rustWalker) visitScopeDef(node *tree_sitter.Node, astID string, kind types.SymbolKind) {
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

// visitImpl pushes a scope named after the implementing type (and, for
// trait impls, "Trait for Type") so methods inside get FQNs like
// "Type::method" — matching spec.md's "impl blocks contribute their
// type's name to the enclosing scope" rule.
func (w *rustWalker) visitImpl(node *tree_sitter.Node, astID string) {
	typeNode := node.ChildByFieldName("type")
	traitNode := node.ChildByFieldName("trait")

	name := "<impl>"
	if typeNode != nil {
		name = nodeText(typeNode, w.content)
	}
	w.emitSymbol(node, name, types.SymbolImpl)

	scopeName := name
	if traitNode != nil {
		scopeName = nodeText(traitNode, w.content) + " for " + name
	}
	w.scope.push(scopeName)
	w.descendChildren(node, astID)
	w.scope.pop()
}

func (w *rustWalker) visitFunction(node *tree_sitter.Node, astID string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		w.descendChildren(node, astID)
		return
	}
	name := nodeText(nameNode, w.content)
	kind := types.SymbolFunction
	if len(w.scope.frames) > 0 {
		kind = types.SymbolMethod
	}
	w.emitSymbol(node, name, kind)
	fqn := w.scope.fqn(name)

	w.scope.push(name)
	body := node.ChildByFieldName("body")
	if body != nil {
		buildCFG(w.result, w.file, body, fqn)
	}
	w.descendChildren(node, astID)
	w.scope.pop()
}

func (w *rustWalker) emitSymbol(node *tree_sitter.Node, name string, kind types.SymbolKind) {
	span := spanOf(node)
	id := spanID(w.file.Path, span)
	fqn := w.scope.fqn(name)
	if collided := w.seen.check(fqn, id); collided {
		w.result.Collisions = append(w.result.Collisions, fqn)
	}
	w.result.addSymbol(types.Symbol{
		ID:       identity.SymbolID(string(types.LangRust), fqn, id),
		File:     w.file.ID,
		Kind:     kind,
		Name:     name,
		FQN:      fqn,
		Language: types.LangRust,
		Span:     span,
	})
	w.result.addChunk(types.CodeChunk{
		File:      w.file.ID,
		ByteStart: span.ByteStart,
		ByteEnd:   span.ByteEnd,
		Source:    w.content[span.ByteStart:span.ByteEnd],
	})
}

// visitUse walks a use_declaration's argument tree (use_tree,
// scoped_use_list, scoped_identifier, use_wildcard, use_as_clause) to
// classify it per spec.md §4.4's ImportKind table and collect the
// imported path components and names.
func (w *rustWalker) visitUse(node *tree_sitter.Node) {
	arg := node.ChildByFieldName("argument")
	if arg == nil {
		return
	}
	kind, components, names, isGlob := classifyUseTree(arg, w.content)
	w.result.addImport(types.Import{
		File:           w.file.ID,
		Kind:           kind,
		PathComponents: components,
		ImportedNames:  names,
		IsGlob:         isGlob,
		Span:           spanOf(node),
	})
}

func (w *rustWalker) visitExternCrate(node *tree_sitter.Node) {
	nameNode := node.ChildByFieldName("name")
	names := []string{}
	if nameNode != nil {
		names = append(names, nodeText(nameNode, w.content))
	}
	w.result.addImport(types.Import{
		File:          w.file.ID,
		Kind:          types.ImportExternCrate,
		ImportedNames: names,
		Span:          spanOf(node),
	})
}

func (w *rustWalker) visitCall(node *tree_sitter.Node) {
	fnNode := node.ChildByFieldName("function")
	if fnNode == nil {
		return
	}
	callee := calleeName(fnNode, w.content)
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

func (w *rustWalker) descendChildren(node *tree_sitter.Node, astID string) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil {
			w.walk(child, astID)
		}
	}
}

// calleeName extracts a readable callee name from a call's function
// expression: a bare identifier, a scoped path (a::b::c), or a field
// access (obj.method -> "method", keeping field calls resolvable by
// name only, as spec.md §4.4 allows for unresolved receivers).
func calleeName(node *tree_sitter.Node, content []byte) string {
	switch node.Kind() {
	case "identifier", "scoped_identifier", "field_identifier":
		return nodeText(node, content)
	case "field_expression":
		field := node.ChildByFieldName("field")
		if field != nil {
			return nodeText(field, content)
		}
	}
	return nodeText(node, content)
}

// classifyUseTree walks a use argument subtree. It does not attempt to
// fully flatten nested grouped imports (use a::{b, c::{d, e}}); it
// records the first-level path components and the leaf names, which is
// sufficient for the wirer's module-path resolution (spec.md §4.9).
func classifyUseTree(node *tree_sitter.Node, content []byte) (types.ImportKind, []string, []string, bool) {
	switch node.Kind() {
	case "use_wildcard":
		path := node.ChildByFieldName("path")
		comps, _ := splitScopedPath(path, content)
		return kindForFirstComponent(comps), comps, nil, true
	case "scoped_use_list":
		path := node.ChildByFieldName("path")
		comps, _ := splitScopedPath(path, content)
		list := node.ChildByFieldName("list")
		names := collectUseListNames(list, content)
		return kindForFirstComponent(comps), comps, names, false
	case "use_as_clause":
		path := node.ChildByFieldName("path")
		alias := node.ChildByFieldName("alias")
		comps, leaf := splitScopedPath(path, content)
		name := leaf
		if alias != nil {
			name = nodeText(alias, content)
		}
		return kindForFirstComponent(comps), comps, []string{name}, false
	case "scoped_identifier", "identifier", "crate", "super", "self":
		comps, leaf := splitScopedPath(node, content)
		return kindForFirstComponent(comps), comps, []string{leaf}, false
	default:
		comps, leaf := splitScopedPath(node, content)
		return kindForFirstComponent(comps), comps, []string{leaf}, false
	}
}

func collectUseListNames(list *tree_sitter.Node, content []byte) []string {
	if list == nil {
		return nil
	}
	var names []string
	for i := uint(0); i < list.NamedChildCount(); i++ {
		child := list.NamedChild(i)
		if child == nil {
			continue
		}
		_, _, inner, isGlob := classifyUseTree(child, content)
		if isGlob {
			continue
		}
		names = append(names, inner...)
	}
	return names
}

// splitScopedPath flattens a scoped_identifier chain (a::b::c) into its
// path components, returning the full component slice and the leaf name.
func splitScopedPath(node *tree_sitter.Node, content []byte) ([]string, string) {
	if node == nil {
		return nil, ""
	}
	if node.Kind() != "scoped_identifier" {
		leaf := nodeText(node, content)
		return []string{leaf}, leaf
	}
	path := node.ChildByFieldName("path")
	name := node.ChildByFieldName("name")
	prefix, _ := splitScopedPath(path, content)
	leaf := ""
	if name != nil {
		leaf = nodeText(name, content)
	}
	return append(prefix, leaf), leaf
}

func kindForFirstComponent(comps []string) types.ImportKind {
	if len(comps) == 0 {
		return types.ImportPlainUse
	}
	switch comps[0] {
	case "crate":
		return types.ImportUseCrate
	case "super":
		return types.ImportUseSuper
	case "self":
		return types.ImportUseSelf
	default:
		return types.ImportPlainUse
	}
}
