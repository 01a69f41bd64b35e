package extract

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/oldnordic/magellan-sub003/internal/identity"
	"github.com/oldnordic/magellan-sub003/internal/parserpool"
	"github.com/oldnordic/magellan-sub003/internal/types"
)

// Python extracts symbols, references, calls and imports from a Python
// source file. There is no Python CFG pass: spec.md §4.4 scopes CFG
// extraction to Rust only.
func Python(file *types.File, content []byte) (*Result, error) {
	r := newResult()
	seen := newSeenFQN()

	err := parserpool.Global().WithParser(types.LangPython, func(parser *tree_sitter.Parser, _ *tree_sitter.Language) error {
		tree := parser.Parse(content, nil)
		if tree == nil {
			return nil
		}
		defer tree.Close()

		w := &pyWalker{file: file, content: content, result: r, seen: seen, scope: newScopeStack(".")}
		w.walk(tree.RootNode(), "")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

type pyWalker struct {
	file    *types.File
	content []byte
	result  *Result
	seen    *seenFQN
	scope   *scopeStack
}

func (w *pyWalker) walk(node *tree_sitter.Node, parentASTID string) {
	astID := recordAstNode(w.result, w.file, node, parentASTID)

	switch node.Kind() {
	case "class_definition":
		w.visitDef(node, astID, types.SymbolClass)
		return
	case "function_definition":
		kind := types.SymbolFunction
		if len(w.scope.frames) > 0 {
			kind = types.SymbolMethod
		}
		w.visitDef(node, astID, kind)
		return
	case "import_statement":
		w.visitImportStatement(node)
	case "import_from_statement":
		w.visitImportFrom(node)
	case "call":
		w.visitCall(node)
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil {
			w.walk(child, astID)
		}
	}
}

func (w *pyWalker) visitDef(node *tree_sitter.Node, astID string, kind types.SymbolKind) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		w.descendChildren(node, astID)
		return
	}
	name := nodeText(nameNode, w.content)
	span := spanOf(node)
	id := spanID(w.file.Path, span)
	fqn := w.scope.fqn(name)
	if collided := w.seen.check(fqn, id); collided {
		w.result.Collisions = append(w.result.Collisions, fqn)
	}
	w.result.addSymbol(types.Symbol{
		ID:       identity.SymbolID(string(types.LangPython), fqn, id),
		File:     w.file.ID,
		Kind:     kind,
		Name:     name,
		FQN:      fqn,
		Language: types.LangPython,
		Span:     span,
	})
	w.result.addChunk(types.CodeChunk{
		File:      w.file.ID,
		ByteStart: span.ByteStart,
		ByteEnd:   span.ByteEnd,
		Source:    w.content[span.ByteStart:span.ByteEnd],
	})

	w.scope.push(name)
	w.descendChildren(node, astID)
	w.scope.pop()
}

func (w *pyWalker) visitImportStatement(node *tree_sitter.Node) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		name, alias := dottedNameAndAlias(child, w.content)
		imported := alias
		if imported == "" {
			imported = name
		}
		w.result.addImport(types.Import{
			File:           w.file.ID,
			Kind:           types.ImportPlainUse,
			PathComponents: splitDotted(name),
			ImportedNames:  []string{imported},
			Span:           spanOf(node),
		})
	}
}

func (w *pyWalker) visitImportFrom(node *tree_sitter.Node) {
	moduleNode := node.ChildByFieldName("module_name")
	module := ""
	if moduleNode != nil {
		module = nodeText(moduleNode, w.content)
	}
	names := []string{}
	isGlob := false
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil || (moduleNode != nil && child.StartByte() == moduleNode.StartByte() && child.EndByte() == moduleNode.EndByte()) {
			continue
		}
		if child.Kind() == "wildcard_import" {
			isGlob = true
			continue
		}
		name, alias := dottedNameAndAlias(child, w.content)
		if alias != "" {
			names = append(names, alias)
		} else if name != "" {
			names = append(names, name)
		}
	}
	w.result.addImport(types.Import{
		File:           w.file.ID,
		Kind:           types.ImportFromImport,
		PathComponents: splitDotted(module),
		ImportedNames:  names,
		IsGlob:         isGlob,
		Span:           spanOf(node),
	})
}

func (w *pyWalker) visitCall(node *tree_sitter.Node) {
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

func (w *pyWalker) descendChildren(node *tree_sitter.Node, astID string) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil {
			w.walk(child, astID)
		}
	}
}

// dottedNameAndAlias handles "dotted_name", "aliased_import", and plain
// "identifier" import child shapes, returning the dotted name and any
// "as" alias (empty if none).
func dottedNameAndAlias(node *tree_sitter.Node, content []byte) (string, string) {
	if node.Kind() == "aliased_import" {
		nameNode := node.ChildByFieldName("name")
		aliasNode := node.ChildByFieldName("alias")
		name := ""
		if nameNode != nil {
			name = nodeText(nameNode, content)
		}
		alias := ""
		if aliasNode != nil {
			alias = nodeText(aliasNode, content)
		}
		return name, alias
	}
	return nodeText(node, content), ""
}

func splitDotted(name string) []string {
	if name == "" {
		return nil
	}
	var parts []string
	start := 0
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			parts = append(parts, name[start:i])
			start = i + 1
		}
	}
	parts = append(parts, name[start:])
	return parts
}
