package extract

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/oldnordic/magellan-sub003/internal/identity"
	"github.com/oldnordic/magellan-sub003/internal/parserpool"
	"github.com/oldnordic/magellan-sub003/internal/types"
)

// Java extracts symbols, calls and imports from a Java compilation
// unit. Package declarations seed the scope stack so every FQN is
// rooted at the Java package name, matching javac's own naming.
func Java(file *types.File, content []byte) (*Result, error) {
	r := newResult()
	seen := newSeenFQN()

	err := parserpool.Global().WithParser(types.LangJava, func(parser *tree_sitter.Parser, _ *tree_sitter.Language) error {
		tree := parser.Parse(content, nil)
		if tree == nil {
			return nil
		}
		defer tree.Close()

		w := &javaWalker{file: file, content: content, result: r, seen: seen, scope: newScopeStack(".")}
		w.walk(tree.RootNode(), "")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

type javaWalker struct {
	file    *types.File
	content []byte
	result  *Result
	seen    *seenFQN
	scope   *scopeStack
}

func (w *javaWalker) walk(node *tree_sitter.Node, parentASTID string) {
	astID := recordAstNode(w.result, w.file, node, parentASTID)

	switch node.Kind() {
	case "package_declaration":
		w.visitPackage(node)
	case "import_declaration":
		w.visitImport(node)
	case "class_declaration":
		w.visitDef(node, astID, types.SymbolClass)
		return
	case "interface_declaration":
		w.visitDef(node, astID, types.SymbolInterface)
		return
	case "enum_declaration":
		w.visitDef(node, astID, types.SymbolEnum)
		return
	case "method_declaration", "constructor_declaration":
		w.visitMethod(node, astID)
		return
	case "method_invocation":
		w.visitCall(node)
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil {
			w.walk(child, astID)
		}
	}
}

func (w *javaWalker) visitPackage(node *tree_sitter.Node) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		name := nodeText(child, w.content)
		w.scope.push(name)
	}
}

func (w *javaWalker) visitImport(node *tree_sitter.Node) {
	isStatic := false
	for i := uint(0); i < node.ChildCount(); i++ {
		c := node.Child(i)
		if c != nil && c.Kind() == "static" {
			isStatic = true
		}
	}
	isGlob := false
	var pathNode *tree_sitter.Node
	for i := uint(0); i < node.NamedChildCount(); i++ {
		c := node.NamedChild(i)
		if c == nil {
			continue
		}
		if c.Kind() == "asterisk" {
			isGlob = true
			continue
		}
		pathNode = c
	}
	full := ""
	if pathNode != nil {
		full = nodeText(pathNode, w.content)
	}
	comps := splitDotted(full)
	names := []string{}
	if len(comps) > 0 && !isGlob {
		names = append(names, comps[len(comps)-1])
	}
	_ = isStatic
	w.result.addImport(types.Import{
		File:           w.file.ID,
		Kind:           types.ImportStatement,
		PathComponents: comps,
		ImportedNames:  names,
		IsGlob:         isGlob,
		Span:           spanOf(node),
	})
}

func (w *javaWalker) visitDef(node *tree_sitter.Node, astID string, kind types.SymbolKind) {
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

func (w *javaWalker) visitMethod(node *tree_sitter.Node, astID string) {
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

func (w *javaWalker) emitSymbol(node *tree_sitter.Node, name string, kind types.SymbolKind) {
	span := spanOf(node)
	id := spanID(w.file.Path, span)
	fqn := w.scope.fqn(name)
	if collided := w.seen.check(fqn, id); collided {
		w.result.Collisions = append(w.result.Collisions, fqn)
	}
	w.result.addSymbol(types.Symbol{
		ID:       identity.SymbolID(string(types.LangJava), fqn, id),
		File:     w.file.ID,
		Kind:     kind,
		Name:     name,
		FQN:      fqn,
		Language: types.LangJava,
		Span:     span,
	})
	w.result.addChunk(types.CodeChunk{
		File:      w.file.ID,
		ByteStart: span.ByteStart,
		ByteEnd:   span.ByteEnd,
		Source:    w.content[span.ByteStart:span.ByteEnd],
	})
}

func (w *javaWalker) visitCall(node *tree_sitter.Node) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	span := spanOf(node)
	callee := nodeText(nameNode, w.content)
	w.result.addCall(types.Call{
		File:      w.file.ID,
		Span:      span,
		CallerFQN: w.scope.enclosingFQN(),
		CalleeFQN: callee,
	})
	w.result.recordCallReference(w.file.ID, span, callee)
}

func (w *javaWalker) descendChildren(node *tree_sitter.Node, astID string) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil {
			w.walk(child, astID)
		}
	}
}
