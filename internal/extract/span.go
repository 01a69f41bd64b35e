package extract

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/oldnordic/magellan-sub003/internal/identity"
	"github.com/oldnordic/magellan-sub003/internal/types"
)

// spanOf converts a tree-sitter node's byte range and 0-indexed
// Point positions into a types.Span. Start line/column follow the
// editor convention spec.md's types.Span documents: 1-indexed lines,
// 0-indexed columns.
func spanOf(node *tree_sitter.Node) types.Span {
	start := node.StartPosition()
	end := node.EndPosition()
	return types.Span{
		ByteStart: uint64(node.StartByte()),
		ByteEnd:   uint64(node.EndByte()),
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column),
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column),
	}
}

func spanID(path string, span types.Span) string {
	return identity.SpanID(path, span.ByteStart, span.ByteEnd)
}

// nodeText returns the exact source bytes a node covers.
func nodeText(node *tree_sitter.Node, content []byte) string {
	return string(content[node.StartByte():node.EndByte()])
}

// recordAstNode appends an AstNode fact for node and returns its span_id
// for use as a parent reference by descendants.
func recordAstNode(r *Result, file *types.File, node *tree_sitter.Node, parentID string) string {
	span := spanOf(node)
	id := spanID(file.Path, span)
	r.addAstNode(types.AstNode{
		ID:       id,
		File:     file.ID,
		Kind:     node.Kind(),
		Normal:   node.Kind(),
		Span:     span,
		ParentID: parentID,
	})
	return id
}
