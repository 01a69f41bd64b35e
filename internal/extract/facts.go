// Package extract implements the Fact Extractors (spec.md §4.4, component
// C4): one extractor per supported language, each walking a tree-sitter
// parse tree and producing the closed fact set (symbols, references,
// calls, imports, AST nodes, and Rust-only CFG blocks) that downstream
// components wire into the graph store.
//
// Grounded on standardbeagle-lci's internal/parser/parser.go: a
// recursive descent over tree-sitter nodes with an explicit parent
// stack, rather than query-only matching, because FQN construction
// needs the live nesting of scopes (modules, types, functions) that a
// flat query match list doesn't carry on its own.
package extract

import (
	"github.com/oldnordic/magellan-sub003/internal/identity"
	"github.com/oldnordic/magellan-sub003/internal/types"
)

// Result is everything one extractor run produces for a single file.
// Collisions records FQNs that were assigned to more than one span in
// the same file (spec.md §4.4 edge case); the wirer escalates
// cross-file collisions separately.
type Result struct {
	Symbols    []types.Symbol
	References []types.Reference
	Calls      []types.Call
	Imports    []types.Import
	AstNodes   []types.AstNode
	CfgBlocks  []types.CfgBlock
	Chunks     []types.CodeChunk
	Collisions []string
}

func newResult() *Result {
	return &Result{}
}

func (r *Result) addSymbol(s types.Symbol) {
	r.Symbols = append(r.Symbols, s)
}

func (r *Result) addReference(ref types.Reference) {
	r.References = append(r.References, ref)
}

func (r *Result) addCall(c types.Call) {
	r.Calls = append(r.Calls, c)
}

func (r *Result) addImport(i types.Import) {
	r.Imports = append(r.Imports, i)
}

func (r *Result) addAstNode(n types.AstNode) {
	r.AstNodes = append(r.AstNodes, n)
}

func (r *Result) addCfgBlock(b types.CfgBlock) {
	r.CfgBlocks = append(r.CfgBlocks, b)
}

func (r *Result) addChunk(c types.CodeChunk) {
	r.Chunks = append(r.Chunks, c)
}

// recordCallReference emits a Reference fact mirroring a Call's callee
// name. A call site is also a use of the callee's simple name, so the
// Cross-file Wirer (C10) can wire it into a REFERENCES edge the same
// way any other identifier reference is wired, in addition to the
// CALLER/CALLS edges the Call fact itself produces.
func (r *Result) recordCallReference(file string, span types.Span, name string) {
	r.addReference(types.Reference{
		MatchID: identity.MatchID(name, file, span.ByteStart),
		File:    file,
		Span:    span,
		Name:    name,
	})
}

// seenFQN tracks FQN -> span_id assignments within one file so a second
// distinct span claiming the same FQN is recorded as a collision
// instead of silently overwriting the first (spec.md §4.4).
type seenFQN struct {
	bySymbol map[string]string // fqn -> first span_id
}

func newSeenFQN() *seenFQN {
	return &seenFQN{bySymbol: make(map[string]string)}
}

func (s *seenFQN) check(fqn, spanID string) (collision bool) {
	prior, ok := s.bySymbol[fqn]
	if !ok {
		s.bySymbol[fqn] = spanID
		return false
	}
	return prior != spanID
}
