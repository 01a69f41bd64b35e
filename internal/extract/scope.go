package extract

import "strings"

// scopeFrame is one entry on the FQN scope stack: the name of an
// enclosing module/type/function, pushed on entry to that node and
// popped on exit.
type scopeFrame struct {
	name string
}

// scopeStack builds fully qualified names by joining the names of
// enclosing scopes with the language's separator (spec.md §4.4's FQN
// table: "::" for Rust/C/C++, "." otherwise). Grounded on
// standardbeagle-lci's parentStack/VisitContext pattern in
// internal/parser/parser.go, which threads enclosing-scope names
// through a recursive visit rather than reconstructing them from byte
// offsets after the fact.
type scopeStack struct {
	sep    string
	frames []scopeFrame
}

func newScopeStack(sep string) *scopeStack {
	return &scopeStack{sep: sep}
}

func (s *scopeStack) push(name string) {
	s.frames = append(s.frames, scopeFrame{name: name})
}

func (s *scopeStack) pop() {
	s.frames = s.frames[:len(s.frames)-1]
}

// fqn returns the fully qualified name of leaf appended to the current
// scope stack, without pushing it.
func (s *scopeStack) fqn(leaf string) string {
	if len(s.frames) == 0 {
		return leaf
	}
	names := make([]string, 0, len(s.frames)+1)
	for _, f := range s.frames {
		names = append(names, f.name)
	}
	names = append(names, leaf)
	return strings.Join(names, s.sep)
}

// enclosingFQN returns the FQN of the current top-of-stack scope (used
// as a call's caller_fqn when the call occurs directly inside a
// function body), or "" if the stack is empty (top-level code).
func (s *scopeStack) enclosingFQN() string {
	if len(s.frames) == 0 {
		return ""
	}
	names := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		names = append(names, f.name)
	}
	return strings.Join(names, s.sep)
}
