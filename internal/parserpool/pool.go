// Package parserpool lazily creates and reuses per-language tree-sitter
// parsers for the single cooperative indexing thread (spec.md §4.3,
// component C3). It is grounded on standardbeagle-lci's
// internal/parser/parser.go lazy-init registry (registerLazyInit +
// sync.Once per language), simplified because spec.md §5 guarantees all
// parsing happens on one goroutine: no sync.Pool, no per-language mutex,
// just a process-wide map with lazy construction on first use.
package parserpool

import (
	"fmt"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
	tree_sitter_c "github.com/tree-sitter/tree-sitter-c/bindings/go"

	"github.com/oldnordic/magellan-sub003/internal/types"
)

// Pool lazily creates and caches one *tree_sitter.Parser and one
// *tree_sitter.Language per language. It is not safe for concurrent use
// across goroutines by design (spec.md §4.3/§5 — the pipeline's single
// cooperative thread owns it).
type Pool struct {
	mu       sync.Mutex // guards lazy init only; callers never hold it across With
	parsers  map[types.Language]*tree_sitter.Parser
	langs    map[types.Language]*tree_sitter.Language
	initOnce map[types.Language]*sync.Once
}

// process-wide pool, initialized lazily on first use (spec.md §4.3:
// "The pool is a process-wide resource with initialization on first use
// and teardown on process exit.")
var global = New()

// New constructs an empty Pool. Exposed for tests; production code uses
// Global().
func New() *Pool {
	once := make(map[types.Language]*sync.Once, 7)
	for _, l := range supportedLanguages {
		once[l] = &sync.Once{}
	}
	return &Pool{
		parsers:  make(map[types.Language]*tree_sitter.Parser),
		langs:    make(map[types.Language]*tree_sitter.Language),
		initOnce: once,
	}
}

// Global returns the process-wide Pool.
func Global() *Pool {
	return global
}

var supportedLanguages = []types.Language{
	types.LangRust, types.LangPython, types.LangJava,
	types.LangJavaScript, types.LangTypeScript, types.LangC, types.LangCpp,
}

func grammarFor(l types.Language) (*tree_sitter.Language, error) {
	switch l {
	case types.LangRust:
		return tree_sitter.NewLanguage(tree_sitter_rust.Language()), nil
	case types.LangPython:
		return tree_sitter.NewLanguage(tree_sitter_python.Language()), nil
	case types.LangJava:
		return tree_sitter.NewLanguage(tree_sitter_java.Language()), nil
	case types.LangJavaScript:
		return tree_sitter.NewLanguage(tree_sitter_javascript.Language()), nil
	case types.LangTypeScript:
		return tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()), nil
	case types.LangC:
		return tree_sitter.NewLanguage(tree_sitter_c.Language()), nil
	case types.LangCpp:
		return tree_sitter.NewLanguage(tree_sitter_cpp.Language()), nil
	default:
		return nil, fmt.Errorf("parserpool: unsupported language %q", l)
	}
}

// WithParser invokes fn with a parser configured for language, creating
// and caching it on first use (spec.md §4.3's with_parser contract).
func (p *Pool) WithParser(language types.Language, fn func(*tree_sitter.Parser, *tree_sitter.Language) error) error {
	parser, lang, err := p.get(language)
	if err != nil {
		return err
	}
	return fn(parser, lang)
}

func (p *Pool) get(language types.Language) (*tree_sitter.Parser, *tree_sitter.Language, error) {
	once, ok := p.initOnce[language]
	if !ok {
		return nil, nil, fmt.Errorf("parserpool: unsupported language %q", language)
	}

	var initErr error
	once.Do(func() {
		lang, err := grammarFor(language)
		if err != nil {
			initErr = err
			return
		}
		parser := tree_sitter.NewParser()
		if err := parser.SetLanguage(lang); err != nil {
			initErr = fmt.Errorf("parserpool: set language %q: %w", language, err)
			return
		}
		p.mu.Lock()
		p.parsers[language] = parser
		p.langs[language] = lang
		p.mu.Unlock()
	})
	if initErr != nil {
		return nil, nil, initErr
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parsers[language], p.langs[language], nil
}
