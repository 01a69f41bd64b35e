package extract

import (
	"fmt"

	"github.com/oldnordic/magellan-sub003/internal/types"
)

// For dispatches to the language-specific extractor named by file.Language,
// the single entry point the indexing pipeline calls per file (spec.md
// §4.4/§5).
func For(file *types.File, content []byte) (*Result, error) {
	switch file.Language {
	case types.LangRust:
		return Rust(file, content)
	case types.LangPython:
		return Python(file, content)
	case types.LangJava:
		return Java(file, content)
	case types.LangJavaScript:
		return JavaScript(file, content)
	case types.LangTypeScript:
		return TypeScript(file, content)
	case types.LangC:
		return C(file, content)
	case types.LangCpp:
		return Cpp(file, content)
	default:
		return nil, fmt.Errorf("extract: unsupported language %q", file.Language)
	}
}
