package extract

import "github.com/oldnordic/magellan-sub003/internal/types"

// C extracts symbols, calls and #include facts from a C source file.
func C(file *types.File, content []byte) (*Result, error) {
	return extractCFamily(types.LangC, file, content)
}
