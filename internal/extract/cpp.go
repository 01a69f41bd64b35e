package extract

import "github.com/oldnordic/magellan-sub003/internal/types"

// Cpp extracts symbols, calls and #include facts from a C++ source
// file, additionally recognizing namespace_definition and
// class_specifier over what the plain C grammar produces.
func Cpp(file *types.File, content []byte) (*Result, error) {
	return extractCFamily(types.LangCpp, file, content)
}
