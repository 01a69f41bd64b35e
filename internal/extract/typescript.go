package extract

import "github.com/oldnordic/magellan-sub003/internal/types"

// TypeScript extracts symbols, calls and imports from a TypeScript
// source file. It reuses the JavaScript walker: the TypeScript grammar
// is a syntactic superset (interfaces, type aliases, namespaces), all
// of which jsWalker already handles via additional node-kind cases.
func TypeScript(file *types.File, content []byte) (*Result, error) {
	return extractJSFamily(types.LangTypeScript, file, content)
}
