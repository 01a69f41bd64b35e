// Package resolve implements the Module Resolver (spec.md §4.9,
// component C9): a module_path -> file_id index derived from each
// indexed file's location relative to the project root, and the
// crate::/super::/self:: (and equivalent dotted-path) import
// resolution rules.
//
// Grounded on standardbeagle-lci's internal/indexing package, which
// keeps its own path-to-module index updated incrementally as files
// are (re)indexed rather than recomputing it from scratch on every
// query — the same incremental-index shape this package follows.
package resolve

import (
	"path"
	"strings"
	"sync"

	"github.com/oldnordic/magellan-sub003/internal/types"
)

// moduleRootFiles map to their enclosing directory's module path
// instead of contributing their own basename as a segment (spec.md
// §4.9's mod.rs/__init__.py/index.ts convention).
var moduleRootFiles = map[string]bool{
	"mod.rs":      true,
	"__init__.py": true,
	"index.ts":    true,
	"index.js":    true,
}

// Index maintains the module_path -> file_id mapping for one project.
// Owned exclusively by the main indexing thread (spec.md §5); no
// internal locking is required by that contract, but a mutex is kept
// anyway since CLI-level introspection (a future `magellan resolve`
// subcommand) may read it from outside the hot path.
type Index struct {
	mu         sync.RWMutex
	byModule   map[string]string // module path -> file_id
	pathByFile map[string]string // file_id -> module path (reverse lookup)
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		byModule:   make(map[string]string),
		pathByFile: make(map[string]string),
	}
}

// ModulePath derives a file's module path from its root-relative,
// slash-separated path and language, per spec.md §4.9: directory names
// contribute segments joined with the language's separator; a
// language's module-root filename (mod.rs, __init__.py, index.ts/js)
// maps to its parent directory rather than contributing its own name.
func ModulePath(relPath string, lang types.Language) string {
	dir := path.Dir(relPath)
	base := path.Base(relPath)

	var segments []string
	if dir != "." && dir != "/" {
		segments = strings.Split(dir, "/")
	}
	if !moduleRootFiles[base] {
		nameNoExt := strings.TrimSuffix(base, path.Ext(base))
		segments = append(segments, nameNoExt)
	}
	return strings.Join(segments, lang.Separator())
}

// Put registers path's module path -> file_id mapping, replacing any
// prior entry for the same file_id (spec.md §4.7 step 9's "register
// the file" contract; re-indexing a file updates its module path in
// place rather than accumulating stale entries).
func (idx *Index) Put(fileID string, relPath string, lang types.Language) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, ok := idx.pathByFile[fileID]; ok {
		delete(idx.byModule, old)
	}
	mp := ModulePath(relPath, lang)
	idx.byModule[mp] = fileID
	idx.pathByFile[fileID] = mp
}

// Remove drops fileID's entry entirely (called from delete_file_facts).
func (idx *Index) Remove(fileID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if mp, ok := idx.pathByFile[fileID]; ok {
		delete(idx.byModule, mp)
		delete(idx.pathByFile, fileID)
	}
}

// Resolve implements spec.md §4.9's import resolution rules for one
// ImportFact, given the importing file's own module path. It returns
// the resolved file_id and true on success; an unresolved import is not
// an error — callers leave the Import node without a target_file_id.
func (idx *Index) Resolve(imp types.Import, importingModulePath string, sep string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(imp.PathComponents) == 0 {
		return "", false
	}

	switch imp.Kind {
	case types.ImportUseCrate:
		return idx.lookup(strings.Join(imp.PathComponents[1:], sep))
	case types.ImportUseSuper:
		parent := popLastSegment(importingModulePath, sep)
		rest := imp.PathComponents[1:]
		return idx.lookup(joinNonEmpty(sep, parent, strings.Join(rest, sep)))
	case types.ImportUseSelf:
		rest := imp.PathComponents[1:]
		return idx.lookup(joinNonEmpty(sep, importingModulePath, strings.Join(rest, sep)))
	default:
		// Plain paths are tried against package roots in declaration
		// order: first as an absolute module path, then relative to
		// the importing file's own package.
		if fid, ok := idx.lookup(strings.Join(imp.PathComponents, sep)); ok {
			return fid, true
		}
		parent := popLastSegment(importingModulePath, sep)
		return idx.lookup(joinNonEmpty(sep, parent, strings.Join(imp.PathComponents, sep)))
	}
}

func (idx *Index) lookup(modulePath string) (string, bool) {
	fid, ok := idx.byModule[modulePath]
	return fid, ok
}

func popLastSegment(modulePath, sep string) string {
	idxSep := strings.LastIndex(modulePath, sep)
	if idxSep < 0 {
		return ""
	}
	return modulePath[:idxSep]
}

func joinNonEmpty(sep string, parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, sep)
}
