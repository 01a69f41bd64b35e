// Package filefilter implements the File Filter (spec.md §4.2, component
// C2): fixed precedence Internal-ignore > gitignore-style > include-globs
// > exclude-globs, with structured skip diagnostics. Include/exclude glob
// matching uses doublestar (github.com/bmatcuk/doublestar/v4), grounded
// on standardbeagle-lci's internal/indexing/watcher.go shouldProcessPath,
// which already reaches for doublestar over filepath.Match for ** support.
package filefilter

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/oldnordic/magellan-sub003/internal/diagnostics"
	"github.com/oldnordic/magellan-sub003/internal/types"
)

// internalIgnoreDirs is the always-deny set: source-control metadata,
// common build directories, and the database file family (self-change
// suppression per spec.md §4.8).
var internalIgnoreDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"target":       true,
	"build":        true,
	"dist":         true,
	"__pycache__":  true,
	".magellan":    true,
}

// Filter applies the four-tier skip precedence for a single project root.
type Filter struct {
	root       string
	gitignore  *gitignoreMatcher
	include    []string
	exclude    []string
	dbFileName string // basename of the store's db file; always internal-ignored
}

// New constructs a Filter for root, loading the root .gitignore/.ignore if
// respectGitignore is set. dbFileName is the basename of the graph store's
// backing file (e.g. "project.magellan.db"); it is always internal-ignored
// so the engine never reacts to its own writes (spec.md §4.8).
func New(root string, respectGitignore bool, dbFileName string, include, exclude []string) (*Filter, error) {
	f := &Filter{
		root:       root,
		include:    include,
		exclude:    exclude,
		dbFileName: dbFileName,
	}
	if respectGitignore {
		f.gitignore = newGitignoreMatcher()
		if err := f.gitignore.loadRootIgnoreFiles(root); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Decision is the outcome of ShouldSkip.
type Decision struct {
	Skip   bool
	Reason diagnostics.SkipReason
}

// ShouldSkip applies the fixed precedence from spec.md §4.2. relPath must
// be slash-separated and relative to root (pathgate.Gate's Canonical
// output is exactly this form).
func (f *Filter) ShouldSkip(relPath string, isDir bool) Decision {
	base := path.Base(relPath)
	if base == f.dbFileName || isInternalPath(relPath) {
		return Decision{Skip: true, Reason: diagnostics.IgnoredInternal}
	}

	if f.gitignore != nil && f.gitignore.shouldIgnore(relPath, isDir) {
		return Decision{Skip: true, Reason: diagnostics.IgnoredByGitignore}
	}

	if len(f.include) > 0 {
		if !matchesAny(f.include, relPath) {
			return Decision{Skip: true, Reason: diagnostics.IgnoredByInclude}
		}
	}

	if matchesAny(f.exclude, relPath) {
		return Decision{Skip: true, Reason: diagnostics.IgnoredByExclude}
	}

	if !isDir && types.LanguageForExtension(extOf(relPath)) == types.LangUnknown {
		return Decision{Skip: true, Reason: diagnostics.UnsupportedLanguage}
	}

	return Decision{Skip: false}
}

// TooLarge reports whether size exceeds the configured threshold
// (spec.md §4.7 edge case).
func TooLarge(size, maxSize int64) bool {
	return size > maxSize
}

func isInternalPath(relPath string) bool {
	for _, part := range strings.Split(relPath, "/") {
		if internalIgnoreDirs[part] {
			return true
		}
	}
	return false
}

func matchesAny(globs []string, relPath string) bool {
	for _, g := range globs {
		if ok, err := doublestar.Match(g, relPath); err == nil && ok {
			return true
		}
	}
	return false
}

func extOf(relPath string) string {
	idx := strings.LastIndexByte(relPath, '.')
	if idx < 0 {
		return ""
	}
	return relPath[idx:]
}
