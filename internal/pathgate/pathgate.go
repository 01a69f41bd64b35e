// Package pathgate canonicalizes and validates that paths stay within a
// project root (spec.md §4.1, component C1). The symlink-escape check is
// grounded on standardbeagle-lci's internal/indexing/watcher.go, which
// already resolves filepath.EvalSymlinks to detect watch-directory
// cycles; this package reuses that resolve-then-compare idiom for a
// stricter security boundary instead of a cycle guard.
package pathgate

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/oldnordic/magellan-sub003/internal/magerr"
)

// Result is the outcome of gating a single path.
type Result struct {
	// Canonical is the resolved, root-relative, slash-normalized path.
	// Only meaningful when Err is nil.
	Canonical string
	Err       error
}

// Gate validates p (which may be relative to root or absolute) stays
// within root after resolving symlinks, and classifies the failure mode
// per spec.md §4.1's closed error set.
func Gate(p, root string) Result {
	if !utf8.ValidString(p) {
		return Result{Err: magerr.New(magerr.CodeNonUtf8Path, "non-UTF-8 path").WithPath(p)}
	}

	if looksSuspicious(p) {
		return Result{Err: magerr.New(magerr.CodeSuspiciousTraversal, "path contains suspicious traversal components").WithPath(p)}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Result{Err: magerr.Wrap(magerr.CodeCannotCanonicalize, "cannot resolve root", err).WithPath(p)}
	}
	canonRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return Result{Err: magerr.Wrap(magerr.CodeCannotCanonicalize, "cannot canonicalize root", err).WithPath(p)}
	}

	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(absRoot, p)
	}
	abs = filepath.Clean(abs)

	// Resolve symlinks on the target itself; a symlink whose target
	// canonicalizes outside root is a SymlinkEscape, not an OutsideRoot,
	// since the literal path may well live inside root.
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Path may not exist yet (e.g. a pending create event); fall back
		// to validating the clean absolute path directly.
		resolved = abs
	}

	if !withinRoot(resolved, canonRoot) {
		if resolved != abs {
			return Result{Err: magerr.New(magerr.CodePathEscape, "symlink target escapes project root").WithPath(p)}
		}
		return Result{Err: magerr.New(magerr.CodePathEscape, "path escapes project root").WithPath(p)}
	}

	rel, err := filepath.Rel(canonRoot, resolved)
	if err != nil {
		return Result{Err: magerr.New(magerr.CodePathEscape, "path escapes project root").WithPath(p)}
	}

	return Result{Canonical: filepath.ToSlash(rel)}
}

func withinRoot(target, root string) bool {
	if target == root {
		return true
	}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// looksSuspicious is the pre-canonicalization heuristic from spec.md §4.1:
// ≥3 parent components, a single parent at shallow depth, or mixed
// "./…/../" patterns.
func looksSuspicious(p string) bool {
	slashed := filepath.ToSlash(p)
	parts := strings.Split(slashed, "/")

	parentCount := 0
	sawDotSlash := false
	for _, part := range parts {
		switch part {
		case "..":
			parentCount++
		case ".":
			sawDotSlash = true
		}
	}

	if parentCount >= 3 {
		return true
	}
	if parentCount == 1 && len(parts) <= 3 {
		return true
	}
	if sawDotSlash && parentCount >= 1 {
		return true
	}
	return false
}
