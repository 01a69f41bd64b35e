// Package wire implements the Cross-file Wirer (spec.md §4.10,
// component C10): after each file is (re)indexed, it maintains the
// global (language, fqn) -> entity_id map and uses it, together with
// the Module Resolver's import graph, to create REFERENCES, CALLER,
// and CALLS edges between files.
//
// Grounded on standardbeagle-lci's internal/indexing incremental
// per-file update model (the same shape internal/resolve follows):
// wiring happens per file as it is touched, not as a full-workspace
// recompute, and a file whose import target only now became available
// is revisited rather than the whole graph being rebuilt.
package wire

import (
	"sort"
	"strings"

	"github.com/oldnordic/magellan-sub003/internal/diagnostics"
	"github.com/oldnordic/magellan-sub003/internal/graphstore"
	"github.com/oldnordic/magellan-sub003/internal/resolve"
	"github.com/oldnordic/magellan-sub003/internal/types"
)

// SymbolEntry pairs a freshly inserted Symbol with the entity id the
// store assigned it.
type SymbolEntry struct {
	EntityID int64
	Symbol   types.Symbol
}

// RefEntry pairs a freshly inserted Reference with its entity id.
type RefEntry struct {
	EntityID int64
	Ref      types.Reference
	resolved bool
}

// CallEntry pairs a freshly inserted Call with its entity id.
type CallEntry struct {
	EntityID int64
	Call     types.Call
	callerResolved bool
	calleeResolved bool
}

// FileFacts is everything about one file's facts the Wirer needs to
// register symbols and (re)wire references/calls. Imports must already
// carry ResolvedFileID where the Module Resolver (C9) found a target
// (the imported target file's canonical path — see internal/reconcile, which
// uses paths as resolve.Index's file_id space so no extra indirection
// is needed here).
type FileFacts struct {
	Path       string
	Language   types.Language
	ModulePath string
	Imports    []types.Import
	Symbols    []SymbolEntry
	References []RefEntry
	Calls      []CallEntry
}

// Wirer owns the global FQN map and the per-file fact bookkeeping
// needed to wire REFERENCES/CALLER/CALLS edges as files are indexed in
// any order (spec.md §4.10, P5).
type Wirer struct {
	store graphstore.Store
	warn  *diagnostics.WarningSink

	fqnIndex     map[string]int64  // "lang:fqn" -> entity_id, first-seen wins
	fqnOwnerPath map[string]string // "lang:fqn" -> owning file path

	files       map[string]*FileFacts    // path -> latest facts
	importersOf map[string]map[string]bool // target path -> importer paths
}

// New returns an empty Wirer bound to store, reporting collisions and
// unresolved-import/callee warnings to warn.
func New(store graphstore.Store, warn *diagnostics.WarningSink) *Wirer {
	return &Wirer{
		store:        store,
		warn:         warn,
		fqnIndex:     make(map[string]int64),
		fqnOwnerPath: make(map[string]string),
		files:        make(map[string]*FileFacts),
		importersOf:  make(map[string]map[string]bool),
	}
}

func fqnKey(lang types.Language, fqn string) string {
	return string(lang) + ":" + fqn
}

// RemoveFile drops path's prior registration: its owned FQN entries,
// its fact bookkeeping, and its membership in any target's importer
// set. Called by the Reconciler immediately before re-extracting a
// changed file (mirrors delete_file_facts's "drop from in-memory
// caches" step, spec.md §4.6).
func (w *Wirer) RemoveFile(path string) {
	for key, owner := range w.fqnOwnerPath {
		if owner == path {
			delete(w.fqnOwnerPath, key)
			delete(w.fqnIndex, key)
		}
	}
	delete(w.files, path)
	for target, importers := range w.importersOf {
		delete(importers, path)
		if len(importers) == 0 {
			delete(w.importersOf, target)
		}
	}
}

// IndexFile registers ff's symbols into the global FQN map (emitting a
// collision warning, not an overwrite, on a second distinct claim to
// the same (language, fqn) key per spec.md §4.10 step 1) and records
// its facts for (re)wiring. It does not itself create edges — call
// Wire(ff.Path) after IndexFile to perform step 2-3.
func (w *Wirer) IndexFile(ff *FileFacts) {
	for _, se := range ff.Symbols {
		key := fqnKey(se.Symbol.Language, se.Symbol.FQN)
		if existingID, ok := w.fqnIndex[key]; ok {
			if existingID != se.EntityID {
				w.warn.Add(diagnostics.Warning{
					Path:    ff.Path,
					Stage:   diagnostics.StageIndex,
					Reason:  diagnostics.WarnFQNCollision,
					Message: "fqn " + se.Symbol.FQN + " already claimed; keeping first-seen symbol",
				})
			}
			continue
		}
		w.fqnIndex[key] = se.EntityID
		w.fqnOwnerPath[key] = ff.Path
	}

	for _, imp := range ff.Imports {
		if imp.ResolvedFileID != "" {
			if w.importersOf[imp.ResolvedFileID] == nil {
				w.importersOf[imp.ResolvedFileID] = make(map[string]bool)
			}
			w.importersOf[imp.ResolvedFileID][ff.Path] = true
		}
	}

	w.files[ff.Path] = ff
}

// Wire performs spec.md §4.10 steps 2-3 for path: every still-unresolved
// Reference and Call is retried against the current FQN map, in
// byte_start order with ties broken by longer byte_end (spec.md's
// stated determinism rule). Already-resolved entries are left alone so
// repeated calls (from RewireImportersOf) are idempotent.
func (w *Wirer) Wire(path string) error {
	ff, ok := w.files[path]
	if !ok {
		return nil
	}

	sortRefs(ff.References)
	for i := range ff.References {
		re := &ff.References[i]
		if re.resolved {
			continue
		}
		targetID, ok := w.resolveName(re.Ref.Name, ff)
		if !ok {
			w.warn.Add(diagnostics.Warning{
				Path:    path,
				Stage:   diagnostics.StageIndex,
				Reason:  diagnostics.WarnUnresolvedImport,
				Message: "reference to " + re.Ref.Name + " did not resolve to a known symbol",
			})
			continue
		}
		if err := w.store.InsertEdge(re.EntityID, targetID, "REFERENCES"); err != nil {
			return err
		}
		re.resolved = true
	}

	sortCalls(ff.Calls)
	for i := range ff.Calls {
		ce := &ff.Calls[i]
		if !ce.callerResolved && ce.Call.CallerFQN != "" {
			if callerID, ok := w.fqnIndex[fqnKey(ff.Language, ce.Call.CallerFQN)]; ok {
				if err := w.store.InsertEdge(callerID, ce.EntityID, "CALLER"); err != nil {
					return err
				}
				ce.callerResolved = true
			}
		}
		if !ce.calleeResolved {
			calleeID, ok := w.resolveName(ce.Call.CalleeFQN, ff)
			if !ok {
				w.warn.Add(diagnostics.Warning{
					Path:    path,
					Stage:   diagnostics.StageIndex,
					Reason:  diagnostics.WarnUnresolvedCallee,
					Message: "call to " + ce.Call.CalleeFQN + " did not resolve to a known symbol",
				})
				continue
			}
			if err := w.store.InsertEdge(ce.EntityID, calleeID, "CALLS"); err != nil {
				return err
			}
			ce.calleeResolved = true
		}
	}
	return nil
}

// RewireImportersOf returns every file path that imports target,
// per spec.md §4.10 step 4: "Files whose imports point at the
// just-updated file are re-wired at step 2 to catch newly available
// targets." Callers invoke Wire on each returned path.
func (w *Wirer) RewireImportersOf(target string) []string {
	set := w.importersOf[target]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// resolveName tries a small set of FQN candidates for a bare name used
// inside ff, in the order: the name itself (top-level global symbol),
// the importing file's own module path joined with the name (same- or
// enclosing-module member), each ancestor of the module path joined
// with the name, and finally each import whose imported names (or glob)
// match, joined with that import's resolved module path. First match
// wins (spec.md §9's documented "first match wins" limitation).
func (w *Wirer) resolveName(name string, ff *FileFacts) (int64, bool) {
	if name == "" {
		return 0, false
	}
	sep := ff.Language.Separator()

	if id, ok := w.fqnIndex[fqnKey(ff.Language, name)]; ok {
		return id, true
	}

	for prefix := ff.ModulePath; ; prefix = popSegment(prefix, sep) {
		if prefix != "" {
			if id, ok := w.fqnIndex[fqnKey(ff.Language, prefix+sep+name)]; ok {
				return id, true
			}
		}
		if prefix == "" {
			break
		}
	}

	for _, imp := range ff.Imports {
		if !importMatchesName(imp, name) {
			continue
		}
		targetModule := resolve.ModulePath(imp.ResolvedFileID, ff.Language)
		if imp.ResolvedFileID == "" {
			targetModule = strings.Join(imp.PathComponents, sep)
		}
		if id, ok := w.fqnIndex[fqnKey(ff.Language, joinNonEmpty(sep, targetModule, name))]; ok {
			return id, true
		}
	}
	return 0, false
}

func importMatchesName(imp types.Import, name string) bool {
	if imp.IsGlob {
		return true
	}
	for _, n := range imp.ImportedNames {
		if n == name {
			return true
		}
	}
	return false
}

func popSegment(modulePath, sep string) string {
	idx := strings.LastIndex(modulePath, sep)
	if idx < 0 {
		return ""
	}
	return modulePath[:idx]
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

func sortRefs(refs []RefEntry) {
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].Ref.Span.ByteStart != refs[j].Ref.Span.ByteStart {
			return refs[i].Ref.Span.ByteStart < refs[j].Ref.Span.ByteStart
		}
		return refs[i].Ref.Span.ByteEnd > refs[j].Ref.Span.ByteEnd
	})
}

func sortCalls(calls []CallEntry) {
	sort.SliceStable(calls, func(i, j int) bool {
		if calls[i].Call.Span.ByteStart != calls[j].Call.Span.ByteStart {
			return calls[i].Call.Span.ByteStart < calls[j].Call.Span.ByteStart
		}
		return calls[i].Call.Span.ByteEnd > calls[j].Call.Span.ByteEnd
	})
}
