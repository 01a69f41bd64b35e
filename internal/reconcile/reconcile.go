// Package reconcile implements the Reconciler (spec.md §4.7, component
// C7): the single per-file operation that decides delete/skip/reindex
// from filesystem state and content hash, and atomically replaces a
// file's derived facts. Grounded on standardbeagle-lci's per-file
// incremental re-index path in internal/indexing (reconcile never
// triggers a full workspace rescan of its own accord), adapted here
// into the explicit three-outcome contract spec.md names.
package reconcile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oldnordic/magellan-sub003/internal/config"
	"github.com/oldnordic/magellan-sub003/internal/diagnostics"
	"github.com/oldnordic/magellan-sub003/internal/extract"
	"github.com/oldnordic/magellan-sub003/internal/filefilter"
	"github.com/oldnordic/magellan-sub003/internal/graphstore"
	"github.com/oldnordic/magellan-sub003/internal/identity"
	"github.com/oldnordic/magellan-sub003/internal/magerr"
	"github.com/oldnordic/magellan-sub003/internal/pathgate"
	"github.com/oldnordic/magellan-sub003/internal/resolve"
	"github.com/oldnordic/magellan-sub003/internal/types"
	"github.com/oldnordic/magellan-sub003/internal/wire"
)

// OutcomeKind is the closed three-way result of Reconcile (spec.md §4.7).
type OutcomeKind int

const (
	Unchanged OutcomeKind = iota
	Deleted
	Reindexed
)

func (k OutcomeKind) String() string {
	switch k {
	case Deleted:
		return "Deleted"
	case Reindexed:
		return "Reindexed"
	default:
		return "Unchanged"
	}
}

// Outcome is what Reconcile decided for one path, with per-kind counts
// when the file was reindexed.
type Outcome struct {
	Kind   OutcomeKind
	Counts map[string]int
}

// fileRecord is the Reconciler's own in-memory cache of what is
// currently indexed for a path, used to short-circuit unchanged files
// without a store round trip (spec.md §4.7 step 5).
type fileRecord struct {
	EntityID    int64
	ContentHash [32]byte
	Language    types.Language
}

// Reconciler drives spec.md §4.7's per-file algorithm against one
// graphstore.Store, one Module Resolver index, and one Cross-file
// Wirer. It is owned exclusively by the single cooperative indexing
// thread (spec.md §5); none of its state is guarded by a mutex.
type Reconciler struct {
	Store  graphstore.Store
	Cfg    *config.Config
	Filter *filefilter.Filter
	Diag   *diagnostics.Sink
	Warn   *diagnostics.WarningSink
	Module *resolve.Index
	Wirer  *wire.Wirer

	files map[string]*fileRecord
}

// New constructs a Reconciler over an already-open store and filter.
func New(store graphstore.Store, cfg *config.Config, filter *filefilter.Filter, diag *diagnostics.Sink, warn *diagnostics.WarningSink) *Reconciler {
	return &Reconciler{
		Store:  store,
		Cfg:    cfg,
		Filter: filter,
		Diag:   diag,
		Warn:   warn,
		Module: resolve.New(),
		Wirer:  wire.New(store, warn),
		files:  make(map[string]*fileRecord),
	}
}

// reasonFor maps err to its diagnostic SkipReason via the magerr.Code it
// carries (diagnostics.ReasonForCode), falling back to the generic
// IoError reason for errors with no attached code.
func reasonFor(err error) diagnostics.SkipReason {
	if code, ok := magerr.CodeOf(err); ok {
		return diagnostics.ReasonForCode(code)
	}
	return diagnostics.IoError
}

// Reconcile runs spec.md §4.7's algorithm for rawPath (absolute or
// root-relative). stage identifies the pipeline stage for diagnostics
// (Scan or Watch).
func (r *Reconciler) Reconcile(rawPath string, stage diagnostics.Stage) (Outcome, error) {
	gated := pathgate.Gate(rawPath, r.Cfg.Project.Root)
	if gated.Err != nil {
		r.Diag.Add(diagnostics.Record{Path: rawPath, Stage: stage, Reason: reasonFor(gated.Err), Message: gated.Err.Error()})
		return Outcome{Kind: Unchanged}, nil
	}
	relPath := gated.Canonical

	absPath := filepath.Join(r.Cfg.Project.Root, relPath)
	info, statErr := os.Lstat(absPath)
	exists := statErr == nil && !info.IsDir()

	decision := r.Filter.ShouldSkip(relPath, statErr == nil && info.IsDir())
	if decision.Skip {
		r.Diag.Add(diagnostics.Record{Path: relPath, Stage: stage, Reason: decision.Reason, Message: "skipped by file filter"})
		if _, had := r.files[relPath]; had {
			if err := r.deleteFile(relPath); err != nil {
				return Outcome{}, err
			}
		}
		return Outcome{Kind: Unchanged}, nil
	}

	if !exists {
		if _, had := r.files[relPath]; had {
			if err := r.deleteFile(relPath); err != nil {
				return Outcome{}, err
			}
			return Outcome{Kind: Deleted}, nil
		}
		return Outcome{Kind: Unchanged}, nil
	}

	if filefilter.TooLarge(info.Size(), r.Cfg.Index.MaxFileSize) {
		r.Diag.Add(diagnostics.Record{Path: relPath, Stage: stage, Reason: diagnostics.TooLarge, Message: "file exceeds max size"})
		if _, had := r.files[relPath]; had {
			if err := r.deleteFile(relPath); err != nil {
				return Outcome{}, err
			}
		}
		return Outcome{Kind: Unchanged}, nil
	}

	lang := types.LanguageForExtension(filepath.Ext(relPath))
	if lang == types.LangUnknown {
		r.Diag.Add(diagnostics.Record{Path: relPath, Stage: stage, Reason: diagnostics.UnsupportedLanguage, Message: "no extractor for this extension"})
		if _, had := r.files[relPath]; had {
			if err := r.deleteFile(relPath); err != nil {
				return Outcome{}, err
			}
		}
		return Outcome{Kind: Unchanged}, nil
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		r.Diag.Add(diagnostics.Record{Path: relPath, Stage: stage, Reason: reasonFor(err), Message: err.Error()})
		return Outcome{Kind: Unchanged}, nil
	}

	hash := identity.ContentHash(content)
	if existing, ok := r.files[relPath]; ok && existing.ContentHash == hash {
		return Outcome{Kind: Unchanged}, nil
	}

	counts, err := r.reindex(relPath, lang, content, hash, stage)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: Reindexed, Counts: counts}, nil
}

func (r *Reconciler) deleteFile(relPath string) error {
	if err := r.Store.DeleteFileFacts(relPath); err != nil {
		return err
	}
	if err := r.deleteKVFacts(relPath); err != nil {
		return err
	}
	r.Module.Remove(relPath)
	r.Wirer.RemoveFile(relPath)
	delete(r.files, relPath)
	return nil
}

// deleteKVFacts removes the AstNode and CfgBlock KV-side facts
// DeleteFileFacts cannot reach (spec.md §4.6 stores ast:/cfg: entries in
// the KV map, not as graph nodes, so the graph store's file_path-keyed
// node scan never sees them). cfgIndexKey's recorded key list is the
// only way to find a file's cfg: entries, since cfg:{function_id} is
// keyed by (language, fqn), not by path.
func (r *Reconciler) deleteKVFacts(relPath string) error {
	fileID := identity.FileID(relPath)
	if err := r.Store.KVDelete("ast:" + fileID); err != nil {
		return err
	}
	indexKey := cfgIndexKey(fileID)
	raw, ok, err := r.Store.KVGet(indexKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var cfgKeys []string
	if err := json.Unmarshal(raw, &cfgKeys); err != nil {
		return err
	}
	for _, k := range cfgKeys {
		if err := r.Store.KVDelete(k); err != nil {
			return err
		}
	}
	return r.Store.KVDelete(indexKey)
}

func cfgIndexKey(fileID string) string {
	return "cfgindex:" + fileID
}

// reindex implements spec.md §4.7 steps 6-9: delete, extract, insert,
// register, and signal downstream wiring.
func (r *Reconciler) reindex(relPath string, lang types.Language, content []byte, hash [32]byte, stage diagnostics.Stage) (map[string]int, error) {
	if err := r.deleteFile(relPath); err != nil {
		return nil, err
	}

	file := &types.File{
		ID:            identity.FileID(relPath),
		Path:          relPath,
		ContentHash:   hash,
		Language:      lang,
		LastIndexedAt: time.Now().Unix(),
	}

	result, err := extract.For(file, content)
	if err != nil {
		r.Diag.Add(diagnostics.Record{Path: relPath, Stage: stage, Reason: reasonFor(err), Message: "extraction failed: " + err.Error()})
		return map[string]int{}, nil
	}
	for _, fqn := range result.Collisions {
		r.Warn.Add(diagnostics.Warning{Path: relPath, Stage: stage, Reason: diagnostics.WarnFQNCollision, Message: "duplicate fqn within file: " + fqn})
	}

	fileData, _ := json.Marshal(file)
	fileEntityID, err := r.Store.InsertNode("file", "", relPath, fileData)
	if err != nil {
		return nil, err
	}
	if err := r.Store.AddLabel(fileEntityID, "lang:"+string(lang)); err != nil {
		return nil, err
	}

	r.files[relPath] = &fileRecord{EntityID: fileEntityID, ContentHash: hash, Language: lang}
	modulePath := resolve.ModulePath(relPath, lang)
	r.Module.Put(relPath, relPath, lang)

	symbolEntries := make([]wire.SymbolEntry, 0, len(result.Symbols))
	for _, sym := range result.Symbols {
		data, _ := json.Marshal(sym)
		id, err := r.Store.InsertNode("symbol", sym.Name, relPath, data)
		if err != nil {
			return nil, err
		}
		if err := r.Store.AddLabel(id, sym.Kind.String()); err != nil {
			return nil, err
		}
		if err := r.Store.AddLabel(id, "lang:"+string(lang)); err != nil {
			return nil, err
		}
		if err := r.Store.InsertEdge(fileEntityID, id, "DEFINES"); err != nil {
			return nil, err
		}
		symbolEntries = append(symbolEntries, wire.SymbolEntry{EntityID: id, Symbol: sym})
	}

	refEntries := make([]wire.RefEntry, 0, len(result.References))
	for _, ref := range result.References {
		data, _ := json.Marshal(ref)
		id, err := r.Store.InsertNode("reference", ref.Name, relPath, data)
		if err != nil {
			return nil, err
		}
		refEntries = append(refEntries, wire.RefEntry{EntityID: id, Ref: ref})
	}

	callEntries := make([]wire.CallEntry, 0, len(result.Calls))
	for _, call := range result.Calls {
		data, _ := json.Marshal(call)
		id, err := r.Store.InsertNode("call", call.CalleeFQN, relPath, data)
		if err != nil {
			return nil, err
		}
		callEntries = append(callEntries, wire.CallEntry{EntityID: id, Call: call})
	}

	imports := make([]types.Import, 0, len(result.Imports))
	for _, imp := range result.Imports {
		if target, ok := r.Module.Resolve(imp, modulePath, lang.Separator()); ok {
			imp.ResolvedFileID = target
		}
		data, _ := json.Marshal(imp)
		if _, err := r.Store.InsertNode("import", joinImportName(imp), relPath, data); err != nil {
			return nil, err
		}
		if imp.ResolvedFileID != "" {
			if target, had := r.files[imp.ResolvedFileID]; had {
				if err := r.Store.InsertEdge(fileEntityID, target.EntityID, "IMPORTS"); err != nil {
					return nil, err
				}
			}
		} else {
			r.Warn.Add(diagnostics.Warning{Path: relPath, Stage: stage, Reason: diagnostics.WarnUnresolvedImport, Message: "import did not resolve to an indexed file"})
		}
		imports = append(imports, imp)
	}

	for _, c := range result.Chunks {
		if err := r.Store.InsertCodeChunk(relPath, c.ByteStart, c.ByteEnd, c.Source); err != nil {
			return nil, err
		}
	}

	astData, _ := json.Marshal(result.AstNodes)
	if err := r.Store.KVPut("ast:"+file.ID, astData); err != nil {
		return nil, err
	}
	cfgByFn := groupCfgByFunction(result.CfgBlocks)
	cfgKeys := make([]string, 0, len(cfgByFn))
	for fn, blocks := range cfgByFn {
		key := "cfg:" + cfgFunctionID(lang, fn)
		data, _ := json.Marshal(blocks)
		if err := r.Store.KVPut(key, data); err != nil {
			return nil, err
		}
		cfgKeys = append(cfgKeys, key)
	}
	if len(cfgKeys) > 0 {
		sort.Strings(cfgKeys)
		indexData, _ := json.Marshal(cfgKeys)
		if err := r.Store.KVPut(cfgIndexKey(file.ID), indexData); err != nil {
			return nil, err
		}
	}

	r.Wirer.IndexFile(&wire.FileFacts{
		Path:       relPath,
		Language:   lang,
		ModulePath: modulePath,
		Imports:    imports,
		Symbols:    symbolEntries,
		References: refEntries,
		Calls:      callEntries,
	})

	if err := r.Wirer.Wire(relPath); err != nil {
		return nil, err
	}
	for _, importer := range r.Wirer.RewireImportersOf(relPath) {
		if err := r.Wirer.Wire(importer); err != nil {
			return nil, err
		}
	}

	return map[string]int{
		"symbols":    len(result.Symbols),
		"references": len(result.References),
		"calls":      len(result.Calls),
		"imports":    len(result.Imports),
		"ast_nodes":  len(result.AstNodes),
		"cfg_blocks": len(result.CfgBlocks),
		"chunks":     len(result.Chunks),
	}, nil
}

func joinImportName(imp types.Import) string {
	if len(imp.ImportedNames) > 0 {
		return imp.ImportedNames[0]
	}
	if len(imp.PathComponents) > 0 {
		return imp.PathComponents[len(imp.PathComponents)-1]
	}
	return ""
}

func groupCfgByFunction(blocks []types.CfgBlock) map[string][]types.CfgBlock {
	out := make(map[string][]types.CfgBlock)
	for _, b := range blocks {
		out[b.FunctionFQN] = append(out[b.FunctionFQN], b)
	}
	return out
}

func cfgFunctionID(lang types.Language, fqn string) string {
	return identity.SymbolID(string(lang), fqn, "cfg")
}
