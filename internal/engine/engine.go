// Package engine wires the Reconciler (C7), the Watch Pipeline (C8), and
// a sorted baseline walk together into the two run modes spec.md §6
// names: a one-shot scan and a long-running watch. It is the single
// cooperative indexing thread spec.md §5 describes; concurrency is
// bounded explicitly with a size-1 golang.org/x/sync/semaphore rather
// than left as an implicit "don't spawn goroutines" convention, so the
// "exactly two threads" contract (watcher thread + this one) is visible
// in the code, not just in comments.
//
// Grounded on standardbeagle-lci's cmd/lci/main.go orchestration shape
// (open store, build indexer, run, close store on every exit path) and
// internal/indexing's watcher-then-scan startup ordering.
package engine

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/oldnordic/magellan-sub003/internal/config"
	"github.com/oldnordic/magellan-sub003/internal/diagnostics"
	"github.com/oldnordic/magellan-sub003/internal/filefilter"
	"github.com/oldnordic/magellan-sub003/internal/graphstore"
	"github.com/oldnordic/magellan-sub003/internal/graphstore/nativestore"
	"github.com/oldnordic/magellan-sub003/internal/graphstore/sqlitestore"
	"github.com/oldnordic/magellan-sub003/internal/identity"
	"github.com/oldnordic/magellan-sub003/internal/magerr"
	"github.com/oldnordic/magellan-sub003/internal/reconcile"
	"github.com/oldnordic/magellan-sub003/internal/watch"
)

// Backend selects which graphstore.Store implementation Open constructs.
type Backend string

const (
	BackendNative Backend = "native"
	BackendSQLite Backend = "sqlite"
)

// batchInterval bounds how long the watch loop blocks between shutdown
// checks when no batch is ready (spec.md §5's "short timeout" rule).
const batchInterval = 250 * time.Millisecond

// Stats accumulates per-outcome counts across a run, for the data payload
// an external wrapper puts in the envelope.
type Stats struct {
	FilesScanned   int            `json:"files_scanned"`
	FilesReindexed int            `json:"files_reindexed"`
	FilesDeleted   int            `json:"files_deleted"`
	FilesUnchanged int            `json:"files_unchanged"`
	FactCounts     map[string]int `json:"fact_counts"`
}

func newStats() Stats {
	return Stats{FactCounts: make(map[string]int)}
}

func (s *Stats) add(outcome reconcile.Outcome) {
	s.FilesScanned++
	switch outcome.Kind {
	case reconcile.Reindexed:
		s.FilesReindexed++
		for k, v := range outcome.Counts {
			s.FactCounts[k] += v
		}
	case reconcile.Deleted:
		s.FilesDeleted++
	default:
		s.FilesUnchanged++
	}
}

// Engine owns the open store, the File Filter, diagnostics/warning sinks,
// the Reconciler, and (once Watch is called) the Watch Pipeline.
type Engine struct {
	ExecutionID string
	Cfg         *config.Config
	Store       graphstore.Store
	Filter      *filefilter.Filter
	Diag        *diagnostics.Sink
	Warn        *diagnostics.WarningSink
	Reconciler  *reconcile.Reconciler

	sem *semaphore.Weighted
}

// Open constructs every piece an engine run needs: the store (per
// backend), the File Filter (self-ignoring its own db file, spec.md
// §4.8), and the Reconciler bound to both.
func Open(cfg *config.Config, backend Backend) (*Engine, error) {
	store, err := openStore(backend, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	filter, err := filefilter.New(cfg.Project.Root, cfg.Index.RespectGitignore, filepath.Base(cfg.DBPath), cfg.Include, cfg.Exclude)
	if err != nil {
		store.Close()
		return nil, err
	}

	diag := diagnostics.NewSink()
	warn := diagnostics.NewWarningSink()
	rec := reconcile.New(store, cfg, filter, diag, warn)

	return &Engine{
		ExecutionID: identity.ExecutionID(),
		Cfg:         cfg,
		Store:       store,
		Filter:      filter,
		Diag:        diag,
		Warn:        warn,
		Reconciler:  rec,
		sem:         semaphore.NewWeighted(1),
	}, nil
}

func openStore(backend Backend, dbPath string) (graphstore.Store, error) {
	switch backend {
	case BackendSQLite:
		return sqlitestore.Open(dbPath)
	default:
		return nativestore.Open(dbPath)
	}
}

// Close releases the store. Safe to call exactly once, on every exit
// path (spec.md §5's "resource acquisition... released on clean
// shutdown").
func (e *Engine) Close() error {
	return e.Store.Close()
}

// Partial reports whether any diagnostic was recorded this run, the
// envelope's `partial` flag (spec.md §6).
func (e *Engine) Partial() bool {
	return e.Diag.Len() > 0
}

// Scan performs the one-shot baseline index: a sorted walk of the
// project root, reconciling every path in lexicographic order on the
// single cooperative thread. The semaphore has weight one, so despite
// being dispatched through an errgroup, at most one reconcile runs at a
// time — this makes the "single thread" contract an enforced invariant
// rather than an assumption about how the loop happens to be written.
func (e *Engine) Scan(ctx context.Context) (Stats, error) {
	paths, err := e.sortedWalk()
	if err != nil {
		return Stats{}, err
	}

	stats := newStats()
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range paths {
		p := p
		if err := e.sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer e.sem.Release(1)
			outcome, err := e.Reconciler.Reconcile(p, diagnostics.StageScan)
			if err != nil {
				return err
			}
			stats.add(outcome)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

// sortedWalk returns every regular file under the project root in
// lexicographic order, never descending into a directory the File
// Filter would skip (spec.md §4.2's internal-ignore/gitignore tiers
// double as "don't walk this subtree" for the baseline scan).
// Individual file admission is left entirely to Reconcile so every
// skip still produces the same diagnostic it would during a watch
// batch.
func (e *Engine) sortedWalk() ([]string, error) {
	root := e.Cfg.Project.Root
	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if p == root {
			return nil
		}
		rel, rerr := filepath.Rel(root, p)
		if rerr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if e.Filter.ShouldSkip(rel, true).Skip {
				return filepath.SkipDir
			}
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	sort.Strings(paths)
	return paths, err
}

// Watch runs the baseline scan, then hands off to the Watch Pipeline
// (spec.md §4.8's "baseline-then-drain": the watcher is started before
// the scan so nothing raised mid-scan is lost, then any events buffered
// during the scan are drained once before entering steady state). It
// blocks until ctx is canceled, at which point it stops the pipeline and
// returns.
func (e *Engine) Watch(ctx context.Context) (Stats, error) {
	pipeline, err := watch.New(e.Cfg.Project.Root, time.Duration(e.Cfg.Index.WatchDebounceMs)*time.Millisecond, e.Filter)
	if err != nil {
		return Stats{}, err
	}
	if err := pipeline.Start(); err != nil {
		return Stats{}, err
	}
	defer pipeline.Stop()

	stats, err := e.Scan(ctx)
	if err != nil {
		return stats, err
	}

	e.reconcileBatch(pipeline.DrainBatch(), &stats)

	for {
		if ctx.Err() != nil || pipeline.ShuttingDown() {
			return stats, nil
		}
		if pipeline.WaitForBatch(batchInterval) {
			e.reconcileBatch(pipeline.DrainBatch(), &stats)
		}
	}
}

func (e *Engine) reconcileBatch(batch []string, stats *Stats) {
	root := e.Cfg.Project.Root
	for _, relPath := range batch {
		outcome, err := e.Reconciler.Reconcile(filepath.Join(root, relPath), diagnostics.StageWatch)
		if err != nil {
			reason := diagnostics.IoError
			if code, ok := magerr.CodeOf(err); ok {
				reason = diagnostics.ReasonForCode(code)
			}
			e.Diag.Add(diagnostics.Record{
				Path:    relPath,
				Stage:   diagnostics.StageWatch,
				Reason:  reason,
				Message: err.Error(),
			})
			continue
		}
		stats.add(outcome)
	}
}
