// Package watch implements the Watch Pipeline (spec.md §4.8, component
// C8): a dedicated watcher goroutine that coalesces filesystem events
// into debounced, lexicographically sorted batches behind a shared,
// mutex-guarded dirty-path set and a capacity-1 wakeup channel.
//
// Grounded on standardbeagle-lci's internal/indexing/watcher.go
// (fsnotify.Watcher, recursive directory watch registration, a
// debounce timer reset on every event) and debounced_rebuilder.go's
// coalescing idea, redesigned around spec.md §4.8's exact contract: the
// dirty set itself is the unit of coalescing (a path is stored once per
// batch) rather than the teacher's per-event-type bucket, and delivery
// is a capacity-1 channel with a non-blocking send instead of the
// teacher's direct callback invocation, so a consumer that is midway
// through a baseline scan never loses a signal.
package watch

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/oldnordic/magellan-sub003/internal/filefilter"
)

// Pipeline owns the watcher goroutine and the shared dirty-path set.
// The main indexing thread is the only consumer of DrainBatch/WaitForBatch;
// the watcher goroutine is the only producer. Per spec.md §5, no other
// goroutine touches either side.
type Pipeline struct {
	root     string
	debounce time.Duration
	filter   *filefilter.Filter

	watcher *fsnotify.Watcher
	wake    chan struct{} // capacity 1, per spec.md §4.8's backpressure rule

	mu    sync.Mutex
	dirty map[string]bool
	timer *time.Timer

	shutdown atomic.Bool
	done     chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Pipeline watching root with the given debounce
// window (spec.md's default is 500ms, config.DefaultWatchDebounceMs).
func New(root string, debounce time.Duration, filter *filefilter.Filter) (*Pipeline, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		root:     root,
		debounce: debounce,
		filter:   filter,
		watcher:  w,
		wake:     make(chan struct{}, 1),
		dirty:    make(map[string]bool),
		done:     make(chan struct{}),
	}
	return p, nil
}

// Start begins buffering events into the dirty set immediately. Per
// spec.md §4.8's "baseline-then-drain" rule, the caller must call Start
// before running the initial scan so no event raised during the scan
// is ever lost.
func (p *Pipeline) Start() error {
	if err := p.addWatchesRecursive(p.root); err != nil {
		return err
	}
	p.wg.Add(1)
	go p.run()
	return nil
}

// Stop sets the monotonic shutdown flag and joins the watcher
// goroutine. No new work is started after the flag is observed; any
// per-file reconcile already in flight on the main thread runs to
// completion regardless (spec.md §5's cancellation contract).
func (p *Pipeline) Stop() {
	p.shutdown.Store(true)
	close(p.done)
	p.watcher.Close()
	p.wg.Wait()
}

// ShuttingDown reports whether Stop has been called, for the main
// loop's batch-boundary check (spec.md §5).
func (p *Pipeline) ShuttingDown() bool {
	return p.shutdown.Load()
}

// WaitForBatch blocks until either a debounced batch is ready or
// timeout elapses, returning false in the latter case so the caller
// can re-check the shutdown flag (spec.md §5's "batch receive uses a
// short timeout so shutdown is responsive").
func (p *Pipeline) WaitForBatch(timeout time.Duration) bool {
	select {
	case <-p.wake:
		return true
	case <-time.After(timeout):
		return false
	}
}

// DrainBatch atomically swaps out the current dirty set and returns its
// paths in lexicographic order on canonical path (spec.md §4.8's
// ordering guarantee). Safe to call even when WaitForBatch returned
// false, e.g. once after the baseline scan completes to pick up
// anything buffered while the scan was running.
func (p *Pipeline) DrainBatch() []string {
	p.mu.Lock()
	dirty := p.dirty
	p.dirty = make(map[string]bool)
	p.mu.Unlock()

	if len(dirty) == 0 {
		return nil
	}
	out := make([]string, 0, len(dirty))
	for path := range dirty {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

func (p *Pipeline) markDirty(path string) {
	p.mu.Lock()
	p.dirty[path] = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.debounce, p.signalReady)
	p.mu.Unlock()
}

// signalReady fires once a debounce window has elapsed with no further
// events. It holds the same mutex DrainBatch takes so a batch already
// drained directly (e.g. right after the baseline scan) cannot be
// signaled again empty, and a batch forming concurrently with a drain
// is never signaled before its paths are visible to the next drain.
func (p *Pipeline) signalReady() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.dirty) == 0 {
		return
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pipeline) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			p.handleEvent(event)
		case _, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// handleEvent reduces create/write/remove/rename to "path is dirty"
// (spec.md §4.8's event semantics — the actual delete/skip/reindex
// decision is the Reconciler's, from current filesystem state, never
// from the event type itself).
func (p *Pipeline) handleEvent(event fsnotify.Event) {
	if p.shutdown.Load() {
		return
	}
	path := event.Name

	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			_ = p.addWatchesRecursive(path)
		}
		return
	}

	rel, err := filepath.Rel(p.root, path)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if p.filter.ShouldSkip(rel, false).Skip {
		return
	}
	p.markDirty(rel)
}

// addWatchesRecursive walks dir adding an fsnotify watch on every
// subdirectory not covered by the internal-ignore set (spec.md §4.8's
// self-change suppression extends here too: the watcher never arms a
// watch on the database file's own directory churn beyond what the
// filter already screens at event time).
func (p *Pipeline) addWatchesRecursive(dir string) error {
	visited := make(map[string]bool)
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil
		}
		if visited[real] {
			return filepath.SkipDir
		}
		visited[real] = true

		rel, err := filepath.Rel(p.root, path)
		if err == nil && rel != "." {
			if p.filter.ShouldSkip(filepath.ToSlash(rel), true).Skip {
				return filepath.SkipDir
			}
		}
		if err := p.watcher.Add(path); err != nil {
			return nil
		}
		return nil
	})
}
