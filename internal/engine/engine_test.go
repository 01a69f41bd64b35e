package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oldnordic/magellan-sub003/internal/config"
)

func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestScanIndexesEveryAdmittedFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "shapes/circle.py", "def area(r):\n    return r * r\n")
	writeFile(t, root, "shapes/square.py", "def area(s):\n    return s * s\n")
	writeFile(t, root, "README.md", "# not indexed\n")

	cfg := config.Default(root, filepath.Join(t.TempDir(), "project.magellan.db"))
	e, err := Open(cfg, BackendNative)
	require.NoError(t, err)
	defer e.Close()

	stats, err := e.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesReindexed)
	assert.Equal(t, 2, stats.FactCounts["symbols"])
	assert.True(t, e.Partial()) // README.md produced an UnsupportedLanguage diagnostic
}

func TestScanIsIdempotentAcrossRuns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "def f():\n    pass\n")

	dbPath := filepath.Join(t.TempDir(), "project.magellan.db")
	cfg := config.Default(root, dbPath)
	e, err := Open(cfg, BackendNative)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Scan(context.Background())
	require.NoError(t, err)
	stats, err := e.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FilesReindexed)
	assert.Equal(t, 1, stats.FilesUnchanged)
}

func TestWatchPicksUpFileCreatedAfterBaselineScan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "def f():\n    pass\n")

	cfg := config.Default(root, filepath.Join(t.TempDir(), "project.magellan.db"))
	cfg.Index.WatchDebounceMs = 50
	e, err := Open(cfg, BackendNative)
	require.NoError(t, err)
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		stats Stats
		err   error
	}
	resultCh := make(chan result, 1)
	go func() {
		stats, err := e.Watch(ctx)
		resultCh <- result{stats, err}
	}()

	// Give the baseline scan time to finish and the watcher to arm before
	// writing the second file, mirroring "baseline-then-drain" ordering.
	time.Sleep(200 * time.Millisecond)
	bPath := filepath.Join(root, "b.py")
	if err := os.WriteFile(bPath, []byte("def g():\n    pass\n"), 0o644); err != nil {
		t.Fatalf("write b.py: %v", err)
	}

	time.Sleep(500 * time.Millisecond)
	cancel()

	select {
	case res := <-resultCh:
		require.NoError(t, res.err)
		// a.py from the baseline scan plus b.py from the watch batch.
		assert.GreaterOrEqual(t, res.stats.FilesReindexed, 2)
	case <-time.After(3 * time.Second):
		t.Fatal("Watch did not return after context cancellation")
	}
}
