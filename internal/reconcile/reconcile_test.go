package reconcile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oldnordic/magellan-sub003/internal/config"
	"github.com/oldnordic/magellan-sub003/internal/diagnostics"
	"github.com/oldnordic/magellan-sub003/internal/filefilter"
	"github.com/oldnordic/magellan-sub003/internal/graphstore/nativestore"
	"github.com/oldnordic/magellan-sub003/internal/identity"
)

func newTestReconciler(t *testing.T, root string) *Reconciler {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "project.magellan.db")
	store, err := nativestore.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.Default(root, dbPath)
	filter, err := filefilter.New(root, false, filepath.Base(dbPath), nil, nil)
	require.NoError(t, err)

	return New(store, cfg, filter, diagnostics.NewSink(), diagnostics.NewWarningSink())
}

func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestReconcileNewFileReindexes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "shapes/circle.py", "def area(r):\n    return r * r\n")
	r := newTestReconciler(t, root)

	outcome, err := r.Reconcile(filepath.Join(root, "shapes/circle.py"), diagnostics.StageScan)
	require.NoError(t, err)
	assert.Equal(t, Reindexed, outcome.Kind)
	assert.Equal(t, 1, outcome.Counts["symbols"])
}

func TestReconcileUnchangedFileIsNoOp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "shapes/circle.py", "def area(r):\n    return r * r\n")
	r := newTestReconciler(t, root)
	path := filepath.Join(root, "shapes/circle.py")

	_, err := r.Reconcile(path, diagnostics.StageScan)
	require.NoError(t, err)

	outcome, err := r.Reconcile(path, diagnostics.StageScan)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, outcome.Kind)
}

func TestReconcileContentChangeReindexes(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "shapes/circle.py")
	writeFile(t, root, "shapes/circle.py", "def area(r):\n    return r * r\n")
	r := newTestReconciler(t, root)

	_, err := r.Reconcile(path, diagnostics.StageScan)
	require.NoError(t, err)

	writeFile(t, root, "shapes/circle.py", "def area(r):\n    return r * r\n\ndef circumference(r):\n    return 2 * r\n")
	outcome, err := r.Reconcile(path, diagnostics.StageScan)
	require.NoError(t, err)
	assert.Equal(t, Reindexed, outcome.Kind)
	assert.Equal(t, 2, outcome.Counts["symbols"])
}

func TestReconcileDeletedFileRemovesFacts(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "shapes/circle.py")
	writeFile(t, root, "shapes/circle.py", "def area(r):\n    return r * r\n")
	r := newTestReconciler(t, root)

	_, err := r.Reconcile(path, diagnostics.StageScan)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	outcome, err := r.Reconcile(path, diagnostics.StageScan)
	require.NoError(t, err)
	assert.Equal(t, Deleted, outcome.Kind)

	ids, err := r.Store.EntityIDs("")
	require.NoError(t, err)
	for _, id := range ids {
		n, ok, err := r.Store.GetNode(id)
		require.NoError(t, err)
		if ok {
			assert.NotEqual(t, "shapes/circle.py", n.FilePath)
		}
	}
}

func TestReconcileDeletedFileRemovesASTAndCFGKVFacts(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "lib.rs")
	writeFile(t, root, "lib.rs", "pub fn area(r: i32) -> i32 {\n    if r > 0 {\n        r * r\n    } else {\n        0\n    }\n}\n")
	r := newTestReconciler(t, root)

	_, err := r.Reconcile(path, diagnostics.StageScan)
	require.NoError(t, err)

	fileID := identity.FileID("lib.rs")
	_, ok, err := r.Store.KVGet("ast:" + fileID)
	require.NoError(t, err)
	assert.True(t, ok, "ast facts should exist after reindex")

	_, ok, err = r.Store.KVGet(cfgIndexKey(fileID))
	require.NoError(t, err)
	assert.True(t, ok, "cfg index should exist after reindex for a file with a function body")

	require.NoError(t, os.Remove(path))
	outcome, err := r.Reconcile(path, diagnostics.StageScan)
	require.NoError(t, err)
	assert.Equal(t, Deleted, outcome.Kind)

	_, ok, err = r.Store.KVGet("ast:" + fileID)
	require.NoError(t, err)
	assert.False(t, ok, "ast facts must not survive delete_file_facts")

	_, ok, err = r.Store.KVGet(cfgIndexKey(fileID))
	require.NoError(t, err)
	assert.False(t, ok, "cfg index must not survive delete_file_facts")
}

func TestReconcileUnsupportedExtensionIsSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "README.md", "# hello\n")
	r := newTestReconciler(t, root)

	outcome, err := r.Reconcile(filepath.Join(root, "README.md"), diagnostics.StageScan)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, outcome.Kind)
	assert.Equal(t, 1, r.Diag.Len())
	assert.Equal(t, diagnostics.UnsupportedLanguage, r.Diag.Sorted()[0].Reason)
}

func TestReconcileSymlinkEscapeRecordsPathEscapeDiagnostic(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "secret.rs")
	require.NoError(t, os.WriteFile(target, []byte("fn secret() {}"), 0o644))
	link := filepath.Join(root, "link.rs")
	require.NoError(t, os.Symlink(target, link))
	r := newTestReconciler(t, root)

	outcome, err := r.Reconcile(link, diagnostics.StageScan)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, outcome.Kind)
	require.Equal(t, 1, r.Diag.Len())
	assert.Equal(t, diagnostics.PathEscape, r.Diag.Sorted()[0].Reason)

	ids, err := r.Store.EntityIDs("")
	require.NoError(t, err)
	for _, id := range ids {
		n, ok, err := r.Store.GetNode(id)
		require.NoError(t, err)
		if ok {
			assert.NotEqual(t, "link.rs", n.FilePath)
		}
	}
}

func TestReconcileNonUtf8PathRecordsDistinctDiagnostic(t *testing.T) {
	root := t.TempDir()
	r := newTestReconciler(t, root)
	bad := string([]byte{0xff, 0xfe, 0x00})

	outcome, err := r.Reconcile(bad, diagnostics.StageScan)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, outcome.Kind)
	require.Equal(t, 1, r.Diag.Len())
	assert.Equal(t, diagnostics.NonUtf8Path, r.Diag.Sorted()[0].Reason)
}

func TestReconcileWiresCrossFileImport(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "shapes/circle.py", "def area(r):\n    return r * r\n")
	writeFile(t, root, "main.py", "from shapes.circle import area\n\ndef run():\n    area(1)\n")
	r := newTestReconciler(t, root)

	_, err := r.Reconcile(filepath.Join(root, "shapes/circle.py"), diagnostics.StageScan)
	require.NoError(t, err)
	_, err = r.Reconcile(filepath.Join(root, "main.py"), diagnostics.StageScan)
	require.NoError(t, err)

	assert.Equal(t, 0, r.Warn.Len())
}
