package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/oldnordic/magellan-sub003/internal/filefilter"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestFilter(t *testing.T, root string) *filefilter.Filter {
	t.Helper()
	f, err := filefilter.New(root, false, "project.magellan.db", nil, nil)
	require.NoError(t, err)
	return f
}

func TestPipelineDetectsNewFile(t *testing.T) {
	root := t.TempDir()
	p, err := New(root, 50*time.Millisecond, newTestFilter(t, root))
	require.NoError(t, err)
	require.NoError(t, p.Start())
	defer p.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("x = 1\n"), 0o644))

	require.True(t, p.WaitForBatch(2*time.Second))
	batch := p.DrainBatch()
	assert.Contains(t, batch, "a.py")
}

func TestPipelineCoalescesRapidEvents(t *testing.T) {
	root := t.TempDir()
	p, err := New(root, 100*time.Millisecond, newTestFilter(t, root))
	require.NoError(t, err)
	require.NoError(t, p.Start())
	defer p.Stop()

	path := filepath.Join(root, "a.py")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	require.True(t, p.WaitForBatch(2*time.Second))
	batch := p.DrainBatch()
	assert.Equal(t, []string{"a.py"}, batch)

	assert.False(t, p.WaitForBatch(200*time.Millisecond))
}

func TestDrainBatchReturnsSortedPaths(t *testing.T) {
	root := t.TempDir()
	p, err := New(root, 50*time.Millisecond, newTestFilter(t, root))
	require.NoError(t, err)
	require.NoError(t, p.Start())
	defer p.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, "zzz.py"), []byte("x = 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "aaa.py"), []byte("x = 1\n"), 0o644))

	require.True(t, p.WaitForBatch(2*time.Second))
	batch := p.DrainBatch()
	require.Len(t, batch, 2)
	assert.True(t, batch[0] < batch[1])
}

func TestStopJoinsWatcherGoroutine(t *testing.T) {
	root := t.TempDir()
	p, err := New(root, 50*time.Millisecond, newTestFilter(t, root))
	require.NoError(t, err)
	require.NoError(t, p.Start())

	p.Stop()
	assert.True(t, p.ShuttingDown())
}
