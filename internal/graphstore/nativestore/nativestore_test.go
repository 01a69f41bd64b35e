package nativestore

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/oldnordic/magellan-sub003/internal/graphstore"
	"github.com/oldnordic/magellan-sub003/internal/magerr"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestInsertNodeAssignsMonotonicIDsAndLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.log")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	id1, err := s.InsertNode("function", "foo", "a.py", nil)
	require.NoError(t, err)
	id2, err := s.InsertNode("function", "bar", "a.py", nil)
	require.NoError(t, err)
	assert.Less(t, id1, id2)

	byLabel, err := s.EntitiesByLabel("function")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{id1, id2}, byLabel)
}

func TestDeleteFileFactsRemovesEdgesAndNodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.log")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	fileID, err := s.InsertNode("file", "", "a.py", nil)
	require.NoError(t, err)
	symID, err := s.InsertNode("function", "foo", "a.py", nil)
	require.NoError(t, err)
	require.NoError(t, s.InsertEdge(fileID, symID, "DEFINES"))

	require.NoError(t, s.DeleteFileFacts("a.py"))

	ids, err := s.EntityIDs("")
	require.NoError(t, err)
	assert.Empty(t, ids)

	neighbors, err := s.Neighbors(fileID, graphstore.DirectionOut, "")
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestReplayRebuildsSnapshotAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.log")
	s, err := Open(path)
	require.NoError(t, err)

	id, err := s.InsertNode("function", "foo", "a.py", nil)
	require.NoError(t, err)
	require.NoError(t, s.KVPut("k", []byte("v")))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	ids, err := reopened.EntityIDs("function")
	require.NoError(t, err)
	assert.Equal(t, []int64{id}, ids)

	v, ok, err := reopened.KVGet("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestOpenRejectsSchemaVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.log")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	buf, err := encodeRecord(logRecord{Kind: recMeta, Meta: &metaRecord{
		MagellanSchemaVersion: graphstore.SchemaVersion,
		GraphSchemaVersion:    999,
		CreatedAt:             1,
	}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	before, err := os.ReadFile(path)
	require.NoError(t, err)
	beforeSum := sha256.Sum256(before)

	_, err = Open(path)
	require.Error(t, err)
	code, ok := magerr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, magerr.CodeDBCompatVersionMismatch, code)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, beforeSum, sha256.Sum256(after), "a failed preflight must never alter the log file")
}

func TestCodeChunksMirroredToKVAndSweptOnDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.log")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.InsertNode("file", "", "src:odd.rs", nil)
	require.NoError(t, err)
	require.NoError(t, s.InsertCodeChunk("src:odd.rs", 4, 20, []byte("fn odd() {}")))

	v, ok, err := s.KVGet("chunk:src::odd.rs:4:20")
	require.NoError(t, err)
	require.True(t, ok, "chunk must be mirrored under the escaped-path KV key")
	assert.Equal(t, []byte("fn odd() {}"), v)

	require.NoError(t, s.DeleteFileFacts("src:odd.rs"))
	_, ok, err = s.KVGet("chunk:src::odd.rs:4:20")
	require.NoError(t, err)
	assert.False(t, ok, "chunk KV mirror must be swept with its file")
}

func TestChunkKVMirrorSurvivesReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.log")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.InsertCodeChunk("a.py", 0, 3, []byte("pas")))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.KVGet("chunk:a.py:0:3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("pas"), v)
}

func TestSnapshotIsolationAcrossMutation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.log")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	fileID, err := s.InsertNode("file", "", "a.py", nil)
	require.NoError(t, err)
	before := s.snap()

	_, err = s.InsertNode("function", "foo", "a.py", nil)
	require.NoError(t, err)

	assert.Len(t, before.nodes, 1)
	_, stillOnlyFile := before.nodes[fileID]
	assert.True(t, stillOnlyFile)
}
