package sqlitestore

import (
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
	dbPath := filepath.Join(t.TempDir(), "graph.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	id1, err := s.InsertNode("function", "foo", "a.rs", nil)
	require.NoError(t, err)
	id2, err := s.InsertNode("function", "bar", "a.rs", nil)
	require.NoError(t, err)
	assert.Less(t, id1, id2)

	byLabel, err := s.EntitiesByLabel("function")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{id1, id2}, byLabel)
}

func TestDeleteFileFactsRemovesEdgesAndNodes(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graph.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	fileID, err := s.InsertNode("file", "", "a.rs", nil)
	require.NoError(t, err)
	symID, err := s.InsertNode("function", "foo", "a.rs", nil)
	require.NoError(t, err)
	require.NoError(t, s.InsertEdge(fileID, symID, "DEFINES"))

	require.NoError(t, s.DeleteFileFacts("a.rs"))

	ids, err := s.EntityIDs("")
	require.NoError(t, err)
	assert.Empty(t, ids)

	neighbors, err := s.Neighbors(fileID, graphstore.DirectionOut, "")
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestKVRoundTripAndPrefixScan(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graph.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.KVPut("ast/a.rs/1", []byte("one")))
	require.NoError(t, s.KVPut("ast/a.rs/2", []byte("two")))
	require.NoError(t, s.KVPut("ast/b.rs/1", []byte("three")))

	scanned, err := s.KVPrefixScan("ast/a.rs/")
	require.NoError(t, err)
	assert.Len(t, scanned, 2)

	require.NoError(t, s.KVDelete("ast/a.rs/1"))
	_, ok, err := s.KVGet("ast/a.rs/1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenRejectsSchemaVersionMismatch(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graph.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(dbPath)
	require.NoError(t, err)
	defer s2.Close()
	_, err = s2.db.Exec(`UPDATE magellan_meta SET graph_schema_version = 999 WHERE id = 1`)
	require.NoError(t, err)
	require.NoError(t, s2.Close())

	_, err = Open(dbPath)
	require.Error(t, err)
	code, ok := magerr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, magerr.CodeDBCompatVersionMismatch, code)
}
