package wire

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oldnordic/magellan-sub003/internal/diagnostics"
	"github.com/oldnordic/magellan-sub003/internal/graphstore/nativestore"
	"github.com/oldnordic/magellan-sub003/internal/types"
)

func newTestStore(t *testing.T) *nativestore.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.log")
	s, err := nativestore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIndexFileThenWireResolvesReferenceWithinSameFile(t *testing.T) {
	store := newTestStore(t)
	warn := diagnostics.NewWarningSink()
	w := New(store, warn)

	defID, err := store.InsertNode("symbol", "area", "shapes/circle.py", nil)
	require.NoError(t, err)
	refID, err := store.InsertNode("reference", "area", "shapes/circle.py", nil)
	require.NoError(t, err)

	ff := &FileFacts{
		Path:       "shapes/circle.py",
		Language:   types.LangPython,
		ModulePath: "shapes.circle",
		Symbols: []SymbolEntry{
			{EntityID: defID, Symbol: types.Symbol{Name: "area", FQN: "shapes.circle.area", Language: types.LangPython}},
		},
		References: []RefEntry{
			{EntityID: refID, Ref: types.Reference{Name: "area", File: "shapes/circle.py"}},
		},
	}
	w.IndexFile(ff)
	require.NoError(t, w.Wire(ff.Path))

	neighbors, err := store.Neighbors(refID, 0, "REFERENCES")
	require.NoError(t, err)
	assert.Equal(t, []int64{defID}, neighbors)
	assert.Equal(t, 0, warn.Len())
}

func TestWireReportsCollisionOnDuplicateFQN(t *testing.T) {
	store := newTestStore(t)
	warn := diagnostics.NewWarningSink()
	w := New(store, warn)

	firstID, err := store.InsertNode("symbol", "area", "shapes/a.py", nil)
	require.NoError(t, err)
	secondID, err := store.InsertNode("symbol", "area", "shapes/b.py", nil)
	require.NoError(t, err)

	w.IndexFile(&FileFacts{
		Path: "shapes/a.py", Language: types.LangPython, ModulePath: "shapes.a",
		Symbols: []SymbolEntry{{EntityID: firstID, Symbol: types.Symbol{Name: "area", FQN: "shapes.area", Language: types.LangPython}}},
	})
	w.IndexFile(&FileFacts{
		Path: "shapes/b.py", Language: types.LangPython, ModulePath: "shapes.b",
		Symbols: []SymbolEntry{{EntityID: secondID, Symbol: types.Symbol{Name: "area", FQN: "shapes.area", Language: types.LangPython}}},
	})

	require.Equal(t, 1, warn.Len())
	assert.Equal(t, diagnostics.WarnFQNCollision, warn.Sorted()[0].Reason)
}

func TestWireRewiresImporterWhenTargetArrivesLater(t *testing.T) {
	store := newTestStore(t)
	warn := diagnostics.NewWarningSink()
	w := New(store, warn)

	// main.py imports shapes.circle before circle.py has been indexed.
	callID, err := store.InsertNode("call", "area", "main.py", nil)
	require.NoError(t, err)
	w.IndexFile(&FileFacts{
		Path: "main.py", Language: types.LangPython, ModulePath: "main",
		Imports: []types.Import{{PathComponents: []string{"shapes", "circle"}, ImportedNames: []string{"area"}, ResolvedFileID: "shapes/circle.py"}},
		Calls:   []CallEntry{{EntityID: callID, Call: types.Call{CalleeFQN: "area"}}},
	})
	require.NoError(t, w.Wire("main.py"))
	assert.Equal(t, 1, warn.Len()) // unresolved callee so far

	defID, err := store.InsertNode("symbol", "area", "shapes/circle.py", nil)
	require.NoError(t, err)
	w.IndexFile(&FileFacts{
		Path: "shapes/circle.py", Language: types.LangPython, ModulePath: "shapes.circle",
		Symbols: []SymbolEntry{{EntityID: defID, Symbol: types.Symbol{Name: "area", FQN: "shapes.circle.area", Language: types.LangPython}}},
	})
	require.NoError(t, w.Wire("shapes/circle.py"))

	for _, importer := range w.RewireImportersOf("shapes/circle.py") {
		require.NoError(t, w.Wire(importer))
	}

	neighbors, err := store.Neighbors(callID, 0, "CALLS")
	require.NoError(t, err)
	assert.Equal(t, []int64{defID}, neighbors)
}

func TestRemoveFileDropsOwnedFQNsAndImporterMembership(t *testing.T) {
	store := newTestStore(t)
	warn := diagnostics.NewWarningSink()
	w := New(store, warn)

	defID, err := store.InsertNode("symbol", "area", "shapes/circle.py", nil)
	require.NoError(t, err)
	w.IndexFile(&FileFacts{
		Path: "shapes/circle.py", Language: types.LangPython, ModulePath: "shapes.circle",
		Symbols: []SymbolEntry{{EntityID: defID, Symbol: types.Symbol{Name: "area", FQN: "shapes.circle.area", Language: types.LangPython}}},
		Imports: []types.Import{{PathComponents: []string{"shapes", "util"}, ResolvedFileID: "shapes/util.py"}},
	})

	w.RemoveFile("shapes/circle.py")

	_, ok := w.fqnIndex[fqnKey(types.LangPython, "shapes.circle.area")]
	assert.False(t, ok)
	assert.Empty(t, w.RewireImportersOf("shapes/util.py"))
}
