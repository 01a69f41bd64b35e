package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oldnordic/magellan-sub003/internal/types"
)

func TestModulePathForRegularFile(t *testing.T) {
	assert.Equal(t, "shapes::circle", ModulePath("shapes/circle.rs", types.LangRust))
	assert.Equal(t, "shapes.circle", ModulePath("shapes/circle.py", types.LangPython))
}

func TestModulePathForModuleRootFile(t *testing.T) {
	assert.Equal(t, "shapes", ModulePath("shapes/mod.rs", types.LangRust))
	assert.Equal(t, "pkg", ModulePath("pkg/__init__.py", types.LangPython))
	assert.Equal(t, "pkg", ModulePath("pkg/index.ts", types.LangTypeScript))
}

func TestModulePathForRootLevelFile(t *testing.T) {
	assert.Equal(t, "main", ModulePath("main.rs", types.LangRust))
}

func TestResolveCratePath(t *testing.T) {
	idx := New()
	idx.Put("file-circle", "shapes/circle.rs", types.LangRust)

	imp := types.Import{Kind: types.ImportUseCrate, PathComponents: []string{"crate", "shapes", "circle"}}
	fid, ok := idx.Resolve(imp, "main", "::")
	assert.True(t, ok)
	assert.Equal(t, "file-circle", fid)
}

func TestResolveSuperPath(t *testing.T) {
	idx := New()
	idx.Put("file-util", "shapes/util.rs", types.LangRust)

	imp := types.Import{Kind: types.ImportUseSuper, PathComponents: []string{"super", "util"}}
	fid, ok := idx.Resolve(imp, "shapes::circle", "::")
	assert.True(t, ok)
	assert.Equal(t, "file-util", fid)
}

func TestResolveSelfPath(t *testing.T) {
	idx := New()
	idx.Put("file-circle", "shapes/circle.rs", types.LangRust)

	imp := types.Import{Kind: types.ImportUseSelf, PathComponents: []string{"self"}}
	fid, ok := idx.Resolve(imp, "shapes::circle", "::")
	assert.True(t, ok)
	assert.Equal(t, "file-circle", fid)
}

func TestResolveUnresolvedImportIsNotAnError(t *testing.T) {
	idx := New()
	imp := types.Import{Kind: types.ImportPlainUse, PathComponents: []string{"std", "collections", "HashMap"}}
	_, ok := idx.Resolve(imp, "main", "::")
	assert.False(t, ok)
}

func TestPutReplacesPriorEntryOnReindex(t *testing.T) {
	idx := New()
	idx.Put("file-a", "shapes/circle.rs", types.LangRust)
	idx.Put("file-a", "shapes/square.rs", types.LangRust)

	_, ok := idx.Resolve(types.Import{Kind: types.ImportUseCrate, PathComponents: []string{"crate", "shapes", "circle"}}, "main", "::")
	assert.False(t, ok)

	fid, ok := idx.Resolve(types.Import{Kind: types.ImportUseCrate, PathComponents: []string{"crate", "shapes", "square"}}, "main", "::")
	assert.True(t, ok)
	assert.Equal(t, "file-a", fid)
}
