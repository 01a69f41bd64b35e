package filefilter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oldnordic/magellan-sub003/internal/diagnostics"
)

func TestInternalIgnoreTakesPrecedenceOverInclude(t *testing.T) {
	root := t.TempDir()
	f, err := New(root, false, "project.magellan.db", []string{"**/*.rs"}, nil)
	require.NoError(t, err)

	d := f.ShouldSkip("target/debug/main.rs", false)
	assert.True(t, d.Skip)
	assert.Equal(t, diagnostics.IgnoredInternal, d.Reason)
}

func TestGitignorePrecedesIncludeGlobs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("vendor/\n"), 0o644))

	f, err := New(root, true, "project.magellan.db", []string{"**/*.go"}, nil)
	require.NoError(t, err)

	d := f.ShouldSkip("vendor/pkg/main.go", false)
	assert.True(t, d.Skip)
	assert.Equal(t, diagnostics.IgnoredByGitignore, d.Reason)
}

func TestIncludeGlobRequiresMatch(t *testing.T) {
	root := t.TempDir()
	f, err := New(root, false, "project.magellan.db", []string{"src/**/*.rs"}, nil)
	require.NoError(t, err)

	d := f.ShouldSkip("docs/readme.rs", false)
	assert.True(t, d.Skip)
	assert.Equal(t, diagnostics.IgnoredByInclude, d.Reason)

	d2 := f.ShouldSkip("src/lib.rs", false)
	assert.False(t, d2.Skip)
}

func TestExcludeGlobAppliesAfterInclude(t *testing.T) {
	root := t.TempDir()
	f, err := New(root, false, "project.magellan.db", []string{"src/**/*.rs"}, []string{"**/*_test.rs"})
	require.NoError(t, err)

	d := f.ShouldSkip("src/lib_test.rs", false)
	assert.True(t, d.Skip)
	assert.Equal(t, diagnostics.IgnoredByExclude, d.Reason)
}

func TestUnsupportedLanguageSkip(t *testing.T) {
	root := t.TempDir()
	f, err := New(root, false, "project.magellan.db", nil, nil)
	require.NoError(t, err)

	d := f.ShouldSkip("README.md", false)
	assert.True(t, d.Skip)
	assert.Equal(t, diagnostics.UnsupportedLanguage, d.Reason)
}

func TestSelfDBFileAlwaysInternalIgnored(t *testing.T) {
	root := t.TempDir()
	f, err := New(root, false, "project.magellan.db", []string{"**"}, nil)
	require.NoError(t, err)

	d := f.ShouldSkip("project.magellan.db", false)
	assert.True(t, d.Skip)
	assert.Equal(t, diagnostics.IgnoredInternal, d.Reason)
}
