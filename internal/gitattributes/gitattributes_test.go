package gitattributes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func read(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, ".gitattributes"))
	require.NoError(t, err)
	return string(data)
}

func TestUpdate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Update(dir, []string{"b/y_annogen.go", "a/x_annogen.go"}))
	assert.Equal(t, "# /annogen gen\n"+
		"a/x_annogen.go linguist-generated=true -diff\n"+
		"b/y_annogen.go linguist-generated=true -diff\n"+
		"# annogen gen/\n", read(t, dir))

	// existing content around the block is kept
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitattributes"),
		[]byte("*.png binary\n"+read(t, dir)+"*.sh text eol=lf"), 0o644))
	require.NoError(t, Update(dir, []string{"c/z_annogen.go"}))
	assert.Equal(t, "*.png binary\n*.sh text eol=lf\n"+
		"# /annogen gen\n"+
		"c/z_annogen.go linguist-generated=true -diff\n"+
		"# annogen gen/\n", read(t, dir))

	require.NoError(t, Update(dir, nil))
	assert.Equal(t, "*.png binary\n*.sh text eol=lf\n", read(t, dir))
}

func TestUpdate_IncompleteBlock(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitattributes"), []byte("# /annogen gen\nx -diff\n"), 0o644))
	err := Update(dir, []string{"a.go"})
	assert.ErrorContains(t, err, "incomplete annogen block")
}

func TestUpdate_NothingToDo(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Update(dir, nil))
	assert.NoFileExists(t, filepath.Join(dir, ".gitattributes"))
}
