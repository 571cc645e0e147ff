package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff_NoChange(t *testing.T) {
	a := Manifest{"a.txt": "h1", "b.txt": "h2"}
	b := map[string]string{"a.txt": "h1", "b.txt": "h2"}

	assert.Empty(t, Diff(a, b), "identical mappings must produce an empty delta")
}

func TestDiff_SinglePathChanged(t *testing.T) {
	current := Manifest{"a.txt": "h1", "b.txt": "h3"}
	previous := map[string]string{"a.txt": "h1", "b.txt": "h2"}

	assert.Equal(t, []string{"b.txt"}, Diff(current, previous))
}

func TestDiff_NewPaths(t *testing.T) {
	current := Manifest{"a.txt": "h1", "b.txt": "h2"}

	delta := Diff(current, map[string]string{})
	assert.Equal(t, []string{"a.txt", "b.txt"}, delta, "fresh state: every path is new")
}

func TestDiff_DeletionsExcluded(t *testing.T) {
	current := Manifest{"a.txt": "h1"}
	previous := map[string]string{"a.txt": "h1", "removed.txt": "h9"}

	assert.Empty(t, Diff(current, previous),
		"deleted paths are not part of the delta by contract")
}

func TestDiff_Sorted(t *testing.T) {
	current := Manifest{"z.txt": "h1", "a.txt": "h2", "m.txt": "h3"}

	assert.Equal(t, []string{"a.txt", "m.txt", "z.txt"}, Diff(current, map[string]string{}))
}

func TestDiff_DoesNotMutateInputs(t *testing.T) {
	current := Manifest{"a.txt": "h1"}
	previous := map[string]string{"b.txt": "h2"}

	Diff(current, previous)

	assert.Equal(t, Manifest{"a.txt": "h1"}, current)
	assert.Equal(t, map[string]string{"b.txt": "h2"}, previous)
}

func TestManifest_PathsSorted(t *testing.T) {
	m := Manifest{"c": "1", "a": "2", "b": "3"}
	assert.Equal(t, []string{"a", "b", "c"}, m.Paths())
}

func TestManifest_CloneIndependent(t *testing.T) {
	m := Manifest{"a": "1"}
	c := m.Clone()
	c["a"] = "2"

	assert.Equal(t, "1", m["a"])
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("world"), 0o644))

	m, records, err := Scan(context.Background(), dir)
	require.NoError(t, err)

	assert.Len(t, m, 2)
	assert.Equal(t, ContentDigest([]byte("hello")), m["a.txt"])
	assert.Equal(t, ContentDigest([]byte("world")), m["sub/b.txt"])

	require.Len(t, records, 2)
	assert.Equal(t, "a.txt", records[0].Path)
	assert.Equal(t, int64(5), records[0].Size)
	assert.Equal(t, "sub/b.txt", records[1].Path)
}

func TestScan_Canceled(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Scan(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}
