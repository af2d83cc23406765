package dataset_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/clipsearch/internal/dataset"
)

// writeFile creates a file with parent directories under root.
func writeFile(t *testing.T, root, rel string, content []byte) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func TestDeriveImageID(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{
			name: "nested path",
			path: "dataset/dog/123.jpg",
			want: "123",
		},
		{
			name: "bare filename",
			path: "sunset.png",
			want: "sunset",
		},
		{
			name: "multiple dots keeps inner ones",
			path: "photos/2024.06.01.jpeg",
			want: "2024.06.01",
		},
		{
			name: "no extension",
			path: "images/raw",
			want: "raw",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dataset.DeriveImageID(tt.path))
		})
	}
}

func TestLoad_OrderedByPath(t *testing.T) {
	dir := t.TempDir()
	// Written out of order on purpose; ids must follow path sort order.
	writeFile(t, dir, "b/cat.jpg", []byte("cat-bytes"))
	writeFile(t, dir, "a/zebra.png", []byte("zebra-bytes"))
	writeFile(t, dir, "a/ant.jpg", []byte("ant-bytes"))

	ds, err := dataset.Load(dir)
	require.NoError(t, err)
	require.Equal(t, 3, ds.Len())

	wantPaths := []string{"a/ant.jpg", "a/zebra.png", "b/cat.jpg"}
	wantIDs := []string{"ant", "zebra", "cat"}
	for i := range wantPaths {
		item, err := ds.Item(i)
		require.NoError(t, err)
		assert.Equal(t, wantPaths[i], item.Path)
		assert.Equal(t, wantIDs[i], item.ImageID)
	}

	assert.Equal(t, []byte("zebra-bytes"), ds.Items()[1].Data)

	idx, ok := ds.IndexOf("cat")
	assert.True(t, ok)
	assert.Equal(t, 2, idx)
}

func TestLoad_SkipsNonImageFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "dog.jpg", []byte("dog"))
	writeFile(t, dir, "captions.txt", []byte("a dog"))
	writeFile(t, dir, "notes.md", []byte("notes"))

	ds, err := dataset.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())
}

func TestLoad_DuplicateImageID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a/123.jpg", []byte("one"))
	writeFile(t, dir, "b/123.png", []byte("two"))

	_, err := dataset.Load(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, dataset.ErrDuplicateImageID)
	assert.Contains(t, err.Error(), "123")
}

func TestLoad_EmptyDirectory(t *testing.T) {
	ds, err := dataset.Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, ds.Len())
	assert.Empty(t, ds.Items())
}

func TestLoad_MissingDirectory(t *testing.T) {
	_, err := dataset.Load(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestDataset_ItemOutOfRange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.jpg", []byte("x"))

	ds, err := dataset.Load(dir)
	require.NoError(t, err)

	_, err = ds.Item(1)
	assert.ErrorIs(t, err, dataset.ErrIndexOutOfRange)

	_, err = ds.Item(-1)
	assert.ErrorIs(t, err, dataset.ErrIndexOutOfRange)
}
