package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(afero.NewMemMapFs(), "out")
	require.NoError(t, err)
	return store
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Title: with / weird * chars", "Title_with_weird_chars"},
		{"abc123", "abc123"},
		{"http://example.com/item/1", "http_example.com_item_1"},
		{"   spaced   ", "spaced"},
		{"dots.and-dashes_ok", "dots.and-dashes_ok"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeName(tt.in), tt.in)
	}
}

func TestSanitizeNameTruncates(t *testing.T) {
	long := strings.Repeat("a", 200)
	got := SanitizeName(long)
	assert.LessOrEqual(t, len(got), 100)
	assert.NotEmpty(t, got)
}

func TestRecordDir(t *testing.T) {
	store := newMemStore(t)

	dir, err := store.RecordDir("img-item")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("out", "img-item"), dir)

	info, err := store.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSaveFileAtomic(t *testing.T) {
	store := newMemStore(t)
	path := filepath.Join("out", "rec", "37158u.tif")
	_, err := store.RecordDir("rec")
	require.NoError(t, err)

	n, err := store.SaveFile(path, strings.NewReader("image-bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	data, err := afero.ReadFile(store.Fs(), path)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))

	// No temp file left behind.
	assert.False(t, store.Exists(path+".tmp"))
}

func TestWriteFileIfChanged(t *testing.T) {
	store := newMemStore(t)
	path := filepath.Join("out", "item.json")
	doc := []byte(`{"id":"abc123","a":1}`)

	res, err := store.WriteFileIfChanged(path, doc, true)
	require.NoError(t, err)
	assert.Equal(t, WriteCreated, res)

	// Identical content is not rewritten.
	res, err = store.WriteFileIfChanged(path, doc, true)
	require.NoError(t, err)
	assert.Equal(t, WriteSkipped, res)

	// Changed content is.
	res, err = store.WriteFileIfChanged(path, []byte(`{"id":"abc123","a":2}`), true)
	require.NoError(t, err)
	assert.Equal(t, WriteUpdated, res)

	data, err := afero.ReadFile(store.Fs(), path)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"abc123","a":2}`, string(data))
}

func TestWriteFileIfChangedNoCompareAlwaysWrites(t *testing.T) {
	store := newMemStore(t)
	path := filepath.Join("out", "item.json")
	doc := []byte(`{"a":1}`)

	res, err := store.WriteFileIfChanged(path, doc, false)
	require.NoError(t, err)
	assert.Equal(t, WriteCreated, res)

	res, err = store.WriteFileIfChanged(path, doc, false)
	require.NoError(t, err)
	assert.Equal(t, WriteUpdated, res)
}

func TestFileSHA256(t *testing.T) {
	store := newMemStore(t)
	path := filepath.Join("out", "f")
	content := []byte("hello world")
	require.NoError(t, afero.WriteFile(store.Fs(), path, content, 0644))

	sum := sha256.Sum256(content)
	expected := hex.EncodeToString(sum[:])

	got, err := store.FileSHA256(path)
	require.NoError(t, err)
	assert.Equal(t, expected, got)
}
