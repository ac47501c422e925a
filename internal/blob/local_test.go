package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(LocalOptions{RootDir: t.TempDir()})
	require.NoError(t, err)
	return store
}

func TestLocalStorePutGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	err := store.Put(ctx, "edgar/data/320193/0000320193-20-000096.txt", []byte("filing body"), false)
	require.NoError(t, err)

	data, err := store.Get(ctx, "edgar/data/320193/0000320193-20-000096.txt", false)
	require.NoError(t, err)
	assert.Equal(t, []byte("filing body"), data)
}

func TestLocalStoreLeadingSlashStripped(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Put(ctx, "/edgar/full-index/1996/QTR2/form.idx", []byte("idx"), false))

	ok, err := store.Exists(ctx, "edgar/full-index/1996/QTR2/form.idx")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := store.Get(ctx, "/edgar/full-index/1996/QTR2/form.idx", false)
	require.NoError(t, err)
	assert.Equal(t, []byte("idx"), data)
}

func TestLocalStoreExistsAbsent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ok, err := store.Exists(ctx, "edgar/data/missing.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStoreDeflateIgnored(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Put(ctx, "documents/raw/abc", []byte("verbatim bytes"), true))

	raw, err := os.ReadFile(filepath.Join(store.root, "documents", "raw", "abc"))
	require.NoError(t, err)
	assert.Equal(t, []byte("verbatim bytes"), raw)

	data, err := store.Get(ctx, "documents/raw/abc", true)
	require.NoError(t, err)
	assert.Equal(t, []byte("verbatim bytes"), data)
}

func TestLocalStoreGetRange(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Put(ctx, "doc", []byte("0123456789"), false))

	tests := []struct {
		name       string
		start, end int64
		want       string
	}{
		{"interior", 2, 5, "234"},
		{"from start", 0, 4, "0123"},
		{"end clamped", 7, 100, "789"},
		{"start clamped", -3, 2, "01"},
		{"inverted is empty", 6, 3, ""},
		{"past end is empty", 20, 30, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.GetRange(ctx, "doc", tt.start, tt.end, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestLocalStoreGetToFilePutFile(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("round trip"), 0o644))
	require.NoError(t, store.PutFile(ctx, "edgar/copy.txt", src, false))

	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, store.GetToFile(ctx, "edgar/copy.txt", dst, false))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("round trip"), data)
}

func TestLocalStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Put(ctx, "edgar/gone.txt", []byte("x"), false))
	require.NoError(t, store.Delete(ctx, "edgar/gone.txt"))

	ok, err := store.Exists(ctx, "edgar/gone.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting a missing key is not an error.
	assert.NoError(t, store.Delete(ctx, "edgar/gone.txt"))
}

func TestLocalStoreSize(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Put(ctx, "edgar/sized.txt", []byte("12345"), false))

	n, err := store.Size(ctx, "edgar/sized.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestLocalStoreList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	keys := []string{
		"edgar/data/320193/a.txt",
		"edgar/data/320193/b.txt",
		"edgar/data/789019/c.txt",
		"edgar/full-index/1996/QTR2/form.idx",
		"documents/raw/abc",
	}
	for _, k := range keys {
		require.NoError(t, store.Put(ctx, k, []byte(k), false))
	}

	got, err := store.List(ctx, "edgar/data/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"edgar/data/320193/a.txt",
		"edgar/data/320193/b.txt",
		"edgar/data/789019/c.txt",
	}, got)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, len(keys))
}

func TestLocalStoreListFolders(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	keys := []string{
		"edgar/data/320193/a.txt",
		"edgar/data/320193/sub/b.txt",
		"edgar/data/789019/c.txt",
		"edgar/data/100240/d.txt",
		"edgar/data/top-level.txt",
	}
	for _, k := range keys {
		require.NoError(t, store.Put(ctx, k, []byte(k), false))
	}

	folders, err := store.ListFolders(ctx, "edgar/data/", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"edgar/data/100240/",
		"edgar/data/320193/",
		"edgar/data/789019/",
	}, folders)

	limited, err := store.ListFolders(ctx, "edgar/data/", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSliceRange(t *testing.T) {
	buf := []byte("abcdef")

	assert.Equal(t, []byte("bcd"), sliceRange(buf, 1, 4))
	assert.Equal(t, []byte("abcdef"), sliceRange(buf, 0, 100))
	assert.Equal(t, []byte("abcdef"), sliceRange(buf, -5, 6))
	assert.Empty(t, sliceRange(buf, 4, 2))
	assert.Empty(t, sliceRange(buf, 10, 20))
	assert.Empty(t, sliceRange(nil, 0, 5))
}

func TestFolderSet(t *testing.T) {
	fs := newFolderSet()
	fs.addKey("edgar/data/", "edgar/data/320193/a.txt")
	fs.addKey("edgar/data/", "edgar/data/320193/b.txt")
	fs.addKey("edgar/data/", "edgar/data/789019/c.txt")
	fs.addKey("edgar/data/", "edgar/data/loose.txt")

	assert.Equal(t, []string{"edgar/data/320193/", "edgar/data/789019/"}, fs.list(0))
	assert.Equal(t, []string{"edgar/data/320193/"}, fs.list(1))
}

func TestOpenLocal(t *testing.T) {
	store, err := Open(context.Background(), Options{
		ClientType: "Local",
		Local:      LocalOptions{RootDir: t.TempDir()},
	})
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	_, ok := store.(*LocalStore)
	assert.True(t, ok)
}

func TestOpenDefaultsToLocal(t *testing.T) {
	store, err := Open(context.Background(), Options{
		Local: LocalOptions{RootDir: t.TempDir()},
	})
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	_, ok := store.(*LocalStore)
	assert.True(t, ok)
}

func TestOpenUnknownClientType(t *testing.T) {
	_, err := Open(context.Background(), Options{ClientType: "Tape"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown client type "Tape"`)
}

func TestNewLocalStoreRequiresRoot(t *testing.T) {
	_, err := NewLocalStore(LocalOptions{})
	require.Error(t, err)
}
