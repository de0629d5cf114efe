package objstore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/kvgateway/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	_, err = store.Get(ctx, "db/CURRENT")
	assert.ErrorIs(t, err, interfaces.ErrObjectNotFound)

	etag, err := store.Put(ctx, "db/CURRENT", []byte("MANIFEST-000001\n"), interfaces.PutOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, etag)

	obj, err := store.Get(ctx, "db/CURRENT")
	require.NoError(t, err)
	assert.Equal(t, []byte("MANIFEST-000001\n"), obj.Data)
	assert.Equal(t, etag, obj.ETag)

	require.NoError(t, store.Delete(ctx, "db/CURRENT"))
	require.NoError(t, store.Delete(ctx, "db/CURRENT"))

	_, err = store.Get(ctx, "db/CURRENT")
	assert.ErrorIs(t, err, interfaces.ErrObjectNotFound)
}

func TestFileStore_IgnoresPreconditions(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	_, err = store.Put(ctx, "LOCK", []byte("a"), interfaces.PutOptions{})
	require.NoError(t, err)

	_, err = store.Put(ctx, "LOCK", []byte("b"), interfaces.PutOptions{IfNoneMatch: true})
	require.NoError(t, err)

	_, err = store.Put(ctx, "LOCK", []byte("c"), interfaces.PutOptions{IfMatch: "stale"})
	require.NoError(t, err)

	obj, err := store.Get(ctx, "LOCK")
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), obj.Data)
}

func TestFileStore_List(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir, testLogger())
	require.NoError(t, err)

	for _, key := range []string{"db/000001.log", "db/000002.ldb", "db/sub/x", "other/y"} {
		_, err := store.Put(ctx, key, []byte(key), interfaces.PutOptions{})
		require.NoError(t, err)
	}
	// leftover temp files are never listed
	require.NoError(t, os.WriteFile(filepath.Join(dir, "db", tempPrefix+"123"), []byte("x"), 0644))

	keys, err := store.List(ctx, "db/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"db/000001.log", "db/000002.ldb", "db/sub/x"}, keys)

	keys, err = store.List(ctx, "db/0000")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"db/000001.log", "db/000002.ldb"}, keys)

	keys, err = store.List(ctx, "missing/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFileStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../escape", []byte("x"), interfaces.PutOptions{})
	assert.Error(t, err)

	_, err = store.Get(context.Background(), "")
	assert.Error(t, err)
}

func TestMemoryStore_ConditionalPut(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("test")

	etag1, err := store.Put(ctx, "CURRENT", []byte("v1"), interfaces.PutOptions{IfNoneMatch: true})
	require.NoError(t, err)

	_, err = store.Put(ctx, "CURRENT", []byte("v2"), interfaces.PutOptions{IfNoneMatch: true})
	assert.ErrorIs(t, err, interfaces.ErrPreconditionFailed)

	etag2, err := store.Put(ctx, "CURRENT", []byte("v2"), interfaces.PutOptions{IfMatch: etag1})
	require.NoError(t, err)
	assert.NotEqual(t, etag1, etag2)

	_, err = store.Put(ctx, "CURRENT", []byte("v3"), interfaces.PutOptions{IfMatch: etag1})
	assert.ErrorIs(t, err, interfaces.ErrPreconditionFailed)

	_, err = store.Put(ctx, "missing", []byte("v"), interfaces.PutOptions{IfMatch: etag1})
	assert.ErrorIs(t, err, interfaces.ErrPreconditionFailed)

	obj, err := store.Get(ctx, "CURRENT")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), obj.Data)
	assert.Equal(t, etag2, obj.ETag)
}

func TestPrefixedStore(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore("test")
	view := Prefixed(mem, "/tmp/t1")

	_, err := view.Put(ctx, "000001.log", []byte("x"), interfaces.PutOptions{})
	require.NoError(t, err)
	_, err = mem.Put(ctx, "tmp/t10/000001.log", []byte("y"), interfaces.PutOptions{})
	require.NoError(t, err)

	obj, err := mem.Get(ctx, "tmp/t1/000001.log")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), obj.Data)

	keys, err := view.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"000001.log"}, keys)

	require.NoError(t, view.Delete(ctx, "000001.log"))
	_, err = view.Get(ctx, "000001.log")
	assert.ErrorIs(t, err, interfaces.ErrObjectNotFound)
}

func TestObjectStoreFor(t *testing.T) {
	loc, err := interfaces.ParseStoreLocation("file:///tmp/t1")
	require.NoError(t, err)
	store, err := ObjectStoreFor(loc, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)
	root, err := EnginePath(loc)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/t1", root)

	loc, err = interfaces.ParseStoreLocation("s3://AKID:SECRET@bucket/prefix/db?region=eu-west-1&endpoint=http://127.0.0.1:9000")
	require.NoError(t, err)
	store, err = ObjectStoreFor(loc, testLogger())
	require.NoError(t, err)
	require.IsType(t, &S3Store{}, store)
	assert.Equal(t, "s3-bucket", store.Name())
	root, err = EnginePath(loc)
	require.NoError(t, err)
	assert.Equal(t, "/prefix/db", root)

	loc, err = interfaces.ParseStoreLocation("http://backend:7777")
	require.NoError(t, err)
	_, err = ObjectStoreFor(loc, testLogger())
	assert.ErrorIs(t, err, interfaces.ErrConfig)
}

func TestEnginePath_RelativeFileHost(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	for _, raw := range []string{"file://data/kv", "file://./data/kv", "file://data//kv/."} {
		loc, err := interfaces.ParseStoreLocation(raw)
		require.NoError(t, err)
		root, err := EnginePath(loc)
		require.NoError(t, err, raw)
		assert.Equal(t, filepath.ToSlash(filepath.Join(wd, "data", "kv")), root, raw)
	}
}

func TestEnginePath_Canonical(t *testing.T) {
	tests := map[string]string{
		"file:///tmp/x//db":   "/tmp/x/db",
		"file:///tmp/./db/":   "/tmp/db",
		"file:///tmp/a/../db": "/tmp/db",
		"s3://bucket//p/db/":  "/p/db",
		"s3://bucket":         "",
	}
	for raw, want := range tests {
		loc, err := interfaces.ParseStoreLocation(raw)
		require.NoError(t, err, raw)
		root, err := EnginePath(loc)
		require.NoError(t, err, raw)
		assert.Equal(t, want, root, raw)
	}
}

func TestPrefixedStore_NonCanonicalRootLists(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	files, err := NewFileStore(base, testLogger())
	require.NoError(t, err)

	view := Prefixed(files, "x//./db/")
	_, err = view.Put(ctx, "000001.log", []byte("journal"), interfaces.PutOptions{})
	require.NoError(t, err)

	keys, err := view.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"000001.log"}, keys)
	assert.FileExists(t, filepath.Join(base, "x", "db", "000001.log"))
}
