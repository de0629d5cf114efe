package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ruteri/kvgateway/interfaces"
	"github.com/ruteri/kvgateway/objstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFileKVStore(t *testing.T, dir string, params string) interfaces.KVStore {
	t.Helper()
	store, err := NewKVStoreFactory(testLogger()).KVStoreFromString(context.Background(), "file://"+dir+params)
	require.NoError(t, err)
	return store
}

func TestEmbeddedStore_Scenario(t *testing.T) {
	ctx := context.Background()
	store := newFileKVStore(t, filepath.Join(t.TempDir(), "t1"), "")
	defer store.Close()

	require.NoError(t, store.Set(ctx, []byte("a"), []byte("1")))

	value, err := store.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), value)

	require.NoError(t, store.Delete(ctx, []byte("a")))

	_, err = store.Get(ctx, []byte("a"))
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
}

func TestEmbeddedStore_Contract(t *testing.T) {
	ctx := context.Background()
	store, err := NewEmbeddedStore(objstore.NewMemoryStore("contract"), EmbeddedOptions{}, testLogger())
	require.NoError(t, err)
	defer store.Close()

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, []byte("k"), []byte("v1")))
		require.NoError(t, store.Set(ctx, []byte("k"), []byte("v2")))
		value, err := store.Get(ctx, []byte("k"))
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), value)
	})

	t.Run("never set is absent", func(t *testing.T) {
		_, err := store.Get(ctx, []byte("never"))
		assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
	})

	t.Run("idempotent delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, []byte("never")))
		require.NoError(t, store.Delete(ctx, []byte("never")))
	})

	t.Run("binary keys and values", func(t *testing.T) {
		key := []byte{0xff, 0x00, 0xfe}
		value := []byte{0x80, 0x81, 0x00, 0xc3}
		require.NoError(t, store.Set(ctx, key, value))
		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, value, got)
	})

	t.Run("empty value is a present value", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, []byte("empty"), []byte{}))
		got, err := store.Get(ctx, []byte("empty"))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("empty key", func(t *testing.T) {
		assert.ErrorIs(t, store.Set(ctx, nil, []byte("v")), interfaces.ErrInvalidKey)
		_, err := store.Get(ctx, []byte{})
		assert.ErrorIs(t, err, interfaces.ErrInvalidKey)
		assert.ErrorIs(t, store.Delete(ctx, nil), interfaces.ErrInvalidKey)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, store.Set(cctx, []byte("k"), []byte("v")), context.Canceled)
	})
}

func TestEmbeddedStore_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	store, err := NewEmbeddedStore(objstore.NewMemoryStore("concurrent"), EmbeddedOptions{FlushInterval: DefaultFlushInterval}, testLogger())
	require.NoError(t, err)
	defer store.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key := []byte(fmt.Sprintf("k-%d-%d", i, j))
				assert.NoError(t, store.Set(ctx, key, key))
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		key := []byte(fmt.Sprintf("k-%d-49", i))
		value, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, key, value)
	}
}

func TestEmbeddedStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")

	store := newFileKVStore(t, dir, "?flush_interval=0")
	require.NoError(t, store.Set(ctx, []byte("kept"), []byte("yes")))
	require.NoError(t, store.Set(ctx, []byte("gone"), []byte("no")))
	require.NoError(t, store.Delete(ctx, []byte("gone")))
	require.NoError(t, store.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "CURRENT")

	store = newFileKVStore(t, dir, "?flush_interval=0")
	defer store.Close()

	value, err := store.Get(ctx, []byte("kept"))
	require.NoError(t, err)
	assert.Equal(t, []byte("yes"), value)

	_, err = store.Get(ctx, []byte("gone"))
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
}

func TestEmbeddedStore_NonCanonicalPathRecoversJournal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store := newFileKVStore(t, dir+"//x/./db", "?flush_interval=0")
	require.NoError(t, store.Set(ctx, []byte("kept"), []byte("yes")))
	require.NoError(t, store.Close())

	assert.FileExists(t, filepath.Join(dir, "x", "db", "CURRENT"))

	// an equivalent spelling of the same location sees the journaled write
	store = newFileKVStore(t, dir+"/x/db/", "?flush_interval=0")
	defer store.Close()

	value, err := store.Get(ctx, []byte("kept"))
	require.NoError(t, err)
	assert.Equal(t, []byte("yes"), value)
}

func TestEmbeddedStore_FlushMakesWritesVisible(t *testing.T) {
	ctx := context.Background()
	mem := objstore.NewMemoryStore("flush")

	first, err := NewEmbeddedStore(mem, EmbeddedOptions{}, testLogger())
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, []byte("a"), []byte("1")))
	require.NoError(t, first.Flush(ctx))

	// a second opener recovers everything flushed by the first one
	second, err := NewEmbeddedStore(mem, EmbeddedOptions{}, testLogger())
	require.NoError(t, err)
	defer second.Close()

	value, err := second.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), value)

	first.Close()
}

func TestEmbeddedStore_FencesPreviousOwner(t *testing.T) {
	ctx := context.Background()
	mem := objstore.NewMemoryStore("fence")

	first, err := NewEmbeddedStore(mem, EmbeddedOptions{}, testLogger())
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, []byte("a"), []byte("1")))
	require.NoError(t, first.Flush(ctx))

	second, err := NewEmbeddedStore(mem, EmbeddedOptions{}, testLogger())
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, first.Set(ctx, []byte("b"), []byte("2")))
	err = first.Flush(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrEngine)
	assert.ErrorIs(t, err, interfaces.ErrFenced)

	// the new owner is unaffected
	require.NoError(t, second.Set(ctx, []byte("c"), []byte("3")))
	require.NoError(t, second.Flush(ctx))

	_, err = second.Get(ctx, []byte("b"))
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)

	first.Close()

	// the fenced owner leaves the newer lock in place
	obj, err := mem.Get(ctx, lockObject)
	require.NoError(t, err)
	assert.Contains(t, string(obj.Data), second.stor.Owner())
}

func TestEmbeddedStore_SyncWrites(t *testing.T) {
	ctx := context.Background()
	mem := objstore.NewMemoryStore("sync")

	store, err := NewEmbeddedStore(mem, EmbeddedOptions{Sync: true}, testLogger())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Set(ctx, []byte("a"), []byte("1")))

	keys, err := mem.List(ctx, "")
	require.NoError(t, err)

	var journals int
	for _, key := range keys {
		if filepath.Ext(key) == ".log" {
			obj, err := mem.Get(ctx, key)
			require.NoError(t, err)
			if len(obj.Data) > 0 {
				journals++
			}
		}
	}
	assert.Equal(t, 1, journals)
}

func TestEmbeddedStore_CloseIsIdempotent(t *testing.T) {
	store, err := NewEmbeddedStore(objstore.NewMemoryStore("close"), EmbeddedOptions{FlushInterval: DefaultFlushInterval}, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}

// flakyObjects fails every Put while failPuts is set.
type flakyObjects struct {
	interfaces.ObjectStore
	failPuts atomic.Bool
}

func (f *flakyObjects) Put(ctx context.Context, key string, data []byte, opts interfaces.PutOptions) (string, error) {
	if f.failPuts.Load() {
		return "", errors.New("upload rejected")
	}
	return f.ObjectStore.Put(ctx, key, data, opts)
}

func TestEmbeddedStore_FlushReportsBackgroundFailure(t *testing.T) {
	ctx := context.Background()
	objects := &flakyObjects{ObjectStore: objstore.NewMemoryStore("flaky")}

	store, err := NewEmbeddedStore(objects, EmbeddedOptions{FlushInterval: 5 * time.Millisecond}, testLogger())
	require.NoError(t, err)
	defer store.Close()

	objects.failPuts.Store(true)
	require.NoError(t, store.Set(ctx, []byte("a"), []byte("1")))

	require.Eventually(t, func() bool {
		return store.flushErr.Load() != nil
	}, 5*time.Second, 5*time.Millisecond)

	objects.failPuts.Store(false)

	err = store.Flush(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrEngine)
	assert.ErrorContains(t, err, "upload rejected")

	// once reported, flushing succeeds again
	require.Eventually(t, func() bool {
		return store.Flush(ctx) == nil
	}, 5*time.Second, 10*time.Millisecond)
}
