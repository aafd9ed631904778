package btree

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nutelladb/grebedb/internal/pagestore"
	"github.com/nutelladb/grebedb/vfs"
)

func newTestTree(t *testing.T, keysPerNode int) *Tree {
	t.Helper()
	v := vfs.NewMemoryVfs()
	store, err := pagestore.Open[Node](v, pagestore.Options{
		Dir:           "/db",
		PageCacheSize: 8,
		OpenMode:      pagestore.OpenCreateOrOpen,
	})
	require.NoError(t, err)
	tree, err := Open(store, keysPerNode)
	require.NoError(t, err)
	return tree
}

func TestPutGetSingleKey(t *testing.T) {
	tr := newTestTree(t, 4)
	require.NoError(t, tr.Put([]byte("a"), []byte("1")))

	v, ok, err := tr.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)
}

func TestGetMissingKey(t *testing.T) {
	tr := newTestTree(t, 4)
	require.NoError(t, tr.Put([]byte("a"), []byte("1")))

	_, ok, err := tr.Get([]byte("zzz"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPutOverwritesExistingKey(t *testing.T) {
	tr := newTestTree(t, 4)
	require.NoError(t, tr.Put([]byte("a"), []byte("1")))
	require.NoError(t, tr.Put([]byte("a"), []byte("2")))

	v, ok, err := tr.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("2"), v)
}

func TestInsertManyKeysCausesSplitsAndAllAreFindable(t *testing.T) {
	tr := newTestTree(t, 4)
	const n = 500
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		require.NoError(t, tr.Put(key, []byte(fmt.Sprintf("val-%d", i))))
	}
	require.NoError(t, tr.Verify())

	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		v, ok, err := tr.Get(key)
		require.NoError(t, err)
		require.True(t, ok, "missing key %s", key)
		require.Equal(t, fmt.Sprintf("val-%d", i), string(v))
	}
}

func TestRemoveMissingKeyReturnsFalse(t *testing.T) {
	tr := newTestTree(t, 4)
	require.NoError(t, tr.Put([]byte("a"), []byte("1")))
	removed, err := tr.Remove([]byte("zzz"))
	require.NoError(t, err)
	require.False(t, removed)
}

func TestRemoveLastKeyCollapsesToEmptyRoot(t *testing.T) {
	tr := newTestTree(t, 4)
	require.NoError(t, tr.Put([]byte("a"), []byte("1")))
	removed, err := tr.Remove([]byte("a"))
	require.NoError(t, err)
	require.True(t, removed)

	_, ok, err := tr.Get([]byte("a"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInsertThenRemoveAllKeysLeavesEmptyTree(t *testing.T) {
	tr := newTestTree(t, 4)
	const n = 300
	keys := make([][]byte, n)
	for i := 0; i < n; i++ {
		keys[i] = []byte(fmt.Sprintf("key-%04d", i))
		require.NoError(t, tr.Put(keys[i], []byte("v")))
	}
	require.NoError(t, tr.Verify())

	for _, k := range keys {
		removed, err := tr.Remove(k)
		require.NoError(t, err)
		require.True(t, removed, "expected to remove %s", k)
	}
	require.NoError(t, tr.Verify())

	for _, k := range keys {
		_, ok, err := tr.Get(k)
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestRemoveInterleavedWithInsertKeepsTreeValid(t *testing.T) {
	tr := newTestTree(t, 5)
	present := map[string]bool{}
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("k%03d", i)
		require.NoError(t, tr.Put([]byte(key), []byte("v")))
		present[key] = true
		if i%3 == 0 {
			removeKey := fmt.Sprintf("k%03d", i/2)
			if present[removeKey] {
				removed, err := tr.Remove([]byte(removeKey))
				require.NoError(t, err)
				require.True(t, removed)
				delete(present, removeKey)
			}
		}
	}
	require.NoError(t, tr.Verify())
	for key := range present {
		_, ok, err := tr.Get([]byte(key))
		require.NoError(t, err)
		require.True(t, ok, "expected %s to still be present", key)
	}
}

func TestCursorWalksKeysInAscendingOrder(t *testing.T) {
	tr := newTestTree(t, 4)
	keys := []string{"c", "a", "e", "b", "d"}
	for _, k := range keys {
		require.NoError(t, tr.Put([]byte(k), []byte(k)))
	}

	cur := tr.NewCursor()
	var got []string
	for {
		k, _, ok, err := cur.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, string(k))
	}
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
}

func TestCursorRangeRespectsBounds(t *testing.T) {
	tr := newTestTree(t, 4)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, tr.Put([]byte(k), []byte(k)))
	}

	cur := tr.NewRangeCursor([]byte("b"), true, []byte("d"), true, false)
	var got []string
	for {
		k, _, ok, err := cur.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, string(k))
	}
	require.Equal(t, []string{"b", "c"}, got)
}

func TestCursorInvalidatedAfterMutation(t *testing.T) {
	tr := newTestTree(t, 4)
	require.NoError(t, tr.Put([]byte("a"), []byte("1")))
	cur := tr.NewCursor()

	require.NoError(t, tr.Put([]byte("b"), []byte("2")))

	_, _, _, err := cur.Next()
	require.Error(t, err)
}

func TestOpenRejectsSmallKeysPerNode(t *testing.T) {
	v := vfs.NewMemoryVfs()
	store, err := pagestore.Open[Node](v, pagestore.Options{Dir: "/db", OpenMode: pagestore.OpenCreateOrOpen})
	require.NoError(t, err)
	_, err = Open(store, 1)
	require.Error(t, err)
}
