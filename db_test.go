package grebedb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nutelladb/grebedb/vfs"
)

func TestOpenMemoryPutGetRemove(t *testing.T) {
	db, err := OpenMemory(NewOptions())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("fruit:apple"), []byte("red")))
	v, ok, err := db.Get([]byte("fruit:apple"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "red", string(v))

	removed, err := db.Remove([]byte("fruit:apple"))
	require.NoError(t, err)
	require.True(t, removed)

	_, ok, err = db.Get([]byte("fruit:apple"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCloseThenReopenPersistsData(t *testing.T) {
	v := vfs.NewMemoryVfs()
	opts := NewOptions()
	db, err := Open(v, "/db", opts)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, db.Put([]byte(fmt.Sprintf("k%d", i)), []byte(fmt.Sprintf("v%d", i))))
	}
	require.NoError(t, db.Close())

	loadOpts := NewOptions()
	loadOpts.OpenMode = OpenLoadOnly
	db2, err := Open(v, "/db", loadOpts)
	require.NoError(t, err)
	defer db2.Close()

	require.EqualValues(t, 20, db2.KeyValueCount())
	for i := 0; i < 20; i++ {
		val, ok, err := db2.Get([]byte(fmt.Sprintf("k%d", i)))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("v%d", i), string(val))
	}
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	v := vfs.NewMemoryVfs()
	db, err := Open(v, "/db", NewOptions())
	require.NoError(t, err)
	require.NoError(t, db.Put([]byte("a"), []byte("1")))
	require.NoError(t, db.Close())

	roOpts := NewOptions()
	roOpts.OpenMode = OpenReadOnly
	roDB, err := Open(v, "/db", roOpts)
	require.NoError(t, err)
	defer roDB.Close()

	err = roDB.Put([]byte("b"), []byte("2"))
	require.Error(t, err)

	val, ok, err := roDB.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", string(val))
}

func TestOpenLoadOnlyFailsForMissingDatabase(t *testing.T) {
	v := vfs.NewMemoryVfs()
	opts := NewOptions()
	opts.OpenMode = OpenLoadOnly
	_, err := Open(v, "/nope", opts)
	require.Error(t, err)
}

func TestValidateRejectsBadOptions(t *testing.T) {
	opts := NewOptions()
	opts.KeysPerNode = 1
	require.Error(t, opts.Validate())

	opts = NewOptions()
	opts.PageCacheSize = 0
	require.Error(t, opts.Validate())
}

func TestCursorOverDatabase(t *testing.T) {
	db, err := OpenMemory(NewOptions())
	require.NoError(t, err)
	defer db.Close()

	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, db.Put([]byte(k), []byte(k)))
	}

	cur := db.Cursor()
	var got []string
	for {
		k, _, ok, err := cur.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, string(k))
	}
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestVerifyOnHealthyDatabase(t *testing.T) {
	db, err := OpenMemory(NewOptions())
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < 50; i++ {
		require.NoError(t, db.Put([]byte(fmt.Sprintf("k%d", i)), []byte("v")))
	}
	require.NoError(t, db.Verify())
}
