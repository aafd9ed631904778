package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryVfsWriteReadFile(t *testing.T) {
	m := NewMemoryVfs()
	require.NoError(t, m.WriteFile("/a/b/c.txt", []byte("hello"), SyncData))

	data, err := m.ReadFile("/a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	isDir, err := m.IsDir("/a/b")
	require.NoError(t, err)
	assert.True(t, isDir)
}

func TestMemoryVfsReadMissingFile(t *testing.T) {
	m := NewMemoryVfs()
	_, err := m.ReadFile("/nope")
	require.Error(t, err)
}

func TestMemoryVfsRename(t *testing.T) {
	m := NewMemoryVfs()
	require.NoError(t, m.WriteFile("/old", []byte("x"), SyncNone))
	require.NoError(t, m.Rename("/old", "/new"))

	exists, _ := m.Exists("/old")
	assert.False(t, exists)
	data, err := m.ReadFile("/new")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestMemoryVfsLockPreventsSecondLock(t *testing.T) {
	m := NewMemoryVfs()
	lock, err := m.Lock("/db.lock")
	require.NoError(t, err)

	_, err = m.Lock("/db.lock")
	require.Error(t, err)

	require.NoError(t, lock.Unlock())

	_, err = m.Lock("/db.lock")
	require.NoError(t, err)
}

func TestMemoryVfsReadDirListsChildren(t *testing.T) {
	m := NewMemoryVfs()
	require.NoError(t, m.WriteFile("/dir/a.txt", []byte("1"), SyncNone))
	require.NoError(t, m.WriteFile("/dir/b.txt", []byte("2"), SyncNone))
	require.NoError(t, m.CreateDirAll("/dir/sub"))

	entries, err := m.ReadDir("/dir")
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

func TestFaultInjectingVfsFailsArmedWrite(t *testing.T) {
	inner := NewMemoryVfs()
	f := NewFaultInjectingVfs(inner)
	f.FailNextWrite(2)

	require.NoError(t, f.WriteFile("/a", []byte("1"), SyncNone))
	err := f.WriteFile("/b", []byte("2"), SyncNone)
	require.Error(t, err)
	require.NoError(t, f.WriteFile("/c", []byte("3"), SyncNone))
}

func TestReadOnlyVfsRejectsWrites(t *testing.T) {
	inner := NewMemoryVfs()
	ro := NewReadOnlyVfs(inner)

	err := ro.WriteFile("/a", []byte("1"), SyncNone)
	require.Error(t, err)

	err = ro.CreateDirAll("/dir")
	require.Error(t, err)
}
