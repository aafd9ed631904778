package vfs

import "github.com/nutelladb/grebedb/internal/dberr"

// ReadOnlyVfs wraps another Vfs and rejects every mutating call, backing
// the database facade's OpenReadOnly mode.
type ReadOnlyVfs struct {
	inner Vfs
}

// NewReadOnlyVfs wraps inner so all writes fail with KindReadOnlyViolation.
func NewReadOnlyVfs(inner Vfs) *ReadOnlyVfs {
	return &ReadOnlyVfs{inner: inner}
}

func readOnlyErr(path string) error {
	return dberr.WrapPath(dberr.KindReadOnlyViolation, "database was opened read-only", path, nil)
}

func (r *ReadOnlyVfs) Exists(path string) (bool, error) { return r.inner.Exists(path) }
func (r *ReadOnlyVfs) IsDir(path string) (bool, error)  { return r.inner.IsDir(path) }
func (r *ReadOnlyVfs) IsFile(path string) (bool, error) { return r.inner.IsFile(path) }

func (r *ReadOnlyVfs) CreateDirAll(path string) error { return readOnlyErr(path) }

func (r *ReadOnlyVfs) ReadFile(path string) ([]byte, error) { return r.inner.ReadFile(path) }
func (r *ReadOnlyVfs) WriteFile(path string, data []byte, sync SyncOption) error {
	return readOnlyErr(path)
}
func (r *ReadOnlyVfs) RemoveFile(path string) error { return readOnlyErr(path) }
func (r *ReadOnlyVfs) Rename(oldPath, newPath string) error {
	return readOnlyErr(oldPath)
}
func (r *ReadOnlyVfs) ReadDir(path string) ([]FileInfo, error) { return r.inner.ReadDir(path) }

func (r *ReadOnlyVfs) SyncFile(path string) error { return nil }
func (r *ReadOnlyVfs) SyncAll() error             { return nil }

// Lock still acquires a real lock: even read-only handles must exclude
// concurrent writers, mirroring the original's ReadOnlyVfs behavior.
func (r *ReadOnlyVfs) Lock(path string) (Lock, error) { return r.inner.Lock(path) }
