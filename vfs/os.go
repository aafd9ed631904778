package vfs

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/nutelladb/grebedb/internal/dberr"
)

// OsVfs implements Vfs against the real filesystem. Writes go through a
// temporary file plus os.Rename so a crash never leaves a half-written
// page or metadata file behind; Rename is a plain os.Rename.
type OsVfs struct {
	mu    sync.Mutex
	locks map[string]*os.File
}

// NewOsVfs returns a Vfs backed by the local filesystem.
func NewOsVfs() *OsVfs {
	return &OsVfs{locks: make(map[string]*os.File)}
}

func (o *OsVfs) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, dberr.WrapPath(dberr.KindIO, "stat failed", path, err)
}

func (o *OsVfs) IsDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, dberr.WrapPath(dberr.KindIO, "stat failed", path, err)
	}
	return info.IsDir(), nil
}

func (o *OsVfs) IsFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, dberr.WrapPath(dberr.KindIO, "stat failed", path, err)
	}
	return !info.IsDir(), nil
}

func (o *OsVfs) CreateDirAll(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return dberr.WrapPath(dberr.KindIO, "mkdir failed", path, err)
	}
	return nil
}

func (o *OsVfs) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dberr.WrapPath(dberr.KindNotFound, "file does not exist", path, err)
		}
		return nil, dberr.WrapPath(dberr.KindIO, "read failed", path, err)
	}
	return data, nil
}

func (o *OsVfs) WriteFile(path string, data []byte, sync SyncOption) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".grebedb-tmp-*")
	if err != nil {
		return dberr.WrapPath(dberr.KindIO, "create temp file failed", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return dberr.WrapPath(dberr.KindIO, "write failed", path, err)
	}
	if sync != SyncNone {
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return dberr.WrapPath(dberr.KindIO, "sync failed", path, err)
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return dberr.WrapPath(dberr.KindIO, "close failed", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return dberr.WrapPath(dberr.KindIO, "rename failed", path, err)
	}
	if sync == SyncFull {
		if dirF, err := os.Open(dir); err == nil {
			dirF.Sync()
			dirF.Close()
		}
	}
	return nil
}

func (o *OsVfs) RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return dberr.WrapPath(dberr.KindIO, "remove failed", path, err)
	}
	return nil
}

func (o *OsVfs) Rename(oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err != nil {
		return dberr.WrapPath(dberr.KindIO, "rename failed", oldPath, err)
	}
	return nil
}

func (o *OsVfs) ReadDir(path string) ([]FileInfo, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dberr.WrapPath(dberr.KindNotFound, "directory does not exist", path, err)
		}
		return nil, dberr.WrapPath(dberr.KindIO, "readdir failed", path, err)
	}
	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		var size int64
		if err == nil {
			size = info.Size()
		}
		out = append(out, FileInfo{Name: e.Name(), IsDir: e.IsDir(), Size: size})
	}
	return out, nil
}

func (o *OsVfs) SyncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return dberr.WrapPath(dberr.KindIO, "open for sync failed", path, err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return dberr.WrapPath(dberr.KindIO, "sync failed", path, err)
	}
	return nil
}

func (o *OsVfs) SyncAll() error {
	return nil
}

// Lock acquires an advisory exclusive lock by creating path exclusively.
// No pack repository vendors a file-locking library, so this uses the
// portable O_CREATE|O_EXCL idiom instead of platform flock/fcntl calls.
func (o *OsVfs) Lock(path string) (Lock, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, dberr.WrapPath(dberr.KindLocked, "database is already locked", path, err)
		}
		return nil, dberr.WrapPath(dberr.KindIO, "lock file create failed", path, err)
	}
	o.locks[path] = f
	return &osLock{vfs: o, path: path, file: f}, nil
}

type osLock struct {
	vfs  *OsVfs
	path string
	file *os.File
}

func (l *osLock) Unlock() error {
	l.vfs.mu.Lock()
	defer l.vfs.mu.Unlock()
	if _, ok := l.vfs.locks[l.path]; !ok {
		return nil
	}
	delete(l.vfs.locks, l.path)
	l.file.Close()
	return os.Remove(l.path)
}
