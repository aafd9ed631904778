package vfs

import (
	"sync"

	"github.com/nutelladb/grebedb/internal/dberr"
)

// FaultInjectingVfs wraps another Vfs and can be told to fail the Nth
// write or rename call, letting tests exercise the "flush dies partway
// through" recovery paths without a real disk failure.
type FaultInjectingVfs struct {
	inner Vfs

	mu           sync.Mutex
	writeCount   int
	renameCount  int
	failWriteAt  int // 0 means never
	failRenameAt int
}

// NewFaultInjectingVfs wraps inner with no faults armed.
func NewFaultInjectingVfs(inner Vfs) *FaultInjectingVfs {
	return &FaultInjectingVfs{inner: inner}
}

// FailNextWrite arms a failure on the nth WriteFile call (1-indexed).
func (f *FaultInjectingVfs) FailNextWrite(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWriteAt = f.writeCount + n
}

// FailNextRename arms a failure on the nth Rename call (1-indexed).
func (f *FaultInjectingVfs) FailNextRename(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRenameAt = f.renameCount + n
}

func (f *FaultInjectingVfs) Exists(path string) (bool, error) { return f.inner.Exists(path) }
func (f *FaultInjectingVfs) IsDir(path string) (bool, error)  { return f.inner.IsDir(path) }
func (f *FaultInjectingVfs) IsFile(path string) (bool, error) { return f.inner.IsFile(path) }
func (f *FaultInjectingVfs) CreateDirAll(path string) error   { return f.inner.CreateDirAll(path) }
func (f *FaultInjectingVfs) ReadFile(path string) ([]byte, error) {
	return f.inner.ReadFile(path)
}

func (f *FaultInjectingVfs) WriteFile(path string, data []byte, sync SyncOption) error {
	f.mu.Lock()
	f.writeCount++
	fail := f.failWriteAt != 0 && f.writeCount == f.failWriteAt
	f.mu.Unlock()
	if fail {
		return dberr.WrapPath(dberr.KindIO, "injected write failure", path, nil)
	}
	return f.inner.WriteFile(path, data, sync)
}

func (f *FaultInjectingVfs) RemoveFile(path string) error { return f.inner.RemoveFile(path) }

func (f *FaultInjectingVfs) Rename(oldPath, newPath string) error {
	f.mu.Lock()
	f.renameCount++
	fail := f.failRenameAt != 0 && f.renameCount == f.failRenameAt
	f.mu.Unlock()
	if fail {
		return dberr.WrapPath(dberr.KindIO, "injected rename failure", oldPath, nil)
	}
	return f.inner.Rename(oldPath, newPath)
}

func (f *FaultInjectingVfs) ReadDir(path string) ([]FileInfo, error) { return f.inner.ReadDir(path) }
func (f *FaultInjectingVfs) SyncFile(path string) error              { return f.inner.SyncFile(path) }
func (f *FaultInjectingVfs) SyncAll() error                          { return f.inner.SyncAll() }
func (f *FaultInjectingVfs) Lock(path string) (Lock, error)          { return f.inner.Lock(path) }
