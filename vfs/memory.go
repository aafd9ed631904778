package vfs

import (
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/nutelladb/grebedb/internal/dberr"
)

// MemoryVfs is an in-process, map-backed Vfs implementation. It backs
// OpenMemory and the test suites across the module; nothing it does
// touches the real filesystem.
type MemoryVfs struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
	locks map[string]bool
}

// NewMemoryVfs returns an empty in-memory filesystem rooted at "/".
func NewMemoryVfs() *MemoryVfs {
	return &MemoryVfs{
		files: make(map[string][]byte),
		dirs:  map[string]bool{"/": true, ".": true, "": true},
		locks: make(map[string]bool),
	}
}

func clean(p string) string {
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}

func (m *MemoryVfs) Exists(p string) (bool, error) {
	p = clean(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[p]; ok {
		return true, nil
	}
	return m.dirs[p], nil
}

func (m *MemoryVfs) IsDir(p string) (bool, error) {
	p = clean(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirs[p], nil
}

func (m *MemoryVfs) IsFile(p string) (bool, error) {
	p = clean(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[p]
	return ok, nil
}

func (m *MemoryVfs) CreateDirAll(p string) error {
	p = clean(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		m.dirs[p] = true
		parent := path.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}
	return nil
}

func (m *MemoryVfs) ReadFile(p string) ([]byte, error) {
	p = clean(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[p]
	if !ok {
		return nil, dberr.WrapPath(dberr.KindNotFound, "file does not exist", p, nil)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryVfs) WriteFile(p string, data []byte, sync SyncOption) error {
	p = clean(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.files[p] = buf
	dir := path.Dir(p)
	for {
		m.dirs[dir] = true
		parent := path.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil
}

func (m *MemoryVfs) RemoveFile(p string) error {
	p = clean(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, p)
	return nil
}

func (m *MemoryVfs) Rename(oldPath, newPath string) error {
	oldPath, newPath = clean(oldPath), clean(newPath)
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[oldPath]
	if !ok {
		return dberr.WrapPath(dberr.KindNotFound, "rename source does not exist", oldPath, nil)
	}
	m.files[newPath] = data
	delete(m.files, oldPath)
	return nil
}

func (m *MemoryVfs) ReadDir(p string) ([]FileInfo, error) {
	p = clean(p)
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]FileInfo)
	prefix := p
	if prefix != "/" {
		prefix += "/"
	}
	for name, data := range m.files {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		if rest == "" {
			continue
		}
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			child := rest[:idx]
			seen[child] = FileInfo{Name: child, IsDir: true}
		} else {
			seen[rest] = FileInfo{Name: rest, IsDir: false, Size: int64(len(data))}
		}
	}
	for dir := range m.dirs {
		if !strings.HasPrefix(dir, prefix) || dir == p {
			continue
		}
		rest := strings.TrimPrefix(dir, prefix)
		if rest == "" {
			continue
		}
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			rest = rest[:idx]
		}
		if _, ok := seen[rest]; !ok {
			seen[rest] = FileInfo{Name: rest, IsDir: true}
		}
	}

	out := make([]FileInfo, 0, len(seen))
	for _, fi := range seen {
		out = append(out, fi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryVfs) SyncFile(p string) error { return nil }
func (m *MemoryVfs) SyncAll() error          { return nil }

func (m *MemoryVfs) Lock(p string) (Lock, error) {
	p = clean(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[p] {
		return nil, dberr.WrapPath(dberr.KindLocked, "database is already locked", p, nil)
	}
	m.locks[p] = true
	return &memoryLock{vfs: m, path: p}, nil
}

type memoryLock struct {
	vfs  *MemoryVfs
	path string
}

func (l *memoryLock) Unlock() error {
	l.vfs.mu.Lock()
	defer l.vfs.mu.Unlock()
	delete(l.vfs.locks, l.path)
	return nil
}
