package pagestore

import (
	"path"

	"github.com/google/uuid"

	"github.com/nutelladb/grebedb/internal/dberr"
	"github.com/nutelladb/grebedb/internal/pagefmt"
	"github.com/nutelladb/grebedb/vfs"
)

// OpenMode controls what Open does when the target directory does or
// does not already contain a database.
type OpenMode int

const (
	// OpenCreateOrOpen loads an existing database or creates a new one.
	OpenCreateOrOpen OpenMode = iota
	// OpenCreateOnly fails if a database already exists.
	OpenCreateOnly
	// OpenLoadOnly fails if no database exists.
	OpenLoadOnly
	// OpenReadOnly loads an existing database and rejects all mutation.
	OpenReadOnly
)

// Options configures a Store.
type Options struct {
	Dir              string
	PageCacheSize    int
	Compression      pagefmt.CompressionLevel
	FileLocking      bool
	FileSync         vfs.SyncOption
	OpenMode         OpenMode
	// DirCacheSize bounds the recently-created-directory memo used to
	// skip redundant CreateDirAll calls.
	DirCacheSize int
}

// Store is the durable page layer: page ID allocation, the bounded LRU
// page cache, revision-parity page files, and atomic metadata commit.
// It knows nothing about tree structure — that lives one layer up.
type Store[T any] struct {
	vfs  vfs.Vfs
	dir  string
	opts Options

	metadata Metadata
	// liveRevision is the highest revision this process has itself
	// written (via eviction or Flush), kept separately from
	// metadata.Revision so a page this session wrote ahead of its next
	// commit is still readable, while a leftover from a crash in some
	// earlier process (which never advanced metadata.Revision) is not.
	liveRevision Revision
	cache        *pageCache[T]
	lock         vfs.Lock
	closed       bool
	readOnly     bool
	recentDirs   *dirMemo
	pendingFrees []PageID // freed this generation, not yet committed to metadata
}

// dirMemo remembers the last few directories CreateDirAll was called for,
// grounded on the original format layer's small LRU of created
// directories used to avoid a stat+mkdir round trip on every page write.
type dirMemo struct {
	cap   int
	order []string
	seen  map[string]bool
}

func newDirMemo(capacity int) *dirMemo {
	if capacity < 1 {
		capacity = 16
	}
	return &dirMemo{cap: capacity, seen: make(map[string]bool)}
}

func (d *dirMemo) knows(dir string) bool { return d.seen[dir] }

func (d *dirMemo) remember(dir string) {
	if d.seen[dir] {
		return
	}
	d.seen[dir] = true
	d.order = append(d.order, dir)
	if len(d.order) > d.cap {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
}

// Open opens or creates the database directory according to opts.OpenMode.
func Open[T any](v vfs.Vfs, opts Options) (*Store[T], error) {
	if opts.PageCacheSize < 1 {
		opts.PageCacheSize = 64
	}
	if opts.DirCacheSize < 1 {
		opts.DirCacheSize = 16
	}

	exists, err := v.Exists(path.Join(opts.Dir, metadataFilename))
	if err != nil {
		return nil, err
	}

	switch opts.OpenMode {
	case OpenCreateOnly:
		if exists {
			return nil, dberr.WrapPath(dberr.KindInvalidConfig, "database already exists", opts.Dir, nil)
		}
	case OpenLoadOnly, OpenReadOnly:
		if !exists {
			return nil, dberr.WrapPath(dberr.KindDatabaseAbsent, "no database at this path", opts.Dir, nil)
		}
	}

	// A read-only open must not attempt to create the directory: the
	// wrapping ReadOnlyVfs rejects CreateDirAll outright, and the
	// directory is required to already exist for this open mode anyway
	// (OpenLoadOnly/OpenReadOnly both already checked exists above).
	if opts.OpenMode != OpenReadOnly {
		if err := v.CreateDirAll(opts.Dir); err != nil {
			return nil, err
		}
	}

	s := &Store[T]{
		vfs:        v,
		dir:        opts.Dir,
		opts:       opts,
		cache:      newPageCache[T](opts.PageCacheSize),
		recentDirs: newDirMemo(opts.DirCacheSize),
		readOnly:   opts.OpenMode == OpenReadOnly,
	}

	if opts.FileLocking {
		lock, err := v.Lock(path.Join(opts.Dir, lockFilename))
		if err != nil {
			return nil, err
		}
		s.lock = lock
	}

	if exists {
		if err := s.loadMetadata(); err != nil {
			s.releaseLock()
			return nil, err
		}
	} else {
		s.metadata = Metadata{UUID: uuid.New()}
		if err := s.commitMetadata(); err != nil {
			s.releaseLock()
			return nil, err
		}
	}
	s.liveRevision = s.metadata.Revision

	return s, nil
}

func (s *Store[T]) releaseLock() {
	if s.lock != nil {
		s.lock.Unlock()
		s.lock = nil
	}
}

// UUID returns the database's instance UUID.
func (s *Store[T]) UUID() uuid.UUID { return s.metadata.UUID }

// RootID returns the current root page ID, zero when the tree is empty.
func (s *Store[T]) RootID() PageID { return s.metadata.RootID }

// SetRootID updates the root page ID (does not commit metadata by itself).
func (s *Store[T]) SetRootID(id PageID) { s.metadata.RootID = id }

// KeyValueCount returns the tree's running key count.
func (s *Store[T]) KeyValueCount() int64 { return s.metadata.KeyValueCount }

// AdjustKeyValueCount adds delta (positive or negative) to the running
// key count kept in metadata.
func (s *Store[T]) AdjustKeyValueCount(delta int64) { s.metadata.KeyValueCount += delta }

func (s *Store[T]) checkOpen() error {
	if s.closed {
		return dberr.New(dberr.KindClosed, "store is closed")
	}
	return nil
}

func (s *Store[T]) checkWritable() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.readOnly {
		return dberr.New(dberr.KindReadOnlyViolation, "store is read-only")
	}
	return nil
}

// Allocate reserves a new page ID without writing any content for it yet.
func (s *Store[T]) Allocate() (PageID, error) {
	if err := s.checkWritable(); err != nil {
		return 0, err
	}
	return s.metadata.NewPageID(), nil
}

// Get loads a page by ID, consulting the cache first.
func (s *Store[T]) Get(id PageID) (*Page[T], error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if page, ok := s.cache.get(id); ok {
		return page, nil
	}
	page, err := s.loadFromDisk(id)
	if err != nil {
		return nil, err
	}
	s.evictIfNeeded(s.cache.put(id, page, false))
	return page, nil
}

// Put writes content for id, marking it dirty in the cache. The page's
// on-disk revision (and therefore which copy-on-write slot it lands in)
// is not decided here: it is assigned once, for every dirty page
// together, at the moment the page actually reaches the VFS (eviction or
// Flush), so that repeated Puts to the same page between flushes never
// advance past the single revision that flush is about to commit.
func (s *Store[T]) Put(id PageID, content T) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	page := &Page[T]{UUID: s.metadata.UUID, ID: id, Content: content}
	s.evictIfNeeded(s.cache.put(id, page, true))
	return nil
}

// Free releases id back to the free list and removes it from the cache.
// Its page files are not removed immediately; Flush writes a deleted
// tombstone through the same revision-gated copy-on-write path as any
// other page, so a crash before the next metadata commit still leaves
// the previously committed content recoverable.
func (s *Store[T]) Free(id PageID) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	s.cache.remove(id)
	s.pendingFrees = append(s.pendingFrees, id)
	return nil
}

// pendingRevision is the revision the next Flush will commit to
// metadata. Every page written between now and that commit — whether by
// eviction or by Flush itself — is stamped with this same value.
func (s *Store[T]) pendingRevision() Revision {
	return s.metadata.Revision + 1
}

// FreeIDs returns every ID the store currently considers free, including
// ones freed this generation but not yet committed by Flush.
func (s *Store[T]) FreeIDs() []PageID {
	out := append([]PageID(nil), s.metadata.FreeIDList...)
	return append(out, s.pendingFrees...)
}

// IDCounter returns the highest page ID ever handed out, for
// verification.
func (s *Store[T]) IDCounter() PageID {
	return s.metadata.IDCounter
}

func (s *Store[T]) evictIfNeeded(id PageID, page *Page[T], had bool) {
	if !had {
		return
	}
	// Best-effort write-back; a failure here surfaces on the next
	// explicit Flush, matching the "errors surface on the next boundary
	// operation" rule for cache-driven writes.
	_ = s.writePage(page, vfs.SyncNone)
	s.cache.clearDirty(id)
}

// loadFromDisk reads both copy-on-write slots (if present) and returns
// the one with the highest revision that does not exceed liveRevision,
// falling back to an older valid slot if the newer one is corrupt. A
// slot whose revision is beyond liveRevision is a write this process
// never itself made durable in this session — either an uncommitted
// write left over from a crash before the matching metadata commit, or
// corruption — and must be ignored rather than read back as live.
func (s *Store[T]) loadFromDisk(id PageID) (*Page[T], error) {
	var candidates []*Page[T]
	var staleCandidates []*Page[T]
	var lastErr error
	for slot := 0; slot < 2; slot++ {
		p := pagePath(s.dir, id, slot)
		exists, err := s.vfs.Exists(p)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		data, err := s.vfs.ReadFile(p)
		if err != nil {
			lastErr = err
			continue
		}
		var page Page[T]
		if err := pagefmt.Decode(data, &page); err != nil {
			lastErr = dberr.WrapPath(dberr.KindCorrupt, "page failed to decode", p, err)
			continue
		}
		if page.UUID != s.metadata.UUID {
			lastErr = dberr.WrapPath(dberr.KindUUIDMismatch, "page uuid does not match database", p, nil)
			continue
		}
		if page.Revision > s.liveRevision {
			staleCandidates = append(staleCandidates, &page)
			continue
		}
		candidates = append(candidates, &page)
	}
	if len(candidates) == 0 {
		if len(staleCandidates) > 0 {
			return nil, dberr.WrapPath(dberr.KindStaleRevision, "page revision exceeds the committed metadata revision", pagePath(s.dir, id, 0), nil)
		}
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, dberr.WrapPath(dberr.KindNotFound, "page does not exist", pagePath(s.dir, id, 0), nil)
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Revision > best.Revision {
			best = c
		}
	}
	if best.Deleted {
		return nil, dberr.WrapPath(dberr.KindNotFound, "page was deleted", pagePath(s.dir, id, 0), nil)
	}
	return best, nil
}

// writePage assigns page the single pending revision shared by every
// page written since the last commit, so it lands in the opposite
// copy-on-write slot from whatever is currently committed, then writes
// it. It also raises liveRevision so this same process can read the page
// back before the commit that will make it durable.
func (s *Store[T]) writePage(page *Page[T], sync vfs.SyncOption) error {
	rev := s.pendingRevision()
	page.Revision = rev
	if rev > s.liveRevision {
		s.liveRevision = rev
	}

	dir := pageDir(s.dir, page.ID)
	if !s.recentDirs.knows(dir) {
		if err := s.vfs.CreateDirAll(dir); err != nil {
			return err
		}
		s.recentDirs.remember(dir)
	}
	data, err := pagefmt.Encode(page, s.opts.Compression)
	if err != nil {
		return err
	}
	slot := slotFor(page.Revision)
	p := pagePath(s.dir, page.ID, slot)
	return s.vfs.WriteFile(p, data, sync)
}

// Flush writes every dirty page back to disk, writes a deleted tombstone
// for each freed page, and commits an updated metadata record. It is the only point
// besides eviction where this layer performs disk I/O for page content,
// and the only point where it fsyncs.
func (s *Store[T]) Flush() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.readOnly {
		return nil
	}

	for _, id := range s.cache.dirtyIDs() {
		page, ok := s.cache.get(id)
		if !ok {
			continue
		}
		if err := s.writePage(page, s.opts.FileSync); err != nil {
			s.closed = true
			return err
		}
		s.cache.clearDirty(id)
	}

	for _, id := range s.pendingFrees {
		s.metadata.FreePageID(id)
		tombstone := &Page[T]{UUID: s.metadata.UUID, ID: id, Deleted: true}
		if err := s.writePage(tombstone, s.opts.FileSync); err != nil {
			s.closed = true
			return err
		}
	}
	s.pendingFrees = nil

	if err := s.commitMetadata(); err != nil {
		s.closed = true
		return err
	}
	return s.vfs.SyncAll()
}

// commitMetadata writes the metadata file using the three-file rotation:
// rename current to previous (if a current file exists), write the new
// revision into current, then copy current to backup. A crash at any
// point in this sequence still leaves at least one of the three files
// holding a complete, checksummed metadata record — either the old
// committed revision or the new one, never a torn hybrid.
func (s *Store[T]) commitMetadata() error {
	next := s.metadata
	next.Revision++

	data, err := pagefmt.Encode(&next, pagefmt.CompressionNone)
	if err != nil {
		return err
	}

	tmpPath := path.Join(s.dir, metadataTmpFilename)
	curPath := path.Join(s.dir, metadataFilename)
	bakPath := path.Join(s.dir, metadataBakFilename)
	prevPath := path.Join(s.dir, metadataPrevFilename)

	if exists, _ := s.vfs.Exists(curPath); exists {
		if err := s.vfs.Rename(curPath, prevPath); err != nil {
			return err
		}
	}

	if err := s.vfs.WriteFile(tmpPath, data, s.opts.FileSync); err != nil {
		return err
	}
	if err := s.vfs.Rename(tmpPath, curPath); err != nil {
		return err
	}

	if err := s.vfs.WriteFile(bakPath, data, s.opts.FileSync); err != nil {
		return err
	}

	s.metadata = next
	if next.Revision > s.liveRevision {
		s.liveRevision = next.Revision
	}
	return nil
}

// loadMetadata reads all three metadata copies (current, backup,
// previous) and keeps the one with the greatest revision among those
// that decode cleanly and pass their checksum — the read-side half of
// commitMetadata's rotation scheme.
func (s *Store[T]) loadMetadata() error {
	curPath := path.Join(s.dir, metadataFilename)
	bakPath := path.Join(s.dir, metadataBakFilename)
	prevPath := path.Join(s.dir, metadataPrevFilename)

	var best *Metadata
	var lastErr error
	for _, p := range []string{curPath, bakPath, prevPath} {
		m, err := s.tryLoadMetadataFile(p)
		if err != nil {
			lastErr = err
			continue
		}
		if best == nil || m.Revision > best.Revision {
			best = &m
		}
	}
	if best == nil {
		return dberr.WrapPath(dberr.KindCorrupt, "no readable metadata copy", curPath, lastErr)
	}
	s.metadata = *best
	return nil
}

func (s *Store[T]) tryLoadMetadataFile(p string) (Metadata, error) {
	data, err := s.vfs.ReadFile(p)
	if err != nil {
		return Metadata{}, err
	}
	var m Metadata
	if err := pagefmt.Decode(data, &m); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

// Close releases the lock, if held. Callers are expected to Flush before
// Close if they want their writes durable; Close itself performs no I/O
// besides releasing the lock.
func (s *Store[T]) Close() error {
	s.closed = true
	s.releaseLock()
	return nil
}

// Verify walks every reachable page file (regardless of whether it is
// referenced by the tree) and reports the first structural problem found:
// bad envelope, uuid mismatch, or an unreadable slot pair.
func (s *Store[T]) Verify() error {
	return s.walkPageFiles(func(id PageID, slot int, p string) error {
		data, err := s.vfs.ReadFile(p)
		if err != nil {
			return err
		}
		var page Page[T]
		if err := pagefmt.Decode(data, &page); err != nil {
			return dberr.WrapPath(dberr.KindCorrupt, "page failed to decode during verify", p, err)
		}
		if page.UUID != s.metadata.UUID {
			return dberr.WrapPath(dberr.KindUUIDMismatch, "page uuid mismatch during verify", p, nil)
		}
		if page.ID != id {
			return dberr.WrapPath(dberr.KindCorrupt, "page id does not match its filename", p, nil)
		}
		return nil
	})
}

func (s *Store[T]) walkPageFiles(fn func(id PageID, slot int, p string) error) error {
	return s.walkDir(s.dir, fn)
}

func (s *Store[T]) walkDir(dir string, fn func(id PageID, slot int, p string) error) error {
	entries, err := s.vfs.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		full := path.Join(dir, e.Name)
		if e.IsDir {
			if err := s.walkDir(full, fn); err != nil {
				return err
			}
			continue
		}
		id, slot, ok := isPageFilename(e.Name)
		if !ok {
			continue
		}
		if err := fn(id, slot, full); err != nil {
			return err
		}
	}
	return nil
}
