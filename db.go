// Package grebedb implements an embedded, single-process key-value store:
// a disk-backed B+ tree with a pluggable virtual filesystem, page-based
// storage with copy-on-write parity slots, and atomic metadata commit.
//
// A Database is not safe for concurrent use from multiple goroutines
// without external synchronization; grebedb targets a single writer at a
// time, per its concurrency model.
package grebedb

import (
	"go.uber.org/zap"

	"github.com/nutelladb/grebedb/internal/btree"
	"github.com/nutelladb/grebedb/internal/dberr"
	"github.com/nutelladb/grebedb/internal/pagestore"
	"github.com/nutelladb/grebedb/vfs"
)

// Database is the top-level handle applications use. Obtain one with
// Open or OpenPath.
type Database struct {
	vfs     vfs.Vfs
	store   *pagestore.Store[btree.Node]
	tree    *btree.Tree
	opts    Options
	tracker *flushTracker
	log     *zap.Logger
	closed  bool
}

// Open opens or creates a database rooted at dir on the given Vfs.
func Open(v vfs.Vfs, dir string, opts Options) (*Database, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	logger, _ := zap.NewProduction()
	if logger == nil {
		logger = zap.NewNop()
	}

	effectiveVfs := v
	if opts.OpenMode == OpenReadOnly {
		effectiveVfs = vfs.NewReadOnlyVfs(v)
	}

	store, err := pagestore.Open[btree.Node](effectiveVfs, opts.toStoreOptions(dir))
	if err != nil {
		logger.Error("failed to open page store", zap.String("dir", dir), zap.Error(err))
		logger.Sync()
		return nil, err
	}

	tree, err := btree.Open(store, opts.KeysPerNode)
	if err != nil {
		logger.Error("failed to open tree", zap.String("dir", dir), zap.Error(err))
		store.Close()
		logger.Sync()
		return nil, err
	}

	db := &Database{
		vfs:     effectiveVfs,
		store:   store,
		tree:    tree,
		opts:    opts,
		tracker: newFlushTracker(opts.AutomaticFlushThreshold, nil),
		log:     logger,
	}
	logger.Info("database opened",
		zap.String("dir", dir),
		zap.Bool("read_only", opts.OpenMode == OpenReadOnly),
		zap.Stringer("uuid", store.UUID()),
	)
	return db, nil
}

// OpenPath opens or creates a database at a real filesystem path.
func OpenPath(dir string, opts Options) (*Database, error) {
	return Open(vfs.NewOsVfs(), dir, opts)
}

// OpenMemory opens or creates a database backed entirely by memory, at
// an arbitrary path within a fresh MemoryVfs. Useful for tests and
// scratch databases that never need to survive process exit.
func OpenMemory(opts Options) (*Database, error) {
	return Open(vfs.NewMemoryVfs(), "/", opts)
}

func (db *Database) checkOpen() error {
	if db.closed {
		return dberr.New(dberr.KindClosed, "database is closed")
	}
	return nil
}

// Get returns the value stored for key, and whether it was present.
func (db *Database) Get(key []byte) ([]byte, bool, error) {
	if err := db.checkOpen(); err != nil {
		return nil, false, err
	}
	return db.tree.Get(key)
}

// Contains reports whether key is present.
func (db *Database) Contains(key []byte) (bool, error) {
	if err := db.checkOpen(); err != nil {
		return false, err
	}
	return db.tree.ContainsKey(key)
}

// Put inserts or overwrites key with value.
func (db *Database) Put(key, value []byte) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if db.opts.OpenMode == OpenReadOnly {
		return dberr.New(dberr.KindReadOnlyViolation, "database was opened read-only")
	}
	if err := db.tree.Put(key, value); err != nil {
		db.log.Error("closing database after write failure", zap.Error(err))
		db.closed = true
		return err
	}
	db.tracker.RecordModification()
	return db.maybeFlush()
}

// Remove deletes key if present, reporting whether it was found.
func (db *Database) Remove(key []byte) (bool, error) {
	if err := db.checkOpen(); err != nil {
		return false, err
	}
	if db.opts.OpenMode == OpenReadOnly {
		return false, dberr.New(dberr.KindReadOnlyViolation, "database was opened read-only")
	}
	removed, err := db.tree.Remove(key)
	if err != nil {
		db.log.Error("closing database after write failure", zap.Error(err))
		db.closed = true
		return false, err
	}
	if removed {
		db.tracker.RecordModification()
	}
	return removed, db.maybeFlush()
}

func (db *Database) maybeFlush() error {
	if !db.opts.AutomaticFlush || db.opts.OpenMode == OpenReadOnly {
		return nil
	}
	if !db.tracker.ShouldFlush() {
		return nil
	}
	return db.Flush()
}

// Flush writes every dirty page and an updated metadata record to
// storage. It is the only point (besides individual cache evictions)
// where Database performs disk I/O for content, and the only point where
// it fsyncs.
func (db *Database) Flush() error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if err := db.tree.Flush(); err != nil {
		db.log.Error("closing database after flush failure", zap.Error(err))
		db.closed = true
		return err
	}
	db.tracker.Reset()
	return nil
}

// Verify walks the entire tree and every page file, reporting the first
// structural inconsistency found.
func (db *Database) Verify() error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	return db.tree.Verify()
}

// KeyValueCount returns the number of key-value pairs currently stored,
// maintained incrementally rather than computed by a full scan.
func (db *Database) KeyValueCount() int64 {
	return db.store.KeyValueCount()
}

// Cursor returns a cursor over the entire key range in ascending order.
func (db *Database) Cursor() *Cursor {
	return &Cursor{inner: db.tree.NewCursor()}
}

// CursorRange returns a cursor bounded to keys in [lower, upper) (or any
// other combination of inclusive/exclusive endpoints). A nil lower starts
// from the beginning; hasUpper=false means "to the end".
func (db *Database) CursorRange(lower []byte, lowerInclusive bool, upper []byte, hasUpper, upperInclusive bool) *Cursor {
	return &Cursor{inner: db.tree.NewRangeCursor(lower, lowerInclusive, upper, hasUpper, upperInclusive)}
}

// Close flushes (if AutomaticFlush is enabled and the database is
// writable) and then releases the directory lock on every exit path,
// including when the flush itself fails.
func (db *Database) Close() error {
	if db.closed {
		// A handle closed by a failed operation still holds the store.
		err := db.store.Close()
		db.log.Sync()
		return err
	}
	var flushErr error
	if db.opts.AutomaticFlush && db.opts.OpenMode != OpenReadOnly {
		flushErr = db.tree.Flush()
		if flushErr != nil {
			db.log.Error("final flush on close failed", zap.Error(flushErr))
		}
	}
	db.closed = true
	closeErr := db.store.Close()
	if closeErr != nil {
		db.log.Error("failed to release store on close", zap.Error(closeErr))
	} else {
		db.log.Info("database closed")
	}
	db.log.Sync()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
