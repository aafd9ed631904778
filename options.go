package grebedb

import (
	"github.com/nutelladb/grebedb/internal/dberr"
	"github.com/nutelladb/grebedb/internal/pagefmt"
	"github.com/nutelladb/grebedb/internal/pagestore"
	"github.com/nutelladb/grebedb/vfs"
)

// OpenMode controls what Open does when the target location does or does
// not already contain a database.
type OpenMode int

const (
	// OpenCreateOrOpen loads an existing database or creates a new one.
	// This is the default.
	OpenCreateOrOpen OpenMode = iota
	// OpenCreateOnly fails with KindInvalidConfig if a database already
	// exists at the given path.
	OpenCreateOnly
	// OpenLoadOnly fails with KindDatabaseAbsent if no database exists.
	OpenLoadOnly
	// OpenReadOnly loads an existing database and rejects all mutation.
	OpenReadOnly
)

// CompressionLevel selects the Zstandard compression effort applied to
// each page before it is written.
type CompressionLevel int

const (
	CompressionNone CompressionLevel = iota
	CompressionVeryLow
	CompressionLow
	CompressionMedium
	CompressionHigh
)

func (c CompressionLevel) toPageFmt() pagefmt.CompressionLevel {
	switch c {
	case CompressionVeryLow:
		return pagefmt.CompressionVeryLow
	case CompressionLow:
		return pagefmt.CompressionLow
	case CompressionMedium:
		return pagefmt.CompressionMedium
	case CompressionHigh:
		return pagefmt.CompressionHigh
	default:
		return pagefmt.CompressionNone
	}
}

// Options configures Open. The zero value is not directly usable; call
// NewOptions to obtain the documented defaults.
type Options struct {
	// OpenMode selects create/load behavior. Default: OpenCreateOrOpen.
	OpenMode OpenMode
	// KeysPerNode is the B+ tree fill factor K described by the node
	// model; each node holds at most K keys and, except for the root,
	// at least ceil(K/2). Default: 1024. Must be >= 2.
	KeysPerNode int
	// PageCacheSize bounds how many pages are kept in memory before the
	// least-recently-used one is written back. Default: 64. Must be >= 1.
	PageCacheSize int
	// Compression selects how hard page contents are compressed.
	// Default: CompressionLow.
	Compression CompressionLevel
	// FileLocking, if true, takes an advisory exclusive lock on the
	// database directory for the lifetime of the handle. Default: true.
	FileLocking bool
	// FileSync selects how aggressively writes are flushed to stable
	// storage during Flush. Default: vfs.SyncData.
	FileSync vfs.SyncOption
	// AutomaticFlush, if true, calls Flush according to
	// AutomaticFlushThreshold's schedule instead of requiring the caller
	// to call it explicitly. Default: true.
	AutomaticFlush bool
	// AutomaticFlushThreshold is the base modification count used by the
	// automatic flush heuristic (see flushTracker). Default: 2048.
	AutomaticFlushThreshold int
}

// NewOptions returns the documented defaults.
func NewOptions() Options {
	return Options{
		OpenMode:                OpenCreateOrOpen,
		KeysPerNode:             1024,
		PageCacheSize:           64,
		Compression:             CompressionLow,
		FileLocking:             true,
		FileSync:                vfs.SyncData,
		AutomaticFlush:          true,
		AutomaticFlushThreshold: 2048,
	}
}

// Validate reports a KindInvalidConfig error if any field is out of range.
func (o Options) Validate() error {
	if o.KeysPerNode < 2 {
		return dberr.New(dberr.KindInvalidConfig, "keys_per_node must be at least 2")
	}
	if o.PageCacheSize < 1 {
		return dberr.New(dberr.KindInvalidConfig, "page_cache_size must be at least 1")
	}
	if o.AutomaticFlushThreshold < 1 {
		return dberr.New(dberr.KindInvalidConfig, "automatic_flush_threshold must be at least 1")
	}
	return nil
}

func (o Options) toStoreOptions(dir string) pagestore.Options {
	var mode pagestore.OpenMode
	switch o.OpenMode {
	case OpenCreateOnly:
		mode = pagestore.OpenCreateOnly
	case OpenLoadOnly:
		mode = pagestore.OpenLoadOnly
	case OpenReadOnly:
		mode = pagestore.OpenReadOnly
	default:
		mode = pagestore.OpenCreateOrOpen
	}
	return pagestore.Options{
		Dir:           dir,
		PageCacheSize: o.PageCacheSize,
		Compression:   o.Compression.toPageFmt(),
		FileLocking:   o.FileLocking,
		FileSync:      o.FileSync,
		OpenMode:      mode,
	}
}
