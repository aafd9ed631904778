// Package dberr defines the error taxonomy shared by every layer of
// grebedb, from the page codec up through the database facade.
package dberr

import "fmt"

// Kind classifies the cause of an Error so callers can branch on it with
// errors.Is/errors.As without string matching.
type Kind int

const (
	// KindUnknown is never returned; it catches zero-value mistakes.
	KindUnknown Kind = iota
	// KindIO wraps a failure surfaced by the underlying VFS.
	KindIO
	// KindCorrupt indicates a page or metadata record failed validation
	// (bad magic, bad checksum, malformed payload, unknown compression).
	KindCorrupt
	// KindUUIDMismatch indicates a page's stored UUID does not match the
	// database's expected instance UUID.
	KindUUIDMismatch
	// KindNotFound indicates a page ID has no corresponding file.
	KindNotFound
	// KindStaleRevision indicates a page's only readable on-disk copies
	// carry a revision newer than any this handle has committed or
	// written itself.
	KindStaleRevision
	// KindLocked indicates the database directory is already locked by
	// another handle.
	KindLocked
	// KindReadOnlyViolation indicates a mutating call on a read-only
	// database or VFS wrapper.
	KindReadOnlyViolation
	// KindCursorInvalidated indicates a cursor was advanced after the
	// tree it was reading from was mutated.
	KindCursorInvalidated
	// KindInvalidConfig indicates an Options field failed validation, or
	// OpenCreateOnly found an existing database.
	KindInvalidConfig
	// KindDatabaseAbsent indicates OpenLoadOnly or OpenReadOnly was
	// requested but no database exists at the given path.
	KindDatabaseAbsent
	// KindClosed indicates the database handle already failed a prior
	// operation and will not accept further calls.
	KindClosed
	// KindLimitExceeded indicates an internal bound (such as the descent
	// depth guard) was exceeded, most likely due to a corrupted tree.
	KindLimitExceeded
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindCorrupt:
		return "corrupt"
	case KindUUIDMismatch:
		return "uuid_mismatch"
	case KindNotFound:
		return "not_found"
	case KindStaleRevision:
		return "stale_revision"
	case KindLocked:
		return "locked"
	case KindReadOnlyViolation:
		return "read_only_violation"
	case KindCursorInvalidated:
		return "cursor_invalidated"
	case KindInvalidConfig:
		return "invalid_config"
	case KindDatabaseAbsent:
		return "database_absent"
	case KindClosed:
		return "closed"
	case KindLimitExceeded:
		return "limit_exceeded"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every grebedb package.
type Error struct {
	Kind   Kind
	Reason string
	Path   string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, dberr.New(dberr.KindNotFound, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an Error of the given kind with a human-readable reason.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap builds an Error of the given kind that wraps a lower-level error.
func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// WrapPath is Wrap plus the path that was being operated on, used
// throughout the VFS and page store so failures point at a file.
func WrapPath(kind Kind, reason, path string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Path: path, Err: err}
}

// Of returns the Kind of err if it is (or wraps) a *Error, else KindUnknown.
func Of(err error) Kind {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind
	}
	return KindUnknown
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	return Of(err) == kind
}

// IOErrorf is a convenience constructor mirroring fmt.Errorf for the
// common case of wrapping a raw I/O failure.
func IOErrorf(path string, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindIO, Reason: fmt.Sprintf(format, args...), Path: path, Err: err}
}
