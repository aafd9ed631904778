package grebedb

import "github.com/nutelladb/grebedb/internal/btree"

// Cursor iterates a Database's keys in ascending order. It is invalidated
// by any subsequent Put or Remove on the same Database; calling Next
// after that returns a KindCursorInvalidated error.
type Cursor struct {
	inner *btree.Cursor
}

// Next advances the cursor, returning the next key/value pair, or
// ok=false once the range is exhausted.
func (c *Cursor) Next() (key, value []byte, ok bool, err error) {
	return c.inner.Next()
}
