// Package pagestore implements the durable page layer beneath the B+
// tree: page ID allocation, the bounded LRU page cache, revision-parity
// copy-on-write page files, and atomic metadata commit.
package pagestore

import "github.com/google/uuid"

// PageID identifies one on-disk node file. Zero is reserved and never
// allocated to a live page.
type PageID uint64

// Revision is the database commit revision a page image was written
// under (the revision the next metadata commit will carry). Its parity
// (even/odd) selects which of the two on-disk slots (_0/_1) holds the
// current copy, so a crash mid-write always leaves the other slot intact.
type Revision uint64

// Page is the envelope persisted around every node payload. It is generic
// over the content type so the same store implementation backs any node
// representation the tree layer chooses.
type Page[T any] struct {
	UUID     uuid.UUID `codec:"uuid"`
	ID       PageID    `codec:"id"`
	Revision Revision  `codec:"revision"`
	Deleted  bool      `codec:"deleted"`
	Content  T         `codec:"content"`
}

// Metadata is the single small record that anchors a database: the
// database's instance UUID, its own commit revision, the page ID
// allocator state, and the root page ID of the tree.
type Metadata struct {
	UUID     uuid.UUID `codec:"uuid"`
	Revision Revision  `codec:"revision"`
	// IDCounter is the highest PageID handed out so far (zero before the
	// first allocation); it is not the next ID to hand out. Once
	// FreeIDList is empty, the next fresh ID is IDCounter+1.
	IDCounter PageID `codec:"id_counter"`
	// FreeIDList holds previously freed page IDs available for reuse; the
	// highest-valued entry is reused first, regardless of free order.
	FreeIDList []PageID `codec:"free_id_list"`
	// RootID is zero when the tree is empty (EmptyRoot).
	RootID PageID `codec:"root_id"`
	// KeyValueCount is a running total maintained by the tree so the
	// facade can report size without a full scan. Not part of the
	// documented metadata fields; kept as a namespaced extension so
	// older tooling that only knows the documented keys still decodes
	// the record.
	KeyValueCount int64 `codec:"x_key_value_count"`
}

// Clone returns a deep-enough copy for safe mutation while building the
// next commit.
func (m Metadata) Clone() Metadata {
	out := m
	out.FreeIDList = append([]PageID(nil), m.FreeIDList...)
	return out
}

// NewPageID returns the next page ID to use: the highest-valued ID
// currently on the free list, or a freshly bumped counter value if the
// free list is empty.
func (m *Metadata) NewPageID() PageID {
	if n := len(m.FreeIDList); n > 0 {
		maxIdx := 0
		for i := 1; i < n; i++ {
			if m.FreeIDList[i] > m.FreeIDList[maxIdx] {
				maxIdx = i
			}
		}
		id := m.FreeIDList[maxIdx]
		m.FreeIDList[maxIdx] = m.FreeIDList[n-1]
		m.FreeIDList = m.FreeIDList[:n-1]
		return id
	}
	m.IDCounter++
	return m.IDCounter
}

// FreePageID returns id to the free list for future reuse.
func (m *Metadata) FreePageID(id PageID) {
	m.FreeIDList = append(m.FreeIDList, id)
}
