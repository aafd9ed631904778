package btree

import (
	"bytes"

	"github.com/nutelladb/grebedb/internal/dberr"
	"github.com/nutelladb/grebedb/internal/pagestore"
)

// Cursor walks a tree's keys in ascending order. It holds no parent
// pointers or leaf-to-leaf links; instead it keeps the descent stack from
// the root down to its current leaf, and advances to the next leaf by
// walking that stack up to the nearest ancestor with an unvisited right
// sibling and descending leftmost from there. Any mutation of the tree
// invalidates every outstanding cursor.
type Cursor struct {
	tree *Tree

	started    bool
	exhausted  bool
	lowerKey   []byte
	lowerIncl  bool
	hasUpper   bool
	upperKey   []byte
	upperIncl  bool
	generation uint64

	stack  []descentFrame
	leafID pagestore.PageID
	leaf   *Node
	idx    int
}

// NewCursor returns a cursor over the tree's full key range.
func (t *Tree) NewCursor() *Cursor {
	return &Cursor{tree: t, lowerIncl: true, generation: t.generation}
}

// NewRangeCursor returns a cursor bounded by lower/upper. A nil lower
// means "from the beginning"; hasUpper=false means "to the end".
func (t *Tree) NewRangeCursor(lower []byte, lowerIncl bool, upper []byte, hasUpper, upperIncl bool) *Cursor {
	return &Cursor{
		tree: t, lowerKey: lower, lowerIncl: lowerIncl,
		hasUpper: hasUpper, upperKey: upper, upperIncl: upperIncl,
		generation: t.generation,
	}
}

// Invalid reports whether the tree was mutated since this cursor was
// created, which invalidates any further Next call.
func (c *Cursor) Invalid() bool {
	return c.generation != c.tree.generation
}

// Next advances the cursor and returns the next (key, value) pair, or
// ok=false when the range is exhausted.
func (c *Cursor) Next() (key, value []byte, ok bool, err error) {
	if c.Invalid() {
		return nil, nil, false, dberr.New(dberr.KindCursorInvalidated, "tree was modified since this cursor was created")
	}
	if c.exhausted {
		return nil, nil, false, nil
	}
	if c.tree.store.RootID() == 0 {
		c.exhausted = true
		return nil, nil, false, nil
	}

	if !c.started {
		c.started = true
		leafID, stack, err := c.tree.descendToLeaf(c.lowerKey)
		if err != nil {
			return nil, nil, false, err
		}
		leaf, err := c.tree.loadNode(leafID)
		if err != nil {
			return nil, nil, false, err
		}
		idx := 0
		if c.lowerKey != nil {
			found := false
			idx, found = search(leaf.Leaf.Keys, c.lowerKey)
			if found && !c.lowerIncl {
				idx++
			}
		}
		c.leafID, c.leaf, c.stack, c.idx = leafID, leaf, stack, idx
	} else {
		c.idx++
	}

	for c.idx >= len(c.leaf.Leaf.Keys) {
		advanced, err := c.advanceToNextLeaf()
		if err != nil {
			return nil, nil, false, err
		}
		if !advanced {
			c.exhausted = true
			return nil, nil, false, nil
		}
	}

	k := c.leaf.Leaf.Keys[c.idx]
	if c.hasUpper {
		cmp := bytes.Compare(k, c.upperKey)
		if cmp > 0 || (cmp == 0 && !c.upperIncl) {
			c.exhausted = true
			return nil, nil, false, nil
		}
	}
	v := c.leaf.Leaf.Values[c.idx]
	return k, v, true, nil
}

// advanceToNextLeaf walks the descent stack up to the nearest ancestor
// with a not-yet-visited right sibling, then descends leftmost from that
// sibling to find the next leaf in key order. It reports false once the
// stack is exhausted, meaning there is no next leaf.
func (c *Cursor) advanceToNextLeaf() (bool, error) {
	for len(c.stack) > 0 {
		top := c.stack[len(c.stack)-1]
		c.stack = c.stack[:len(c.stack)-1]

		parent, err := c.tree.loadNode(top.id)
		if err != nil {
			return false, err
		}
		nextIndex := top.index + 1
		if nextIndex >= len(parent.Internal.Children) {
			continue
		}

		c.stack = append(c.stack, descentFrame{id: top.id, index: nextIndex})
		childID := parent.Internal.Children[nextIndex]
		leafID, leaf, err := c.descendLeftmost(childID)
		if err != nil {
			return false, err
		}
		c.leafID, c.leaf, c.idx = leafID, leaf, 0
		return true, nil
	}
	return false, nil
}

// descendLeftmost walks down from id always choosing the first child,
// pushing a frame for every internal node it passes through, until it
// reaches a leaf.
func (c *Cursor) descendLeftmost(id pagestore.PageID) (pagestore.PageID, *Node, error) {
	for {
		node, err := c.tree.loadNode(id)
		if err != nil {
			return 0, nil, err
		}
		if node.Kind == KindLeaf {
			return id, node, nil
		}
		c.stack = append(c.stack, descentFrame{id: id, index: 0})
		id = node.Internal.Children[0]
	}
}
