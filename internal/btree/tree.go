package btree

import (
	"bytes"

	"github.com/nutelladb/grebedb/internal/dberr"
	"github.com/nutelladb/grebedb/internal/pagestore"
)

// maxDescentDepth bounds how many levels a search will walk before giving
// up and reporting corruption, protecting against a cyclic tree caused by
// a corrupted child pointer. Grounded on the original tree walk's
// analogous u16::MAX iteration guard.
const maxDescentDepth = 1 << 16

// Tree is a B+ tree keyed by arbitrary byte strings, backed by a page
// store of Node values.
type Tree struct {
	store       *pagestore.Store[Node]
	keysPerNode int
	minKeys     int
	// generation increments on every Put/Remove so outstanding cursors
	// can detect that the tree shifted under them.
	generation uint64
}

// Open wraps an already-opened page store as a tree with the given fill
// factor. keysPerNode must be at least 2.
func Open(store *pagestore.Store[Node], keysPerNode int) (*Tree, error) {
	if keysPerNode < 2 {
		return nil, dberr.New(dberr.KindInvalidConfig, "keys_per_node must be at least 2")
	}
	return &Tree{
		store:       store,
		keysPerNode: keysPerNode,
		minKeys:     (keysPerNode + 1) / 2,
	}, nil
}

func (t *Tree) loadNode(id pagestore.PageID) (*Node, error) {
	page, err := t.store.Get(id)
	if err != nil {
		return nil, err
	}
	return &page.Content, nil
}

func (t *Tree) saveNode(id pagestore.PageID, n *Node) error {
	return t.store.Put(id, *n)
}

func (t *Tree) freeNode(id pagestore.PageID) error {
	return t.store.Free(id)
}

// descentFrame records one internal node visited while walking down to a
// leaf: its own page ID and the index of the child chosen. Because nodes
// carry no parent pointer, this stack is how a mutation finds its way
// back up to rebalance ancestors.
type descentFrame struct {
	id    pagestore.PageID
	index int
}

// descendToLeaf walks from the root to the leaf that should contain key,
// returning the leaf's page ID and the stack of internal nodes passed
// through.
func (t *Tree) descendToLeaf(key []byte) (leafID pagestore.PageID, stack []descentFrame, err error) {
	id := t.store.RootID()
	for depth := 0; depth < maxDescentDepth; depth++ {
		node, err := t.loadNode(id)
		if err != nil {
			return 0, nil, err
		}
		if node.Kind == KindLeaf {
			return id, stack, nil
		}
		if node.Kind != KindInternal {
			return 0, nil, dberr.WrapPath(dberr.KindCorrupt, "expected internal or leaf node", "", nil)
		}
		idx := node.Internal.findChild(key)
		stack = append(stack, descentFrame{id: id, index: idx})
		id = node.Internal.Children[idx]
	}
	return 0, nil, dberr.New(dberr.KindLimitExceeded, "tree descent exceeded maximum depth")
}

// ContainsKey reports whether key is present.
func (t *Tree) ContainsKey(key []byte) (bool, error) {
	if t.store.RootID() == 0 {
		return false, nil
	}
	leafID, _, err := t.descendToLeaf(key)
	if err != nil {
		return false, err
	}
	leaf, err := t.loadNode(leafID)
	if err != nil {
		return false, err
	}
	_, ok := leaf.Leaf.get(key)
	return ok, nil
}

// Get returns the value for key, and whether it was present.
func (t *Tree) Get(key []byte) ([]byte, bool, error) {
	if t.store.RootID() == 0 {
		return nil, false, nil
	}
	leafID, _, err := t.descendToLeaf(key)
	if err != nil {
		return nil, false, err
	}
	leaf, err := t.loadNode(leafID)
	if err != nil {
		return nil, false, err
	}
	v, ok := leaf.Leaf.get(key)
	return v, ok, nil
}

// Put inserts or overwrites key with value.
func (t *Tree) Put(key, value []byte) error {
	t.generation++
	if t.store.RootID() == 0 {
		id, err := t.store.Allocate()
		if err != nil {
			return err
		}
		leaf := NewLeafNode()
		leaf.Leaf.put(key, value)
		if err := t.saveNode(id, &leaf); err != nil {
			return err
		}
		t.store.SetRootID(id)
		t.store.AdjustKeyValueCount(1)
		return nil
	}

	leafID, stack, err := t.descendToLeaf(key)
	if err != nil {
		return err
	}
	leaf, err := t.loadNode(leafID)
	if err != nil {
		return err
	}

	isNew := leaf.Leaf.put(key, value)
	if isNew {
		t.store.AdjustKeyValueCount(1)
	}

	if len(leaf.Leaf.Keys) <= t.keysPerNode {
		return t.saveNode(leafID, leaf)
	}

	// Leaf overflowed: split it and propagate the new separator upward.
	rightLeaf, separator := splitLeaf(&leaf.Leaf)
	rightID, err := t.store.Allocate()
	if err != nil {
		return err
	}
	right := Node{Kind: KindLeaf, Leaf: rightLeaf}
	if err := t.saveNode(leafID, leaf); err != nil {
		return err
	}
	if err := t.saveNode(rightID, &right); err != nil {
		return err
	}

	return t.propagateSplit(stack, separator, rightID)
}

// propagateSplit inserts (separator, newChildID) into the parent named by
// the top of stack, splitting that parent (and its ancestors, and
// possibly creating a new root) as many times as necessary.
func (t *Tree) propagateSplit(stack []descentFrame, separator []byte, newChildID pagestore.PageID) error {
	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		parent, err := t.loadNode(frame.id)
		if err != nil {
			return err
		}
		parent.Internal.insertChild(frame.index, separator, newChildID)

		if len(parent.Internal.Keys) <= t.keysPerNode {
			return t.saveNode(frame.id, parent)
		}

		rightInternal, newSeparator := splitInternal(&parent.Internal)
		rightID, err := t.store.Allocate()
		if err != nil {
			return err
		}
		right := Node{Kind: KindInternal, Internal: rightInternal}
		if err := t.saveNode(frame.id, parent); err != nil {
			return err
		}
		if err := t.saveNode(rightID, &right); err != nil {
			return err
		}
		separator, newChildID = newSeparator, rightID
	}

	// The root itself split: create a new internal root over the two
	// halves.
	oldRootID := t.store.RootID()
	newRootID, err := t.store.Allocate()
	if err != nil {
		return err
	}
	newRoot := NewInternalNode()
	newRoot.Internal.Keys = [][]byte{separator}
	newRoot.Internal.Children = []pagestore.PageID{oldRootID, newChildID}
	if err := t.saveNode(newRootID, &newRoot); err != nil {
		return err
	}
	t.store.SetRootID(newRootID)
	return nil
}

// Remove deletes key if present, reporting whether it was found.
func (t *Tree) Remove(key []byte) (bool, error) {
	t.generation++
	if t.store.RootID() == 0 {
		return false, nil
	}

	leafID, stack, err := t.descendToLeaf(key)
	if err != nil {
		return false, err
	}
	leaf, err := t.loadNode(leafID)
	if err != nil {
		return false, err
	}
	if !leaf.Leaf.remove(key) {
		return false, nil
	}
	t.store.AdjustKeyValueCount(-1)

	if len(stack) == 0 {
		// The leaf is the root; it never needs rebalancing. An empty
		// root leaf is freed and the root ID reset to zero; no EmptyRoot
		// sentinel page is written.
		if len(leaf.Leaf.Keys) == 0 {
			if err := t.freeNode(leafID); err != nil {
				return true, err
			}
			t.store.SetRootID(0)
			return true, nil
		}
		return true, t.saveNode(leafID, leaf)
	}

	if len(leaf.Leaf.Keys) >= t.minKeys {
		return true, t.saveNode(leafID, leaf)
	}

	return true, t.rebalance(leafID, leaf, stack)
}

// rebalance fixes an underflowed node (initially a leaf, and possibly its
// ancestors) by borrowing from a sibling or merging with one, walking up
// the descent stack until the tree is back in a valid state or the root
// is reached.
func (t *Tree) rebalance(curID pagestore.PageID, cur *Node, stack []descentFrame) error {
	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		parent, err := t.loadNode(frame.id)
		if err != nil {
			return err
		}
		idx := frame.index

		if idx > 0 {
			leftID := parent.Internal.Children[idx-1]
			left, err := t.loadNode(leftID)
			if err != nil {
				return err
			}
			if nodeKeyCount(left) > t.minKeys {
				newSeparator := borrowFromLeft(&parent.Internal, idx, left, cur)
				parent.Internal.Keys[idx-1] = newSeparator
				if err := t.saveNode(leftID, left); err != nil {
					return err
				}
				if err := t.saveNode(curID, cur); err != nil {
					return err
				}
				return t.saveNode(frame.id, parent)
			}
		}

		if idx < len(parent.Internal.Children)-1 {
			rightID := parent.Internal.Children[idx+1]
			right, err := t.loadNode(rightID)
			if err != nil {
				return err
			}
			if nodeKeyCount(right) > t.minKeys {
				newSeparator := borrowFromRight(&parent.Internal, idx, cur, right)
				parent.Internal.Keys[idx] = newSeparator
				if err := t.saveNode(curID, cur); err != nil {
					return err
				}
				if err := t.saveNode(rightID, right); err != nil {
					return err
				}
				return t.saveNode(frame.id, parent)
			}
		}

		// No sibling has a surplus: merge with one of them.
		if idx > 0 {
			leftID := parent.Internal.Children[idx-1]
			left, err := t.loadNode(leftID)
			if err != nil {
				return err
			}
			separator := parent.Internal.Keys[idx-1]
			mergeNodes(left, cur, separator)
			if err := t.freeNode(curID); err != nil {
				return err
			}
			parent.Internal.removeChild(idx - 1)
			if err := t.saveNode(leftID, left); err != nil {
				return err
			}
			curID, cur = leftID, left
		} else {
			rightID := parent.Internal.Children[idx+1]
			right, err := t.loadNode(rightID)
			if err != nil {
				return err
			}
			separator := parent.Internal.Keys[idx]
			mergeNodes(cur, right, separator)
			if err := t.freeNode(rightID); err != nil {
				return err
			}
			parent.Internal.removeChild(idx)
			if err := t.saveNode(curID, cur); err != nil {
				return err
			}
		}

		if len(stack) == 0 {
			// parent is the root.
			if len(parent.Internal.Children) == 1 {
				if err := t.freeNode(frame.id); err != nil {
					return err
				}
				t.store.SetRootID(parent.Internal.Children[0])
				return nil
			}
			return t.saveNode(frame.id, parent)
		}

		if nodeKeyCount(parent) >= t.minKeys {
			return t.saveNode(frame.id, parent)
		}

		curID, cur = frame.id, parent
	}
	return t.saveNode(curID, cur)
}

func nodeKeyCount(n *Node) int {
	if n.Kind == KindLeaf {
		return len(n.Leaf.Keys)
	}
	return len(n.Internal.Keys)
}

func mergeNodes(left, right *Node, separator []byte) {
	if left.Kind == KindLeaf {
		mergeLeaf(&left.Leaf, &right.Leaf)
	} else {
		mergeInternal(&left.Internal, &right.Internal, separator)
	}
}

// borrowFromLeft moves the last item of left onto the front of cur,
// returning the new separator key the parent should use between them.
func borrowFromLeft(parent *InternalNode, idx int, left, cur *Node) []byte {
	if cur.Kind == KindLeaf {
		n := len(left.Leaf.Keys)
		k, v := left.Leaf.Keys[n-1], left.Leaf.Values[n-1]
		left.Leaf.Keys = left.Leaf.Keys[:n-1]
		left.Leaf.Values = left.Leaf.Values[:n-1]
		cur.Leaf.Keys = append([][]byte{k}, cur.Leaf.Keys...)
		cur.Leaf.Values = append([][]byte{v}, cur.Leaf.Values...)
		return k
	}
	n := len(left.Internal.Keys)
	borrowedKey := left.Internal.Keys[n-1]
	borrowedChild := left.Internal.Children[n]
	left.Internal.Keys = left.Internal.Keys[:n-1]
	left.Internal.Children = left.Internal.Children[:n]
	oldSeparator := parent.Keys[idx-1]
	cur.Internal.Keys = append([][]byte{oldSeparator}, cur.Internal.Keys...)
	cur.Internal.Children = append([]pagestore.PageID{borrowedChild}, cur.Internal.Children...)
	return borrowedKey
}

// borrowFromRight moves the first item of right onto the back of cur,
// returning the new separator key the parent should use between them.
func borrowFromRight(parent *InternalNode, idx int, cur, right *Node) []byte {
	if cur.Kind == KindLeaf {
		k, v := right.Leaf.Keys[0], right.Leaf.Values[0]
		right.Leaf.Keys = right.Leaf.Keys[1:]
		right.Leaf.Values = right.Leaf.Values[1:]
		cur.Leaf.Keys = append(cur.Leaf.Keys, k)
		cur.Leaf.Values = append(cur.Leaf.Values, v)
		if len(right.Leaf.Keys) == 0 {
			return k
		}
		return right.Leaf.Keys[0]
	}
	oldSeparator := parent.Keys[idx]
	borrowedChild := right.Internal.Children[0]
	cur.Internal.Keys = append(cur.Internal.Keys, oldSeparator)
	cur.Internal.Children = append(cur.Internal.Children, borrowedChild)
	newSeparator := right.Internal.Keys[0]
	right.Internal.Keys = right.Internal.Keys[1:]
	right.Internal.Children = right.Internal.Children[1:]
	return newSeparator
}

// Flush delegates to the underlying page store.
func (t *Tree) Flush() error { return t.store.Flush() }

// Verify delegates structural validation to the underlying page store,
// then walks the tree checking each node's key ordering and fill
// factor, and finally confirms that the store's free list and the set
// of IDs reachable from the root together account for every page ID
// ever allocated.
func (t *Tree) Verify() error {
	if err := t.store.Verify(); err != nil {
		return err
	}
	rootID := t.store.RootID()
	reachable := make(map[pagestore.PageID]bool)
	if rootID != 0 {
		reachable[rootID] = true
		if err := t.verifyNode(rootID, 0, true, reachable); err != nil {
			return err
		}
	}
	return t.verifyFreeListSoundness(reachable)
}

func (t *Tree) verifyNode(id pagestore.PageID, depth int, isRoot bool, reachable map[pagestore.PageID]bool) error {
	if depth > maxDescentDepth {
		return dberr.New(dberr.KindLimitExceeded, "tree verification exceeded maximum depth")
	}
	node, err := t.loadNode(id)
	if err != nil {
		return err
	}
	switch node.Kind {
	case KindLeaf:
		for i := 1; i < len(node.Leaf.Keys); i++ {
			if bytes.Compare(node.Leaf.Keys[i-1], node.Leaf.Keys[i]) >= 0 {
				return dberr.New(dberr.KindCorrupt, "leaf keys are not in strict ascending order")
			}
		}
		if len(node.Leaf.Keys) != len(node.Leaf.Values) {
			return dberr.New(dberr.KindCorrupt, "leaf keys/values length mismatch")
		}
		if err := t.verifyFillFactor(len(node.Leaf.Keys), isRoot); err != nil {
			return err
		}
	case KindInternal:
		if len(node.Internal.Children) != len(node.Internal.Keys)+1 {
			return dberr.New(dberr.KindCorrupt, "internal node child/key count mismatch")
		}
		if err := t.verifyFillFactor(len(node.Internal.Keys), isRoot); err != nil {
			return err
		}
		for _, child := range node.Internal.Children {
			reachable[child] = true
			if err := t.verifyNode(child, depth+1, false, reachable); err != nil {
				return err
			}
		}
	default:
		return dberr.New(dberr.KindCorrupt, "unexpected node kind below root")
	}
	return nil
}

// verifyFillFactor checks that a node's key count n satisfies min <= n
// <= keysPerNode; the root is exempt only from the lower bound, since a
// freshly created or nearly-drained tree may have far fewer than min
// keys at the root without that being a structural problem.
func (t *Tree) verifyFillFactor(n int, isRoot bool) error {
	if n > t.keysPerNode {
		return dberr.New(dberr.KindCorrupt, "node exceeds the maximum fill factor")
	}
	if !isRoot && n < t.minKeys {
		return dberr.New(dberr.KindCorrupt, "node is below the minimum fill factor")
	}
	return nil
}

// verifyFreeListSoundness checks that the store's free list contains no
// ID reachable from the root, and that every ID from 1 up to the
// current ID counter is accounted for as either reachable or free.
func (t *Tree) verifyFreeListSoundness(reachable map[pagestore.PageID]bool) error {
	freed := make(map[pagestore.PageID]bool)
	for _, id := range t.store.FreeIDs() {
		if reachable[id] {
			return dberr.New(dberr.KindCorrupt, "free list contains a page id reachable from the root")
		}
		freed[id] = true
	}
	for id := pagestore.PageID(1); id <= t.store.IDCounter(); id++ {
		if !reachable[id] && !freed[id] {
			return dberr.New(dberr.KindCorrupt, "page id is neither reachable nor on the free list")
		}
	}
	return nil
}
