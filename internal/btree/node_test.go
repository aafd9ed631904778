package btree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutelladb/grebedb/internal/pagestore"
)

func TestLeafNodePutAndGet(t *testing.T) {
	leaf := LeafNode{}
	leaf.put([]byte("b"), []byte("2"))
	leaf.put([]byte("a"), []byte("1"))
	leaf.put([]byte("c"), []byte("3"))

	assert.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, leaf.Keys)

	v, ok := leaf.get([]byte("b"))
	require.True(t, ok)
	assert.Equal(t, []byte("2"), v)

	_, ok = leaf.get([]byte("missing"))
	assert.False(t, ok)
}

func TestLeafNodeSplitEven(t *testing.T) {
	leaf := LeafNode{}
	for _, k := range []string{"a", "b", "c", "d"} {
		leaf.put([]byte(k), []byte(k))
	}
	right, sep := splitLeaf(&leaf)

	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, leaf.Keys)
	assert.Equal(t, [][]byte{[]byte("c"), []byte("d")}, right.Keys)
	assert.Equal(t, []byte("c"), sep)
}

func TestInternalNodeSplitOdd(t *testing.T) {
	n := InternalNode{
		Keys:     [][]byte{[]byte("b"), []byte("d"), []byte("f")},
		Children: []pagestore.PageID{1, 2, 3, 4},
	}
	right, sep := splitInternal(&n)

	assert.Equal(t, []byte("d"), sep)
	assert.Equal(t, [][]byte{[]byte("b")}, n.Keys)
	assert.Equal(t, []pagestore.PageID{1, 2}, n.Children)
	assert.Equal(t, [][]byte{[]byte("f")}, right.Keys)
	assert.Equal(t, []pagestore.PageID{3, 4}, right.Children)
}

func TestInternalNodeFindChild(t *testing.T) {
	n := InternalNode{
		Keys:     [][]byte{[]byte("b"), []byte("d")},
		Children: []pagestore.PageID{1, 2, 3},
	}
	assert.Equal(t, 0, n.findChild([]byte("a")))
	assert.Equal(t, 1, n.findChild([]byte("b")))
	assert.Equal(t, 1, n.findChild([]byte("c")))
	assert.Equal(t, 2, n.findChild([]byte("d")))
	assert.Equal(t, 2, n.findChild([]byte("z")))
}

func TestMergeLeaf(t *testing.T) {
	left := LeafNode{Keys: [][]byte{[]byte("a")}, Values: [][]byte{[]byte("1")}}
	right := LeafNode{Keys: [][]byte{[]byte("b")}, Values: [][]byte{[]byte("2")}}
	mergeLeaf(&left, &right)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, left.Keys)
}
