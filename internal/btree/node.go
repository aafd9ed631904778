// Package btree implements the on-disk B+ tree: node search/insert/
// remove/split/merge and a forward cursor, built on top of pagestore's
// generic page store. Nodes carry no parent pointers; the tree walks a
// caller-side descent stack instead, so a node can be relocated (split,
// merged, or promoted to root) without invalidating a pointer held by
// another node.
package btree

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ugorji/go/codec"

	"github.com/nutelladb/grebedb/internal/pagestore"
)

// Kind tags which variant a Node currently holds.
type Kind int

const (
	KindEmptyRoot Kind = iota
	KindInternal
	KindLeaf
)

// Node is the single wire representation for every tree node: an empty
// root sentinel, an internal (index) node, or a leaf holding key-value
// pairs. Exactly one of the Internal/Leaf fields is meaningful, selected
// by Kind; this keeps a single concrete type flowing through
// pagestore.Page[Node] instead of requiring the store to know about a
// discriminated union.
type Node struct {
	Kind     Kind
	Internal InternalNode
	Leaf     LeafNode
}

// InternalNode indexes len(Children) subtrees using len(Keys) ==
// len(Children)-1 separator keys: Children[i] holds keys < Keys[i] for
// i==0, Keys[i-1] <= keys < Keys[i] for 0<i<len(Keys), and keys >=
// Keys[len(Keys)-1] for the last child.
type InternalNode struct {
	Keys     [][]byte
	Children []pagestore.PageID
}

// LeafNode holds the actual key-value pairs in strict ascending key order.
type LeafNode struct {
	Keys   [][]byte
	Values [][]byte
}

// EmptyRootNode returns the sentinel value stored at the root page when
// the tree holds no keys at all.
func EmptyRootNode() Node {
	return Node{Kind: KindEmptyRoot}
}

func NewLeafNode() Node {
	return Node{Kind: KindLeaf}
}

func NewInternalNode() Node {
	return Node{Kind: KindInternal}
}

// internalNodeWire and leafNodeWire are the on-the-wire shapes of the two
// non-sentinel node variants, each nested one level under a single
// "internal" or "leaf" map key. Node itself has no fixed wire shape (it
// is a string for the empty-root sentinel, or one of these two maps
// otherwise), so it implements codec.Selfer instead of relying on struct
// tags.
type internalNodeWire struct {
	Keys     [][]byte           `codec:"keys"`
	Children []pagestore.PageID `codec:"children"`
}

type leafNodeWire struct {
	Keys   [][]byte `codec:"keys"`
	Values [][]byte `codec:"values"`
}

const emptyRootWireValue = "empty_root"

// CodecEncodeSelf writes a Node as either the bare string "empty_root"
// or a single-key map tagging its variant, matching the payload schema
// documented for on-disk node records.
func (n Node) CodecEncodeSelf(e *codec.Encoder) {
	switch n.Kind {
	case KindEmptyRoot:
		e.MustEncode(emptyRootWireValue)
	case KindInternal:
		e.MustEncode(map[string]internalNodeWire{
			"internal": {Keys: n.Internal.Keys, Children: n.Internal.Children},
		})
	case KindLeaf:
		e.MustEncode(map[string]leafNodeWire{
			"leaf": {Keys: n.Leaf.Keys, Values: n.Leaf.Values},
		})
	default:
		panic(fmt.Sprintf("btree: cannot encode node of unknown kind %d", n.Kind))
	}
}

// CodecDecodeSelf is the inverse of CodecEncodeSelf. It decodes into a
// generic interface{} first since the wire shape is polymorphic, then
// dispatches on the concrete type msgpack produced for it.
func (n *Node) CodecDecodeSelf(d *codec.Decoder) {
	var raw interface{}
	d.MustDecode(&raw)

	switch v := raw.(type) {
	case string:
		if v != emptyRootWireValue {
			panic(fmt.Sprintf("btree: unrecognized node string %q", v))
		}
		*n = Node{Kind: KindEmptyRoot}
	case map[string]interface{}, map[interface{}]interface{}:
		decodeVariantNode(n, asStringMap(v))
	default:
		panic(fmt.Sprintf("btree: unrecognized node payload of type %T", raw))
	}
}

func decodeVariantNode(n *Node, m map[string]interface{}) {
	if raw, ok := m["internal"]; ok {
		n.Kind = KindInternal
		n.Internal = decodeInternalWire(raw)
		return
	}
	if raw, ok := m["leaf"]; ok {
		n.Kind = KindLeaf
		n.Leaf = decodeLeafWire(raw)
		return
	}
	panic("btree: node map has neither an \"internal\" nor a \"leaf\" key")
}

func decodeInternalWire(raw interface{}) InternalNode {
	m := asStringMap(raw)
	return InternalNode{
		Keys:     decodeByteSliceList(m["keys"]),
		Children: decodePageIDList(m["children"]),
	}
}

func decodeLeafWire(raw interface{}) LeafNode {
	m := asStringMap(raw)
	return LeafNode{
		Keys:   decodeByteSliceList(m["keys"]),
		Values: decodeByteSliceList(m["values"]),
	}
}

// asStringMap normalizes the two shapes ugorji may hand back for a
// decoded msgpack map, depending on its configured map type.
func asStringMap(raw interface{}) map[string]interface{} {
	switch v := raw.(type) {
	case map[string]interface{}:
		return v
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			ks, ok := k.(string)
			if !ok {
				panic(fmt.Sprintf("btree: node map key is not a string: %v", k))
			}
			out[ks] = val
		}
		return out
	default:
		panic(fmt.Sprintf("btree: expected a map, got %T", raw))
	}
}

func decodeByteSliceList(raw interface{}) [][]byte {
	if raw == nil {
		return nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		panic(fmt.Sprintf("btree: expected a list, got %T", raw))
	}
	out := make([][]byte, len(items))
	for i, item := range items {
		out[i] = decodeByteSlice(item)
	}
	return out
}

func decodeByteSlice(raw interface{}) []byte {
	switch v := raw.(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	case nil:
		return nil
	default:
		panic(fmt.Sprintf("btree: expected binary data, got %T", raw))
	}
}

func decodePageIDList(raw interface{}) []pagestore.PageID {
	if raw == nil {
		return nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		panic(fmt.Sprintf("btree: expected a list, got %T", raw))
	}
	out := make([]pagestore.PageID, len(items))
	for i, item := range items {
		out[i] = decodePageID(item)
	}
	return out
}

func decodePageID(raw interface{}) pagestore.PageID {
	switch v := raw.(type) {
	case uint64:
		return pagestore.PageID(v)
	case int64:
		return pagestore.PageID(v)
	case uint:
		return pagestore.PageID(v)
	case int:
		return pagestore.PageID(v)
	default:
		panic(fmt.Sprintf("btree: expected an integer page id, got %T", raw))
	}
}

// search returns the index of key in Keys, and whether it was found
// exactly. When not found, the index is where key would be inserted to
// keep Keys sorted.
func search(keys [][]byte, key []byte) (int, bool) {
	i := sort.Search(len(keys), func(i int) bool {
		return bytes.Compare(keys[i], key) >= 0
	})
	if i < len(keys) && bytes.Equal(keys[i], key) {
		return i, true
	}
	return i, false
}

// findChild returns the index of the child subtree that would contain
// key, per the InternalNode key layout documented above.
func (n *InternalNode) findChild(key []byte) int {
	i := sort.Search(len(n.Keys), func(i int) bool {
		return bytes.Compare(n.Keys[i], key) > 0
	})
	return i
}

// get returns the value for key and whether it was present.
func (n *LeafNode) get(key []byte) ([]byte, bool) {
	i, found := search(n.Keys, key)
	if !found {
		return nil, false
	}
	return n.Values[i], true
}

// put inserts or overwrites key with value, keeping Keys/Values sorted.
func (n *LeafNode) put(key, value []byte) (isNew bool) {
	i, found := search(n.Keys, key)
	if found {
		n.Values[i] = value
		return false
	}
	n.Keys = append(n.Keys, nil)
	copy(n.Keys[i+1:], n.Keys[i:])
	n.Keys[i] = key

	n.Values = append(n.Values, nil)
	copy(n.Values[i+1:], n.Values[i:])
	n.Values[i] = value
	return true
}

// remove deletes key if present, reporting whether it was found.
func (n *LeafNode) remove(key []byte) bool {
	i, found := search(n.Keys, key)
	if !found {
		return false
	}
	n.Keys = append(n.Keys[:i], n.Keys[i+1:]...)
	n.Values = append(n.Values[:i], n.Values[i+1:]...)
	return true
}

// splitLeaf splits n in half, returning the new right-hand sibling and
// its first key (which becomes the separator key promoted to the
// parent). n retains the lower half.
func splitLeaf(n *LeafNode) (right LeafNode, separator []byte) {
	mid := len(n.Keys) / 2
	right = LeafNode{
		Keys:   append([][]byte(nil), n.Keys[mid:]...),
		Values: append([][]byte(nil), n.Values[mid:]...),
	}
	n.Keys = n.Keys[:mid:mid]
	n.Values = n.Values[:mid:mid]
	return right, right.Keys[0]
}

// splitInternal splits n, promoting the middle key upward (it is not
// copied into either half, unlike a leaf split). n retains the lower half
// including the children up to but not including the promoted key's
// right child.
func splitInternal(n *InternalNode) (right InternalNode, separator []byte) {
	numKeep := len(n.Keys) / 2
	separator = n.Keys[numKeep]

	right = InternalNode{
		Keys:     append([][]byte(nil), n.Keys[numKeep+1:]...),
		Children: append([]pagestore.PageID(nil), n.Children[numKeep+1:]...),
	}
	n.Keys = n.Keys[:numKeep:numKeep]
	n.Children = n.Children[:numKeep+1 : numKeep+1]
	return right, separator
}

// mergeLeaf appends right's contents onto left.
func mergeLeaf(left, right *LeafNode) {
	left.Keys = append(left.Keys, right.Keys...)
	left.Values = append(left.Values, right.Values...)
}

// mergeInternal appends right's contents onto left, reinserting the
// separator key that used to sit between them in the parent.
func mergeInternal(left, right *InternalNode, separator []byte) {
	left.Keys = append(left.Keys, separator)
	left.Keys = append(left.Keys, right.Keys...)
	left.Children = append(left.Children, right.Children...)
}

// insertChild inserts a new (key, child) pair at index i, shifting later
// entries right. It is used both for the initial two-child parent created
// by a root split and for propagating a split further up the tree.
func (n *InternalNode) insertChild(i int, key []byte, child pagestore.PageID) {
	n.Keys = append(n.Keys, nil)
	copy(n.Keys[i+1:], n.Keys[i:])
	n.Keys[i] = key

	n.Children = append(n.Children, 0)
	copy(n.Children[i+2:], n.Children[i+1:])
	n.Children[i+1] = child
}

// removeChild removes the key at index i and the child at index i+1 (the
// child to the right of that key), used after a merge collapses two
// children into one.
func (n *InternalNode) removeChild(i int) {
	n.Keys = append(n.Keys[:i], n.Keys[i+1:]...)
	n.Children = append(n.Children[:i+1], n.Children[i+2:]...)
}
