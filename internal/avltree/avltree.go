// Package avltree implements the mutable phase of the index: a
// self-balancing binary search tree over byte-string keys, backed by
// chunked arena pages instead of one heap allocation per node. Node
// references are stable integer indices into those pages (never raw
// pointers), so a page is never relocated once allocated and a reference
// stays valid for the tree's whole lifetime.
package avltree

import (
	"bytes"
	"fmt"
	"unsafe"

	"github.com/haspelj/ordidx/internal/arena"
	"github.com/haspelj/ordidx/internal/ixqueue"
)

// chunkBytes is the minimum size of a node page or key pool chunk, mirroring
// the 1MiB CHUNK_SIZE the original tree arena allocates in one shot.
const chunkBytes = 1 << 20

type nodeRef int32

const nilRef nodeRef = -1

type avlNode struct {
	keyChunk int32
	keyOff   int32
	keyLen   int32
	record   uint64
	left     nodeRef
	right    nodeRef
	height   int32
}

// Tree is an AVL tree of byte-string keys to uint64 records.
type Tree struct {
	alloc arena.Allocator

	pages      [][]avlNode
	pageCap    int
	nodesInTop int

	keyChunks [][]byte

	root  nodeRef
	items uint64
}

// New returns an empty Tree backed by alloc. A nil alloc defaults to
// arena.StdAllocator{}.
func New(alloc arena.Allocator) *Tree {
	if alloc == nil {
		alloc = arena.StdAllocator{}
	}
	return &Tree{alloc: alloc, root: nilRef}
}

// Items returns the number of distinct keys currently stored.
func (t *Tree) Items() uint64 { return t.items }

// Truncate discards every node, returning the tree to its empty state.
func (t *Tree) Truncate() {
	t.pages = nil
	t.nodesInTop = 0
	t.keyChunks = nil
	t.root = nilRef
	t.items = 0
}

func (t *Tree) node(ref nodeRef) *avlNode {
	page := int(ref) / t.pageCap
	slot := int(ref) % t.pageCap
	return &t.pages[page][slot]
}

func (t *Tree) keyOf(n *avlNode) []byte {
	return t.keyChunks[n.keyChunk][n.keyOff : n.keyOff+n.keyLen]
}

func (t *Tree) newNode(key []byte) (nodeRef, *avlNode, error) {
	if t.pageCap == 0 {
		t.pageCap = chunkBytes / int(unsafe.Sizeof(avlNode{}))
		if t.pageCap < 1 {
			t.pageCap = 1
		}
	}
	if len(t.pages) == 0 || t.nodesInTop == t.pageCap {
		if _, err := t.alloc.Alloc(t.pageCap * int(unsafe.Sizeof(avlNode{}))); err != nil {
			return nilRef, nil, err
		}
		t.pages = append(t.pages, make([]avlNode, t.pageCap))
		t.nodesInTop = 0
	}
	pageIdx := len(t.pages) - 1
	slot := t.nodesInTop
	t.nodesInTop++
	ref := nodeRef(pageIdx*t.pageCap + slot)

	kc, koff, err := t.storeKey(key)
	if err != nil {
		return nilRef, nil, err
	}
	n := &t.pages[pageIdx][slot]
	*n = avlNode{
		keyChunk: kc,
		keyOff:   koff,
		keyLen:   int32(len(key)),
		left:     nilRef,
		right:    nilRef,
	}
	t.items++
	return ref, n, nil
}

func (t *Tree) storeKey(key []byte) (int32, int32, error) {
	need := len(key)
	if len(t.keyChunks) == 0 {
		if err := t.growKeyChunk(need); err != nil {
			return 0, 0, err
		}
	} else if last := t.keyChunks[len(t.keyChunks)-1]; len(last)+need > cap(last) {
		if err := t.growKeyChunk(need); err != nil {
			return 0, 0, err
		}
	}
	idx := int32(len(t.keyChunks) - 1)
	chunk := t.keyChunks[idx]
	off := int32(len(chunk))
	t.keyChunks[idx] = append(chunk, key...)
	return idx, off, nil
}

func (t *Tree) growKeyChunk(need int) error {
	size := chunkBytes
	if need > size {
		size = need
	}
	buf, err := t.alloc.Alloc(size)
	if err != nil {
		return err
	}
	t.keyChunks = append(t.keyChunks, buf[:0])
	return nil
}

func (t *Tree) getHeight(ref nodeRef) int32 {
	if ref == nilRef {
		return -1
	}
	return t.node(ref).height
}

func (t *Tree) heightOf(a, b nodeRef) int32 {
	ha, hb := t.getHeight(a), t.getHeight(b)
	if ha > hb {
		return ha + 1
	}
	return hb + 1
}

func (t *Tree) balance(ref nodeRef) int32 {
	n := t.node(ref)
	return t.getHeight(n.left) - t.getHeight(n.right)
}

func absInt32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func (t *Tree) rotateRight(nRef nodeRef) nodeRef {
	n := t.node(nRef)
	rRef := n.left
	r := t.node(rRef)
	n.left = r.right
	r.right = nRef
	n.height = t.heightOf(n.left, n.right)
	r.height = t.heightOf(r.left, nRef)
	return rRef
}

func (t *Tree) rotateLeft(nRef nodeRef) nodeRef {
	n := t.node(nRef)
	rRef := n.right
	r := t.node(rRef)
	n.right = r.left
	r.left = nRef
	n.height = t.heightOf(n.left, n.right)
	r.height = t.heightOf(r.right, nRef)
	return rRef
}

func (t *Tree) rotateLeftRight(nRef nodeRef) nodeRef {
	n := t.node(nRef)
	n.left = t.rotateLeft(n.left)
	return t.rotateRight(nRef)
}

func (t *Tree) rotateRightLeft(nRef nodeRef) nodeRef {
	n := t.node(nRef)
	n.right = t.rotateRight(n.right)
	return t.rotateLeft(nRef)
}

// Update finds or creates the node for key and returns a pointer to its
// record. The returned pointer is valid for the tree's lifetime (pages are
// never relocated or freed except by Truncate).
func (t *Tree) Update(key []byte) (*uint64, error) {
	ref, rec, err := t.update(t.root, key)
	if err != nil {
		return nil, err
	}
	t.root = ref
	return rec, nil
}

func (t *Tree) update(root nodeRef, key []byte) (nodeRef, *uint64, error) {
	if root == nilRef {
		ref, n, err := t.newNode(key)
		if err != nil {
			return nilRef, nil, err
		}
		return ref, &n.record, nil
	}
	n := t.node(root)
	cmp := bytes.Compare(key, t.keyOf(n))
	var rec *uint64
	switch {
	case cmp == 0:
		rec = &n.record
	case cmp < 0:
		newLeft, r, err := t.update(n.left, key)
		if err != nil {
			return nilRef, nil, err
		}
		n.left = newLeft
		rec = r
		if absInt32(t.balance(root)) > 1 {
			if bytes.Compare(key, t.keyOf(t.node(n.left))) < 0 {
				root = t.rotateRight(root)
			} else {
				root = t.rotateLeftRight(root)
			}
		}
	default:
		newRight, r, err := t.update(n.right, key)
		if err != nil {
			return nilRef, nil, err
		}
		n.right = newRight
		rec = r
		if absInt32(t.balance(root)) > 1 {
			if bytes.Compare(key, t.keyOf(t.node(n.right))) > 0 {
				root = t.rotateLeft(root)
			} else {
				root = t.rotateRightLeft(root)
			}
		}
	}
	rn := t.node(root)
	rn.height = t.heightOf(rn.left, rn.right)
	return root, rec, nil
}

// Find returns the record for key, or nil if key is not present.
func (t *Tree) Find(key []byte) *uint64 {
	ref := t.root
	for ref != nilRef {
		n := t.node(ref)
		switch cmp := bytes.Compare(key, t.keyOf(n)); {
		case cmp == 0:
			return &n.record
		case cmp < 0:
			ref = n.left
		default:
			ref = n.right
		}
	}
	return nil
}

func (t *Tree) min(ref nodeRef) nodeRef {
	for {
		n := t.node(ref)
		if n.left == nilRef {
			return ref
		}
		ref = n.left
	}
}

func (t *Tree) max(ref nodeRef) nodeRef {
	for {
		n := t.node(ref)
		if n.right == nilRef {
			return ref
		}
		ref = n.right
	}
}

func (t *Tree) nextRef(root nodeRef, key []byte) nodeRef {
	var candidate nodeRef = nilRef
	for root != nilRef {
		n := t.node(root)
		cmp := bytes.Compare(key, t.keyOf(n))
		if cmp == 0 {
			if n.right != nilRef {
				return t.min(n.right)
			}
			break
		} else if cmp < 0 {
			candidate = root
			root = n.left
		} else {
			root = n.right
		}
	}
	return candidate
}

func (t *Tree) prevRef(root nodeRef, key []byte) nodeRef {
	var candidate nodeRef = nilRef
	for root != nilRef {
		n := t.node(root)
		cmp := bytes.Compare(key, t.keyOf(n))
		if cmp == 0 {
			if n.left != nilRef {
				return t.max(n.left)
			}
			break
		} else if cmp > 0 {
			candidate = root
			root = n.right
		} else {
			root = n.left
		}
	}
	return candidate
}

// Next returns the record and resolved key for the smallest key strictly
// greater than key, or (if key is empty) for the smallest key in the tree.
// The resolved key is copied into the prefix of out and the written
// sub-slice is returned. Returns (nil, nil) if there is no such key.
func (t *Tree) Next(key []byte, out []byte) (*uint64, []byte) {
	var ref nodeRef
	if len(key) == 0 {
		if t.root == nilRef {
			return nil, nil
		}
		ref = t.min(t.root)
	} else {
		ref = t.nextRef(t.root, key)
		if ref == nilRef {
			return nil, nil
		}
	}
	n := t.node(ref)
	k := t.keyOf(n)
	w := copy(out, k)
	return &n.record, out[:w]
}

// Prev returns the record and resolved key for the largest key strictly
// less than key, or (if key is empty) for the largest key in the tree.
func (t *Tree) Prev(key []byte, out []byte) (*uint64, []byte) {
	var ref nodeRef
	if len(key) == 0 {
		if t.root == nilRef {
			return nil, nil
		}
		ref = t.max(t.root)
	} else {
		ref = t.prevRef(t.root, key)
		if ref == nilRef {
			return nil, nil
		}
	}
	n := t.node(ref)
	k := t.keyOf(n)
	w := copy(out, k)
	return &n.record, out[:w]
}

// Iterate visits every node in breadth-first order, calling visitor with
// each key and record. If visitor returns non-zero, iteration stops and
// Iterate returns a non-nil error.
func (t *Tree) Iterate(visitor func(key []byte, record uint64) int) error {
	if t.root == nilRef {
		return nil
	}
	q := ixqueue.New[nodeRef](int(t.items))
	q.Push(t.root)
	for !q.Empty() {
		ref := q.Pop()
		n := t.node(ref)
		if rc := visitor(t.keyOf(n), n.record); rc != 0 {
			return fmt.Errorf("avltree: iterate aborted with code %d", rc)
		}
		if n.left != nilRef {
			q.Push(n.left)
		}
		if n.right != nilRef {
			q.Push(n.right)
		}
	}
	return nil
}
