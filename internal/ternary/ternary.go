// Package ternary implements the intermediate, deterministic shape the
// mutable tree compresses into on its way to the succinct trie: a ternary
// search trie (one byte per node, left/center/right children) built once,
// bottom-to-top, from a breadth-first walk of the source tree.
//
// The trie is read-only after New returns; the only operation it exposes
// besides construction bookkeeping is the breadth-first Iterate the
// succinct encoder consumes, and that traversal order is a load-bearing
// contract between the two packages.
package ternary

import (
	"unsafe"

	"github.com/haspelj/ordidx/internal/arena"
	"github.com/haspelj/ordidx/internal/ixqueue"
)

const chunkBytes = 1 << 20

type nodeRef int32

const nilRef nodeRef = -1

type tstNode struct {
	ch     byte
	valid  bool
	record uint64
	left   nodeRef
	center nodeRef
	right  nodeRef
}

// Source is the breadth-first key/record feed a Trie builds itself from.
// *avltree.Tree satisfies this interface structurally.
type Source interface {
	Iterate(visitor func(key []byte, record uint64) int) error
	Items() uint64
}

// Trie is a ternary search trie built once from a Source and never mutated
// again.
type Trie struct {
	alloc   arena.Allocator
	pages   [][]tstNode
	pageCap int
	inTop   int

	root  nodeRef
	items uint64
	nodes uint64
}

// New builds a Trie from every (key, record) pair source yields, in the
// order source.Iterate visits them.
func New(alloc arena.Allocator, source Source) (*Trie, error) {
	if alloc == nil {
		alloc = arena.StdAllocator{}
	}
	t := &Trie{alloc: alloc, root: nilRef}

	var buildErr error
	err := source.Iterate(func(key []byte, record uint64) int {
		if e := t.insert(key, record); e != nil {
			buildErr = e
			return 1
		}
		return 0
	})
	if buildErr != nil {
		return nil, buildErr
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Items returns the number of distinct keys encoded in the trie.
func (t *Trie) Items() uint64 { return t.items }

// Nodes returns the number of trie nodes (not all of which are valid
// terminators; a node may exist purely to route to a longer key).
func (t *Trie) Nodes() uint64 { return t.nodes }

func (t *Trie) node(ref nodeRef) *tstNode {
	page := int(ref) / t.pageCap
	slot := int(ref) % t.pageCap
	return &t.pages[page][slot]
}

func (t *Trie) newNode(ch byte) (nodeRef, error) {
	if t.pageCap == 0 {
		t.pageCap = chunkBytes / int(unsafe.Sizeof(tstNode{}))
		if t.pageCap < 1 {
			t.pageCap = 1
		}
	}
	if len(t.pages) == 0 || t.inTop == t.pageCap {
		if _, err := t.alloc.Alloc(t.pageCap * int(unsafe.Sizeof(tstNode{}))); err != nil {
			return nilRef, err
		}
		t.pages = append(t.pages, make([]tstNode, t.pageCap))
		t.inTop = 0
	}
	pageIdx := len(t.pages) - 1
	slot := t.inTop
	t.inTop++
	ref := nodeRef(pageIdx*t.pageCap + slot)
	*t.node(ref) = tstNode{ch: ch, left: nilRef, center: nilRef, right: nilRef}
	t.nodes++
	return ref, nil
}

// insert descends the trie byte by byte, creating exactly one node per
// distinct (prefix, byte) pair, and marks the final node of key as valid.
func (t *Trie) insert(key []byte, record uint64) error {
	root := t.root
	parent := nilRef
	slot := 0 // 0 = none yet, 1 = left, 2 = center, 3 = right
	i := 0
	for {
		if root == nilRef {
			ref, err := t.newNode(key[i])
			if err != nil {
				return err
			}
			if t.root == nilRef {
				t.root = ref
			}
			switch slot {
			case 1:
				t.node(parent).left = ref
			case 2:
				t.node(parent).center = ref
			case 3:
				t.node(parent).right = ref
			}
			root = ref
		}
		parent = root
		n := t.node(root)
		d := int(key[i]) - int(n.ch)
		switch {
		case d == 0:
			i++
			if i == len(key) {
				if !n.valid {
					t.items++
				}
				n.valid = true
				n.record = record
				return nil
			}
			root = n.center
			slot = 2
		case d < 0:
			root = n.left
			slot = 1
		default:
			root = n.right
			slot = 3
		}
	}
}

// Iterate visits every node in breadth-first order, reporting each node's
// byte, which of its three children exist, and (for valid nodes) a pointer
// to its record. This order is the exact order the succinct package's
// encoder requires.
func (t *Trie) Iterate(visitor func(ch byte, hasLeft, hasCenter, hasRight bool, record *uint64)) {
	if t.root == nilRef {
		return
	}
	q := ixqueue.New[nodeRef](int(t.nodes))
	q.Push(t.root)
	for !q.Empty() {
		ref := q.Pop()
		n := t.node(ref)
		var rec *uint64
		if n.valid {
			rec = &n.record
		}
		visitor(n.ch, n.left != nilRef, n.center != nilRef, n.right != nilRef, rec)
		if n.left != nilRef {
			q.Push(n.left)
		}
		if n.center != nilRef {
			q.Push(n.center)
		}
		if n.right != nilRef {
			q.Push(n.right)
		}
	}
}
