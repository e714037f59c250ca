// Package succinct implements the read-only, compressed phase of the
// index: a bitmap-encoded ternary trie where the three child pointers per
// node collapse to three presence bits, and an O(1) rank query recovers a
// child's position. Built once from a ternary.Trie's breadth-first walk,
// never mutated again.
//
// Node numbering mirrors the structure a BFS encode naturally produces: a
// virtual root at node 0 (which never carries a character, only a center
// pointer to the real first node) and real nodes numbered 1..N in the
// order Iterate visits them. A node's three child-presence bits live at
// bitmap positions 3*nodeNumber, 3*nodeNumber+1, 3*nodeNumber+2 for
// left/center/right; getNode(slot) turns a set bit at that slot into the
// 3x-scaled index of the child node using rank1. Traversal always starts
// at "root = 3", the virtual root's center pointer resolved once.
package succinct

import "github.com/haspelj/ordidx/internal/bitrank"

// Source is the breadth-first feed a Succinct builds itself from.
// *ternary.Trie satisfies this interface structurally.
type Source interface {
	Iterate(visitor func(ch byte, hasLeft, hasCenter, hasRight bool, record *uint64))
	Items() uint64
	Nodes() uint64
}

// Succinct is a read-only compressed ternary trie.
type Succinct struct {
	keys    []byte
	records []uint64
	nodes   *bitrank.Bitmap
	valids  *bitrank.Bitmap
	items   uint64 // 0 means empty; otherwise items-1 real records exist
}

// New builds a Succinct from source's breadth-first walk.
func New(source Source) (*Succinct, error) {
	s := &Succinct{}
	if source.Items() == 0 {
		return s, nil
	}

	size := source.Nodes() + 1
	items := source.Items() + 1

	s.nodes = bitrank.New(int(size) * 3)
	s.valids = bitrank.New(int(size))
	s.keys = make([]byte, size)
	s.records = make([]uint64, items)

	writeIdx := 1
	recIdx := uint64(1)
	s.nodes.Set(1) // virtual root's "has center" bit: the real root lives at 3*rank1(1)=3.

	source.Iterate(func(ch byte, hasLeft, hasCenter, hasRight bool, record *uint64) {
		if hasLeft {
			s.nodes.Set(writeIdx*3 + 0)
		}
		if hasCenter {
			s.nodes.Set(writeIdx*3 + 1)
		}
		if hasRight {
			s.nodes.Set(writeIdx*3 + 2)
		}
		if record != nil {
			s.valids.Set(writeIdx)
			s.records[recIdx] = *record
			recIdx++
		}
		s.keys[writeIdx] = ch
		writeIdx++
	})

	s.nodes.Prepare()
	s.valids.Prepare()
	s.items = recIdx

	return s, nil
}

// Items returns the number of records stored.
func (s *Succinct) Items() uint64 {
	if s.items == 0 {
		return 0
	}
	return s.items - 1
}

func (s *Succinct) getNode(slot int) int {
	if !s.nodes.Get(slot) {
		return 0
	}
	return 3 * s.nodes.Rank1(slot)
}

// Find returns the record for key, or nil if key is not present.
func (s *Succinct) Find(key []byte) *uint64 {
	idx := s.findIdx(key)
	if idx == 0 {
		return nil
	}
	return &s.records[idx]
}

func (s *Succinct) findIdx(key []byte) uint64 {
	if s.items == 0 || len(key) == 0 {
		return 0
	}
	root := 3
	i := 0
	for root != 0 {
		d := int(key[i]) - int(s.keys[root/3])
		if d == 0 {
			i++
			if i == len(key) {
				break
			}
			root = s.getNode(root + 1)
		} else if d < 0 {
			root = s.getNode(root + 0)
		} else {
			root = s.getNode(root + 2)
		}
	}
	if root != 0 && s.valids.Get(root/3) {
		return uint64(s.valids.Rank1(root / 3))
	}
	return 0
}

func (s *Succinct) min(root int, okey []byte) (uint64, int) {
	i := 0
	for root != 0 {
		node := s.getNode(root + 0)
		if node == 0 {
			okey[i] = s.keys[root/3]
			i++
			if s.valids.Get(root / 3) {
				return uint64(s.valids.Rank1(root / 3)), i
			}
			node = s.getNode(root + 1)
		}
		root = node
	}
	return 0, i
}

func (s *Succinct) max(root int, okey []byte) (uint64, int) {
	i := 0
	for root != 0 {
		node := s.getNode(root + 2)
		if node == 0 {
			okey[i] = s.keys[root/3]
			i++
			if s.valids.Get(root / 3) {
				return uint64(s.valids.Rank1(root / 3)), i
			}
			node = s.getNode(root + 1)
		}
		root = node
	}
	return 0, i
}

// nextIdx implements the candidate-tracking successor search: while
// descending toward key, every time the path turns left (key is smaller
// than the current node), the current node (if valid or centered) or its
// right sibling becomes the best-known "turn back right" candidate. If the
// walk runs off the trie without an exact match, the last recorded
// candidate resolves the answer instead.
func (s *Succinct) nextIdx(key []byte, okey []byte) (uint64, int) {
	var up, hold int
	flag := false
	root := 3
	i := 0
	for root != 0 {
		d := int(key[i]) - int(s.keys[root/3])
		if d < 0 {
			if s.valids.Get(root/3) || s.getNode(root+1) != 0 {
				up, hold, flag = root, i, true
			} else if node := s.getNode(root + 2); node != 0 {
				up, hold, flag = node, i, false
			}
			root = s.getNode(root + 0)
		} else if d == 0 {
			if node := s.getNode(root + 2); node != 0 {
				up, hold, flag = node, i, false
			}
			root = s.getNode(root + 1)
			okey[i] = key[i]
			i++
			if i == len(key) {
				break
			}
		} else {
			root = s.getNode(root + 2)
		}
	}
	if root != 0 {
		idx, n := s.min(root, okey[i:])
		return idx, i + n
	}
	if up == 0 {
		return 0, 0
	}
	i = hold
	if !flag {
		idx, n := s.min(up, okey[i:])
		return idx, i + n
	}
	if s.valids.Get(up / 3) {
		okey[i] = s.keys[up/3]
		return uint64(s.valids.Rank1(up / 3)), i + 1
	}
	if r := s.getNode(up + 1); r != 0 {
		okey[i] = s.keys[up/3]
		idx, n := s.min(r, okey[i+1:])
		return idx, i + 1 + n
	}
	if r := s.getNode(up + 2); r != 0 {
		idx, n := s.min(r, okey[i:])
		return idx, i + n
	}
	return 0, 0
}

// prevIdx mirrors nextIdx with left/right swapped and comparisons flipped.
func (s *Succinct) prevIdx(key []byte, okey []byte) (uint64, int) {
	var up, hold int
	flag := false
	root := 3
	i := 0
	for root != 0 {
		d := int(key[i]) - int(s.keys[root/3])
		if d > 0 {
			if s.valids.Get(root/3) || s.getNode(root+1) != 0 {
				up, hold, flag = root, i, true
			} else if node := s.getNode(root + 0); node != 0 {
				up, hold, flag = node, i, false
			}
			root = s.getNode(root + 2)
		} else if d == 0 {
			if node := s.getNode(root + 0); node != 0 {
				up, hold, flag = node, i, false
			}
			root = s.getNode(root + 1)
			okey[i] = key[i]
			i++
			if i == len(key) {
				break
			}
		} else {
			root = s.getNode(root + 0)
		}
	}
	if root != 0 {
		idx, n := s.max(root, okey[i:])
		return idx, i + n
	}
	if up == 0 {
		return 0, 0
	}
	i = hold
	if !flag {
		idx, n := s.max(up, okey[i:])
		return idx, i + n
	}
	if s.valids.Get(up / 3) {
		okey[i] = s.keys[up/3]
		return uint64(s.valids.Rank1(up / 3)), i + 1
	}
	if r := s.getNode(up + 1); r != 0 {
		okey[i] = s.keys[up/3]
		idx, n := s.max(r, okey[i+1:])
		return idx, i + 1 + n
	}
	if r := s.getNode(up + 0); r != 0 {
		idx, n := s.max(r, okey[i:])
		return idx, i + n
	}
	return 0, 0
}

// Next returns the record and resolved key for the smallest key strictly
// greater than key, or (if key is empty) for the smallest key overall. The
// resolved key is written into the prefix of out.
func (s *Succinct) Next(key []byte, out []byte) (*uint64, []byte) {
	if s.items == 0 {
		return nil, nil
	}
	var idx uint64
	var n int
	if len(key) == 0 {
		idx, n = s.min(3, out)
	} else {
		idx, n = s.nextIdx(key, out)
	}
	if idx == 0 {
		return nil, nil
	}
	return &s.records[idx], out[:n]
}

// Prev returns the record and resolved key for the largest key strictly
// less than key, or (if key is empty) for the largest key overall.
func (s *Succinct) Prev(key []byte, out []byte) (*uint64, []byte) {
	if s.items == 0 {
		return nil, nil
	}
	var idx uint64
	var n int
	if len(key) == 0 {
		idx, n = s.max(3, out)
	} else {
		idx, n = s.prevIdx(key, out)
	}
	if idx == 0 {
		return nil, nil
	}
	return &s.records[idx], out[:n]
}
